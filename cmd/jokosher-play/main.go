package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/cmd"
	"github.com/jokosher/jokosher/config"
	"github.com/jokosher/jokosher/midictl"
	"github.com/jokosher/jokosher/session"
	"github.com/jokosher/jokosher/version"
)

const pollInterval = 20 * time.Millisecond

func main() {
	help := flag.Bool("h", false, "Show help.")
	verbose := flag.Bool("v", false, "Log debug messages.")
	versionFlag := flag.Bool("version", false, "Print version.")
	wavOut := flag.Bool("w", false, "Render the projects to .wav files instead of playing them.")
	directory := flag.String("o", "", "Directory where to put the rendered files. By default, they are placed next to the project files.")
	pcm := flag.Bool("c", false, "Write 16-bit signed PCM instead of float samples.")
	start := flag.Float64("start", 0, "Start playing from this position, in seconds.")
	midiIn := flag.String("midi", "", "Take transport commands from the MIDI input whose name starts with this. Overrides the settings.")
	sink := flag.String("sink", "", "Audio sink to play through: oto or null. Overrides the settings.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.String)
		os.Exit(0)
	}
	if flag.NArg() == 0 || *help {
		flag.Usage()
		os.Exit(0)
	}
	logger := cmd.NewLogger(*verbose)
	settings, err := config.Load("")
	if err != nil {
		logger.Warn("using default settings", "err", err)
	}
	if *sink != "" {
		settings.Playback.AudioSink = *sink
	}
	if *midiIn != "" {
		settings.MIDI.Input = *midiIn
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	options := []session.Option{session.WithLogger(logger), session.WithSettings(settings)}
	var ctrl *midictl.Controller
	if !*wavOut {
		out, err := cmd.NewOutput(settings)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		defer out.Close()
		options = append(options, session.WithOutput(out))
		if ctrl, err = midictl.NewController(settings.MIDI); err != nil {
			fmt.Fprintf(os.Stderr, "invalid MIDI bindings: %v\n", err)
			os.Exit(1)
		}
		closeMIDI, err := cmd.ListenMIDI(settings.MIDI.Input, ctrl)
		if err != nil {
			logger.Warn("no MIDI control", "err", err)
			ctrl = nil
		} else {
			defer closeMIDI()
		}
	}
	s, err := session.NewSession(options...)
	if err != nil {
		fmt.Fprintln(os.Stderr, jokosher.UserMessage(err))
		os.Exit(1)
	}
	defer s.Close()

	process := func(file string) error {
		p, err := s.Open(file)
		if err != nil {
			return err
		}
		if err := p.WaitLoaded(ctx); err != nil {
			return err
		}
		if *wavOut {
			return render(ctx, p, file, *directory, *pcm)
		}
		p.Transport().SeekTo(*start)
		return play(ctx, p, ctrl)
	}
	retval := 0
	for _, param := range flag.Args() {
		if err := process(param); err != nil {
			fmt.Fprintf(os.Stderr, "could not process project %v: %v\n", param, jokosher.UserMessage(err))
			retval = 1
		}
		if ctx.Err() != nil {
			break
		}
	}
	os.Exit(retval)
}

func render(ctx context.Context, p *session.Project, file, dir string, pcm16 bool) error {
	if dir == "" {
		dir = filepath.Dir(file)
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return fmt.Errorf("could not create output directory %v: %v", dir, err)
	}
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	if name == "project" {
		name = p.Name()
	}
	out := filepath.Join(dir, name+".wav")
	if err := p.Export(ctx, out, pcm16); err != nil {
		return err
	}
	fmt.Println(out)
	return nil
}

// play runs the project until it stops by itself or, when a MIDI controller
// listens, until interrupted.
func play(ctx context.Context, p *session.Project, ctrl *midictl.Controller) error {
	if err := p.Play(); err != nil {
		return err
	}
	defer p.Stop()
	t := time.NewTicker(pollInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		p.ProcessMessages()
		if ctrl != nil {
			if err := ctrl.Dispatch(p); err != nil && !errors.Is(err, session.ErrBusy) {
				return err
			}
			continue
		}
		if p.State() == session.AudioStopped {
			if errs := p.Errors(); len(errs) > 0 {
				return errs[0]
			}
			return nil
		}
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Jokosher command line utility for playing and rendering projects.\nUsage: %s [flags] [project ...]\n", os.Args[0])
	flag.PrintDefaults()
}

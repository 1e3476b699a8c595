package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/cmd"
	"github.com/jokosher/jokosher/config"
	"github.com/jokosher/jokosher/decode"
	"github.com/jokosher/jokosher/session"
	"github.com/jokosher/jokosher/version"
)

func main() {
	help := flag.Bool("h", false, "Show help.")
	verbose := flag.Bool("v", false, "Log debug messages.")
	versionFlag := flag.Bool("version", false, "Print version.")
	location := flag.String("o", "", "Directory the project folder is created in. Defaults to the project folder of the settings, then the working directory.")
	name := flag.String("name", "", "Name of the project.")
	author := flag.String("author", "", "Author of the project.")
	typ := flag.String("type", "audiofile", "Instrument type of the new instruments.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.String)
		os.Exit(0)
	}
	if *help {
		flag.Usage()
		os.Exit(0)
	}
	logger := cmd.NewLogger(*verbose)
	settings, err := config.Load("")
	if err != nil {
		logger.Warn("using default settings", "err", err)
	}
	if *location == "" {
		*location = settings.General.ProjectFolder
	}
	if *location == "" {
		if *location, err = os.Getwd(); err != nil {
			fmt.Fprintf(os.Stderr, "could not get working directory, specify the location explicitly: %v\n", err)
			os.Exit(1)
		}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	s, err := session.NewSession(session.WithLogger(logger), session.WithSettings(settings))
	if err != nil {
		fmt.Fprintln(os.Stderr, jokosher.UserMessage(err))
		os.Exit(1)
	}
	defer s.Close()
	if err := create(ctx, s, *location, *name, *author, *typ, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "could not create project: %v\n", jokosher.UserMessage(err))
		os.Exit(1)
	}
	if err := settings.Save(); err != nil {
		logger.Warn("could not save settings", "err", err)
	}
}

func create(ctx context.Context, s *session.Session, location, name, author, typ string, files []string) error {
	p, err := s.Create(name, author, location)
	if err != nil {
		return err
	}
	if _, ok := s.Catalog().Lookup(typ); !ok {
		return fmt.Errorf("unknown instrument type %q", typ)
	}
	for _, file := range files {
		instr, err := p.AddInstrument(decode.Title(file), typ)
		if err != nil {
			return err
		}
		if _, err := instr.AddEventFromFile(0, file, ""); err != nil {
			return err
		}
	}
	if err := p.WaitLoaded(ctx); err != nil {
		return err
	}
	for _, instr := range p.Instruments() {
		for _, ev := range instr.Events() {
			if err := ev.Corrupt(); err != nil {
				return err
			}
		}
	}
	if err := p.Save(); err != nil {
		return err
	}
	fmt.Println(p.File())
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Jokosher command line utility for creating a project from audio files, one instrument per file.\nUsage: %s [flags] [file ...]\n", os.Args[0])
	flag.PrintDefaults()
}

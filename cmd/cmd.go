// Package cmd holds what the jokosher binaries share: logging, the audio
// output named in the settings and the MIDI remote control.
package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/config"
	"github.com/jokosher/jokosher/device"
	"github.com/jokosher/jokosher/oto"
)

var (
	ErrNoMIDIInput  = errors.New("no matching MIDI input")
	ErrNoMIDIDriver = errors.New("MIDI input needs a build with cgo")
)

// NewLogger returns a text logger on stderr, at debug level when verbose.
func NewLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewOutput opens the playback sink named in the settings.
func NewOutput(s *config.Settings) (jokosher.AudioOutput, error) {
	switch s.Playback.AudioSink {
	case "null":
		return device.NewNullOutput(s.General.SampleRate, s.General.BufferSize), nil
	case "oto":
		o, err := oto.NewOutput(s.General.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("could not open audio output: %w", err)
		}
		return o, nil
	}
	return nil, fmt.Errorf("unknown audio sink %q", s.Playback.AudioSink)
}

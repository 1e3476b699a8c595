//go:build cgo

package cmd

import (
	"fmt"
	"strings"

	"github.com/jokosher/jokosher/midictl"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"
)

// ListenMIDI feeds the first MIDI input whose name starts with prefix to c.
// The returned function closes the input. An empty prefix listens to
// nothing.
func ListenMIDI(prefix string, c *midictl.Controller) (stop func(), err error) {
	if prefix == "" {
		return func() {}, nil
	}
	drv, err := rtmididrv.New()
	if err != nil {
		return nil, fmt.Errorf("could not open MIDI driver: %w", err)
	}
	ins, err := drv.Ins()
	if err != nil {
		drv.Close()
		return nil, fmt.Errorf("could not list MIDI inputs: %w", err)
	}
	for _, in := range ins {
		if !strings.HasPrefix(in.String(), prefix) {
			continue
		}
		if err := in.Open(); err != nil {
			drv.Close()
			return nil, fmt.Errorf("opening MIDI input failed: %w", err)
		}
		stopListening, err := midi.ListenTo(in, c.HandleMessage)
		if err != nil {
			in.Close()
			drv.Close()
			return nil, fmt.Errorf("listening to MIDI input failed: %w", err)
		}
		return func() {
			stopListening()
			in.Close()
			drv.Close()
		}, nil
	}
	drv.Close()
	return nil, fmt.Errorf("%w starting with %q", ErrNoMIDIInput, prefix)
}

//go:build !cgo

package cmd

import "github.com/jokosher/jokosher/midictl"

// ListenMIDI fails for any input: without cgo there is no MIDI driver.
func ListenMIDI(prefix string, c *midictl.Controller) (stop func(), err error) {
	if prefix == "" {
		return func() {}, nil
	}
	return nil, ErrNoMIDIDriver
}

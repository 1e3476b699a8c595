// Package midictl turns MIDI input into transport commands, so a project
// can be played and recorded from a control surface or a keyboard.
package midictl

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jokosher/jokosher/config"
	"gitlab.com/gomidi/midi/v2"
)

type (
	Command int

	// Target is what commands are dispatched to; *session.Project
	// implements it.
	Target interface {
		Play() error
		Pause() error
		Stop() error
		Record() error
	}

	// Controller receives MIDI messages on the driver's goroutine and queues
	// the commands they map to. The queue is drained with Dispatch on the
	// goroutine that owns the project.
	Controller struct {
		notes    map[binding]Command
		controls map[binding]Command
		held     map[binding]bool // controllers above the threshold
		commands chan Command
		dropped  atomic.Int64
	}

	binding struct {
		channel uint8
		number  uint8
	}
)

const (
	CommandNone Command = iota
	CommandPlay
	CommandPause
	CommandStop
	CommandRecord
)

// MMC command bytes, the fifth byte of F0 7F <device> 06 <command> F7.
const (
	mmcStop         = 0x01
	mmcPlay         = 0x02
	mmcDeferredPlay = 0x03
	mmcRecordStrobe = 0x06
	mmcPause        = 0x09
)

// controlThreshold is the controller value from which a binding fires.
const controlThreshold = 64

const queueSize = 64

var commandNames = []string{"none", "play", "pause", "stop", "record"}

var ErrUnknownCommand = errors.New("unknown transport command")

func (c Command) String() string {
	if c < 0 || int(c) >= len(commandNames) {
		return fmt.Sprintf("Command(%d)", int(c))
	}
	return commandNames[c]
}

// ParseCommand returns the command called name.
func ParseCommand(name string) (Command, error) {
	for k, n := range commandNames[1:] {
		if n == name {
			return Command(k + 1), nil
		}
	}
	return CommandNone, fmt.Errorf("%w %q", ErrUnknownCommand, name)
}

// NewController returns a controller with the note and controller bindings
// of the settings.
func NewController(s config.MIDI) (*Controller, error) {
	c := &Controller{
		notes:    map[binding]Command{},
		controls: map[binding]Command{},
		held:     map[binding]bool{},
		commands: make(chan Command, queueSize),
	}
	add := func(m map[binding]Command, bs []config.MIDIBinding) error {
		for _, b := range bs {
			if b.Channel < 0 || b.Channel > 15 || b.Number < 0 || b.Number > 127 {
				return fmt.Errorf("midi binding %d/%d out of range", b.Channel, b.Number)
			}
			cmd, err := ParseCommand(b.Command)
			if err != nil {
				return err
			}
			m[binding{uint8(b.Channel), uint8(b.Number)}] = cmd
		}
		return nil
	}
	if err := add(c.notes, s.Notes); err != nil {
		return nil, err
	}
	if err := add(c.controls, s.Controls); err != nil {
		return nil, err
	}
	return c, nil
}

// HandleMessage maps a message to a command and queues it. Its signature
// matches the receiver of midi.ListenTo. The driver calls it from one
// goroutine.
func (c *Controller) HandleMessage(msg midi.Message, timestampms int32) {
	if cmd := c.command(msg); cmd != CommandNone {
		c.queue(cmd)
	}
}

func (c *Controller) command(msg midi.Message) Command {
	var channel, key, velocity, controller, value uint8
	var data []byte
	switch {
	case msg.GetSysEx(&data):
		return mmcCommand(data)
	case msg.GetNoteStart(&channel, &key, &velocity):
		return c.notes[binding{channel, key}]
	case msg.GetControlChange(&channel, &controller, &value):
		b := binding{channel, controller}
		cmd, ok := c.controls[b]
		if !ok {
			return CommandNone
		}
		// a controller fires when it crosses the threshold upwards
		on := value >= controlThreshold
		was := c.held[b]
		c.held[b] = on
		if on && !was {
			return cmd
		}
	}
	return CommandNone
}

func mmcCommand(data []byte) Command {
	// 7F <device> 06 <command>
	if len(data) < 4 || data[0] != 0x7F || data[2] != 0x06 {
		return CommandNone
	}
	switch data[3] {
	case mmcStop:
		return CommandStop
	case mmcPlay, mmcDeferredPlay:
		return CommandPlay
	case mmcRecordStrobe:
		return CommandRecord
	case mmcPause:
		return CommandPause
	}
	return CommandNone
}

func (c *Controller) queue(cmd Command) {
	select {
	case c.commands <- cmd:
	default:
		c.dropped.Add(1)
	}
}

// Commands returns the queue, for callers that select on it.
func (c *Controller) Commands() <-chan Command { return c.commands }

// Dropped returns how many commands were lost because the queue was full.
func (c *Controller) Dropped() int64 { return c.dropped.Load() }

// Dispatch applies the queued commands to t without blocking and returns
// the errors they gave.
func (c *Controller) Dispatch(t Target) error {
	var errs []error
	for {
		select {
		case cmd := <-c.commands:
			errs = append(errs, Apply(t, cmd))
		default:
			return errors.Join(errs...)
		}
	}
}

// Apply runs one command on t.
func Apply(t Target, cmd Command) error {
	switch cmd {
	case CommandPlay:
		return t.Play()
	case CommandPause:
		return t.Pause()
	case CommandStop:
		return t.Stop()
	case CommandRecord:
		return t.Record()
	}
	return nil
}

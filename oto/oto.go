// Package oto plays the realtime output through github.com/ebitengine/oto/v3.
package oto

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
	"github.com/jokosher/jokosher"
)

// Output is a jokosher.AudioOutput on the system's default sound device.
// Oto allows one context per process, so there should be only one Output.
type Output struct {
	context *oto.Context

	mu     sync.Mutex
	player *oto.Player
}

const otoBufferFrames = 1024

var ErrAlreadyPlaying = errors.New("oto output is already playing")

// NewOutput opens the sound device for stereo float output at rate and
// waits until it is ready.
func NewOutput(rate int) (*Output, error) {
	op := &oto.NewContextOptions{
		SampleRate:   rate,
		ChannelCount: 2,
		Format:       oto.FormatFloat32LE,
		BufferSize:   bufferDuration(rate, otoBufferFrames),
	}
	context, ready, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("cannot create oto context: %w", err)
	}
	<-ready
	return &Output{context: context}, nil
}

// Play starts pulling audio from r on oto's goroutine.
func (o *Output) Play(r jokosher.Renderer) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.player != nil {
		return ErrAlreadyPlaying
	}
	o.player = o.context.NewPlayer(NewRenderReader(r))
	o.player.Play()
	return nil
}

// Stop stops pulling audio. Play can be called again afterwards.
func (o *Output) Stop() error {
	o.mu.Lock()
	p := o.player
	o.player = nil
	o.mu.Unlock()
	if p == nil {
		return nil
	}
	p.Pause()
	if err := p.Err(); err != nil {
		return fmt.Errorf("oto player failed: %w", err)
	}
	return nil
}

// Close stops playback and suspends the device.
func (o *Output) Close() error {
	if err := o.Stop(); err != nil {
		return err
	}
	if err := o.context.Suspend(); err != nil {
		return fmt.Errorf("cannot suspend oto context: %w", err)
	}
	return nil
}

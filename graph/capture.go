package graph

import (
	"fmt"
	"os"
	"sync"

	"github.com/jokosher/jokosher"
)

type (
	// CaptureStream is an open capture device delivering interleaved frames
	// at its own rate.
	CaptureStream interface {
		Channels() int
		SampleRate() int
		// Read fills buf with as many whole frames as are available without
		// blocking and returns the number of frames read.
		Read(buf []float32) (int, error)
		Close() error
	}

	// CaptureOpener opens a device for capturing the given number of
	// channels.
	CaptureOpener func(channels int) (CaptureStream, error)

	// Capture is a source reading from a capture device. The device is
	// opened when the element goes to Paused and closed when it goes back
	// to Ready. Its output runs at the device rate, so it is normally
	// followed by a Resample.
	Capture struct {
		open     CaptureOpener
		channels int

		stream CaptureStream
		acc    float64
	}

	// Deinterleave passes a multichannel stream through and exposes each
	// channel as a pad that can be linked with LinkPad. Pads appear when the
	// element reaches Paused; the callbacks registered with OnPadAdded are
	// then run, outside the pipeline lock, once for every channel.
	Deinterleave struct {
		channels int

		mu        sync.Mutex
		callbacks []func(pad int)
	}

	// Encode writes its input to a WAV file. The file is created when the
	// element goes to Paused and finalized when it goes back to Ready.
	Encode struct {
		path     string
		channels int
		pcm16    bool

		mu     sync.Mutex
		file   *os.File
		writer *jokosher.WavWriter
		frames int
		err    error
		scr    []float32
	}
)

func NewCapture(open CaptureOpener, channels int) *Capture {
	return &Capture{open: open, channels: channels}
}

func (*Capture) Kind() Kind { return KindSource }

// Channels returns the number of channels the capture produces.
func (c *Capture) Channels() int {
	if c.stream != nil {
		return c.stream.Channels()
	}
	return c.channels
}

func (c *Capture) ChangeState(t *Transition) error {
	switch {
	case t.From == StateReady && t.To == StatePaused:
		s, err := c.open(c.channels)
		if err != nil {
			return fmt.Errorf("could not open capture device: %w", err)
		}
		c.stream, c.acc = s, 0
	case t.From == StatePaused && t.To == StateReady:
		if c.stream != nil {
			err := c.stream.Close()
			c.stream = nil
			return err
		}
	}
	return nil
}

func (c *Capture) Process(ctx *Context, _ []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	if c.stream == nil {
		silence(out, max(1, c.channels), ctx.Frames)
		return nil
	}
	rate := c.stream.SampleRate()
	c.acc += float64(ctx.Frames) * float64(rate) / float64(ctx.SampleRate)
	n := int(c.acc)
	c.acc -= float64(n)
	ch := c.stream.Channels()
	silence(out, ch, n)
	out.SampleRate = rate
	if n == 0 {
		return nil
	}
	got, err := c.stream.Read(out.Data)
	if got < n {
		clear(out.Data[got*ch:])
	}
	return err
}

func NewDeinterleave(channels int) *Deinterleave {
	return &Deinterleave{channels: channels}
}

func (*Deinterleave) Kind() Kind { return KindDeinterleave }

func (d *Deinterleave) Channels() int { return d.channels }

// OnPadAdded registers f to be called with the index of every channel pad
// once the element reaches Paused.
func (d *Deinterleave) OnPadAdded(f func(pad int)) {
	d.mu.Lock()
	d.callbacks = append(d.callbacks, f)
	d.mu.Unlock()
}

func (d *Deinterleave) ChangeState(t *Transition) error {
	if t.From != StateReady || t.To != StatePaused {
		return nil
	}
	d.mu.Lock()
	callbacks := append([]func(int){}, d.callbacks...)
	d.mu.Unlock()
	for _, f := range callbacks {
		for pad := 0; pad < d.channels; pad++ {
			t.After(func() { f(pad) })
		}
	}
	return nil
}

func (d *Deinterleave) Process(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	passThrough(ctx, in, out)
	return nil
}

func NewEncode(path string, channels int, pcm16 bool) *Encode {
	return &Encode{path: path, channels: channels, pcm16: pcm16}
}

func (*Encode) Kind() Kind { return KindEncode }

func (e *Encode) Path() string { return e.path }

// Frames returns the number of frames written so far.
func (e *Encode) Frames() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frames
}

// Err returns the first error that happened while writing or finalizing.
func (e *Encode) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}

func (e *Encode) ChangeState(t *Transition) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case t.From == StateReady && t.To == StatePaused:
		f, err := os.Create(e.path)
		if err != nil {
			return fmt.Errorf("could not create %s: %w", e.path, err)
		}
		rate := jokosher.DefaultSampleRate
		if p := t.Element.owner(); p != nil {
			rate = p.SampleRate()
		}
		w, err := jokosher.NewWavWriter(f, e.channels, rate, e.pcm16)
		if err != nil {
			f.Close()
			return err
		}
		e.file, e.writer, e.frames, e.err = f, w, 0, nil
	case t.From == StatePaused && t.To == StateReady:
		if e.writer == nil {
			return nil
		}
		err := e.writer.Close()
		if cerr := e.file.Close(); err == nil {
			err = cerr
		}
		e.file, e.writer = nil, nil
		if err != nil && e.err == nil {
			e.err = err
		}
		return err
	}
	return nil
}

func (e *Encode) Process(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	passThrough(ctx, in, out)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.writer == nil {
		return nil
	}
	data := out.Data
	switch {
	case out.Channels == e.channels:
	case e.channels == 1:
		e.scr = out.Channel(0, e.scr)
		data = e.scr
	default:
		data = out.Stereo().Data
	}
	if err := e.writer.Write(data); err != nil {
		e.err = err
		return err
	}
	e.frames = e.writer.Frames()
	return nil
}

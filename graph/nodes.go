package graph

import (
	"math"
	"slices"
	"sync"

	"github.com/jokosher/jokosher"
	"github.com/viterin/vek/vek32"
)

type (
	// Clip is one placed piece of audio in a Composition. Audio must be
	// stereo at the pipeline rate; Offset and Duration select the part of it
	// that plays from Start on the timeline.
	Clip struct {
		ID       int
		Start    float64
		Offset   float64
		Duration float64
		Audio    jokosher.AudioBuffer
	}

	// Composition is a source that renders a set of clips placed on the
	// timeline, silence elsewhere.
	Composition struct {
		mu    sync.Mutex
		clips []Clip
	}

	// Mixer sums all its inputs into one stereo stream.
	Mixer struct{}

	// Volume applies a gain, a mute and an optional automation curve in
	// timeline seconds.
	Volume struct {
		mu         sync.Mutex
		gain       float64
		mute       bool
		automation jokosher.FadeCurve
	}

	// Pan balances a stereo stream: -1 is hard left, 1 hard right.
	Pan struct {
		mu  sync.Mutex
		pan float64
	}

	// Resample converts its input, which may run at a different rate than the
	// pipeline, to exactly one block at the pipeline rate.
	Resample struct {
		last []float32
	}

	// Sink is the end of the master chain; the pipeline hands out its output.
	Sink struct{}

	// Click is a metronome source: a short sine burst on every beat.
	Click struct {
		mu     sync.Mutex
		bpm    float64
		volume float64
	}
)

// automationStep is the number of frames that share one automation gain.
const automationStep = 64

const (
	clickFrequency = 880.0
	clickLength    = 0.1
)

func NewComposition() *Composition { return &Composition{} }

func (*Composition) Kind() Kind { return KindSource }

// SetClips replaces the clips of the composition.
func (c *Composition) SetClips(clips []Clip) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clips = slices.Clone(clips)
}

// Clips returns the current clips.
func (c *Composition) Clips() []Clip {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.clips)
}

func (c *Composition) Process(ctx *Context, _ []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	silence(out, 2, ctx.Frames)
	c.mu.Lock()
	defer c.mu.Unlock()
	rate := float64(ctx.SampleRate)
	blockStart, blockEnd := ctx.Position, ctx.Position+int64(ctx.Frames)
	for _, clip := range c.clips {
		if clip.Audio.Channels != 2 {
			continue
		}
		start := int64(math.Round(clip.Start * rate))
		offset := int64(math.Round(clip.Offset * rate))
		length := int64(math.Round(clip.Duration * rate))
		length = min(length, int64(clip.Audio.Frames())-offset)
		a, b := max(start, blockStart), min(start+length, blockEnd)
		if a >= b || offset < 0 {
			continue
		}
		src := clip.Audio.Data[(offset+a-start)*2 : (offset+b-start)*2]
		dst := out.Data[(a-blockStart)*2 : (b-blockStart)*2]
		vek32.Add_Inplace(dst, src)
	}
	return nil
}

func (Mixer) Kind() Kind { return KindMixer }

func (Mixer) Process(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	silence(out, 2, ctx.Frames)
	for _, buf := range in {
		addStereo(out.Data, buf)
	}
	return nil
}

// addStereo mixes buf into the stereo samples dst.
func addStereo(dst []float32, buf jokosher.AudioBuffer) {
	switch buf.Channels {
	case 2:
		n := min(len(dst), len(buf.Data))
		vek32.Add_Inplace(dst[:n], buf.Data[:n])
	case 1:
		n := min(len(dst)/2, len(buf.Data))
		for i := 0; i < n; i++ {
			dst[2*i] += buf.Data[i]
			dst[2*i+1] += buf.Data[i]
		}
	default:
		n := min(len(dst)/2, buf.Frames())
		for i := 0; i < n; i++ {
			dst[2*i] += buf.Data[i*buf.Channels]
			dst[2*i+1] += buf.Data[i*buf.Channels+1]
		}
	}
}

// passThrough copies the first input into out, or writes silence if there is
// none.
func passThrough(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) {
	if len(in) == 0 || in[0].Channels == 0 {
		silence(out, 2, ctx.Frames)
		return
	}
	resize(out, in[0].Channels, in[0].Frames())
	copy(out.Data, in[0].Data)
	out.SampleRate = in[0].SampleRate
}

// forceStereo copies the first input into out as two channels.
func forceStereo(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) {
	silence(out, 2, ctx.Frames)
	if len(in) > 0 {
		addStereo(out.Data, in[0])
	}
}

func NewVolume(gain float64) *Volume { return &Volume{gain: gain} }

func (*Volume) Kind() Kind { return KindVolume }

func (v *Volume) SetGain(g float64) {
	v.mu.Lock()
	v.gain = g
	v.mu.Unlock()
}

func (v *Volume) Gain() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gain
}

func (v *Volume) SetMute(m bool) {
	v.mu.Lock()
	v.mute = m
	v.mu.Unlock()
}

func (v *Volume) Muted() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mute
}

// SetAutomation sets the gain curve in timeline seconds that multiplies the
// gain. A nil curve disables automation.
func (v *Volume) SetAutomation(c jokosher.FadeCurve) {
	v.mu.Lock()
	v.automation = c.Copy()
	v.mu.Unlock()
}

func (v *Volume) Automation() jokosher.FadeCurve {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.automation.Copy()
}

func (v *Volume) Process(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	passThrough(ctx, in, out)
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.mute {
		clear(out.Data)
		return nil
	}
	if len(v.automation) == 0 {
		if v.gain != 1 {
			vek32.MulNumber_Inplace(out.Data, float32(v.gain))
		}
		return nil
	}
	ch := out.Channels
	frames := out.Frames()
	for f := 0; f < frames; f += automationStep {
		n := min(automationStep, frames-f)
		t := float64(ctx.Position+int64(f)) / float64(ctx.SampleRate)
		g := v.gain * v.automation.LevelAt(t)
		vek32.MulNumber_Inplace(out.Data[f*ch:(f+n)*ch], float32(g))
	}
	return nil
}

func NewPan(p float64) *Pan { return &Pan{pan: p} }

func (*Pan) Kind() Kind { return KindPan }

func (p *Pan) SetPan(v float64) {
	p.mu.Lock()
	p.pan = max(-1, min(1, v))
	p.mu.Unlock()
}

func (p *Pan) Pan() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pan
}

func (p *Pan) Process(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	forceStereo(ctx, in, out)
	p.mu.Lock()
	pan := p.pan
	p.mu.Unlock()
	if pan == 0 {
		return nil
	}
	left, right := float32(min(1, 1-pan)), float32(min(1, 1+pan))
	for i := 0; i+1 < len(out.Data); i += 2 {
		out.Data[i] *= left
		out.Data[i+1] *= right
	}
	return nil
}

func NewResample() *Resample { return &Resample{} }

func (*Resample) Kind() Kind { return KindResample }

func (r *Resample) ChangeState(t *Transition) error {
	if t.To == StateReady {
		r.last = nil
	}
	return nil
}

func (r *Resample) Process(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	if len(in) == 0 || in[0].Channels == 0 {
		silence(out, 2, ctx.Frames)
		return nil
	}
	src := in[0]
	ch := src.Channels
	n := src.Frames()
	if n == ctx.Frames {
		passThrough(ctx, in, out)
		out.SampleRate = 0
		return nil
	}
	resize(out, ch, ctx.Frames)
	if n == 0 {
		clear(out.Data)
		return nil
	}
	if len(r.last) != ch {
		r.last = make([]float32, ch)
		copy(r.last, src.Data[:ch])
	}
	// linear interpolation across the block, starting from the last frame of
	// the previous block so that consecutive blocks join without a step
	step := float64(n) / float64(ctx.Frames)
	for i := 0; i < ctx.Frames; i++ {
		pos := float64(i+1)*step - 1
		j := int(math.Floor(pos))
		frac := float32(pos - float64(j))
		for c := 0; c < ch; c++ {
			a := r.last[c]
			if j >= 0 {
				a = src.Data[j*ch+c]
			}
			b := src.Data[min(j+1, n-1)*ch+c]
			out.Data[i*ch+c] = a + (b-a)*frac
		}
	}
	copy(r.last, src.Data[(n-1)*ch:])
	return nil
}

func (Sink) Kind() Kind { return KindSink }

func (Sink) Process(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	forceStereo(ctx, in, out)
	return nil
}

func NewClick(bpm float64) *Click { return &Click{bpm: bpm} }

func (*Click) Kind() Kind { return KindSource }

func (c *Click) SetTempo(bpm float64) {
	c.mu.Lock()
	c.bpm = bpm
	c.mu.Unlock()
}

// SetVolume sets the click volume in [0,1]. The output gain is twice the
// volume, and volumes below 0.01 mute the click.
func (c *Click) SetVolume(v float64) {
	c.mu.Lock()
	c.volume = v
	c.mu.Unlock()
}

func (c *Click) Volume() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.volume
}

func (c *Click) Process(ctx *Context, _ []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	silence(out, 2, ctx.Frames)
	c.mu.Lock()
	bpm, volume := c.bpm, c.volume
	c.mu.Unlock()
	if volume < 0.01 || bpm <= 0 {
		return nil
	}
	gain := volume * 2
	rate := float64(ctx.SampleRate)
	for i := 0; i < ctx.Frames; i++ {
		t := float64(ctx.Position+int64(i)) / rate
		env := ClickLevel(bpm, t)
		if env == 0 {
			continue
		}
		s := float32(gain * env * math.Sin(2*math.Pi*clickFrequency*t))
		out.Data[2*i] = s
		out.Data[2*i+1] = s
	}
	return nil
}

// ClickLevel returns the envelope of the click at time t for the given tempo,
// in [0,1]. It is zero before the first beat after the start of the
// timeline.
func ClickLevel(bpm, t float64) float64 {
	if bpm <= 0 {
		return 0
	}
	interval := 60 / bpm
	beat := math.Round(t / interval)
	if beat < 1 {
		return 0
	}
	d := math.Abs(t - beat*interval)
	if d >= clickLength {
		return 0
	}
	return 1 - d/clickLength
}

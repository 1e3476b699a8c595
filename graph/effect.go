package graph

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sync"

	"github.com/jokosher/jokosher"
	"github.com/viterin/vek/vek32"
)

type (
	// Effect is a processor with a named property bag, applied in the effect
	// chain of an instrument.
	Effect interface {
		Processor
		Name() string
		Properties() map[string]any
		SetProperty(key string, value any) error
	}

	// EffectFactory creates an effect with default properties.
	EffectFactory func() Effect

	// Amplify multiplies the signal by its "amplification" property.
	Amplify struct {
		mu            sync.Mutex
		amplification float64
	}

	// Echo mixes a delayed copy of the signal back in. "delay" is in seconds,
	// "intensity" is the level of the delayed copy and "feedback" the amount
	// of the delayed copy fed back into the delay line.
	Echo struct {
		mu        sync.Mutex
		delay     float64
		intensity float64
		feedback  float64

		line []float32
		pos  int
	}

	// Lowpass is a one pole low pass filter with its "cutoff" in Hz.
	Lowpass struct {
		mu     sync.Mutex
		cutoff float64
		state  []float32
	}
)

const maxEchoDelay = 2.0

var ErrInvalidProperty = errors.New("invalid effect property")

var effects = map[string]EffectFactory{
	"amplify": func() Effect { return &Amplify{amplification: 1} },
	"echo":    func() Effect { return &Echo{delay: 0.25, intensity: 0.5} },
	"lowpass": func() Effect { return &Lowpass{cutoff: 2000} },
}

// NewEffect creates the effect registered under name.
func NewEffect(name string) (Effect, error) {
	f, ok := effects[name]
	if !ok {
		return nil, &jokosher.UnknownEffectError{Name: name}
	}
	return f(), nil
}

// EffectNames returns the registered effect names in sorted order.
func EffectNames() []string {
	return slices.Sorted(maps.Keys(effects))
}

// ApplyProperties sets every property of props on e, stopping at the first
// error.
func ApplyProperties(e Effect, props map[string]any) error {
	for _, k := range slices.Sorted(maps.Keys(props)) {
		if err := e.SetProperty(k, props[k]); err != nil {
			return err
		}
	}
	return nil
}

func floatProperty(name, key string, value any, lo, hi float64) (float64, error) {
	var f float64
	switch v := value.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	default:
		return 0, fmt.Errorf("%s.%s: %w: %v is %T, want a number", name, key, ErrInvalidProperty, value, value)
	}
	if math.IsNaN(f) || f < lo || f > hi {
		return 0, fmt.Errorf("%s.%s: %w: %v outside [%v, %v]", name, key, ErrInvalidProperty, f, lo, hi)
	}
	return f, nil
}

func unknownProperty(name, key string) error {
	return fmt.Errorf("%s.%s: %w: no such property", name, key, ErrInvalidProperty)
}

func (*Amplify) Kind() Kind   { return KindEffect }
func (*Amplify) Name() string { return "amplify" }

func (a *Amplify) Properties() map[string]any {
	a.mu.Lock()
	defer a.mu.Unlock()
	return map[string]any{"amplification": a.amplification}
}

func (a *Amplify) SetProperty(key string, value any) error {
	if key != "amplification" {
		return unknownProperty(a.Name(), key)
	}
	f, err := floatProperty(a.Name(), key, value, 0, 100)
	if err != nil {
		return err
	}
	a.mu.Lock()
	a.amplification = f
	a.mu.Unlock()
	return nil
}

func (a *Amplify) Process(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	passThrough(ctx, in, out)
	a.mu.Lock()
	g := float32(a.amplification)
	a.mu.Unlock()
	vek32.MulNumber_Inplace(out.Data, g)
	return nil
}

func (*Echo) Kind() Kind   { return KindEffect }
func (*Echo) Name() string { return "echo" }

func (e *Echo) Properties() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	return map[string]any{"delay": e.delay, "intensity": e.intensity, "feedback": e.feedback}
}

func (e *Echo) SetProperty(key string, value any) error {
	hi := 1.0
	switch key {
	case "delay":
		hi = maxEchoDelay
	case "intensity", "feedback":
	default:
		return unknownProperty(e.Name(), key)
	}
	f, err := floatProperty(e.Name(), key, value, 0, hi)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	switch key {
	case "delay":
		e.delay = f
		e.line = nil
	case "intensity":
		e.intensity = f
	case "feedback":
		e.feedback = f
	}
	return nil
}

func (e *Echo) ChangeState(t *Transition) error {
	if t.To == StateReady {
		e.mu.Lock()
		e.line, e.pos = nil, 0
		e.mu.Unlock()
	}
	return nil
}

func (e *Echo) Process(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	passThrough(ctx, in, out)
	e.mu.Lock()
	defer e.mu.Unlock()
	ch := out.Channels
	n := int(e.delay*float64(ctx.SampleRate)) * ch
	if n == 0 {
		return nil
	}
	if len(e.line) != n {
		e.line, e.pos = make([]float32, n), 0
	}
	intensity, feedback := float32(e.intensity), float32(e.feedback)
	for i, x := range out.Data {
		d := e.line[e.pos]
		out.Data[i] = x + intensity*d
		e.line[e.pos] = x + feedback*d
		e.pos = (e.pos + 1) % n
	}
	return nil
}

func (*Lowpass) Kind() Kind   { return KindEffect }
func (*Lowpass) Name() string { return "lowpass" }

func (l *Lowpass) Properties() map[string]any {
	l.mu.Lock()
	defer l.mu.Unlock()
	return map[string]any{"cutoff": l.cutoff}
}

func (l *Lowpass) SetProperty(key string, value any) error {
	if key != "cutoff" {
		return unknownProperty(l.Name(), key)
	}
	f, err := floatProperty(l.Name(), key, value, 1, 100000)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.cutoff = f
	l.mu.Unlock()
	return nil
}

func (l *Lowpass) ChangeState(t *Transition) error {
	if t.To == StateReady {
		l.mu.Lock()
		l.state = nil
		l.mu.Unlock()
	}
	return nil
}

func (l *Lowpass) Process(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	passThrough(ctx, in, out)
	l.mu.Lock()
	defer l.mu.Unlock()
	ch := out.Channels
	if len(l.state) != ch {
		l.state = make([]float32, ch)
	}
	rc := 1 / (2 * math.Pi * l.cutoff)
	dt := 1 / float64(ctx.SampleRate)
	alpha := float32(dt / (rc + dt))
	for i, x := range out.Data {
		c := i % ch
		l.state[c] += alpha * (x - l.state[c])
		out.Data[i] = l.state[c]
	}
	return nil
}

package graph

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/jokosher/jokosher"
)

type (
	// Pipeline is the top level of a graph. It owns a clock (the timeline
	// position in frames), a bus and a state, and renders blocks on demand:
	// Render is called by the realtime output, Pull by offline rendering.
	Pipeline struct {
		mu     sync.Mutex
		name   string
		rate   int
		logger *slog.Logger
		bus    *Bus

		elements  []*Element
		bins      []*Bin
		output    *Element
		terminals []*Element
		dirty     bool

		state    State
		pending  State
		tick     uint64
		position int64
		end      int64
		eos      bool
	}

	// Option configures a pipeline.
	Option func(p *Pipeline)
)

// WithLogger sets the logger used for graph changes.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithBus makes the pipeline post on b instead of a bus of its own.
func WithBus(b *Bus) Option {
	return func(p *Pipeline) { p.bus = b }
}

// NewPipeline returns an empty pipeline in the Null state running at rate
// frames per second.
func NewPipeline(name string, rate int, options ...Option) *Pipeline {
	p := &Pipeline{name: name, rate: rate, state: StateNull, pending: StateVoidPending}
	for _, o := range options {
		o(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.bus == nil {
		p.bus = NewBus(defaultBusCapacity)
	}
	return p
}

func (p *Pipeline) Name() string    { return p.name }
func (p *Pipeline) SampleRate() int { return p.rate }
func (p *Pipeline) Bus() *Bus       { return p.bus }

// Add puts top level elements into the pipeline.
func (p *Pipeline) Add(elements ...*Element) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range elements {
		if e.bin != nil || e.pipeline != nil {
			return fmt.Errorf("pipeline %s: element %s already has a parent", p.name, e.name)
		}
	}
	for _, e := range elements {
		e.pipeline = p
		p.elements = append(p.elements, e)
	}
	p.dirty = true
	return nil
}

// Remove takes a top level element out of the pipeline.
func (p *Pipeline) Remove(e *Element) error {
	var after []func()
	defer func() { runAll(after) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	i := slices.Index(p.elements, e)
	if i < 0 {
		return fmt.Errorf("pipeline %s: element %s is not in the pipeline", p.name, e.name)
	}
	unlinkAllLocked(e)
	p.elements = slices.Delete(p.elements, i, i+1)
	e.pipeline = nil
	if p.output == e {
		p.output = nil
	}
	e.setStateLocked(StateNull, &after)
	p.dirty = true
	return nil
}

// SetOutput chooses the sink whose output Render and Pull return.
func (p *Pipeline) SetOutput(e *Element) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.output = e
	p.dirty = true
}

// AddBin puts a bin into the pipeline. The bin keeps its own state; use
// MatchState to bring it in line with the pipeline.
func (p *Pipeline) AddBin(b *Bin) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if b.pipeline != nil {
		if b.pipeline == p {
			return nil
		}
		return fmt.Errorf("bin %s is in pipeline %s", b.name, b.pipeline.name)
	}
	b.pipeline = p
	p.bins = append(p.bins, b)
	p.dirty = true
	p.logger.Debug("bin added", "pipeline", p.name, "bin", b.name)
	return nil
}

// RemoveBin unlinks a bin from the rest of the pipeline, sets it to Null and
// takes it out. When RemoveBin returns, nothing in the pipeline pulls from
// the bin any more.
func (p *Pipeline) RemoveBin(b *Bin) error {
	var after []func()
	defer func() { runAll(after) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	i := slices.Index(p.bins, b)
	if i < 0 {
		return fmt.Errorf("pipeline %s: bin %s is not in the pipeline", p.name, b.name)
	}
	b.unlinkExternalLocked()
	b.setStateLocked(StateNull, &after)
	b.pipeline = nil
	p.bins = slices.Delete(p.bins, i, i+1)
	p.dirty = true
	p.logger.Debug("bin removed", "pipeline", p.name, "bin", b.name)
	return nil
}

// HasBin reports whether b is in the pipeline.
func (p *Pipeline) HasBin(b *Bin) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return b.pipeline == p
}

// Bins returns the bins of the pipeline.
func (p *Pipeline) Bins() []*Bin {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.bins)
}

// State returns the current state and the state the pipeline is moving to,
// which is StateVoidPending when no change is in progress.
func (p *Pipeline) State() (current, pending State) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state, p.pending
}

// MatchState brings b to the state the pipeline is in or, while a state
// change is in progress, to the state the pipeline is going to.
func (p *Pipeline) MatchState(b *Bin) error {
	current, pending := p.State()
	target := current
	if pending != StateVoidPending {
		target = pending
	}
	return b.SetState(target)
}

// SetState moves the pipeline and everything in it to s. Going up to Paused
// and going down happen before SetState returns. The final step from Paused
// to Playing is completed by the next rendered block, so the clock only
// starts once the output is actually pulling audio.
func (p *Pipeline) SetState(s State) error {
	if s == StateVoidPending {
		return nil
	}
	var after []func()
	defer func() { runAll(after) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setStateLocked(s, &after)
}

func (p *Pipeline) setStateLocked(s State, after *[]func()) error {
	if s == StatePlaying {
		if p.state == StatePlaying {
			return nil
		}
		if err := p.stepLocked(StatePaused, StatePlaying, after); err != nil {
			p.pending = StateVoidPending
			return err
		}
		p.pending = StatePlaying
		return nil
	}
	p.pending = StateVoidPending
	return p.stepLocked(s, StateVoidPending, after)
}

func (p *Pipeline) stepLocked(s, pending State, after *[]func()) error {
	for p.state != s {
		next := p.state + 1
		if s < p.state {
			next = p.state - 1
		}
		order := topoOrder(p.allElementsLocked())
		if next < p.state {
			slices.Reverse(order)
		}
		var first error
		for _, e := range order {
			if err := e.setStateLocked(next, after); err != nil && first == nil {
				first = err
			}
		}
		for _, b := range p.bins {
			b.state = next
		}
		if first != nil && next > p.state {
			p.logger.Warn("state change failed", "pipeline", p.name, "to", next, "err", first)
			p.bus.Post(&ErrorMessage{Domain: DomainCore, Code: CodeStateChange, Err: first})
			return first
		}
		old := p.state
		p.state = next
		if next <= StateReady {
			p.eos = false
		}
		stepPending := pending
		if next != s && pending == StateVoidPending {
			stepPending = s
		}
		p.logger.Debug("state changed", "pipeline", p.name, "from", old, "to", next)
		p.bus.Post(&StateChangedMessage{Old: old, New: next, Pending: stepPending})
	}
	return nil
}

func (p *Pipeline) completePendingLocked(after *[]func()) {
	if p.pending != StatePlaying || p.state != StatePaused {
		return
	}
	for _, e := range p.allElementsLocked() {
		e.setStateLocked(StatePlaying, after)
	}
	for _, b := range p.bins {
		b.state = StatePlaying
	}
	p.state, p.pending = StatePlaying, StateVoidPending
	p.logger.Debug("state changed", "pipeline", p.name, "from", StatePaused, "to", StatePlaying)
	p.bus.Post(&StateChangedMessage{Old: StatePaused, New: StatePlaying, Pending: StateVoidPending})
}

func (p *Pipeline) allElementsLocked() []*Element {
	ret := slices.Clone(p.elements)
	for _, b := range p.bins {
		ret = append(ret, b.elements...)
	}
	return ret
}

// Seek moves the clock to t seconds.
func (p *Pipeline) Seek(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = int64(max(0, t) * float64(p.rate))
	p.eos = p.end > 0 && p.position >= p.end
}

// Position returns the clock in seconds.
func (p *Pipeline) Position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return float64(p.position) / float64(p.rate)
}

// SetEnd sets the time at which the pipeline posts end-of-stream. Zero means
// the stream never ends.
func (p *Pipeline) SetEnd(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.end = int64(max(0, t) * float64(p.rate))
	p.eos = p.end > 0 && p.position >= p.end
}

// Render fills buf with the next block of interleaved stereo audio. It
// implements jokosher.Renderer. Outside the Playing state it renders
// silence and does not advance the clock.
func (p *Pipeline) Render(buf []float32) {
	var after []func()
	defer func() { runAll(after) }()
	p.mu.Lock()
	defer p.mu.Unlock()
	p.completePendingLocked(&after)
	if p.state != StatePlaying {
		clear(buf)
		return
	}
	copyStereo(buf, p.processLocked(len(buf)/2))
}

// Pull renders frames frames and returns a copy of the output, for offline
// rendering.
func (p *Pipeline) Pull(frames int) jokosher.AudioBuffer {
	ret := jokosher.NewAudioBuffer(2, p.rate, frames)
	p.Render(ret.Data)
	return ret
}

func (p *Pipeline) processLocked(frames int) jokosher.AudioBuffer {
	if p.dirty {
		p.terminals = p.terminals[:0]
		for _, e := range p.allElementsLocked() {
			if e.Kind().terminal() {
				p.terminals = append(p.terminals, e)
			}
		}
		p.dirty = false
	}
	p.tick++
	ctx := &Context{Position: p.position, Frames: frames, SampleRate: p.rate, tick: p.tick, pipeline: p}
	for _, e := range p.terminals {
		e.pull(ctx)
	}
	var out jokosher.AudioBuffer
	if p.output != nil && p.output.tick == p.tick {
		out = p.output.out
	}
	p.position += int64(frames)
	p.bus.Post(&PositionMessage{Position: float64(p.position) / float64(p.rate)})
	if p.end > 0 && p.position >= p.end && !p.eos {
		p.eos = true
		p.bus.Post(&EOSMessage{})
	}
	return out
}

func copyStereo(dst []float32, src jokosher.AudioBuffer) {
	switch {
	case src.Channels == 2 && len(src.Data) >= len(dst):
		copy(dst, src.Data)
	case src.Channels > 0:
		st := src.Stereo()
		n := copy(dst, st.Data)
		clear(dst[n:])
	default:
		clear(dst)
	}
}

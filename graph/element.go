// Package graph is a small typed media graph that renders the timeline.
//
// A graph is made of Elements, each wrapping a Processor of one Kind, joined
// by links. Elements are grouped into Bins and Bins are added to a Pipeline.
// The pipeline renders one block at a time by pulling audio from its
// terminal elements (the output sink and any encoders); every element
// pulls its inputs first and caches its output for the block, so an element
// feeding several others is processed once.
//
// Structural changes (add, remove, link, unlink, state changes) take the
// pipeline lock, so they happen between blocks and never while a block is
// being rendered. Asynchronous notifications are posted on the pipeline's
// Bus and handled by its owner on the control goroutine.
package graph

import (
	"errors"
	"fmt"

	"github.com/jokosher/jokosher"
)

type (
	// Processor is the behaviour of an element. Process is called on the
	// rendering goroutine with the pulled outputs of the element's input
	// links and must write ctx.Frames frames into out.
	Processor interface {
		Kind() Kind
		Process(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error
	}

	// StateChanger is implemented by processors that hold resources. It is
	// called for every single step between two states.
	StateChanger interface {
		ChangeState(t *Transition) error
	}

	// Channeler is implemented by processors that know how many channels
	// they produce once they are Paused.
	Channeler interface {
		Channels() int
	}

	// Element is a node of the graph.
	Element struct {
		name     string
		proc     Processor
		state    State
		bin      *Bin
		pipeline *Pipeline
		inputs   []*link
		outputs  []*link

		tick uint64
		out  jokosher.AudioBuffer
		ins  []jokosher.AudioBuffer
		err  error
	}

	link struct {
		src, dst *Element
		pad      int // channel of src to take, or -1 for all of it
		buf      jokosher.AudioBuffer
	}

	// Context describes the block being rendered.
	Context struct {
		Position   int64 // frames from the start of the timeline
		Frames     int
		SampleRate int
		Element    *Element

		tick     uint64
		pipeline *Pipeline
	}

	// Transition is one state step of an element.
	Transition struct {
		Element  *Element
		From, To State
		after    *[]func()
	}
)

var (
	ErrCycle        = errors.New("link would create a cycle")
	ErrNotLinked    = errors.New("elements are not linked")
	ErrForeignGraph = errors.New("elements belong to different pipelines")
)

// NewElement wraps a processor into an element.
func NewElement(name string, p Processor) *Element {
	return &Element{name: name, proc: p, state: StateNull}
}

func (e *Element) Name() string         { return e.name }
func (e *Element) Kind() Kind           { return e.proc.Kind() }
func (e *Element) Processor() Processor { return e.proc }
func (e *Element) Bin() *Bin            { return e.bin }

// State returns the current state of the element.
func (e *Element) State() State {
	if p := e.owner(); p != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
	}
	return e.state
}

// Upstream returns the elements linked into e, in link order.
func (e *Element) Upstream() []*Element {
	ret := make([]*Element, len(e.inputs))
	for i, l := range e.inputs {
		ret[i] = l.src
	}
	return ret
}

// Downstream returns the elements e is linked into.
func (e *Element) Downstream() []*Element {
	ret := make([]*Element, len(e.outputs))
	for i, l := range e.outputs {
		ret[i] = l.dst
	}
	return ret
}

// Linked reports whether e has any output link.
func (e *Element) Linked() bool {
	if p := e.owner(); p != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
	}
	return len(e.outputs) > 0
}

func (e *Element) owner() *Pipeline {
	if e.pipeline != nil {
		return e.pipeline
	}
	if e.bin != nil {
		return e.bin.pipeline
	}
	return nil
}

// Link connects the output of src into dst.
func Link(src, dst *Element) error {
	return LinkPad(src, -1, dst)
}

// LinkPad connects channel pad of src's output into dst as a mono stream. A
// negative pad links the complete output.
func LinkPad(src *Element, pad int, dst *Element) error {
	p, err := sharedOwner(src, dst)
	if err != nil {
		return err
	}
	if p != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.dirty = true
	}
	return linkLocked(src, pad, dst)
}

func linkLocked(src *Element, pad int, dst *Element) error {
	if src == dst || reaches(src, dst) {
		return fmt.Errorf("link %s -> %s: %w", src.name, dst.name, ErrCycle)
	}
	l := &link{src: src, dst: dst, pad: pad}
	src.outputs = append(src.outputs, l)
	dst.inputs = append(dst.inputs, l)
	return nil
}

// reaches reports whether to is upstream of from, that is whether linking
// from -> to would close a loop.
func reaches(from, to *Element) bool {
	for _, l := range from.inputs {
		if l.src == to || reaches(l.src, to) {
			return true
		}
	}
	return false
}

// Unlink removes the links from src into dst.
func Unlink(src, dst *Element) error {
	p, err := sharedOwner(src, dst)
	if err != nil {
		return err
	}
	if p != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.dirty = true
	}
	if !unlinkLocked(src, dst) {
		return fmt.Errorf("unlink %s -> %s: %w", src.name, dst.name, ErrNotLinked)
	}
	return nil
}

func unlinkLocked(src, dst *Element) bool {
	found := false
	outputs := src.outputs[:0]
	for _, l := range src.outputs {
		if l.dst == dst {
			found = true
			continue
		}
		outputs = append(outputs, l)
	}
	src.outputs = outputs
	inputs := dst.inputs[:0]
	for _, l := range dst.inputs {
		if l.src == src {
			continue
		}
		inputs = append(inputs, l)
	}
	dst.inputs = inputs
	return found
}

// unlinkAllLocked removes every link of e.
func unlinkAllLocked(e *Element) {
	for len(e.inputs) > 0 {
		unlinkLocked(e.inputs[0].src, e)
	}
	for len(e.outputs) > 0 {
		unlinkLocked(e, e.outputs[0].dst)
	}
}

func sharedOwner(a, b *Element) (*Pipeline, error) {
	pa, pb := a.owner(), b.owner()
	if pa != nil && pb != nil && pa != pb {
		return nil, ErrForeignGraph
	}
	if pa != nil {
		return pa, nil
	}
	return pb, nil
}

// setStateLocked steps e one state at a time towards s.
func (e *Element) setStateLocked(s State, after *[]func()) error {
	for e.state != s {
		next := e.state + 1
		if s < e.state {
			next = e.state - 1
		}
		if sc, ok := e.proc.(StateChanger); ok {
			t := &Transition{Element: e, From: e.state, To: next, after: after}
			if err := sc.ChangeState(t); err != nil && next > e.state {
				return fmt.Errorf("%s: %v -> %v: %w", e.name, e.state, next, err)
			}
		}
		e.state = next
	}
	if s <= StateReady {
		e.tick = 0
		e.err = nil
	}
	return nil
}

// pull renders the element for the block described by ctx.
func (e *Element) pull(ctx *Context) jokosher.AudioBuffer {
	if e.tick == ctx.tick {
		return e.out
	}
	e.tick = ctx.tick
	e.ins = e.ins[:0]
	for _, l := range e.inputs {
		buf := l.src.pull(ctx)
		if l.pad >= 0 {
			l.buf.Channels = 1
			l.buf.SampleRate = buf.SampleRate
			l.buf.Data = buf.Channel(l.pad, l.buf.Data)
			buf = l.buf
		}
		e.ins = append(e.ins, buf)
	}
	if e.state < StatePaused {
		silence(&e.out, 2, ctx.Frames)
		return e.out
	}
	ctx.Element = e
	if err := e.proc.Process(ctx, e.ins, &e.out); err != nil && e.err == nil {
		e.err = err
		ctx.post(&ErrorMessage{Source: e, Domain: DomainStream, Code: CodeFailed, Err: err})
	}
	return e.out
}

// After schedules f to run once the state change that t belongs to has
// completed and the pipeline lock has been released. Callbacks may change
// the graph.
func (t *Transition) After(f func()) {
	*t.after = append(*t.after, f)
}

// Time returns the timeline position of the start of the block in seconds.
func (c *Context) Time() float64 {
	return float64(c.Position) / float64(c.SampleRate)
}

func (c *Context) post(m Message) {
	if c.pipeline != nil {
		c.pipeline.bus.Post(m)
	}
}

// Post sends a message on the bus of the pipeline being rendered.
func (c *Context) Post(m Message) {
	c.post(m)
}

// silence resizes buf to frames frames of channels channels, all zero.
func silence(buf *jokosher.AudioBuffer, channels, frames int) {
	resize(buf, channels, frames)
	clear(buf.Data)
}

// resize sets the layout of buf, reusing its memory when possible. The
// contents are undefined.
func resize(buf *jokosher.AudioBuffer, channels, frames int) {
	n := channels * frames
	if cap(buf.Data) < n {
		buf.Data = make([]float32, n)
	}
	buf.Data = buf.Data[:n]
	buf.Channels = channels
	buf.SampleRate = 0
}

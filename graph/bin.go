package graph

import (
	"fmt"
	"slices"
)

// Bin is a named group of elements that is added to and removed from a
// pipeline as a unit. Its sink and src ghost elements are where links from
// and to the outside attach.
type Bin struct {
	name     string
	elements []*Element
	sink     *Element
	src      *Element
	pipeline *Pipeline
	state    State
}

// NewBin returns an empty bin in the Null state.
func NewBin(name string) *Bin {
	return &Bin{name: name, state: StateNull}
}

func (b *Bin) Name() string { return b.name }

// Pipeline returns the pipeline the bin is in, or nil.
func (b *Bin) Pipeline() *Pipeline {
	return b.pipeline
}

// Sink returns the element that receives links from outside the bin.
func (b *Bin) Sink() *Element { return b.sink }

// Src returns the element whose output leaves the bin.
func (b *Bin) Src() *Element { return b.src }

// SetGhosts sets the entry and exit elements of the bin. Either may be nil
// for bins that only produce or only consume.
func (b *Bin) SetGhosts(sink, src *Element) {
	b.sink, b.src = sink, src
}

func (b *Bin) lock() func() {
	if b.pipeline == nil {
		return func() {}
	}
	b.pipeline.mu.Lock()
	b.pipeline.dirty = true
	return b.pipeline.mu.Unlock
}

// Add puts elements into the bin. An element can be in one bin only.
func (b *Bin) Add(elements ...*Element) error {
	defer b.lock()()
	for _, e := range elements {
		if e.bin != nil || e.pipeline != nil {
			return fmt.Errorf("bin %s: element %s already has a parent", b.name, e.name)
		}
	}
	for _, e := range elements {
		e.bin = b
		b.elements = append(b.elements, e)
	}
	return nil
}

// Remove takes an element out of the bin, unlinking it from everything and
// setting it to Null.
func (b *Bin) Remove(e *Element) error {
	unlock := b.lock()
	i := slices.Index(b.elements, e)
	if i < 0 {
		unlock()
		return fmt.Errorf("bin %s: element %s is not in the bin", b.name, e.name)
	}
	unlinkAllLocked(e)
	b.elements = slices.Delete(b.elements, i, i+1)
	e.bin = nil
	if b.sink == e {
		b.sink = nil
	}
	if b.src == e {
		b.src = nil
	}
	var after []func()
	e.setStateLocked(StateNull, &after)
	unlock()
	runAll(after)
	return nil
}

// Chain adds the elements that are not yet in the bin and links them one
// after another.
func (b *Bin) Chain(elements ...*Element) error {
	for _, e := range elements {
		if e.bin != b {
			if err := b.Add(e); err != nil {
				return err
			}
		}
	}
	for i := 1; i < len(elements); i++ {
		if err := Link(elements[i-1], elements[i]); err != nil {
			return err
		}
	}
	return nil
}

// Elements returns the elements of the bin in insertion order.
func (b *Bin) Elements() []*Element {
	defer b.lock()()
	return slices.Clone(b.elements)
}

// Contains reports whether e is in the bin.
func (b *Bin) Contains(e *Element) bool {
	return e.bin == b
}

// State returns the state of the bin.
func (b *Bin) State() State {
	defer b.lock()()
	return b.state
}

// SetState moves every element of the bin to s, upstream elements first
// when going up and downstream elements first when going down.
func (b *Bin) SetState(s State) error {
	if s == StateVoidPending {
		return nil
	}
	unlock := b.lock()
	var after []func()
	err := b.setStateLocked(s, &after)
	unlock()
	runAll(after)
	return err
}

func (b *Bin) setStateLocked(s State, after *[]func()) error {
	order := topoOrder(b.elements)
	if s < b.state {
		slices.Reverse(order)
	}
	var first error
	for _, e := range order {
		if err := e.setStateLocked(s, after); err != nil && first == nil {
			first = err
		}
	}
	b.state = s
	return first
}

// unlinkExternalLocked drops every link between the bin and elements outside
// it.
func (b *Bin) unlinkExternalLocked() {
	for _, e := range b.elements {
		for _, l := range slices.Clone(e.inputs) {
			if l.src.bin != b {
				unlinkLocked(l.src, e)
			}
		}
		for _, l := range slices.Clone(e.outputs) {
			if l.dst.bin != b {
				unlinkLocked(e, l.dst)
			}
		}
	}
}

// topoOrder sorts elements so that every element comes after the elements
// it pulls from.
func topoOrder(elements []*Element) []*Element {
	seen := make(map[*Element]bool, len(elements))
	in := make(map[*Element]bool, len(elements))
	for _, e := range elements {
		in[e] = true
	}
	ret := make([]*Element, 0, len(elements))
	var visit func(e *Element)
	visit = func(e *Element) {
		if seen[e] {
			return
		}
		seen[e] = true
		for _, l := range e.inputs {
			if in[l.src] {
				visit(l.src)
			}
		}
		ret = append(ret, e)
	}
	for _, e := range elements {
		visit(e)
	}
	return ret
}

func runAll(fs []func()) {
	for _, f := range fs {
		f()
	}
}

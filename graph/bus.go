package graph

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
)

type (
	// Message is something posted on a Bus.
	Message interface {
		Type() MessageType
	}

	MessageType int

	// Bus carries messages from the rendering goroutine to the owner of the
	// pipeline. Posting never blocks: state, end-of-stream and error messages
	// have a channel of their own so a flood of level and position messages
	// cannot push them out; when a channel is full the message is dropped.
	Bus struct {
		messages chan Message
		urgent   chan Message
		dropped  atomic.Int64
	}

	// LevelMessage is posted by meters once per interval. The values are in
	// decibels, one per channel.
	LevelMessage struct {
		Source *Element
		Time   float64 // timeline position of the end of the interval
		RMS    []float64
		Peak   []float64
		Decay  []float64
	}

	StateChangedMessage struct {
		Old, New, Pending State
	}

	// PositionMessage is posted after every rendered block.
	PositionMessage struct {
		Position float64
	}

	EOSMessage struct{}

	// ErrorMessage reports an element or pipeline failure.
	ErrorMessage struct {
		Source *Element
		Domain ErrorDomain
		Code   ErrorCode
		Err    error
		Debug  string
	}

	ErrorDomain int
	ErrorCode   int
)

const (
	MessageLevel MessageType = iota
	MessageStateChanged
	MessagePosition
	MessageEOS
	MessageError
)

const (
	DomainCore ErrorDomain = iota
	DomainResource
	DomainStream
)

const (
	CodeFailed ErrorCode = iota
	CodeStateChange
	CodeNotFound
	CodeOpenRead
	CodeOpenWrite
	CodeBusy
)

const (
	defaultBusCapacity = 1024
	urgentCapacity     = 64
)

// NewBus returns a bus buffering up to capacity level and position messages.
func NewBus(capacity int) *Bus {
	return &Bus{
		messages: make(chan Message, capacity),
		urgent:   make(chan Message, urgentCapacity),
	}
}

func (*LevelMessage) Type() MessageType        { return MessageLevel }
func (*StateChangedMessage) Type() MessageType { return MessageStateChanged }
func (*PositionMessage) Type() MessageType     { return MessagePosition }
func (*EOSMessage) Type() MessageType          { return MessageEOS }
func (*ErrorMessage) Type() MessageType        { return MessageError }

func (m *ErrorMessage) Error() string {
	name := "pipeline"
	if m.Source != nil {
		name = m.Source.Name()
	}
	return fmt.Sprintf("%s: %v (domain %v, code %v)", name, m.Err, m.Domain, m.Code)
}

func (m *ErrorMessage) Unwrap() error { return m.Err }

func (d ErrorDomain) String() string {
	switch d {
	case DomainCore:
		return "core"
	case DomainResource:
		return "resource"
	case DomainStream:
		return "stream"
	}
	return fmt.Sprintf("ErrorDomain(%d)", int(d))
}

func (c ErrorCode) String() string {
	switch c {
	case CodeFailed:
		return "failed"
	case CodeStateChange:
		return "state-change"
	case CodeNotFound:
		return "not-found"
	case CodeOpenRead:
		return "open-read"
	case CodeOpenWrite:
		return "open-write"
	case CodeBusy:
		return "busy"
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Post puts m on the bus without blocking. It reports false if the message
// had to be dropped.
func (b *Bus) Post(m Message) bool {
	c := b.messages
	switch m.Type() {
	case MessageStateChanged, MessageEOS, MessageError:
		c = b.urgent
	}
	if !TrySend(c, m) {
		b.dropped.Add(1)
		return false
	}
	return true
}

// Pop returns the next pending message, urgent ones first, without
// blocking.
func (b *Bus) Pop() (Message, bool) {
	select {
	case m := <-b.urgent:
		return m, true
	default:
	}
	select {
	case m := <-b.urgent:
		return m, true
	case m := <-b.messages:
		return m, true
	default:
		return nil, false
	}
}

// Wait blocks until a message arrives or ctx is done.
func (b *Bus) Wait(ctx context.Context) (Message, error) {
	if m, ok := b.Pop(); ok {
		return m, nil
	}
	select {
	case m := <-b.urgent:
		return m, nil
	case m := <-b.messages:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WaitFor waits up to t for the first message of type typ, discarding the
// others. It is meant for tests and command line tools that wait for one
// particular event.
func (b *Bus) WaitFor(typ MessageType, t time.Duration) (Message, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), t)
	defer cancel()
	for {
		m, err := b.Wait(ctx)
		if err != nil {
			return nil, false
		}
		if m.Type() == typ {
			return m, true
		}
	}
}

// Dropped returns the number of messages that did not fit on the bus.
func (b *Bus) Dropped() int64 { return b.dropped.Load() }

// TrySend is a helper function to send a value to a channel if it is not full.
// It is guaranteed to be non-blocking. Return true if the value was sent, false
// otherwise.
func TrySend[T any](c chan<- T, v T) bool {
	select {
	case c <- v:
	default:
		return false
	}
	return true
}

// TimeoutReceive is a helper function to block until a value is received from a
// channel, or timing out after t. ok will be false if the timeout occurred or
// if the channel is closed.
func TimeoutReceive[T any](c <-chan T, t time.Duration) (v T, ok bool) {
	select {
	case v, ok = <-c:
		return v, ok
	case <-time.After(t):
		return v, false
	}
}

package session

import "sync"

type (
	// Signal is a typed change notification. Handlers are called
	// synchronously, in the order they were connected, on the goroutine that
	// made the change.
	Signal[T any] struct {
		mu       sync.Mutex
		next     Handle
		handlers []handler[T]
	}

	// Handle identifies a connected handler, for Disconnect.
	Handle int

	handler[T any] struct {
		h Handle
		f func(T)
	}
)

// Connect registers f and returns a handle for disconnecting it.
func (s *Signal[T]) Connect(f func(T)) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	s.handlers = append(s.handlers, handler[T]{s.next, f})
	return s.next
}

// Disconnect removes the handler h. Unknown handles are ignored.
func (s *Signal[T]) Disconnect(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, x := range s.handlers {
		if x.h == h {
			s.handlers = append(s.handlers[:i:i], s.handlers[i+1:]...)
			return
		}
	}
}

// Emit calls every handler with v. Handlers may connect and disconnect
// while being called; the change applies from the next Emit.
func (s *Signal[T]) Emit(v T) {
	s.mu.Lock()
	hs := make([]handler[T], len(s.handlers))
	copy(hs, s.handlers)
	s.mu.Unlock()
	for _, x := range hs {
		x.f(v)
	}
}

// DisconnectAll removes every handler.
func (s *Signal[T]) DisconnectAll() {
	s.mu.Lock()
	s.handlers = nil
	s.mu.Unlock()
}

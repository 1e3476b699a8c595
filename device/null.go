package device

import (
	"errors"
	"sync"
	"time"

	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/graph"
)

// NullOutput is an audio output that pulls audio at the realtime rate and
// throws it away. It stands in for a sound card on headless machines.
type NullOutput struct {
	rate   int
	frames int

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var ErrAlreadyPlaying = errors.New("output is already playing")

// NewNullOutput returns an output that renders blocks of frames frames at
// rate frames per second.
func NewNullOutput(rate, frames int) *NullOutput {
	return &NullOutput{rate: rate, frames: frames}
}

func (n *NullOutput) Play(r jokosher.Renderer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.stop != nil {
		return ErrAlreadyPlaying
	}
	n.stop, n.done = make(chan struct{}), make(chan struct{})
	go n.run(r, n.stop, n.done)
	return nil
}

func (n *NullOutput) run(r jokosher.Renderer, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	period := time.Duration(float64(time.Second) * float64(n.frames) / float64(n.rate))
	t := time.NewTicker(period)
	defer t.Stop()
	buf := make([]float32, 2*n.frames)
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			r.Render(buf)
		}
	}
}

func (n *NullOutput) Stop() error {
	n.mu.Lock()
	stop, done := n.stop, n.done
	n.stop, n.done = nil, nil
	n.mu.Unlock()
	if stop == nil {
		return nil
	}
	close(stop)
	graph.TimeoutReceive[struct{}](done, 3*time.Second)
	return nil
}

func (n *NullOutput) Close() error { return n.Stop() }

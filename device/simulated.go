package device

import (
	"fmt"
	"math"
	"sync"

	"github.com/jokosher/jokosher/graph"
)

type (
	// Simulated is a capture backend without hardware. Every device
	// produces a deterministic test signal, so recordings can be made and
	// checked in tests and on machines without sound cards.
	Simulated struct {
		mu      sync.Mutex
		devices []Device
		signal  Signal
		open    map[string]int
	}

	// Signal returns the sample of channel ch at frame n of a simulated
	// device.
	Signal func(ch int, n int64) float32

	simStream struct {
		owner    *Simulated
		id       string
		channels int
		rate     int
		signal   Signal
		frame    int64
		closed   bool
	}
)

// SimulatedDefault is the default device of a Simulated backend made
// without devices.
const SimulatedDefault = "sim:0"

// NewSimulated returns a backend with the given devices, or with one stereo
// device when none are given. The signal is a quiet sine per channel,
// 220 Hz on the first and an octave higher on each next one.
func NewSimulated(devices ...Device) *Simulated {
	if len(devices) == 0 {
		devices = []Device{{ID: SimulatedDefault, Name: "Simulated Input", Channels: 2, SampleRate: 44100}}
	}
	return &Simulated{devices: devices, signal: Sine, open: map[string]int{}}
}

// Sine is the default Signal.
func Sine(ch int, n int64) float32 {
	f := 220 * math.Pow(2, float64(ch))
	return float32(0.25 * math.Sin(2*math.Pi*f*float64(n)/44100))
}

// SetSignal replaces the signal of every device.
func (s *Simulated) SetSignal(f Signal) {
	s.mu.Lock()
	s.signal = f
	s.mu.Unlock()
}

func (s *Simulated) Name() string { return "simulated" }

func (s *Simulated) CaptureDevices() ([]Device, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Device{}, s.devices...), nil
}

func (s *Simulated) DefaultDevice() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.devices[0].ID
}

// OpenStreams returns the number of streams currently open on device id.
func (s *Simulated) OpenStreams(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open[id]
}

func (s *Simulated) Open(id string, channels int) (graph.CaptureStream, error) {
	d, err := Lookup(s, id)
	if err != nil {
		return nil, err
	}
	if channels <= 0 || channels > d.Channels {
		return nil, fmt.Errorf("device %q offers %d channels, %d requested", id, d.Channels, channels)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.open[id]++
	return &simStream{owner: s, id: id, channels: channels, rate: d.SampleRate, signal: s.signal}, nil
}

func (st *simStream) Channels() int   { return st.channels }
func (st *simStream) SampleRate() int { return st.rate }

func (st *simStream) Read(buf []float32) (int, error) {
	if st.closed {
		return 0, fmt.Errorf("read from closed stream on %q", st.id)
	}
	frames := len(buf) / st.channels
	for i := 0; i < frames; i++ {
		for c := 0; c < st.channels; c++ {
			buf[i*st.channels+c] = st.signal(c, st.frame)
		}
		st.frame++
	}
	return frames, nil
}

func (st *simStream) Close() error {
	if st.closed {
		return nil
	}
	st.closed = true
	st.owner.mu.Lock()
	st.owner.open[st.id]--
	st.owner.mu.Unlock()
	return nil
}

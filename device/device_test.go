package device_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jokosher/jokosher/device"
)

func TestChannelsOfferedIsCapped(t *testing.T) {
	b := device.NewSimulated(
		device.Device{ID: "small", Channels: 2, SampleRate: 48000},
		device.Device{ID: "big", Channels: 32, SampleRate: 48000},
	)
	for id, want := range map[string]int{"small": 2, "big": 8} {
		got, err := device.ChannelsOffered(b, id)
		if err != nil {
			t.Fatalf("ChannelsOffered(%s): %v", id, err)
		}
		if got != want {
			t.Errorf("ChannelsOffered(%s) = %d, want %d", id, got, want)
		}
	}
	if _, err := device.ChannelsOffered(b, "missing"); !errors.Is(err, device.ErrNoSuchDevice) {
		t.Fatalf("got %v, want ErrNoSuchDevice", err)
	}
	if device.Resolve(b, "") != "small" || device.Resolve(b, "big") != "big" {
		t.Fatalf("Resolve does not map the empty id to the default device")
	}
}

func TestSimulatedStream(t *testing.T) {
	b := device.NewSimulated()
	b.SetSignal(func(ch int, n int64) float32 { return float32(100*ch) + float32(n) })
	s, err := b.Open(device.SimulatedDefault, 2)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if b.OpenStreams(device.SimulatedDefault) != 1 {
		t.Fatalf("stream not counted as open")
	}
	buf := make([]float32, 6)
	n, err := s.Read(buf)
	if err != nil || n != 3 {
		t.Fatalf("Read = %d, %v", n, err)
	}
	want := []float32{0, 100, 1, 101, 2, 102}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("buf = %v, want %v", buf, want)
		}
	}
	s.Close()
	s.Close()
	if b.OpenStreams(device.SimulatedDefault) != 0 {
		t.Fatalf("stream still counted as open after Close")
	}
	if _, err := b.Open(device.SimulatedDefault, 3); err == nil {
		t.Fatalf("opened 3 channels on a stereo device")
	}
}

func TestOpenBackend(t *testing.T) {
	if _, err := device.OpenBackend("simulated"); err != nil {
		t.Fatalf("OpenBackend(simulated): %v", err)
	}
	if _, err := device.OpenBackend("jack"); err == nil {
		t.Fatalf("OpenBackend(jack) should fail")
	}
}

type countingRenderer struct{ blocks atomic.Int32 }

func (c *countingRenderer) Render(buf []float32) { c.blocks.Add(1) }

func TestNullOutput(t *testing.T) {
	out := device.NewNullOutput(1000, 10)
	r := &countingRenderer{}
	if err := out.Play(r); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if err := out.Play(r); !errors.Is(err, device.ErrAlreadyPlaying) {
		t.Fatalf("second Play: got %v, want ErrAlreadyPlaying", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for r.blocks.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if err := out.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.blocks.Load() < 3 {
		t.Fatalf("rendered %d blocks in 2 s", r.blocks.Load())
	}
	n := r.blocks.Load()
	time.Sleep(30 * time.Millisecond)
	if r.blocks.Load() != n {
		t.Fatalf("output kept rendering after Close")
	}
}

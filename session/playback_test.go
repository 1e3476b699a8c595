package session_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jokosher/jokosher/decode"
	"github.com/jokosher/jokosher/session"
)

const blockFrames = 256

// render pulls n blocks through the pipeline the way an output would and
// hands the messages to the project.
func render(p *session.Project, n int) {
	buf := make([]float32, 2*blockFrames)
	for range n {
		p.Pipeline().Render(buf)
	}
	p.ProcessMessages()
}

func TestPlayPauseStop(t *testing.T) {
	p := newProject(t)
	instr := addInstrument(t, p, "Guitar")
	addLoadedEvent(t, instr, 0, 2)
	var states []session.AudioState
	p.AudioStateChanged.Connect(func(s session.AudioState) { states = append(states, s) })

	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	render(p, 10)
	pos := p.Transport().Position()
	if want := 10.0 * blockFrames / testRate; !near(pos, want) {
		t.Fatalf("position = %v, want %v", pos, want)
	}
	if err := p.Pause(); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	render(p, 5)
	if p.Transport().Position() != pos {
		t.Errorf("position moved while paused: %v", p.Transport().Position())
	}
	if err := p.Play(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	render(p, 2)
	if err := p.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if p.Transport().Position() <= pos {
		t.Errorf("stop did not keep the playhead: %v", p.Transport().Position())
	}
	want := []session.AudioState{session.AudioPlaying, session.AudioPaused, session.AudioPlaying, session.AudioStopped}
	if len(states) != len(want) {
		t.Fatalf("states = %v, want %v", states, want)
	}
	for k := range want {
		if states[k] != want[k] {
			t.Fatalf("states = %v, want %v", states, want)
		}
	}
}

func TestPlayStopsAtTheEnd(t *testing.T) {
	p := newProject(t)
	instr := addInstrument(t, p, "Guitar")
	addLoadedEvent(t, instr, 0, 0.1)
	if err := p.Play(); err != nil {
		t.Fatalf("Play: %v", err)
	}
	render(p, 5)
	if p.State() != session.AudioStopped {
		t.Fatalf("state = %v after the end, want stopped", p.State())
	}
	if !near(p.Transport().Position(), p.Length()) {
		t.Errorf("position = %v, want the end %v", p.Transport().Position(), p.Length())
	}
}

func TestSeekIsClamped(t *testing.T) {
	p := newProject(t)
	instr := addInstrument(t, p, "Guitar")
	addLoadedEvent(t, instr, 0, 1)
	p.Transport().SeekTo(5)
	if p.Transport().Position() != 1 {
		t.Errorf("position = %v, want 1", p.Transport().Position())
	}
	p.Transport().SeekTo(-5)
	if p.Transport().Position() != 0 {
		t.Errorf("position = %v, want 0", p.Transport().Position())
	}
}

func TestExport(t *testing.T) {
	p := newProject(t)
	instr := addInstrument(t, p, "Guitar")
	addLoadedEvent(t, instr, 0, 0.5)
	p.Transport().SeekTo(0.25)
	path := filepath.Join(t.TempDir(), "mix.wav")
	if err := p.Export(context.Background(), path, true); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if p.State() != session.AudioStopped {
		t.Errorf("state = %v after export", p.State())
	}
	if p.Transport().Position() != 0.25 {
		t.Errorf("export moved the playhead to %v", p.Transport().Position())
	}
	buf, err := decode.File(context.Background(), path)
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if buf.Channels != 2 || buf.Frames() != testRate/2 {
		t.Fatalf("export has %d channels and %d frames", buf.Channels, buf.Frames())
	}
	var loud bool
	for _, s := range buf.Data {
		if s > 0.01 {
			loud = true
			break
		}
	}
	if !loud {
		t.Errorf("export is silent")
	}
}

func TestExportErrors(t *testing.T) {
	p := newProject(t)
	instr := addInstrument(t, p, "Guitar")
	addLoadedEvent(t, instr, 0, 0.5)
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		path := filepath.Join(t.TempDir(), "mix.wav")
		if err := p.Export(ctx, path, false); !errors.Is(err, context.Canceled) {
			t.Fatalf("Export = %v, want context.Canceled", err)
		}
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			t.Errorf("cancelled export left a file: %v", err)
		}
		if p.State() != session.AudioStopped {
			t.Errorf("state = %v", p.State())
		}
	})
	t.Run("busy", func(t *testing.T) {
		if err := p.Play(); err != nil {
			t.Fatal(err)
		}
		defer p.Stop()
		if err := p.Export(context.Background(), filepath.Join(t.TempDir(), "mix.wav"), false); !errors.Is(err, session.ErrBusy) {
			t.Fatalf("Export while playing = %v, want ErrBusy", err)
		}
	})
}

func TestTransportStrings(t *testing.T) {
	p := newProject(t)
	instr := addInstrument(t, p, "Guitar")
	addLoadedEvent(t, instr, 0, 3)
	tr := p.Transport()
	if got := tr.String(); got != "00001:1:000" {
		t.Errorf("start = %q", got)
	}
	var moved int
	tr.PositionChanged.Connect(func(*session.Transport) { moved++ })
	tr.SeekTo(2.25)
	if moved != 1 {
		t.Errorf("position notified %d times", moved)
	}
	// 120 bpm: 4.5 beats, the second bar, halfway through its first beat
	if got := tr.String(); got != "00002:1:128" {
		t.Errorf("bars and beats = %q", got)
	}
	if err := tr.SetMode(2); err != nil {
		t.Fatal(err)
	}
	if got := tr.String(); got != "0:00:02:250" {
		t.Errorf("hours, minutes and seconds = %q", got)
	}
	if err := tr.SetMode(7); err == nil {
		t.Errorf("SetMode accepted an unknown mode")
	}
}

func TestCatalog(t *testing.T) {
	c := session.NewCatalog()
	e, ok := c.Lookup("acousticguitar")
	if !ok || e.Name == "" {
		t.Fatalf("Lookup(acousticguitar) = %+v, %v", e, ok)
	}
	if _, ok := c.Lookup("theremin"); ok {
		t.Errorf("found an unknown type")
	}
	c.Add(session.CatalogEntry{Type: "theremin"})
	if e, ok := c.Lookup("theremin"); !ok || e.Name != "Theremin" {
		t.Errorf("added entry = %+v", e)
	}
	total := 0
	for batch := range c.Batches(5) {
		if len(batch) == 0 || len(batch) > 5 {
			t.Errorf("batch of %d", len(batch))
		}
		total += len(batch)
	}
	if total != c.Len() {
		t.Errorf("batches hold %d entries, catalog %d", total, c.Len())
	}
}

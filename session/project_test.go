package session_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/config"
	"github.com/jokosher/jokosher/session"
)

const testRate = 8000

func testOptions(options ...session.Option) []session.Option {
	s := config.Default()
	s.General.SampleRate = testRate
	s.General.BufferSize = 256
	return append([]session.Option{
		session.WithSettings(s),
		session.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, options...)
}

func newProject(t *testing.T, options ...session.Option) *session.Project {
	t.Helper()
	p, err := session.Create("test", "tester", t.TempDir(), testOptions(options...)...)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	t.Cleanup(func() { p.Close() })
	return p
}

func addInstrument(t *testing.T, p *session.Project, name string) *session.Instrument {
	t.Helper()
	instr, err := p.AddInstrument(name, "guitar")
	if err != nil {
		t.Fatalf("AddInstrument: %v", err)
	}
	return instr
}

// writeWav writes a stereo file of constant samples at the test rate.
func writeWav(t *testing.T, name string, seconds float64, value float32) string {
	t.Helper()
	buf := jokosher.NewAudioBuffer(2, testRate, int(seconds*testRate))
	for i := range buf.Data {
		buf.Data[i] = value
	}
	data, err := jokosher.Wav(buf, false)
	if err != nil {
		t.Fatalf("Wav: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitLoaded(t *testing.T, p *session.Project) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.WaitLoaded(ctx); err != nil {
		t.Fatalf("WaitLoaded: %v", err)
	}
}

func addLoadedEvent(t *testing.T, instr *session.Instrument, start, seconds float64) *session.Event {
	t.Helper()
	ev, err := instr.AddEventFromFile(start, writeWav(t, "clip.wav", seconds, 0.25), "")
	if err != nil {
		t.Fatalf("AddEventFromFile: %v", err)
	}
	waitLoaded(t, instr.Project())
	return ev
}

func TestCreateLayout(t *testing.T) {
	p := newProject(t)
	if filepath.Base(p.File()) != "project.jokosher" {
		t.Errorf("project file is %s", p.File())
	}
	for _, d := range []string{p.AudioDir(), p.LevelsDir()} {
		if fi, err := os.Stat(d); err != nil || !fi.IsDir() {
			t.Errorf("missing folder %s: %v", d, err)
		}
	}
	if _, err := os.Stat(p.File()); err != nil {
		t.Errorf("new project was not saved: %v", err)
	}
	if p.State() != session.AudioStopped {
		t.Errorf("state = %v, want stopped", p.State())
	}
}

func TestCreateCollision(t *testing.T) {
	dir := t.TempDir()
	a, err := session.Create("a", "", dir, testOptions()...)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer a.Close()
	b, err := session.Create("b", "", dir, testOptions()...)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	defer b.Close()
	if filepath.Dir(a.File()) == filepath.Dir(b.File()) {
		t.Fatalf("two projects share the folder %s", filepath.Dir(a.File()))
	}
}

func TestCreateErrors(t *testing.T) {
	for _, tc := range []struct {
		location string
		reason   jokosher.CreateReason
	}{
		{"", jokosher.CreateInvalidLocation},
		{"http://example.com/projects", jokosher.CreateInvalidURI},
		{filepath.Join(t.TempDir(), "missing", "deeper"), jokosher.CreateUnwritable},
	} {
		t.Run(tc.location, func(t *testing.T) {
			_, err := session.Create("x", "", tc.location, testOptions()...)
			var cerr *jokosher.ProjectCreateError
			if !errors.As(err, &cerr) {
				t.Fatalf("got %v, want a ProjectCreateError", err)
			}
			if cerr.Reason != tc.reason {
				t.Errorf("reason = %v, want %v", cerr.Reason, tc.reason)
			}
		})
	}
}

func TestOpenErrors(t *testing.T) {
	garbage := filepath.Join(t.TempDir(), "garbage.jokosher")
	if err := os.WriteFile(garbage, []byte("this is not a project"), 0644); err != nil {
		t.Fatal(err)
	}
	for _, tc := range []struct {
		name   string
		uri    string
		reason jokosher.OpenReason
	}{
		{"scheme", "http://example.com/p.jokosher", jokosher.OpenBadScheme},
		{"missing", filepath.Join(t.TempDir(), "nothing.jokosher"), jokosher.OpenMissingFile},
		{"garbage", garbage, jokosher.OpenNotDecodable},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, err := session.Open(tc.uri, testOptions()...)
			var oerr *jokosher.ProjectOpenError
			if !errors.As(err, &oerr) {
				t.Fatalf("got %v, want a ProjectOpenError", err)
			}
			if oerr.Reason != tc.reason {
				t.Errorf("reason = %v, want %v", oerr.Reason, tc.reason)
			}
		})
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	p := newProject(t)
	p.SetName("Round trip")
	p.SetNotes("line one\n\tline two")
	p.SetBPM(90)
	p.SetVolume(0.75)
	guitar := addInstrument(t, p, "Guitar")
	bass := addInstrument(t, p, "Bass")
	gone := addInstrument(t, p, "Gone")
	bass.ToggleSolo()
	bass.SetPan(-0.5)
	guitar.SetInput("", 1)
	if err := guitar.AddEffect("echo"); err != nil {
		t.Fatalf("AddEffect: %v", err)
	}
	ev := addLoadedEvent(t, guitar, 1, 2)
	ev.SetFadePoint(0.5, 0.25)
	if _, err := ev.SplitAt(1); err != nil {
		t.Fatalf("SplitAt: %v", err)
	}
	if err := p.DeleteInstrument(gone.ID()); err != nil {
		t.Fatalf("DeleteInstrument: %v", err)
	}
	if err := p.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	q, err := session.Open(p.File(), testOptions()...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer q.Close()
	waitLoaded(t, q)

	want, got := p.Data(), q.Data()
	if got.Name != want.Name || got.Notes != want.Notes || got.BPM != want.BPM || got.Volume != want.Volume {
		t.Errorf("project fields differ:\n got %+v\nwant %+v", got, want)
	}
	if len(got.Instruments) != 2 || len(got.DeadInstruments) != 1 {
		t.Fatalf("got %d live and %d dead instruments", len(got.Instruments), len(got.DeadInstruments))
	}
	for k := range want.Instruments {
		wi, gi := want.Instruments[k], got.Instruments[k]
		if gi.ID != wi.ID || gi.Name != wi.Name || gi.Solo != wi.Solo || gi.Pan != wi.Pan || gi.InTrack != wi.InTrack || gi.Armed != wi.Armed {
			t.Errorf("instrument %d differs:\n got %+v\nwant %+v", k, gi, wi)
		}
		if len(gi.Effects) != len(wi.Effects) {
			t.Errorf("instrument %d has %d effects, want %d", k, len(gi.Effects), len(wi.Effects))
		}
		if len(gi.Events) != len(wi.Events) {
			t.Fatalf("instrument %d has %d events, want %d", k, len(gi.Events), len(wi.Events))
		}
		for j := range wi.Events {
			we, ge := wi.Events[j], gi.Events[j]
			if ge.ID != we.ID || ge.Start != we.Start || ge.Duration != we.Duration || ge.Offset != we.Offset || ge.File != we.File {
				t.Errorf("event %d differs:\n got %+v\nwant %+v", j, ge, we)
			}
			if len(ge.FadePoints) != len(we.FadePoints) {
				t.Errorf("event %d has %d fade points, want %d", j, len(ge.FadePoints), len(we.FadePoints))
			}
		}
	}
	if q.SoloCount() != 1 {
		t.Errorf("solo count = %d, want 1", q.SoloCount())
	}
	for _, instr := range q.Instruments() {
		if instr.EffectiveMute() != (instr.Name() != "Bass") {
			t.Errorf("%s: effective mute = %v", instr.Name(), instr.EffectiveMute())
		}
	}
}

func TestLevelsSurviveReopen(t *testing.T) {
	p := newProject(t)
	instr := addInstrument(t, p, "Guitar")
	ev := addLoadedEvent(t, instr, 0, 1)
	if len(ev.Levels()) == 0 {
		t.Fatalf("loaded event has no levels")
	}
	if err := p.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	q, err := session.Open(p.File(), testOptions()...)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer q.Close()
	waitLoaded(t, q)
	got := q.Instruments()[0].Events()[0]
	if len(got.Levels()) != len(ev.Levels()) {
		t.Errorf("reopened event has %d levels, want %d", len(got.Levels()), len(ev.Levels()))
	}
}

func TestCloseDeletesUnsavedCopies(t *testing.T) {
	p, err := session.Create("x", "", t.TempDir(), testOptions()...)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	instr := addInstrument(t, p, "Guitar")
	saved := addLoadedEvent(t, instr, 0, 0.5)
	if err := p.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	unsaved := addLoadedEvent(t, instr, 1, 0.5)
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(saved.Path()); err != nil {
		t.Errorf("saved copy was deleted: %v", err)
	}
	if _, err := os.Stat(unsaved.Path()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("unsaved copy was kept: %v", err)
	}
}

func TestIncrementalSave(t *testing.T) {
	p := newProject(t)
	saved := 0
	p.IncrementalSaved.Connect(func(*session.Project) { saved++ })
	if err := p.SaveIncremental(); err != nil {
		t.Fatalf("SaveIncremental: %v", err)
	}
	if saved != 1 {
		t.Errorf("incremental save notified %d times", saved)
	}
	if _, err := os.Stat(p.IncrementalPath()); err != nil {
		t.Fatalf("no incremental copy: %v", err)
	}
	if err := p.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(p.IncrementalPath()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("incremental copy survives a save: %v", err)
	}
}

func TestUniqueIDs(t *testing.T) {
	p := newProject(t)
	a := addInstrument(t, p, "a")
	b := addInstrument(t, p, "b")
	if err := p.DeleteInstrument(a.ID()); err != nil {
		t.Fatalf("DeleteInstrument: %v", err)
	}
	c := addInstrument(t, p, "c")
	for _, old := range []int{a.ID(), b.ID()} {
		if c.ID() == old {
			t.Fatalf("id %d handed out twice", old)
		}
	}
	if got := p.GenerateUniqueID(b.ID(), false); got == b.ID() {
		t.Errorf("GenerateUniqueID accepted the used id %d", got)
	}
	if got := p.GenerateUniqueID(100, true); got != 100 {
		t.Errorf("GenerateUniqueID(100) = %d, want 100", got)
	}
	if got := p.GenerateUniqueID(100, false); got == 100 {
		t.Errorf("reserved id 100 returned again")
	}
	if _, err := p.RestoreInstrument(a.ID()); err != nil {
		t.Fatalf("RestoreInstrument: %v", err)
	}
	if p.Instrument(a.ID()) != a {
		t.Errorf("restored instrument not found")
	}
}

func TestFirstInstrumentIsArmed(t *testing.T) {
	p := newProject(t)
	a := addInstrument(t, p, "a")
	b := addInstrument(t, p, "b")
	if !a.Armed() || b.Armed() {
		t.Errorf("armed = %v, %v; want only the first", a.Armed(), b.Armed())
	}
}

func TestSolo(t *testing.T) {
	p := newProject(t)
	instrs := []*session.Instrument{addInstrument(t, p, "a"), addInstrument(t, p, "b"), addInstrument(t, p, "c")}
	check := func(t *testing.T, wantMuted ...bool) {
		t.Helper()
		for k, instr := range instrs {
			if p.Instrument(instr.ID()) == nil {
				continue
			}
			if instr.EffectiveMute() != wantMuted[k] {
				t.Errorf("%s: effective mute = %v, want %v", instr.Name(), instr.EffectiveMute(), wantMuted[k])
			}
		}
	}
	t.Run("one solo", func(t *testing.T) {
		instrs[1].ToggleSolo()
		check(t, true, false, true)
		if p.SoloCount() != 1 {
			t.Errorf("solo count = %d", p.SoloCount())
		}
	})
	t.Run("mute beats solo", func(t *testing.T) {
		instrs[1].ToggleMute()
		check(t, true, true, true)
		instrs[1].ToggleMute()
	})
	t.Run("two solos", func(t *testing.T) {
		instrs[2].ToggleSolo()
		check(t, true, false, false)
	})
	t.Run("deleting a solo instrument", func(t *testing.T) {
		if err := p.DeleteInstrument(instrs[2].ID()); err != nil {
			t.Fatal(err)
		}
		if p.SoloCount() != 1 {
			t.Errorf("solo count = %d, want 1", p.SoloCount())
		}
		check(t, true, false, false)
	})
	t.Run("no solo", func(t *testing.T) {
		instrs[1].ToggleSolo()
		check(t, false, false, false)
		if p.SoloCount() != 0 {
			t.Errorf("solo count = %d", p.SoloCount())
		}
	})
}

func TestViewStartIsClamped(t *testing.T) {
	p := newProject(t)
	instr := addInstrument(t, p, "a")
	addLoadedEvent(t, instr, 0, 2)
	p.SetViewStart(5)
	if p.ViewStart() != 2 {
		t.Errorf("view start = %v, want 2", p.ViewStart())
	}
	p.SetViewStart(-1)
	if p.ViewStart() != 0 {
		t.Errorf("view start = %v, want 0", p.ViewStart())
	}
}

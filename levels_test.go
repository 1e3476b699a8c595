package jokosher_test

import (
	"bytes"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/jokosher/jokosher"
)

func sine(rate int, seconds, amp float64) jokosher.AudioBuffer {
	n := int(float64(rate) * seconds)
	buf := jokosher.NewAudioBuffer(2, rate, n)
	for i := 0; i < n; i++ {
		v := float32(amp * math.Sin(2*math.Pi*440*float64(i)/float64(rate)))
		buf.Data[2*i] = v
		buf.Data[2*i+1] = v
	}
	return buf
}

func TestLevelsFromBuffer(t *testing.T) {
	buf := sine(8000, 1, 1)
	levels := jokosher.LevelsFromBuffer(buf, jokosher.LevelInterval, 0)
	if len(levels) != 100 {
		t.Fatalf("got %d levels, want 100", len(levels))
	}
	if d := levels.Duration(); math.Abs(d-1) > 1e-9 {
		t.Fatalf("duration = %v, want 1", d)
	}
	// a full scale sine has RMS of -3 dB
	want := float32(jokosher.DbToLevel(-3.0103))
	for _, lv := range levels {
		if math.Abs(float64(lv.Value-want)) > 0.01 {
			t.Fatalf("level %v, want about %v", lv.Value, want)
		}
	}
	silent := jokosher.LevelsFromBuffer(jokosher.NewAudioBuffer(1, 8000, 800), jokosher.LevelInterval, 0)
	for _, lv := range silent {
		if lv.Value != 0 {
			t.Fatalf("silence should have level 0, got %v", lv.Value)
		}
	}
}

func TestLevelsSliceAndSplit(t *testing.T) {
	var l jokosher.LevelsList
	for i := 1; i <= 10; i++ {
		l = l.Append(float64(i)/10, float32(i)/10)
	}
	left, right := l.Split(0.45)
	if len(left) != 5 || left[len(left)-1].End != 450 {
		t.Errorf("left = %v", left)
	}
	if right.Duration() != 0.55 {
		t.Errorf("right duration = %v, want 0.55", right.Duration())
	}
	if got := right.At(0.01); got != 0.5 {
		t.Errorf("right.At(0.01) = %v, want 0.5", got)
	}
	if s := l.Slice(0.5, 0.2); s != nil {
		t.Errorf("reversed slice should be empty, got %v", s)
	}
}

func TestLevelsPeaks(t *testing.T) {
	var l jokosher.LevelsList
	for i := 1; i <= 10; i++ {
		l = l.Append(float64(i)/10, float32(i%3)/3)
	}
	p := l.Peaks(0, 1, 2)
	if len(p) != 2 {
		t.Fatalf("got %d buckets", len(p))
	}
	for _, v := range p {
		if v < 0.6 {
			t.Errorf("bucket peak %v too low", v)
		}
	}
}

func TestLevelsFileRoundTrip(t *testing.T) {
	l := jokosher.LevelsFromBuffer(sine(8000, 0.5, 0.3), jokosher.LevelInterval, 0)
	path := filepath.Join(t.TempDir(), "a.leveldata")
	if err := jokosher.SaveLevels(path, l); err != nil {
		t.Fatalf("SaveLevels: %v", err)
	}
	got, err := jokosher.LoadLevels(path)
	if err != nil {
		t.Fatalf("LoadLevels: %v", err)
	}
	if len(got) != len(l) {
		t.Fatalf("got %d entries, want %d", len(got), len(l))
	}
	for i := range l {
		if got[i] != l[i] {
			t.Fatalf("entry %d = %v, want %v", i, got[i], l[i])
		}
	}
	if _, err := jokosher.ReadLevels(bytes.NewReader([]byte("garbage"))); !errors.Is(err, jokosher.ErrCorruptLevels) {
		t.Fatalf("expected ErrCorruptLevels, got %v", err)
	}
}

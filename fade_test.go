package jokosher_test

import (
	"math"
	"testing"

	"github.com/jokosher/jokosher"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestFadeCurveLevelAt(t *testing.T) {
	var empty jokosher.FadeCurve
	if l := empty.LevelAt(3); l != 1 {
		t.Fatalf("empty curve level = %v, want 1", l)
	}
	c := jokosher.FadeCurve{}.Set(2, 0).Set(0, 1).Set(4, 0.5)
	tests := []struct {
		t, want float64
	}{
		{-1, 1},
		{0, 1},
		{1, 0.5},
		{2, 0},
		{3, 0.25},
		{4, 0.5},
		{10, 0.5},
	}
	for _, tt := range tests {
		if got := c.LevelAt(tt.t); !almostEqual(got, tt.want) {
			t.Errorf("LevelAt(%v) = %v, want %v", tt.t, got, tt.want)
		}
	}
}

func TestFadeCurveSetReplaces(t *testing.T) {
	c := jokosher.FadeCurve{}.Set(1, 0.2).Set(1, 0.7)
	if len(c) != 1 || c[0].Gain != 0.7 {
		t.Fatalf("Set did not replace existing point: %v", c)
	}
	c = c.Remove(1)
	if len(c) != 0 {
		t.Fatalf("Remove left points behind: %v", c)
	}
}

func TestFadeCurveSplit(t *testing.T) {
	c := jokosher.FadeCurve{{0, 0}, {10, 1}}
	left, right := c.Split(4)
	if got := left.LevelAt(4); !almostEqual(got, 0.4) {
		t.Errorf("left level at cut = %v, want 0.4", got)
	}
	if got := right.LevelAt(0); !almostEqual(got, 0.4) {
		t.Errorf("right level at cut = %v, want 0.4", got)
	}
	if got := right.LevelAt(6); !almostEqual(got, 1) {
		t.Errorf("right level at end = %v, want 1", got)
	}
	for i := 0.0; i <= 10; i += 0.5 {
		var got float64
		if i < 4 {
			got = left.LevelAt(i)
		} else {
			got = right.LevelAt(i - 4)
		}
		if !almostEqual(got, c.LevelAt(i)) {
			t.Errorf("split changed the fade at %v: %v != %v", i, got, c.LevelAt(i))
		}
	}
	l, r := jokosher.FadeCurve(nil).Split(3)
	if l != nil || r != nil {
		t.Errorf("splitting an empty curve should give empty curves")
	}
}

func TestFadeCurveWithEndpoints(t *testing.T) {
	c := jokosher.FadeCurve{{2, 0.5}}.WithEndpoints(5)
	want := jokosher.FadeCurve{{0, 0.5}, {2, 0.5}, {5, 0.5}}
	if len(c) != len(want) {
		t.Fatalf("WithEndpoints = %v, want %v", c, want)
	}
	for i := range c {
		if c[i] != want[i] {
			t.Fatalf("WithEndpoints = %v, want %v", c, want)
		}
	}
	flat := jokosher.FadeCurve(nil).WithEndpoints(3)
	if len(flat) != 2 || flat[0].Gain != 1 || flat[1].Time != 3 {
		t.Fatalf("empty curve endpoints = %v", flat)
	}
}

func TestFadeCurveClip(t *testing.T) {
	c := jokosher.FadeCurve{{0, 0}, {10, 1}}.Clip(2, 6)
	if !almostEqual(c.LevelAt(0), 0.2) || !almostEqual(c.LevelAt(4), 0.6) {
		t.Fatalf("Clip = %v", c)
	}
	if c[len(c)-1].Time != 4 {
		t.Fatalf("clipped curve should end at 4, got %v", c)
	}
}

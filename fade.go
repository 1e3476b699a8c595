package jokosher

import "sort"

type (
	// FadePoint is a control point of a volume fade: Gain in [0,1] at Time
	// seconds from the start of an event.
	FadePoint struct {
		Time float64
		Gain float64
	}

	// FadeCurve is a list of fade points sorted by time, with no two points at
	// the same time. Between points the gain is linearly interpolated; before
	// the first and after the last point it holds the nearest value. An empty
	// curve means full gain everywhere.
	FadeCurve []FadePoint
)

// NeutralGain is the gain of an unfaded stretch of audio.
const NeutralGain = 1.0

// Copy returns a copy of the curve.
func (c FadeCurve) Copy() FadeCurve {
	if c == nil {
		return nil
	}
	ret := make(FadeCurve, len(c))
	copy(ret, c)
	return ret
}

func (c FadeCurve) search(t float64) int {
	return sort.Search(len(c), func(i int) bool { return c[i].Time >= t })
}

// Set adds a point at time t or replaces the gain of an existing one.
func (c FadeCurve) Set(t, gain float64) FadeCurve {
	i := c.search(t)
	if i < len(c) && c[i].Time == t {
		c[i].Gain = gain
		return c
	}
	c = append(c, FadePoint{})
	copy(c[i+1:], c[i:])
	c[i] = FadePoint{Time: t, Gain: gain}
	return c
}

// Remove deletes the point at exactly time t, if there is one.
func (c FadeCurve) Remove(t float64) FadeCurve {
	i := c.search(t)
	if i < len(c) && c[i].Time == t {
		return append(c[:i], c[i+1:]...)
	}
	return c
}

// RemoveBetween deletes the points strictly inside (from, to).
func (c FadeCurve) RemoveBetween(from, to float64) FadeCurve {
	ret := c[:0]
	for _, p := range c {
		if p.Time > from && p.Time < to {
			continue
		}
		ret = append(ret, p)
	}
	return ret
}

// LevelAt returns the interpolated gain at time t.
func (c FadeCurve) LevelAt(t float64) float64 {
	if len(c) == 0 {
		return NeutralGain
	}
	i := c.search(t)
	if i == 0 {
		return c[0].Gain
	}
	if i == len(c) {
		return c[len(c)-1].Gain
	}
	a, b := c[i-1], c[i]
	if b.Time == t {
		return b.Gain
	}
	return a.Gain + (b.Gain-a.Gain)*(t-a.Time)/(b.Time-a.Time)
}

// WithEndpoints returns the curve as played over an event of the given
// duration: points outside [0, duration] are dropped and points at 0 and
// duration are added if missing. An empty curve becomes a flat neutral line.
func (c FadeCurve) WithEndpoints(duration float64) FadeCurve {
	if len(c) == 0 {
		return FadeCurve{{0, NeutralGain}, {duration, NeutralGain}}
	}
	start, end := c.LevelAt(0), c.LevelAt(duration)
	ret := FadeCurve{{0, start}}
	for _, p := range c {
		if p.Time > 0 && p.Time < duration {
			ret = append(ret, p)
		}
	}
	if duration > 0 {
		ret = append(ret, FadePoint{duration, end})
	}
	return ret
}

// Split cuts the curve at time t. The left part keeps the points before t,
// the right part keeps the points after t shifted to start at zero. Both
// parts get a point at the cut with the level the curve had there, so the
// audible fade is unchanged.
func (c FadeCurve) Split(t float64) (left, right FadeCurve) {
	if len(c) == 0 {
		return nil, nil
	}
	level := c.LevelAt(t)
	for _, p := range c {
		if p.Time < t {
			left = append(left, p)
		}
	}
	left = append(left, FadePoint{t, level})
	right = FadeCurve{{0, level}}
	for _, p := range c {
		if p.Time > t {
			right = append(right, FadePoint{p.Time - t, p.Gain})
		}
	}
	return left, right
}

// Clip keeps the part of the curve between from and to, rebased so that
// from becomes zero.
func (c FadeCurve) Clip(from, to float64) FadeCurve {
	if len(c) == 0 {
		return nil
	}
	_, right := c.Split(from)
	left, _ := right.Split(to - from)
	return left
}

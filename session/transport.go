package session

import (
	"fmt"
	"math"

	"github.com/jokosher/jokosher"
)

// TicksPerBeat is the resolution of the tick part of a bars and beats
// position.
const TicksPerBeat = 256

// Transport is the playback position of a project and the way it is shown.
type Transport struct {
	project  *Project
	mode     int
	position float64
	previous float64

	PositionChanged Signal[*Transport]
	ModeChanged     Signal[*Transport]
}

func newTransport(p *Project, mode int) *Transport {
	if mode != jokosher.ModeBarsBeats && mode != jokosher.ModeHoursMinsSecs {
		mode = jokosher.ModeBarsBeats
	}
	return &Transport{project: p, mode: mode}
}

// Position returns the playhead in seconds.
func (t *Transport) Position() float64 { return t.position }

// PreviousPosition returns the playhead before the last change.
func (t *Transport) PreviousPosition() float64 { return t.previous }

func (t *Transport) Mode() int { return t.mode }

// SetMode switches between jokosher.ModeBarsBeats and
// jokosher.ModeHoursMinsSecs.
func (t *Transport) SetMode(mode int) error {
	if mode != jokosher.ModeBarsBeats && mode != jokosher.ModeHoursMinsSecs {
		return fmt.Errorf("unknown transport mode %d", mode)
	}
	if mode == t.mode {
		return nil
	}
	t.mode = mode
	t.ModeChanged.Emit(t)
	return nil
}

// SeekTo moves the playhead to pos, clamped to the length of the project,
// and moves the pipeline clock with it.
func (t *Transport) SeekTo(pos float64) {
	t.setPosition(pos)
	t.project.pipeline.Seek(t.position)
}

// setPosition moves the playhead without touching the pipeline. While
// recording the project grows under the playhead, so only the lower bound is
// applied.
func (t *Transport) setPosition(pos float64) {
	pos = max(pos, 0)
	if t.project.state != AudioRecording {
		pos = min(pos, t.project.Length())
	}
	if pos == t.position {
		return
	}
	t.previous, t.position = t.position, pos
	t.PositionChanged.Emit(t)
}

// BarsBeats returns the playhead as 1 based bars and beats and the ticks
// into the beat.
func (t *Transport) BarsBeats() (bars, beats, ticks int) {
	bpm, nom := t.project.bpm, t.project.meterNom
	total := t.position * float64(bpm) / 60
	whole := int(math.Floor(total))
	bars = whole/nom + 1
	beats = whole%nom + 1
	ticks = int((total - float64(whole)) * TicksPerBeat)
	return bars, beats, min(ticks, TicksPerBeat-1)
}

// HoursMinsSecs returns the playhead split into hours, minutes, seconds and
// milliseconds.
func (t *Transport) HoursMinsSecs() (hours, mins, secs, millis int) {
	ms := int(math.Round(t.position * 1000))
	millis = ms % 1000
	s := ms / 1000
	secs = s % 60
	mins = (s / 60) % 60
	hours = s / 3600
	return
}

// String formats the playhead in the current mode.
func (t *Transport) String() string {
	if t.mode == jokosher.ModeHoursMinsSecs {
		h, m, s, ms := t.HoursMinsSecs()
		return fmt.Sprintf("%01d:%02d:%02d:%03d", h, m, s, ms)
	}
	bars, beats, ticks := t.BarsBeats()
	return fmt.Sprintf("%05d:%d:%03d", bars, beats, ticks)
}

package session

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/jokosher/jokosher"
)

// Event is a piece of audio placed on an instrument: the part of a file
// from Offset to Offset+Duration, played from Start on the timeline.
type Event struct {
	instrument *Instrument
	id         int
	name       string
	file       string
	levelsFile string
	source     string // URL the file is downloaded from

	start         float64
	duration      float64
	offset        float64
	loadingLength float64
	selection     [2]float64
	fades         jokosher.FadeCurve
	levels        jokosher.LevelsList
	audio         jokosher.AudioBuffer

	selected    bool
	loading     bool
	recording   bool
	downloading bool
	corrupt     error

	// background analysis; gen tells results of a cancelled run apart
	gen        int
	cancel     context.CancelFunc
	keepLevels bool

	Moved            Signal[*Event]
	LengthChanged    Signal[*Event]
	NameChanged      Signal[*Event]
	SelectionChanged Signal[*Event]
	FadesChanged     Signal[*Event]
	LoadingChanged   Signal[*Event]
	WaveformChanged  Signal[*Event]
	// Failed is emitted with a *jokosher.CorruptSourceError when the file
	// cannot be decoded, or a *jokosher.IOError when a download fails.
	Failed Signal[error]
}

func newEvent(instr *Instrument, id int) *Event {
	return &Event{instrument: instr, id: id}
}

func (e *Event) ID() int                     { return e.id }
func (e *Event) Instrument() *Instrument     { return e.instrument }
func (e *Event) Name() string                { return e.name }
func (e *Event) File() string                { return e.file }
func (e *Event) LevelsFile() string          { return e.levelsFile }
func (e *Event) Start() float64              { return e.start }
func (e *Event) Duration() float64           { return e.duration }
func (e *Event) Offset() float64             { return e.offset }
func (e *Event) Selected() bool              { return e.selected }
func (e *Event) Loading() bool               { return e.loading }
func (e *Event) Recording() bool             { return e.recording }
func (e *Event) Downloading() bool           { return e.downloading }
func (e *Event) Levels() jokosher.LevelsList { return e.levels }

// Corrupt returns the decode error of the event's file, or nil.
func (e *Event) Corrupt() error { return e.corrupt }

// Path returns the location of the backing file.
func (e *Event) Path() string { return e.instrument.project.audioPath(e.file) }

// Length returns the duration, or while the file is being analysed the
// provisional length read from its header.
func (e *Event) Length() float64 {
	return max(e.duration, e.loadingLength)
}

// End returns the time the event ends on the timeline.
func (e *Event) End() float64 { return e.start + e.Length() }

// Data returns a snapshot of the persistent state of the event.
func (e *Event) Data() jokosher.EventData {
	return jokosher.EventData{
		ID:         e.id,
		Name:       e.name,
		File:       e.file,
		LevelsFile: e.levelsFile,
		Start:      e.start,
		Duration:   e.duration,
		Offset:     e.offset,
		Selected:   e.selected,
		Loading:    e.loading,
		Recording:  e.recording,
		FadePoints: e.fades.Copy(),
	}
}

func (e *Event) SetName(name string) {
	if name == e.name {
		return
	}
	e.name = name
	e.NameChanged.Emit(e)
}

func (e *Event) SetSelected(v bool) {
	if v == e.selected {
		return
	}
	e.selected = v
	e.SelectionChanged.Emit(e)
}

// Selection returns the selected range in seconds from the start of the
// event, in the order it was set.
func (e *Event) Selection() (from, to float64) { return e.selection[0], e.selection[1] }

// SetSelection sets the selected range. The ends may come in either order.
func (e *Event) SetSelection(from, to float64) {
	if e.selection == [2]float64{from, to} {
		return
	}
	e.selection = [2]float64{from, to}
	e.SelectionChanged.Emit(e)
}

// normalizedSelection returns the selection ordered and clamped to the
// event.
func (e *Event) normalizedSelection() (from, to float64) {
	from, to = e.selection[0], e.selection[1]
	if from > to {
		from, to = to, from
	}
	return max(0, from), min(e.duration, to)
}

// Move places the event at start. It fails with *jokosher.OverlapError if
// that would overlap another event of the instrument.
func (e *Event) Move(start float64) error {
	if start < 0 || math.IsNaN(start) {
		return jokosher.ErrInvalidPosition
	}
	if o := e.instrument.overlapping(e, start, e.Length()); o != nil {
		return &jokosher.OverlapError{Event: e.id, Other: o.id, Start: start}
	}
	e.setStart(start)
	return nil
}

// MoveButDoNotOverlap places the event as close to start as it fits and
// returns where it went. When start is taken, the nearest free gap wide
// enough wins; between two equally near places the one in the direction
// of the move is taken, and then the earlier one.
func (e *Event) MoveButDoNotOverlap(start float64) float64 {
	start = max(0, start)
	if math.IsNaN(start) {
		start = e.start
	}
	length := e.Length()
	if e.instrument.overlapping(e, start, length) == nil {
		e.setStart(start)
		return start
	}
	var others []*Event
	for _, o := range e.instrument.events {
		if o != e && o.Length() > 0 {
			others = append(others, o)
		}
	}
	slices.SortFunc(others, func(a, b *Event) int { return cmp.Compare(a.start, b.start) })
	// candidate places: the free gaps between the others, clamped to start
	var places []float64
	from := 0.0
	for _, o := range others {
		if o.start-from >= length {
			places = append(places, max(from, min(start, o.start-length)))
		}
		from = max(from, o.End())
	}
	places = append(places, max(from, start))
	forward := start >= e.start
	best := places[0]
	for _, c := range places[1:] {
		db, dc := math.Abs(best-start), math.Abs(c-start)
		switch {
		case dc < db:
			best = c
		case dc == db && forward && c > best:
			best = c
		}
	}
	e.setStart(best)
	return best
}

func (e *Event) setStart(start float64) {
	if start == e.start {
		return
	}
	e.start = start
	e.instrument.updateComposition()
	e.Moved.Emit(e)
}

// SplitAt cuts the event offset seconds from its start. The event keeps the
// left part; the right part is a new event on the same file, which is
// returned. offset must be inside (0, Duration).
func (e *Event) SplitAt(offset float64) (*Event, error) {
	if e.loading || e.recording {
		return nil, ErrEventLoading
	}
	if !(offset > 0 && offset < e.duration) {
		return nil, &jokosher.InvalidSplitPointError{Event: e.id, Offset: offset, Duration: e.duration}
	}
	instr := e.instrument
	right := newEvent(instr, instr.project.GenerateUniqueID(-1, true))
	right.name, right.file = e.name, e.file
	right.start = e.start + offset
	right.offset = e.offset + offset
	right.duration = e.duration - offset
	right.audio = e.audio
	right.levelsFile = levelsFileName(right.file, right.id)
	if p := instr.project; p.deletedOnClose(e.Path()) {
		p.deleteFileOnClose(p.levelsPath(right.levelsFile))
	}
	left, rightFades := e.fades.Split(offset)
	leftLevels, rightLevels := e.levels.Split(offset)
	right.fades, right.levels = rightFades, rightLevels
	e.fades, e.levels = left, leftLevels
	e.duration = offset
	e.selection = [2]float64{}
	e.saveLevels()
	right.saveLevels()
	k := slices.Index(instr.events, e)
	instr.events = slices.Insert(instr.events, k+1, right)
	instr.updateComposition()
	e.LengthChanged.Emit(e)
	e.FadesChanged.Emit(e)
	e.WaveformChanged.Emit(e)
	instr.EventAdded.Emit(right)
	return right, nil
}

// Trim keeps only the part of the event between from and to, in seconds
// from its start, moving the start to where the kept part plays. Trimming
// to the whole event, to nothing, or while the event is loading does
// nothing.
func (e *Event) Trim(from, to float64) {
	if e.loading || e.recording {
		return
	}
	if from > to {
		from, to = to, from
	}
	from, to = max(0, from), min(e.duration, to)
	if to <= from || (from == 0 && to == e.duration) {
		return
	}
	e.start += from
	e.offset += from
	e.duration = to - from
	e.fades = e.fades.Clip(from, to)
	e.levels = e.levels.Slice(from, to)
	e.selection = [2]float64{}
	e.saveLevels()
	e.instrument.updateComposition()
	e.Moved.Emit(e)
	e.LengthChanged.Emit(e)
	e.FadesChanged.Emit(e)
	e.WaveformChanged.Emit(e)
}

// TrimToSelection trims the event to its selection.
func (e *Event) TrimToSelection() {
	from, to := e.normalizedSelection()
	e.Trim(from, to)
}

// FadePoints returns the fade curve in seconds from the start of the event.
func (e *Event) FadePoints() jokosher.FadeCurve { return e.fades.Copy() }

// FadeLevelAt returns the fade gain at t seconds into the event.
func (e *Event) FadeLevelAt(t float64) float64 { return e.fades.LevelAt(t) }

// SetFadePoint puts a point with gain in [0,1] on the fade curve.
func (e *Event) SetFadePoint(t, gain float64) {
	e.fades = e.fades.Copy().Set(max(0, min(e.duration, t)), max(0, min(1, gain)))
	e.FadesChanged.Emit(e)
}

// RemoveFadePoint removes the point at t from the fade curve.
func (e *Event) RemoveFadePoint(t float64) {
	e.fades = e.fades.Copy().Remove(t)
	e.FadesChanged.Emit(e)
}

// ClearFades removes the fade curve.
func (e *Event) ClearFades() {
	if len(e.fades) == 0 {
		return
	}
	e.fades = nil
	e.FadesChanged.Emit(e)
}

// SetFadePointsFromSelection puts points at both ends of the selection
// with the gains left and right, given in percent. Points inside the
// selection are removed.
func (e *Event) SetFadePointsFromSelection(left, right float64) error {
	from, to := e.normalizedSelection()
	if to <= from {
		return jokosher.ErrEmptySelection
	}
	c := e.fades.Copy().RemoveBetween(from, to)
	c = c.Set(from, max(0, min(1, left/100)))
	c = c.Set(to, max(0, min(1, right/100)))
	e.fades = c
	e.FadesChanged.Emit(e)
	return nil
}

// saveLevels writes the peak series of a loaded event to its levels file.
func (e *Event) saveLevels() {
	if e.levelsFile == "" || len(e.levels) == 0 {
		return
	}
	p := e.instrument.project
	if err := jokosher.SaveLevels(p.levelsPath(e.levelsFile), e.levels); err != nil {
		p.logger.Warn("could not save levels", "event", e.id, "err", err)
	}
}

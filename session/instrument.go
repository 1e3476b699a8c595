package session

import (
	"fmt"
	"slices"

	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/graph"
)

// fadeJoinGap separates the end point of one event's fade from the start
// point of the event that follows it without a gap, in seconds.
const fadeJoinGap = 1e-6

type (
	// Instrument is a track of the project: a list of events played through
	// a chain of effects, volume, meter and pan into the project mixer.
	Instrument struct {
		project *Project
		id      int
		name    string
		typ     string

		armed    bool
		muted    bool
		solo     bool
		selected bool
		visible  bool
		volume   float64
		pan      float64
		level    float64

		input   string
		inTrack int
		output  string

		events    []*Event
		graveyard []*Event
		effects   []*effect

		bin        *graph.Bin
		comp       *graph.Composition
		compElem   *graph.Element
		volumeProc *graph.Volume
		volumeElem *graph.Element
		meterElem  *graph.Element
		panProc    *graph.Pan
		panElem    *graph.Element
		resample   *graph.Element

		EventAdded     Signal[*Event]
		EventRemoved   Signal[*Event]
		NameChanged    Signal[*Instrument]
		ArmChanged     Signal[*Instrument]
		MuteChanged    Signal[*Instrument]
		SoloChanged    Signal[*Instrument]
		VolumeChanged  Signal[*Instrument]
		PanChanged     Signal[*Instrument]
		LevelChanged   Signal[*Instrument]
		InputChanged   Signal[*Instrument]
		VisibleChanged Signal[*Instrument]
		SelectChanged  Signal[*Instrument]
		EffectsChanged Signal[*Instrument]
	}

	effect struct {
		proc graph.Effect
		elem *graph.Element
	}
)

func newInstrument(p *Project, id int, name, typ string) *Instrument {
	i := &Instrument{
		project: p,
		id:      id,
		name:    name,
		typ:     typ,
		visible: true,
		volume:  1,
	}
	i.bin = graph.NewBin(fmt.Sprintf("Instrument_%d", id))
	i.comp = graph.NewComposition()
	i.compElem = graph.NewElement(fmt.Sprintf("composition_%d", id), i.comp)
	i.volumeProc = graph.NewVolume(1)
	i.volumeElem = graph.NewElement(fmt.Sprintf("volume_%d", id), i.volumeProc)
	i.meterElem = graph.NewElement(fmt.Sprintf("level_%d", id), graph.NewMeter())
	i.panProc = graph.NewPan(0)
	i.panElem = graph.NewElement(fmt.Sprintf("pan_%d", id), i.panProc)
	i.resample = graph.NewElement(fmt.Sprintf("resample_%d", id), graph.NewResample())
	// the bin and its elements are new, so chaining them cannot fail
	_ = i.bin.Chain(i.compElem, i.volumeElem, i.meterElem, i.panElem, i.resample)
	i.bin.SetGhosts(nil, i.resample)
	p.meters[i.meterElem] = func(m *graph.LevelMessage) {
		i.level = jokosher.DbToFloat(m.Decay[0])
		i.LevelChanged.Emit(i)
	}
	return i
}

func (i *Instrument) ID() int           { return i.id }
func (i *Instrument) Name() string      { return i.name }
func (i *Instrument) Type() string      { return i.typ }
func (i *Instrument) Armed() bool       { return i.armed }
func (i *Instrument) Muted() bool       { return i.muted }
func (i *Instrument) Solo() bool        { return i.solo }
func (i *Instrument) Selected() bool    { return i.selected }
func (i *Instrument) Visible() bool     { return i.visible }
func (i *Instrument) Volume() float64   { return i.volume }
func (i *Instrument) Pan() float64      { return i.pan }
func (i *Instrument) Level() float64    { return i.level }
func (i *Instrument) Input() string     { return i.input }
func (i *Instrument) InTrack() int      { return i.inTrack }
func (i *Instrument) Project() *Project { return i.project }

// Events returns the live events in insertion order.
func (i *Instrument) Events() []*Event { return slices.Clone(i.events) }

// Graveyard returns the deleted events.
func (i *Instrument) Graveyard() []*Event { return slices.Clone(i.graveyard) }

// Event returns the live event with the given id, or nil.
func (i *Instrument) Event(id int) *Event {
	for _, ev := range i.events {
		if ev.id == id {
			return ev
		}
	}
	return nil
}

// EffectiveMute reports whether the instrument is silent: muted itself, or
// another instrument is soloed and this one is not.
func (i *Instrument) EffectiveMute() bool {
	return i.muted || (i.project.soloCount > 0 && !i.solo)
}

// Data returns a snapshot of the persistent state of the instrument.
func (i *Instrument) Data() jokosher.InstrumentData {
	d := jokosher.InstrumentData{
		ID:       i.id,
		Name:     i.name,
		Type:     i.typ,
		Armed:    i.armed,
		Muted:    i.muted,
		Solo:     i.solo,
		Selected: i.selected,
		Visible:  i.visible,
		Input:    i.input,
		InTrack:  i.inTrack,
		Output:   i.output,
		Volume:   i.volume,
		Pan:      i.pan,
		Effects:  i.Effects(),
	}
	for _, ev := range i.events {
		d.Events = append(d.Events, ev.Data())
	}
	for _, ev := range i.graveyard {
		d.DeadEvents = append(d.DeadEvents, ev.Data())
	}
	return d
}

// attach puts the playback bin into the project pipeline, linked into the
// mixer, in the state the pipeline is in or going to.
func (i *Instrument) attach() error {
	pl := i.project.pipeline
	if pl.HasBin(i.bin) {
		return nil
	}
	if err := pl.AddBin(i.bin); err != nil {
		return err
	}
	if err := graph.Link(i.bin.Src(), i.project.mixer); err != nil {
		return err
	}
	return pl.MatchState(i.bin)
}

// detach takes the playback bin out of the pipeline.
func (i *Instrument) detach() error {
	pl := i.project.pipeline
	if !pl.HasBin(i.bin) {
		return nil
	}
	return pl.RemoveBin(i.bin)
}

// updateVolume pushes the gain, scaled by the master volume, into the
// graph.
func (i *Instrument) updateVolume() {
	i.volumeProc.SetGain(i.volume * i.project.volume)
}

// updateMute pushes the effective mute into the graph and notifies it.
func (i *Instrument) updateMute() {
	i.volumeProc.SetMute(i.EffectiveMute())
	i.MuteChanged.Emit(i)
}

func (i *Instrument) SetName(name string) {
	if name == i.name {
		return
	}
	i.name = name
	i.NameChanged.Emit(i)
}

func (i *Instrument) ToggleArmed() {
	i.armed = !i.armed
	i.ArmChanged.Emit(i)
}

func (i *Instrument) ToggleMute() {
	i.muted = !i.muted
	i.updateMute()
}

// ToggleSolo flips solo. Solo is counted over the project, so every
// instrument's mute state is recomputed.
func (i *Instrument) ToggleSolo() {
	i.solo = !i.solo
	i.project.updateSolo()
	i.SoloChanged.Emit(i)
}

// SetVolume sets the gain in [0,1].
func (i *Instrument) SetVolume(v float64) {
	v = max(0, min(1, v))
	if v == i.volume {
		return
	}
	i.volume = v
	i.updateVolume()
	i.VolumeChanged.Emit(i)
}

// SetPan sets the balance in [-1,1].
func (i *Instrument) SetPan(v float64) {
	v = max(-1, min(1, v))
	if v == i.pan {
		return
	}
	i.pan = v
	i.panProc.SetPan(v)
	i.PanChanged.Emit(i)
}

// SetInput chooses the capture device and the channel of it to record
// from. An empty device is the backend default.
func (i *Instrument) SetInput(device string, inTrack int) {
	if device == i.input && inTrack == i.inTrack {
		return
	}
	i.input, i.inTrack = device, max(0, inTrack)
	i.InputChanged.Emit(i)
}

func (i *Instrument) SetVisible(v bool) {
	if v == i.visible {
		return
	}
	i.visible = v
	i.VisibleChanged.Emit(i)
}

func (i *Instrument) SetSelected(v bool) {
	if v == i.selected {
		return
	}
	i.selected = v
	i.SelectChanged.Emit(i)
}

// Effects returns the effects of the instrument in chain order.
func (i *Instrument) Effects() []jokosher.EffectData {
	var ret []jokosher.EffectData
	for _, e := range i.effects {
		ret = append(ret, jokosher.EffectData{Element: e.proc.Name(), Properties: e.proc.Properties()})
	}
	return ret
}

// AddEffect appends the named effect to the end of the chain.
func (i *Instrument) AddEffect(name string) error {
	proc, err := graph.NewEffect(name)
	if err != nil {
		return err
	}
	if err := i.insertEffect(proc); err != nil {
		return err
	}
	i.EffectsChanged.Emit(i)
	return nil
}

func (i *Instrument) restoreEffect(d jokosher.EffectData) error {
	proc, err := graph.NewEffect(d.Element)
	if err != nil {
		return err
	}
	if err := graph.ApplyProperties(proc, d.Properties); err != nil {
		return err
	}
	return i.insertEffect(proc)
}

// insertEffect links proc in between the last effect (or the composition)
// and the volume.
func (i *Instrument) insertEffect(proc graph.Effect) error {
	prev := i.compElem
	if n := len(i.effects); n > 0 {
		prev = i.effects[n-1].elem
	}
	e := &effect{proc: proc, elem: graph.NewElement(fmt.Sprintf("%s_%d_%d", proc.Name(), i.id, len(i.effects)), proc)}
	if err := i.bin.Add(e.elem); err != nil {
		return err
	}
	if err := graph.Unlink(prev, i.volumeElem); err != nil {
		return err
	}
	if err := graph.Link(prev, e.elem); err != nil {
		return err
	}
	if err := graph.Link(e.elem, i.volumeElem); err != nil {
		return err
	}
	i.effects = append(i.effects, e)
	return i.matchState()
}

// RemoveEffect takes the effect at index out of the chain.
func (i *Instrument) RemoveEffect(index int) error {
	if index < 0 || index >= len(i.effects) {
		return fmt.Errorf("%w: %d", ErrNoSuchEffect, index)
	}
	prev, next := i.compElem, i.volumeElem
	if index > 0 {
		prev = i.effects[index-1].elem
	}
	if index+1 < len(i.effects) {
		next = i.effects[index+1].elem
	}
	if err := i.bin.Remove(i.effects[index].elem); err != nil {
		return err
	}
	if err := graph.Link(prev, next); err != nil {
		return err
	}
	i.effects = slices.Delete(i.effects, index, index+1)
	i.EffectsChanged.Emit(i)
	return nil
}

// SetEffectProperty sets one property of the effect at index.
func (i *Instrument) SetEffectProperty(index int, key string, value any) error {
	if index < 0 || index >= len(i.effects) {
		return fmt.Errorf("%w: %d", ErrNoSuchEffect, index)
	}
	if err := i.effects[index].proc.SetProperty(key, value); err != nil {
		return err
	}
	i.EffectsChanged.Emit(i)
	return nil
}

// matchState brings new elements of an attached bin up to the pipeline.
// A detached bin is matched when it is attached.
func (i *Instrument) matchState() error {
	if !i.project.pipeline.HasBin(i.bin) {
		return nil
	}
	return i.project.pipeline.MatchState(i.bin)
}

// updateComposition hands the loaded events to the composition.
func (i *Instrument) updateComposition() {
	var clips []graph.Clip
	for _, ev := range i.events {
		if ev.audio.Frames() == 0 || ev.recording {
			continue
		}
		clips = append(clips, graph.Clip{ID: ev.id, Start: ev.start, Offset: ev.offset, Duration: ev.duration, Audio: ev.audio})
	}
	i.comp.SetClips(clips)
}

// PrepareFadeAutomation rebuilds the volume automation from the fades of
// all events, in timeline seconds. Events without fades and the gaps
// between events get neutral points, so no fade leaks into a neighbour.
// With no fades at all the automation is switched off.
func (i *Instrument) PrepareFadeAutomation() jokosher.FadeCurve {
	events := slices.Clone(i.events)
	slices.SortFunc(events, func(a, b *Event) int {
		switch {
		case a.start < b.start:
			return -1
		case a.start > b.start:
			return 1
		}
		return 0
	})
	var curve jokosher.FadeCurve
	faded := false
	for _, ev := range events {
		if len(ev.fades) > 0 {
			faded = true
		}
		for k, pt := range ev.fades.WithEndpoints(ev.duration) {
			t := ev.start + pt.Time
			// where events touch, the end of the earlier one keeps its gain
			// and this event takes over just after it
			if k == 0 && slices.ContainsFunc(curve, func(c jokosher.FadePoint) bool { return c.Time == t }) {
				t += fadeJoinGap
			}
			curve = curve.Set(t, pt.Gain)
		}
	}
	if !faded {
		curve = nil
	}
	i.volumeProc.SetAutomation(curve)
	return curve
}

// DeleteEvent moves the event to the graveyard and cancels its analysis.
func (i *Instrument) DeleteEvent(id int) error {
	k := slices.IndexFunc(i.events, func(e *Event) bool { return e.id == id })
	if k < 0 {
		return fmt.Errorf("%w: %d", ErrNoSuchEvent, id)
	}
	ev := i.events[k]
	ev.StopGenerateWaveform()
	i.events = slices.Delete(i.events, k, k+1)
	i.graveyard = append(i.graveyard, ev)
	i.updateComposition()
	i.EventRemoved.Emit(ev)
	return nil
}

// RestoreEvent brings a deleted event back to where it was. It fails with
// *jokosher.OverlapError if another event has taken its place.
func (i *Instrument) RestoreEvent(id int) (*Event, error) {
	k := slices.IndexFunc(i.graveyard, func(e *Event) bool { return e.id == id })
	if k < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchEvent, id)
	}
	ev := i.graveyard[k]
	if other := i.overlapping(ev, ev.start, ev.Length()); other != nil {
		return nil, &jokosher.OverlapError{Event: ev.id, Other: other.id, Start: ev.start}
	}
	i.graveyard = slices.Delete(i.graveyard, k, k+1)
	i.events = append(i.events, ev)
	if ev.audio.Frames() == 0 {
		i.project.decodeEvents(ev)
	}
	i.updateComposition()
	i.EventAdded.Emit(ev)
	return ev, nil
}

// overlapping returns an event other than ev that [start, start+length)
// would overlap, or nil.
func (i *Instrument) overlapping(ev *Event, start, length float64) *Event {
	end := start + length
	for _, o := range i.events {
		if o == ev || o.Length() <= 0 {
			continue
		}
		if start < o.End() && o.start < end {
			return o
		}
	}
	return nil
}

func (i *Instrument) restoreEventData(d jokosher.EventData) *Event {
	ev := newEvent(i, i.project.GenerateUniqueID(d.ID, true))
	ev.name, ev.file, ev.levelsFile = d.Name, d.File, d.LevelsFile
	ev.start, ev.duration, ev.offset = d.Start, d.Duration, d.Offset
	ev.selected = d.Selected
	ev.fades = d.FadePoints.Copy()
	// a recording or analysis that was cut short is redone
	ev.keepLevels = !d.Loading && !d.Recording
	if ev.keepLevels && ev.levelsFile != "" {
		levels, err := jokosher.LoadLevels(i.project.levelsPath(ev.levelsFile))
		if err != nil {
			i.project.logger.Debug("levels need regenerating", "event", ev.id, "err", err)
			ev.keepLevels = false
		}
		ev.levels = levels
	} else {
		ev.keepLevels = false
	}
	return ev
}

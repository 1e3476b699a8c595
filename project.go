package jokosher

type (
	// ProjectData is the persistent state of a project: everything the
	// project file stores. The live model in package session is built from
	// it on load and snapshotted into it on save.
	ProjectData struct {
		Name        string
		NameIsUnset bool
		Author      string
		Notes       string
		ProjectFile string

		ViewScale float64 // pixels per second
		ViewStart float64 // seconds

		Volume        float64
		TransportMode int
		BPM           int
		MeterNom      int // time signature numerator
		MeterDenom    int // time signature denominator
		ClickVolume   float64

		Instruments     []InstrumentData
		DeadInstruments []InstrumentData
	}

	// InstrumentData is the persistent state of an instrument (a track).
	InstrumentData struct {
		ID       int
		Name     string
		Type     string
		Armed    bool
		Muted    bool
		Solo     bool
		Selected bool
		Visible  bool
		// Input is the capture device; empty means the system default.
		Input   string
		InTrack int
		Output  string
		Volume  float64
		Pan     float64 // [-1,1]

		Effects    []EffectData
		Events     []EventData
		DeadEvents []EventData
	}

	// EffectData describes an effect on an instrument: the name of the
	// processor and its properties. Property values are int, float64, bool,
	// string or nil.
	EffectData struct {
		Element    string
		Properties map[string]any
	}

	// EventData is the persistent state of an event (an audio clip).
	EventData struct {
		ID         int
		Name       string
		File       string // relative to the project audio directory
		LevelsFile string // relative to the project levels directory
		Start      float64
		Duration   float64
		Offset     float64 // in-point into File
		Selected   bool
		Loading    bool
		Recording  bool
		FadePoints FadeCurve
	}
)

// Transport modes.
const (
	ModeBarsBeats = iota + 1
	ModeHoursMinsSecs
)

// NewProjectData returns the state of a freshly created project.
func NewProjectData() ProjectData {
	return ProjectData{
		NameIsUnset:   true,
		ViewScale:     25,
		Volume:        1,
		TransportMode: ModeBarsBeats,
		BPM:           120,
		MeterNom:      4,
		MeterDenom:    4,
	}
}

// End returns the time the event ends on the timeline.
func (e *EventData) End() float64 {
	return e.Start + e.Duration
}

func (e *EffectData) Copy() EffectData {
	props := make(map[string]any, len(e.Properties))
	for k, v := range e.Properties {
		props[k] = v
	}
	return EffectData{Element: e.Element, Properties: props}
}

func (e *EventData) Copy() EventData {
	ret := *e
	ret.FadePoints = e.FadePoints.Copy()
	return ret
}

func (i *InstrumentData) Copy() InstrumentData {
	ret := *i
	ret.Effects = make([]EffectData, len(i.Effects))
	for j, e := range i.Effects {
		ret.Effects[j] = e.Copy()
	}
	ret.Events = copyEvents(i.Events)
	ret.DeadEvents = copyEvents(i.DeadEvents)
	return ret
}

func (p *ProjectData) Copy() ProjectData {
	ret := *p
	ret.Instruments = copyInstruments(p.Instruments)
	ret.DeadInstruments = copyInstruments(p.DeadInstruments)
	return ret
}

func copyEvents(events []EventData) []EventData {
	if events == nil {
		return nil
	}
	ret := make([]EventData, len(events))
	for i, e := range events {
		ret[i] = e.Copy()
	}
	return ret
}

func copyInstruments(instrs []InstrumentData) []InstrumentData {
	if instrs == nil {
		return nil
	}
	ret := make([]InstrumentData, len(instrs))
	for i, instr := range instrs {
		ret[i] = instr.Copy()
	}
	return ret
}

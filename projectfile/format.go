package projectfile

import (
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/jokosher/jokosher"
)

func storeProject(p *jokosher.ProjectData) *node {
	root := newNode(rootElement)
	root.setAttr("version", Version)
	var ps params
	ps.set("view_scale", p.ViewScale)
	ps.set("view_start", p.ViewStart)
	ps.set("name", p.Name)
	ps.set("name_is_unset", p.NameIsUnset)
	ps.set("author", p.Author)
	ps.set("volume", p.Volume)
	ps.set("transportMode", p.TransportMode)
	ps.set("bpm", p.BPM)
	ps.set("meter_nom", p.MeterNom)
	ps.set("meter_denom", p.MeterDenom)
	ps.set("projectfile", p.ProjectFile)
	ps.set("clickVolume", p.ClickVolume)
	root.add(ps.node())
	root.add(newNode("Notes")).setAttr("text", quoteNotes(p.Notes))
	for i := range p.Instruments {
		root.add(storeInstrument("Instrument", &p.Instruments[i]))
	}
	for i := range p.DeadInstruments {
		root.add(storeInstrument("DeadInstrument", &p.DeadInstruments[i]))
	}
	return root
}

func storeInstrument(tag string, instr *jokosher.InstrumentData) *node {
	n := newNode(tag)
	n.setAttr("id", strconv.Itoa(instr.ID))
	var ps params
	ps.set("name", instr.Name)
	ps.set("isArmed", instr.Armed)
	ps.set("isMuted", instr.Muted)
	ps.set("isSolo", instr.Solo)
	ps.set("input", optional(instr.Input))
	ps.set("output", optional(instr.Output))
	ps.set("volume", instr.Volume)
	ps.set("isSelected", instr.Selected)
	ps.set("isVisible", instr.Visible)
	ps.set("inTrack", instr.InTrack)
	ps.set("instrType", instr.Type)
	ps.set("pan", instr.Pan)
	n.add(ps.node())
	for _, e := range instr.Effects {
		fx := n.add(newNode("GlobalEffect"))
		fx.setAttr("element", e.Element)
		for _, k := range slices.Sorted(maps.Keys(e.Properties)) {
			fx.add(newNode(k)).setValue(e.Properties[k], "type", "value")
		}
	}
	for i := range instr.Events {
		n.add(storeEvent("Event", &instr.Events[i]))
	}
	for i := range instr.DeadEvents {
		n.add(storeEvent("DeadEvent", &instr.DeadEvents[i]))
	}
	return n
}

func storeEvent(tag string, ev *jokosher.EventData) *node {
	n := newNode(tag)
	n.setAttr("id", strconv.Itoa(ev.ID))
	var ps params
	ps.set("start", ev.Start)
	ps.set("duration", ev.Duration)
	ps.set("name", ev.Name)
	ps.set("offset", ev.Offset)
	ps.set("file", ev.File)
	ps.set("isSelected", ev.Selected)
	ps.set("isLoading", ev.Loading)
	ps.set("isRecording", ev.Recording)
	ps.set("levels_file", ev.LevelsFile)
	n.add(ps.node())
	fp := n.add(newNode("FadePoints"))
	for _, p := range ev.FadePoints {
		pt := fp.add(newNode("FadePoint"))
		pt.setValue(p.Time, "keytype", "keyvalue")
		pt.setValue(p.Gain, "type", "value")
	}
	return n
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// loadOneZero reads a version 1.0 document. Fields missing from the
// document keep the defaults of a new project. An instrument or event whose
// id attribute is missing or not a number gets ID -1 and is expected to be
// given a fresh id by the caller.
func loadOneZero(root *node) (jokosher.ProjectData, error) {
	p := jokosher.NewProjectData()
	// documents that predate name_is_unset always had a name
	p.NameIsUnset = false
	pn := root.child("Parameters")
	if pn == nil {
		return p, fmt.Errorf("%w: project has no Parameters", ErrMalformed)
	}
	ps, err := readParams(pn)
	if err != nil {
		return p, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	ps.getFloat("view_scale", &p.ViewScale)
	ps.getFloat("view_start", &p.ViewStart)
	ps.getString("name", &p.Name)
	ps.getBool("name_is_unset", &p.NameIsUnset)
	ps.getString("author", &p.Author)
	ps.getFloat("volume", &p.Volume)
	ps.getInt("transportMode", &p.TransportMode)
	ps.getInt("bpm", &p.BPM)
	ps.getInt("meter_nom", &p.MeterNom)
	ps.getInt("meter_denom", &p.MeterDenom)
	ps.getString("projectfile", &p.ProjectFile)
	ps.getFloat("clickVolume", &p.ClickVolume)
	if p.TransportMode != jokosher.ModeBarsBeats && p.TransportMode != jokosher.ModeHoursMinsSecs {
		p.TransportMode = jokosher.ModeBarsBeats
	}
	if notes := root.child("Notes"); notes != nil {
		text, _ := notes.attr("text")
		p.Notes = unquoteNotes(text)
	}
	for _, n := range root.all("Instrument") {
		instr, err := loadInstrument(n)
		if err != nil {
			return p, err
		}
		p.Instruments = append(p.Instruments, instr)
	}
	for _, n := range root.all("DeadInstrument") {
		instr, err := loadInstrument(n)
		if err != nil {
			return p, err
		}
		p.DeadInstruments = append(p.DeadInstruments, instr)
	}
	return p, nil
}

func loadInstrument(n *node) (jokosher.InstrumentData, error) {
	instr := jokosher.InstrumentData{ID: loadID(n), Volume: 1, Visible: true}
	pn := n.child("Parameters")
	if pn == nil {
		return instr, fmt.Errorf("%w: instrument %d has no Parameters", ErrMalformed, instr.ID)
	}
	ps, err := readParams(pn)
	if err != nil {
		return instr, fmt.Errorf("%w: instrument %d: %v", ErrMalformed, instr.ID, err)
	}
	ps.getString("name", &instr.Name)
	ps.getBool("isArmed", &instr.Armed)
	ps.getBool("isMuted", &instr.Muted)
	ps.getBool("isSolo", &instr.Solo)
	ps.getString("input", &instr.Input)
	ps.getString("output", &instr.Output)
	ps.getFloat("volume", &instr.Volume)
	ps.getBool("isSelected", &instr.Selected)
	ps.getBool("isVisible", &instr.Visible)
	ps.getInt("inTrack", &instr.InTrack)
	ps.getString("instrType", &instr.Type)
	ps.getFloat("pan", &instr.Pan)
	for _, fx := range n.all("GlobalEffect") {
		e := jokosher.EffectData{Properties: map[string]any{}}
		e.Element, _ = fx.attr("element")
		for _, c := range fx.Children {
			v, err := c.value("type", "value")
			if err != nil {
				return instr, fmt.Errorf("%w: effect %s: %v", ErrMalformed, e.Element, err)
			}
			e.Properties[c.name()] = v
		}
		instr.Effects = append(instr.Effects, e)
	}
	for _, c := range n.all("Event") {
		ev, err := loadEvent(c)
		if err != nil {
			return instr, err
		}
		instr.Events = append(instr.Events, ev)
	}
	for _, c := range n.all("DeadEvent") {
		ev, err := loadEvent(c)
		if err != nil {
			return instr, err
		}
		instr.DeadEvents = append(instr.DeadEvents, ev)
	}
	return instr, nil
}

func loadEvent(n *node) (jokosher.EventData, error) {
	ev := jokosher.EventData{ID: loadID(n)}
	pn := n.child("Parameters")
	if pn == nil {
		return ev, fmt.Errorf("%w: event %d has no Parameters", ErrMalformed, ev.ID)
	}
	ps, err := readParams(pn)
	if err != nil {
		return ev, fmt.Errorf("%w: event %d: %v", ErrMalformed, ev.ID, err)
	}
	ps.getFloat("start", &ev.Start)
	ps.getFloat("duration", &ev.Duration)
	ps.getString("name", &ev.Name)
	ps.getFloat("offset", &ev.Offset)
	ps.getString("file", &ev.File)
	ps.getBool("isSelected", &ev.Selected)
	ps.getBool("isLoading", &ev.Loading)
	ps.getBool("isRecording", &ev.Recording)
	ps.getString("levels_file", &ev.LevelsFile)
	if fp := n.child("FadePoints"); fp != nil {
		for _, c := range fp.Children {
			k, err := c.value("keytype", "keyvalue")
			if err != nil {
				return ev, fmt.Errorf("%w: event %d: %v", ErrMalformed, ev.ID, err)
			}
			v, err := c.value("type", "value")
			if err != nil {
				return ev, fmt.Errorf("%w: event %d: %v", ErrMalformed, ev.ID, err)
			}
			t, ok1 := number(k)
			g, ok2 := number(v)
			if !ok1 || !ok2 {
				return ev, fmt.Errorf("%w: event %d: fade point %v=%v is not numeric", ErrMalformed, ev.ID, k, v)
			}
			ev.FadePoints = ev.FadePoints.Set(t, g)
		}
	}
	return ev, nil
}

func loadID(n *node) int {
	s, _ := n.attr("id")
	id, err := strconv.Atoi(s)
	if err != nil || id < 0 {
		return -1
	}
	return id
}

func number(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

package session

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/device"
	"github.com/jokosher/jokosher/graph"
	"golang.org/x/sync/errgroup"
)

// recording is one armed instrument being recorded into a new event.
type recording struct {
	instrument *Instrument
	event      *Event
	meter      *graph.Element
	encode     *graph.Encode
}

type inputKey struct {
	device  string
	channel int
}

// inputDevice returns the capture device an instrument records from.
func (p *Project) inputDevice(i *Instrument) string {
	id := i.input
	if id == "" {
		id = p.settings.Recording.Device
	}
	return device.Resolve(p.backend, id)
}

// Record starts recording every armed instrument from the transport
// position while the others play along. Nothing is changed when an armed
// instrument has no usable input: the error tells which one.
//
// Instruments on a device offering more than one channel share one capture
// of the whole device, split into channels; an instrument on a mono device
// gets a capture of its own.
func (p *Project) Record() error {
	if p.state != AudioStopped {
		return ErrBusy
	}
	if p.closed {
		return ErrClosed
	}
	var armed []*Instrument
	for _, instr := range p.instruments {
		if instr.armed {
			armed = append(armed, instr)
		}
	}
	if len(armed) == 0 {
		return &jokosher.NoArmedInstrumentsError{}
	}
	var devices []string
	byDevice := map[string][]*Instrument{}
	taken := map[inputKey]*Instrument{}
	for _, instr := range armed {
		dev := p.inputDevice(instr)
		key := inputKey{dev, instr.inTrack}
		if o, ok := taken[key]; ok {
			return &jokosher.ConflictingInputError{
				InstrumentA: o.id,
				InstrumentB: instr.id,
				NameA:       o.name,
				NameB:       instr.name,
				Device:      dev,
				Channel:     instr.inTrack,
			}
		}
		taken[key] = instr
		if _, ok := byDevice[dev]; !ok {
			devices = append(devices, dev)
		}
		byDevice[dev] = append(byDevice[dev], instr)
	}
	offered := make([]int, len(devices))
	var g errgroup.Group
	for k, dev := range devices {
		g.Go(func() error {
			n, err := device.ChannelsOffered(p.backend, dev)
			if err != nil {
				return fmt.Errorf("could not probe capture device %q: %w", dev, err)
			}
			offered[k] = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for k, dev := range devices {
		for _, instr := range byDevice[dev] {
			if instr.inTrack >= offered[k] {
				return &jokosher.UnavailableInputError{Instrument: instr.id, Device: dev, Channel: instr.inTrack, Offered: offered[k]}
			}
		}
	}

	for _, instr := range p.instruments {
		if !instr.armed {
			instr.PrepareFadeAutomation()
		}
	}
	start := p.transport.position
	for k, dev := range devices {
		var err error
		if offered[k] > 1 {
			err = p.buildDeviceCapture(dev, offered[k], byDevice[dev], start)
		} else {
			err = p.buildInstrumentCapture(dev, byDevice[dev][0], start)
		}
		if err != nil {
			p.abortRecording()
			return err
		}
	}
	p.stopAfter = false
	p.pipeline.Seek(start)
	p.pipeline.SetEnd(0)
	// the state is set first so positions past the end are kept
	p.setAudioState(AudioRecording)
	if err := p.pipeline.SetState(graph.StatePlaying); err != nil {
		p.abortRecording()
		return err
	}
	if err := p.startOutput(); err != nil {
		p.abortRecording()
		return err
	}
	p.logger.Info("recording", "instruments", len(armed), "devices", len(devices), "position", start)
	return nil
}

func (p *Project) captureOpener(dev string) graph.CaptureOpener {
	b := p.backend
	return func(channels int) (graph.CaptureStream, error) {
		return b.Open(dev, channels)
	}
}

// buildDeviceCapture captures all channels of dev in one bin and links
// each instrument to its channel once the channel pads exist.
func (p *Project) buildDeviceCapture(dev string, channels int, instrs []*Instrument, start float64) error {
	n := len(p.recBins)
	bin := graph.NewBin(fmt.Sprintf("recordingbin_%d", n))
	de := graph.NewDeinterleave(channels)
	deElem := graph.NewElement(fmt.Sprintf("deinterleave_%d", n), de)
	err := bin.Chain(
		graph.NewElement(fmt.Sprintf("capture_%d", n), graph.NewCapture(p.captureOpener(dev), channels)),
		graph.NewElement(fmt.Sprintf("capturerate_%d", n), graph.NewResample()),
		deElem,
	)
	if err != nil {
		return err
	}
	if err := p.pipeline.AddBin(bin); err != nil {
		return err
	}
	p.recBins = append(p.recBins, bin)
	p.logger.Debug("recording from device", "device", dev, "channels", channels, "instruments", len(instrs))
	for _, instr := range instrs {
		rec, err := p.newRecording(instr, start)
		if err != nil {
			return err
		}
		ibin := graph.NewBin(fmt.Sprintf("recordingbin_%d_%d", n, instr.id))
		if err := ibin.Chain(rec.meter, graph.NewElement(fmt.Sprintf("encode_%d", instr.id), rec.encode)); err != nil {
			return err
		}
		if err := p.pipeline.AddBin(ibin); err != nil {
			return err
		}
		p.recBins = append(p.recBins, ibin)
		inTrack, meter, logger := instr.inTrack, rec.meter, p.logger
		de.OnPadAdded(func(pad int) {
			if pad != inTrack {
				return
			}
			if err := graph.LinkPad(deElem, pad, meter); err != nil {
				logger.Error("could not link channel", "device", dev, "channel", pad, "err", err)
			}
		})
	}
	return nil
}

// buildInstrumentCapture records one instrument from a mono device.
func (p *Project) buildInstrumentCapture(dev string, instr *Instrument, start float64) error {
	n := len(p.recBins)
	rec, err := p.newRecording(instr, start)
	if err != nil {
		return err
	}
	bin := graph.NewBin(fmt.Sprintf("recordingbin_%d", n))
	err = bin.Chain(
		graph.NewElement(fmt.Sprintf("capture_%d", n), graph.NewCapture(p.captureOpener(dev), 1)),
		graph.NewElement(fmt.Sprintf("capturerate_%d", n), graph.NewResample()),
		rec.meter,
		graph.NewElement(fmt.Sprintf("encode_%d", instr.id), rec.encode),
	)
	if err != nil {
		return err
	}
	if err := p.pipeline.AddBin(bin); err != nil {
		return err
	}
	p.recBins = append(p.recBins, bin)
	p.logger.Debug("recording from mono device", "device", dev, "instrument", instr.id)
	return nil
}

// newRecording detaches the instrument from playback and starts its new
// event with a meter that grows the event as audio comes in.
func (p *Project) newRecording(instr *Instrument, start float64) (*recording, error) {
	if err := instr.detach(); err != nil {
		return nil, err
	}
	ev := instr.beginRecording(start)
	meter := graph.NewMeter()
	meter.SetInterval(jokosher.LevelInterval)
	rec := &recording{
		instrument: instr,
		event:      ev,
		meter:      graph.NewElement(fmt.Sprintf("recordlevel_%d", instr.id), meter),
		encode:     graph.NewEncode(ev.Path(), 1, p.settings.Recording.PCM16),
	}
	p.meters[rec.meter] = func(m *graph.LevelMessage) {
		t := m.Time - ev.start
		if t <= 0 {
			return
		}
		ev.levels = ev.levels.Append(t, float32(m.Level()))
		ev.duration = max(ev.duration, t)
		instr.level = jokosher.DbToFloat(m.Decay[0])
		ev.LengthChanged.Emit(ev)
		ev.WaveformChanged.Emit(ev)
		instr.LevelChanged.Emit(instr)
	}
	p.recordings = append(p.recordings, rec)
	return rec, nil
}

// teardownRecording takes the recording bins out of the pipeline, which sets
// them to Null, and only then puts the playback bins back.
func (p *Project) teardownRecording() ([]*recording, error) {
	var errs []error
	for _, b := range p.recBins {
		if p.pipeline.HasBin(b) {
			errs = append(errs, p.pipeline.RemoveBin(b))
		}
	}
	p.recBins = nil
	recs := p.recordings
	p.recordings = nil
	for _, rec := range recs {
		delete(p.meters, rec.meter)
		errs = append(errs, rec.instrument.attach())
	}
	return recs, errors.Join(errs...)
}

// stopRecording is called by Stop once the encoders have been finalized.
func (p *Project) stopRecording() error {
	recs, err := p.teardownRecording()
	for _, rec := range recs {
		rec.instrument.finalizeRecording(rec.event, rec.encode)
	}
	p.logger.Info("recording stopped", "events", len(recs))
	return err
}

// abortRecording undoes a recording that could not be started.
func (p *Project) abortRecording() {
	_ = p.stopOutput()
	_ = p.pipeline.SetState(graph.StateReady)
	recs, err := p.teardownRecording()
	if err != nil {
		p.logger.Warn("could not tear down recording", "err", err)
	}
	for _, rec := range recs {
		rec.instrument.dropEvent(rec.event)
	}
	p.setAudioState(AudioStopped)
}

// beginRecording adds a new event at start that is filled while recording.
func (i *Instrument) beginRecording(start float64) *Event {
	p := i.project
	ev := newEvent(i, p.GenerateUniqueID(-1, true))
	ev.name = i.name
	ev.file = fmt.Sprintf("%s_%d.wav", fileSafe(i.name), ev.id)
	ev.levelsFile = levelsFileName(ev.file, ev.id)
	ev.start = start
	ev.recording = true
	p.deleteFileOnClose(ev.Path())
	p.deleteFileOnClose(p.levelsPath(ev.levelsFile))
	i.events = append(i.events, ev)
	i.EventAdded.Emit(ev)
	return ev
}

// finalizeRecording turns a recorded event into a normal one and loads the
// recorded file. An event nothing was written to is dropped.
func (i *Instrument) finalizeRecording(ev *Event, enc *graph.Encode) {
	p := i.project
	ev.recording = false
	frames := enc.Frames()
	if err := enc.Err(); err != nil || frames == 0 {
		p.logger.Warn("dropping empty recording", "instrument", i.id, "event", ev.id, "err", err)
		i.dropEvent(ev)
		return
	}
	ev.duration = float64(frames) / float64(p.pipeline.SampleRate())
	ev.levels = ev.levels.Slice(0, ev.duration)
	ev.keepLevels = len(ev.levels) > 0
	ev.saveLevels()
	p.spawn(ev.analyse(nil))
	ev.LengthChanged.Emit(ev)
}

// dropEvent removes an event without keeping it in the graveyard.
func (i *Instrument) dropEvent(ev *Event) {
	k := slices.Index(i.events, ev)
	if k < 0 {
		return
	}
	i.events = slices.Delete(i.events, k, k+1)
	i.updateComposition()
	i.EventRemoved.Emit(ev)
}

// fileSafe replaces everything but letters and digits in name with
// underscores.
func fileSafe(name string) string {
	s := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return '_'
	}, name)
	if s == "" {
		return "recording"
	}
	return s
}

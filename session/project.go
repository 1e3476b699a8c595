// Package session is the live, editable model of a project: instruments,
// the events placed on them and the transport, kept in sync with the media
// graph that plays and records them.
//
// A Project is not safe for concurrent use. All calls are made from one
// control goroutine; results of background work (decoding, downloads) and
// messages from the graph are applied by ProcessMessages on that goroutine.
package session

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/config"
	"github.com/jokosher/jokosher/device"
	"github.com/jokosher/jokosher/graph"
	"github.com/jokosher/jokosher/projectfile"
)

type (
	// AudioState is what the project's pipeline is doing.
	AudioState int

	// Project is an open project.
	Project struct {
		logger   *slog.Logger
		settings *config.Settings
		backend  device.Backend
		output   jokosher.AudioOutput
		client   *http.Client
		outputOn bool

		name        string
		nameIsUnset bool
		author      string
		notes       string
		file        string
		audioDir    string
		levelsDir   string

		viewScale   float64
		viewStart   float64
		volume      float64
		bpm         int
		meterNom    int
		meterDenom  int
		clickVolume float64
		level       float64

		state       AudioState
		instruments []*Instrument
		graveyard   []*Instrument
		ids         map[int]bool
		soloCount   int
		transport   *Transport

		deleteOnClose []string
		incremental   bool
		closed        bool

		pipeline   *graph.Pipeline
		mixer      *graph.Element
		meter      *graph.Element
		sink       *graph.Element
		click      *graph.Click
		clickElem  *graph.Element
		meters     map[*graph.Element]func(*graph.LevelMessage)
		recordings []*recording
		recBins    []*graph.Bin
		stopAfter  bool
		busErrors  []*jokosher.PipelineError

		mu      sync.Mutex
		done    []func()
		notify  chan struct{}
		pending int

		InstrumentAdded   Signal[*Instrument]
		InstrumentRemoved Signal[*Instrument]
		AudioStateChanged Signal[AudioState]
		NameChanged       Signal[*Project]
		VolumeChanged     Signal[*Project]
		LevelChanged      Signal[*Project]
		ViewScaleChanged  Signal[*Project]
		ViewStartChanged  Signal[*Project]
		TempoChanged      Signal[*Project]
		ClickChanged      Signal[*Project]
		PipelineError     Signal[*jokosher.PipelineError]
		IncrementalSaved  Signal[*Project]
	}

	// Option configures a project when it is created or opened.
	Option func(p *Project)
)

const (
	AudioStopped AudioState = iota
	AudioPlaying
	AudioPaused
	AudioRecording
	AudioExporting
)

const (
	projectFileName = "project.jokosher"
	projectExt      = ".jokosher"
	incrementalExt  = ".incremental"
	audioDirName    = "audio"
	levelsDirName   = "levels"

	masterLevelInterval = 1.0 / 50
)

var (
	ErrBusy              = errors.New("project is busy playing, recording or exporting")
	ErrClosed            = errors.New("project is closed")
	ErrNoSuchInstrument  = errors.New("no such instrument")
	ErrNoSuchEvent       = errors.New("no such event")
	ErrNoSuchEffect      = errors.New("no such effect")
	ErrEventLoading      = errors.New("event is still loading")
	ErrUnsupportedScheme = errors.New("unsupported URL scheme")
)

func (s AudioState) String() string {
	switch s {
	case AudioStopped:
		return "stopped"
	case AudioPlaying:
		return "playing"
	case AudioPaused:
		return "paused"
	case AudioRecording:
		return "recording"
	case AudioExporting:
		return "exporting"
	}
	return "AudioState(" + strconv.Itoa(int(s)) + ")"
}

// WithLogger sets the logger of the project and its pipeline.
func WithLogger(l *slog.Logger) Option {
	return func(p *Project) { p.logger = l }
}

// WithSettings sets the user settings the project records and renders with.
func WithSettings(s *config.Settings) Option {
	return func(p *Project) { p.settings = s }
}

// WithBackend sets the capture backend used for recording.
func WithBackend(b device.Backend) Option {
	return func(p *Project) { p.backend = b }
}

// WithOutput sets the output the pipeline is played through. Without an
// output nothing drives the pipeline; the caller renders it.
func WithOutput(o jokosher.AudioOutput) Option {
	return func(p *Project) { p.output = o }
}

// WithHTTPClient sets the client used to download events from URLs.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Project) { p.client = c }
}

func newProject(options ...Option) *Project {
	d := jokosher.NewProjectData()
	p := &Project{
		nameIsUnset: d.NameIsUnset,
		viewScale:   d.ViewScale,
		volume:      d.Volume,
		bpm:         d.BPM,
		meterNom:    d.MeterNom,
		meterDenom:  d.MeterDenom,
		ids:         map[int]bool{},
		meters:      map[*graph.Element]func(*graph.LevelMessage){},
		notify:      make(chan struct{}, 1),
	}
	for _, o := range options {
		o(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.settings == nil {
		p.settings = config.Default()
	}
	if p.backend == nil {
		p.backend = device.NewSimulated()
	}
	if p.client == nil {
		p.client = http.DefaultClient
	}
	p.transport = newTransport(p, d.TransportMode)
	p.buildMaster()
	return p
}

// buildMaster creates the pipeline with the parts every project has: the
// mixer all instruments feed, the master meter, the sink and the click.
func (p *Project) buildMaster() {
	p.pipeline = graph.NewPipeline("timeline", p.settings.General.SampleRate, graph.WithLogger(p.logger))
	meter := graph.NewMeter()
	meter.SetInterval(masterLevelInterval)
	p.mixer = graph.NewElement("adder", graph.Mixer{})
	p.meter = graph.NewElement("MasterLevel", meter)
	p.sink = graph.NewElement("mastersink", graph.Sink{})
	p.click = graph.NewClick(float64(p.bpm))
	p.clickElem = graph.NewElement("clicktrack", p.click)
	// the elements are new, so adding and linking them cannot fail
	_ = p.pipeline.Add(p.mixer, p.meter, p.sink, p.clickElem)
	_ = graph.Link(p.mixer, p.meter)
	_ = graph.Link(p.meter, p.sink)
	_ = graph.Link(p.clickElem, p.mixer)
	p.pipeline.SetOutput(p.sink)
	p.meters[p.meter] = func(m *graph.LevelMessage) {
		p.level = jokosher.DbToFloat(m.Decay[0])
		p.LevelChanged.Emit(p)
	}
}

// Create makes a new project folder under location and saves an empty
// project in it. location is a directory path or a file:// URI; the folder
// is named after the current time.
func Create(name, author, location string, options ...Option) (*Project, error) {
	if location == "" {
		return nil, &jokosher.ProjectCreateError{Reason: jokosher.CreateInvalidLocation}
	}
	folder, scheme := parseLocation(location)
	if scheme != "" && scheme != "file" {
		return nil, &jokosher.ProjectCreateError{Reason: jokosher.CreateInvalidURI, Location: location}
	}
	dir, err := makeProjectDir(folder, time.Now())
	if err != nil {
		return nil, err
	}
	p := newProject(options...)
	p.name, p.author = name, author
	p.nameIsUnset = name == ""
	p.file = filepath.Join(dir, projectFileName)
	p.audioDir = filepath.Join(dir, audioDirName)
	p.levelsDir = filepath.Join(dir, levelsDirName)
	if err := p.Save(); err != nil {
		return nil, &jokosher.ProjectCreateError{Reason: jokosher.CreateFailed, Location: location, Err: err}
	}
	p.logger.Info("project created", "file", p.file)
	return p, nil
}

func makeProjectDir(folder string, now time.Time) (string, error) {
	base := filepath.Join(folder, now.Format("2006-01-02-15-04"))
	dir := base
	for n := 1; ; n++ {
		err := os.Mkdir(dir, 0755)
		if err == nil {
			break
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", &jokosher.ProjectCreateError{Reason: jokosher.CreateUnwritable, Location: folder, Err: err}
		}
		if n > 1000 {
			return "", &jokosher.ProjectCreateError{Reason: jokosher.CreatePathExists, Location: base}
		}
		dir = fmt.Sprintf("%s_%d", base, n)
	}
	for _, sub := range []string{audioDirName, levelsDirName} {
		if err := os.Mkdir(filepath.Join(dir, sub), 0755); err != nil {
			return "", &jokosher.ProjectCreateError{Reason: jokosher.CreateUnwritable, Location: dir, Err: err}
		}
	}
	return dir, nil
}

// parseLocation splits a path or URI into a local path and the URI scheme,
// which is empty for plain paths.
func parseLocation(loc string) (path, scheme string) {
	u, err := url.Parse(loc)
	// one letter schemes are drive letters
	if err != nil || len(u.Scheme) < 2 {
		return loc, ""
	}
	if u.Scheme == "file" {
		return filepath.FromSlash(u.Path), "file"
	}
	return "", u.Scheme
}

// Open loads the project file at uri, a path or a file:// URI. Events whose
// peak data is missing are reanalysed in the background.
func Open(uri string, options ...Option) (*Project, error) {
	path, scheme := parseLocation(uri)
	if scheme != "" && scheme != "file" {
		return nil, &jokosher.ProjectOpenError{Reason: jokosher.OpenBadScheme, Path: uri}
	}
	if _, err := os.Stat(path); err != nil {
		return nil, &jokosher.ProjectOpenError{Reason: jokosher.OpenMissingFile, Path: path, Err: err}
	}
	data, err := projectfile.Load(path)
	if err != nil {
		var verr *jokosher.UnsupportedProjectVersionError
		switch {
		case errors.As(err, &verr):
			return nil, &jokosher.ProjectOpenError{Reason: jokosher.OpenUnsupportedVersion, Path: path, Err: err}
		case errors.Is(err, projectfile.ErrMalformed):
			return nil, &jokosher.ProjectOpenError{Reason: jokosher.OpenLoadFailed, Path: path, Err: err}
		}
		return nil, &jokosher.ProjectOpenError{Reason: jokosher.OpenNotDecodable, Path: path, Err: err}
	}
	p := newProject(options...)
	dir := filepath.Dir(path)
	p.file = path
	p.audioDir = filepath.Join(dir, audioDirName)
	p.levelsDir = filepath.Join(dir, levelsDirName)
	for _, d := range []string{p.audioDir, p.levelsDir} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, &jokosher.ProjectOpenError{Reason: jokosher.OpenMkdirFailed, Path: path, Err: err}
		}
	}
	p.restore(data)
	p.logger.Info("project opened", "file", p.file, "instruments", len(p.instruments))
	return p, nil
}

// restore builds the live model from data. Mute states depend on the solo
// count over all instruments, so they are derived after every instrument is
// in place.
func (p *Project) restore(d jokosher.ProjectData) {
	p.name, p.nameIsUnset, p.author, p.notes = d.Name, d.NameIsUnset, d.Author, d.Notes
	p.viewScale, p.viewStart = d.ViewScale, d.ViewStart
	p.volume = d.Volume
	p.bpm, p.meterNom, p.meterDenom = d.BPM, d.MeterNom, d.MeterDenom
	if p.meterNom <= 0 {
		p.meterNom = 4
	}
	if p.meterDenom <= 0 {
		p.meterDenom = 4
	}
	p.transport = newTransport(p, d.TransportMode)
	p.click.SetTempo(float64(p.bpm))
	p.clickVolume = d.ClickVolume
	p.click.SetVolume(p.clickVolume)
	var decode []*Event
	for _, id := range d.Instruments {
		instr := p.restoreInstrumentData(id)
		p.instruments = append(p.instruments, instr)
		decode = append(decode, instr.events...)
	}
	for _, id := range d.DeadInstruments {
		p.graveyard = append(p.graveyard, p.restoreInstrumentData(id))
	}
	p.recountSolo()
	for _, instr := range p.instruments {
		instr.updateVolume()
		instr.updateMute()
		if err := instr.attach(); err != nil {
			p.logger.Warn("could not attach instrument", "instrument", instr.id, "err", err)
		}
	}
	p.decodeEvents(decode...)
}

func (p *Project) restoreInstrumentData(d jokosher.InstrumentData) *Instrument {
	instr := newInstrument(p, p.GenerateUniqueID(d.ID, true), d.Name, d.Type)
	instr.armed, instr.muted, instr.solo = d.Armed, d.Muted, d.Solo
	instr.selected, instr.visible = d.Selected, d.Visible
	instr.input, instr.inTrack, instr.output = d.Input, d.InTrack, d.Output
	instr.volume = d.Volume
	instr.pan = max(-1, min(1, d.Pan))
	instr.panProc.SetPan(instr.pan)
	for _, e := range d.Effects {
		if err := instr.restoreEffect(e); err != nil {
			p.logger.Warn("dropping effect", "instrument", instr.id, "effect", e.Element, "err", err)
		}
	}
	for _, ed := range d.Events {
		instr.events = append(instr.events, instr.restoreEventData(ed))
	}
	for _, ed := range d.DeadEvents {
		instr.graveyard = append(instr.graveyard, instr.restoreEventData(ed))
	}
	instr.updateComposition()
	return instr
}

// Data returns a snapshot of the persistent state of the project.
func (p *Project) Data() jokosher.ProjectData {
	d := jokosher.ProjectData{
		Name:          p.name,
		NameIsUnset:   p.nameIsUnset,
		Author:        p.author,
		Notes:         p.notes,
		ProjectFile:   p.file,
		ViewScale:     p.viewScale,
		ViewStart:     p.viewStart,
		Volume:        p.volume,
		TransportMode: p.transport.mode,
		BPM:           p.bpm,
		MeterNom:      p.meterNom,
		MeterDenom:    p.meterDenom,
		ClickVolume:   p.clickVolume,
	}
	for _, instr := range p.instruments {
		d.Instruments = append(d.Instruments, instr.Data())
	}
	for _, instr := range p.graveyard {
		d.DeadInstruments = append(d.DeadInstruments, instr.Data())
	}
	return d
}

// Save writes the project to its file.
func (p *Project) Save() error {
	return p.SaveAs(p.file)
}

// SaveAs writes the project to path, adding the .jokosher extension if it
// is missing, and makes path the project file. Audio files referenced by the
// saved document are no longer deleted on close.
func (p *Project) SaveAs(path string) error {
	if p.closed {
		return ErrClosed
	}
	if filepath.Ext(path) != projectExt {
		path += projectExt
	}
	d := p.Data()
	d.ProjectFile = path
	if err := projectfile.Save(path, d); err != nil {
		return err
	}
	old := p.IncrementalPath()
	p.file = path
	keep := map[string]bool{}
	for _, instr := range slices.Concat(d.Instruments, d.DeadInstruments) {
		for _, ev := range slices.Concat(instr.Events, instr.DeadEvents) {
			keep[p.audioPath(ev.File)] = true
			if ev.LevelsFile != "" {
				keep[p.levelsPath(ev.LevelsFile)] = true
			}
		}
	}
	p.deleteOnClose = slices.DeleteFunc(p.deleteOnClose, func(f string) bool { return keep[f] })
	p.removeIncremental(old)
	p.logger.Info("project saved", "file", path)
	return nil
}

// IncrementalPath returns the crash recovery copy of the project file.
func (p *Project) IncrementalPath() string {
	return strings.TrimSuffix(p.file, filepath.Ext(p.file)) + incrementalExt
}

// SaveIncremental writes the crash recovery copy of the project.
func (p *Project) SaveIncremental() error {
	if p.closed {
		return ErrClosed
	}
	if err := projectfile.Save(p.IncrementalPath(), p.Data()); err != nil {
		return err
	}
	p.incremental = true
	p.IncrementalSaved.Emit(p)
	return nil
}

func (p *Project) removeIncremental(path string) {
	if !p.incremental {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		p.logger.Warn("could not remove incremental save", "file", path, "err", err)
	}
	p.incremental = false
}

// Close stops the pipeline, cancels background work and deletes the audio
// copied into the project that no saved document refers to. A closed
// project cannot be used again.
func (p *Project) Close() error {
	if p.closed {
		return nil
	}
	err := p.Stop()
	for _, instr := range slices.Concat(p.instruments, p.graveyard) {
		for _, ev := range slices.Concat(instr.events, instr.graveyard) {
			ev.StopGenerateWaveform()
		}
	}
	if serr := p.pipeline.SetState(graph.StateNull); err == nil {
		err = serr
	}
	for _, f := range p.deleteOnClose {
		if rerr := os.Remove(f); rerr != nil && !errors.Is(rerr, fs.ErrNotExist) {
			p.logger.Warn("could not delete file", "file", f, "err", rerr)
		}
	}
	p.deleteOnClose = nil
	p.removeIncremental(p.IncrementalPath())
	p.closed = true
	p.logger.Info("project closed", "file", p.file)
	return err
}

func (p *Project) deleteFileOnClose(path string) {
	if !slices.Contains(p.deleteOnClose, path) {
		p.deleteOnClose = append(p.deleteOnClose, path)
	}
}

func (p *Project) deletedOnClose(path string) bool {
	return slices.Contains(p.deleteOnClose, path)
}

func (p *Project) audioPath(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(p.audioDir, file)
}

func (p *Project) levelsPath(file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	return filepath.Join(p.levelsDir, file)
}

// GenerateUniqueID returns an id not used by any instrument or event of
// the project, live or deleted. A proposal of zero or more is returned if it
// is free; otherwise the lowest free id is. With reserve the id is marked
// used.
func (p *Project) GenerateUniqueID(proposal int, reserve bool) int {
	id := proposal
	if id < 0 || p.ids[id] {
		id = 0
		for p.ids[id] {
			id++
		}
	}
	if reserve {
		p.ids[id] = true
	}
	return id
}

// AddInstrument adds an instrument of the given catalog type. The first
// instrument of a project is armed.
func (p *Project) AddInstrument(name, typ string) (*Instrument, error) {
	if p.closed {
		return nil, ErrClosed
	}
	instr := newInstrument(p, p.GenerateUniqueID(-1, true), name, typ)
	instr.armed = len(p.instruments) == 0
	instr.updateVolume()
	instr.updateMute()
	if err := instr.attach(); err != nil {
		return nil, errors.Join(err, instr.detach())
	}
	p.instruments = append(p.instruments, instr)
	p.logger.Debug("instrument added", "instrument", instr.id, "name", name)
	p.InstrumentAdded.Emit(instr)
	return instr, nil
}

// DeleteInstrument moves the instrument to the graveyard. Its ids stay
// reserved so it can be restored. Instruments cannot be deleted while the
// project records or exports.
func (p *Project) DeleteInstrument(id int) error {
	if p.state == AudioRecording || p.state == AudioExporting {
		return ErrBusy
	}
	i := slices.IndexFunc(p.instruments, func(x *Instrument) bool { return x.id == id })
	if i < 0 {
		return fmt.Errorf("%w: %d", ErrNoSuchInstrument, id)
	}
	instr := p.instruments[i]
	if err := instr.detach(); err != nil {
		return err
	}
	for _, ev := range instr.events {
		ev.StopGenerateWaveform()
	}
	p.instruments = slices.Delete(p.instruments, i, i+1)
	p.graveyard = append(p.graveyard, instr)
	p.updateSolo()
	p.InstrumentRemoved.Emit(instr)
	return nil
}

// RestoreInstrument brings a deleted instrument back.
func (p *Project) RestoreInstrument(id int) (*Instrument, error) {
	i := slices.IndexFunc(p.graveyard, func(x *Instrument) bool { return x.id == id })
	if i < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchInstrument, id)
	}
	instr := p.graveyard[i]
	instr.updateVolume()
	if err := instr.attach(); err != nil {
		return nil, errors.Join(err, instr.detach())
	}
	p.graveyard = slices.Delete(p.graveyard, i, i+1)
	p.instruments = append(p.instruments, instr)
	p.decodeEvents(instr.events...)
	p.updateSolo()
	p.InstrumentAdded.Emit(instr)
	return instr, nil
}

// Instrument returns the live instrument with the given id, or nil.
func (p *Project) Instrument(id int) *Instrument {
	for _, instr := range p.instruments {
		if instr.id == id {
			return instr
		}
	}
	return nil
}

// Instruments returns the live instruments in order.
func (p *Project) Instruments() []*Instrument { return slices.Clone(p.instruments) }

// Graveyard returns the deleted instruments.
func (p *Project) Graveyard() []*Instrument { return slices.Clone(p.graveyard) }

// SelectInstrument makes instr the only selected instrument; nil clears the
// selection.
func (p *Project) SelectInstrument(instr *Instrument) {
	for _, x := range p.instruments {
		x.SetSelected(x == instr)
	}
}

// ClearEventSelections deselects every event of every instrument.
func (p *Project) ClearEventSelections() {
	for _, instr := range p.instruments {
		for _, ev := range instr.events {
			ev.SetSelected(false)
		}
	}
}

// recountSolo sets the solo count from the live instruments.
func (p *Project) recountSolo() {
	p.soloCount = 0
	for _, instr := range p.instruments {
		if instr.solo {
			p.soloCount++
		}
	}
}

// updateSolo recounts the solo instruments and renotifies the mute state of
// every live instrument.
func (p *Project) updateSolo() {
	p.recountSolo()
	for _, instr := range p.instruments {
		instr.updateMute()
	}
}

// SoloCount returns the number of live instruments with solo on.
func (p *Project) SoloCount() int { return p.soloCount }

// Length returns the end of the last event, counting events still being
// analysed with their provisional length.
func (p *Project) Length() float64 {
	var l float64
	for _, instr := range p.instruments {
		for _, ev := range instr.events {
			l = max(l, ev.End())
		}
	}
	return l
}

func (p *Project) Name() string          { return p.name }
func (p *Project) NameIsUnset() bool     { return p.nameIsUnset }
func (p *Project) Author() string        { return p.author }
func (p *Project) Notes() string         { return p.notes }
func (p *Project) File() string          { return p.file }
func (p *Project) AudioDir() string      { return p.audioDir }
func (p *Project) LevelsDir() string     { return p.levelsDir }
func (p *Project) ViewScale() float64    { return p.viewScale }
func (p *Project) ViewStart() float64    { return p.viewStart }
func (p *Project) Volume() float64       { return p.volume }
func (p *Project) Level() float64        { return p.level }
func (p *Project) BPM() int              { return p.bpm }
func (p *Project) ClickVolume() float64  { return p.clickVolume }
func (p *Project) State() AudioState     { return p.state }
func (p *Project) Transport() *Transport { return p.transport }

// Pipeline returns the media graph of the project. Without an output the
// caller drives it with Render or Pull.
func (p *Project) Pipeline() *graph.Pipeline { return p.pipeline }

// Meter returns the time signature.
func (p *Project) Meter() (nom, denom int) { return p.meterNom, p.meterDenom }

func (p *Project) SetName(name string) {
	if name == p.name && !p.nameIsUnset {
		return
	}
	p.name, p.nameIsUnset = name, false
	p.NameChanged.Emit(p)
}

func (p *Project) SetAuthor(author string) {
	if author != p.author {
		p.author = author
		p.NameChanged.Emit(p)
	}
}

func (p *Project) SetNotes(notes string) { p.notes = notes }

// SetViewScale sets the zoom in pixels per second.
func (p *Project) SetViewScale(scale float64) {
	if scale <= 0 || scale == p.viewScale {
		return
	}
	p.viewScale = scale
	p.ViewScaleChanged.Emit(p)
}

// SetViewStart scrolls the view to start seconds, clamped to the project.
func (p *Project) SetViewStart(start float64) {
	start = max(0, min(start, p.Length()))
	if start == p.viewStart {
		return
	}
	p.viewStart = start
	p.ViewStartChanged.Emit(p)
}

// SetVolume sets the master volume in [0,1], which scales every
// instrument.
func (p *Project) SetVolume(v float64) {
	v = max(0, min(1, v))
	if v == p.volume {
		return
	}
	p.volume = v
	for _, instr := range p.instruments {
		instr.updateVolume()
	}
	p.VolumeChanged.Emit(p)
}

// SetBPM sets the tempo of the project and the click.
func (p *Project) SetBPM(bpm int) {
	if bpm <= 0 || bpm == p.bpm {
		return
	}
	p.bpm = bpm
	p.click.SetTempo(float64(bpm))
	p.TempoChanged.Emit(p)
}

// SetMeter sets the time signature.
func (p *Project) SetMeter(nom, denom int) {
	if nom <= 0 || denom <= 0 || (nom == p.meterNom && denom == p.meterDenom) {
		return
	}
	p.meterNom, p.meterDenom = nom, denom
	p.TempoChanged.Emit(p)
}

// SetClickVolume sets the click volume in [0,1]; below 0.01 the click is
// silent.
func (p *Project) SetClickVolume(v float64) {
	v = max(0, min(1, v))
	if v == p.clickVolume {
		return
	}
	p.clickVolume = v
	p.click.SetVolume(v)
	p.ClickChanged.Emit(p)
}

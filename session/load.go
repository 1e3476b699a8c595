package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/decode"
	"github.com/jokosher/jokosher/graph"
	"golang.org/x/sync/errgroup"
)

type (
	// job runs in the background and returns the function that applies its
	// result on the control goroutine.
	job func() func()

	analysis struct {
		audio    jokosher.AudioBuffer
		levels   jokosher.LevelsList
		duration float64
		saveErr  error
	}
)

var decodeWorkers = max(1, runtime.GOMAXPROCS(0))

// spawn runs jobs in the background, at most decodeWorkers at a time.
func (p *Project) spawn(jobs ...job) {
	if len(jobs) == 0 {
		return
	}
	p.pending += len(jobs)
	go func() {
		var g errgroup.Group
		g.SetLimit(decodeWorkers)
		for _, j := range jobs {
			g.Go(func() error {
				p.deliver(j())
				return nil
			})
		}
		_ = g.Wait()
	}()
}

func (p *Project) deliver(apply func()) {
	p.mu.Lock()
	p.done = append(p.done, apply)
	p.mu.Unlock()
	graph.TrySend(p.notify, struct{}{})
}

func (p *Project) applyDone() {
	p.mu.Lock()
	done := p.done
	p.done = nil
	p.mu.Unlock()
	for _, apply := range done {
		p.pending--
		apply()
	}
}

// Pending returns the number of background jobs whose results have not
// been applied yet.
func (p *Project) Pending() int { return p.pending }

// WaitLoaded processes messages until every background job has finished
// and its result is applied, or ctx is done.
func (p *Project) WaitLoaded(ctx context.Context) error {
	for {
		p.ProcessMessages()
		if p.pending == 0 {
			return nil
		}
		select {
		case <-p.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// decodeEvents analyses the files of the events in the background.
func (p *Project) decodeEvents(events ...*Event) {
	var jobs []job
	for _, ev := range events {
		if ev.recording {
			continue
		}
		jobs = append(jobs, ev.analyse(nil))
	}
	p.spawn(jobs...)
}

// GenerateWaveform decodes the backing file in the background to get the
// audio and the peak series. The event is loading until the result is
// applied by ProcessMessages.
func (e *Event) GenerateWaveform() {
	e.keepLevels = false
	e.instrument.project.spawn(e.analyse(nil))
}

// StopGenerateWaveform cancels the analysis in progress, if there is one.
func (e *Event) StopGenerateWaveform() {
	if e.cancel == nil {
		return
	}
	e.cancel()
	e.cancel = nil
	e.gen++
	if e.loading {
		e.loading, e.downloading = false, false
		e.LoadingChanged.Emit(e)
	}
}

// analyse marks the event loading and returns the job that fetches the
// file, if fetch is given, and decodes it.
func (e *Event) analyse(fetch func(ctx context.Context) error) job {
	e.StopGenerateWaveform()
	p := e.instrument.project
	ctx, cancel := context.WithCancel(context.Background())
	e.gen++
	gen := e.gen
	e.cancel = cancel
	e.loading, e.corrupt = true, nil
	filePath := e.Path()
	offset, duration := e.offset, e.duration
	var levelsPath string
	if !e.keepLevels || len(e.levels) == 0 {
		if e.levelsFile == "" {
			e.levelsFile = levelsFileName(e.file, e.id)
		}
		levelsPath = p.levelsPath(e.levelsFile)
	}
	if fetch == nil && duration <= 0 {
		if info, err := decode.Probe(filePath); err == nil {
			e.loadingLength = max(0, info.Duration-offset)
		}
	}
	rate := p.pipeline.SampleRate()
	e.LoadingChanged.Emit(e)
	return func() func() {
		if fetch != nil {
			if err := fetch(ctx); err != nil {
				return func() { e.fetchFailed(gen, err) }
			}
		}
		a, err := analyseFile(ctx, filePath, rate, offset, duration, levelsPath)
		if err != nil {
			return func() { e.analysisFailed(gen, filePath, err) }
		}
		return func() { e.analysisDone(gen, a) }
	}
}

// analyseFile decodes the file at path. A duration of zero, or one that
// runs past the end of the file, is replaced by the rest of the file from
// offset. With a levelsPath the peak series of the played part is computed
// and saved there.
func analyseFile(ctx context.Context, path string, rate int, offset, duration float64, levelsPath string) (analysis, error) {
	buf, err := decode.File(ctx, path)
	if err != nil {
		return analysis{}, err
	}
	fileDuration := buf.Duration()
	if duration <= 0 || offset+duration > fileDuration {
		duration = max(0, fileDuration-offset)
	}
	a := analysis{audio: jokosher.Resample(buf.Stereo(), rate), duration: duration}
	if levelsPath != "" {
		a.levels = jokosher.LevelsFromBuffer(buf, jokosher.LevelInterval, 0).Slice(offset, offset+duration)
		a.saveErr = jokosher.SaveLevels(levelsPath, a.levels)
	}
	return a, nil
}

func (e *Event) finishAnalysis(gen int) bool {
	if gen != e.gen {
		return false
	}
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.loading, e.downloading = false, false
	e.loadingLength = 0
	return true
}

func (e *Event) analysisDone(gen int, a analysis) {
	if !e.finishAnalysis(gen) {
		return
	}
	p := e.instrument.project
	if a.saveErr != nil {
		p.logger.Warn("could not save levels", "event", e.id, "err", a.saveErr)
	}
	e.audio = a.audio
	e.duration = a.duration
	if a.levels != nil || !e.keepLevels {
		e.levels = a.levels
	}
	e.keepLevels = false
	if e.instrument.Event(e.id) == e {
		e.MoveButDoNotOverlap(e.start)
	}
	e.instrument.updateComposition()
	p.logger.Debug("event loaded", "event", e.id, "duration", e.duration)
	e.LengthChanged.Emit(e)
	e.LoadingChanged.Emit(e)
	e.WaveformChanged.Emit(e)
}

func (e *Event) analysisFailed(gen int, path string, err error) {
	if errors.Is(err, context.Canceled) || !e.finishAnalysis(gen) {
		return
	}
	e.corrupt = &jokosher.CorruptSourceError{Path: path, Err: err}
	e.instrument.project.logger.Warn("could not decode event", "event", e.id, "file", path, "err", err)
	e.LoadingChanged.Emit(e)
	e.Failed.Emit(e.corrupt)
}

// fetchFailed drops an event whose download failed. The event never had
// any audio, so it is not kept in the graveyard.
func (e *Event) fetchFailed(gen int, err error) {
	if errors.Is(err, context.Canceled) || !e.finishAnalysis(gen) {
		return
	}
	ioErr := &jokosher.IOError{Op: "download", Path: e.source, Err: err}
	e.instrument.project.logger.Warn("download failed", "event", e.id, "url", e.source, "err", err)
	e.instrument.dropEvent(e)
	e.Failed.Emit(ioErr)
}

// levelsFileName returns the name of the peak file of event id on file.
func levelsFileName(file string, id int) string {
	base := filepath.Base(file)
	return fmt.Sprintf("%s_%d.levels", strings.TrimSuffix(base, filepath.Ext(base)), id)
}

// AddEventFromFile copies the file at src into the project audio folder
// and places an event for it as near start as it fits. The copy is named
// after the file and the event id. An empty name is taken from the file's
// tags or name.
func (i *Instrument) AddEventFromFile(start float64, src, name string) (*Event, error) {
	p := i.project
	id := p.GenerateUniqueID(-1, false)
	base := strings.ReplaceAll(filepath.Base(src), " ", "_")
	ext := filepath.Ext(base)
	file := fmt.Sprintf("%s_%d%s", strings.TrimSuffix(base, ext), id, ext)
	dst := p.audioPath(file)
	if err := copyFile(src, dst); err != nil {
		return nil, &jokosher.IOError{Op: "copy", Path: src, Err: err}
	}
	p.deleteFileOnClose(dst)
	if name == "" {
		name = decode.Title(src)
	}
	ev := newEvent(i, p.GenerateUniqueID(id, true))
	ev.name, ev.file = name, file
	i.placeEvent(ev, start, nil)
	return ev, nil
}

// AddEventsFromFiles adds the files one after another from start. It stops
// at the first file that cannot be copied.
func (i *Instrument) AddEventsFromFiles(start float64, files ...string) ([]*Event, error) {
	var ret []*Event
	for _, f := range files {
		ev, err := i.AddEventFromFile(start, f, "")
		if err != nil {
			return ret, err
		}
		ret = append(ret, ev)
		start = ev.End()
	}
	return ret, nil
}

// AddEventFromLocalCopy adds an event for a file that is already in the
// project audio folder, without copying it. A known duration and peak file
// are used as they are.
func (i *Instrument) AddEventFromLocalCopy(start float64, file, name string, duration float64, levelsFile string) (*Event, error) {
	p := i.project
	if _, err := os.Stat(p.audioPath(file)); err != nil {
		return nil, &jokosher.IOError{Op: "open", Path: file, Err: err}
	}
	ev := newEvent(i, p.GenerateUniqueID(-1, true))
	ev.file, ev.name = file, name
	if name == "" {
		ev.name = decode.Title(p.audioPath(file))
	}
	ev.duration = max(0, duration)
	if levelsFile != "" {
		if levels, err := jokosher.LoadLevels(p.levelsPath(levelsFile)); err == nil {
			ev.levelsFile, ev.levels, ev.keepLevels = levelsFile, levels, true
		}
	}
	i.placeEvent(ev, start, nil)
	return ev, nil
}

// AddEventFromURL downloads an http or https URL into the project audio
// folder in the background. If the download fails, the event is removed
// again and its Failed signal reports a *jokosher.IOError.
func (i *Instrument) AddEventFromURL(start float64, rawURL string) (*Event, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &jokosher.IOError{Op: "download", Path: rawURL, Err: err}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &jokosher.IOError{Op: "download", Path: rawURL, Err: ErrUnsupportedScheme}
	}
	p := i.project
	ev := newEvent(i, p.GenerateUniqueID(-1, true))
	ev.file = strconv.Itoa(ev.id)
	ev.name = path.Base(u.Path)
	if ev.name == "/" || ev.name == "." {
		ev.name = rawURL
	}
	ev.source, ev.downloading = rawURL, true
	dst := ev.Path()
	p.deleteFileOnClose(dst)
	client := p.client
	i.placeEvent(ev, start, func(ctx context.Context) error {
		return download(ctx, client, rawURL, dst)
	})
	return ev, nil
}

// placeEvent adds a new event and starts its analysis.
func (i *Instrument) placeEvent(ev *Event, start float64, fetch func(ctx context.Context) error) {
	p := i.project
	if ev.levelsFile == "" {
		ev.levelsFile = levelsFileName(ev.file, ev.id)
	}
	if p.deletedOnClose(ev.Path()) {
		p.deleteFileOnClose(p.levelsPath(ev.levelsFile))
	}
	j := ev.analyse(fetch)
	i.events = append(i.events, ev)
	ev.MoveButDoNotOverlap(start)
	p.logger.Debug("event added", "instrument", i.id, "event", ev.id, "file", ev.file)
	i.EventAdded.Emit(ev)
	p.spawn(j)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
	}
	return err
}

// download fetches rawURL into dst through a temporary file, so dst only
// ever holds a complete download.
func download(ctx context.Context, client *http.Client, rawURL, dst string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server replied %s", resp.Status)
	}
	tmp := filepath.Join(filepath.Dir(dst), "."+uuid.NewString())
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	_, err = io.Copy(f, resp.Body)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp, dst)
	}
	if err != nil {
		os.Remove(tmp)
	}
	return err
}

package session

import (
	"context"
	"errors"
	"os"
	"slices"

	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/graph"
)

// ProcessMessages applies the results of finished background work and
// handles the messages posted by the graph since the last call: levels go
// to the meters, positions to the transport, and end-of-stream or a
// pipeline error stop playback. It must be called regularly from the
// control goroutine.
func (p *Project) ProcessMessages() {
	p.applyDone()
	bus := p.pipeline.Bus()
	for {
		m, ok := bus.Pop()
		if !ok {
			break
		}
		switch m := m.(type) {
		case *graph.LevelMessage:
			if f, ok := p.meters[m.Source]; ok {
				f(m)
			}
		case *graph.PositionMessage:
			if p.state == AudioPlaying || p.state == AudioRecording {
				p.transport.setPosition(m.Position)
			}
		case *graph.EOSMessage:
			if p.state == AudioPlaying {
				p.stopAfter = true
			}
		case *graph.ErrorMessage:
			p.handleError(m)
		case *graph.StateChangedMessage:
			p.logger.Debug("pipeline state", "old", m.Old, "new", m.New, "pending", m.Pending)
		}
	}
	if p.stopAfter {
		p.stopAfter = false
		if err := p.Stop(); err != nil {
			p.logger.Warn("could not stop", "err", err)
		}
	}
}

// handleError reports a fault of the graph. It stops playback or recording
// once the current messages are handled; an export notices the error
// itself.
func (p *Project) handleError(m *graph.ErrorMessage) {
	msg := "unknown error"
	if m.Err != nil {
		msg = m.Err.Error()
	}
	perr := &jokosher.PipelineError{Domain: m.Domain.String(), Code: int(m.Code), Message: msg, Debug: m.Debug}
	attrs := []any{"domain", perr.Domain, "code", m.Code, "err", msg}
	if m.Source != nil {
		attrs = append(attrs, "element", m.Source.Name())
	}
	if f, err := os.CreateTemp("", "jokosher-*.dot"); err == nil {
		if p.pipeline.DumpDot(f) == nil {
			attrs = append(attrs, "graph", f.Name())
		}
		f.Close()
	}
	p.logger.Error("pipeline error", attrs...)
	p.busErrors = append(p.busErrors, perr)
	if p.state == AudioPlaying || p.state == AudioPaused || p.state == AudioRecording {
		p.stopAfter = true
	}
	p.PipelineError.Emit(perr)
}

// Errors returns the pipeline errors reported since the project was
// opened.
func (p *Project) Errors() []*jokosher.PipelineError { return slices.Clone(p.busErrors) }

func (p *Project) setAudioState(s AudioState) {
	if s == p.state {
		return
	}
	p.logger.Debug("audio state", "from", p.state, "to", s)
	p.state = s
	p.AudioStateChanged.Emit(s)
}

func (p *Project) startOutput() error {
	if p.output == nil || p.outputOn {
		return nil
	}
	if err := p.output.Play(p.pipeline); err != nil {
		return err
	}
	p.outputOn = true
	return nil
}

func (p *Project) stopOutput() error {
	if !p.outputOn {
		return nil
	}
	p.outputOn = false
	return p.output.Stop()
}

// Play starts playback from the transport position, or resumes it when
// paused. The fade curves of all instruments are rebuilt first.
func (p *Project) Play() error {
	switch p.state {
	case AudioPlaying:
		return nil
	case AudioRecording, AudioExporting:
		return ErrBusy
	case AudioPaused:
		if err := p.pipeline.SetState(graph.StatePlaying); err != nil {
			return err
		}
		p.setAudioState(AudioPlaying)
		return nil
	}
	if p.closed {
		return ErrClosed
	}
	for _, instr := range p.instruments {
		instr.PrepareFadeAutomation()
	}
	p.stopAfter = false
	p.pipeline.Seek(p.transport.position)
	p.pipeline.SetEnd(p.Length())
	if err := p.pipeline.SetState(graph.StatePlaying); err != nil {
		_ = p.pipeline.SetState(graph.StateReady)
		return err
	}
	if err := p.startOutput(); err != nil {
		_ = p.pipeline.SetState(graph.StateReady)
		return err
	}
	p.logger.Info("playing", "position", p.transport.position)
	p.setAudioState(AudioPlaying)
	return nil
}

// Pause holds playback at the current position.
func (p *Project) Pause() error {
	if p.state != AudioPlaying {
		return nil
	}
	if err := p.pipeline.SetState(graph.StatePaused); err != nil {
		return err
	}
	p.setAudioState(AudioPaused)
	return nil
}

// Stop ends playback or recording. The playhead stays where it stopped.
// Recordings are finalized and the playback bins of the recording
// instruments are put back.
func (p *Project) Stop() error {
	if p.state == AudioStopped || p.state == AudioExporting {
		return nil
	}
	recording := p.state == AudioRecording
	errs := []error{p.stopOutput(), p.pipeline.SetState(graph.StateReady)}
	if recording {
		errs = append(errs, p.stopRecording())
	}
	p.logger.Info("stopped", "position", p.transport.position)
	p.setAudioState(AudioStopped)
	return errors.Join(errs...)
}

// Export renders the whole project into a WAV file at path, as fast as
// possible, with 16 bit samples if pcm16 is set or float samples otherwise.
// The transport does not move while exporting.
func (p *Project) Export(ctx context.Context, path string, pcm16 bool) (err error) {
	if p.state != AudioStopped {
		return ErrBusy
	}
	if p.closed {
		return ErrClosed
	}
	f, err := os.Create(path)
	if err != nil {
		return &jokosher.IOError{Op: "export", Path: path, Err: err}
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = &jokosher.IOError{Op: "export", Path: path, Err: cerr}
		}
		if err != nil {
			os.Remove(path)
		}
	}()
	rate := p.pipeline.SampleRate()
	ww, err := jokosher.NewWavWriter(f, 2, rate, pcm16)
	if err != nil {
		return &jokosher.IOError{Op: "export", Path: path, Err: err}
	}
	for _, instr := range p.instruments {
		instr.PrepareFadeAutomation()
	}
	length := p.Length()
	errCount := len(p.busErrors)
	p.pipeline.Seek(0)
	p.pipeline.SetEnd(0)
	if err := p.pipeline.SetState(graph.StatePlaying); err != nil {
		_ = p.pipeline.SetState(graph.StateReady)
		return err
	}
	p.setAudioState(AudioExporting)
	p.logger.Info("exporting", "file", path, "length", length)
	defer func() {
		if serr := p.pipeline.SetState(graph.StateReady); err == nil {
			err = serr
		}
		p.pipeline.Seek(p.transport.position)
		p.setAudioState(AudioStopped)
	}()
	block := max(64, p.settings.General.BufferSize)
	remaining := int(length*float64(rate) + 0.5)
	for remaining > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := min(block, remaining)
		buf := p.pipeline.Pull(n)
		if err := ww.Write(buf.Data); err != nil {
			return &jokosher.IOError{Op: "export", Path: path, Err: err}
		}
		remaining -= n
		p.ProcessMessages()
		if len(p.busErrors) > errCount {
			return p.busErrors[errCount]
		}
	}
	if err := ww.Close(); err != nil {
		return &jokosher.IOError{Op: "export", Path: path, Err: err}
	}
	p.logger.Info("exported", "file", path, "frames", ww.Frames())
	return nil
}

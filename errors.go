package jokosher

import (
	"errors"
	"fmt"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

type (
	// CreateReason tells why creating a project failed.
	CreateReason int

	// OpenReason tells why opening a project failed.
	OpenReason int
)

const (
	CreateFailed CreateReason = iota + 1
	CreatePathExists
	CreateUnwritable
	CreateInvalidLocation
	CreateInvalidURI
)

const (
	OpenMkdirFailed OpenReason = iota
	OpenBadScheme
	OpenNotDecodable
	OpenUnsupportedVersion
	OpenMissingFile
	OpenLoadFailed
)

var (
	ErrInvalidPosition = errors.New("position is before the start of the timeline")
	ErrEmptySelection  = errors.New("selection is empty")
	ErrNoProject       = errors.New("no project is open")
)

type (
	// ProjectCreateError is returned when a new project could not be set up
	// on disk.
	ProjectCreateError struct {
		Reason   CreateReason
		Location string
		Err      error
	}

	// ProjectOpenError is returned when a project file could not be loaded.
	ProjectOpenError struct {
		Reason OpenReason
		Path   string
		Err    error
	}

	// UnsupportedProjectVersionError is returned for a project file written
	// in a format version no loader understands.
	UnsupportedProjectVersionError struct {
		Version string
	}

	// OverlapError is returned when placing an event at Start would make it
	// overlap the event Other on the same instrument.
	OverlapError struct {
		Event int
		Other int
		Start float64
	}

	// InvalidSplitPointError is returned when an event is split at an offset
	// outside (0, Duration).
	InvalidSplitPointError struct {
		Event    int
		Offset   float64
		Duration float64
	}

	// NoArmedInstrumentsError is returned when recording is started with no
	// instrument armed.
	NoArmedInstrumentsError struct{}

	// ConflictingInputError is returned when two armed instruments would
	// record from the same channel of the same device.
	ConflictingInputError struct {
		InstrumentA, InstrumentB int
		NameA, NameB             string
		Device                   string
		Channel                  int
	}

	// UnavailableInputError is returned when an armed instrument asks for a
	// channel its capture device does not offer.
	UnavailableInputError struct {
		Instrument int
		Device     string
		Channel    int
		Offered    int
	}

	// CorruptSourceError is reported when the audio file behind an event
	// cannot be decoded.
	CorruptSourceError struct {
		Path string
		Err  error
	}

	// PipelineError is a fatal fault of the realtime graph.
	PipelineError struct {
		Domain  string
		Code    int
		Message string
		Debug   string
	}

	// IOError is returned when copying or downloading audio into a project
	// fails.
	IOError struct {
		Op   string
		Path string
		Err  error
	}

	// UnknownEffectError is returned when an effect name has no processor.
	UnknownEffectError struct {
		Name string
	}
)

func (r CreateReason) String() string {
	switch r {
	case CreateFailed:
		return "unable to create project"
	case CreatePathExists:
		return "project path already exists"
	case CreateUnwritable:
		return "unable to create project files"
	case CreateInvalidLocation:
		return "invalid project location"
	case CreateInvalidURI:
		return "invalid project URI"
	}
	return fmt.Sprintf("CreateReason(%d)", int(r))
}

func (r OpenReason) String() string {
	switch r {
	case OpenMkdirFailed:
		return "unable to create project directories"
	case OpenBadScheme:
		return "unsupported URI scheme"
	case OpenNotDecodable:
		return "project file is not readable"
	case OpenUnsupportedVersion:
		return "unsupported project version"
	case OpenMissingFile:
		return "project file does not exist"
	case OpenLoadFailed:
		return "project file could not be loaded"
	}
	return fmt.Sprintf("OpenReason(%d)", int(r))
}

func (e *ProjectCreateError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("create project %q: %v: %v", e.Location, e.Reason, e.Err)
	}
	return fmt.Sprintf("create project %q: %v", e.Location, e.Reason)
}

func (e *ProjectCreateError) Unwrap() error { return e.Err }

func (e *ProjectOpenError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("open project %q: %v: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("open project %q: %v", e.Path, e.Reason)
}

func (e *ProjectOpenError) Unwrap() error { return e.Err }

func (e *UnsupportedProjectVersionError) Error() string {
	return fmt.Sprintf("unsupported project file version %q", e.Version)
}

func (e *OverlapError) Error() string {
	return fmt.Sprintf("event %d at %.3fs would overlap event %d", e.Event, e.Start, e.Other)
}

func (e *InvalidSplitPointError) Error() string {
	return fmt.Sprintf("cannot split event %d at %.3fs: offset must be inside (0, %.3f)", e.Event, e.Offset, e.Duration)
}

func (e *NoArmedInstrumentsError) Error() string {
	return "no instruments are armed for recording"
}

func (e *ConflictingInputError) Error() string {
	device := e.Device
	if device == "" {
		device = "default device"
	}
	return fmt.Sprintf("instruments %q and %q both record from channel %d of %s", e.NameA, e.NameB, e.Channel, device)
}

func (e *UnavailableInputError) Error() string {
	return fmt.Sprintf("instrument %d records from channel %d but device %q offers %d", e.Instrument, e.Channel, e.Device, e.Offered)
}

func (e *CorruptSourceError) Error() string {
	return fmt.Sprintf("cannot decode %q: %v", e.Path, e.Err)
}

func (e *CorruptSourceError) Unwrap() error { return e.Err }

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error (%s/%d): %s", e.Domain, e.Code, e.Message)
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

func (e *UnknownEffectError) Error() string {
	return fmt.Sprintf("unknown effect %q", e.Name)
}

// Annotate wraps err with a user-facing description and a kind, for the UI
// to show in a message box. It returns nil if err is nil.
func Annotate(err error, kind ftag.Kind, internal, user string) error {
	if err == nil {
		return nil
	}
	return fault.Wrap(err, fmsg.WithDesc(internal, user), ftag.With(kind))
}

// UserMessage returns the user-facing description attached to err with
// Annotate, or the error text if there is none.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if issue := fmsg.GetIssue(err); issue != "" {
		return issue
	}
	return err.Error()
}

// Kind returns the kind attached to err with Annotate.
func Kind(err error) ftag.Kind {
	return ftag.Get(err)
}

package session

import (
	"errors"
	"log/slog"

	"github.com/Southclaws/fault/ftag"
	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/config"
	"github.com/jokosher/jokosher/device"
)

// Session holds the one project that is open at a time, together with what
// outlives it: the settings, the capture backend, the audio output and the
// instrument catalog.
type Session struct {
	logger   *slog.Logger
	settings *config.Settings
	catalog  *Catalog
	options  []Option
	project  *Project
}

// NewSession returns a session without a project. The options are passed on
// to every project the session creates or opens. Without a backend option
// the capture backend named in the settings is used.
func NewSession(options ...Option) (*Session, error) {
	var probe Project
	for _, o := range options {
		o(&probe)
	}
	s := &Session{logger: probe.logger, settings: probe.settings, catalog: NewCatalog()}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.settings == nil {
		s.settings = config.Default()
	}
	s.options = append([]Option{WithLogger(s.logger), WithSettings(s.settings)}, options...)
	if probe.backend == nil {
		b, err := device.OpenBackend(s.settings.Recording.AudioSrc)
		if err != nil {
			return nil, jokosher.Annotate(err, ftag.InvalidArgument, "opening capture backend", "The audio source in the settings is not available.")
		}
		s.options = append(s.options, WithBackend(b))
	}
	return s, nil
}

func (s *Session) Settings() *config.Settings { return s.settings }
func (s *Session) Catalog() *Catalog          { return s.catalog }

// Project returns the open project, or nil.
func (s *Session) Project() *Project { return s.project }

// Create closes the open project and creates a new one under location.
func (s *Session) Create(name, author, location string) (*Project, error) {
	if err := s.Close(); err != nil {
		return nil, err
	}
	p, err := Create(name, author, location, s.options...)
	if err != nil {
		return nil, annotateCreate(err)
	}
	s.project = p
	s.settings.AddRecent(p.File(), p.Name())
	return p, nil
}

// Open closes the open project and opens the one at uri.
func (s *Session) Open(uri string) (*Project, error) {
	if err := s.Close(); err != nil {
		return nil, err
	}
	p, err := Open(uri, s.options...)
	if err != nil {
		return nil, annotateOpen(err)
	}
	s.project = p
	s.settings.AddRecent(p.File(), p.Name())
	return p, nil
}

// Close closes the open project, if there is one.
func (s *Session) Close() error {
	if s.project == nil {
		return nil
	}
	p := s.project
	s.project = nil
	if err := p.Close(); err != nil {
		return jokosher.Annotate(err, ftag.Internal, "closing project", "The project could not be closed cleanly.")
	}
	return nil
}

func annotateCreate(err error) error {
	var cerr *jokosher.ProjectCreateError
	if !errors.As(err, &cerr) {
		return jokosher.Annotate(err, ftag.Internal, "creating project", "The project could not be created.")
	}
	switch cerr.Reason {
	case jokosher.CreateInvalidLocation:
		return jokosher.Annotate(err, ftag.InvalidArgument, "creating project", "No location was given for the new project.")
	case jokosher.CreateInvalidURI:
		return jokosher.Annotate(err, ftag.InvalidArgument, "creating project", "Projects can only be created on the local disk.")
	case jokosher.CreatePathExists:
		return jokosher.Annotate(err, ftag.AlreadyExists, "creating project", "A project folder with this name already exists.")
	case jokosher.CreateUnwritable:
		return jokosher.Annotate(err, ftag.PermissionDenied, "creating project", "The project folder could not be written.")
	}
	return jokosher.Annotate(err, ftag.Internal, "creating project", "The project could not be created.")
}

func annotateOpen(err error) error {
	var oerr *jokosher.ProjectOpenError
	if !errors.As(err, &oerr) {
		return jokosher.Annotate(err, ftag.Internal, "opening project", "The project could not be opened.")
	}
	switch oerr.Reason {
	case jokosher.OpenMissingFile:
		return jokosher.Annotate(err, ftag.NotFound, "opening project", "The project file does not exist.")
	case jokosher.OpenBadScheme:
		return jokosher.Annotate(err, ftag.InvalidArgument, "opening project", "Only projects on the local disk can be opened.")
	case jokosher.OpenUnsupportedVersion:
		return jokosher.Annotate(err, ftag.InvalidArgument, "opening project", "The project was saved by a version that cannot be read.")
	case jokosher.OpenMkdirFailed:
		return jokosher.Annotate(err, ftag.PermissionDenied, "opening project", "The project folders could not be created.")
	}
	return jokosher.Annotate(err, ftag.Internal, "opening project", "The project file is damaged.")
}

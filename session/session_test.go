package session_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Southclaws/fault/ftag"
	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/config"
	"github.com/jokosher/jokosher/session"
)

func newSession(t *testing.T, options ...session.Option) *session.Session {
	t.Helper()
	s, err := session.NewSession(testOptions(options...)...)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSessionCreateAndOpen(t *testing.T) {
	s := newSession(t)
	if s.Project() != nil {
		t.Fatalf("new session has a project")
	}
	first, err := s.Create("first", "tester", t.TempDir())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	second, err := s.Create("second", "tester", t.TempDir())
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Project() != second {
		t.Errorf("session holds the wrong project")
	}
	if err := first.Play(); !errors.Is(err, session.ErrClosed) {
		t.Errorf("first project still usable after the second was created: %v", err)
	}
	recent := s.Settings().Recent
	if len(recent) != 2 || recent[0].Path != second.File() || recent[1].Path != first.File() {
		t.Errorf("recent = %+v", recent)
	}

	p, err := s.Open(first.File())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if p.Name() != "first" {
		t.Errorf("opened %q", p.Name())
	}
	if s.Settings().Recent[0].Path != first.File() || len(s.Settings().Recent) != 2 {
		t.Errorf("recent after open = %+v", s.Settings().Recent)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if s.Project() != nil {
		t.Errorf("project kept after Close")
	}
}

func TestSessionErrorsAreAnnotated(t *testing.T) {
	s := newSession(t)
	existing := t.TempDir()

	t.Run("missing project", func(t *testing.T) {
		_, err := s.Open(filepath.Join(existing, "nothing.jokosher"))
		var oerr *jokosher.ProjectOpenError
		if !errors.As(err, &oerr) || oerr.Reason != jokosher.OpenMissingFile {
			t.Fatalf("Open = %v", err)
		}
		if jokosher.Kind(err) != ftag.NotFound {
			t.Errorf("kind = %v", jokosher.Kind(err))
		}
		if jokosher.UserMessage(err) != "The project file does not exist." {
			t.Errorf("user message = %q", jokosher.UserMessage(err))
		}
	})
	t.Run("remote location", func(t *testing.T) {
		_, err := s.Create("remote", "tester", "http://example.com/projects")
		if jokosher.Kind(err) != ftag.InvalidArgument {
			t.Errorf("kind = %v for %v", jokosher.Kind(err), err)
		}
	})
	t.Run("unwritable", func(t *testing.T) {
		_, err := s.Create("nowhere", "tester", filepath.Join(existing, "missing", "parent"))
		if jokosher.Kind(err) != ftag.PermissionDenied {
			t.Errorf("kind = %v for %v", jokosher.Kind(err), err)
		}
	})
	t.Run("damaged", func(t *testing.T) {
		path := filepath.Join(existing, "damaged.jokosher")
		if err := os.WriteFile(path, []byte("\x00\x01not a project"), 0644); err != nil {
			t.Fatal(err)
		}
		_, err := s.Open(path)
		if jokosher.Kind(err) != ftag.Internal || jokosher.UserMessage(err) != "The project file is damaged." {
			t.Errorf("kind %v, message %q", jokosher.Kind(err), jokosher.UserMessage(err))
		}
	})
}

func TestSessionUnknownBackend(t *testing.T) {
	settings := config.Default()
	settings.Recording.AudioSrc = "nosuchbackend"
	_, err := session.NewSession(session.WithSettings(settings))
	if err == nil {
		t.Fatalf("NewSession accepted an unknown backend")
	}
	if jokosher.Kind(err) != ftag.InvalidArgument {
		t.Errorf("kind = %v", jokosher.Kind(err))
	}
}

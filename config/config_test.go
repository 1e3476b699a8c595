package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/jokosher/jokosher/config"
)

func TestDefault(t *testing.T) {
	s := config.Default()
	if s.General.SampleRate != 44100 || s.Recording.FileFormat != "wav" || s.Playback.AudioSink != "oto" {
		t.Fatalf("unexpected defaults %+v", s)
	}
	if !s.Recording.PCM16 || s.Recording.AudioSrc != "simulated" {
		t.Errorf("unexpected recording defaults %+v", s.Recording)
	}
}

func TestLoadMerges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	data := "recording:\n  pcm16: false\n  device: sim:1\nplayback:\n  audiosink: bogus\n"
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if s.Recording.Device != "sim:1" || s.Recording.PCM16 {
		t.Errorf("recording settings not merged: %+v", s.Recording)
	}
	if s.Recording.FileFormat != "wav" || s.General.BufferSize != 1024 {
		t.Errorf("defaults lost when merging: %+v", s)
	}
	if s.Playback.AudioSink != "oto" {
		t.Errorf("invalid audiosink kept: %q", s.Playback.AudioSink)
	}
}

func TestLoadMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "settings.yml")
	s, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load of a missing file: %v", err)
	}
	if s.Path() != path {
		t.Errorf("Path = %q, want %q", s.Path(), path)
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yml")
	if err := os.WriteFile(path, []byte("general: [1, 2"), 0644); err != nil {
		t.Fatal(err)
	}
	s, err := config.Load(path)
	if err == nil {
		t.Fatal("Load of invalid yaml succeeded")
	}
	if s == nil || s.General.SampleRate != 44100 {
		t.Errorf("invalid file should give the defaults, got %+v", s)
	}
}

func TestSaveAndRecent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jokosher", "settings.yml")
	s, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < config.MaxRecent+2; i++ {
		s.AddRecent(filepath.Join("p", string(rune('a'+i))), "name")
	}
	s.AddRecent(filepath.Join("p", "c"), "again")
	if len(s.Recent) != config.MaxRecent {
		t.Fatalf("got %d recent projects, want %d", len(s.Recent), config.MaxRecent)
	}
	if s.Recent[0].Path != filepath.Join("p", "c") || s.Recent[0].Name != "again" {
		t.Errorf("most recent = %+v", s.Recent[0])
	}
	s.General.ProjectFolder = "/music"
	if err := s.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if got.General.ProjectFolder != "/music" || len(got.Recent) != config.MaxRecent {
		t.Errorf("saved settings not read back: %+v", got)
	}
}

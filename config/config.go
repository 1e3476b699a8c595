// Package config holds the user settings: how to record, where to play and
// the general defaults for new projects.
package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

type (
	Settings struct {
		General   General
		Recording Recording
		Playback  Playback
		MIDI      MIDI
		Recent    []RecentProject `yaml:",omitempty"`

		path string
	}

	General struct {
		SampleRate    int    `yaml:"samplerate"`
		BufferSize    int    `yaml:"buffersize"` // frames per render block
		ProjectFolder string `yaml:"projectfolder"`
		StartupAction string `yaml:"startupaction"`
	}

	Recording struct {
		FileFormat string `yaml:"fileformat"`
		PCM16      bool   `yaml:"pcm16"`
		AudioSrc   string `yaml:"audiosrc"` // capture backend name
		Device     string `yaml:"device"`
	}

	Playback struct {
		AudioSink string `yaml:"audiosink"` // "oto" or "null"
		Device    string `yaml:"device"`
	}

	// MIDI names the input a remote control is read from and what its
	// notes and controllers do. MMC transport commands always work.
	MIDI struct {
		Input    string        `yaml:"input"` // port name prefix, "" for none
		Notes    []MIDIBinding `yaml:"notes,omitempty"`
		Controls []MIDIBinding `yaml:"controls,omitempty"`
	}

	// MIDIBinding binds a note or controller number on a channel to a
	// transport command: play, pause, stop or record.
	MIDIBinding struct {
		Channel int    `yaml:"channel"`
		Number  int    `yaml:"number"`
		Command string `yaml:"command"`
	}

	RecentProject struct {
		Path string
		Name string
	}
)

// MaxRecent is the number of recently used projects remembered.
const MaxRecent = 8

//go:embed settings.yml
var defaultSettingsYaml []byte

// Default returns the built in settings.
func Default() *Settings {
	var s Settings
	dec := yaml.NewDecoder(bytes.NewReader(defaultSettingsYaml))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		panic(fmt.Errorf("failed to unmarshal default settings: %w", err))
	}
	return &s
}

// DefaultPath returns the location of the user settings file.
func DefaultPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "jokosher", "settings.yml"), nil
}

// Load returns the default settings with the user file at path merged over
// them. A missing file is not an error. With an empty path, DefaultPath is
// used.
func Load(path string) (*Settings, error) {
	s := Default()
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return s, nil
		}
		path = p
	}
	s.path = path
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		d := Default()
		d.path = path
		return d, fmt.Errorf("settings %s: %w", path, err)
	}
	s.validate()
	return s, nil
}

// Path returns the file the settings were loaded from and are saved to.
func (s *Settings) Path() string { return s.path }

// Save writes the settings back to the file they were loaded from.
func (s *Settings) Save() error {
	if s.path == "" {
		p, err := DefaultPath()
		if err != nil {
			return err
		}
		s.path = p
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0644)
}

// AddRecent moves the project at path to the front of the recently used
// list.
func (s *Settings) AddRecent(path, name string) {
	s.Recent = slices.DeleteFunc(s.Recent, func(r RecentProject) bool { return r.Path == path })
	s.Recent = slices.Insert(s.Recent, 0, RecentProject{Path: path, Name: name})
	if len(s.Recent) > MaxRecent {
		s.Recent = s.Recent[:MaxRecent]
	}
}

// validate replaces values that cannot work with the defaults.
func (s *Settings) validate() {
	d := Default()
	if s.General.SampleRate <= 0 {
		s.General.SampleRate = d.General.SampleRate
	}
	if s.General.BufferSize <= 0 {
		s.General.BufferSize = d.General.BufferSize
	}
	switch s.Playback.AudioSink {
	case "oto", "null":
	default:
		s.Playback.AudioSink = d.Playback.AudioSink
	}
}

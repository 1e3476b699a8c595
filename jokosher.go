// Package jokosher holds the data types shared by the audio timeline engine:
// the persistent project documents, fade curves, peak series, audio buffers
// and the error kinds reported by the engine.
//
// The live, editable model lives in package session; the realtime graph that
// plays it lives in package graph.
package jokosher

const (
	// DefaultSampleRate is the pipeline rate when the settings do not name
	// one.
	DefaultSampleRate = 44100

	// MaxCaptureChannels caps the channels a capture device is asked for.
	MaxCaptureChannels = 8
)

// Package device enumerates and opens capture devices, and provides the
// outputs that do not need sound hardware.
package device

import (
	"errors"
	"fmt"
	"slices"

	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/graph"
)

type (
	// Device is a capture device as listed by a backend.
	Device struct {
		ID         string
		Name       string
		Channels   int
		SampleRate int
	}

	// Backend is a capture system: it lists devices and opens capture
	// streams on them.
	Backend interface {
		Name() string
		CaptureDevices() ([]Device, error)
		// DefaultDevice returns the id used for instruments that do not
		// name a device.
		DefaultDevice() string
		Open(id string, channels int) (graph.CaptureStream, error)
	}

	// BackendFactory creates a backend by name, see Open.
	BackendFactory func() (Backend, error)
)

var ErrNoSuchDevice = errors.New("no such capture device")

var backends = map[string]BackendFactory{
	"simulated": func() (Backend, error) { return NewSimulated(), nil },
}

// OpenBackend returns the capture backend registered under name.
func OpenBackend(name string) (Backend, error) {
	f, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("unknown capture backend %q", name)
	}
	return f()
}

// Lookup finds the device id in the backend's device list.
func Lookup(b Backend, id string) (Device, error) {
	devices, err := b.CaptureDevices()
	if err != nil {
		return Device{}, err
	}
	i := slices.IndexFunc(devices, func(d Device) bool { return d.ID == id })
	if i < 0 {
		return Device{}, fmt.Errorf("%w: %q", ErrNoSuchDevice, id)
	}
	return devices[i], nil
}

// ChannelsOffered returns how many channels the device can record, capped
// at jokosher.MaxCaptureChannels.
func ChannelsOffered(b Backend, id string) (int, error) {
	d, err := Lookup(b, id)
	if err != nil {
		return 0, err
	}
	return min(d.Channels, jokosher.MaxCaptureChannels), nil
}

// Resolve maps the empty device id to the backend default.
func Resolve(b Backend, id string) string {
	if id == "" {
		return b.DefaultDevice()
	}
	return id
}

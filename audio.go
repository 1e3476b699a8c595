package jokosher

type (
	// AudioBuffer is a block of interleaved float32 audio. Frames() frames of
	// Channels samples each; sample i of channel c is Data[i*Channels+c].
	// SampleRate is zero for buffers that live inside a running graph, where
	// every buffer runs at the pipeline rate.
	AudioBuffer struct {
		Channels   int
		SampleRate int
		Data       []float32
	}

	// Renderer produces the next block of interleaved stereo audio into buf.
	// Render is called from the audio goroutine of an AudioOutput.
	Renderer interface {
		Render(buf []float32)
	}

	// AudioOutput is a realtime audio output. Play starts pulling audio
	// from the renderer on its own goroutine until Stop is called.
	AudioOutput interface {
		Play(r Renderer) error
		Stop() error
		Close() error
	}
)

// NewAudioBuffer returns a silent buffer of the given number of frames.
func NewAudioBuffer(channels, sampleRate, frames int) AudioBuffer {
	return AudioBuffer{Channels: channels, SampleRate: sampleRate, Data: make([]float32, channels*frames)}
}

// Frames returns the number of frames in the buffer.
func (b AudioBuffer) Frames() int {
	if b.Channels <= 0 {
		return 0
	}
	return len(b.Data) / b.Channels
}

// Duration returns the length of the buffer in seconds, or 0 if the sample
// rate is unknown.
func (b AudioBuffer) Duration() float64 {
	if b.SampleRate <= 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Slice returns the frames [from, to) as a buffer sharing the same memory.
// The bounds are clamped to the buffer.
func (b AudioBuffer) Slice(from, to int) AudioBuffer {
	n := b.Frames()
	from = clamp(from, 0, n)
	to = clamp(to, from, n)
	return AudioBuffer{Channels: b.Channels, SampleRate: b.SampleRate, Data: b.Data[from*b.Channels : to*b.Channels]}
}

// Channel copies channel c of the buffer into dst, growing it as needed, and
// returns the mono samples.
func (b AudioBuffer) Channel(c int, dst []float32) []float32 {
	n := b.Frames()
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	if c < 0 || c >= b.Channels {
		clear(dst)
		return dst
	}
	for i := range dst {
		dst[i] = b.Data[i*b.Channels+c]
	}
	return dst
}

// Stereo returns the buffer converted to two channels. Mono is duplicated to
// both sides; for more than two channels the first two are kept.
func (b AudioBuffer) Stereo() AudioBuffer {
	if b.Channels == 2 {
		return b
	}
	n := b.Frames()
	ret := NewAudioBuffer(2, b.SampleRate, n)
	for i := 0; i < n; i++ {
		switch b.Channels {
		case 1:
			ret.Data[2*i] = b.Data[i]
			ret.Data[2*i+1] = b.Data[i]
		default:
			ret.Data[2*i] = b.Data[i*b.Channels]
			ret.Data[2*i+1] = b.Data[i*b.Channels+1]
		}
	}
	return ret
}

// Copy makes a deep copy of the buffer.
func (b AudioBuffer) Copy() AudioBuffer {
	data := make([]float32, len(b.Data))
	copy(data, b.Data)
	return AudioBuffer{Channels: b.Channels, SampleRate: b.SampleRate, Data: data}
}

package decode

import (
	"fmt"
	"io"
	"math"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// wavDecoder reads WAV files through go-audio. Integer samples are scaled
// to [-1, 1); 32 bit float samples arrive as their raw bits and are
// reinterpreted.
type wavDecoder struct {
	d      *wav.Decoder
	float  bool
	offset int // 8 bit samples are unsigned
	scale  float32
	pcm    audio.IntBuffer
	inf    Info
}

const (
	wavPCM        = 1
	wavFloat      = 3
	wavExtensible = 0xFFFE
)

func newWavDecoder(r io.ReadSeeker) (*wavDecoder, error) {
	d := wav.NewDecoder(r)
	if err := d.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("wav: %w", err)
	}
	w := &wavDecoder{d: d, pcm: audio.IntBuffer{Format: d.Format()}}
	if err := w.validate(); err != nil {
		return nil, err
	}
	channels, rate := int(d.NumChans), int(d.SampleRate)
	frame := channels * int(d.BitDepth) / 8
	w.inf = Info{
		Format:     FormatWav,
		Channels:   channels,
		SampleRate: rate,
		Duration:   float64(d.PCMSize/frame) / float64(rate),
	}
	return w, nil
}

func (w *wavDecoder) validate() error {
	d := w.d
	if d.NumChans == 0 || d.SampleRate == 0 {
		return fmt.Errorf("wav has %d channels at %d Hz", d.NumChans, d.SampleRate)
	}
	switch {
	case d.WavAudioFormat == wavFloat && d.BitDepth == 32:
		w.float = true
	case d.WavAudioFormat == wavPCM || d.WavAudioFormat == wavExtensible:
		switch d.BitDepth {
		case 8:
			w.offset = 128
		case 16, 24, 32:
		default:
			return fmt.Errorf("%w: wav with %d bits", ErrUnsupportedFormat, d.BitDepth)
		}
		w.scale = float32(int64(1) << (d.BitDepth - 1))
	default:
		return fmt.Errorf("%w: wav format %d with %d bits", ErrUnsupportedFormat, d.WavAudioFormat, d.BitDepth)
	}
	return nil
}

func (w *wavDecoder) info() Info { return w.inf }

// read returns io.EOF once the data chunk is used up. A data chunk cut
// short, as left by a crashed recorder, ends early without an error.
func (w *wavDecoder) read(buf []float32) (int, error) {
	if cap(w.pcm.Data) < len(buf) {
		w.pcm.Data = make([]int, len(buf))
	}
	w.pcm.Data = w.pcm.Data[:len(buf)]
	n, err := w.d.PCMBuffer(&w.pcm)
	if err != nil {
		return 0, fmt.Errorf("wav data: %w", err)
	}
	if n == 0 {
		return 0, io.EOF
	}
	for k, v := range w.pcm.Data[:n] {
		if w.float {
			buf[k] = math.Float32frombits(uint32(v))
		} else {
			buf[k] = float32(v-w.offset) / w.scale
		}
	}
	return n, nil
}

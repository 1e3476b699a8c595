package decode

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

// mp3Decoder adapts go-mp3, which always produces 16 bit little endian
// stereo.
type mp3Decoder struct {
	d   *mp3.Decoder
	raw []byte
	inf Info
}

const mp3FrameBytes = 4

func newMP3Decoder(r io.ReadSeeker) (*mp3Decoder, error) {
	d, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("mp3 decode failed: %w", err)
	}
	frames := d.Length() / mp3FrameBytes
	return &mp3Decoder{
		d: d,
		inf: Info{
			Format:     FormatMP3,
			Channels:   2,
			SampleRate: d.SampleRate(),
			Duration:   float64(frames) / float64(d.SampleRate()),
		},
	}, nil
}

func (m *mp3Decoder) info() Info { return m.inf }

func (m *mp3Decoder) read(buf []float32) (int, error) {
	want := len(buf) * 2
	if cap(m.raw) < want {
		m.raw = make([]byte, want)
	}
	n, err := io.ReadFull(m.d, m.raw[:want])
	samples := n / 2
	for i := 0; i < samples; i++ {
		buf[i] = float32(int16(binary.LittleEndian.Uint16(m.raw[2*i:]))) / 32768
	}
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	if err != nil && err != io.EOF {
		return samples, fmt.Errorf("mp3 read failed: %w", err)
	}
	return samples, err
}

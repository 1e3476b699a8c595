// Package decode reads audio files into buffers. WAV and MP3 are supported;
// the format is chosen from the first bytes of the file.
package decode

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/jokosher/jokosher"
)

type (
	// Info is what can be learned about a file without decoding it.
	Info struct {
		Format     Format
		Channels   int
		SampleRate int
		Duration   float64 // seconds
	}

	Format int

	decoder interface {
		info() Info
		// read decodes up to len(buf) interleaved float samples.
		read(buf []float32) (int, error)
	}
)

const (
	FormatUnknown Format = iota
	FormatWav
	FormatMP3
)

var ErrUnsupportedFormat = errors.New("unsupported audio format")

const readChunk = 4096

func (f Format) String() string {
	switch f {
	case FormatWav:
		return "wav"
	case FormatMP3:
		return "mp3"
	}
	return "unknown"
}

func sniff(r *bufio.Reader) Format {
	head, _ := r.Peek(12)
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return FormatWav
	case len(head) >= 3 && bytes.Equal(head[0:3], []byte("ID3")):
		return FormatMP3
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return FormatMP3
	}
	return FormatUnknown
}

func open(f *os.File) (decoder, error) {
	format := sniff(bufio.NewReader(f))
	if format == FormatUnknown {
		return nil, ErrUnsupportedFormat
	}
	// both decoders seek, so they read the file directly
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if format == FormatWav {
		return newWavDecoder(f)
	}
	return newMP3Decoder(f)
}

// Probe reads the header of the file at path.
func Probe(path string) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	d, err := open(f)
	if err != nil {
		return Info{}, fmt.Errorf("%s: %w", path, err)
	}
	return d.info(), nil
}

// File decodes the whole file at path. Decoding stops early with the
// context's error when ctx is cancelled.
func File(ctx context.Context, path string) (jokosher.AudioBuffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return jokosher.AudioBuffer{}, err
	}
	defer f.Close()
	d, err := open(f)
	if err != nil {
		return jokosher.AudioBuffer{}, fmt.Errorf("%s: %w", path, err)
	}
	info := d.info()
	expect := int(info.Duration*float64(info.SampleRate)+0.5) * info.Channels
	data := make([]float32, 0, expect)
	buf := make([]float32, readChunk*info.Channels)
	for {
		if err := ctx.Err(); err != nil {
			return jokosher.AudioBuffer{}, err
		}
		n, err := d.read(buf)
		data = append(data, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return jokosher.AudioBuffer{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	// drop a trailing partial frame
	data = data[:len(data)-len(data)%info.Channels]
	return jokosher.AudioBuffer{Channels: info.Channels, SampleRate: info.SampleRate, Data: data}, nil
}

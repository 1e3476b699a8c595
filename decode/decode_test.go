package decode_test

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/decode"
)

func writeWav(t *testing.T, name string, buf jokosher.AudioBuffer, pcm16 bool) string {
	t.Helper()
	data, err := jokosher.Wav(buf, pcm16)
	if err != nil {
		t.Fatalf("Wav: %v", err)
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func ramp(channels, rate, frames int) jokosher.AudioBuffer {
	buf := jokosher.NewAudioBuffer(channels, rate, frames)
	for i := range buf.Data {
		buf.Data[i] = float32(i%100)/100 - 0.5
	}
	return buf
}

func TestWavRoundTrip(t *testing.T) {
	for _, pcm16 := range []bool{false, true} {
		name := "float"
		tolerance := 1e-7
		if pcm16 {
			name, tolerance = "pcm16", 1.0/16384
		}
		t.Run(name, func(t *testing.T) {
			want := ramp(2, 8000, 4000)
			path := writeWav(t, "ramp.wav", want, pcm16)
			info, err := decode.Probe(path)
			if err != nil {
				t.Fatalf("Probe: %v", err)
			}
			if info.Format != decode.FormatWav || info.Channels != 2 || info.SampleRate != 8000 || info.Duration != 0.5 {
				t.Fatalf("Probe = %+v", info)
			}
			got, err := decode.File(context.Background(), path)
			if err != nil {
				t.Fatalf("File: %v", err)
			}
			if got.Channels != 2 || got.SampleRate != 8000 || len(got.Data) != len(want.Data) {
				t.Fatalf("decoded %d channels at %d Hz, %d samples", got.Channels, got.SampleRate, len(got.Data))
			}
			for i := range want.Data {
				if math.Abs(float64(got.Data[i]-want.Data[i])) > tolerance {
					t.Fatalf("sample %d = %v, want %v", i, got.Data[i], want.Data[i])
				}
			}
		})
	}
}

func TestUnsupportedFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	os.WriteFile(path, []byte("this is not audio at all"), 0644)
	if _, err := decode.Probe(path); !errors.Is(err, decode.ErrUnsupportedFormat) {
		t.Fatalf("Probe: got %v, want ErrUnsupportedFormat", err)
	}
	if _, err := decode.File(context.Background(), path); !errors.Is(err, decode.ErrUnsupportedFormat) {
		t.Fatalf("File: got %v, want ErrUnsupportedFormat", err)
	}
}

func TestTruncatedWav(t *testing.T) {
	path := writeWav(t, "cut.wav", ramp(1, 8000, 800), true)
	data, _ := os.ReadFile(path)
	os.WriteFile(path, data[:len(data)-100], 0644)
	got, err := decode.File(context.Background(), path)
	if err != nil {
		t.Fatalf("File: %v", err)
	}
	if got.Frames() != 750 {
		t.Fatalf("decoded %d frames of a truncated file, want 750", got.Frames())
	}
}

func TestCancelledDecode(t *testing.T) {
	path := writeWav(t, "ramp.wav", ramp(1, 8000, 8000), true)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := decode.File(ctx, path); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
}

func TestTitleFallsBackToFileName(t *testing.T) {
	path := writeWav(t, "guitar take.wav", ramp(1, 8000, 10), true)
	if got := decode.Title(path); got != "guitar take" {
		t.Fatalf("Title = %q, want %q", got, "guitar take")
	}
}

package jokosher

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Wav encodes the buffer as a complete .wav file, either as 16-bit integer
// or 32-bit float samples.
func Wav(buffer AudioBuffer, pcm16 bool) ([]byte, error) {
	if buffer.Channels <= 0 || buffer.SampleRate <= 0 {
		return nil, errors.New("Wav failed: buffer has no channel count or sample rate")
	}
	buf := new(bytes.Buffer)
	wavHeader(len(buffer.Data), buffer.Channels, buffer.SampleRate, pcm16, buf)
	err := rawToBuffer(buffer.Data, pcm16, buf)
	if err != nil {
		return nil, fmt.Errorf("Wav failed: %v", err)
	}
	return buf.Bytes(), nil
}

// Raw encodes the samples without any header.
func Raw(buffer AudioBuffer, pcm16 bool) ([]byte, error) {
	buf := new(bytes.Buffer)
	err := rawToBuffer(buffer.Data, pcm16, buf)
	if err != nil {
		return nil, fmt.Errorf("Raw failed: %v", err)
	}
	return buf.Bytes(), nil
}

func rawToBuffer(data []float32, pcm16 bool, buf *bytes.Buffer) error {
	var err error
	if pcm16 {
		err = binary.Write(buf, binary.LittleEndian, toInt16(data, nil))
	} else {
		err = binary.Write(buf, binary.LittleEndian, data)
	}
	if err != nil {
		return fmt.Errorf("could not binary write data to binary buffer: %v", err)
	}
	return nil
}

func toInt16(data []float32, dst []int16) []int16 {
	if cap(dst) < len(data) {
		dst = make([]int16, len(data))
	}
	dst = dst[:len(data)]
	for i, v := range data {
		dst[i] = int16(clamp(int(v*math.MaxInt16), math.MinInt16, math.MaxInt16))
	}
	return dst
}

// wavHeader writes a wave header for either float32 or int16 .wav file into
// w. bufferLength is the total number of samples over all channels. If pcm16
// = true, then the header is for int16 audio; pcm16 = false means the header
// is for float32 audio.
func wavHeader(bufferLength, numChannels, sampleRate int, pcm16 bool, w io.Writer) {
	// Refer to: http://www-mmsp.ece.mcgill.ca/Documents/AudioFormats/WAVE/WAVE.html
	var bytesPerSample, chunkSize, fmtChunkSize, waveFormat int
	var factChunk bool
	if pcm16 {
		bytesPerSample = 2
		chunkSize = 36 + bytesPerSample*bufferLength
		fmtChunkSize = 16
		waveFormat = 1 // PCM
		factChunk = false
	} else {
		bytesPerSample = 4
		chunkSize = 50 + bytesPerSample*bufferLength
		fmtChunkSize = 18
		waveFormat = 3 // IEEE float
		factChunk = true
	}
	w.Write([]byte("RIFF"))
	binary.Write(w, binary.LittleEndian, uint32(chunkSize))
	w.Write([]byte("WAVE"))
	w.Write([]byte("fmt "))
	binary.Write(w, binary.LittleEndian, uint32(fmtChunkSize))
	binary.Write(w, binary.LittleEndian, uint16(waveFormat))
	binary.Write(w, binary.LittleEndian, uint16(numChannels))
	binary.Write(w, binary.LittleEndian, uint32(sampleRate))
	binary.Write(w, binary.LittleEndian, uint32(sampleRate*numChannels*bytesPerSample)) // avgBytesPerSec
	binary.Write(w, binary.LittleEndian, uint16(numChannels*bytesPerSample))            // blockAlign
	binary.Write(w, binary.LittleEndian, uint16(8*bytesPerSample))                      // bits per sample
	if fmtChunkSize > 16 {
		binary.Write(w, binary.LittleEndian, uint16(0)) // size of extension
	}
	if factChunk {
		w.Write([]byte("fact"))
		binary.Write(w, binary.LittleEndian, uint32(4))                        // fact chunk size
		binary.Write(w, binary.LittleEndian, uint32(bufferLength/numChannels)) // sample length
	}
	w.Write([]byte("data"))
	binary.Write(w, binary.LittleEndian, uint32(bytesPerSample*bufferLength))
}

// WavWriter streams samples into a .wav file whose length is not known in
// advance. The header is written with zero sizes first and rewritten with
// the final sizes on Close.
type WavWriter struct {
	w          io.WriteSeeker
	channels   int
	sampleRate int
	pcm16      bool
	samples    int
	tmp        []int16
	err        error
}

// NewWavWriter writes a provisional header to w and returns a writer for
// interleaved samples with the given layout.
func NewWavWriter(w io.WriteSeeker, channels, sampleRate int, pcm16 bool) (*WavWriter, error) {
	if channels <= 0 || sampleRate <= 0 {
		return nil, fmt.Errorf("invalid wav layout: %d channels at %d Hz", channels, sampleRate)
	}
	ww := &WavWriter{w: w, channels: channels, sampleRate: sampleRate, pcm16: pcm16}
	if err := ww.writeHeader(); err != nil {
		return nil, err
	}
	return ww, nil
}

func (ww *WavWriter) writeHeader() error {
	var buf bytes.Buffer
	wavHeader(ww.samples, ww.channels, ww.sampleRate, ww.pcm16, &buf)
	if _, err := ww.w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("could not write wav header: %w", err)
	}
	return nil
}

// Write appends interleaved samples. The first error is sticky.
func (ww *WavWriter) Write(samples []float32) error {
	if ww.err != nil {
		return ww.err
	}
	if ww.pcm16 {
		ww.tmp = toInt16(samples, ww.tmp)
		ww.err = binary.Write(ww.w, binary.LittleEndian, ww.tmp)
	} else {
		ww.err = binary.Write(ww.w, binary.LittleEndian, samples)
	}
	if ww.err != nil {
		ww.err = fmt.Errorf("could not write wav samples: %w", ww.err)
		return ww.err
	}
	ww.samples += len(samples)
	return nil
}

// Frames returns the number of frames written so far.
func (ww *WavWriter) Frames() int {
	return ww.samples / ww.channels
}

// Close rewrites the header with the final sizes. It does not close the
// underlying writer.
func (ww *WavWriter) Close() error {
	if ww.err != nil {
		return ww.err
	}
	if _, err := ww.w.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("could not rewind wav file: %w", err)
	}
	if err := ww.writeHeader(); err != nil {
		return err
	}
	_, err := ww.w.Seek(0, io.SeekEnd)
	return err
}

func clamp(value, min, max int) int {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}

package oto

import (
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/jokosher/jokosher"
)

// RenderReader turns a Renderer into the byte stream oto reads: interleaved
// stereo float32 little endian.
type RenderReader struct {
	r   jokosher.Renderer
	buf []float32
}

const bytesPerFrame = 2 * 4

func NewRenderReader(r jokosher.Renderer) *RenderReader {
	return &RenderReader{r: r}
}

var _ io.Reader = (*RenderReader)(nil)

// Read renders as many whole frames as fit into p. It never fails.
func (rr *RenderReader) Read(p []byte) (int, error) {
	frames := len(p) / bytesPerFrame
	if frames == 0 {
		return 0, nil
	}
	if cap(rr.buf) < 2*frames {
		rr.buf = make([]float32, 2*frames)
	}
	buf := rr.buf[:2*frames]
	rr.r.Render(buf)
	FloatBufferToFloat32LE(buf, p)
	return frames * bytesPerFrame, nil
}

// FloatBufferToFloat32LE writes the samples of buff into dst, which must
// hold 4 bytes per sample, with the values clamped to [-1, 1].
func FloatBufferToFloat32LE(buff []float32, dst []byte) {
	for i, v := range buff {
		if v < -1 {
			v = -1
		} else if v > 1 {
			v = 1
		}
		binary.LittleEndian.PutUint32(dst[4*i:], math.Float32bits(v))
	}
}

func bufferDuration(rate, frames int) time.Duration {
	return time.Duration(float64(time.Second) * float64(frames) / float64(rate))
}

package jokosher

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/viterin/vek/vek32"
)

type (
	// Level is one entry of a peak series: Value in [0,1] is the level of the
	// audio that ends at End milliseconds from the start of the event.
	Level struct {
		End   uint32
		Value float32
	}

	// LevelsList is the decoded peak series of an event, sorted by End. It is
	// what waveform displays and meters query; the audio itself is never
	// touched for drawing.
	LevelsList []Level
)

const (
	// LevelInterval is the spacing of LevelsList entries in seconds.
	LevelInterval = 0.01
	// DecibelRange is the range in decibels mapped onto levels [0,1].
	DecibelRange = 80
)

var ErrCorruptLevels = errors.New("corrupt levels file")

var levelsMagic = [4]byte{'J', 'K', 'L', 'V'}

const levelsVersion = 1

// DbToFloat converts decibels to a linear amplitude clamped to [0,1].
func DbToFloat(db float64) float64 {
	return math.Min(1, math.Max(0, math.Pow(10, db/20)))
}

// DbToLevel maps decibels onto the display range [0,1], where 0 is
// DecibelRange below full scale.
func DbToLevel(db float64) float64 {
	return math.Min(1, math.Max(0, (db+DecibelRange)/DecibelRange))
}

// AmplitudeToDb returns the amplitude in decibels relative to full scale,
// floored at -DecibelRange.
func AmplitudeToDb(a float64) float64 {
	if a <= 0 {
		return -DecibelRange
	}
	return math.Max(-DecibelRange, 20*math.Log10(a))
}

func toMillis(t float64) uint32 {
	return uint32(math.Round(math.Max(0, t) * 1000))
}

// Duration returns the time covered by the series in seconds.
func (l LevelsList) Duration() float64 {
	if len(l) == 0 {
		return 0
	}
	return float64(l[len(l)-1].End) / 1000
}

// At returns the level at time t seconds, or 0 outside the series.
func (l LevelsList) At(t float64) float32 {
	if t < 0 {
		return 0
	}
	ms := toMillis(t)
	i := sort.Search(len(l), func(i int) bool { return l[i].End >= ms })
	if i == len(l) {
		return 0
	}
	return l[i].Value
}

// Append adds an entry ending at t seconds. Entries that would end before the
// current end of the series are ignored.
func (l LevelsList) Append(t float64, value float32) LevelsList {
	ms := toMillis(t)
	if len(l) > 0 && ms < l[len(l)-1].End {
		return l
	}
	return append(l, Level{End: ms, Value: value})
}

// Slice returns the entries covering [from, to) seconds, rebased so that
// from becomes zero.
func (l LevelsList) Slice(from, to float64) LevelsList {
	f, t := toMillis(from), toMillis(to)
	if t <= f {
		return nil
	}
	var ret LevelsList
	for _, lv := range l {
		if lv.End <= f {
			continue
		}
		if lv.End > t {
			// the entry straddling the end is truncated to it
			if len(ret) == 0 || ret[len(ret)-1].End < t-f {
				ret = append(ret, Level{End: t - f, Value: lv.Value})
			}
			break
		}
		ret = append(ret, Level{End: lv.End - f, Value: lv.Value})
	}
	return ret
}

// Split cuts the series at t seconds.
func (l LevelsList) Split(t float64) (LevelsList, LevelsList) {
	return l.Slice(0, t), l.Slice(t, l.Duration())
}

// Peaks reduces the range [from, to) seconds to n buckets, each holding the
// maximum level inside it. This is the display query of waveform views.
func (l LevelsList) Peaks(from, to float64, n int) []float32 {
	ret := make([]float32, n)
	if n <= 0 || to <= from {
		return ret
	}
	step := (to - from) / float64(n)
	for _, lv := range l {
		t := float64(lv.End)/1000 - from
		if t < 0 || t >= to-from {
			continue
		}
		b := min(int(t/step), n-1)
		ret[b] = max(ret[b], lv.Value)
	}
	return ret
}

// LevelsFromBuffer computes the peak series of the buffer, one entry every
// interval seconds, starting at offset seconds.
func LevelsFromBuffer(buf AudioBuffer, interval, offset float64) LevelsList {
	if buf.SampleRate <= 0 || buf.Channels <= 0 || interval <= 0 {
		return nil
	}
	chunk := max(1, int(interval*float64(buf.SampleRate))) * buf.Channels
	ret := make(LevelsList, 0, len(buf.Data)/chunk+1)
	sq := make([]float32, chunk)
	for i := 0; i < len(buf.Data); i += chunk {
		end := min(i+chunk, len(buf.Data))
		data := buf.Data[i:end]
		power := vek32.Mean(vek32.Mul_Into(sq[:len(data)], data, data))
		value := float32(BlockLevel(float64(power)))
		t := offset + float64(end/buf.Channels)/float64(buf.SampleRate)
		ret = ret.Append(t, value)
	}
	return ret
}

// BlockLevel maps mean signal power onto the display range [0,1].
func BlockLevel(power float64) float64 {
	if power <= 0 || math.IsNaN(power) {
		return 0
	}
	return DbToLevel(10 * math.Log10(power))
}

// WriteTo writes the series in its binary file format.
func (l LevelsList) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	header := struct {
		Magic   [4]byte
		Version uint16
		Count   uint32
	}{levelsMagic, levelsVersion, uint32(len(l))}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return 0, err
	}
	if err := binary.Write(bw, binary.LittleEndian, []Level(l)); err != nil {
		return 0, err
	}
	if err := bw.Flush(); err != nil {
		return 0, err
	}
	return int64(10 + 8*len(l)), nil
}

// ReadLevels reads a series written by WriteTo. Any malformed input gives
// ErrCorruptLevels.
func ReadLevels(r io.Reader) (LevelsList, error) {
	var header struct {
		Magic   [4]byte
		Version uint16
		Count   uint32
	}
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptLevels, err)
	}
	if header.Magic != levelsMagic || header.Version != levelsVersion {
		return nil, ErrCorruptLevels
	}
	if header.Count > 1<<28 {
		return nil, fmt.Errorf("%w: %d entries", ErrCorruptLevels, header.Count)
	}
	ret := make(LevelsList, header.Count)
	if err := binary.Read(r, binary.LittleEndian, []Level(ret)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptLevels, err)
	}
	for i := 1; i < len(ret); i++ {
		if ret[i].End < ret[i-1].End {
			return nil, ErrCorruptLevels
		}
	}
	return ret, nil
}

// SaveLevels writes the series to a file.
func SaveLevels(path string, l LevelsList) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("could not create levels file: %w", err)
	}
	if _, err := l.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("could not write levels file: %w", err)
	}
	return f.Close()
}

// LoadLevels reads a series from a file.
func LoadLevels(path string) (LevelsList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadLevels(bufio.NewReader(f))
}

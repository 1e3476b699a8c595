package graph

import (
	"math"
	"sync"

	"github.com/jokosher/jokosher"
	"github.com/viterin/vek/vek32"
)

// Meter passes audio through unchanged and posts a LevelMessage every
// interval with the RMS, peak and decaying peak of each channel.
type Meter struct {
	interval float64 // seconds
	falloff  float64 // dB per second

	frames int
	sumSq  []float64
	peak   []float64
	decay  []float64
	scr    []float32
	abs    []float32

	mu   sync.Mutex
	last *LevelMessage
}

const (
	DefaultMeterInterval = 1.0 / 50
	DefaultMeterFalloff  = 20.0
)

func NewMeter() *Meter {
	return &Meter{interval: DefaultMeterInterval, falloff: DefaultMeterFalloff}
}

func (*Meter) Kind() Kind { return KindMeter }

// SetInterval sets the time between level messages in seconds.
func (m *Meter) SetInterval(t float64) {
	if t > 0 {
		m.interval = t
	}
}

// Last returns the most recently posted levels, or nil before the first
// interval has completed.
func (m *Meter) Last() *LevelMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Meter) ChangeState(t *Transition) error {
	if t.To == StateReady {
		m.frames = 0
		m.sumSq, m.peak, m.decay = nil, nil, nil
		m.mu.Lock()
		m.last = nil
		m.mu.Unlock()
	}
	return nil
}

func (m *Meter) Process(ctx *Context, in []jokosher.AudioBuffer, out *jokosher.AudioBuffer) error {
	passThrough(ctx, in, out)
	ch := out.Channels
	if len(m.sumSq) != ch {
		m.sumSq = make([]float64, ch)
		m.peak = make([]float64, ch)
		m.decay = make([]float64, ch)
		for c := range m.decay {
			m.decay[c] = -jokosher.DecibelRange
		}
		m.frames = 0
	}
	rate := ctx.SampleRate
	if out.SampleRate > 0 {
		rate = out.SampleRate
	}
	period := max(1, int(m.interval*float64(rate)))
	frames := out.Frames()
	for f := 0; f < frames; {
		n := min(period-m.frames, frames-f)
		block := out.Slice(f, f+n)
		for c := 0; c < ch; c++ {
			m.scr = block.Channel(c, m.scr)
			if len(m.abs) < len(m.scr) {
				m.abs = make([]float32, len(m.scr))
			}
			abs := m.abs[:len(m.scr)]
			copy(abs, m.scr)
			vek32.Abs_Inplace(abs)
			m.peak[c] = max(m.peak[c], float64(vek32.Max(abs)))
			m.sumSq[c] += float64(vek32.Dot(m.scr, m.scr))
		}
		m.frames += n
		f += n
		if m.frames == period {
			end := ctx.Time() + float64(f)/float64(rate)
			m.post(ctx, end, float64(period)/float64(rate))
		}
	}
	return nil
}

func (m *Meter) post(ctx *Context, end, elapsed float64) {
	msg := &LevelMessage{
		Source: ctx.Element,
		Time:   end,
		RMS:    make([]float64, len(m.sumSq)),
		Peak:   make([]float64, len(m.sumSq)),
		Decay:  make([]float64, len(m.sumSq)),
	}
	for c := range m.sumSq {
		msg.RMS[c] = jokosher.AmplitudeToDb(math.Sqrt(m.sumSq[c] / float64(m.frames)))
		msg.Peak[c] = jokosher.AmplitudeToDb(m.peak[c])
		m.decay[c] = max(msg.Peak[c], m.decay[c]-m.falloff*elapsed)
		msg.Decay[c] = m.decay[c]
		m.sumSq[c], m.peak[c] = 0, 0
	}
	m.frames = 0
	m.mu.Lock()
	m.last = msg
	m.mu.Unlock()
	ctx.Post(msg)
}

// Level returns the mean RMS of the message across channels mapped onto
// the display range [0,1].
func (l *LevelMessage) Level() float64 {
	if len(l.RMS) == 0 {
		return 0
	}
	var power float64
	for _, db := range l.RMS {
		a := math.Pow(10, db/20)
		power += a * a
	}
	return jokosher.BlockLevel(power / float64(len(l.RMS)))
}

// Channels returns the number of channels measured.
func (l *LevelMessage) Channels() int { return len(l.RMS) }

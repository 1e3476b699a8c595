package graph_test

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jokosher/jokosher"
	"github.com/jokosher/jokosher/graph"
)

const testRate = 100

func constantClip(start float64, frames int, value float32) graph.Clip {
	audio := jokosher.NewAudioBuffer(2, testRate, frames)
	for i := range audio.Data {
		audio.Data[i] = value
	}
	return graph.Clip{ID: 1, Start: start, Duration: float64(frames) / testRate, Audio: audio}
}

type playback struct {
	pipeline *graph.Pipeline
	comp     *graph.Composition
	volume   *graph.Volume
	mixer    *graph.Element
	sink     *graph.Element
}

func newPlayback(t *testing.T) *playback {
	t.Helper()
	p := graph.NewPipeline("test", testRate)
	comp := graph.NewComposition()
	vol := graph.NewVolume(1)
	c := graph.NewElement("composition", comp)
	v := graph.NewElement("volume", vol)
	mix := graph.NewElement("mixer", graph.Mixer{})
	sink := graph.NewElement("sink", graph.Sink{})
	if err := p.Add(c, v, mix, sink); err != nil {
		t.Fatalf("Add: %v", err)
	}
	for _, pair := range [][2]*graph.Element{{c, v}, {v, mix}, {mix, sink}} {
		if err := graph.Link(pair[0], pair[1]); err != nil {
			t.Fatalf("Link: %v", err)
		}
	}
	p.SetOutput(sink)
	return &playback{pipeline: p, comp: comp, volume: vol, mixer: mix, sink: sink}
}

func TestRenderComposition(t *testing.T) {
	pb := newPlayback(t)
	pb.comp.SetClips([]graph.Clip{constantClip(0.1, 20, 0.5)})
	pb.volume.SetGain(0.5)
	if err := pb.pipeline.SetState(graph.StatePlaying); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	buf := make([]float32, 2*50)
	pb.pipeline.Render(buf)
	for i := 0; i < 50; i++ {
		want := float32(0)
		if i >= 10 && i < 30 {
			want = 0.25
		}
		if buf[2*i] != want || buf[2*i+1] != want {
			t.Fatalf("frame %d = (%v, %v), want %v", i, buf[2*i], buf[2*i+1], want)
		}
	}
	if got := pb.pipeline.Position(); got != 0.5 {
		t.Fatalf("Position = %v, want 0.5", got)
	}
}

func TestMutedVolume(t *testing.T) {
	pb := newPlayback(t)
	pb.comp.SetClips([]graph.Clip{constantClip(0, 10, 1)})
	pb.volume.SetMute(true)
	pb.pipeline.SetState(graph.StatePlaying)
	buf := make([]float32, 20)
	pb.pipeline.Render(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("sample %d = %v, want silence", i, v)
		}
	}
}

func TestVolumeAutomation(t *testing.T) {
	pb := newPlayback(t)
	pb.comp.SetClips([]graph.Clip{constantClip(0, 128, 1)})
	// 64 frame steps at 100 Hz: the second step starts at 0.64 s
	pb.volume.SetAutomation(jokosher.FadeCurve{{Time: 0, Gain: 0}, {Time: 1.28, Gain: 1}})
	pb.pipeline.SetState(graph.StatePlaying)
	buf := make([]float32, 2*128)
	pb.pipeline.Render(buf)
	if buf[0] != 0 {
		t.Errorf("first step gain = %v, want 0", buf[0])
	}
	if got := buf[2*64]; math.Abs(float64(got)-0.5) > 1e-6 {
		t.Errorf("second step gain = %v, want 0.5", got)
	}
}

func TestPlayingIsPendingUntilRendered(t *testing.T) {
	pb := newPlayback(t)
	if err := pb.pipeline.SetState(graph.StatePlaying); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	cur, pending := pb.pipeline.State()
	if cur != graph.StatePaused || pending != graph.StatePlaying {
		t.Fatalf("State = %v/%v, want PAUSED/PLAYING", cur, pending)
	}
	if pb.sink.State() != graph.StatePaused {
		t.Fatalf("sink state = %v, want PAUSED", pb.sink.State())
	}
	pb.pipeline.Render(make([]float32, 20))
	cur, pending = pb.pipeline.State()
	if cur != graph.StatePlaying || pending != graph.StateVoidPending {
		t.Fatalf("State = %v/%v, want PLAYING/VOID_PENDING", cur, pending)
	}
	var changes []*graph.StateChangedMessage
	for m, ok := pb.pipeline.Bus().Pop(); ok; m, ok = pb.pipeline.Bus().Pop() {
		if sc, ok := m.(*graph.StateChangedMessage); ok {
			changes = append(changes, sc)
		}
	}
	if len(changes) != 3 {
		t.Fatalf("got %d state changes, want 3", len(changes))
	}
	if last := changes[2]; last.Old != graph.StatePaused || last.New != graph.StatePlaying {
		t.Fatalf("last change %v -> %v, want PAUSED -> PLAYING", last.Old, last.New)
	}
	if changes[0].Pending != graph.StatePlaying {
		t.Fatalf("first change pending = %v, want PLAYING", changes[0].Pending)
	}
}

func TestNotPlayingRendersSilence(t *testing.T) {
	pb := newPlayback(t)
	pb.comp.SetClips([]graph.Clip{constantClip(0, 10, 1)})
	buf := []float32{1, 1, 1, 1}
	pb.pipeline.Render(buf)
	for _, v := range buf {
		if v != 0 {
			t.Fatalf("stopped pipeline rendered %v", buf)
		}
	}
	if pb.pipeline.Position() != 0 {
		t.Fatalf("stopped pipeline advanced to %v", pb.pipeline.Position())
	}
}

func TestMatchStateAndRemoveBin(t *testing.T) {
	pb := newPlayback(t)
	pb.pipeline.SetState(graph.StatePlaying)

	bin := graph.NewBin("extra")
	comp := graph.NewComposition()
	comp.SetClips([]graph.Clip{constantClip(0, 100, 0.25)})
	c := graph.NewElement("extra-composition", comp)
	v := graph.NewElement("extra-volume", graph.NewVolume(1))
	if err := bin.Chain(c, v); err != nil {
		t.Fatalf("Chain: %v", err)
	}
	bin.SetGhosts(nil, v)
	if err := pb.pipeline.AddBin(bin); err != nil {
		t.Fatalf("AddBin: %v", err)
	}
	if err := graph.Link(bin.Src(), pb.mixer); err != nil {
		t.Fatalf("Link: %v", err)
	}
	if err := pb.pipeline.MatchState(bin); err != nil {
		t.Fatalf("MatchState: %v", err)
	}
	if bin.State() != graph.StatePlaying {
		t.Fatalf("bin state = %v, want PLAYING while the pipeline is going there", bin.State())
	}

	buf := make([]float32, 20)
	pb.pipeline.Render(buf)
	if buf[0] != 0.25 {
		t.Fatalf("mixed sample = %v, want 0.25", buf[0])
	}

	if err := pb.pipeline.RemoveBin(bin); err != nil {
		t.Fatalf("RemoveBin: %v", err)
	}
	if pb.pipeline.HasBin(bin) {
		t.Fatalf("bin still in pipeline")
	}
	if len(pb.mixer.Upstream()) != 1 {
		t.Fatalf("mixer has %d inputs, want 1", len(pb.mixer.Upstream()))
	}
	for _, e := range bin.Elements() {
		if e.State() != graph.StateNull {
			t.Fatalf("%s is %v after removal, want NULL", e.Name(), e.State())
		}
	}
	pb.pipeline.Render(buf)
	if buf[0] != 0 {
		t.Fatalf("removed bin still audible: %v", buf[0])
	}
}

func TestLinkCycle(t *testing.T) {
	a := graph.NewElement("a", graph.NewVolume(1))
	b := graph.NewElement("b", graph.NewVolume(1))
	if err := graph.Link(a, b); err != nil {
		t.Fatal(err)
	}
	if err := graph.Link(b, a); !errors.Is(err, graph.ErrCycle) {
		t.Fatalf("Link b -> a: got %v, want ErrCycle", err)
	}
	if err := graph.Unlink(b, a); !errors.Is(err, graph.ErrNotLinked) {
		t.Fatalf("Unlink b -> a: got %v, want ErrNotLinked", err)
	}
}

func TestForeignPipelines(t *testing.T) {
	p1 := graph.NewPipeline("one", testRate)
	p2 := graph.NewPipeline("two", testRate)
	a := graph.NewElement("a", graph.Mixer{})
	b := graph.NewElement("b", graph.Mixer{})
	p1.Add(a)
	p2.Add(b)
	if err := graph.Link(a, b); !errors.Is(err, graph.ErrForeignGraph) {
		t.Fatalf("got %v, want ErrForeignGraph", err)
	}
}

func TestMeterPostsLevels(t *testing.T) {
	p := graph.NewPipeline("meter", 1000)
	comp := graph.NewComposition()
	audio := jokosher.NewAudioBuffer(2, 1000, 100)
	for i := range audio.Data {
		audio.Data[i] = 0.5
	}
	comp.SetClips([]graph.Clip{{Start: 0, Duration: 0.1, Audio: audio}})
	c := graph.NewElement("composition", comp)
	m := graph.NewElement("meter", graph.NewMeter())
	s := graph.NewElement("sink", graph.Sink{})
	p.Add(c, m, s)
	graph.Link(c, m)
	graph.Link(m, s)
	p.SetOutput(s)
	p.SetState(graph.StatePlaying)
	p.Render(make([]float32, 2*100))

	var levels []*graph.LevelMessage
	for msg, ok := p.Bus().Pop(); ok; msg, ok = p.Bus().Pop() {
		if l, ok := msg.(*graph.LevelMessage); ok {
			levels = append(levels, l)
		}
	}
	if len(levels) != 5 {
		t.Fatalf("got %d level messages, want 5", len(levels))
	}
	want := 20 * math.Log10(0.5)
	for _, l := range levels {
		if l.Source != m {
			t.Fatalf("level message from %v, want the meter", l.Source)
		}
		if l.Channels() != 2 {
			t.Fatalf("level message has %d channels", l.Channels())
		}
		for c := range l.RMS {
			if math.Abs(l.RMS[c]-want) > 1e-3 || math.Abs(l.Peak[c]-want) > 1e-3 {
				t.Fatalf("channel %d rms %v peak %v, want %v", c, l.RMS[c], l.Peak[c], want)
			}
		}
	}
	if got := levels[4].Time; math.Abs(got-0.1) > 1e-9 {
		t.Fatalf("last level time = %v, want 0.1", got)
	}
}

func TestMeterVaryingSignal(t *testing.T) {
	p := graph.NewPipeline("meter", 1000)
	comp := graph.NewComposition()
	audio := jokosher.NewAudioBuffer(2, 1000, 100)
	wave := []float32{0.8, -0.8, 0, 0}
	for i := 0; i < audio.Frames(); i++ {
		audio.Data[2*i] = wave[i%len(wave)]
		audio.Data[2*i+1] = -0.25
	}
	comp.SetClips([]graph.Clip{{Start: 0, Duration: 0.1, Audio: audio}})
	c := graph.NewElement("composition", comp)
	m := graph.NewElement("meter", graph.NewMeter())
	s := graph.NewElement("sink", graph.Sink{})
	p.Add(c, m, s)
	graph.Link(c, m)
	graph.Link(m, s)
	p.SetOutput(s)
	p.SetState(graph.StatePlaying)
	out := make([]float32, 2*100)
	p.Render(out)
	if out[0] != 0.8 || out[2] != -0.8 || out[1] != -0.25 {
		t.Errorf("meter changed the audio: %v", out[:4])
	}

	wantRMS := []float64{20 * math.Log10(math.Sqrt(0.32)), 20 * math.Log10(0.25)}
	wantPeak := []float64{20 * math.Log10(0.8), 20 * math.Log10(0.25)}
	n := 0
	for msg, ok := p.Bus().Pop(); ok; msg, ok = p.Bus().Pop() {
		l, ok := msg.(*graph.LevelMessage)
		if !ok {
			continue
		}
		n++
		for c := range wantRMS {
			if math.Abs(l.RMS[c]-wantRMS[c]) > 1e-3 || math.Abs(l.Peak[c]-wantPeak[c]) > 1e-3 {
				t.Fatalf("channel %d rms %v peak %v, want %v and %v", c, l.RMS[c], l.Peak[c], wantRMS[c], wantPeak[c])
			}
		}
	}
	if n != 5 {
		t.Fatalf("got %d level messages, want 5", n)
	}
}

type fakeStream struct {
	channels int
	rate     int
	values   []float32
	closed   bool
}

func (f *fakeStream) Channels() int   { return f.channels }
func (f *fakeStream) SampleRate() int { return f.rate }
func (f *fakeStream) Close() error    { f.closed = true; return nil }

func (f *fakeStream) Read(buf []float32) (int, error) {
	for i := range buf {
		buf[i] = f.values[i%f.channels]
	}
	return len(buf) / f.channels, nil
}

func TestDeinterleavePads(t *testing.T) {
	p := graph.NewPipeline("record", testRate)
	stream := &fakeStream{channels: 2, rate: testRate, values: []float32{0.1, 0.2}}
	capture := graph.NewElement("capture", graph.NewCapture(func(int) (graph.CaptureStream, error) { return stream, nil }, 2))
	di := graph.NewDeinterleave(2)
	deint := graph.NewElement("deinterleave", di)
	sink := graph.NewElement("sink", graph.Sink{})

	bin := graph.NewBin("device")
	if err := bin.Chain(capture, deint); err != nil {
		t.Fatal(err)
	}
	p.AddBin(bin)
	p.Add(sink)
	p.SetOutput(sink)
	var pads []int
	di.OnPadAdded(func(pad int) {
		pads = append(pads, pad)
		if pad == 1 {
			if err := graph.LinkPad(deint, pad, sink); err != nil {
				t.Errorf("LinkPad: %v", err)
			}
		}
	})
	if err := p.SetState(graph.StatePlaying); err != nil {
		t.Fatalf("SetState: %v", err)
	}
	if len(pads) != 2 {
		t.Fatalf("pads added: %v, want [0 1]", pads)
	}
	buf := make([]float32, 20)
	p.Render(buf)
	for i, v := range buf {
		if v != 0.2 {
			t.Fatalf("sample %d = %v, want channel 1 (0.2) on both sides", i, v)
		}
	}
	p.SetState(graph.StateNull)
	if !stream.closed {
		t.Fatalf("capture stream not closed on the way down")
	}
}

func TestCaptureResample(t *testing.T) {
	p := graph.NewPipeline("record", testRate)
	stream := &fakeStream{channels: 1, rate: 2 * testRate, values: []float32{0.5}}
	capture := graph.NewElement("capture", graph.NewCapture(func(int) (graph.CaptureStream, error) { return stream, nil }, 1))
	r := graph.NewElement("resample", graph.NewResample())
	sink := graph.NewElement("sink", graph.Sink{})
	p.Add(capture, r, sink)
	graph.Link(capture, r)
	graph.Link(r, sink)
	p.SetOutput(sink)
	p.SetState(graph.StatePlaying)
	buf := make([]float32, 2*10)
	p.Render(buf)
	for i, v := range buf {
		if math.Abs(float64(v)-0.5) > 1e-6 {
			t.Fatalf("sample %d = %v, want 0.5", i, v)
		}
	}
}

func TestEncodeWritesWav(t *testing.T) {
	path := filepath.Join(t.TempDir(), "take.wav")
	pb := newPlayback(t)
	pb.comp.SetClips([]graph.Clip{constantClip(0, 30, 0.5)})
	enc := graph.NewEncode(path, 2, true)
	e := graph.NewElement("encode", enc)
	pb.pipeline.Add(e)
	if err := graph.Link(pb.mixer, e); err != nil {
		t.Fatal(err)
	}
	pb.pipeline.SetState(graph.StatePlaying)
	for i := 0; i < 3; i++ {
		pb.pipeline.Render(make([]float32, 2*10))
	}
	if enc.Frames() != 30 {
		t.Fatalf("Frames = %d, want 30", enc.Frames())
	}
	pb.pipeline.SetState(graph.StateNull)
	if err := enc.Err(); err != nil {
		t.Fatalf("Err: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 44+30*2*2 {
		t.Fatalf("wav is %d bytes, want %d", len(data), 44+30*2*2)
	}
}

func TestEndOfStream(t *testing.T) {
	pb := newPlayback(t)
	pb.pipeline.SetEnd(0.15)
	pb.pipeline.SetState(graph.StatePlaying)
	pb.pipeline.Render(make([]float32, 2*10))
	if _, ok := pb.pipeline.Bus().WaitFor(graph.MessageEOS, 0); ok {
		t.Fatalf("EOS before the end")
	}
	pb.pipeline.Render(make([]float32, 2*10))
	pb.pipeline.Render(make([]float32, 2*10))
	eos := 0
	for m, ok := pb.pipeline.Bus().Pop(); ok; m, ok = pb.pipeline.Bus().Pop() {
		if m.Type() == graph.MessageEOS {
			eos++
		}
	}
	if eos != 1 {
		t.Fatalf("got %d EOS messages, want 1", eos)
	}
}

func TestClick(t *testing.T) {
	if got := graph.ClickLevel(120, 0); got != 0 {
		t.Errorf("click at t=0 = %v, want 0", got)
	}
	if got := graph.ClickLevel(120, 0.5); got != 1 {
		t.Errorf("click on the first beat = %v, want 1", got)
	}
	if got := graph.ClickLevel(120, 0.55); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("click 50 ms after the beat = %v, want 0.5", got)
	}
	if got := graph.ClickLevel(120, 0.75); got != 0 {
		t.Errorf("click between beats = %v, want 0", got)
	}
}

func TestDumpDot(t *testing.T) {
	pb := newPlayback(t)
	var sb strings.Builder
	if err := pb.pipeline.DumpDot(&sb); err != nil {
		t.Fatalf("DumpDot: %v", err)
	}
	out := sb.String()
	for _, want := range []string{"digraph", `"test"`, "composition", "e0 -> e1"} {
		if !strings.Contains(out, want) {
			t.Errorf("dot output lacks %q:\n%s", want, out)
		}
	}
}

package jokosher

// Resample converts the buffer to the given sample rate using linear
// interpolation between neighbouring frames. Buffers already at the rate, or
// with an unknown rate, are returned unchanged.
func Resample(buf AudioBuffer, rate int) AudioBuffer {
	if buf.SampleRate <= 0 || rate <= 0 || buf.SampleRate == rate || buf.Frames() == 0 {
		return buf
	}
	in := buf.Frames()
	out := int(int64(in) * int64(rate) / int64(buf.SampleRate))
	ret := NewAudioBuffer(buf.Channels, rate, out)
	ratio := float64(buf.SampleRate) / float64(rate)
	ch := buf.Channels
	for i := 0; i < out; i++ {
		pos := float64(i) * ratio
		j := int(pos)
		frac := float32(pos - float64(j))
		k := min(j+1, in-1)
		for c := 0; c < ch; c++ {
			a, b := buf.Data[j*ch+c], buf.Data[k*ch+c]
			ret.Data[i*ch+c] = a + (b-a)*frac
		}
	}
	return ret
}

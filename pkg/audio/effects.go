package audio

import (
	"math"
	"time"

	"github.com/gopxl/beep/v2"
)

// BiquadFilter is a second-order IIR filter applied per channel.
type BiquadFilter struct {
	streamer beep.Streamer

	// normalized coefficients (divided by a0)
	b0, b1, b2 float64
	a1, a2     float64

	x1, x2 [2]float64
	y1, y2 [2]float64
}

// NewLowPass creates a low-pass biquad.
func NewLowPass(streamer beep.Streamer, sampleRate, cutoff, q float64) *BiquadFilter {
	_, cs, alpha := biquadTerms(sampleRate, cutoff, q)
	return newBiquad(streamer, (1-cs)/2, 1-cs, (1-cs)/2, 1+alpha, -2*cs, 1-alpha)
}

// NewHighPass creates a high-pass biquad.
func NewHighPass(streamer beep.Streamer, sampleRate, cutoff, q float64) *BiquadFilter {
	_, cs, alpha := biquadTerms(sampleRate, cutoff, q)
	return newBiquad(streamer, (1+cs)/2, -(1 + cs), (1+cs)/2, 1+alpha, -2*cs, 1-alpha)
}

func biquadTerms(sampleRate, cutoff, q float64) (sn, cs, alpha float64) {
	omega := 2 * math.Pi * cutoff / sampleRate
	sn, cs = math.Sin(omega), math.Cos(omega)
	return sn, cs, sn / (2 * q)
}

func newBiquad(s beep.Streamer, b0, b1, b2, a0, a1, a2 float64) *BiquadFilter {
	return &BiquadFilter{streamer: s, b0: b0 / a0, b1: b1 / a0, b2: b2 / a0, a1: a1 / a0, a2: a2 / a0}
}

func (f *BiquadFilter) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = f.streamer.Stream(samples)
	for i := 0; i < n; i++ {
		for ch := 0; ch < 2; ch++ {
			x := samples[i][ch]
			y := f.b0*x + f.b1*f.x1[ch] + f.b2*f.x2[ch] - f.a1*f.y1[ch] - f.a2*f.y2[ch]
			f.x2[ch], f.x1[ch] = f.x1[ch], x
			f.y2[ch], f.y1[ch] = f.y1[ch], y
			samples[i][ch] = y
		}
	}
	return n, ok
}

func (f *BiquadFilter) Err() error { return f.streamer.Err() }

// NewHandsetFilter band-limits narration like a handheld audio-guide speaker.
// Q=0.707 gives a flat Butterworth passband.
func NewHandsetFilter(streamer beep.Streamer, sampleRate, lowCutoff, highCutoff float64) beep.Streamer {
	hp := NewHighPass(streamer, sampleRate, lowCutoff, 0.707)
	return NewLowPass(hp, sampleRate, highCutoff, 0.707)
}

// SmoothVolume applies a linear gain that ramps to new targets instead of jumping,
// so volume changes mid-clip don't click.
//
// SmoothVolume is not synchronized: with the speaker, Stream runs under
// speaker.Lock() and SetTargetVolume must be called under it as well.
type SmoothVolume struct {
	Streamer beep.Streamer

	target float64
	gain   float64
	step   float64
}

// NewSmoothVolume creates a SmoothVolume starting at vol.
func NewSmoothVolume(s beep.Streamer, vol float64) *SmoothVolume {
	vol = clampUnit(vol)
	return &SmoothVolume{Streamer: s, target: vol, gain: vol}
}

func (s *SmoothVolume) Stream(samples [][2]float64) (n int, ok bool) {
	n, ok = s.Streamer.Stream(samples)
	for i := 0; i < n; i++ {
		if s.gain != s.target {
			if s.step == 0 || math.Abs(s.target-s.gain) <= s.step {
				s.gain = s.target
			} else if s.gain < s.target {
				s.gain += s.step
			} else {
				s.gain -= s.step
			}
		}
		samples[i][0] *= s.gain
		samples[i][1] *= s.gain
	}
	return n, ok
}

func (s *SmoothVolume) Err() error { return s.Streamer.Err() }

// SetTargetVolume ramps to vol over ramp. A non-positive ramp jumps immediately.
func (s *SmoothVolume) SetTargetVolume(vol float64, sampleRate beep.SampleRate, ramp time.Duration) {
	s.target = clampUnit(vol)
	n := float64(sampleRate.N(ramp))
	if n <= 0 {
		s.step = 0
		return
	}
	s.step = math.Abs(s.target-s.gain) / n
}

// Gain returns the gain currently applied.
func (s *SmoothVolume) Gain() float64 { return s.gain }

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

package engine

import (
	"math"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// Class is the gate's verdict for one frame.
type Class int

const (
	Silence Class = iota
	BackgroundOnly
	Voiced
)

func (c Class) String() string {
	switch c {
	case Silence:
		return "silence"
	case BackgroundOnly:
		return "background"
	case Voiced:
		return "voiced"
	default:
		return "unknown"
	}
}

// VoicingFloor is the minimum harmonicity for an active frame to count as
// voice rather than background noise.
const VoicingFloor = 0.3

// Gate classifies frames. It owns a scratch buffer that holds the
// sensitivity-scaled samples of the most recent frame.
type Gate struct {
	harmonicity HarmonicityEstimator
	scratch     []float32
}

// NewGate returns a gate backed by the given harmonicity estimator.
func NewGate(h HarmonicityEstimator) *Gate {
	return &Gate{harmonicity: h}
}

// Classify scales the frame by cfg.Sensitivity and classifies it. A gain
// that is not a positive number scales by 1. The returned slice aliases the
// gate's scratch buffer and is only valid until the next call.
func (g *Gate) Classify(frame model.AudioFrame, cfg model.SessionConfig) (Class, []float32) {
	if len(frame.Samples) == 0 || frame.SampleRate <= 0 {
		return Silence, nil
	}
	gain := cfg.Sensitivity
	if gain <= 0 || math.IsNaN(gain) || math.IsInf(gain, 0) {
		gain = 1
	}
	if cap(g.scratch) < len(frame.Samples) {
		g.scratch = make([]float32, len(frame.Samples))
	}
	scaled := g.scratch[:len(frame.Samples)]

	var peak, sumSq float64
	for i, s := range frame.Samples {
		v := float64(s) * gain
		if math.IsNaN(v) {
			v = 0
		}
		v = math.Max(-1, math.Min(1, v))
		scaled[i] = float32(v)
		if a := math.Abs(v); a > peak {
			peak = a
		}
		sumSq += v * v
	}
	if peak < cfg.NoiseThreshold {
		return Silence, scaled
	}
	rms := math.Sqrt(sumSq / float64(len(scaled)))
	if rms < cfg.VADThreshold {
		return Silence, scaled
	}
	if g.harmonicity.Harmonicity(scaled, frame.SampleRate) < VoicingFloor {
		return BackgroundOnly, scaled
	}
	return Voiced, scaled
}

// RMS returns the root mean square of samples, or zero for an empty slice.
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSq float64
	for _, s := range samples {
		sumSq += float64(s) * float64(s)
	}
	return math.Sqrt(sumSq / float64(len(samples)))
}

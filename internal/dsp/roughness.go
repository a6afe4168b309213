package dsp

import (
	"math"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

const (
	minCycles = 3

	strainJitter  = 2.0
	strainShimmer = 10.0
	strainHNR     = 10.0
)

// VocalRoughness measures cycle-to-cycle period (jitter) and amplitude
// (shimmer) variation in percent, and the harmonics-to-noise ratio in dB.
func (a *Analyzer) VocalRoughness(frame model.AudioFrame, pitch float64) (model.Roughness, bool) {
	if pitch <= 0 || frame.SampleRate <= 0 {
		return model.Roughness{}, false
	}
	x := a.centered(frame.Samples)
	crossings := risingCrossings(x)
	expected := float64(frame.SampleRate) / pitch

	var periods, amps []float64
	for i := 1; i < len(crossings); i++ {
		period := crossings[i] - crossings[i-1]
		// Skip crossings produced by harmonics within one cycle.
		if period < 0.5*expected || period > 1.5*expected {
			continue
		}
		periods = append(periods, period)
		lo, hi := int(crossings[i-1]), int(crossings[i])
		var peak float64
		for k := lo; k <= hi && k < len(x); k++ {
			peak = math.Max(peak, math.Abs(x[k]))
		}
		amps = append(amps, peak)
	}
	if len(periods) < minCycles {
		return model.Roughness{}, false
	}

	r := model.Roughness{
		Jitter:  meanAbsDiffRatio(periods) * 100,
		Shimmer: meanAbsDiffRatio(amps) * 100,
		HNR:     hnrAt(x, int(math.Round(expected))),
	}
	r.Strain = r.Jitter > strainJitter || r.Shimmer > strainShimmer || r.HNR < strainHNR
	return r, true
}

// risingCrossings returns interpolated sample positions where the signal
// crosses zero upwards.
func risingCrossings(x []float64) []float64 {
	var out []float64
	for i := 1; i < len(x); i++ {
		if x[i-1] < 0 && x[i] >= 0 {
			frac := -x[i-1] / (x[i] - x[i-1])
			out = append(out, float64(i-1)+frac)
		}
	}
	return out
}

func hnrAt(x []float64, lag int) float64 {
	if lag <= 0 || lag >= len(x) {
		return 0
	}
	var num, e0, e1 float64
	for i := 0; i+lag < len(x); i++ {
		num += x[i] * x[i+lag]
		e0 += x[i] * x[i]
		e1 += x[i+lag] * x[i+lag]
	}
	if e0 == 0 || e1 == 0 {
		return 0
	}
	r := num / math.Sqrt(e0*e1)
	r = math.Max(1e-6, math.Min(r, 0.999999))
	return 10 * math.Log10(r/(1-r))
}

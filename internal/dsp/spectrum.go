package dsp

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// formant search bands in Hz.
var formantBands = [3][2]float64{
	{250, 1000},
	{800, 2600},
	{1800, 3600},
}

// spectrum returns the magnitude spectrum of a Hann-windowed frame and the
// bin width in Hz.
func (a *Analyzer) spectrum(frame model.AudioFrame) ([]float64, float64) {
	n := len(frame.Samples)
	if n < 64 || frame.SampleRate <= 0 {
		return nil, 0
	}
	fft, ok := a.ffts[n]
	if !ok {
		fft = fourier.NewFFT(n)
		a.ffts[n] = fft
	}
	if len(a.window) != n {
		a.window = make([]float64, n)
		for i := range a.window {
			a.window[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n-1))
		}
	}
	x := a.centered(frame.Samples)
	for i := range x {
		x[i] *= a.window[i]
	}
	coeff := fft.Coefficients(nil, x)
	mags := make([]float64, len(coeff))
	for i, c := range coeff {
		mags[i] = cmplx.Abs(c) / float64(n)
	}
	return mags, float64(frame.SampleRate) / float64(n)
}

// AnalyzeFormants picks the strongest peak of the smoothed spectrum in each
// formant band.
func (a *Analyzer) AnalyzeFormants(frame model.AudioFrame) (model.FormantData, bool) {
	mags, binHz := a.spectrum(frame)
	if mags == nil {
		return model.FormantData{}, false
	}
	smooth := smoothSpectrum(mags, int(math.Max(1, 150/binHz)))
	var found [3]float64
	for i, band := range formantBands {
		lo, hi := int(band[0]/binHz), int(band[1]/binHz)
		if hi >= len(smooth)-1 {
			hi = len(smooth) - 2
		}
		best, bestVal := -1, 0.0
		for k := max(lo, 1); k <= hi; k++ {
			if smooth[k] > bestVal && smooth[k] >= smooth[k-1] && smooth[k] >= smooth[k+1] {
				best, bestVal = k, smooth[k]
			}
		}
		if best > 0 {
			shift := parabolicInterpolate(smooth[best-1], smooth[best], smooth[best+1])
			found[i] = (float64(best) + shift) * binHz
		}
	}
	if found[0] == 0 || found[1] == 0 {
		return model.FormantData{}, false
	}
	return model.FormantData{F1: found[0], F2: found[1], F3: found[2]}, true
}

// ResonanceQuality is the share of spectral energy between 1 and 3 kHz.
func (a *Analyzer) ResonanceQuality(frame model.AudioFrame) float64 {
	mags, binHz := a.spectrum(frame)
	if mags == nil {
		return 0
	}
	return bandRatio(mags, binHz, 1000, 3000, 80, 5000)
}

// Breathiness is the spectral flatness of the frame; noisy, airy voices
// score higher.
func (a *Analyzer) Breathiness(frame model.AudioFrame) float64 {
	mags, _ := a.spectrum(frame)
	if len(mags) < 2 {
		return 0
	}
	var logSum, sum float64
	count := 0
	for _, m := range mags[1:] {
		p := m*m + 1e-12
		logSum += math.Log(p)
		sum += p
		count++
	}
	geo := math.Exp(logSum / float64(count))
	arith := sum / float64(count)
	return math.Max(0, math.Min(1, geo/arith))
}

// Nasality is the share of low-band (200-500 Hz) energy within the voice
// band.
func (a *Analyzer) Nasality(frame model.AudioFrame) float64 {
	mags, binHz := a.spectrum(frame)
	if mags == nil {
		return 0
	}
	return bandRatio(mags, binHz, 200, 500, 200, 2000)
}

func bandRatio(mags []float64, binHz, lo, hi, totalLo, totalHi float64) float64 {
	var band, total float64
	for k, m := range mags {
		f := float64(k) * binHz
		p := m * m
		if f >= totalLo && f < totalHi {
			total += p
		}
		if f >= lo && f < hi {
			band += p
		}
	}
	if total == 0 {
		return 0
	}
	return math.Max(0, math.Min(1, band/total))
}

func smoothSpectrum(mags []float64, width int) []float64 {
	out := make([]float64, len(mags))
	half := width / 2
	for i := range mags {
		lo, hi := max(0, i-half), min(len(mags)-1, i+half)
		var sum float64
		for k := lo; k <= hi; k++ {
			sum += mags[k]
		}
		out[i] = sum / float64(hi-lo+1)
	}
	return out
}

// Package dsp provides a basic pure-Go voice analyzer: autocorrelation
// pitch, FFT spectral estimates and cycle-to-cycle roughness.
package dsp

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

const (
	minPitchHz = 60.0
	maxPitchHz = 1000.0
	// voicedCorrelation is the normalized autocorrelation a pitch peak must
	// reach to be reported.
	voicedCorrelation = 0.45
)

// Options configures an Analyzer.
type Options struct {
	SampleRate int
	// NoiseFrames is the number of frames used to learn the background
	// noise profile before analysis starts.
	NoiseFrames int
}

// Analyzer implements the engine's DSP collaborator. It is not safe for
// concurrent use; the session goroutine owns it.
type Analyzer struct {
	sampleRate  int
	noiseFrames int
	learned     int
	noiseSum    float64
	noiseFloor  float64

	ffts   map[int]*fourier.FFT
	window []float64
	buf    []float64
	corr   []float64
}

// New returns an analyzer.
func New(opts Options) *Analyzer {
	if opts.NoiseFrames < 0 {
		opts.NoiseFrames = 0
	}
	return &Analyzer{
		sampleRate:  opts.SampleRate,
		noiseFrames: opts.NoiseFrames,
		ffts:        map[int]*fourier.FFT{},
	}
}

// Ready reports whether the analyzer can handle the configured sample rate.
func (a *Analyzer) Ready() error {
	if a.sampleRate < 8000 {
		return fmt.Errorf("unsupported sample rate %d", a.sampleRate)
	}
	return nil
}

// ErrNoFrames is returned by NoiseFloor before the profile is learned.
var ErrNoFrames = errors.New("noise profile not learned")

// NoiseFloor returns the learned background RMS level.
func (a *Analyzer) NoiseFloor() (float64, error) {
	if a.learned < a.noiseFrames {
		return 0, ErrNoFrames
	}
	return a.noiseFloor, nil
}

// LearnNoise accumulates the background noise level over the first
// NoiseFrames frames.
func (a *Analyzer) LearnNoise(frame model.AudioFrame) (bool, string) {
	if a.learned >= a.noiseFrames {
		return false, ""
	}
	a.noiseSum += rms(frame.Samples)
	a.learned++
	if a.learned == a.noiseFrames {
		a.noiseFloor = a.noiseSum / float64(a.noiseFrames)
		return true, "Noise profile ready, start speaking"
	}
	pct := a.learned * 100 / a.noiseFrames / 25 * 25
	return true, fmt.Sprintf("Learning background noise, stay quiet... %d%%", pct)
}

// Harmonicity returns the peak normalized autocorrelation within the voice
// pitch range.
func (a *Analyzer) Harmonicity(samples []float32, sampleRate int) float64 {
	_, peak := a.autocorrPeak(samples, sampleRate)
	return math.Max(0, math.Min(1, peak))
}

// DetectPitch estimates the fundamental frequency.
func (a *Analyzer) DetectPitch(frame model.AudioFrame) (float64, bool) {
	if a.noiseFloor > 0 && rms(frame.Samples) < 2*a.noiseFloor {
		return 0, false
	}
	lag, peak := a.autocorrPeak(frame.Samples, frame.SampleRate)
	if lag <= 0 || peak < voicedCorrelation {
		return 0, false
	}
	return float64(frame.SampleRate) / lag, true
}

// autocorrPeak returns the interpolated lag of the strongest normalized
// autocorrelation peak and its height.
func (a *Analyzer) autocorrPeak(samples []float32, sampleRate int) (float64, float64) {
	n := len(samples)
	if n == 0 || sampleRate <= 0 {
		return 0, 0
	}
	minLag := int(float64(sampleRate) / maxPitchHz)
	maxLag := int(float64(sampleRate) / minPitchHz)
	if maxLag >= n-1 {
		maxLag = n - 2
	}
	if minLag < 1 {
		minLag = 1
	}
	if maxLag <= minLag+1 {
		return 0, 0
	}
	x := a.centered(samples)
	var energy float64
	for _, v := range x {
		energy += v * v
	}
	if energy == 0 {
		return 0, 0
	}
	if cap(a.corr) < maxLag+2 {
		a.corr = make([]float64, maxLag+2)
	}
	corr := a.corr[:maxLag+2]
	for lag := minLag - 1; lag <= maxLag+1; lag++ {
		var sum float64
		for i := 0; i+lag < n; i++ {
			sum += x[i] * x[i+lag]
		}
		// Normalise by the overlap so long lags are not penalised.
		corr[lag] = sum / energy * float64(n) / float64(n-lag)
	}

	// First peak that comes close to the global maximum avoids octave
	// errors on strongly periodic input.
	best, bestVal := -1, 0.0
	for lag := minLag; lag <= maxLag; lag++ {
		if corr[lag] > bestVal {
			best, bestVal = lag, corr[lag]
		}
	}
	if best < 0 {
		return 0, 0
	}
	for lag := minLag; lag < best; lag++ {
		if corr[lag] >= 0.9*bestVal && corr[lag] >= corr[lag-1] && corr[lag] >= corr[lag+1] {
			best, bestVal = lag, corr[lag]
			break
		}
	}
	shift := parabolicInterpolate(corr[best-1], corr[best], corr[best+1])
	return float64(best) + shift, bestVal
}

func parabolicInterpolate(yMinus, y0, yPlus float64) float64 {
	denom := yMinus - 2*y0 + yPlus
	if denom == 0 {
		return 0
	}
	return 0.5 * (yMinus - yPlus) / denom
}

func (a *Analyzer) centered(samples []float32) []float64 {
	if cap(a.buf) < len(samples) {
		a.buf = make([]float64, len(samples))
	}
	x := a.buf[:len(samples)]
	var mean float64
	for i, s := range samples {
		x[i] = float64(s)
		mean += x[i]
	}
	mean /= float64(len(x))
	for i := range x {
		x[i] -= mean
	}
	return x
}

func rms(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// meanAbsDiffRatio returns mean(|x[i]-x[i+1]|)/mean(x) for a series.
func meanAbsDiffRatio(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	diffs := make([]float64, len(xs)-1)
	for i := range diffs {
		diffs[i] = math.Abs(xs[i+1] - xs[i])
	}
	m := stat.Mean(xs, nil)
	if m == 0 {
		return 0
	}
	return stat.Mean(diffs, nil) / m
}

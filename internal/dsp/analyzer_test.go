package dsp

import (
	"errors"
	"math"
	"math/rand"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

const testRate = 16000

func frameOf(samples []float64) model.AudioFrame {
	out := make([]float32, len(samples))
	for i, v := range samples {
		out[i] = float32(v)
	}
	return model.AudioFrame{Samples: out, SampleRate: testRate, At: time.Unix(0, 0)}
}

func sine(freq, amp float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * math.Sin(2*math.Pi*freq*float64(i)/testRate)
	}
	return out
}

func noise(seed int64, amp float64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	for i := range out {
		out[i] = amp * (2*rng.Float64() - 1)
	}
	return out
}

// vowel sums harmonics of f0 shaped by gaussian resonances.
func vowel(f0 float64, formants [][2]float64, n int) []float64 {
	out := make([]float64, n)
	for h := f0; h < testRate/2-f0; h += f0 {
		var amp float64
		for _, f := range formants {
			d := (h - f[0]) / 100
			amp += f[1] * math.Exp(-d*d)
		}
		if amp < 1e-4 {
			continue
		}
		for i := range out {
			out[i] += 0.1 * amp * math.Sin(2*math.Pi*h*float64(i)/testRate)
		}
	}
	return out
}

func TestReadyRequiresUsableRate(t *testing.T) {
	if err := New(Options{SampleRate: 4000}).Ready(); err == nil {
		t.Fatalf("expected error for low sample rate")
	}
	if err := New(Options{SampleRate: testRate}).Ready(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLearnNoiseProgress(t *testing.T) {
	a := New(Options{SampleRate: testRate, NoiseFrames: 4})
	if _, err := a.NoiseFloor(); !errors.Is(err, ErrNoFrames) {
		t.Fatalf("expected ErrNoFrames before learning, got %v", err)
	}
	var msgs []string
	for i := 0; i < 4; i++ {
		learning, msg := a.LearnNoise(frameOf(noise(int64(i), 0.01, 1024)))
		if !learning {
			t.Fatalf("frame %d: expected learning", i)
		}
		msgs = append(msgs, msg)
	}
	if !strings.HasSuffix(msgs[0], "25%") || !strings.HasSuffix(msgs[2], "75%") || !strings.Contains(msgs[3], "ready") {
		t.Fatalf("unexpected progress messages %q", msgs)
	}
	if learning, _ := a.LearnNoise(frameOf(noise(9, 0.01, 1024))); learning {
		t.Fatalf("expected learning to be finished")
	}
	floor, err := a.NoiseFloor()
	if err != nil || floor <= 0 || floor > 0.01 {
		t.Fatalf("unexpected noise floor %v (%v)", floor, err)
	}
}

func TestDetectPitchSine(t *testing.T) {
	a := New(Options{SampleRate: testRate})
	for _, want := range []float64{110, 165, 220, 440} {
		got, ok := a.DetectPitch(frameOf(sine(want, 0.5, 2048)))
		if !ok {
			t.Fatalf("%v Hz: expected pitch", want)
		}
		if math.Abs(got-want) > 3 {
			t.Fatalf("%v Hz: detected %v", want, got)
		}
	}
}

func TestDetectPitchRejectsNoise(t *testing.T) {
	a := New(Options{SampleRate: testRate})
	if hz, ok := a.DetectPitch(frameOf(noise(1, 0.5, 2048))); ok {
		t.Fatalf("expected no pitch in noise, got %v", hz)
	}
	if _, ok := a.DetectPitch(frameOf(make([]float64, 2048))); ok {
		t.Fatalf("expected no pitch in silence")
	}
	if _, ok := a.DetectPitch(model.AudioFrame{SampleRate: testRate}); ok {
		t.Fatalf("expected no pitch for empty frame")
	}
}

func TestHarmonicitySeparatesVoiceFromNoise(t *testing.T) {
	a := New(Options{SampleRate: testRate})
	voiced := frameOf(sine(200, 0.4, 2048))
	if h := a.Harmonicity(voiced.Samples, testRate); h < 0.8 {
		t.Fatalf("expected high harmonicity for a tone, got %v", h)
	}
	hiss := frameOf(noise(2, 0.4, 2048))
	if h := a.Harmonicity(hiss.Samples, testRate); h > 0.3 {
		t.Fatalf("expected low harmonicity for noise, got %v", h)
	}
}

func TestAnalyzeFormants(t *testing.T) {
	a := New(Options{SampleRate: testRate})
	frame := frameOf(vowel(100, [][2]float64{{700, 1}, {1200, 1}, {2600, 0.5}}, 2048))
	f, ok := a.AnalyzeFormants(frame)
	if !ok {
		t.Fatalf("expected formants")
	}
	if f.F1 < 550 || f.F1 > 850 || f.F2 < 1050 || f.F2 > 1400 || f.F3 < 2350 || f.F3 > 2850 {
		t.Fatalf("unexpected formants %+v", f)
	}
	if f.Resonance() != f.F2 {
		t.Fatalf("resonance should follow F2")
	}
	if _, ok := a.AnalyzeFormants(frameOf(make([]float64, 32))); ok {
		t.Fatalf("expected no formants for a tiny frame")
	}
}

func TestVocalRoughnessCleanTone(t *testing.T) {
	a := New(Options{SampleRate: testRate})
	r, ok := a.VocalRoughness(frameOf(sine(220, 0.5, 2048)), 220)
	if !ok {
		t.Fatalf("expected roughness measurement")
	}
	if r.Jitter > 0.5 || r.Shimmer > 1 || r.HNR < 20 || r.Strain {
		t.Fatalf("clean tone should be smooth, got %+v", r)
	}
	if _, ok := a.VocalRoughness(frameOf(sine(220, 0.5, 2048)), 0); ok {
		t.Fatalf("expected no measurement without pitch")
	}
	if _, ok := a.VocalRoughness(frameOf(sine(220, 0.5, 100)), 220); ok {
		t.Fatalf("expected no measurement with fewer than three cycles")
	}
}

func TestVocalRoughnessWobblyTone(t *testing.T) {
	a := New(Options{SampleRate: testRate})
	// Alternate cycle amplitude between 0.5 and 0.3.
	samples := make([]float64, 2048)
	phase := 0.0
	for i := range samples {
		amp := 0.5
		if int(phase/(2*math.Pi))%2 == 1 {
			amp = 0.3
		}
		samples[i] = amp * math.Sin(phase)
		phase += 2 * math.Pi * 200 / testRate
	}
	r, ok := a.VocalRoughness(frameOf(samples), 200)
	if !ok {
		t.Fatalf("expected roughness measurement")
	}
	if r.Shimmer < 30 || !r.Strain {
		t.Fatalf("expected strong shimmer, got %+v", r)
	}
}

func TestSpectralScores(t *testing.T) {
	a := New(Options{SampleRate: testRate})
	tone := frameOf(sine(300, 0.5, 2048))
	hiss := frameOf(noise(3, 0.5, 2048))
	if b := a.Breathiness(tone); b > 0.1 {
		t.Fatalf("tone should not be breathy, got %v", b)
	}
	if b := a.Breathiness(hiss); b < 0.3 {
		t.Fatalf("noise should be breathy, got %v", b)
	}
	if n := a.Nasality(tone); n < 0.9 {
		t.Fatalf("300 Hz tone should read as nasal band, got %v", n)
	}
	if n := a.Nasality(frameOf(sine(1500, 0.5, 2048))); n > 0.1 {
		t.Fatalf("1500 Hz tone should not, got %v", n)
	}
	if q := a.ResonanceQuality(frameOf(sine(1800, 0.5, 2048))); q < 0.9 {
		t.Fatalf("expected bright resonance, got %v", q)
	}
}

package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// fakeAnalyzer reads the pitch from the first sample (value*1000 Hz) and
// treats negative frames as unvoiced noise.
type fakeAnalyzer struct {
	notReady   error
	learnCount int
	learned    int
	formants   model.FormantData
	roughness  model.Roughness
	calls      map[string]int
}

func newFakeAnalyzer() *fakeAnalyzer {
	return &fakeAnalyzer{
		formants:  model.FormantData{F1: 500, F2: 1500, F3: 2500},
		roughness: model.Roughness{Jitter: 1, Shimmer: 4, HNR: 20},
		calls:     map[string]int{},
	}
}

func (f *fakeAnalyzer) Ready() error { return f.notReady }

func (f *fakeAnalyzer) LearnNoise(model.AudioFrame) (bool, string) {
	if f.learned >= f.learnCount {
		return false, ""
	}
	f.learned++
	if f.learned == f.learnCount {
		return true, "noise profile learned"
	}
	return true, "learning background noise"
}

func (f *fakeAnalyzer) Harmonicity(samples []float32, _ int) float64 {
	if len(samples) == 0 || samples[0] < 0 {
		return 0
	}
	return 1
}

func (f *fakeAnalyzer) DetectPitch(frame model.AudioFrame) (float64, bool) {
	f.calls["pitch"]++
	if len(frame.Samples) == 0 || frame.Samples[0] <= 0 {
		return 0, false
	}
	return float64(frame.Samples[0]) * 1000, true
}

func (f *fakeAnalyzer) AnalyzeFormants(model.AudioFrame) (model.FormantData, bool) {
	f.calls["formants"]++
	return f.formants, true
}

func (f *fakeAnalyzer) ResonanceQuality(model.AudioFrame) float64 { return 0.5 }

func (f *fakeAnalyzer) VocalRoughness(model.AudioFrame, float64) (model.Roughness, bool) {
	f.calls["roughness"]++
	return f.roughness, true
}

func (f *fakeAnalyzer) Breathiness(model.AudioFrame) float64 {
	f.calls["quality"]++
	return 0.2
}

func (f *fakeAnalyzer) Nasality(model.AudioFrame) float64 { return 0.3 }

type recordingSink struct {
	mu     sync.Mutex
	events []model.StatusEvent
}

func (s *recordingSink) Publish(ev model.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) count(kind model.EventKind) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

type recordingSnapshotter struct {
	builds    []model.RecoverySnapshot
	discarded int
	every     time.Duration
	last      time.Time
}

func (r *recordingSnapshotter) MaybeSnapshot(now time.Time, build func() model.RecoverySnapshot) {
	if !r.last.IsZero() && now.Sub(r.last) < r.every {
		return
	}
	r.last = now
	r.builds = append(r.builds, build())
}

func (r *recordingSnapshotter) Discard() error {
	r.discarded++
	return nil
}

var errNotReady = errors.New("model not loaded")

const (
	testRate        = 1000
	testFrameLength = 100
	testFrame       = 100 * time.Millisecond
)

var testStart = time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)

func testConfig() model.SessionConfig {
	return model.SessionConfig{
		GoalHz:           165,
		Sensitivity:      1,
		VADThreshold:     0.02,
		NoiseThreshold:   0.01,
		DipTolerance:     6 * time.Second,
		HighPitchAlertHz: 400,
	}
}

// frameAt builds the i-th 100 ms frame holding a constant value.
func frameAt(i int, value float32) model.AudioFrame {
	samples := make([]float32, testFrameLength)
	for j := range samples {
		samples[j] = value
	}
	return model.AudioFrame{
		Samples:    samples,
		SampleRate: testRate,
		At:         testStart.Add(time.Duration(i) * testFrame),
	}
}

func voiced(i int, hz float64) model.AudioFrame {
	return frameAt(i, float32(hz/1000))
}

func background(i int) model.AudioFrame {
	return frameAt(i, -0.3)
}

func silent(i int) model.AudioFrame {
	return frameAt(i, 0)
}

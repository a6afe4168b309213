package session

import (
	"context"
	"errors"
	"io"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/capture"
	"github.com/verte-zerg/pitchcoach/internal/engine"
	"github.com/verte-zerg/pitchcoach/internal/model"
)

var testStart = time.Date(2026, 10, 5, 9, 0, 0, 0, time.UTC)

// steadyAnalyzer reports a voiced 170 Hz tone for any frame with a positive
// first sample.
type steadyAnalyzer struct{}

func (steadyAnalyzer) Ready() error { return nil }
func (steadyAnalyzer) LearnNoise(model.AudioFrame) (bool, string) { return false, "" }
func (steadyAnalyzer) Harmonicity([]float32, int) float64 { return 1 }
func (steadyAnalyzer) DetectPitch(f model.AudioFrame) (float64, bool) {
	if len(f.Samples) == 0 || f.Samples[0] <= 0 {
		return 0, false
	}
	return 170, true
}
func (steadyAnalyzer) AnalyzeFormants(model.AudioFrame) (model.FormantData, bool) {
	return model.FormantData{F1: 500, F2: 1500, F3: 2500}, true
}
func (steadyAnalyzer) ResonanceQuality(model.AudioFrame) float64 { return 0.5 }
func (steadyAnalyzer) VocalRoughness(model.AudioFrame, float64) (model.Roughness, bool) {
	return model.Roughness{Jitter: 1.2, Shimmer: 4, HNR: 19}, true
}
func (steadyAnalyzer) Breathiness(model.AudioFrame) float64 { return 0.2 }
func (steadyAnalyzer) Nasality(model.AudioFrame) float64 { return 0.3 }

type recordingSink struct {
	mu     sync.Mutex
	events []model.StatusEvent
}

func (s *recordingSink) Publish(ev model.StatusEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) states() []model.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SessionState
	for _, ev := range s.events {
		if ev.State != nil {
			out = append(out, ev.State.State)
		}
	}
	return out
}

// frameSource yields n frames of 100 ms at 1 kHz, then io.EOF.
type frameSource struct {
	n        int
	startErr error
	readErr  error
	started  int
}

func (s *frameSource) Start(context.Context) (capture.Stream, error) {
	if s.startErr != nil {
		return nil, s.startErr
	}
	s.started++
	return &frameStream{n: s.n, readErr: s.readErr}, nil
}

type frameStream struct {
	i, n    int
	readErr error
	closed  bool
}

func (s *frameStream) Next() (model.AudioFrame, error) {
	if s.i >= s.n {
		if s.readErr != nil {
			return model.AudioFrame{}, s.readErr
		}
		return model.AudioFrame{}, io.EOF
	}
	samples := make([]float32, 100)
	for j := range samples {
		samples[j] = 0.3
	}
	frame := model.AudioFrame{Samples: samples, SampleRate: 1000, At: testStart.Add(time.Duration(s.i) * 100 * time.Millisecond)}
	s.i++
	return frame, nil
}

func (s *frameStream) Close() error {
	s.closed = true
	return nil
}

type memHistory struct {
	entries []model.HistoryEntry
	minutes float64
	days    []time.Time
}

func (m *memHistory) InsertSession(_ context.Context, e model.HistoryEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *memHistory) MinutesOn(_ context.Context, day time.Time) (float64, error) {
	m.days = append(m.days, day)
	return m.minutes, nil
}

type memProgress struct {
	recorded []float64
	dates    []time.Time
	streaks  int
	fail     error
}

func (m *memProgress) RecordSession(_ context.Context, date time.Time, minutes float64, _ uint32, _, _ float64) (model.DailyFatigue, error) {
	if m.fail != nil {
		return model.DailyFatigue{}, m.fail
	}
	m.recorded = append(m.recorded, minutes)
	m.dates = append(m.dates, date)
	return model.DailyFatigue{Date: date, Score: 10, Sessions: len(m.recorded)}, nil
}

func (m *memProgress) UpdateStreak(_ context.Context, date time.Time) (model.StreakRecord, error) {
	m.streaks++
	m.dates = append(m.dates, date)
	return model.StreakRecord{Count: m.streaks, LastPracticeDate: date}, nil
}

type fixture struct {
	ctrl     *Controller
	sink     *recordingSink
	source   *frameSource
	history  *memHistory
	progress *memProgress
}

func newFixture(t *testing.T, frames int) *fixture {
	t.Helper()
	sink := &recordingSink{}
	pipeline, err := engine.New(engine.Deps{Analyzer: steadyAnalyzer{}, Sink: sink})
	if err != nil {
		t.Fatalf("pipeline: %v", err)
	}
	f := &fixture{
		sink:     sink,
		source:   &frameSource{n: frames},
		history:  &memHistory{},
		progress: &memProgress{},
	}
	f.ctrl, err = NewController(Deps{
		Pipeline: pipeline,
		Source:   f.source,
		Sink:     sink,
		History:  f.history,
		Progress: f.progress,
		Now:      func() time.Time { return testStart },
		NewID:    func() string { return "session-1" },
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	return f
}

func testConfig() model.SessionConfig {
	return model.SessionConfig{
		GoalHz:         165,
		Sensitivity:    1,
		VADThreshold:   0.02,
		NoiseThreshold: 0.01,
		DipTolerance:   6 * time.Second,
	}
}

func runToEnd(t *testing.T, f *fixture) Outcome {
	t.Helper()
	id, err := f.ctrl.Start(context.Background(), testConfig(), nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if id != "session-1" {
		t.Fatalf("unexpected session id %q", id)
	}
	select {
	case <-f.ctrl.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("capture did not finish")
	}
	out, err := f.ctrl.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	return out
}

func TestShortSessionNotRecorded(t *testing.T) {
	f := newFixture(t, 590)
	out := runToEnd(t, f)
	if out.Summary.Stats.VoicedDuration != 59*time.Second {
		t.Fatalf("expected 59s voiced, got %v", out.Summary.Stats.VoicedDuration)
	}
	if out.Entry != nil || len(f.history.entries) != 0 || len(f.progress.recorded) != 0 || f.progress.streaks != 0 {
		t.Fatalf("session under a minute must not enter the history")
	}
}

func TestMinuteSessionRecorded(t *testing.T) {
	f := newFixture(t, 600)
	f.history.minutes = 12
	out := runToEnd(t, f)
	if out.Entry == nil || !out.Saved || len(f.history.entries) != 1 {
		t.Fatalf("expected one saved history entry")
	}
	e := f.history.entries[0]
	if e.ID != "session-1" || e.GoalHz != 165 || math.Abs(e.AvgPitch-170) > 1e-9 || e.MinPitch != 170 || e.MaxPitch != 170 {
		t.Fatalf("unexpected entry %+v", e)
	}
	if e.DurationMinutes != 1 || e.TimeInRangePercent != 100 || e.GoalAchievementPercent != 100 {
		t.Fatalf("unexpected entry totals %+v", e)
	}
	if math.Abs(e.AvgJitter-1.2) > 1e-9 || math.Abs(e.VoiceQuality.Nasality-0.3) > 1e-9 || e.SafetyWarnings == nil {
		t.Fatalf("unexpected entry quality %+v", e)
	}
	if !out.Summary.EndedAt.Equal(testStart.Add(time.Minute)) {
		t.Fatalf("session should end at the last frame, got %v", out.Summary.EndedAt)
	}
	if len(f.progress.recorded) != 1 || f.progress.recorded[0] != 1 || out.Streak == nil || out.Fatigue == nil {
		t.Fatalf("expected fatigue and streak updates, got %+v", f.progress)
	}
	if len(f.history.days) != 1 || !f.history.days[0].Equal(testStart.Truncate(24*time.Hour)) {
		t.Fatalf("expected today's minutes to be queried, got %v", f.history.days)
	}
	states := f.sink.states()
	if len(states) != 2 || states[0] != model.SessionStateActive || states[1] != model.SessionStateStopped {
		t.Fatalf("unexpected state events %v", states)
	}
}

func TestSessionAcrossMidnightKeepsOneDay(t *testing.T) {
	f := newFixture(t, 0)
	started := time.Date(2026, 10, 5, 23, 58, 0, 0, time.UTC)
	out := Outcome{Result: engine.Result{
		Config: testConfig(),
		Summary: model.SessionSummary{
			SessionID: "late",
			StartedAt: started,
			EndedAt:   started.Add(5 * time.Minute),
			Active:    4 * time.Minute,
			Stats:     model.SessionStats{TotalVoicedFrames: 1200, VoicedDuration: 2 * time.Minute},
		},
	}}
	f.ctrl.record(context.Background(), &out)
	day := time.Date(2026, 10, 5, 0, 0, 0, 0, time.UTC)
	if out.Entry == nil || !out.Entry.Date.Equal(day) {
		t.Fatalf("expected history row on %v, got %+v", day, out.Entry)
	}
	if len(f.progress.dates) != 2 {
		t.Fatalf("expected fatigue and streak updates, got %v", f.progress.dates)
	}
	for _, d := range f.progress.dates {
		if !d.Equal(day) {
			t.Fatalf("fatigue and streak must use the history day, got %v", f.progress.dates)
		}
	}
}

func TestProgressFailureKeepsResult(t *testing.T) {
	f := newFixture(t, 600)
	f.progress.fail = errors.New("disk full")
	out := runToEnd(t, f)
	if out.Entry == nil || out.Fatigue != nil || out.Streak == nil {
		t.Fatalf("expected entry and streak despite fatigue failure, got %+v", out)
	}
}

func TestFailedCaptureStartPublishesErrorAndStaysIdle(t *testing.T) {
	f := newFixture(t, 10)
	f.source.startErr = errors.New("no microphone")
	_, err := f.ctrl.Start(context.Background(), testConfig(), nil)
	if err == nil || !errors.Is(err, f.source.startErr) {
		t.Fatalf("expected wrapped capture error, got %v", err)
	}
	states := f.sink.states()
	if len(states) != 1 || states[0] != model.SessionStateError {
		t.Fatalf("expected one error event, got %v", states)
	}
	if f.ctrl.Active() || f.ctrl.Done() != nil {
		t.Fatalf("controller should be idle after a failed start")
	}
	f.source.startErr = nil
	if _, err := f.ctrl.Start(context.Background(), testConfig(), nil); err != nil {
		t.Fatalf("expected a later start to succeed, got %v", err)
	}
	if err := f.ctrl.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
}

func TestLifecycleErrors(t *testing.T) {
	f := newFixture(t, 10)
	if _, err := f.ctrl.Stop(context.Background()); !errors.Is(err, engine.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	if err := f.ctrl.Pause(); !errors.Is(err, engine.ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession on pause, got %v", err)
	}
	if _, err := f.ctrl.Start(context.Background(), testConfig(), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := f.ctrl.Start(context.Background(), testConfig(), nil); !errors.Is(err, engine.ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
	if err := f.ctrl.Abort(); err != nil {
		t.Fatalf("abort: %v", err)
	}
	if len(f.history.entries) != 0 {
		t.Fatalf("abort must not record history")
	}
}

func TestCaptureErrorEndsSession(t *testing.T) {
	f := newFixture(t, 5)
	f.source.readErr = errors.New("device unplugged")
	if _, err := f.ctrl.Start(context.Background(), testConfig(), nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	<-f.ctrl.Done()
	out, err := f.ctrl.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !errors.Is(out.CaptureErr, f.source.readErr) {
		t.Fatalf("expected capture error in outcome, got %v", out.CaptureErr)
	}
	states := f.sink.states()
	if len(states) != 3 || states[1] != model.SessionStateError {
		t.Fatalf("unexpected state events %v", states)
	}
}

func TestResumeKeepsSessionID(t *testing.T) {
	f := newFixture(t, 0)
	snap := &model.RecoverySnapshot{
		Version:   model.RecoverySnapshotVersion,
		SessionID: "recovered",
		StartedAt: testStart.Add(-10 * time.Minute),
		WrittenAt: testStart.Add(-5 * time.Minute),
		Config:    testConfig(),
	}
	id, err := f.ctrl.Start(context.Background(), testConfig(), snap)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if id != "recovered" {
		t.Fatalf("expected recovered id, got %q", id)
	}
	<-f.ctrl.Done()
	out, err := f.ctrl.Stop(context.Background())
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if out.Summary.SessionID != "recovered" || !out.Summary.StartedAt.Equal(snap.StartedAt) {
		t.Fatalf("unexpected summary %+v", out.Summary)
	}
}

package engine

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

func newTestPipeline(t *testing.T, analyzer *fakeAnalyzer) (*Pipeline, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	p, err := New(Deps{Analyzer: analyzer, Sink: sink})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p, sink
}

// mixedFrames is a deterministic mix of voiced pitches, dips, noise and
// silence.
func mixedFrames() []model.AudioFrame {
	var frames []model.AudioFrame
	for i := 0; i < 600; i++ {
		switch {
		case i%97 < 6:
			frames = append(frames, background(i))
		case i%53 == 0:
			frames = append(frames, silent(i))
		case i >= 200 && i < 290:
			frames = append(frames, voiced(i, 130+float64(i%7)))
		default:
			frames = append(frames, voiced(i, 160+float64(i%23)))
		}
	}
	return frames
}

func TestPipelineNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Deps{Sink: &recordingSink{}}); err == nil {
		t.Fatalf("expected error without analyzer")
	}
	if _, err := New(Deps{Analyzer: newFakeAnalyzer()}); err == nil {
		t.Fatalf("expected error without sink")
	}
}

func TestPipelineIsDeterministic(t *testing.T) {
	run := func() model.SessionStats {
		p, _ := newTestPipeline(t, newFakeAnalyzer())
		if err := p.StartSession(testConfig(), StartOptions{SessionID: "s", StartedAt: testStart}); err != nil {
			t.Fatalf("start: %v", err)
		}
		for _, f := range mixedFrames() {
			p.OnFrame(f)
		}
		res, err := p.StopSession(testStart.Add(time.Minute))
		if err != nil {
			t.Fatalf("stop: %v", err)
		}
		return res.Summary.Stats
	}
	first, second := run(), run()
	if first.TotalVoicedFrames == 0 || first.DipCount == 0 {
		t.Fatalf("expected voiced frames and dips, got %+v", first)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("stats differ between runs:\n%+v\n%+v", first, second)
	}
	if first.MinPitch > first.AvgPitch || first.AvgPitch > first.MaxPitch {
		t.Fatalf("avg outside range: %+v", first)
	}
}

func TestPipelineStartFailsWhenAnalyzerNotReady(t *testing.T) {
	analyzer := newFakeAnalyzer()
	analyzer.notReady = errNotReady
	p, sink := newTestPipeline(t, analyzer)
	err := p.StartSession(testConfig(), StartOptions{StartedAt: testStart})
	if !errors.Is(err, ErrAnalyzerNotReady) || !errors.Is(err, errNotReady) {
		t.Fatalf("expected not-ready error, got %v", err)
	}
	if p.Active() {
		t.Fatalf("pipeline active after failed start")
	}
	p.OnFrame(voiced(0, 170))
	if len(sink.events) != 0 {
		t.Fatalf("expected no events, got %d", len(sink.events))
	}
}

func TestPipelineLifecycleErrors(t *testing.T) {
	p, _ := newTestPipeline(t, newFakeAnalyzer())
	if _, err := p.StopSession(testStart); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}
	if err := p.StartSession(testConfig(), StartOptions{StartedAt: testStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := p.StartSession(testConfig(), StartOptions{StartedAt: testStart}); !errors.Is(err, ErrSessionActive) {
		t.Fatalf("expected ErrSessionActive, got %v", err)
	}
}

func TestPipelineNoiseFeedbackOnlyOnEdges(t *testing.T) {
	p, sink := newTestPipeline(t, newFakeAnalyzer())
	if err := p.StartSession(testConfig(), StartOptions{StartedAt: testStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	i := 0
	for ; i < 10; i++ {
		p.OnFrame(voiced(i, 170))
	}
	for ; i < 30; i++ {
		p.OnFrame(background(i))
	}
	for ; i < 40; i++ {
		p.OnFrame(voiced(i, 170))
	}
	if got := sink.count(model.EventNoiseFeedback); got != 2 {
		t.Fatalf("expected 2 noise feedback events, got %d", got)
	}
	res, err := p.StopSession(testStart.Add(4 * time.Second))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Summary.NoisePaused != 2*time.Second {
		t.Fatalf("expected 2s noise pause, got %s", res.Summary.NoisePaused)
	}
	if res.Summary.Active != 2*time.Second {
		t.Fatalf("expected 2s active, got %s", res.Summary.Active)
	}
}

func TestPipelineNoiseLearningGatesAnalysis(t *testing.T) {
	analyzer := newFakeAnalyzer()
	analyzer.learnCount = 5
	p, sink := newTestPipeline(t, analyzer)
	if err := p.StartSession(testConfig(), StartOptions{StartedAt: testStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 10; i++ {
		p.OnFrame(voiced(i, 170))
	}
	if got := p.Snapshot().TotalVoicedFrames; got != 5 {
		t.Fatalf("expected 5 analysed frames after learning, got %d", got)
	}
	if got := sink.count(model.EventNoiseFeedback); got != 2 {
		t.Fatalf("expected learning progress and completion messages, got %d", got)
	}
}

func TestPipelineRunsScheduledAnalyses(t *testing.T) {
	analyzer := newFakeAnalyzer()
	p, _ := newTestPipeline(t, analyzer)
	if err := p.StartSession(testConfig(), StartOptions{StartedAt: testStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 150; i++ {
		p.OnFrame(voiced(i, 170))
	}
	if analyzer.calls["formants"] != 30 || analyzer.calls["quality"] != 15 || analyzer.calls["roughness"] != 10 {
		t.Fatalf("unexpected analysis calls: %v", analyzer.calls)
	}
	s := p.Snapshot()
	if s.ResonanceSamples != 30 || s.QualitySamples != 15 || s.RoughnessSamples != 10 {
		t.Fatalf("unexpected sample counts: %+v", s)
	}
}

func TestPipelineDipAlertAndRecovery(t *testing.T) {
	p, sink := newTestPipeline(t, newFakeAnalyzer())
	if err := p.StartSession(testConfig(), StartOptions{StartedAt: testStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	i := 0
	for ; i < 70; i++ {
		p.OnFrame(voiced(i, 140))
	}
	for ; i < 90; i++ {
		p.OnFrame(voiced(i, 170))
	}
	s := p.Snapshot()
	if s.DipCount != 1 || s.LowAlerts != 1 {
		t.Fatalf("expected one dip and one low alert, got %+v", s)
	}
	alerts := 0
	for _, ev := range sink.events {
		if ev.Kind == model.EventTrainingStatus && ev.Training.Dip.AlertTriggered {
			alerts++
		}
	}
	if alerts != 1 {
		t.Fatalf("expected one alert-bearing status, got %d", alerts)
	}
}

func TestPipelineHighPitchAlertIsEdgeTriggered(t *testing.T) {
	p, _ := newTestPipeline(t, newFakeAnalyzer())
	if err := p.StartSession(testConfig(), StartOptions{StartedAt: testStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	i := 0
	for ; i < 10; i++ {
		p.OnFrame(voiced(i, 450))
	}
	for ; i < 20; i++ {
		p.OnFrame(voiced(i, 300))
	}
	for ; i < 30; i++ {
		p.OnFrame(voiced(i, 450))
	}
	if got := p.Snapshot().HighAlerts; got != 2 {
		t.Fatalf("expected 2 high alerts, got %d", got)
	}
}

func TestPipelineTargetDurationCompletesOnce(t *testing.T) {
	p, sink := newTestPipeline(t, newFakeAnalyzer())
	cfg := testConfig()
	cfg.TargetDuration = 2 * time.Second
	if err := p.StartSession(cfg, StartOptions{StartedAt: testStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 50; i++ {
		p.OnFrame(voiced(i, 170))
	}
	if got := sink.count(model.EventExerciseComplete); got != 1 {
		t.Fatalf("expected one completion event, got %d", got)
	}
}

func TestPipelineUserPauseDropsFrames(t *testing.T) {
	p, _ := newTestPipeline(t, newFakeAnalyzer())
	if err := p.StartSession(testConfig(), StartOptions{StartedAt: testStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	p.OnFrame(voiced(0, 170))
	if err := p.PauseSession(testStart.Add(testFrame)); err != nil {
		t.Fatalf("pause: %v", err)
	}
	for i := 1; i < 11; i++ {
		p.OnFrame(voiced(i, 170))
	}
	if err := p.ResumeSession(testStart.Add(11 * testFrame)); err != nil {
		t.Fatalf("resume: %v", err)
	}
	p.OnFrame(voiced(11, 170))
	res, err := p.StopSession(testStart.Add(12 * testFrame))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Summary.Stats.TotalVoicedFrames != 2 {
		t.Fatalf("expected 2 voiced frames, got %d", res.Summary.Stats.TotalVoicedFrames)
	}
	if res.Summary.UserPaused != time.Second || res.Summary.Active != 200*time.Millisecond {
		t.Fatalf("unexpected time split: %+v", res.Summary)
	}
}

func TestPipelineStopDiscardsRecovery(t *testing.T) {
	snaps := &recordingSnapshotter{every: time.Second}
	p, err := New(Deps{Analyzer: newFakeAnalyzer(), Sink: &recordingSink{}, Snapshotter: snaps})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := p.StartSession(testConfig(), StartOptions{SessionID: "abc", StartedAt: testStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 35; i++ {
		p.OnFrame(voiced(i, 170))
	}
	if len(snaps.builds) != 4 {
		t.Fatalf("expected 4 throttled snapshots, got %d", len(snaps.builds))
	}
	last := snaps.builds[len(snaps.builds)-1]
	if last.SessionID != "abc" || last.Stats.TotalVoicedFrames != 31 {
		t.Fatalf("unexpected snapshot: %+v", last)
	}
	if _, err := p.StopSession(testStart.Add(4 * time.Second)); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if snaps.discarded != 1 {
		t.Fatalf("expected recovery discard on stop")
	}
	p.OnFrame(voiced(40, 170))
	if got := p.Snapshot().TotalVoicedFrames; got != 35 {
		t.Fatalf("frames processed after stop: %d", got)
	}
}

func TestPipelineResumeContinuesCounting(t *testing.T) {
	snaps := &recordingSnapshotter{every: time.Second}
	p, err := New(Deps{Analyzer: newFakeAnalyzer(), Sink: &recordingSink{}, Snapshotter: snaps})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := p.StartSession(testConfig(), StartOptions{SessionID: "crashy", StartedAt: testStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	for i := 0; i < 20; i++ {
		p.OnFrame(voiced(i, 170))
	}
	snap := snaps.builds[len(snaps.builds)-1]

	resumeAt := snap.WrittenAt.Add(10 * time.Minute)
	q, _ := newTestPipeline(t, newFakeAnalyzer())
	if err := q.StartSession(model.SessionConfig{}, StartOptions{StartedAt: resumeAt, Resume: &snap}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if !reflect.DeepEqual(q.Snapshot(), snap.Stats) {
		t.Fatalf("restored stats differ:\n%+v\n%+v", q.Snapshot(), snap.Stats)
	}
	res, err := q.StopSession(resumeAt)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Summary.SessionID != "crashy" || res.Config.GoalHz != 165 {
		t.Fatalf("resumed session lost identity: %+v", res)
	}
	if res.Summary.Active != snap.ActiveDuration {
		t.Fatalf("expected active %s to carry over, got %s", snap.ActiveDuration, res.Summary.Active)
	}
}

func TestPipelineResumeKeepsUserPauseAndLatches(t *testing.T) {
	snaps := &recordingSnapshotter{every: time.Second}
	p, err := New(Deps{Analyzer: newFakeAnalyzer(), Sink: &recordingSink{}, Snapshotter: snaps})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	cfg := testConfig()
	cfg.TargetDuration = time.Second
	if err := p.StartSession(cfg, StartOptions{SessionID: "paused", StartedAt: testStart}); err != nil {
		t.Fatalf("start: %v", err)
	}
	p.OnFrame(voiced(0, 170))
	if err := p.PauseSession(testStart.Add(testFrame)); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := p.ResumeSession(testStart.Add(601 * testFrame)); err != nil {
		t.Fatalf("resume: %v", err)
	}
	for i := 601; i < 631; i++ {
		p.OnFrame(voiced(i, 170))
	}
	snap := snaps.builds[len(snaps.builds)-1]
	if snap.ActiveDuration != 2200*time.Millisecond || snap.UserPaused != time.Minute {
		t.Fatalf("unexpected snapshot clock: active %s, paused %s", snap.ActiveDuration, snap.UserPaused)
	}
	if !snap.Completed || snap.ResonanceBaselineHz != 1500 {
		t.Fatalf("snapshot lost session state: %+v", snap)
	}

	resumeAt := snap.WrittenAt.Add(10 * time.Minute)
	q, sink := newTestPipeline(t, newFakeAnalyzer())
	if err := q.StartSession(model.SessionConfig{}, StartOptions{StartedAt: resumeAt, Resume: &snap}); err != nil {
		t.Fatalf("resume: %v", err)
	}
	first := int(resumeAt.Sub(testStart) / testFrame)
	for i := first; i < first+10; i++ {
		q.OnFrame(voiced(i, 170))
	}
	if got := sink.count(model.EventExerciseComplete); got != 0 {
		t.Fatalf("completion fired again after resume: %d", got)
	}
	if q.resonanceBase != 1500 {
		t.Fatalf("resonance baseline reset to %v", q.resonanceBase)
	}
	res, err := q.StopSession(resumeAt.Add(time.Second))
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if res.Summary.Active != snap.ActiveDuration+time.Second {
		t.Fatalf("active time changed across restore: %s -> %s", snap.ActiveDuration, res.Summary.Active)
	}
	if res.Summary.UserPaused != time.Minute {
		t.Fatalf("expected the earlier pause to carry over, got %s", res.Summary.UserPaused)
	}
}

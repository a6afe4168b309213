package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// Accepted pitch range; estimates outside it are treated as absent.
const (
	MinPitchHz = 50.0
	MaxPitchHz = 1000.0
)

// HighPitchMargin is added to the configured high pitch alert level.
const HighPitchMargin = 20.0

// Deps are the collaborators of a Pipeline.
type Deps struct {
	Analyzer    Analyzer
	Sink        StatusSink
	Snapshotter Snapshotter
	Logger      *slog.Logger
	Safety      SafetyLimits
}

// StartOptions identify a session being started.
type StartOptions struct {
	SessionID string
	StartedAt time.Time
	// PriorToday is the active time of earlier sessions on the same day.
	PriorToday time.Duration
	// Resume continues a recovered session instead of starting fresh.
	Resume *model.RecoverySnapshot
}

// Result is returned when a session stops.
type Result struct {
	Config  model.SessionConfig
	Summary model.SessionSummary
}

// Pipeline runs the per-frame training flow. OnFrame must be called from a
// single goroutine; Snapshot may be called from any goroutine.
type Pipeline struct {
	analyzer    Analyzer
	sink        StatusSink
	snapshotter Snapshotter
	logger      *slog.Logger
	limits      SafetyLimits

	// mu serialises lifecycle calls with frame processing.
	mu         sync.Mutex
	active     bool
	userPaused bool
	cfg        model.SessionConfig
	sessionID  string
	startedAt  time.Time

	userPausedAt   time.Time
	userPauseTotal time.Duration
	offline        time.Duration
	resonanceBase  float64
	resonanceQ     float64
	highActive     bool
	completed      bool
	learning       bool
	lastNoiseMsg   string
	warnings       []model.SafetyWarning

	gate      *Gate
	noise     NoisePauseTracker
	scheduler Scheduler
	dip       DipTracker
	safety    *SafetyMonitor

	// statsMu guards agg; held only for updates and copies.
	statsMu sync.Mutex
	agg     *Aggregator
}

// New builds a pipeline. Analyzer and Sink are required.
func New(deps Deps) (*Pipeline, error) {
	if deps.Analyzer == nil {
		return nil, errors.New("pipeline requires an analyzer")
	}
	if deps.Sink == nil {
		return nil, errors.New("pipeline requires a status sink")
	}
	if deps.Snapshotter == nil {
		deps.Snapshotter = noopSnapshotter{}
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Safety == (SafetyLimits{}) {
		deps.Safety = DefaultSafetyLimits()
	}
	return &Pipeline{
		analyzer:    deps.Analyzer,
		sink:        deps.Sink,
		snapshotter: deps.Snapshotter,
		logger:      deps.Logger,
		limits:      deps.Safety,
		gate:        NewGate(deps.Analyzer),
		agg:         NewAggregator(),
	}, nil
}

// StartSession begins a session with a copy of cfg.
func (p *Pipeline) StartSession(cfg model.SessionConfig, opts StartOptions) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return ErrSessionActive
	}
	if err := p.analyzer.Ready(); err != nil {
		return fmt.Errorf("%w: %w", ErrAnalyzerNotReady, err)
	}
	if opts.StartedAt.IsZero() {
		return fmt.Errorf("%w: missing start time", ErrInvalidConfig)
	}

	p.noise.Reset()
	p.dip.Reset()
	p.scheduler.Reset()
	p.statsMu.Lock()
	p.agg.Reset()
	p.statsMu.Unlock()
	p.userPaused = false
	p.userPauseTotal = 0
	p.offline = 0
	p.resonanceQ = 0
	p.highActive = false
	p.completed = false
	p.learning = true
	p.lastNoiseMsg = ""
	p.cfg = cfg
	p.sessionID = opts.SessionID
	p.startedAt = opts.StartedAt
	p.resonanceBase = cfg.ResonanceBaselineHz

	snap := opts.Resume
	if snap != nil {
		p.restore(*snap, opts.StartedAt)
	}
	p.safety = NewSafetyMonitor(p.safetyLimits(), opts.PriorToday)
	if snap != nil {
		p.safety.Restore(p.activeTime(opts.StartedAt), snap.Stats.SafetyWarnings)
	}
	p.active = true

	p.logger.Info("session started",
		"session_id", p.sessionID,
		"goal_hz", p.cfg.GoalHz,
		"resumed", opts.Resume != nil,
	)
	p.publishState(opts.StartedAt, model.SessionStateActive, "")
	return nil
}

// restore continues a recovered session. The clock picks up at the saved
// active time, so the time between the snapshot and resumeAt is not counted.
func (p *Pipeline) restore(snap model.RecoverySnapshot, resumeAt time.Time) {
	p.cfg = snap.Config
	if snap.SessionID != "" {
		p.sessionID = snap.SessionID
	}
	savedAt := snap.WrittenAt
	if savedAt.IsZero() || savedAt.After(resumeAt) {
		savedAt = resumeAt
	}
	p.noise.Restore(snap.NoisePause, savedAt, resumeAt)
	p.dip.Restore(snap.Dip, savedAt, resumeAt)
	p.statsMu.Lock()
	p.agg.Restore(snap.Stats)
	p.statsMu.Unlock()

	p.userPauseTotal = nonNegative(snap.UserPaused)
	active := nonNegative(snap.ActiveDuration)
	elapsed := active + p.userPauseTotal + p.noise.PausedFor(resumeAt)
	if !snap.StartedAt.IsZero() && !snap.StartedAt.After(savedAt) {
		p.startedAt = snap.StartedAt
	} else {
		p.startedAt = resumeAt.Add(-elapsed)
	}
	// offline may be negative when the saved clock ran ahead of the wall
	// clock; activeTime(resumeAt) equals the saved active time either way.
	p.offline = resumeAt.Sub(p.startedAt) - elapsed

	if snap.ResonanceBaselineHz > 0 {
		p.resonanceBase = snap.ResonanceBaselineHz
	} else {
		p.resonanceBase = p.cfg.ResonanceBaselineHz
	}
	p.completed = snap.Completed
}

func (p *Pipeline) safetyLimits() SafetyLimits {
	limits := p.limits
	if p.cfg.StrainPitchHz > 0 {
		limits.StrainPitchHz = p.cfg.StrainPitchHz
	}
	return limits
}

// OnFrame processes one captured frame. It never fails; frames that cannot
// be used are dropped.
func (p *Pipeline) OnFrame(frame model.AudioFrame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active || p.userPaused {
		return
	}
	if len(frame.Samples) == 0 || frame.SampleRate <= 0 {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("dropped frame after analyzer panic", "session_id", p.sessionID, "panic", r)
		}
	}()
	end := frame.End()

	if p.learning {
		learning, msg := p.analyzer.LearnNoise(frame)
		if msg != "" && msg != p.lastNoiseMsg {
			p.lastNoiseMsg = msg
			p.publishNoise(frame.At, msg)
		}
		if learning {
			return
		}
		p.learning = false
		p.logger.Debug("noise profile ready", "session_id", p.sessionID)
	}

	class, scaled := p.gate.Classify(frame, p.cfg)
	switch p.noise.Observe(class, frame.At) {
	case EdgePaused:
		p.logger.Debug("noise pause", "session_id", p.sessionID)
		p.publishNoise(frame.At, "Background noise detected, timer paused")
	case EdgeResumed:
		p.logger.Debug("noise pause cleared", "session_id", p.sessionID)
		p.publishNoise(frame.At, "Voice detected, timer resumed")
	}
	if class == Voiced {
		p.processVoiced(model.AudioFrame{Samples: scaled, SampleRate: frame.SampleRate, At: frame.At})
	}

	p.snapshotter.MaybeSnapshot(end, func() model.RecoverySnapshot {
		return p.buildSnapshot(end)
	})
}

func (p *Pipeline) processVoiced(frame model.AudioFrame) {
	plan := p.scheduler.Next()
	end := frame.End()
	active := p.activeTime(end)

	pitch, hasPitch := p.analyzer.DetectPitch(frame)
	hasPitch = hasPitch && pitch > MinPitchHz && pitch < MaxPitchHz && !math.IsNaN(pitch)
	if hasPitch {
		p.statsMu.Lock()
		p.agg.UpdatePitch(pitch, p.cfg.GoalHz, frame.Duration())
		p.statsMu.Unlock()
	}

	var formants *model.FormantData
	if plan.Formants {
		if f, ok := p.analyzer.AnalyzeFormants(frame); ok {
			formants = &f
			if p.resonanceBase <= 0 {
				p.resonanceBase = f.Resonance()
			}
			p.resonanceQ = p.analyzer.ResonanceQuality(frame)
			p.statsMu.Lock()
			p.agg.UpdateResonance(f.Resonance(), p.resonanceBase)
			p.statsMu.Unlock()
		}
	}
	if plan.Quality {
		b, n := p.analyzer.Breathiness(frame), p.analyzer.Nasality(frame)
		p.statsMu.Lock()
		p.agg.UpdateQuality(b, n)
		p.statsMu.Unlock()
	}
	var roughness *model.Roughness
	if plan.Roughness && hasPitch {
		if r, ok := p.analyzer.VocalRoughness(frame, pitch); ok {
			roughness = &r
			p.statsMu.Lock()
			p.agg.UpdateRoughness(r)
			p.statsMu.Unlock()
		}
	}

	p.warnings = p.safety.Check(SafetyInput{
		At:        frame.At,
		Active:    active,
		PitchHz:   pitch,
		HasPitch:  hasPitch,
		Energy:    RMS(frame.Samples),
		Roughness: roughness,
	}, p.warnings[:0])
	for i := range p.warnings {
		w := p.warnings[i]
		p.statsMu.Lock()
		p.agg.UpdateSafetyWarning(w.Kind)
		p.statsMu.Unlock()
		p.logger.Info("safety warning", "session_id", p.sessionID, "kind", w.Kind, "severity", w.Severity)
		p.publish(model.StatusEvent{Kind: model.EventSafetyWarning, At: frame.At, Safety: &w})
	}

	if hasPitch {
		up := p.dip.Push(pitch, p.cfg.GoalHz, p.cfg.DipTolerance, frame.At)
		if up.AlertJustFired || up.Recovered {
			p.statsMu.Lock()
			if up.AlertJustFired {
				p.agg.RecordAlert(AlertLow)
			}
			if up.Recovered {
				p.agg.RecordDip(up.Duration)
			}
			p.statsMu.Unlock()
		}
		info := model.DipInfo{
			InDip:           up.InDip,
			JustStarted:     up.JustStarted,
			AlertTriggered:  up.AlertJustFired,
			Recovered:       up.Recovered,
			DurationSeconds: up.Duration.Seconds(),
			SmoothedPitchHz: up.Median,
		}
		if up.InDip && p.cfg.DipTolerance > up.Duration {
			info.RemainingSeconds = (p.cfg.DipTolerance - up.Duration).Seconds()
		}
		p.publish(model.StatusEvent{
			Kind: model.EventTrainingStatus,
			At:   frame.At,
			Training: &model.TrainingStatus{
				PitchHz:          pitch,
				GoalHz:           p.cfg.GoalHz,
				Dip:              info,
				ResonanceQuality: p.resonanceQ,
				Formants:         formants,
				ActiveSeconds:    active.Seconds(),
			},
		})

		high := p.cfg.HighPitchAlertHz > 0 && pitch > p.cfg.HighPitchAlertHz+HighPitchMargin
		if high && !p.highActive {
			p.statsMu.Lock()
			p.agg.RecordAlert(AlertHigh)
			p.statsMu.Unlock()
		}
		p.highActive = high
	}

	if p.cfg.TargetDuration > 0 && !p.completed && active >= p.cfg.TargetDuration {
		p.completed = true
		p.logger.Info("target duration reached", "session_id", p.sessionID, "active", active)
		p.publish(model.StatusEvent{
			Kind:     model.EventExerciseComplete,
			At:       frame.At,
			Complete: &model.ExerciseComplete{ActiveSeconds: active.Seconds()},
		})
	}
}

// PauseSession stops frame processing until ResumeSession.
func (p *Pipeline) PauseSession(now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return ErrNoActiveSession
	}
	if p.userPaused {
		return nil
	}
	p.userPaused = true
	p.userPausedAt = now
	p.publishState(now, model.SessionStatePaused, "")
	return nil
}

// ResumeSession continues a paused session.
func (p *Pipeline) ResumeSession(now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return ErrNoActiveSession
	}
	if !p.userPaused {
		return nil
	}
	p.closeUserPause(now)
	p.publishState(now, model.SessionStateActive, "")
	return nil
}

func (p *Pipeline) closeUserPause(now time.Time) {
	if d := now.Sub(p.userPausedAt); d > 0 {
		p.userPauseTotal += d
	}
	p.userPaused = false
	p.userPausedAt = time.Time{}
}

// StopSession ends the session, discards its recovery snapshot and returns
// the final statistics.
func (p *Pipeline) StopSession(now time.Time) (Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.active {
		return Result{}, ErrNoActiveSession
	}
	p.active = false
	if p.userPaused {
		p.closeUserPause(now)
	}

	stats := p.Snapshot()
	summary := model.SessionSummary{
		SessionID:   p.sessionID,
		StartedAt:   p.startedAt,
		EndedAt:     now,
		Total:       nonNegative(now.Sub(p.startedAt)),
		Active:      p.activeTime(now),
		NoisePaused: p.noise.PausedFor(now),
		UserPaused:  p.userPauseTotal,
		Stats:       stats,
	}
	if err := p.snapshotter.Discard(); err != nil {
		p.logger.Warn("failed to discard recovery snapshot", "session_id", p.sessionID, "err", err)
	}
	p.logger.Info("session stopped",
		"session_id", p.sessionID,
		"active", summary.Active,
		"voiced", stats.VoicedDuration,
		"dips", stats.DipCount,
	)
	p.publishState(now, model.SessionStateStopped, "")
	return Result{Config: p.cfg, Summary: summary}, nil
}

// Active reports whether a session is running.
func (p *Pipeline) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// Snapshot returns a copy of the current session statistics.
func (p *Pipeline) Snapshot() model.SessionStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	return p.agg.Stats()
}

func (p *Pipeline) activeTime(now time.Time) time.Duration {
	return nonNegative(p.noise.ActiveTime(p.startedAt, now) - p.userPausedFor(now) - p.offline)
}

// userPausedFor returns the total user pause at now, including a pause in
// progress.
func (p *Pipeline) userPausedFor(now time.Time) time.Duration {
	total := p.userPauseTotal
	if p.userPaused {
		total += nonNegative(now.Sub(p.userPausedAt))
	}
	return total
}

func (p *Pipeline) buildSnapshot(now time.Time) model.RecoverySnapshot {
	return model.RecoverySnapshot{
		Version:             model.RecoverySnapshotVersion,
		SessionID:           p.sessionID,
		StartedAt:           p.startedAt,
		WrittenAt:           now,
		Config:              p.cfg,
		Stats:               p.Snapshot(),
		NoisePause:          p.noise.State(),
		Dip:                 p.dip.State(),
		ActiveDuration:      p.activeTime(now),
		UserPaused:          p.userPausedFor(now),
		ResonanceBaselineHz: p.resonanceBase,
		Completed:           p.completed,
	}
}

func (p *Pipeline) publishNoise(at time.Time, msg string) {
	p.publish(model.StatusEvent{Kind: model.EventNoiseFeedback, At: at, Noise: &model.NoiseFeedback{Message: msg}})
}

func (p *Pipeline) publishState(at time.Time, state model.SessionState, reason string) {
	p.publish(model.StatusEvent{
		Kind:  model.EventSessionState,
		At:    at,
		State: &model.SessionStateChange{State: state, Reason: reason},
	})
}

func (p *Pipeline) publish(ev model.StatusEvent) {
	ev.Version = model.EventVersion
	ev.SessionID = p.sessionID
	p.sink.Publish(ev)
}

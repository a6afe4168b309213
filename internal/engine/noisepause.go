package engine

import (
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// Edge reports a noise pause transition.
type Edge int

const (
	EdgeNone Edge = iota
	EdgePaused
	EdgeResumed
)

// NoisePauseTracker pauses the active clock while only background noise is
// heard.
type NoisePauseTracker struct {
	state model.NoisePauseState
}

// Observe feeds one classified frame captured at now.
func (t *NoisePauseTracker) Observe(class Class, now time.Time) Edge {
	switch class {
	case Voiced:
		t.state.HadVoice = true
		if t.state.Paused {
			t.resume(now)
			return EdgeResumed
		}
	case BackgroundOnly:
		if !t.state.Paused {
			started := now
			t.state.Paused = true
			t.state.PauseStartedAt = &started
			return EdgePaused
		}
	case Silence:
		if t.state.Paused && t.state.HadVoice {
			t.resume(now)
			return EdgeResumed
		}
	}
	return EdgeNone
}

func (t *NoisePauseTracker) resume(now time.Time) {
	if t.state.PauseStartedAt != nil {
		if d := now.Sub(*t.state.PauseStartedAt); d > 0 {
			t.state.AccumulatedPause += d
		}
	}
	t.state.Paused = false
	t.state.PauseStartedAt = nil
}

// Paused reports whether the clock is currently paused.
func (t *NoisePauseTracker) Paused() bool {
	return t.state.Paused
}

// PausedFor returns the total noise pause at now, including a pause in
// progress.
func (t *NoisePauseTracker) PausedFor(now time.Time) time.Duration {
	total := t.state.AccumulatedPause
	if t.state.Paused && t.state.PauseStartedAt != nil {
		if d := now.Sub(*t.state.PauseStartedAt); d > 0 {
			total += d
		}
	}
	return total
}

// ActiveTime returns the time elapsed since start minus all noise pauses.
func (t *NoisePauseTracker) ActiveTime(start, now time.Time) time.Duration {
	active := now.Sub(start) - t.PausedFor(now)
	if active < 0 {
		return 0
	}
	return active
}

// State returns a copy of the tracker state.
func (t *NoisePauseTracker) State() model.NoisePauseState {
	out := t.state
	if t.state.PauseStartedAt != nil {
		started := *t.state.PauseStartedAt
		out.PauseStartedAt = &started
	}
	return out
}

// Restore rehydrates a saved state. A pause that was open when the state was
// saved at savedAt is closed there and reopened at resumeAt, so the gap
// between the two is not counted as noise.
func (t *NoisePauseTracker) Restore(s model.NoisePauseState, savedAt, resumeAt time.Time) {
	t.state = model.NoisePauseState{
		AccumulatedPause: s.AccumulatedPause,
		HadVoice:         s.HadVoice,
	}
	if t.state.AccumulatedPause < 0 {
		t.state.AccumulatedPause = 0
	}
	if s.Paused && s.PauseStartedAt != nil {
		if d := savedAt.Sub(*s.PauseStartedAt); d > 0 {
			t.state.AccumulatedPause += d
		}
		started := resumeAt
		t.state.Paused = true
		t.state.PauseStartedAt = &started
	}
}

// Reset clears all state for a new session.
func (t *NoisePauseTracker) Reset() {
	t.state = model.NoisePauseState{}
}

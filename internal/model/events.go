package model

import "time"

// EventVersion is bumped whenever a status event payload changes shape.
const EventVersion = 1

// EventKind identifies a status event.
type EventKind string

const (
	EventTrainingStatus   EventKind = "training_status"
	EventNoiseFeedback    EventKind = "noise_feedback"
	EventSafetyWarning    EventKind = "safety_warning"
	EventExerciseComplete EventKind = "exercise_complete"
	EventSessionState     EventKind = "session_state"
)

// SessionState models the training lifecycle as seen by the UI.
type SessionState string

const (
	SessionStateIdle    SessionState = "idle"
	SessionStateActive  SessionState = "active"
	SessionStatePaused  SessionState = "paused"
	SessionStateStopped SessionState = "stopped"
	SessionStateError   SessionState = "error"
)

// SafetyKind names a vocal safety warning.
type SafetyKind string

const (
	SafetyBreakReminder   SafetyKind = "break_reminder"
	SafetyMaxSession      SafetyKind = "max_session"
	SafetyHighPitchStrain SafetyKind = "high_pitch_strain"
	SafetyExcessiveForce  SafetyKind = "excessive_force"
	SafetyVocalRoughness  SafetyKind = "vocal_roughness"
	SafetyDailyLimit      SafetyKind = "daily_limit"
)

// Severity grades a safety warning.
type Severity string

const (
	SeverityLight    Severity = "light"
	SeverityStrong   Severity = "strong"
	SeverityCritical Severity = "critical"
)

// DipInfo describes the dip tracker state attached to a training status.
type DipInfo struct {
	InDip            bool    `json:"in_dip"`
	JustStarted      bool    `json:"just_started,omitempty"`
	AlertTriggered   bool    `json:"alert_triggered,omitempty"`
	Recovered        bool    `json:"recovered,omitempty"`
	DurationSeconds  float64 `json:"duration_seconds,omitempty"`
	RemainingSeconds float64 `json:"remaining_seconds,omitempty"`
	SmoothedPitchHz  float64 `json:"smoothed_pitch_hz"`
}

// TrainingStatus is published for every analysed voiced frame.
type TrainingStatus struct {
	PitchHz          float64      `json:"pitch"`
	GoalHz           float64      `json:"goal_hz"`
	Dip              DipInfo      `json:"dip_info"`
	ResonanceQuality float64      `json:"resonance_quality"`
	Formants         *FormantData `json:"formants,omitempty"`
	ActiveSeconds    float64      `json:"active_seconds"`
}

// NoiseFeedback carries noise-learning and noise-pause messages.
type NoiseFeedback struct {
	Message string `json:"message"`
}

// SafetyWarning is raised by the safety monitor.
type SafetyWarning struct {
	Kind       SafetyKind `json:"kind"`
	Severity   Severity   `json:"severity"`
	Message    string     `json:"message"`
	Suggestion string     `json:"suggestion,omitempty"`
}

// ExerciseComplete is raised once when the target duration is reached.
type ExerciseComplete struct {
	ActiveSeconds float64 `json:"active_seconds"`
}

// SessionStateChange reports lifecycle transitions and start failures.
type SessionStateChange struct {
	State  SessionState `json:"state"`
	Reason string       `json:"reason,omitempty"`
}

// StatusEvent is the envelope pushed to UI collaborators. Exactly one payload
// field is set, matching Kind.
type StatusEvent struct {
	Version   int                 `json:"version"`
	Kind      EventKind           `json:"kind"`
	SessionID string              `json:"session_id,omitempty"`
	At        time.Time           `json:"at"`
	Training  *TrainingStatus     `json:"training,omitempty"`
	Noise     *NoiseFeedback      `json:"noise,omitempty"`
	Safety    *SafetyWarning      `json:"safety,omitempty"`
	Complete  *ExerciseComplete   `json:"complete,omitempty"`
	State     *SessionStateChange `json:"state,omitempty"`
}

package model

import "time"

// RecoverySnapshotVersion is the current on-disk snapshot schema.
const RecoverySnapshotVersion = 1

// RecoverySnapshot is the crash-survivable copy of an in-progress session.
type RecoverySnapshot struct {
	Version    int
	SessionID  string
	StartedAt  time.Time
	WrittenAt  time.Time
	Config     SessionConfig
	Stats      SessionStats
	NoisePause NoisePauseState
	Dip        DipState
	// ActiveDuration is the active training time at WrittenAt.
	ActiveDuration time.Duration
	// UserPaused is the time the user had paused the session at WrittenAt.
	UserPaused time.Duration
	// ResonanceBaselineHz is the resonance the session compares against.
	ResonanceBaselineHz float64
	// Completed is set once the target duration was reached.
	Completed bool
}

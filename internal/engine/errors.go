package engine

import "errors"

var (
	// ErrAnalyzerNotReady is returned when a session is started before the
	// DSP collaborator can serve it.
	ErrAnalyzerNotReady = errors.New("analyzer not ready")
	ErrSessionActive    = errors.New("session already active")
	ErrNoActiveSession  = errors.New("no active session")
	ErrInvalidConfig    = errors.New("invalid session config")
)

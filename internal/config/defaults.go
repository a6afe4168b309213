package config

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// Session defaults.
const (
	DefaultGoalHz           = 165.0
	DefaultSensitivity      = 1.0
	DefaultVADThreshold     = 0.02
	DefaultNoiseThreshold   = 0.01
	DefaultDipTolerance     = 6.0
	DefaultHighPitchAlertHz = 300.0
	DefaultStrainPitchHz    = 350.0
	DefaultNoiseFrames      = 30
	DefaultRecoveryInterval = 30
	DefaultRecoveryMaxAge   = 24
)

// ErrInvalid marks a configuration value outside its allowed range.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks a session configuration before a session starts.
func Validate(cfg model.SessionConfig) error {
	if err := inRange("goal-hz", cfg.GoalHz, 80, 350); err != nil {
		return err
	}
	if cfg.Sensitivity <= 0 || cfg.Sensitivity > 10 || math.IsNaN(cfg.Sensitivity) {
		return fmt.Errorf("%w: sensitivity must be above 0 and at most 10", ErrInvalid)
	}
	if err := inRange("vad-threshold", cfg.VADThreshold, 0, 1); err != nil {
		return err
	}
	if err := inRange("noise-threshold", cfg.NoiseThreshold, 0, 1); err != nil {
		return err
	}
	if err := inRange("dip-tolerance", cfg.DipTolerance.Seconds(), 0.5, 60); err != nil {
		return err
	}
	if cfg.HighPitchAlertHz < 0 || math.IsNaN(cfg.HighPitchAlertHz) {
		return fmt.Errorf("%w: high-pitch-alert must be >= 0", ErrInvalid)
	}
	if cfg.StrainPitchHz < 0 || math.IsNaN(cfg.StrainPitchHz) {
		return fmt.Errorf("%w: strain-pitch must be >= 0", ErrInvalid)
	}
	if cfg.TargetDuration < 0 {
		return fmt.Errorf("%w: target-minutes must be >= 0", ErrInvalid)
	}
	return nil
}

func inRange(name string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		return fmt.Errorf("%w: %s must be between %g and %g", ErrInvalid, name, lo, hi)
	}
	return nil
}

// Seconds converts a fractional number of seconds to a duration.
func Seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

// Template returns the commented config file written by `pitchcoach config`.
func Template() string {
	return fmt.Sprintf(`# pitchcoach configuration
# Uncomment a value to enable it. CLI flags override config values.

[training]
# goal-hz = %.1f          # Target pitch (80-350 Hz)
# sensitivity = %.1f        # Input gain multiplier (above 0, up to 10)
# vad-threshold = %.2f     # Minimum RMS for voice (0-1)
# noise-threshold = %.2f   # Minimum peak level (0-1)
# dip-tolerance = %.1f      # Seconds below range before a dip alert (0.5-60)
# high-pitch-alert = %.1f # Alert above this pitch (Hz)
# strain-pitch = %.1f     # Safety warning when held above this pitch (Hz)
# target-minutes = 0.0     # Announce completion after this active time
# noise-frames = %d        # Frames used to learn background noise

[audio]
# input = "mic"            # mic, synth, or a path to raw s16le PCM ("-" for stdin)
# ffmpeg = "ffmpeg"        # ffmpeg command for microphone capture
# format = "pulse"         # ffmpeg input format
# device = "default"       # ffmpeg input device
# sample-rate = 16000
# frame-size = 1024

[recovery]
# interval = %d            # Seconds between recovery snapshots
# max-age = %d             # Hours a recovery file stays valid

[serve]
# listen = "127.0.0.1:7878" # Serve live status over websocket
`,
		DefaultGoalHz,
		DefaultSensitivity,
		DefaultVADThreshold,
		DefaultNoiseThreshold,
		DefaultDipTolerance,
		DefaultHighPitchAlertHz,
		DefaultStrainPitchHz,
		DefaultNoiseFrames,
		DefaultRecoveryInterval,
		DefaultRecoveryMaxAge,
	)
}

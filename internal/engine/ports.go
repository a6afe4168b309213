// Package engine implements the per-frame training pipeline and the state
// machines it drives. Nothing in this package performs I/O.
package engine

import (
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// HarmonicityEstimator scores how periodic a block of samples is, in [0, 1].
type HarmonicityEstimator interface {
	Harmonicity(samples []float32, sampleRate int) float64
}

// Analyzer is the DSP collaborator. Every method must be safe to call with
// any frame and may report an absent result.
type Analyzer interface {
	HarmonicityEstimator
	// Ready reports whether the analyzer can serve a session.
	Ready() error
	// LearnNoise feeds a frame to the noise profile. It returns true while
	// the profile is still being learned, plus an optional progress message.
	LearnNoise(frame model.AudioFrame) (bool, string)
	DetectPitch(frame model.AudioFrame) (float64, bool)
	AnalyzeFormants(frame model.AudioFrame) (model.FormantData, bool)
	ResonanceQuality(frame model.AudioFrame) float64
	VocalRoughness(frame model.AudioFrame, pitch float64) (model.Roughness, bool)
	Breathiness(frame model.AudioFrame) float64
	Nasality(frame model.AudioFrame) float64
}

// StatusSink receives status events. Publish must not block.
type StatusSink interface {
	Publish(event model.StatusEvent)
}

// Snapshotter persists recovery snapshots off the hot path.
type Snapshotter interface {
	// MaybeSnapshot calls build and schedules a write only when a snapshot
	// is due at now.
	MaybeSnapshot(now time.Time, build func() model.RecoverySnapshot)
	Discard() error
}

type noopSnapshotter struct{}

func (noopSnapshotter) MaybeSnapshot(time.Time, func() model.RecoverySnapshot) {}

func (noopSnapshotter) Discard() error { return nil }

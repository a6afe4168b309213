package engine

import (
	"math"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

const (
	emaAlpha = 0.1
	// maxPitchWeight caps the running-mean weight so long sessions stay
	// responsive.
	maxPitchWeight = 0.01
)

// AlertKind distinguishes pitch alert tallies.
type AlertKind int

const (
	AlertLow AlertKind = iota
	AlertHigh
)

// Aggregator owns the running statistics of one session. Counters only grow
// until Reset.
type Aggregator struct {
	s model.SessionStats
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// UpdatePitch folds one voiced pitch sample spanning frameDur.
func (a *Aggregator) UpdatePitch(hz, goal float64, frameDur time.Duration) {
	if !finite(hz) || hz <= 0 {
		return
	}
	a.s.TotalVoicedFrames++
	if frameDur > 0 {
		a.s.VoicedDuration += frameDur
	}
	if a.s.TotalVoicedFrames == 1 {
		a.s.AvgPitch = hz
		a.s.MinPitch = hz
		a.s.MaxPitch = hz
	} else {
		w := math.Min(maxPitchWeight, 1/float64(a.s.TotalVoicedFrames))
		a.s.AvgPitch = a.s.AvgPitch*(1-w) + hz*w
		a.s.MinPitch = math.Min(a.s.MinPitch, hz)
		a.s.MaxPitch = math.Max(a.s.MaxPitch, hz)
	}
	if hz >= goal-DipMargin {
		a.s.TimeInRange++
	}
	if hz >= goal {
		a.s.GoalAchievements++
	}
}

// UpdateRoughness folds one roughness measurement.
func (a *Aggregator) UpdateRoughness(r model.Roughness) {
	if !finite(r.Jitter) || !finite(r.Shimmer) || !finite(r.HNR) {
		return
	}
	seed := a.s.RoughnessSamples == 0
	a.s.AvgJitter = ema(a.s.AvgJitter, r.Jitter, seed)
	a.s.AvgShimmer = ema(a.s.AvgShimmer, r.Shimmer, seed)
	a.s.AvgHNR = ema(a.s.AvgHNR, r.HNR, seed)
	a.s.RoughnessSamples++
	if r.Strain {
		a.s.StrainEvents++
	}
}

// UpdateResonance folds one resonance frequency measured against baseline.
// A non-positive baseline leaves the shift at zero.
func (a *Aggregator) UpdateResonance(freq, baseline float64) {
	if !finite(freq) || freq <= 0 {
		return
	}
	a.s.AvgResonance = ema(a.s.AvgResonance, freq, a.s.ResonanceSamples == 0)
	a.s.ResonanceSamples++
	if finite(baseline) && baseline > 0 {
		a.s.ResonanceShift = a.s.AvgResonance - baseline
	}
}

// UpdateQuality folds one breathiness/nasality pair.
func (a *Aggregator) UpdateQuality(breathiness, nasality float64) {
	if !finite(breathiness) || !finite(nasality) {
		return
	}
	seed := a.s.QualitySamples == 0
	a.s.AvgBreathiness = ema(a.s.AvgBreathiness, breathiness, seed)
	a.s.AvgNasality = ema(a.s.AvgNasality, nasality, seed)
	a.s.QualitySamples++
}

// UpdateSafetyWarning tallies one safety warning.
func (a *Aggregator) UpdateSafetyWarning(kind model.SafetyKind) {
	if a.s.SafetyWarnings == nil {
		a.s.SafetyWarnings = map[string]uint32{}
	}
	a.s.SafetyWarnings[string(kind)]++
}

// RecordDip counts one completed dip of length d.
func (a *Aggregator) RecordDip(d time.Duration) {
	a.s.DipCount++
	if d > 0 {
		a.s.DipRecoverySeconds += d.Seconds()
	}
}

// RecordAlert tallies a pitch alert.
func (a *Aggregator) RecordAlert(kind AlertKind) {
	switch kind {
	case AlertLow:
		a.s.LowAlerts++
	case AlertHigh:
		a.s.HighAlerts++
	}
}

// Stats returns a deep copy of the current statistics.
func (a *Aggregator) Stats() model.SessionStats {
	return a.s.Clone()
}

// Restore replaces the statistics with a saved copy.
func (a *Aggregator) Restore(s model.SessionStats) {
	a.s = s.Clone()
}

// Reset clears all statistics for a new session.
func (a *Aggregator) Reset() {
	a.s = model.SessionStats{}
}

func ema(prev, v float64, seed bool) float64 {
	if seed {
		return v
	}
	return emaAlpha*v + (1-emaAlpha)*prev
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

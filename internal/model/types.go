// Package model defines shared data structures.
package model

import (
	"time"
)

// AudioFrame is one fixed-size block of mono samples in the range [-1, 1].
// At is the capture time of the first sample.
type AudioFrame struct {
	Samples    []float32
	SampleRate int
	At         time.Time
}

// Duration returns the time span covered by the frame.
func (f AudioFrame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(f.SampleRate)
}

// End returns the capture time just past the last sample.
func (f AudioFrame) End() time.Time {
	return f.At.Add(f.Duration())
}

// PitchSample is one voiced pitch estimate.
type PitchSample struct {
	Hz float64
	At time.Time
}

// FormantData holds the first three formant frequencies in Hz.
type FormantData struct {
	F1 float64 `json:"f1"`
	F2 float64 `json:"f2"`
	F3 float64 `json:"f3"`
}

// Resonance returns the frequency used to track resonance (F2).
func (f FormantData) Resonance() float64 {
	return f.F2
}

// Roughness holds cycle-to-cycle voice quality measures.
type Roughness struct {
	Jitter  float64 `json:"jitter"`
	Shimmer float64 `json:"shimmer"`
	HNR     float64 `json:"hnr"`
	Strain  bool    `json:"strain"`
}

// SessionConfig is copied into the pipeline at session start and never
// changes while the session runs.
type SessionConfig struct {
	GoalHz           float64       `json:"goal_hz"`
	Sensitivity      float64       `json:"sensitivity"`
	VADThreshold     float64       `json:"vad_threshold"`
	NoiseThreshold   float64       `json:"noise_threshold"`
	DipTolerance     time.Duration `json:"dip_tolerance_ns"`
	HighPitchAlertHz float64       `json:"high_pitch_alert_hz"`
	StrainPitchHz    float64       `json:"strain_pitch_hz"`
	TargetDuration   time.Duration `json:"target_duration_ns"`
	// ResonanceBaselineHz is the reference for resonance shift; zero means
	// the first resonance sample of the session becomes the baseline.
	ResonanceBaselineHz float64 `json:"resonance_baseline_hz"`
}

// SessionStats aggregates one session. Averages that use an EMA are only
// meaningful once their sample counter is non-zero.
type SessionStats struct {
	TotalVoicedFrames  uint64            `json:"total_voiced_frames"`
	VoicedDuration     time.Duration     `json:"voiced_duration_ns"`
	AvgPitch           float64           `json:"avg_pitch"`
	MinPitch           float64           `json:"min_pitch"`
	MaxPitch           float64           `json:"max_pitch"`
	TimeInRange        uint64            `json:"time_in_range"`
	GoalAchievements   uint64            `json:"goal_achievements"`
	DipCount           uint32            `json:"dip_count"`
	DipRecoverySeconds float64           `json:"dip_recovery_seconds"`
	AvgJitter          float64           `json:"avg_jitter"`
	AvgShimmer         float64           `json:"avg_shimmer"`
	AvgHNR             float64           `json:"avg_hnr"`
	RoughnessSamples   uint32            `json:"roughness_sample_count"`
	StrainEvents       uint32            `json:"strain_events"`
	AvgResonance       float64           `json:"avg_resonance"`
	ResonanceShift     float64           `json:"resonance_shift"`
	ResonanceSamples   uint32            `json:"resonance_sample_count"`
	AvgBreathiness     float64           `json:"avg_breathiness"`
	AvgNasality        float64           `json:"avg_nasality"`
	QualitySamples     uint32            `json:"quality_sample_count"`
	LowAlerts          uint32            `json:"low_alerts"`
	HighAlerts         uint32            `json:"high_alerts"`
	SafetyWarnings     map[string]uint32 `json:"safety_warning_counts"`
}

// Clone returns a deep copy.
func (s SessionStats) Clone() SessionStats {
	out := s
	if s.SafetyWarnings != nil {
		out.SafetyWarnings = make(map[string]uint32, len(s.SafetyWarnings))
		for k, v := range s.SafetyWarnings {
			out.SafetyWarnings[k] = v
		}
	}
	return out
}

// TimeInRangePercent returns the share of voiced frames at or above the dip
// floor.
func (s SessionStats) TimeInRangePercent() float64 {
	if s.TotalVoicedFrames == 0 {
		return 0
	}
	return float64(s.TimeInRange) / float64(s.TotalVoicedFrames) * 100
}

// GoalAchievementPercent returns the share of voiced frames at or above the
// goal.
func (s SessionStats) GoalAchievementPercent() float64 {
	if s.TotalVoicedFrames == 0 {
		return 0
	}
	return float64(s.GoalAchievements) / float64(s.TotalVoicedFrames) * 100
}

// TotalSafetyWarnings sums all safety warning tallies.
func (s SessionStats) TotalSafetyWarnings() uint32 {
	var total uint32
	for _, v := range s.SafetyWarnings {
		total += v
	}
	return total
}

// NoisePauseState tracks time excluded from the active clock because only
// background noise was heard. PauseStartedAt is set exactly when Paused is.
type NoisePauseState struct {
	Paused           bool          `json:"paused"`
	PauseStartedAt   *time.Time    `json:"pause_started_at,omitempty"`
	AccumulatedPause time.Duration `json:"accumulated_pause_ns"`
	HadVoice         bool          `json:"had_voice"`
}

// DipState tracks a sustained drop of the smoothed pitch below the floor.
type DipState struct {
	InDip        bool       `json:"in_dip"`
	DipStartedAt *time.Time `json:"dip_started_at,omitempty"`
	AlertFired   bool       `json:"alert_fired"`
	Recent       []float64  `json:"recent,omitempty"`
}

// SessionSummary describes the time split of a session.
type SessionSummary struct {
	SessionID   string
	StartedAt   time.Time
	EndedAt     time.Time
	Total       time.Duration
	Active      time.Duration
	NoisePaused time.Duration
	UserPaused  time.Duration
	Stats       SessionStats
}

// VoiceQuality holds averaged breathiness and nasality scores.
type VoiceQuality struct {
	Breathiness float64 `json:"breathiness"`
	Nasality    float64 `json:"nasality"`
}

// HistoryEntry is one completed session folded into the long-term history.
type HistoryEntry struct {
	ID                     string
	Date                   time.Time
	StartedAt              time.Time
	EndedAt                time.Time
	DurationMinutes        float64
	GoalHz                 float64
	AvgPitch               float64
	MinPitch               float64
	MaxPitch               float64
	TimeInRangePercent     float64
	GoalAchievementPercent float64
	AvgJitter              float64
	AvgShimmer             float64
	AvgHNR                 float64
	StrainEvents           uint32
	AvgResonance           float64
	ResonanceShift         float64
	DipCount               uint32
	SafetyWarnings         map[string]uint32
	VoiceQuality           VoiceQuality
}

// DailyFatigue is the merged fatigue score for one calendar day.
type DailyFatigue struct {
	Date     time.Time
	Score    float64
	Sessions int
}

// StreakRecord is the cross-session practice streak.
type StreakRecord struct {
	Count            int
	LastPracticeDate time.Time
	// GraceWeek is the ISO week key (e.g. "2026-W41") whose grace day has
	// been spent, or empty.
	GraceWeek string
}

// StatsConfig defines filters and options for history output.
type StatsConfig struct {
	Since       *time.Time
	Last        int
	CurveWindow int
}

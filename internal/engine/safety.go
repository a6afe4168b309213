package engine

import (
	"fmt"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// SafetyLimits configures the vocal safety monitor.
type SafetyLimits struct {
	BreakInterval     time.Duration
	MaxSession        time.Duration
	DailyLimit        time.Duration
	StrainPitchHz     float64
	StrainHold        time.Duration
	ForceThreshold    float64
	RoughnessRate     float64
	RoughnessCooldown time.Duration
	ForceCooldown     time.Duration
}

// DefaultSafetyLimits returns the stock limits.
func DefaultSafetyLimits() SafetyLimits {
	return SafetyLimits{
		BreakInterval:     15 * time.Minute,
		MaxSession:        30 * time.Minute,
		DailyLimit:        120 * time.Minute,
		StrainPitchHz:     350,
		StrainHold:        45 * time.Second,
		ForceThreshold:    0.7,
		RoughnessRate:     0.7,
		RoughnessCooldown: 10 * time.Second,
		ForceCooldown:     10 * time.Second,
	}
}

const (
	energyWindow       = 10
	roughnessWindow    = 50
	minRoughnessWindow = 10
)

// SafetyInput is what the monitor sees for one voiced frame.
type SafetyInput struct {
	At       time.Time
	Active   time.Duration
	PitchHz  float64
	HasPitch bool
	Energy   float64
	// Roughness is set only on frames where roughness was analysed.
	Roughness *model.Roughness
}

// SafetyMonitor raises vocal safety warnings from the live signal and the
// session clock.
type SafetyMonitor struct {
	limits     SafetyLimits
	priorToday time.Duration

	nextBreak  time.Duration
	maxFired   bool
	dailyFired bool

	highSince time.Time
	inHigh    bool

	energies [energyWindow]float64
	energyN  int
	energyAt int
	forceAt  time.Time

	strain      [roughnessWindow]bool
	strainN     int
	strainNext  int
	roughnessAt time.Time
}

// NewSafetyMonitor returns a monitor for a session. priorToday is the active
// time of earlier sessions on the same day.
func NewSafetyMonitor(limits SafetyLimits, priorToday time.Duration) *SafetyMonitor {
	m := &SafetyMonitor{limits: limits, priorToday: priorToday}
	m.nextBreak = limits.BreakInterval
	return m
}

// Restore picks up a recovered session at active time, given the warnings it
// had already raised. Session and daily limits that fired before stay
// latched; a break reminder that was due but not raised fires on the next
// frame. A reminder count ahead of the clock is ignored.
func (m *SafetyMonitor) Restore(active time.Duration, raised map[string]uint32) {
	m.maxFired = raised[string(model.SafetyMaxSession)] > 0
	m.dailyFired = raised[string(model.SafetyDailyLimit)] > 0
	if m.limits.BreakInterval <= 0 {
		return
	}
	m.nextBreak = time.Duration(raised[string(model.SafetyBreakReminder)]+1) * m.limits.BreakInterval
	if active < m.nextBreak-m.limits.BreakInterval {
		m.nextBreak = (active/m.limits.BreakInterval + 1) * m.limits.BreakInterval
	}
}

// Check evaluates one frame and appends any warnings to out.
func (m *SafetyMonitor) Check(in SafetyInput, out []model.SafetyWarning) []model.SafetyWarning {
	if m.limits.BreakInterval > 0 && in.Active >= m.nextBreak {
		out = append(out, model.SafetyWarning{
			Kind:       model.SafetyBreakReminder,
			Severity:   model.SeverityLight,
			Message:    fmt.Sprintf("Break reminder: you've been practicing for %.0f minutes", in.Active.Minutes()),
			Suggestion: "Take a 2-3 minute break to rest your voice",
		})
		for m.nextBreak <= in.Active {
			m.nextBreak += m.limits.BreakInterval
		}
	}

	if m.limits.MaxSession > 0 && !m.maxFired && in.Active >= m.limits.MaxSession {
		m.maxFired = true
		out = append(out, model.SafetyWarning{
			Kind:       model.SafetyMaxSession,
			Severity:   model.SeverityStrong,
			Message:    fmt.Sprintf("Long session: %.0f minutes of continuous practice", in.Active.Minutes()),
			Suggestion: "Consider ending this session to prevent vocal fatigue",
		})
	}

	if m.limits.StrainPitchHz > 0 && in.HasPitch && in.PitchHz > m.limits.StrainPitchHz {
		if !m.inHigh {
			m.inHigh = true
			m.highSince = in.At
		} else if held := in.At.Sub(m.highSince); held >= m.limits.StrainHold {
			out = append(out, model.SafetyWarning{
				Kind:       model.SafetyHighPitchStrain,
				Severity:   model.SeverityStrong,
				Message:    fmt.Sprintf("High pitch warning: %.0fs in strain range", held.Seconds()),
				Suggestion: "Lower your pitch or take a break to prevent vocal cord strain",
			})
			m.highSince = in.At
		}
	} else {
		m.inHigh = false
	}

	m.energies[m.energyAt] = in.Energy
	m.energyAt = (m.energyAt + 1) % energyWindow
	if m.energyN < energyWindow {
		m.energyN++
	}
	if m.energyN == energyWindow && m.cooledDown(m.forceAt, in.At, m.limits.ForceCooldown) {
		var sum float64
		for _, e := range m.energies {
			sum += e
		}
		if sum/energyWindow > m.limits.ForceThreshold {
			m.forceAt = in.At
			out = append(out, model.SafetyWarning{
				Kind:       model.SafetyExcessiveForce,
				Severity:   model.SeverityLight,
				Message:    "Vocal force warning: speaking or singing too forcefully",
				Suggestion: "Relax your throat and use gentler airflow",
			})
		}
	}

	if in.Roughness != nil {
		if w, ok := m.checkRoughness(*in.Roughness, in.At); ok {
			out = append(out, w)
		}
	}

	if m.limits.DailyLimit > 0 && !m.dailyFired && m.priorToday+in.Active >= m.limits.DailyLimit {
		m.dailyFired = true
		out = append(out, model.SafetyWarning{
			Kind:       model.SafetyDailyLimit,
			Severity:   model.SeverityCritical,
			Message:    fmt.Sprintf("Daily limit: %.0f minutes practiced today", (m.priorToday + in.Active).Minutes()),
			Suggestion: "You've had a great practice day! Consider resting until tomorrow",
		})
	}
	return out
}

func (m *SafetyMonitor) checkRoughness(r model.Roughness, at time.Time) (model.SafetyWarning, bool) {
	m.strain[m.strainNext] = r.Strain
	m.strainNext = (m.strainNext + 1) % roughnessWindow
	if m.strainN < roughnessWindow {
		m.strainN++
	}
	if !m.cooledDown(m.roughnessAt, at, m.limits.RoughnessCooldown) || m.strainN < minRoughnessWindow {
		return model.SafetyWarning{}, false
	}
	strained := 0
	for i := 0; i < m.strainN; i++ {
		if m.strain[i] {
			strained++
		}
	}
	if float64(strained)/float64(m.strainN) <= m.limits.RoughnessRate {
		return model.SafetyWarning{}, false
	}
	m.roughnessAt = at

	w := model.SafetyWarning{Kind: model.SafetyVocalRoughness}
	switch {
	case r.Jitter > 3 && r.Shimmer > 15:
		w.Severity = model.SeverityCritical
		w.Message = fmt.Sprintf("Critical vocal strain detected (jitter %.1f%%, shimmer %.1f%%)", r.Jitter, r.Shimmer)
		w.Suggestion = "Stop and rest your voice"
	case r.HNR < 10:
		w.Severity = model.SeverityStrong
		w.Message = fmt.Sprintf("Voice quality degraded (HNR %.1f dB)", r.HNR)
		w.Suggestion = "Your voice sounds raspy; take a break and drink water"
	case r.Jitter > 2:
		w.Severity = model.SeverityStrong
		w.Message = fmt.Sprintf("Pitch instability detected (jitter %.1f%%)", r.Jitter)
		w.Suggestion = "Consider lowering your pitch or pausing"
	case r.Shimmer > 10:
		w.Severity = model.SeverityLight
		w.Message = fmt.Sprintf("Amplitude variation high (shimmer %.1f%%)", r.Shimmer)
		w.Suggestion = "Check your posture and breath support"
	default:
		w.Severity = model.SeverityLight
		w.Message = "Signs of vocal strain detected"
		w.Suggestion = "Ease off and relax your throat"
	}
	return w, true
}

func (m *SafetyMonitor) cooledDown(last, now time.Time, cooldown time.Duration) bool {
	return last.IsZero() || now.Sub(last) >= cooldown
}

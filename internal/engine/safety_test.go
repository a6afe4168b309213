package engine

import (
	"testing"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

func kinds(ws []model.SafetyWarning) []model.SafetyKind {
	out := make([]model.SafetyKind, 0, len(ws))
	for _, w := range ws {
		out = append(out, w.Kind)
	}
	return out
}

func TestSafetyBreakReminderEveryInterval(t *testing.T) {
	m := NewSafetyMonitor(DefaultSafetyLimits(), 0)
	reminders := 0
	for sec := 0; sec <= 31*60; sec++ {
		out := m.Check(SafetyInput{
			At:     testStart.Add(time.Duration(sec) * time.Second),
			Active: time.Duration(sec) * time.Second,
		}, nil)
		for _, w := range out {
			if w.Kind == model.SafetyBreakReminder {
				reminders++
			}
		}
	}
	if reminders != 2 {
		t.Fatalf("expected 2 break reminders in 31 minutes, got %d", reminders)
	}
}

func TestSafetyMaxSessionAndDailyLimitFireOnce(t *testing.T) {
	m := NewSafetyMonitor(DefaultSafetyLimits(), 100*time.Minute)
	maxSession, daily := 0, 0
	for min := 0; min <= 40; min++ {
		out := m.Check(SafetyInput{
			At:     testStart.Add(time.Duration(min) * time.Minute),
			Active: time.Duration(min) * time.Minute,
		}, nil)
		for _, k := range kinds(out) {
			switch k {
			case model.SafetyMaxSession:
				maxSession++
			case model.SafetyDailyLimit:
				daily++
				if min != 20 {
					t.Fatalf("daily limit fired at minute %d", min)
				}
			}
		}
	}
	if maxSession != 1 || daily != 1 {
		t.Fatalf("expected one max-session and one daily-limit warning, got %d and %d", maxSession, daily)
	}
}

func TestSafetyHighPitchStrainAfterHold(t *testing.T) {
	limits := DefaultSafetyLimits()
	limits.StrainPitchHz = 300
	m := NewSafetyMonitor(limits, 0)
	var fired []int
	for sec := 0; sec <= 50; sec++ {
		out := m.Check(SafetyInput{
			At:       testStart.Add(time.Duration(sec) * time.Second),
			PitchHz:  320,
			HasPitch: true,
		}, nil)
		for _, k := range kinds(out) {
			if k == model.SafetyHighPitchStrain {
				fired = append(fired, sec)
			}
		}
	}
	if len(fired) != 1 || fired[0] != 45 {
		t.Fatalf("expected one strain warning at 45s, got %v", fired)
	}
}

func TestSafetyExcessiveForceRespectsCooldown(t *testing.T) {
	m := NewSafetyMonitor(DefaultSafetyLimits(), 0)
	var fired []int
	for i := 0; i < 200; i++ {
		out := m.Check(SafetyInput{
			At:     testStart.Add(time.Duration(i) * testFrame),
			Energy: 0.9,
		}, nil)
		for _, k := range kinds(out) {
			if k == model.SafetyExcessiveForce {
				fired = append(fired, i)
			}
		}
	}
	if len(fired) != 2 || fired[0] != 9 || fired[1] != 109 {
		t.Fatalf("expected warnings at frames 9 and 109, got %v", fired)
	}
}

func TestSafetyRoughnessNeedsSustainedStrain(t *testing.T) {
	m := NewSafetyMonitor(DefaultSafetyLimits(), 0)
	strained := model.Roughness{Jitter: 2.5, Shimmer: 8, HNR: 14, Strain: true}
	var severities []model.Severity
	for i := 0; i < 12; i++ {
		r := strained
		out := m.Check(SafetyInput{At: testStart.Add(time.Duration(i) * time.Second), Roughness: &r}, nil)
		for _, w := range out {
			if w.Kind == model.SafetyVocalRoughness {
				severities = append(severities, w.Severity)
			}
		}
	}
	if len(severities) != 1 || severities[0] != model.SeverityStrong {
		t.Fatalf("expected one strong roughness warning, got %v", severities)
	}
}

func TestSafetyRestoreKeepsLatches(t *testing.T) {
	m := NewSafetyMonitor(DefaultSafetyLimits(), 100*time.Minute)
	m.Restore(32*time.Minute, map[string]uint32{
		string(model.SafetyBreakReminder): 2,
		string(model.SafetyMaxSession):    1,
		string(model.SafetyDailyLimit):    1,
	})
	for sec := 32 * 60; sec < 40*60; sec++ {
		out := m.Check(SafetyInput{
			At:     testStart.Add(time.Duration(sec) * time.Second),
			Active: time.Duration(sec) * time.Second,
		}, nil)
		if len(out) != 0 {
			t.Fatalf("unexpected warnings after restore at %ds: %v", sec, kinds(out))
		}
	}
}

func TestSafetyRestoreRaisesMissedBreak(t *testing.T) {
	m := NewSafetyMonitor(DefaultSafetyLimits(), 0)
	m.Restore(16*time.Minute, nil)
	reminders := 0
	for sec := 16 * 60; sec <= 31*60; sec++ {
		out := m.Check(SafetyInput{
			At:     testStart.Add(time.Duration(sec) * time.Second),
			Active: time.Duration(sec) * time.Second,
		}, nil)
		for _, k := range kinds(out) {
			if k == model.SafetyBreakReminder {
				reminders++
			}
		}
	}
	if reminders != 2 {
		t.Fatalf("expected the missed reminder and the 30 minute one, got %d", reminders)
	}
}

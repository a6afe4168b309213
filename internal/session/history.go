package session

import (
	"context"
	"maps"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/engine"
	"github.com/verte-zerg/pitchcoach/internal/model"
	"github.com/verte-zerg/pitchcoach/internal/progress"
)

// MinHistoryVoiced is the voiced time a session needs to enter the history.
const MinHistoryVoiced = 60 * time.Second

// BuildHistoryEntry converts a stopped session into a history row. It
// reports false for sessions with less than MinHistoryVoiced of voice.
func BuildHistoryEntry(res engine.Result) (model.HistoryEntry, bool) {
	stats := res.Summary.Stats
	if stats.VoicedDuration < MinHistoryVoiced {
		return model.HistoryEntry{}, false
	}
	warnings := maps.Clone(stats.SafetyWarnings)
	if warnings == nil {
		warnings = map[string]uint32{}
	}
	entry := model.HistoryEntry{
		ID:                     res.Summary.SessionID,
		Date:                   progress.Day(res.Summary.StartedAt),
		StartedAt:              res.Summary.StartedAt,
		EndedAt:                res.Summary.EndedAt,
		DurationMinutes:        res.Summary.Active.Minutes(),
		GoalHz:                 res.Config.GoalHz,
		AvgPitch:               stats.AvgPitch,
		MinPitch:               stats.MinPitch,
		MaxPitch:               stats.MaxPitch,
		TimeInRangePercent:     stats.TimeInRangePercent(),
		GoalAchievementPercent: stats.GoalAchievementPercent(),
		StrainEvents:           stats.StrainEvents,
		DipCount:               stats.DipCount,
		SafetyWarnings:         warnings,
	}
	if stats.RoughnessSamples > 0 {
		entry.AvgJitter = stats.AvgJitter
		entry.AvgShimmer = stats.AvgShimmer
		entry.AvgHNR = stats.AvgHNR
	}
	if stats.ResonanceSamples > 0 {
		entry.AvgResonance = stats.AvgResonance
		entry.ResonanceShift = stats.ResonanceShift
	}
	if stats.QualitySamples > 0 {
		entry.VoiceQuality = model.VoiceQuality{Breathiness: stats.AvgBreathiness, Nasality: stats.AvgNasality}
	}
	return entry, true
}

// record appends a qualifying session to the history and updates fatigue
// and streak. Failures are logged; the session result stands.
func (c *Controller) record(ctx context.Context, out *Outcome) {
	logger := c.deps.Logger.With("session_id", out.Summary.SessionID)
	entry, ok := BuildHistoryEntry(out.Result)
	if !ok {
		logger.Info("session too short for history", "voiced", out.Summary.Stats.VoicedDuration)
		return
	}
	out.Entry = &entry
	if c.deps.History != nil {
		if err := c.deps.History.InsertSession(ctx, entry); err != nil {
			logger.Error("failed to save session history", "err", err)
		} else {
			out.Saved = true
		}
	}
	if c.deps.Progress == nil {
		return
	}
	fatigue, err := c.deps.Progress.RecordSession(ctx, entry.Date, entry.DurationMinutes, entry.StrainEvents, entry.AvgJitter, entry.AvgShimmer)
	if err != nil {
		logger.Error("failed to update daily fatigue", "err", err)
	} else {
		out.Fatigue = &fatigue
	}
	streak, err := c.deps.Progress.UpdateStreak(ctx, entry.Date)
	if err != nil {
		logger.Error("failed to update streak", "err", err)
	} else {
		out.Streak = &streak
	}
}

package stats

import (
	"context"
	"fmt"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// ReportSource loads history for a report. *store.Store satisfies it.
type ReportSource interface {
	ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.HistoryEntry, error)
	ListDailyFatigue(ctx context.Context) ([]model.DailyFatigue, error)
	GetStreak(ctx context.Context) (model.StreakRecord, error)
}

// Report contains precomputed data for stats rendering.
type Report struct {
	Sessions []model.HistoryEntry
	// Window holds the last CurveWindow sessions used for health grading.
	Window  []model.HistoryEntry
	Fatigue []model.DailyFatigue
	Streak  model.StreakRecord
	Trend   Trend
}

// BuildReport loads and prepares data for stats rendering.
func BuildReport(ctx context.Context, src ReportSource, cfg model.StatsConfig) (Report, error) {
	sessions, err := src.ListSessions(ctx, cfg)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list sessions: %w", err)
	}
	if cfg.Last > 0 && len(sessions) > cfg.Last {
		sessions = sessions[len(sessions)-cfg.Last:]
	}
	fatigue, err := src.ListDailyFatigue(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to list daily fatigue: %w", err)
	}
	streak, err := src.GetStreak(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("failed to load streak: %w", err)
	}

	return Report{
		Sessions: sessions,
		Window:   lastSessions(sessions, cfg.CurveWindow),
		Fatigue:  fatigue,
		Streak:   streak,
		Trend:    ComputeTrend(sessions),
	}, nil
}

func lastSessions(sessions []model.HistoryEntry, window int) []model.HistoryEntry {
	if window <= 0 || len(sessions) <= window {
		return sessions
	}
	return sessions[len(sessions)-window:]
}

// Package progress derives the practice streak and daily fatigue history
// from completed sessions.
package progress

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// FatigueRetention is how long daily fatigue records are kept.
const FatigueRetention = 30 * 24 * time.Hour

// Store persists fatigue and streak records.
type Store interface {
	GetDailyFatigue(ctx context.Context, date time.Time) (model.DailyFatigue, bool, error)
	UpsertDailyFatigue(ctx context.Context, rec model.DailyFatigue) error
	PruneDailyFatigue(ctx context.Context, before time.Time) error
	GetStreak(ctx context.Context) (model.StreakRecord, error)
	SaveStreak(ctx context.Context, rec model.StreakRecord) error
}

// Tracker updates the cross-session history.
type Tracker struct {
	store  Store
	logger *slog.Logger
}

// NewTracker returns a tracker backed by store.
func NewTracker(store Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{store: store, logger: logger}
}

// RecordSession scores one completed session and merges it into the day's
// fatigue record.
func (t *Tracker) RecordSession(ctx context.Context, date time.Time, durationMinutes float64, strainEvents uint32, jitter, shimmer float64) (model.DailyFatigue, error) {
	day := Day(date)
	score := FatigueScore(durationMinutes, strainEvents, jitter, shimmer)

	rec, ok, err := t.store.GetDailyFatigue(ctx, day)
	if err != nil {
		return model.DailyFatigue{}, fmt.Errorf("failed to load daily fatigue: %w", err)
	}
	if ok && rec.Sessions > 0 {
		rec.Score = (rec.Score*float64(rec.Sessions) + score) / float64(rec.Sessions+1)
		rec.Sessions++
	} else {
		rec = model.DailyFatigue{Date: day, Score: score, Sessions: 1}
	}
	if err := t.store.UpsertDailyFatigue(ctx, rec); err != nil {
		return model.DailyFatigue{}, fmt.Errorf("failed to save daily fatigue: %w", err)
	}
	if err := t.store.PruneDailyFatigue(ctx, day.Add(-FatigueRetention)); err != nil {
		return model.DailyFatigue{}, fmt.Errorf("failed to prune daily fatigue: %w", err)
	}
	t.logger.Debug("daily fatigue updated", "date", day.Format(time.DateOnly), "score", rec.Score, "sessions", rec.Sessions)
	return rec, nil
}

// UpdateStreak advances the practice streak for a session on date. Each
// calendar day counts once. A single skipped day per ISO week is forgiven.
func (t *Tracker) UpdateStreak(ctx context.Context, date time.Time) (model.StreakRecord, error) {
	rec, err := t.store.GetStreak(ctx)
	if err != nil {
		return model.StreakRecord{}, fmt.Errorf("failed to load streak: %w", err)
	}
	next, changed := AdvanceStreak(rec, date)
	if !changed {
		return rec, nil
	}
	if err := t.store.SaveStreak(ctx, next); err != nil {
		return model.StreakRecord{}, fmt.Errorf("failed to save streak: %w", err)
	}
	t.logger.Debug("streak updated", "count", next.Count, "grace_week", next.GraceWeek)
	return next, nil
}

// AdvanceStreak applies one practice day to rec.
func AdvanceStreak(rec model.StreakRecord, date time.Time) (model.StreakRecord, bool) {
	day := Day(date)
	if rec.Count <= 0 || rec.LastPracticeDate.IsZero() {
		return model.StreakRecord{Count: 1, LastPracticeDate: day, GraceWeek: rec.GraceWeek}, true
	}
	gap := DaysBetween(Day(rec.LastPracticeDate), day)
	switch {
	case gap <= 0:
		return rec, false
	case gap == 1:
		rec.Count++
	case gap == 2 && rec.GraceWeek != WeekKey(day):
		rec.Count++
		rec.GraceWeek = WeekKey(day)
	default:
		rec.Count = 1
	}
	rec.LastPracticeDate = day
	return rec, true
}

// Day truncates t to its calendar date, in t's location, as UTC midnight.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)) / (24 * time.Hour))
}

// WeekKey returns the ISO week of t, e.g. "2026-W41".
func WeekKey(t time.Time) string {
	y, w := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", y, w)
}

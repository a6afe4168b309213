// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Store wraps SQLite access for session history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			date TEXT NOT NULL,
			started_at TEXT NOT NULL,
			ended_at TEXT NOT NULL,
			duration_minutes REAL NOT NULL,
			goal_hz REAL NOT NULL,
			avg_pitch REAL NOT NULL,
			min_pitch REAL NOT NULL,
			max_pitch REAL NOT NULL,
			time_in_range_percent REAL NOT NULL,
			goal_achievement_percent REAL NOT NULL,
			avg_jitter REAL NOT NULL,
			avg_shimmer REAL NOT NULL,
			avg_hnr REAL NOT NULL,
			strain_events INTEGER NOT NULL,
			avg_resonance REAL NOT NULL,
			resonance_shift REAL NOT NULL,
			dip_count INTEGER NOT NULL,
			safety_warnings TEXT NOT NULL,
			breathiness REAL NOT NULL,
			nasality REAL NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS daily_fatigue (
			date TEXT PRIMARY KEY,
			score REAL NOT NULL,
			sessions INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS streak (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			streak_count INTEGER NOT NULL,
			last_practice_date TEXT NOT NULL,
			grace_week TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_ended_at ON sessions(ended_at);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_date ON sessions(date);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// InsertSession appends a completed session to the history.
func (s *Store) InsertSession(ctx context.Context, e model.HistoryEntry) error {
	warnings := e.SafetyWarnings
	if warnings == nil {
		warnings = map[string]uint32{}
	}
	warningsJSON, err := json.Marshal(warnings)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, date, started_at, ended_at, duration_minutes, goal_hz, avg_pitch, min_pitch, max_pitch,
			time_in_range_percent, goal_achievement_percent, avg_jitter, avg_shimmer, avg_hnr, strain_events,
			avg_resonance, resonance_shift, dip_count, safety_warnings, breathiness, nasality)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID,
		e.Date.Format(time.DateOnly),
		e.StartedAt.Format(time.RFC3339Nano),
		e.EndedAt.Format(time.RFC3339Nano),
		e.DurationMinutes,
		e.GoalHz,
		e.AvgPitch,
		e.MinPitch,
		e.MaxPitch,
		e.TimeInRangePercent,
		e.GoalAchievementPercent,
		e.AvgJitter,
		e.AvgShimmer,
		e.AvgHNR,
		e.StrainEvents,
		e.AvgResonance,
		e.ResonanceShift,
		e.DipCount,
		string(warningsJSON),
		e.VoiceQuality.Breathiness,
		e.VoiceQuality.Nasality,
	)
	return err
}

// ListSessions returns history entries filtered by stats config, oldest
// first.
func (s *Store) ListSessions(ctx context.Context, cfg model.StatsConfig) ([]model.HistoryEntry, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Since != nil {
		clauses = append(clauses, "ended_at >= ?")
		args = append(args, cfg.Since.Format(time.RFC3339Nano))
	}
	query := fmt.Sprintf(`SELECT id, date, started_at, ended_at, duration_minutes, goal_hz, avg_pitch, min_pitch, max_pitch,
			time_in_range_percent, goal_achievement_percent, avg_jitter, avg_shimmer, avg_hnr, strain_events,
			avg_resonance, resonance_shift, dip_count, safety_warnings, breathiness, nasality
		FROM sessions
		WHERE %s
		ORDER BY ended_at ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var entries []model.HistoryEntry
	for rows.Next() {
		var e model.HistoryEntry
		var date, startedAt, endedAt, warnings string
		if err := rows.Scan(&e.ID, &date, &startedAt, &endedAt, &e.DurationMinutes, &e.GoalHz, &e.AvgPitch, &e.MinPitch, &e.MaxPitch,
			&e.TimeInRangePercent, &e.GoalAchievementPercent, &e.AvgJitter, &e.AvgShimmer, &e.AvgHNR, &e.StrainEvents,
			&e.AvgResonance, &e.ResonanceShift, &e.DipCount, &warnings, &e.VoiceQuality.Breathiness, &e.VoiceQuality.Nasality); err != nil {
			return nil, err
		}
		if e.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, err
		}
		if e.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
			return nil, err
		}
		if e.EndedAt, err = time.Parse(time.RFC3339Nano, endedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(warnings), &e.SafetyWarnings); err != nil {
			return nil, fmt.Errorf("failed to decode safety warnings for %s: %w", e.ID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(entries) > cfg.Last {
		entries = entries[len(entries)-cfg.Last:]
	}
	return entries, nil
}

// MinutesOn returns the total recorded practice minutes on a calendar day.
func (s *Store) MinutesOn(ctx context.Context, day time.Time) (float64, error) {
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(duration_minutes) FROM sessions WHERE date = ?`,
		day.Format(time.DateOnly),
	).Scan(&total)
	if err != nil {
		return 0, err
	}
	return total.Float64, nil
}

// GetDailyFatigue loads the fatigue record for a day.
func (s *Store) GetDailyFatigue(ctx context.Context, date time.Time) (model.DailyFatigue, bool, error) {
	rec := model.DailyFatigue{Date: date}
	err := s.db.QueryRowContext(ctx,
		`SELECT score, sessions FROM daily_fatigue WHERE date = ?`,
		date.Format(time.DateOnly),
	).Scan(&rec.Score, &rec.Sessions)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DailyFatigue{}, false, nil
	}
	if err != nil {
		return model.DailyFatigue{}, false, err
	}
	return rec, true, nil
}

// UpsertDailyFatigue writes a fatigue record, replacing any for that day.
func (s *Store) UpsertDailyFatigue(ctx context.Context, rec model.DailyFatigue) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_fatigue (date, score, sessions) VALUES (?, ?, ?)
		 ON CONFLICT(date) DO UPDATE SET score = excluded.score, sessions = excluded.sessions`,
		rec.Date.Format(time.DateOnly), rec.Score, rec.Sessions,
	)
	return err
}

// PruneDailyFatigue deletes fatigue records dated before the given day.
func (s *Store) PruneDailyFatigue(ctx context.Context, before time.Time) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM daily_fatigue WHERE date < ?`, before.Format(time.DateOnly))
	return err
}

// ListDailyFatigue returns all retained fatigue records, oldest first.
func (s *Store) ListDailyFatigue(ctx context.Context) ([]model.DailyFatigue, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT date, score, sessions FROM daily_fatigue ORDER BY date ASC`)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var result []model.DailyFatigue
	for rows.Next() {
		var rec model.DailyFatigue
		var date string
		if err := rows.Scan(&date, &rec.Score, &rec.Sessions); err != nil {
			return nil, err
		}
		if rec.Date, err = time.Parse(time.DateOnly, date); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// GetStreak loads the streak record; a missing record is the zero streak.
func (s *Store) GetStreak(ctx context.Context) (model.StreakRecord, error) {
	var rec model.StreakRecord
	var last string
	err := s.db.QueryRowContext(ctx,
		`SELECT streak_count, last_practice_date, grace_week FROM streak WHERE id = 1`,
	).Scan(&rec.Count, &last, &rec.GraceWeek)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StreakRecord{}, nil
	}
	if err != nil {
		return model.StreakRecord{}, err
	}
	if last != "" {
		if rec.LastPracticeDate, err = time.Parse(time.DateOnly, last); err != nil {
			return model.StreakRecord{}, err
		}
	}
	return rec, nil
}

// SaveStreak stores the streak record.
func (s *Store) SaveStreak(ctx context.Context, rec model.StreakRecord) error {
	last := ""
	if !rec.LastPracticeDate.IsZero() {
		last = rec.LastPracticeDate.Format(time.DateOnly)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO streak (id, streak_count, last_practice_date, grace_week) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET streak_count = excluded.streak_count,
			last_practice_date = excluded.last_practice_date, grace_week = excluded.grace_week`,
		rec.Count, last, rec.GraceWeek,
	)
	return err
}

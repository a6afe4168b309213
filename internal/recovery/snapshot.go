package recovery

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

// snapshotFile is the on-disk layout of recovery.json. Unknown fields are
// ignored and missing ones decode to zero values.
type snapshotFile struct {
	Version         int                   `json:"version"`
	Timestamp       int64                 `json:"timestamp"`
	WrittenAt       string                `json:"written_at,omitempty"`
	Session         sessionFile           `json:"session"`
	Stats           model.SessionStats    `json:"stats"`
	NoisePause      model.NoisePauseState `json:"noise_pause"`
	Dip             model.DipState        `json:"dip"`
	DurationMinutes float64               `json:"duration_minutes"`
	ActiveNanos     int64                 `json:"active_ns,omitempty"`
	UserPausedNanos int64                 `json:"user_paused_ns,omitempty"`
	ResonanceBase   float64               `json:"resonance_baseline_hz,omitempty"`
	Completed       bool                  `json:"completed,omitempty"`
}

type sessionFile struct {
	ID        string              `json:"id"`
	StartedAt string              `json:"started_at,omitempty"`
	Config    model.SessionConfig `json:"config"`
}

func encode(snap model.RecoverySnapshot) ([]byte, error) {
	f := snapshotFile{
		Version:   model.RecoverySnapshotVersion,
		Timestamp: snap.WrittenAt.Unix(),
		WrittenAt: snap.WrittenAt.UTC().Format(time.RFC3339Nano),
		Session: sessionFile{
			ID:     snap.SessionID,
			Config: snap.Config,
		},
		Stats:           snap.Stats,
		NoisePause:      snap.NoisePause,
		Dip:             snap.Dip,
		DurationMinutes: snap.ActiveDuration.Minutes(),
		ActiveNanos:     int64(snap.ActiveDuration),
		UserPausedNanos: int64(snap.UserPaused),
		ResonanceBase:   snap.ResonanceBaselineHz,
		Completed:       snap.Completed,
	}
	if !snap.StartedAt.IsZero() {
		f.Session.StartedAt = snap.StartedAt.UTC().Format(time.RFC3339Nano)
	}
	return json.MarshalIndent(f, "", "  ")
}

func decode(data []byte) (model.RecoverySnapshot, error) {
	var f snapshotFile
	if err := json.Unmarshal(data, &f); err != nil {
		return model.RecoverySnapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	snap := model.RecoverySnapshot{
		Version:             f.Version,
		SessionID:           f.Session.ID,
		Config:              f.Session.Config,
		Stats:               f.Stats,
		NoisePause:          f.NoisePause,
		Dip:                 f.Dip,
		WrittenAt:           time.Unix(f.Timestamp, 0).UTC(),
		ResonanceBaselineHz: f.ResonanceBase,
		Completed:           f.Completed,
	}
	if snap.Version == 0 {
		snap.Version = model.RecoverySnapshotVersion
	}
	if f.WrittenAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, f.WrittenAt); err == nil {
			snap.WrittenAt = t
		}
	}
	if f.Session.StartedAt != "" {
		t, err := time.Parse(time.RFC3339Nano, f.Session.StartedAt)
		if err != nil {
			return model.RecoverySnapshot{}, fmt.Errorf("failed to parse session start: %w", err)
		}
		snap.StartedAt = t
	}
	snap.ActiveDuration = time.Duration(f.ActiveNanos)
	if f.ActiveNanos == 0 && f.DurationMinutes > 0 {
		snap.ActiveDuration = time.Duration(f.DurationMinutes * float64(time.Minute))
	}
	if f.UserPausedNanos > 0 {
		snap.UserPaused = time.Duration(f.UserPausedNanos)
	}
	if snap.NoisePause.Paused != (snap.NoisePause.PauseStartedAt != nil) {
		snap.NoisePause.Paused = false
		snap.NoisePause.PauseStartedAt = nil
	}
	if snap.Dip.InDip != (snap.Dip.DipStartedAt != nil) {
		snap.Dip.InDip = false
		snap.Dip.DipStartedAt = nil
	}
	return snap, nil
}

// writeAtomic replaces path with data through a temp file in the same
// directory.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create recovery dir: %w", err)
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(path), "recovery-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	writer := bufio.NewWriter(tmpFile)
	if _, err := writer.Write(data); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush snapshot: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync snapshot: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close snapshot: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

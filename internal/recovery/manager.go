// Package recovery keeps a crash-survivable snapshot of the running session.
package recovery

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

const (
	// FileName is the snapshot file name inside the data directory.
	FileName = "recovery.json"

	DefaultInterval = 30 * time.Second
	DefaultMaxAge   = 24 * time.Hour
)

type queued struct {
	gen  uint64
	snap model.RecoverySnapshot
}

// Manager throttles snapshots and writes them from a background goroutine.
// MaybeSnapshot and Discard are meant for the session goroutine; Run drives
// the writer.
type Manager struct {
	path     string
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger

	lastQueued time.Time
	mailbox    chan queued
	gen        atomic.Uint64
	degraded   atomic.Bool

	// writeMu orders writes against Discard.
	writeMu sync.Mutex
}

// Option configures a Manager.
type Option func(*Manager)

// WithInterval sets the minimum time between snapshots.
func WithInterval(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.interval = d
		}
	}
}

// WithMaxAge sets how old a snapshot may be and still be offered.
func WithMaxAge(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.maxAge = d
		}
	}
}

// NewManager returns a manager writing to path.
func NewManager(path string, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	m := &Manager{
		path:     path,
		interval: DefaultInterval,
		maxAge:   DefaultMaxAge,
		logger:   logger,
		mailbox:  make(chan queued, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Path returns the snapshot location.
func (m *Manager) Path() string {
	return m.path
}

// MaybeSnapshot queues a snapshot when the interval has elapsed since the
// last one. It never blocks; an unwritten older snapshot is replaced.
func (m *Manager) MaybeSnapshot(now time.Time, build func() model.RecoverySnapshot) {
	if !m.lastQueued.IsZero() && now.Sub(m.lastQueued) < m.interval {
		return
	}
	m.lastQueued = now
	item := queued{gen: m.gen.Load(), snap: build()}
	select {
	case m.mailbox <- item:
		return
	default:
	}
	select {
	case <-m.mailbox:
	default:
	}
	select {
	case m.mailbox <- item:
	default:
		m.logger.Debug("recovery snapshot dropped", "session_id", item.snap.SessionID)
	}
}

// Run writes queued snapshots until ctx is done, then flushes any pending
// one.
func (m *Manager) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			select {
			case item := <-m.mailbox:
				m.write(item)
			default:
			}
			return nil
		case item := <-m.mailbox:
			m.write(item)
		}
	}
}

func (m *Manager) write(item queued) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if item.gen != m.gen.Load() {
		return
	}
	if err := m.Save(item.snap); err != nil {
		if !m.degraded.Swap(true) {
			m.logger.Warn("recovery snapshot write failed, retrying next cycle", "path", m.path, "err", err)
		}
		return
	}
	if m.degraded.Swap(false) {
		m.logger.Info("recovery snapshot writes restored", "path", m.path)
	}
}

// Save writes snap synchronously.
func (m *Manager) Save(snap model.RecoverySnapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}
	return writeAtomic(m.path, data)
}

// Detect returns a usable snapshot left by an unclean shutdown. Corrupt,
// unreadable or stale files are removed and reported as absent.
func (m *Manager) Detect(now time.Time) (*model.RecoverySnapshot, bool) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.logger.Warn("recovery snapshot unreadable", "path", m.path, "err", err)
		}
		return nil, false
	}
	snap, err := decode(data)
	if err != nil {
		m.logger.Warn("discarding corrupt recovery snapshot", "path", m.path, "err", err)
		m.remove()
		return nil, false
	}
	if age := now.Sub(snap.WrittenAt); age > m.maxAge {
		m.logger.Info("discarding stale recovery snapshot", "path", m.path, "age", age)
		m.remove()
		return nil, false
	}
	return &snap, true
}

// Discard deletes the snapshot and drops any queued write.
func (m *Manager) Discard() error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.gen.Add(1)
	m.lastQueued = time.Time{}
	select {
	case <-m.mailbox:
	default:
	}
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (m *Manager) remove() {
	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		m.logger.Warn("failed to remove recovery snapshot", "path", m.path, "err", err)
	}
}

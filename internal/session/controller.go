// Package session runs training sessions: it owns the capture stream, feeds
// frames to the engine and records finished sessions in the history.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/verte-zerg/pitchcoach/internal/capture"
	"github.com/verte-zerg/pitchcoach/internal/engine"
	"github.com/verte-zerg/pitchcoach/internal/model"
	"github.com/verte-zerg/pitchcoach/internal/progress"
)

// HistoryStore persists finished sessions.
type HistoryStore interface {
	InsertSession(ctx context.Context, e model.HistoryEntry) error
	MinutesOn(ctx context.Context, day time.Time) (float64, error)
}

// ProgressTracker folds finished sessions into fatigue and streak records.
type ProgressTracker interface {
	RecordSession(ctx context.Context, date time.Time, durationMinutes float64, strainEvents uint32, jitter, shimmer float64) (model.DailyFatigue, error)
	UpdateStreak(ctx context.Context, date time.Time) (model.StreakRecord, error)
}

// Deps are the collaborators of a Controller. History and Progress are
// optional.
type Deps struct {
	Pipeline *engine.Pipeline
	Source   capture.Source
	Sink     engine.StatusSink
	History  HistoryStore
	Progress ProgressTracker
	Logger   *slog.Logger
	Now      func() time.Time
	NewID    func() string
}

// Outcome describes a stopped session.
type Outcome struct {
	engine.Result
	// Entry is set when the session was long enough to be recorded.
	Entry   *model.HistoryEntry
	Fatigue *model.DailyFatigue
	Streak  *model.StreakRecord
	// Saved reports whether Entry reached the history store.
	Saved bool

	// CaptureErr is the error that ended capture early, if any.
	CaptureErr error
}

// Controller serialises session lifecycle operations.
type Controller struct {
	deps Deps

	mu      sync.Mutex
	current *activeSession
}

type activeSession struct {
	cancel context.CancelFunc
	stream capture.Stream
	done   chan struct{}

	mu      sync.Mutex
	lastEnd time.Time
	pumpErr error
}

// NewController validates deps and fills defaults.
func NewController(deps Deps) (*Controller, error) {
	if deps.Pipeline == nil {
		return nil, errors.New("session controller requires a pipeline")
	}
	if deps.Source == nil {
		return nil, errors.New("session controller requires a capture source")
	}
	if deps.Sink == nil {
		return nil, errors.New("session controller requires a status sink")
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	return &Controller{deps: deps}, nil
}

// Start opens the capture source and begins a session. A non-nil resume
// continues a recovered session.
func (c *Controller) Start(ctx context.Context, cfg model.SessionConfig, resume *model.RecoverySnapshot) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		return "", engine.ErrSessionActive
	}

	now := c.deps.Now()
	id := c.deps.NewID()
	if resume != nil && resume.SessionID != "" {
		id = resume.SessionID
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	stream, err := c.deps.Source.Start(sessionCtx)
	if err != nil {
		cancel()
		err = fmt.Errorf("failed to start capture: %w", err)
		c.publishError(now, id, err)
		return "", err
	}

	opts := engine.StartOptions{
		SessionID:  id,
		StartedAt:  now,
		PriorToday: c.priorToday(ctx, now),
		Resume:     resume,
	}
	if err := c.deps.Pipeline.StartSession(cfg, opts); err != nil {
		cancel()
		if cerr := stream.Close(); cerr != nil {
			c.deps.Logger.Warn("failed to close capture after failed start", "err", cerr)
		}
		c.publishError(now, id, err)
		return "", err
	}

	active := &activeSession{
		cancel: cancel,
		stream: stream,
		done:   make(chan struct{}),
	}
	c.current = active
	go c.pump(sessionCtx, active)
	return id, nil
}

// Done is closed when the current session's capture stream ends. It returns
// nil when no session is running.
func (c *Controller) Done() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.done
}

// Stop ends the session and records it in the history when it qualifies.
func (c *Controller) Stop(ctx context.Context) (Outcome, error) {
	active, err := c.take()
	if err != nil {
		return Outcome{}, err
	}
	c.halt(active)

	result, err := c.deps.Pipeline.StopSession(c.clock(active))
	if err != nil {
		return Outcome{}, err
	}
	active.mu.Lock()
	out := Outcome{Result: result, CaptureErr: active.pumpErr}
	active.mu.Unlock()
	c.record(ctx, &out)
	return out, nil
}

// Abort ends the session without recording it.
func (c *Controller) Abort() error {
	active, err := c.take()
	if err != nil {
		return err
	}
	c.halt(active)
	_, err = c.deps.Pipeline.StopSession(c.clock(active))
	return err
}

// Pause suspends frame processing.
func (c *Controller) Pause() error {
	active, err := c.get()
	if err != nil {
		return err
	}
	return c.deps.Pipeline.PauseSession(c.clock(active))
}

// Resume continues a paused session.
func (c *Controller) Resume() error {
	active, err := c.get()
	if err != nil {
		return err
	}
	return c.deps.Pipeline.ResumeSession(c.clock(active))
}

// Active reports whether a session is running.
func (c *Controller) Active() bool {
	return c.deps.Pipeline.Active()
}

// Snapshot returns a copy of the live session statistics.
func (c *Controller) Snapshot() model.SessionStats {
	return c.deps.Pipeline.Snapshot()
}

func (c *Controller) pump(ctx context.Context, active *activeSession) {
	defer close(active.done)
	for {
		frame, err := active.stream.Next()
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				return
			}
			active.mu.Lock()
			active.pumpErr = err
			active.mu.Unlock()
			c.deps.Logger.Error("audio capture failed", "err", err)
			c.publishError(c.clock(active), "", fmt.Errorf("audio capture error: %w", err))
			return
		}
		c.deps.Pipeline.OnFrame(frame)
		active.mu.Lock()
		if end := frame.End(); end.After(active.lastEnd) {
			active.lastEnd = end
		}
		active.mu.Unlock()
	}
}

func (c *Controller) take() (*activeSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, engine.ErrNoActiveSession
	}
	active := c.current
	c.current = nil
	return active, nil
}

func (c *Controller) get() (*activeSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil, engine.ErrNoActiveSession
	}
	return c.current, nil
}

func (c *Controller) halt(active *activeSession) {
	active.cancel()
	if err := active.stream.Close(); err != nil {
		c.deps.Logger.Warn("failed to stop capture cleanly", "err", err)
	}
	<-active.done
}

// clock returns the session time: frame timestamps lead the wall clock when
// input is read faster than real time.
func (c *Controller) clock(active *activeSession) time.Time {
	now := c.deps.Now()
	active.mu.Lock()
	defer active.mu.Unlock()
	if active.lastEnd.After(now) {
		return active.lastEnd
	}
	return now
}

func (c *Controller) priorToday(ctx context.Context, now time.Time) time.Duration {
	if c.deps.History == nil {
		return 0
	}
	minutes, err := c.deps.History.MinutesOn(ctx, progress.Day(now))
	if err != nil {
		c.deps.Logger.Warn("failed to load today's practice time", "err", err)
		return 0
	}
	return time.Duration(minutes * float64(time.Minute))
}

func (c *Controller) publishError(at time.Time, id string, err error) {
	c.deps.Sink.Publish(model.StatusEvent{
		Version:   model.EventVersion,
		Kind:      model.EventSessionState,
		SessionID: id,
		At:        at,
		State:     &model.SessionStateChange{State: model.SessionStateError, Reason: err.Error()},
	})
}

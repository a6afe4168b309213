package engine

import (
	"math"
	"slices"
	"time"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

const (
	// DipMargin is how far below the goal the smoothed pitch may fall before
	// a dip starts.
	DipMargin = 15.0
	dipWindow = 5
)

// DipUpdate is the outcome of one pushed pitch sample.
type DipUpdate struct {
	Median         float64
	InDip          bool
	JustStarted    bool
	AlertJustFired bool
	Recovered      bool
	// Duration is the dip length so far, or the completed length when
	// Recovered is set.
	Duration time.Duration
}

// DipTracker detects sustained drops of the median-smoothed pitch below
// goal-DipMargin and fires one alert per dip once the tolerance is exceeded.
type DipTracker struct {
	ring       [dipWindow]float64
	n          int
	next       int
	sorted     [dipWindow]float64
	inDip      bool
	startedAt  time.Time
	alertFired bool
}

// Push adds a voiced pitch sample taken at now.
func (d *DipTracker) Push(hz, goal float64, tolerance time.Duration, now time.Time) DipUpdate {
	if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
		return DipUpdate{InDip: d.inDip}
	}
	d.ring[d.next] = hz
	d.next = (d.next + 1) % dipWindow
	if d.n < dipWindow {
		d.n++
	}
	median := d.median()
	floor := goal - DipMargin
	up := DipUpdate{Median: median}

	if !d.inDip {
		if median < floor {
			d.inDip = true
			d.startedAt = now
			d.alertFired = false
			up.InDip = true
			up.JustStarted = true
		}
	} else {
		if median >= floor {
			up.Recovered = true
			up.Duration = nonNegative(now.Sub(d.startedAt))
			d.inDip = false
			d.alertFired = false
			d.startedAt = time.Time{}
			return up
		}
		up.InDip = true
	}

	if d.inDip {
		up.Duration = nonNegative(now.Sub(d.startedAt))
		if !d.alertFired && up.Duration >= tolerance {
			d.alertFired = true
			up.AlertJustFired = true
		}
	}
	return up
}

func (d *DipTracker) median() float64 {
	buf := d.sorted[:d.n]
	copy(buf, d.ring[:d.n])
	slices.Sort(buf)
	mid := d.n / 2
	if d.n%2 == 1 {
		return buf[mid]
	}
	return (buf[mid-1] + buf[mid]) / 2
}

// InDip reports whether a dip is in progress.
func (d *DipTracker) InDip() bool {
	return d.inDip
}

// State returns a copy of the tracker state. Recent is ordered oldest first.
func (d *DipTracker) State() model.DipState {
	s := model.DipState{
		InDip:      d.inDip,
		AlertFired: d.alertFired,
	}
	if d.inDip {
		started := d.startedAt
		s.DipStartedAt = &started
	}
	if d.n > 0 {
		s.Recent = make([]float64, 0, d.n)
		start := (d.next - d.n + dipWindow) % dipWindow
		for i := 0; i < d.n; i++ {
			s.Recent = append(s.Recent, d.ring[(start+i)%dipWindow])
		}
	}
	return s
}

// Restore rehydrates a saved state. An open dip keeps the length it had at
// savedAt and continues from resumeAt.
func (d *DipTracker) Restore(s model.DipState, savedAt, resumeAt time.Time) {
	d.Reset()
	recent := s.Recent
	if len(recent) > dipWindow {
		recent = recent[len(recent)-dipWindow:]
	}
	for _, hz := range recent {
		if hz <= 0 || math.IsNaN(hz) || math.IsInf(hz, 0) {
			continue
		}
		d.ring[d.next] = hz
		d.next = (d.next + 1) % dipWindow
		d.n++
	}
	if s.InDip {
		d.inDip = true
		d.alertFired = s.AlertFired
		d.startedAt = resumeAt
		if s.DipStartedAt != nil {
			d.startedAt = resumeAt.Add(-nonNegative(savedAt.Sub(*s.DipStartedAt)))
		}
	}
}

// Reset clears all state for a new session.
func (d *DipTracker) Reset() {
	*d = DipTracker{}
}

func nonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

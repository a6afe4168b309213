// Package stats contains statistics calculations and reporting.
package stats

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

const sparkChars = " .:-=+*#%@"

// Summary aggregates a list of history entries.
type Summary struct {
	Sessions         int
	TotalMinutes     float64
	AvgPitch         float64
	BestPitch        float64
	AvgTimeInRange   float64
	AvgGoalPercent   float64
	TotalDips        uint32
	TotalStrain      uint32
	AvgJitter        float64
	AvgShimmer       float64
	AvgHNR           float64
	roughnessEntries int
}

// Summarize averages per-session values over the entries.
func Summarize(entries []model.HistoryEntry) Summary {
	var s Summary
	if len(entries) == 0 {
		return s
	}
	s.Sessions = len(entries)
	for _, e := range entries {
		s.TotalMinutes += e.DurationMinutes
		s.AvgPitch += e.AvgPitch
		s.AvgTimeInRange += e.TimeInRangePercent
		s.AvgGoalPercent += e.GoalAchievementPercent
		s.TotalDips += e.DipCount
		s.TotalStrain += e.StrainEvents
		if e.AvgPitch > s.BestPitch {
			s.BestPitch = e.AvgPitch
		}
		// Sessions without roughness measurements store zero HNR.
		if e.AvgHNR > 0 {
			s.AvgJitter += e.AvgJitter
			s.AvgShimmer += e.AvgShimmer
			s.AvgHNR += e.AvgHNR
			s.roughnessEntries++
		}
	}
	count := float64(len(entries))
	s.AvgPitch /= count
	s.AvgTimeInRange /= count
	s.AvgGoalPercent /= count
	if s.roughnessEntries > 0 {
		n := float64(s.roughnessEntries)
		s.AvgJitter /= n
		s.AvgShimmer /= n
		s.AvgHNR /= n
	}
	return s
}

// HasRoughness reports whether any summarized session carried roughness data.
func (s Summary) HasRoughness() bool {
	return s.roughnessEntries > 0
}

// TrendDirection classifies how the average pitch moves between windows.
type TrendDirection string

const (
	TrendInsufficient TrendDirection = "insufficient_data"
	TrendNewUser      TrendDirection = "new_user"
	TrendImproving    TrendDirection = "improving"
	TrendStable       TrendDirection = "stable"
	TrendDeclining    TrendDirection = "declining"
)

const (
	trendWindow    = 7
	trendThreshold = 2.0
)

// Trend compares the latest sessions with the ones before them.
type Trend struct {
	Direction TrendDirection
	RecentAvg float64
	// OlderAvg and Improvement are zero until two full windows exist.
	OlderAvg    float64
	Improvement float64
	// ConsistencyPercent is the share of recent sessions whose average
	// reached the goal.
	ConsistencyPercent float64
}

// ComputeTrend looks at the last seven sessions against the seven before.
// Entries must be ordered oldest first.
func ComputeTrend(entries []model.HistoryEntry) Trend {
	if len(entries) < 2 {
		return Trend{Direction: TrendInsufficient}
	}
	recent := entries[max(0, len(entries)-trendWindow):]
	var t Trend
	var reached int
	for _, e := range recent {
		t.RecentAvg += e.AvgPitch
		if e.AvgPitch >= e.GoalHz {
			reached++
		}
	}
	t.RecentAvg /= float64(len(recent))
	t.ConsistencyPercent = float64(reached) / float64(len(recent)) * 100

	if len(entries) < 2*trendWindow {
		t.Direction = TrendNewUser
		return t
	}
	older := entries[len(entries)-2*trendWindow : len(entries)-trendWindow]
	for _, e := range older {
		t.OlderAvg += e.AvgPitch
	}
	t.OlderAvg /= float64(len(older))
	t.Improvement = t.RecentAvg - t.OlderAvg
	switch {
	case t.Improvement > trendThreshold:
		t.Direction = TrendImproving
	case t.Improvement > -trendThreshold:
		t.Direction = TrendStable
	default:
		t.Direction = TrendDeclining
	}
	return t
}

// Label renders the trend as a short human phrase.
func (t Trend) Label() string {
	switch t.Direction {
	case TrendInsufficient:
		return "not enough sessions yet"
	case TrendNewUser:
		return fmt.Sprintf("building baseline (recent avg %.1f Hz)", t.RecentAvg)
	default:
		return fmt.Sprintf("%s (%+.1f Hz vs previous %d sessions)", t.Direction, t.Improvement, trendWindow)
	}
}

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	if window <= 1 || len(values) == 0 {
		out := make([]float64, len(values))
		copy(out, values)
		return out
	}
	out := make([]float64, len(values))
	var sum float64
	for i := 0; i < len(values); i++ {
		sum += values[i]
		if i >= window {
			sum -= values[i-window]
		}
		den := float64(i + 1)
		if i >= window {
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal := values[0]
	maxVal := values[0]
	for _, v := range values[1:] {
		if v < minVal {
			minVal = v
		}
		if v > maxVal {
			maxVal = v
		}
	}
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		if idx < 0 {
			idx = 0
		}
		if idx >= len(sparkChars) {
			idx = len(sparkChars) - 1
		}
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// RenderSummary prints a summary block for the sessions.
func RenderSummary(w io.Writer, entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	s := Summarize(entries)
	lines := []string{
		"Summary",
		fmt.Sprintf("Sessions: %d", s.Sessions),
		fmt.Sprintf("Practice time: %.1f min", s.TotalMinutes),
		fmt.Sprintf("Avg pitch: %.1f Hz", s.AvgPitch),
		fmt.Sprintf("Best session avg: %.1f Hz", s.BestPitch),
		fmt.Sprintf("Avg time in range: %.1f%%", s.AvgTimeInRange),
		fmt.Sprintf("Avg at goal: %.1f%%", s.AvgGoalPercent),
		fmt.Sprintf("Dips: %d", s.TotalDips),
		fmt.Sprintf("Strain events: %d", s.TotalStrain),
		fmt.Sprintf("Trend: %s", ComputeTrend(entries).Label()),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderCurves prints pitch progress curves.
func RenderCurves(w io.Writer, entries []model.HistoryEntry, window int) error {
	return RenderCurvesWithSize(w, entries, window, 0, 10, false)
}

// RenderCurvesWithSize prints the pitch curve on a shared Hz scale with the
// latest goal as a reference line, then the range percentages.
func RenderCurvesWithSize(w io.Writer, entries []model.HistoryEntry, window, totalWidth, height int, useColor bool) error {
	if len(entries) == 0 {
		return nil
	}
	avg := make([]float64, len(entries))
	lo := make([]float64, len(entries))
	hi := make([]float64, len(entries))
	inRange := make([]float64, len(entries))
	atGoal := make([]float64, len(entries))
	for i, e := range entries {
		avg[i] = e.AvgPitch
		lo[i] = e.MinPitch
		hi[i] = e.MaxPitch
		inRange[i] = e.TimeInRangePercent
		atGoal[i] = e.GoalAchievementPercent
	}

	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	goal := entries[len(entries)-1].GoalHz
	if err := PlotWithOptions(w, "Pitch", []Series{
		{Name: "Avg", Values: MovingAverage(avg, window)},
		{Name: "Min", Values: MovingAverage(lo, window)},
		{Name: "Max", Values: MovingAverage(hi, window)},
	}, PlotOptions{
		Width:     width,
		Height:    height,
		Color:     useColor,
		Shared:    true,
		Unit:      "Hz",
		Reference: &Reference{Name: "Goal", Value: goal},
	}); err != nil {
		return err
	}
	return PlotSeriesWithColor(w, "Range", []Series{
		{Name: "In range %", Values: MovingAverage(inRange, window)},
		{Name: "At goal %", Values: MovingAverage(atGoal, window)},
	}, width, height, useColor)
}

// RenderSessionTable prints one row per session, newest first.
func RenderSessionTable(w io.Writer, entries []model.HistoryEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No sessions found.")
		return err
	}
	if _, err := fmt.Fprintln(w, "Sessions"); err != nil {
		return err
	}
	for _, line := range SessionTableLines(entries) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

// SessionTableLines formats the session table, newest first.
func SessionTableLines(entries []model.HistoryEntry) []string {
	headers := []string{"Date", "Min", "Goal", "Avg Hz", "Range Hz", "In range", "Dips", "Jitter", "Shimmer", "HNR"}
	rows := make([][]string, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		rows = append(rows, []string{
			e.StartedAt.Local().Format("2006-01-02 15:04"),
			fmt.Sprintf("%.1f", e.DurationMinutes),
			fmt.Sprintf("%.0f", e.GoalHz),
			fmt.Sprintf("%.1f", e.AvgPitch),
			fmt.Sprintf("%.0f-%.0f", e.MinPitch, e.MaxPitch),
			fmt.Sprintf("%.1f%%", e.TimeInRangePercent),
			fmt.Sprintf("%d", e.DipCount),
			optional(e.AvgJitter, e.AvgHNR > 0, "%.2f%%"),
			optional(e.AvgShimmer, e.AvgHNR > 0, "%.2f%%"),
			optional(e.AvgHNR, e.AvgHNR > 0, "%.1f dB"),
		})
	}
	rightAlign := map[int]bool{1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: true, 8: true, 9: true}
	return formatTable(headers, rows, rightAlign)
}

func optional(v float64, ok bool, format string) string {
	if !ok {
		return "-"
	}
	return fmt.Sprintf(format, v)
}

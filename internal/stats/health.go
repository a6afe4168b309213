package stats

import (
	"fmt"
	"io"
	"sort"

	"github.com/verte-zerg/pitchcoach/internal/model"
	"github.com/verte-zerg/pitchcoach/internal/progress"
)

// WarningCount is how often one safety warning kind fired across sessions.
type WarningCount struct {
	Kind  string
	Count uint32
}

// TopSafetyWarnings returns the n most frequent safety warning kinds.
func TopSafetyWarnings(entries []model.HistoryEntry, n int) []WarningCount {
	if n <= 0 || len(entries) == 0 {
		return nil
	}
	totals := map[string]uint32{}
	for _, e := range entries {
		for kind, count := range e.SafetyWarnings {
			totals[kind] += count
		}
	}
	items := make([]WarningCount, 0, len(totals))
	for kind, count := range totals {
		if count == 0 {
			continue
		}
		items = append(items, WarningCount{Kind: kind, Count: count})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Count == items[j].Count {
			return items[i].Kind < items[j].Kind
		}
		return items[i].Count > items[j].Count
	})
	if n > len(items) {
		n = len(items)
	}
	return items[:n]
}

// Health grades the averaged voice metrics of a set of sessions.
type Health struct {
	Measured bool
	Jitter   float64
	Shimmer  float64
	HNR      float64
	// StrainPercent is the share of sessions with at least one strain event.
	StrainPercent float64

	JitterGrade  progress.HealthGrade
	ShimmerGrade progress.HealthGrade
	HNRGrade     progress.HealthGrade
	StrainGrade  progress.HealthGrade
}

// AssessHealth averages roughness over the entries and grades it.
func AssessHealth(entries []model.HistoryEntry) Health {
	s := Summarize(entries)
	h := Health{Measured: s.HasRoughness()}
	if len(entries) == 0 {
		return h
	}
	var strained int
	for _, e := range entries {
		if e.StrainEvents > 0 {
			strained++
		}
	}
	h.StrainPercent = float64(strained) / float64(len(entries)) * 100
	h.StrainGrade = progress.GradeStrainRate(h.StrainPercent)
	if !h.Measured {
		return h
	}
	h.Jitter, h.Shimmer, h.HNR = s.AvgJitter, s.AvgShimmer, s.AvgHNR
	h.JitterGrade = progress.GradeJitter(h.Jitter)
	h.ShimmerGrade = progress.GradeShimmer(h.Shimmer)
	h.HNRGrade = progress.GradeHNR(h.HNR)
	return h
}

// HealthLines formats the health view shared by the CLI and the browser.
func HealthLines(entries []model.HistoryEntry, fatigue []model.DailyFatigue, streak model.StreakRecord) []string {
	h := AssessHealth(entries)
	lines := []string{fmt.Sprintf("Streak: %d day(s)", streak.Count)}
	if !streak.LastPracticeDate.IsZero() {
		lines = append(lines, fmt.Sprintf("Last practice: %s", streak.LastPracticeDate.Format("2006-01-02")))
	}
	lines = append(lines, "")
	if h.Measured {
		lines = append(lines,
			fmt.Sprintf("Jitter:  %6.2f%%   %s", h.Jitter, h.JitterGrade),
			fmt.Sprintf("Shimmer: %6.2f%%   %s", h.Shimmer, h.ShimmerGrade),
			fmt.Sprintf("HNR:     %6.1f dB  %s", h.HNR, h.HNRGrade),
		)
	} else {
		lines = append(lines, "No roughness measurements yet.")
	}
	if len(entries) > 0 {
		lines = append(lines, fmt.Sprintf("Strained sessions: %.0f%%  %s", h.StrainPercent, h.StrainGrade))
	}

	if warnings := TopSafetyWarnings(entries, 3); len(warnings) > 0 {
		lines = append(lines, "", "Most frequent warnings:")
		for _, w := range warnings {
			lines = append(lines, fmt.Sprintf("  %s x%d", w.Kind, w.Count))
		}
	}

	if len(fatigue) > 0 {
		lines = append(lines, "", "Daily fatigue:")
		headers := []string{"Date", "Score", "Sessions"}
		rows := make([][]string, 0, len(fatigue))
		scores := make([]float64, 0, len(fatigue))
		for _, f := range fatigue {
			rows = append(rows, []string{
				f.Date.Format("2006-01-02"),
				fmt.Sprintf("%.0f", f.Score),
				fmt.Sprintf("%d", f.Sessions),
			})
			scores = append(scores, f.Score)
		}
		for _, line := range formatTable(headers, rows, map[int]bool{1: true, 2: true}) {
			lines = append(lines, "  "+line)
		}
		lines = append(lines, "  "+Sparkline(scores))
	}
	return lines
}

// RenderHealth prints the health view.
func RenderHealth(w io.Writer, entries []model.HistoryEntry, fatigue []model.DailyFatigue, streak model.StreakRecord) error {
	if _, err := fmt.Fprintln(w, "Voice Health"); err != nil {
		return err
	}
	for _, line := range HealthLines(entries, fatigue, streak) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

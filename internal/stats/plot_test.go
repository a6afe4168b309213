package stats

import (
	"bytes"
	"strings"
	"testing"
)

func TestPlotSeries(t *testing.T) {
	var buf bytes.Buffer
	err := PlotSeries(&buf, "Test Plot", []Series{
		{Name: "A", Values: []float64{1, 2, 3, 2, 1}},
		{Name: "B", Values: []float64{1, 1, 2, 3, 4}},
	}, 5, 4)
	if err != nil {
		t.Fatalf("PlotSeries failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Test Plot") {
		t.Fatalf("expected title in output")
	}
	if !strings.Contains(out, "Scaled per series") {
		t.Fatalf("expected scale note in output")
	}
	if !strings.Contains(out, "Legend:") {
		t.Fatalf("expected legend in output")
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	expectedMin := 1 + 1 + 2 + 4 + 1
	if len(lines) < expectedMin {
		t.Fatalf("expected at least %d lines of output, got %d", expectedMin, len(lines))
	}
}

func TestPlotSharedScaleWithReference(t *testing.T) {
	var buf bytes.Buffer
	err := PlotWithOptions(&buf, "Pitch", []Series{
		{Name: "Avg", Values: []float64{150, 160, 170}},
		{Name: "Min", Values: []float64{120, 125, 130}},
	}, PlotOptions{
		Width:     12,
		Height:    5,
		Shared:    true,
		Unit:      "Hz",
		Reference: &Reference{Name: "Goal", Value: 180},
	})
	if err != nil {
		t.Fatalf("PlotWithOptions failed: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Shared scale (Hz).") {
		t.Fatalf("expected shared scale note, got:\n%s", out)
	}
	// Axis top spans the goal plus a margin.
	if !strings.Contains(out, "183Hz") {
		t.Fatalf("expected top axis label in Hz, got:\n%s", out)
	}
	if !strings.Contains(out, "Goal (reference)") {
		t.Fatalf("expected reference in legend, got:\n%s", out)
	}
	if strings.Contains(out, "Goal: min=") {
		t.Fatalf("reference line should not report min/max")
	}
	if !strings.Contains(out, "Avg: min=150.00 max=170.00") {
		t.Fatalf("expected raw min/max for data series, got:\n%s", out)
	}
}

package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := New(mp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func sumOf(t *testing.T, rm metricdata.ResourceMetrics, name string) int64 {
	t.Helper()
	m := findMetric(rm, name)
	if m == nil {
		t.Fatalf("metric %s not found", name)
	}
	sum, ok := m.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatalf("metric %s: unexpected data %T", name, m.Data)
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func stateEvent(state model.SessionState) model.StatusEvent {
	return model.StatusEvent{Kind: model.EventSessionState, State: &model.SessionStateChange{State: state}}
}

func TestObserveCountsEvents(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.Observe(ctx, stateEvent(model.SessionStateActive))
	m.Observe(ctx, model.StatusEvent{Kind: model.EventTrainingStatus, Training: &model.TrainingStatus{PitchHz: 170}})
	m.Observe(ctx, model.StatusEvent{Kind: model.EventTrainingStatus, Training: &model.TrainingStatus{
		PitchHz: 140,
		Dip:     model.DipInfo{InDip: true, AlertTriggered: true},
	}})
	m.Observe(ctx, model.StatusEvent{Kind: model.EventSafetyWarning, Safety: &model.SafetyWarning{
		Kind:     model.SafetyBreakReminder,
		Severity: model.SeverityLight,
	}})

	rm := collect(t, reader)
	if got := sumOf(t, rm, "pitchcoach.events"); got != 4 {
		t.Fatalf("expected 4 events, got %d", got)
	}
	if got := sumOf(t, rm, "pitchcoach.dip_alerts"); got != 1 {
		t.Fatalf("expected 1 dip alert, got %d", got)
	}
	if got := sumOf(t, rm, "pitchcoach.safety_warnings"); got != 1 {
		t.Fatalf("expected 1 safety warning, got %d", got)
	}
	if got := sumOf(t, rm, "pitchcoach.active_sessions"); got != 1 {
		t.Fatalf("expected 1 active session, got %d", got)
	}

	pitch := findMetric(rm, "pitchcoach.pitch")
	if pitch == nil {
		t.Fatalf("pitch histogram not found")
	}
	hist, ok := pitch.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) != 1 || hist.DataPoints[0].Count != 2 {
		t.Fatalf("unexpected pitch histogram %+v", pitch.Data)
	}
}

func TestActiveSessionsTracksLifecycle(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.Observe(ctx, stateEvent(model.SessionStateActive))
	m.Observe(ctx, stateEvent(model.SessionStatePaused))
	m.Observe(ctx, stateEvent(model.SessionStateActive))
	if got := sumOf(t, collect(t, reader), "pitchcoach.active_sessions"); got != 1 {
		t.Fatalf("pause/resume should not change active sessions, got %d", got)
	}
	m.Observe(ctx, stateEvent(model.SessionStateStopped))
	m.Observe(ctx, stateEvent(model.SessionStateError))
	if got := sumOf(t, collect(t, reader), "pitchcoach.active_sessions"); got != 0 {
		t.Fatalf("expected no active sessions after stop, got %d", got)
	}
}

func TestRunStopsWhenChannelCloses(t *testing.T) {
	m, reader := newTestMetrics(t)
	ch := make(chan model.StatusEvent, 2)
	ch <- model.StatusEvent{Kind: model.EventNoiseFeedback, Noise: &model.NoiseFeedback{Message: "learning"}}
	ch <- model.StatusEvent{Kind: model.EventNoiseFeedback, Noise: &model.NoiseFeedback{Message: "ready"}}
	close(ch)

	if err := m.Run(context.Background(), ch); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := sumOf(t, collect(t, reader), "pitchcoach.events"); got != 2 {
		t.Fatalf("expected 2 events, got %d", got)
	}
}

func TestMiddlewareRecordsRequests(t *testing.T) {
	m, reader := newTestMetrics(t)
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("unexpected status %d", rec.Code)
	}
	if findMetric(collect(t, reader), "pitchcoach.http.request.duration") == nil {
		t.Fatalf("request duration not recorded")
	}
}

func TestPrometheusHandlerExposesInstruments(t *testing.T) {
	mp, handler, err := NewPrometheus("test")
	if err != nil {
		t.Fatalf("NewPrometheus: %v", err)
	}
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := New(mp)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	m.Observe(context.Background(), stateEvent(model.SessionStateActive))

	srv := httptest.NewServer(handler)
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(body), "pitchcoach_events") {
		t.Fatalf("expected pitchcoach_events in exposition:\n%s", body)
	}
}

// Package metrics records training activity as OpenTelemetry instruments.
//
// Instruments are fed from the status event stream, so the engine stays free
// of telemetry code. NewPrometheus wires a meter provider to a Prometheus
// exporter whose handler the status server mounts at /metrics. Tests should
// build a provider with a manual reader instead.
package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/verte-zerg/pitchcoach/internal/model"
)

const meterName = "github.com/verte-zerg/pitchcoach"

// pitchBuckets cover the trainable range in Hz.
var pitchBuckets = []float64{
	80, 100, 120, 140, 160, 180, 200, 220, 250, 300, 350,
}

// Metrics holds the instruments. All fields are safe for concurrent use.
type Metrics struct {
	// Events counts status events by kind.
	Events metric.Int64Counter
	// Pitch records the detected pitch of every voiced analysis frame.
	Pitch metric.Float64Histogram
	// DipAlerts counts dips that lasted past the tolerance.
	DipAlerts metric.Int64Counter
	// SafetyWarnings counts warnings by kind and severity.
	SafetyWarnings metric.Int64Counter
	// ActiveSessions is 1 while a session runs.
	ActiveSessions metric.Int64UpDownCounter
	// HTTPRequestDuration tracks status server requests by method and route.
	HTTPRequestDuration metric.Float64Histogram

	mu     sync.Mutex
	active bool
}

// New creates the instruments on mp.
func New(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Events, err = m.Int64Counter("pitchcoach.events",
		metric.WithDescription("Status events published, by kind."),
	); err != nil {
		return nil, err
	}
	if met.Pitch, err = m.Float64Histogram("pitchcoach.pitch",
		metric.WithDescription("Detected pitch of voiced frames."),
		metric.WithUnit("Hz"),
		metric.WithExplicitBucketBoundaries(pitchBuckets...),
	); err != nil {
		return nil, err
	}
	if met.DipAlerts, err = m.Int64Counter("pitchcoach.dip_alerts",
		metric.WithDescription("Pitch dips that outlasted the tolerance."),
	); err != nil {
		return nil, err
	}
	if met.SafetyWarnings, err = m.Int64Counter("pitchcoach.safety_warnings",
		metric.WithDescription("Vocal safety warnings by kind and severity."),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("pitchcoach.active_sessions",
		metric.WithDescription("Number of running training sessions."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("pitchcoach.http.request.duration",
		metric.WithDescription("Status server request latency by method and route."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// Observe folds one status event into the instruments.
func (m *Metrics) Observe(ctx context.Context, ev model.StatusEvent) {
	m.Events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(ev.Kind))))
	switch {
	case ev.Training != nil:
		if ev.Training.PitchHz > 0 {
			m.Pitch.Record(ctx, ev.Training.PitchHz)
		}
		if ev.Training.Dip.AlertTriggered {
			m.DipAlerts.Add(ctx, 1)
		}
	case ev.Safety != nil:
		m.SafetyWarnings.Add(ctx, 1, metric.WithAttributes(
			attribute.String("kind", string(ev.Safety.Kind)),
			attribute.String("severity", string(ev.Safety.Severity)),
		))
	case ev.State != nil:
		m.observeState(ctx, ev.State.State)
	}
}

func (m *Metrics) observeState(ctx context.Context, state model.SessionState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch state {
	case model.SessionStateActive, model.SessionStatePaused:
		if !m.active {
			m.active = true
			m.ActiveSessions.Add(ctx, 1)
		}
	case model.SessionStateStopped, model.SessionStateError, model.SessionStateIdle:
		if m.active {
			m.active = false
			m.ActiveSessions.Add(ctx, -1)
		}
	}
}

// Run observes events from ch until it closes or ctx is done.
func (m *Metrics) Run(ctx context.Context, ch <-chan model.StatusEvent) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-ch:
			if !ok {
				return nil
			}
			m.Observe(ctx, ev)
		}
	}
}

// Middleware records request latency under the matched route template.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.HTTPRequestDuration.Record(r.Context(), time.Since(start).Seconds(), metric.WithAttributes(
			attribute.String("method", r.Method),
			attribute.String("route", route),
		))
	})
}

// NewPrometheus returns a meter provider exporting to a private Prometheus
// registry and the handler that serves it. The caller shuts the provider
// down.
func NewPrometheus(version string) (*sdkmetric.MeterProvider, http.Handler, error) {
	res := resource.NewSchemaless(
		semconv.ServiceName("pitchcoach"),
		semconv.ServiceVersion(version),
	)
	reg := prometheus.NewRegistry()
	exp, err := promexporter.New(promexporter.WithRegisterer(reg))
	if err != nil {
		return nil, nil, err
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exp),
	)
	return mp, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), nil
}

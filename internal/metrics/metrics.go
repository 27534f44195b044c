// Package metrics exposes Prometheus counters for routing and validation.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/zhouzirui/z-concierge/backend/internal/model/agent"
	"github.com/zhouzirui/z-concierge/backend/internal/model/chat"
)

const namespace = "concierge"

// Recorder owns a private registry and the collectors registered on it.
type Recorder struct {
	registry *prometheus.Registry

	TurnsTotal        *prometheus.CounterVec
	TurnDuration      prometheus.Histogram
	RoutesTotal       *prometheus.CounterVec
	ValidationTotal   *prometheus.CounterVec
	FallbacksTotal    prometheus.Counter
	UploadsTotal      *prometheus.CounterVec
	SpeechTotal       *prometheus.CounterVec
	ActiveConnections prometheus.Gauge
}

// New registers every collector on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		TurnsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "User turns processed, by outcome.",
		}, []string{"outcome"}),
		TurnDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Wall time spent processing one turn.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		RoutesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "routes_total",
			Help:      "Router decisions, by agent. Unrecognised replies use agent=\"none\".",
		}, []string{"agent"}),
		ValidationTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validation_steps_total",
			Help:      "Identity validation steps, by outcome.",
		}, []string{"outcome"}),
		FallbacksTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "validator_fallbacks_total",
			Help:      "Answer checks decided by direct comparison after a delegate failure.",
		}),
		UploadsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Operator uploads, by kind and result.",
		}, []string{"kind", "success"}),
		SpeechTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_requests_total",
			Help:      "Speech transcription and synthesis calls, by operation and result.",
		}, []string{"operation", "success"}),
		ActiveConnections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open voice WebSocket connections.",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// TurnHandled implements the chat observer.
func (r *Recorder) TurnHandled(outcome chat.Outcome, elapsed time.Duration) {
	r.TurnsTotal.WithLabelValues(string(outcome)).Inc()
	r.TurnDuration.Observe(elapsed.Seconds())
}

// Routed implements the chat observer.
func (r *Recorder) Routed(id agent.ID, ok bool) {
	label := string(id)
	if !ok {
		label = "none"
	}
	r.RoutesTotal.WithLabelValues(label).Inc()
}

// ValidationStep implements the chat observer.
func (r *Recorder) ValidationStep(outcome chat.Outcome, validatorFallback bool) {
	r.ValidationTotal.WithLabelValues(string(outcome)).Inc()
	if validatorFallback {
		r.FallbacksTotal.Inc()
	}
}

// Upload counts an operator upload.
func (r *Recorder) Upload(kind string, success bool) {
	r.UploadsTotal.WithLabelValues(kind, strconv.FormatBool(success)).Inc()
}

// Speech counts a speech service call.
func (r *Recorder) Speech(operation string, success bool) {
	r.SpeechTotal.WithLabelValues(operation, strconv.FormatBool(success)).Inc()
}

// ConnectionOpened tracks a voice socket being accepted.
func (r *Recorder) ConnectionOpened() {
	r.ActiveConnections.Inc()
}

// ConnectionClosed tracks a voice socket going away.
func (r *Recorder) ConnectionClosed() {
	r.ActiveConnections.Dec()
}

// Package metrics owns the prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Turn and voice query outcomes.
const (
	OutcomeOK         = "ok"
	OutcomeQuota      = "quota"
	OutcomeValidation = "validation"
	OutcomeUpstream   = "upstream"
	OutcomeStorage    = "storage"
)

// Metrics groups the collectors on a private registry. A nil *Metrics is a
// valid no-op recorder.
type Metrics struct {
	registry        *prometheus.Registry
	turns           *prometheus.CounterVec
	voiceQueries    *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	storeOps        *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		turns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbot",
			Name:      "chat_turns_total",
			Help:      "Chat turns processed, by outcome.",
		}, []string{"outcome"}),
		voiceQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbot",
			Name:      "voice_queries_total",
			Help:      "Voice queries processed, by outcome.",
		}, []string{"outcome"}),
		providerLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "chatbot",
			Name:      "provider_call_seconds",
			Help:      "Latency of calls to the AI provider.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		}, []string{"operation", "result"}),
		storeOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chatbot",
			Name:      "store_operations_total",
			Help:      "Message store operations, by operation and result.",
		}, []string{"operation", "result"}),
	}
	reg.MustRegister(
		m.turns,
		m.voiceQueries,
		m.providerLatency,
		m.storeOps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Turn(outcome string) {
	if m == nil {
		return
	}
	m.turns.WithLabelValues(outcome).Inc()
}

func (m *Metrics) VoiceQuery(outcome string) {
	if m == nil {
		return
	}
	m.voiceQueries.WithLabelValues(outcome).Inc()
}

// ProviderCall records the latency of one provider operation started at start.
func (m *Metrics) ProviderCall(operation string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.providerLatency.WithLabelValues(operation, result(err)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) StoreOp(operation string, err error) {
	if m == nil {
		return
	}
	m.storeOps.WithLabelValues(operation, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the application collectors. A nil *Metrics or one built with a nil
// registerer is a no-op.
type Metrics struct {
	llmCalls     *prometheus.CounterVec
	llmDuration  *prometheus.HistogramVec
	jobs         *prometheus.CounterVec
	webhooks     *prometheus.CounterVec
	courtLookups *prometheus.CounterVec
	expired      prometheus.Counter
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return &Metrics{}
	}
	m := &Metrics{
		llmCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "llm_calls_total",
			Help: "LLM chat completions by feature and outcome.",
		}, []string{"feature", "outcome"}),
		llmDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "llm_call_duration_seconds",
			Help:    "Latency of LLM chat completions.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 120},
		}, []string{"feature"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "background_jobs_total",
			Help: "Detached AI jobs by name and outcome.",
		}, []string{"job", "outcome"}),
		webhooks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stripe_webhook_events_total",
			Help: "Stripe webhook events by type and outcome.",
		}, []string{"type", "outcome"}),
		courtLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "court_lookups_total",
			Help: "Federal district lookups by confidence.",
		}, []string{"confidence"}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drafts_expired_total",
			Help: "Draft documents flipped to expired by the sweep.",
		}),
	}
	reg.MustRegister(m.llmCalls, m.llmDuration, m.jobs, m.webhooks, m.courtLookups, m.expired)
	return m
}

func (m *Metrics) ObserveLLM(feature, outcome string, d time.Duration) {
	if m == nil || m.llmCalls == nil {
		return
	}
	feature = label(feature)
	m.llmCalls.WithLabelValues(feature, label(outcome)).Inc()
	m.llmDuration.WithLabelValues(feature).Observe(d.Seconds())
}

func (m *Metrics) IncJob(job, outcome string) {
	if m == nil || m.jobs == nil {
		return
	}
	m.jobs.WithLabelValues(label(job), label(outcome)).Inc()
}

func (m *Metrics) IncWebhook(eventType, outcome string) {
	if m == nil || m.webhooks == nil {
		return
	}
	m.webhooks.WithLabelValues(label(eventType), label(outcome)).Inc()
}

func (m *Metrics) IncCourtLookup(confidence string) {
	if m == nil || m.courtLookups == nil {
		return
	}
	m.courtLookups.WithLabelValues(label(confidence)).Inc()
}

func (m *Metrics) AddExpired(n int64) {
	if m == nil || m.expired == nil || n <= 0 {
		return
	}
	m.expired.Add(float64(n))
}

func label(v string) string {
	if v == "" {
		return "unknown"
	}
	return v
}

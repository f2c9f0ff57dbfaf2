package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveLLM("parse_story", "ok", 2*time.Second)
	m.ObserveLLM("parse_story", "error", time.Second)
	m.IncCourtLookup("high")
	m.IncCourtLookup("")
	m.AddExpired(3)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.llmCalls.WithLabelValues("parse_story", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.courtLookups.WithLabelValues("unknown")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.expired))
}

func TestNilMetricsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveLLM("x", "ok", time.Second)
	m.IncJob("story", "ok")
	m.IncWebhook("checkout.session.completed", "ok")

	empty := New(nil)
	empty.IncCourtLookup("low")
	empty.AddExpired(1)
}

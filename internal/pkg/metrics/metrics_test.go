package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestSagaCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSaga(reg)

	m.ObserveStage("coupon", "success", time.Now())
	m.ObserveStage("coupon", "success", time.Now())
	m.ObserveStage("payment", "failed", time.Now())
	m.PublishFailed("order.created")
	m.DeadLettered("order.created")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.stageOutcomes.WithLabelValues("coupon", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.stageOutcomes.WithLabelValues("payment", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.publishFailures.WithLabelValues("order.created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.deadLetters.WithLabelValues("order.created")))
}

func TestNilSagaIsNoop(t *testing.T) {
	var m *Saga
	assert.NotPanics(t, func() {
		m.ObserveStage("coupon", "success", time.Now())
		m.PublishFailed("t")
		m.DeadLettered("t")
	})
}

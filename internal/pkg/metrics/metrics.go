package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Saga groups the collectors exported by stage workers.
type Saga struct {
	stageOutcomes   *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	publishFailures *prometheus.CounterVec
	deadLetters     *prometheus.CounterVec
}

// NewSaga registers the saga collectors on reg. Pass
// prometheus.DefaultRegisterer to expose them through promhttp.Handler.
func NewSaga(reg prometheus.Registerer) *Saga {
	m := &Saga{
		stageOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_stage_outcomes_total",
			Help: "Stage executions by outcome (success, failed, skipped).",
		}, []string{"stage", "outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "saga_stage_duration_seconds",
			Help:    "Time spent handling one stage event.",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_publish_failures_total",
			Help: "Events the broker rejected.",
		}, []string{"topic"}),
		deadLetters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "saga_dead_letters_total",
			Help: "Messages routed to the dead-letter topic, by source topic.",
		}, []string{"topic"}),
	}
	reg.MustRegister(m.stageOutcomes, m.stageDuration, m.publishFailures, m.deadLetters)
	return m
}

// All methods are safe on a nil *Saga.

func (m *Saga) ObserveStage(stage, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.stageOutcomes.WithLabelValues(stage, outcome).Inc()
	m.stageDuration.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

func (m *Saga) PublishFailed(topic string) {
	if m == nil {
		return
	}
	m.publishFailures.WithLabelValues(topic).Inc()
}

func (m *Saga) DeadLettered(topic string) {
	if m == nil {
		return
	}
	m.deadLetters.WithLabelValues(topic).Inc()
}

// Package metrics holds the Prometheus collectors for the agent and the
// adapters that feed them from loop hooks and executor/router observers.
// Components stay metrics-agnostic; wiring happens at construction time.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aretw0/deckhand/pkg/domain"
	"github.com/aretw0/deckhand/pkg/runner"
)

// Metrics owns a private registry so tests and embedders never collide on
// the global one.
type Metrics struct {
	registry *prometheus.Registry

	turns       prometheus.Counter
	toolCalls   *prometheus.CounterVec
	toolSeconds *prometheus.HistogramVec
	executions  *prometheus.CounterVec
	execSeconds *prometheus.HistogramVec
	editRetries prometheus.Counter
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		turns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deckhand_turns_total",
			Help: "Total decider rounds across all sessions",
		}),
		toolCalls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckhand_tool_calls_total",
				Help: "Dispatched tool calls by action and result status",
			},
			[]string{"action", "status"},
		),
		toolSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deckhand_tool_seconds",
				Help:    "Tool dispatch duration by action",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"action"},
		),
		executions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckhand_executions_total",
				Help: "Sandbox executions by outcome kind",
			},
			[]string{"outcome"},
		),
		execSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deckhand_execution_seconds",
				Help:    "Sandbox pipeline duration by execution mode",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"mode"},
		),
		editRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "deckhand_edit_retries_total",
			Help: "Self-corrective edit attempts after a failed edit round",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		m.turns,
		m.toolCalls,
		m.toolSeconds,
		m.executions,
		m.execSeconds,
		m.editRetries,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for embedders that mount their
// own handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// LoopHooks adapts the collectors to the runner's hook points.
func (m *Metrics) LoopHooks() runner.Hooks {
	return runner.Hooks{
		TurnDecided: func(string, int) { m.turns.Inc() },
		EditRetried: func(string) { m.editRetries.Inc() },
	}
}

// ObserveDispatch matches the router's observer signature.
func (m *Metrics) ObserveDispatch(action domain.ActionKind, isError bool, elapsed time.Duration) {
	status := "ok"
	if isError {
		status = "error"
	}
	m.toolCalls.WithLabelValues(action.String(), status).Inc()
	m.toolSeconds.WithLabelValues(action.String()).Observe(elapsed.Seconds())
}

// ObserveExecution matches the sandbox executor's observer signature.
func (m *Metrics) ObserveExecution(mode domain.ExecMode, kind domain.OutcomeKind, elapsed time.Duration) {
	m.executions.WithLabelValues(string(kind)).Inc()
	m.execSeconds.WithLabelValues(string(mode)).Observe(elapsed.Seconds())
}

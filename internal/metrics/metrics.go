package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	unitStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botvisor",
			Subsystem: "unit",
			Name:      "starts_total",
			Help:      "Number of successful unit process spawns.",
		}, []string{"unit"},
	)
	unitRestarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botvisor",
			Subsystem: "unit",
			Name:      "restarts_total",
			Help:      "Number of scheduled automatic restarts.",
		}, []string{"unit"},
	)
	unitExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botvisor",
			Subsystem: "unit",
			Name:      "exits_total",
			Help:      "Number of process exits by outcome (clean, unclean, error).",
		}, []string{"unit", "outcome"},
	)
	unitGaveUp = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "botvisor",
			Subsystem: "unit",
			Name:      "gave_up_total",
			Help:      "Number of times a unit exhausted its restart attempts.",
		}, []string{"unit"},
	)
	unitLive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "botvisor",
			Subsystem: "unit",
			Name:      "live",
			Help:      "1 while the unit has a live process, 0 otherwise.",
		}, []string{"unit"},
	)
	unitAttempts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "botvisor",
			Subsystem: "unit",
			Name:      "restart_attempts",
			Help:      "Current consecutive restart attempt count.",
		}, []string{"unit"},
	)
	unitRSS = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "botvisor",
			Subsystem: "unit",
			Name:      "resident_memory_bytes",
			Help:      "Resident set size sampled by the status report.",
		}, []string{"unit"},
	)
	historyDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "botvisor",
			Subsystem: "history",
			Name:      "dropped_total",
			Help:      "History events dropped because the export buffer was full.",
		},
	)
)

// Outcome labels for exits.
const (
	OutcomeClean   = "clean"
	OutcomeUnclean = "unclean"
	OutcomeError   = "error"
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{unitStarts, unitRestarts, unitExits, unitGaveUp, unitLive, unitAttempts, unitRSS, historyDropped}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves metrics of a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(unit string) {
	if regOK.Load() {
		unitStarts.WithLabelValues(unit).Inc()
	}
}

func IncRestart(unit string) {
	if regOK.Load() {
		unitRestarts.WithLabelValues(unit).Inc()
	}
}

func IncExit(unit, outcome string) {
	if regOK.Load() {
		unitExits.WithLabelValues(unit, outcome).Inc()
	}
}

func IncGaveUp(unit string) {
	if regOK.Load() {
		unitGaveUp.WithLabelValues(unit).Inc()
	}
}

func SetLive(unit string, live bool) {
	if regOK.Load() {
		v := 0.0
		if live {
			v = 1
		}
		unitLive.WithLabelValues(unit).Set(v)
	}
}

func SetRestartAttempts(unit string, n int) {
	if regOK.Load() {
		unitAttempts.WithLabelValues(unit).Set(float64(n))
	}
}

func SetRSS(unit string, bytes uint64) {
	if regOK.Load() {
		unitRSS.WithLabelValues(unit).Set(float64(bytes))
	}
}

func IncHistoryDropped() {
	if regOK.Load() {
		historyDropped.Inc()
	}
}

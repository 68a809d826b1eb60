// Package metrics exposes Prometheus collectors for the supervised server.
// Collectors are package-level; helpers are no-ops until Register succeeds.
package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	namespace = "ocsup"
	subsystem = "server"
)

// Start outcomes used as the "outcome" label of starts_total.
const (
	OutcomeSpawned = "spawned"
	OutcomeReused  = "reused"
	OutcomeFailed  = "failed"
	OutcomeAborted = "aborted"
)

var (
	regOK atomic.Bool

	starts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "starts_total",
			Help:      "Start attempts by outcome.",
		}, []string{"outcome"},
	)
	stops = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "stops_total",
			Help:      "Stops that terminated a live process.",
		},
	)
	crashes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "crashes_total",
			Help:      "Unexpected exits of a running server.",
		},
	)
	readiness = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "readiness_seconds",
			Help:      "Time from spawn until the health endpoint answered.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 5, 8, 13, 21, 34},
		},
	)
	healthProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "health_probes_total",
			Help:      "Health probes by result (healthy, unhealthy, error).",
		}, []string{"result"},
	)
	stateTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Number of supervisor state transitions.",
		}, []string{"from", "to"},
	)
	currentState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "current_state",
			Help:      "Current supervisor state (1 = active state, 0 = inactive).",
		}, []string{"state"},
	)

	cpuPercent = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: "cpu_percent",
		Help: "CPU usage of the server process.",
	})
	memoryRSS = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: "memory_rss_bytes",
		Help: "Resident set size of the server process.",
	})
	numThreads = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: subsystem, Name: "num_threads",
		Help: "Thread count of the server process.",
	})
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{starts, stops, crashes, readiness, healthProbes, stateTransitions, currentState, cpuPercent, memoryRSS, numThreads}
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

// Registered reports whether Register has succeeded.
func Registered() bool { return regOK.Load() }

// Handler serves the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves the given gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func IncStart(outcome string) {
	if regOK.Load() {
		starts.WithLabelValues(outcome).Inc()
	}
}

func IncStop() {
	if regOK.Load() {
		stops.Inc()
	}
}

func IncCrash() {
	if regOK.Load() {
		crashes.Inc()
	}
}

func ObserveReadiness(seconds float64) {
	if regOK.Load() {
		readiness.Observe(seconds)
	}
}

func IncHealthProbe(result string) {
	if regOK.Load() {
		healthProbes.WithLabelValues(result).Inc()
	}
}

func RecordStateTransition(from, to string) {
	if regOK.Load() {
		stateTransitions.WithLabelValues(from, to).Inc()
	}
}

// SetCurrentState marks state as the active one among all.
func SetCurrentState(state string, all []string) {
	if !regOK.Load() {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		currentState.WithLabelValues(s).Set(v)
	}
}

func setResources(s Sample) {
	if regOK.Load() {
		cpuPercent.Set(s.CPUPercent)
		memoryRSS.Set(float64(s.MemoryRSS))
		numThreads.Set(float64(s.NumThreads))
	}
}

func resetResources() {
	if regOK.Load() {
		cpuPercent.Set(0)
		memoryRSS.Set(0)
		numThreads.Set(0)
	}
}

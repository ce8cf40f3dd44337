// Package metrics holds the Prometheus collectors for CineGraph runs.
//
// Collectors live on a private registry rather than the global default so a
// process can build several Recorders (one per run, or one per test) without
// duplicate-registration panics. At the end of a run the registry can be
// written to a file in the text exposition format and picked up by a
// node_exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder owns a registry and the collectors registered on it.
type Recorder struct {
	registry *prometheus.Registry

	PhaseDuration *prometheus.HistogramVec
	Entities      *prometheus.GaugeVec
	Mutations     *prometheus.CounterVec
	LookupMisses  *prometheus.CounterVec
}

// NewRecorder creates a registry with all CineGraph collectors registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "cinegraph_phase_duration_seconds",
				Help:    "Duration of load, update and query phases in seconds",
				Buckets: prometheus.ExponentialBuckets(0.0005, 4, 10), // 0.5ms .. ~131s
			},
			[]string{"phase"},
		),
		Entities: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cinegraph_entities",
				Help: "Number of live entities in the store",
			},
			[]string{"kind"}, // movie, actor, director, role
		),
		Mutations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cinegraph_mutations_total",
				Help: "Entities touched by bulk mutations",
			},
			[]string{"op"},
		),
		LookupMisses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cinegraph_lookup_misses_total",
				Help: "Sampled ids that were not present in the store",
			},
			[]string{"query"},
		),
	}
	r.registry.MustRegister(r.PhaseDuration, r.Entities, r.Mutations, r.LookupMisses)
	return r
}

// Registry exposes the underlying registry (for gathering in tests).
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObservePhase records how long a phase took.
func (r *Recorder) ObservePhase(phase string, d time.Duration) {
	r.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

// SetEntities records the current size of one entity table.
func (r *Recorder) SetEntities(kind string, n int) {
	r.Entities.WithLabelValues(kind).Set(float64(n))
}

// AddMutations counts entities touched by a mutation.
func (r *Recorder) AddMutations(op string, n int) {
	r.Mutations.WithLabelValues(op).Add(float64(n))
}

// AddLookupMisses counts sampled ids that missed.
func (r *Recorder) AddLookupMisses(query string, n int) {
	r.LookupMisses.WithLabelValues(query).Add(float64(n))
}

// WriteFile writes every collector to path in the Prometheus text format.
func (r *Recorder) WriteFile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}

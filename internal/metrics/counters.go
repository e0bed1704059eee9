package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "osmwrangle"

// Counters are the per-run totals, kept on a private registry so tests and
// repeated runs in one process do not collide
type Counters struct {
	registry *prometheus.Registry

	// Elements by type (node, way, relation) and outcome (emitted or a skip reason)
	Elements *prometheus.CounterVec
	// Tags by outcome (written or a reject reason)
	Tags *prometheus.CounterVec
	// Unrecognized values replaced by the sentinel, by normalizer rule
	Unrecognized *prometheus.CounterVec
	// Rows written, by table
	Rows *prometheus.CounterVec
	// DanglingRefs counts way node refs whose node was never emitted
	DanglingRefs prometheus.Counter
}

// NewCounters registers a fresh set of counters
func NewCounters() *Counters {
	c := &Counters{
		registry: prometheus.NewRegistry(),
		Elements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "elements_total",
			Help:      "Source elements seen, by type and outcome.",
		}, []string{"type", "outcome"}),
		Tags: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tags_total",
			Help:      "Tags of emitted elements, by outcome.",
		}, []string{"outcome"}),
		Unrecognized: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unrecognized_values_total",
			Help:      "Values replaced by the sentinel, by normalizer rule.",
		}, []string{"rule"}),
		Rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Rows written, by table.",
		}, []string{"table"}),
		DanglingRefs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dangling_node_refs_total",
			Help:      "Way node references to nodes that were not emitted earlier in the input.",
		}),
	}

	c.registry.MustRegister(c.Elements, c.Tags, c.Unrecognized, c.Rows, c.DanglingRefs)
	return c
}

// Registry exposes the underlying registry
func (c *Counters) Registry() *prometheus.Registry {
	return c.registry
}

// WriteFile writes all counters in the text exposition format
func (c *Counters) WriteFile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("failed to write metrics file: %w", err)
	}
	return nil
}

// Package metrics exports step execution counters and durations in the
// Prometheus format.
package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/systemstart/steppipe/pkg/steps"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "steppipe"

// Collector counts step executions. It implements steps.Observer and keeps
// its own registry so several collectors do not clash.
type Collector struct {
	registry *prometheus.Registry

	Executions *prometheus.CounterVec
	Duration   *prometheus.HistogramVec
	Active     *prometheus.GaugeVec
}

// NewCollector registers the step metrics under namespace.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		Executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_executions_total",
			Help:      "Total number of step executions by final status",
		}, []string{"class", "status"}),
		Duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Duration of step executions in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"class"}),
		Active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "steps_active",
			Help:      "Number of steps currently running",
		}, []string{"class"}),
	}
	reg.MustRegister(c.Executions, c.Duration, c.Active)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) StepStarted(_ context.Context, step *steps.Instance) {
	c.Active.WithLabelValues(step.Class().Name).Inc()
}

func (c *Collector) StepFinished(_ context.Context, step *steps.Instance, res *steps.Result) {
	class := step.Class().Name
	c.Executions.WithLabelValues(class, string(res.Status)).Inc()
	if res.Status == steps.StatusSkipped {
		return
	}
	c.Active.WithLabelValues(class).Dec()
	c.Duration.WithLabelValues(class).Observe(res.Elapsed.Seconds())
}

// WriteTextfile writes the current values in the text exposition format,
// for pickup by a node exporter textfile collector.
func (c *Collector) WriteTextfile(filename string) error {
	if err := prometheus.WriteToTextfile(filename, c.registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", filename, err)
	}
	return nil
}

var _ steps.Observer = (*Collector)(nil)

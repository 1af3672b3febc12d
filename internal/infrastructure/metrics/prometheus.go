package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder exports workflow metrics on its own registry
type Recorder struct {
	registry      *prometheus.Registry
	transitions   *prometheus.CounterVec
	bulkBatchSize prometheus.Histogram
	slaReminders  prometheus.Counter
}

// NewRecorder registers the workflow collectors under namespace
func NewRecorder(namespace string) *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoice_transitions_total",
				Help:      "Invoice status transitions by source, target and outcome",
			},
			[]string{"from", "to", "outcome"},
		),
		bulkBatchSize: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invoice_bulk_batch_size",
				Help:      "Number of invoices per bulk transition request",
				Buckets:   []float64{1, 2, 5, 10, 20, 50},
			},
		),
		slaReminders: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invoice_sla_reminders_total",
				Help:      "SLA reminders emitted for invoices waiting on a manager",
			},
		),
	}

	r.registry.MustRegister(
		r.transitions,
		r.bulkBatchSize,
		r.slaReminders,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveTransition counts one transition attempt
func (r *Recorder) ObserveTransition(from, to, outcome string) {
	r.transitions.WithLabelValues(from, to, outcome).Inc()
}

// ObserveBulk records the size of a bulk request
func (r *Recorder) ObserveBulk(size int) {
	r.bulkBatchSize.Observe(float64(size))
}

// ObserveSLAReminder counts one emitted reminder
func (r *Recorder) ObserveSLAReminder() {
	r.slaReminders.Inc()
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

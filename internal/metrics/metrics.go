// Package metrics exposes prometheus collectors for loan operations.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "amortization"

// Metrics groups the collectors recorded by the service and scheduler
type Metrics struct {
	registry *prometheus.Registry

	LoansCreated        prometheus.Counter
	PaymentsApplied     *prometheus.CounterVec
	Refinances          prometheus.Counter
	OperationErrors     *prometheus.CounterVec
	OverdueInstallments prometheus.Gauge
	OverdueLoans        prometheus.Gauge
	OperationDuration   *prometheus.HistogramVec
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		LoansCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loans_created_total",
			Help:      "Loans created with a generated schedule.",
		}),
		PaymentsApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payments_applied_total",
			Help:      "Payments applied, by kind (scheduled, extra_principal, unscheduled).",
		}, []string{"kind"}),
		Refinances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refinances_total",
			Help:      "Plans rebuilt by a refinance.",
		}),
		OperationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed loan operations, by operation and error code.",
		}, []string{"operation", "code"}),
		OverdueInstallments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overdue_installments",
			Help:      "Pending installments past their due date at the last sweep.",
		}),
		OverdueLoans: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "overdue_loans",
			Help:      "Loans with at least one overdue installment at the last sweep.",
		}),
		OperationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of loan operations including persistence.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	m.registry.MustRegister(
		m.LoansCreated,
		m.PaymentsApplied,
		m.Refinances,
		m.OperationErrors,
		m.OverdueInstallments,
		m.OverdueLoans,
		m.OperationDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mostly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Package metrics exposes purchase outcomes for Prometheus scraping. It uses its
// own registry so tests and multiple servers in one process do not collide.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Recorder struct {
	registry *prometheus.Registry

	purchasesTotal  *prometheus.CounterVec
	flagUnlocks     prometheus.Counter
	chargedAmount   prometheus.Histogram
	sessionsCreated prometheus.Counter
}

func NewRecorder(preset string) *Recorder {
	registry := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"preset": preset}

	r := &Recorder{
		registry: registry,
		purchasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name:        "logicshop_purchases_total",
				Help:        "Purchase attempts by outcome",
				ConstLabels: constLabels,
			},
			[]string{"outcome"},
		),
		flagUnlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "logicshop_flag_unlocks_total",
			Help:        "Purchases that satisfied the unlock predicate",
			ConstLabels: constLabels,
		}),
		chargedAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "logicshop_charged_amount",
			Help:        "Amount deducted per committed purchase; negative values are credits",
			ConstLabels: constLabels,
			Buckets:     []float64{-1000, -100, 0, 50, 100, 250, 500, 1000},
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "logicshop_sessions_created_total",
			Help:        "Sessions issued by login",
			ConstLabels: constLabels,
		}),
	}

	registry.MustRegister(r.purchasesTotal, r.flagUnlocks, r.chargedAmount, r.sessionsCreated)
	return r
}

// PurchaseCommitted records a successful purchase of amount.
func (r *Recorder) PurchaseCommitted(amount float64, unlocked bool) {
	if r == nil {
		return
	}
	r.purchasesTotal.WithLabelValues("completed").Inc()
	r.chargedAmount.Observe(amount)
	if unlocked {
		r.flagUnlocks.Inc()
	}
}

// PurchaseRejected records a rejection under the given reason.
func (r *Recorder) PurchaseRejected(reason string) {
	if r == nil {
		return
	}
	r.purchasesTotal.WithLabelValues(reason).Inc()
}

func (r *Recorder) SessionCreated() {
	if r == nil {
		return
	}
	r.sessionsCreated.Inc()
}

// Handler serves the recorder's registry.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Registry exposes the underlying registry for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

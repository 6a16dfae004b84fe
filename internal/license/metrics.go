package license

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Activation outcomes recorded in metrics.
const (
	outcomeActivated        = "activated"
	outcomeIdempotent       = "idempotent"
	outcomeInvalidFormat    = "invalid_format"
	outcomeNotFound         = "not_found"
	outcomeAlreadyClaimed   = "already_claimed"
	outcomeHardwareMismatch = "hardware_mismatch"
	outcomeStoreError       = "store_error"
)

// Metrics holds the registry's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so the registry works without a registerer
// in tests.
type Metrics struct {
	Activations *prometheus.CounterVec
	Sweeps      prometheus.Counter
	Issued      prometheus.Counter
}

// NewMetrics registers the license collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Activations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "avion",
			Subsystem: "license",
			Name:      "activations_total",
			Help:      "License activation attempts by outcome.",
		}, []string{"outcome"}),
		Sweeps: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "avion",
			Subsystem: "license",
			Name:      "sweeps_total",
			Help:      "Expired licenses marked inactive by the lazy sweep.",
		}),
		Issued: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "avion",
			Subsystem: "license",
			Name:      "keys_issued_total",
			Help:      "License keys issued.",
		}),
	}
}

func (m *Metrics) observeActivation(outcome string) {
	if m == nil {
		return
	}
	m.Activations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) observeSweep() {
	if m == nil {
		return
	}
	m.Sweeps.Inc()
}

func (m *Metrics) observeIssued() {
	if m == nil {
		return
	}
	m.Issued.Inc()
}

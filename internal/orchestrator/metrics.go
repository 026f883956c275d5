package orchestrator

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/emendhq/emend/pkg/docket"
)

// Metrics are the engine's Prometheus counters, registered on a private
// registry exposed through the health server's /metrics endpoint.
type Metrics struct {
	registry *prometheus.Registry

	sectionsIngested   prometheus.Counter
	proposalsCreated   prometheus.Counter
	generationFailures prometheus.Counter
	quorumFailures     prometheus.Counter
	validations        *prometheus.CounterVec
	auditAppends       prometheus.Counter
}

// NewMetrics creates and registers the engine counters.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		sectionsIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emend_sections_ingested_total",
			Help: "Sections received on the bus and audited.",
		}),
		proposalsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emend_proposals_created_total",
			Help: "Proposals drafted and persisted.",
		}),
		generationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emend_generation_failures_total",
			Help: "Sections whose proposal generation failed or was rejected.",
		}),
		quorumFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emend_quorum_failures_total",
			Help: "Review rounds that failed to reach quorum.",
		}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "emend_validations_total",
			Help: "Validations finalized, by terminal status.",
		}, []string{"status"}),
		auditAppends: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "emend_audit_appends_total",
			Help: "Audit records appended by the engine.",
		}),
	}

	registry.MustRegister(
		m.sectionsIngested,
		m.proposalsCreated,
		m.generationFailures,
		m.quorumFailures,
		m.validations,
		m.auditAppends,
	)

	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) validationFinalized(status docket.ProposalStatus) {
	m.validations.WithLabelValues(string(status)).Inc()
}

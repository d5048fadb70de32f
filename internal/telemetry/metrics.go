package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Protocol outcome counters, exposed via the /metrics endpoint.
var (
	PaymentsGranted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_payments_granted_total",
		Help: "Payments that passed validation, settlement, replay, and reputation checks.",
	})

	PaymentsDenied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_payments_denied_total",
		Help: "Payments denied, labeled by protocol error code.",
	}, []string{"code"})

	ReplaysDetected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_replays_detected_total",
		Help: "Proofs rejected because the transaction identifier was already consumed.",
	})

	ChallengesIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_challenges_issued_total",
		Help: "Payment challenges issued, including re-issues on error paths.",
	})

	EvidencePublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "gateway_evidence_published_total",
		Help: "Payment evidence records published to the provenance topic.",
	})
)

package interfaces

import (
	"context"
	"errors"

	"github.com/dotrep/payment-gateway/internal/models"
)

// ErrTxNotFound is returned by a LedgerClient when a reachable ledger
// affirmatively reports the transaction does not exist. It is distinct from
// an outage: the proof is unsettled, not undecidable.
var ErrTxNotFound = errors.New("transaction not found on ledger")

// SettlementProvider is a delegated third party that can execute or attest
// to a payment without the gateway reading the ledger directly.
type SettlementProvider interface {
	Name() string
	SupportedChains() []string
	Pay(ctx context.Context, request *models.PaymentRequest, payer string) (*models.ProviderReceipt, error)
	Verify(ctx context.Context, txID, chain string) (*models.ProviderVerification, error)
}

// LedgerClient answers transaction-confirmation queries per chain.
type LedgerClient interface {
	// Confirmations returns the confirmation count for a transaction, or an
	// error when the transaction or the ledger endpoint is unavailable.
	Confirmations(ctx context.Context, chain, txID string) (int64, error)
}

// ReputationClient is the opaque query interface of the reputation store.
type ReputationClient interface {
	QueryReputation(ctx context.Context, id string) (*models.ReputationSnapshot, error)
	QueryPaymentGraph(ctx context.Context, id string, limit int) ([]models.PaymentEdge, error)
}

// EvidencePublisher publishes provenance records for verified payments.
type EvidencePublisher interface {
	Publish(ctx context.Context, evidence *models.PaymentEvidence) error
}

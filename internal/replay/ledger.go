// Package replay enforces at-most-once consumption of settled transaction
// identifiers.
package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/dotrep/payment-gateway/internal/interfaces"
	"github.com/dotrep/payment-gateway/internal/models"
)

// Ledger guards transaction identifiers. It must be invoked strictly after
// settlement is verified and strictly before evidence publication.
type Ledger struct {
	store interfaces.ReplayStore
	now   func() time.Time
}

func NewLedger(store interfaces.ReplayStore) *Ledger {
	return &Ledger{store: store, now: time.Now}
}

// TryConsume records the txID and returns true, or returns false when the
// identifier was already consumed. The underlying store guarantees the
// check-and-insert is atomic, so no two concurrent submissions of the same
// txID can both pass this gate.
func (l *Ledger) TryConsume(ctx context.Context, txID string, payer, chain, resource string) (bool, error) {
	meta := models.ReplayMeta{
		Payer:      payer,
		Chain:      chain,
		Resource:   resource,
		ConsumedAt: l.now(),
	}
	accepted, err := l.store.PutIfAbsent(ctx, txID, meta)
	if err != nil {
		return false, fmt.Errorf("replay ledger: %w", err)
	}
	return accepted, nil
}

package interfaces

import (
	"context"
	"time"

	"github.com/dotrep/payment-gateway/internal/models"
)

// ChallengeStore holds outstanding payment challenges. Implementations must
// make TakeAndDelete atomic so a challenge can be consumed at most once.
type ChallengeStore interface {
	Put(ctx context.Context, challenge *models.PaymentChallenge) error
	// TakeAndDelete removes and returns the challenge, or (nil, nil) when
	// the token is unknown.
	TakeAndDelete(ctx context.Context, token string) (*models.PaymentChallenge, error)
	// Sweep removes challenges expired before now and reports how many.
	Sweep(ctx context.Context, now time.Time) (int, error)
}

// ReplayStore guards settled transaction identifiers. PutIfAbsent must be an
// atomic check-and-insert, never a read-then-write pair.
type ReplayStore interface {
	// PutIfAbsent records the txID and returns true, or returns false when
	// the key already exists.
	PutIfAbsent(ctx context.Context, txID string, meta models.ReplayMeta) (bool, error)
}

// SessionStore holds billing sessions. Mutate runs fn inside a per-key
// critical section so concurrent calls against one session serialize.
type SessionStore interface {
	Create(ctx context.Context, session *models.BillingSession) error
	Get(ctx context.Context, sessionID string) (*models.BillingSession, error)
	Mutate(ctx context.Context, sessionID string, fn func(*models.BillingSession) error) error
}

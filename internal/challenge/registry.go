// Package challenge issues and consumes the single-use payment challenges
// that bind a payment request to a later proof.
package challenge

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dotrep/payment-gateway/internal/interfaces"
	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/protocolerr"
	"github.com/dotrep/payment-gateway/internal/telemetry"
)

// Registry issues unique, time-bounded challenges bound to a policy.
type Registry struct {
	store  interfaces.ChallengeStore
	expiry time.Duration
	now    func() time.Time
}

func NewRegistry(store interfaces.ChallengeStore, expiry time.Duration) *Registry {
	return &Registry{store: store, expiry: expiry, now: time.Now}
}

// Issue creates a fresh challenge for the policy. Nonces are never reused
// or extended.
func (r *Registry) Issue(ctx context.Context, policy models.PaymentPolicy) (*models.PaymentChallenge, error) {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	now := r.now()
	challenge := &models.PaymentChallenge{
		Challenge: uuid.NewString(),
		Nonce:     hex.EncodeToString(nonce),
		IssuedAt:  now,
		ExpiresAt: now.Add(r.expiry),
		Policy:    policy,
	}
	if err := r.store.Put(ctx, challenge); err != nil {
		return nil, fmt.Errorf("store challenge: %w", err)
	}
	return challenge, nil
}

// Consume removes the challenge from the registry and returns it. An
// expired or unknown challenge is permanently invalid.
func (r *Registry) Consume(ctx context.Context, token string) (*models.PaymentChallenge, error) {
	challenge, err := r.store.TakeAndDelete(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("consume challenge: %w", err)
	}
	if challenge == nil {
		return nil, protocolerr.ChallengeExpired("challenge is unknown or already consumed")
	}
	if challenge.Expired(r.now()) {
		return nil, protocolerr.ChallengeExpired("challenge has expired")
	}
	return challenge, nil
}

// StartSweeper evicts expired challenges until ctx is canceled.
func (r *Registry) StartSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := r.store.Sweep(ctx, r.now())
				if err != nil {
					telemetry.Logger.Warn("Challenge sweep failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					telemetry.Logger.Debug("Swept expired challenges", zap.Int("removed", removed))
				}
			}
		}
	}()
}

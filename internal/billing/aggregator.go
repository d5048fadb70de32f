// Package billing accumulates metered calls into sessions and converts the
// accrual into payment requests the gateway can process.
package billing

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dotrep/payment-gateway/internal/challenge"
	"github.com/dotrep/payment-gateway/internal/interfaces"
	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/protocolerr"
	"github.com/dotrep/payment-gateway/internal/telemetry"
)

// Aggregator manages deferred-billing sessions.
type Aggregator struct {
	store            interfaces.SessionStore
	challenges       *challenge.Registry
	basePolicy       models.PaymentPolicy
	maxCalls         int
	billingInterval  time.Duration
	minBillingAmount *big.Rat
	sessionExpiry    time.Duration
	now              func() time.Time
}

func NewAggregator(
	store interfaces.SessionStore,
	challenges *challenge.Registry,
	basePolicy models.PaymentPolicy,
	maxCalls int,
	billingInterval time.Duration,
	minBillingAmount string,
	sessionExpiry time.Duration,
) (*Aggregator, error) {
	minAmount, err := models.ParseAmount(minBillingAmount)
	if err != nil {
		return nil, fmt.Errorf("minimum billing amount: %w", err)
	}
	return &Aggregator{
		store:            store,
		challenges:       challenges,
		basePolicy:       basePolicy,
		maxCalls:         maxCalls,
		billingInterval:  billingInterval,
		minBillingAmount: minAmount,
		sessionExpiry:    sessionExpiry,
		now:              time.Now,
	}, nil
}

// CreateSession opens a new accrual session for the payer.
func (a *Aggregator) CreateSession(ctx context.Context, payer string) (*models.BillingSession, error) {
	now := a.now()
	session := &models.BillingSession{
		SessionID:    uuid.NewString(),
		Payer:        payer,
		CreatedAt:    now,
		ExpiresAt:    now.Add(a.sessionExpiry),
		LastBilledAt: now,
		TotalAmount:  new(big.Rat),
		Status:       models.SessionActive,
	}
	if err := a.store.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	telemetry.Logger.Info("Billing session created",
		zap.String("session_id", session.SessionID),
		zap.String("payer", payer),
	)
	return session, nil
}

// RecordCall accrues one metered call. It returns a bill outcome when the
// billing interval elapsed and an interval bill was auto-triggered.
func (a *Aggregator) RecordCall(ctx context.Context, sessionID string, call models.MeteredCall) (*models.BillOutcome, error) {
	amount, err := models.ParseAmount(call.Amount)
	if err != nil {
		return nil, protocolerr.MalformedProof("metered call amount invalid").WithField("amount", err.Error())
	}
	if call.Timestamp.IsZero() {
		call.Timestamp = a.now()
	}

	intervalDue := false
	err = a.store.Mutate(ctx, sessionID, func(s *models.BillingSession) error {
		if s.Status != models.SessionActive {
			return protocolerr.SessionLimit(fmt.Sprintf("session is %s", s.Status))
		}
		now := a.now()
		if now.After(s.ExpiresAt) {
			s.Status = models.SessionExpired
			return protocolerr.SessionLimit("session has expired")
		}
		if len(s.Calls) >= a.maxCalls {
			return protocolerr.SessionLimit(fmt.Sprintf("session call limit %d reached", a.maxCalls))
		}
		s.Calls = append(s.Calls, call)
		if s.TotalAmount == nil {
			s.TotalAmount = new(big.Rat)
		}
		s.TotalAmount.Add(s.TotalAmount, amount)
		intervalDue = now.Sub(s.LastBilledAt) >= a.billingInterval
		return nil
	})
	if err != nil {
		return nil, err
	}

	if intervalDue {
		outcome, err := a.BillSession(ctx, sessionID, false)
		if err != nil {
			telemetry.Logger.Warn("Interval billing failed",
				zap.String("session_id", sessionID), zap.Error(err))
			return nil, nil
		}
		return outcome, nil
	}
	return nil, nil
}

// BillSession converts the accrual into a payment request. Below the
// minimum billing amount the session is not billable; the accrual is
// discarded only when the session is also being closed.
func (a *Aggregator) BillSession(ctx context.Context, sessionID string, closeSession bool) (*models.BillOutcome, error) {
	var outcome *models.BillOutcome
	var billPolicy *models.PaymentPolicy

	err := a.store.Mutate(ctx, sessionID, func(s *models.BillingSession) error {
		if s.Status != models.SessionActive {
			return fmt.Errorf("session %s is %s, not billable", sessionID, s.Status)
		}
		if s.TotalAmount == nil {
			s.TotalAmount = new(big.Rat)
		}

		if s.TotalAmount.Cmp(a.minBillingAmount) < 0 {
			outcome = &models.BillOutcome{
				SessionID: sessionID,
				Billable:  false,
				CallCount: len(s.Calls),
				Status:    s.Status,
			}
			if closeSession {
				s.Calls = nil
				s.TotalAmount = new(big.Rat)
				s.Status = models.SessionClosed
				outcome.Status = s.Status
			}
			return nil
		}

		policy := a.basePolicy
		policy.Amount = s.TotalAmountString()
		policy.Resource = fmt.Sprintf("billing:%s", sessionID)
		billPolicy = &policy

		outcome = &models.BillOutcome{
			SessionID: sessionID,
			Billable:  true,
			Amount:    policy.Amount,
			CallCount: len(s.Calls),
		}

		now := a.now()
		s.LastBilledAt = now
		if closeSession {
			s.Status = models.SessionBilling
		} else {
			s.Calls = nil
			s.TotalAmount = new(big.Rat)
		}
		outcome.Status = s.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	if billPolicy != nil {
		issued, err := a.challenges.Issue(ctx, *billPolicy)
		if err != nil {
			return nil, fmt.Errorf("issue billing challenge: %w", err)
		}
		outcome.Request = models.NewPaymentRequest(issued)
		telemetry.Logger.Info("Billing session billed",
			zap.String("session_id", sessionID),
			zap.String("amount", outcome.Amount),
			zap.Bool("closing", closeSession),
		)
	}
	return outcome, nil
}

// MarkPaid records settlement of an outstanding bill.
func (a *Aggregator) MarkPaid(ctx context.Context, sessionID string) error {
	return a.store.Mutate(ctx, sessionID, func(s *models.BillingSession) error {
		if s.Status != models.SessionBilling {
			return fmt.Errorf("session %s has no outstanding bill", sessionID)
		}
		s.Status = models.SessionPaid
		return nil
	})
}

// GetSession returns a copy of the session.
func (a *Aggregator) GetSession(ctx context.Context, sessionID string) (*models.BillingSession, error) {
	return a.store.Get(ctx, sessionID)
}

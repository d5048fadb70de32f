package models

import (
	"math/big"
	"time"
)

// SessionStatus is the billing session lifecycle state.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionBilling SessionStatus = "billing"
	SessionPaid    SessionStatus = "paid"
	SessionExpired SessionStatus = "expired"
	SessionClosed  SessionStatus = "closed"
)

// MeteredCall is one accrued call within a billing session.
type MeteredCall struct {
	Resource  string    `json:"resource"`
	Amount    string    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// BillingSession accumulates metered calls for deferred payment.
type BillingSession struct {
	SessionID    string        `json:"session_id"`
	Payer        string        `json:"payer"`
	CreatedAt    time.Time     `json:"created_at"`
	ExpiresAt    time.Time     `json:"expires_at"`
	LastBilledAt time.Time     `json:"last_billed_at"`
	Calls        []MeteredCall `json:"calls"`
	TotalAmount  *big.Rat      `json:"-"`
	Status       SessionStatus `json:"status"`
}

// TotalAmountString renders the accrued total as a decimal string.
func (s *BillingSession) TotalAmountString() string {
	if s.TotalAmount == nil {
		return "0"
	}
	return trimRat(s.TotalAmount)
}

// BillOutcome is the result of billing a session.
type BillOutcome struct {
	SessionID string          `json:"session_id"`
	Billable  bool            `json:"billable"`
	Amount    string          `json:"amount,omitempty"`
	CallCount int             `json:"call_count"`
	Request   *PaymentRequest `json:"payment_request,omitempty"`
	Status    SessionStatus   `json:"status"`
}

// trimRat formats a rational without trailing zeros.
func trimRat(r *big.Rat) string {
	s := r.FloatString(18)
	for len(s) > 0 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if len(s) > 0 && s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}

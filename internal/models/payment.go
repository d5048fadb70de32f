package models

import (
	"fmt"
	"math/big"
	"regexp"
	"time"
)

// PaymentPolicy describes what a protected resource charges.
type PaymentPolicy struct {
	Resource        string   `json:"resource"`
	Amount          string   `json:"amount"`
	Currency        string   `json:"currency"`
	Recipient       string   `json:"recipient"`
	SupportedChains []string `json:"supported_chains"`
	ProviderHint    string   `json:"provider_hint,omitempty"`

	// Reputation requirements enforced after settlement.
	MinReputationScore      float64 `json:"min_reputation_score"`
	MinPaymentCount         int     `json:"min_payment_count"`
	MinTotalValue           float64 `json:"min_total_value"`
	RequireVerifiedIdentity bool    `json:"require_verified_identity"`
	BlockSybil              bool    `json:"block_sybil"`
	MinRecipientTrust       string  `json:"min_recipient_trust,omitempty"`
}

// PolicyTransform is applied to a copy of the policy before the state
// machine runs, so per-request overrides never touch the shared policy.
type PolicyTransform func(PaymentPolicy) PaymentPolicy

// PaymentChallenge is a single-use, time-bounded token binding a payment
// request to a specific later proof.
type PaymentChallenge struct {
	Challenge string        `json:"challenge"`
	Nonce     string        `json:"nonce"`
	IssuedAt  time.Time     `json:"issued_at"`
	ExpiresAt time.Time     `json:"expires_at"`
	Policy    PaymentPolicy `json:"policy"`
}

// Expired reports whether the challenge is past its validity window.
func (c *PaymentChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// PaymentRequest is a challenge rendered with its policy for the client.
type PaymentRequest struct {
	Challenge       string   `json:"challenge"`
	Nonce           string   `json:"nonce"`
	Amount          string   `json:"amount"`
	Currency        string   `json:"currency"`
	Recipient       string   `json:"recipient"`
	SupportedChains []string `json:"supported_chains"`
	ProviderHint    string   `json:"provider_hint,omitempty"`
	ExpiresAt       string   `json:"expires_at"`
}

// NewPaymentRequest renders a challenge and its policy for transmission.
func NewPaymentRequest(c *PaymentChallenge) *PaymentRequest {
	return &PaymentRequest{
		Challenge:       c.Challenge,
		Nonce:           c.Nonce,
		Amount:          c.Policy.Amount,
		Currency:        c.Policy.Currency,
		Recipient:       c.Policy.Recipient,
		SupportedChains: c.Policy.SupportedChains,
		ProviderHint:    c.Policy.ProviderHint,
		ExpiresAt:       c.ExpiresAt.UTC().Format(time.RFC3339),
	}
}

// ProofSignature is the structured authorization signed by the payer.
type ProofSignature struct {
	Signature   string `json:"signature"`
	ValidAfter  int64  `json:"valid_after"`
	ValidBefore int64  `json:"valid_before"`
	Nonce       string `json:"nonce"`
}

// PaymentProof is the client-supplied proof of payment for one challenge.
type PaymentProof struct {
	TxID        string          `json:"tx_id"`
	Chain       string          `json:"chain"`
	Payer       string          `json:"payer"`
	Amount      string          `json:"amount"`
	Currency    string          `json:"currency"`
	Recipient   string          `json:"recipient,omitempty"`
	Challenge   string          `json:"challenge"`
	Signature   *ProofSignature `json:"signature,omitempty"`
	ProviderSig string          `json:"provider_sig,omitempty"`
	Provider    string          `json:"provider,omitempty"`
}

// SettlementMethod identifies how settlement was confirmed.
type SettlementMethod string

const (
	SettlementMethodProvider SettlementMethod = "provider"
	SettlementMethodLedger   SettlementMethod = "ledger"
	SettlementMethodPending  SettlementMethod = "pending"
)

// SettlementResult is the transient outcome of one settlement evaluation.
type SettlementResult struct {
	Verified      bool             `json:"verified"`
	Method        SettlementMethod `json:"method"`
	Confirmations int64            `json:"confirmations,omitempty"`
	Degraded      bool             `json:"degraded,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// ReplayMeta is recorded alongside a consumed transaction identifier.
type ReplayMeta struct {
	Payer      string    `json:"payer"`
	Chain      string    `json:"chain"`
	Resource   string    `json:"resource"`
	ConsumedAt time.Time `json:"consumed_at"`
}

// PaymentEvidence is the immutable attestation derived from exactly one
// verified proof. It is published at most once per transaction identifier.
type PaymentEvidence struct {
	ID        string    `json:"id"`
	TxID      string    `json:"tx_id"`
	Chain     string    `json:"chain"`
	Payer     string    `json:"payer"`
	Recipient string    `json:"recipient"`
	Amount    string    `json:"amount"`
	Currency  string    `json:"currency"`
	Resource  string    `json:"resource"`
	Verified  bool      `json:"verified"`
	Degraded  bool      `json:"degraded,omitempty"`
	Published bool      `json:"published"`
	IssuedAt  time.Time `json:"issued_at"`
}

// decimalAmount limits amounts to plain decimal notation. big.Rat would
// also accept fractions ("3/4") and exponents ("2e-3").
var decimalAmount = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?$`)

// ParseAmount parses a decimal amount string, rejecting zero and negatives.
func ParseAmount(s string) (*big.Rat, error) {
	if !decimalAmount.MatchString(s) {
		return nil, fmt.Errorf("amount %q is not a decimal", s)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("amount %q is not a decimal", s)
	}
	if r.Sign() <= 0 {
		return nil, fmt.Errorf("amount %q is not positive", s)
	}
	return r, nil
}

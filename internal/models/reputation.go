package models

import "time"

// ReputationSnapshot is the cached view of a payer's standing. Snapshots are
// never mutated in place; cache expiry triggers a fresh fetch.
type ReputationSnapshot struct {
	ID               string    `json:"id"`
	Score            float64   `json:"score"`
	PaymentCount     int       `json:"payment_count"`
	TotalValue       float64   `json:"total_value"`
	VerifiedIdentity bool      `json:"verified_identity"`
	FetchedAt        time.Time `json:"fetched_at"`
}

// PaymentEdge is one edge of the payment graph.
type PaymentEdge struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    float64   `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

// RiskLevel buckets an analytical score.
type RiskLevel string

const (
	RiskLevelLow    RiskLevel = "low"
	RiskLevelMedium RiskLevel = "medium"
	RiskLevelHigh   RiskLevel = "high"
)

// SybilAnalysis is derived per evaluation from the payer's recent history.
// It is never persisted.
type SybilAnalysis struct {
	Payer            string    `json:"payer"`
	PaymentCount     int       `json:"payment_count"`
	UniqueRecipients int       `json:"unique_recipients"`
	MeanAmount       float64   `json:"mean_amount"`
	RecentHourCount  int       `json:"recent_hour_count"`
	RiskScore        int       `json:"risk_score"`
	RiskLevel        RiskLevel `json:"risk_level"`
}

// PaymentWeightedTrust is the recipient trust derived from payments to the
// recipient, weighted by the reputation of the respective payers.
type PaymentWeightedTrust struct {
	Recipient     string    `json:"recipient"`
	WeightedScore float64   `json:"weighted_score"`
	TotalReceived float64   `json:"total_received"`
	TrustLevel    RiskLevel `json:"trust_level"`
}

// GateChecks records the individual pass/fail flags of an evaluation.
type GateChecks struct {
	ReputationScore bool `json:"reputationScore"`
	PaymentCount    bool `json:"paymentCount"`
	TotalValue      bool `json:"totalValue"`
	Identity        bool `json:"identity"`
	Sybil           bool `json:"sybil"`
	RecipientTrust  bool `json:"recipientTrust"`
}

// GateVerdict is the allow/deny outcome of the reputation gate.
type GateVerdict struct {
	Allowed    bool                  `json:"allowed"`
	Reason     string                `json:"reason,omitempty"`
	Unknown    bool                  `json:"unknown,omitempty"`
	Checks     GateChecks            `json:"checks"`
	Reputation *ReputationSnapshot   `json:"reputation,omitempty"`
	Sybil      *SybilAnalysis        `json:"sybil,omitempty"`
	Trust      *PaymentWeightedTrust `json:"trust,omitempty"`
}

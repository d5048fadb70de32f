package reputation

import (
	"time"

	"github.com/dotrep/payment-gateway/internal/models"
)

// graphWindow bounds how much payment history an analysis reads.
const graphWindow = 100

// Sybil risk weights. Scores at or above 70 are high, 40 medium.
const (
	sybilSingleRecipientWeight = 30
	sybilBurstWeight           = 40
	sybilDustWeight            = 20
)

// ComputeSybil derives the sybil analysis from the payer's recent outgoing
// payments. It is deterministic for a fixed edge set and clock.
func ComputeSybil(payer string, edges []models.PaymentEdge, now time.Time) *models.SybilAnalysis {
	if len(edges) > graphWindow {
		edges = edges[:graphWindow]
	}

	analysis := &models.SybilAnalysis{Payer: payer, RiskLevel: models.RiskLevelLow}

	recipients := make(map[string]struct{})
	var total float64
	hourAgo := now.Add(-time.Hour)
	for _, e := range edges {
		if e.From != payer {
			continue
		}
		analysis.PaymentCount++
		recipients[e.To] = struct{}{}
		total += e.Amount
		if e.Timestamp.After(hourAgo) {
			analysis.RecentHourCount++
		}
	}
	analysis.UniqueRecipients = len(recipients)
	if analysis.PaymentCount > 0 {
		analysis.MeanAmount = total / float64(analysis.PaymentCount)
	}

	if analysis.UniqueRecipients == 1 && analysis.PaymentCount > 10 && analysis.MeanAmount < 1.0 {
		analysis.RiskScore += sybilSingleRecipientWeight
	}
	if analysis.RecentHourCount > 20 {
		analysis.RiskScore += sybilBurstWeight
	}
	if analysis.MeanAmount < 0.10 && analysis.PaymentCount > 5 {
		analysis.RiskScore += sybilDustWeight
	}

	switch {
	case analysis.RiskScore >= 70:
		analysis.RiskLevel = models.RiskLevelHigh
	case analysis.RiskScore >= 40:
		analysis.RiskLevel = models.RiskLevelMedium
	}
	return analysis
}

// defaultPayerReputation is assumed for payers with no stored snapshot.
const defaultPayerReputation = 0.5

// ComputeTrust derives payment-weighted recipient trust: each received
// payment contributes its amount weighted by the sending payer's reputation.
func ComputeTrust(recipient string, edges []models.PaymentEdge, payerScore func(id string) (float64, bool)) *models.PaymentWeightedTrust {
	trust := &models.PaymentWeightedTrust{Recipient: recipient, TrustLevel: models.RiskLevelLow}

	var weighted, total float64
	for _, e := range edges {
		if e.To != recipient || e.Amount <= 0 {
			continue
		}
		score, ok := payerScore(e.From)
		if !ok {
			score = defaultPayerReputation
		}
		weighted += e.Amount * score
		total += e.Amount
	}
	if total == 0 {
		return trust
	}
	trust.TotalReceived = total
	trust.WeightedScore = weighted / total

	switch {
	case trust.WeightedScore >= 0.8:
		trust.TrustLevel = models.RiskLevelHigh
	case trust.WeightedScore >= 0.5:
		trust.TrustLevel = models.RiskLevelMedium
	}
	return trust
}

// trustRank orders trust levels for minimum-level comparisons.
func trustRank(level models.RiskLevel) int {
	switch level {
	case models.RiskLevelHigh:
		return 2
	case models.RiskLevelMedium:
		return 1
	default:
		return 0
	}
}

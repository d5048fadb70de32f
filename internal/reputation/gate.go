package reputation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dotrep/payment-gateway/internal/interfaces"
	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/telemetry"
)

// snapshotTTL is how long a fetched reputation snapshot is served from
// cache. Snapshots are never mutated; expiry triggers a fresh fetch.
const snapshotTTL = 5 * time.Minute

// Requirements are the thresholds a policy imposes on an evaluation.
type Requirements struct {
	MinScore                float64
	MinPaymentCount         int
	MinTotalValue           float64
	RequireVerifiedIdentity bool
	BlockSybil              bool
	MinRecipientTrust       string
}

// Gate evaluates payer and recipient standing against the requirements.
type Gate struct {
	client       interfaces.ReputationClient
	queryTimeout time.Duration
	failOpen     bool
	now          func() time.Time

	mu    sync.Mutex
	cache map[string]cachedSnapshot
}

type cachedSnapshot struct {
	snapshot  *models.ReputationSnapshot
	fetchedAt time.Time
}

func NewGate(client interfaces.ReputationClient, queryTimeout time.Duration, failOpen bool) *Gate {
	return &Gate{
		client:       client,
		queryTimeout: queryTimeout,
		failOpen:     failOpen,
		now:          time.Now,
		cache:        make(map[string]cachedSnapshot),
	}
}

// Evaluate renders the allow/deny decision. Sub-computations run in
// short-circuit priority: reputation, then sybil, then recipient trust.
// Data-fetch failures degrade to an unknown verdict resolved by the
// fail-open switch; they never block.
func (g *Gate) Evaluate(ctx context.Context, payer, recipient string, req Requirements) (*models.GateVerdict, error) {
	verdict := &models.GateVerdict{
		Checks: models.GateChecks{
			ReputationScore: true,
			PaymentCount:    true,
			TotalValue:      true,
			Identity:        true,
			Sybil:           true,
			RecipientTrust:  true,
		},
	}

	// Reputation check.
	snapshot, err := g.snapshot(ctx, payer)
	if err != nil {
		return g.unknownVerdict(verdict, fmt.Sprintf("reputation store unavailable: %v", err)), nil
	}
	verdict.Reputation = snapshot

	if snapshot == nil {
		// Unknown payer passes only when every minimum is zero.
		if req.MinScore > 0 || req.MinPaymentCount > 0 || req.MinTotalValue > 0 || req.RequireVerifiedIdentity {
			verdict.Allowed = false
			verdict.Reason = "payer has no reputation record"
			verdict.Checks.ReputationScore = req.MinScore <= 0
			verdict.Checks.PaymentCount = req.MinPaymentCount <= 0
			verdict.Checks.TotalValue = req.MinTotalValue <= 0
			verdict.Checks.Identity = !req.RequireVerifiedIdentity
			return verdict, nil
		}
	} else {
		verdict.Checks.ReputationScore = snapshot.Score >= req.MinScore
		verdict.Checks.PaymentCount = snapshot.PaymentCount >= req.MinPaymentCount
		verdict.Checks.TotalValue = snapshot.TotalValue >= req.MinTotalValue
		verdict.Checks.Identity = !req.RequireVerifiedIdentity || snapshot.VerifiedIdentity
		if !verdict.Checks.ReputationScore || !verdict.Checks.PaymentCount ||
			!verdict.Checks.TotalValue || !verdict.Checks.Identity {
			verdict.Allowed = false
			verdict.Reason = "payer reputation below policy minimums"
			return verdict, nil
		}
	}

	// Sybil analysis, best effort. Timeouts degrade to unknown rather than
	// blocking the whole evaluation.
	payerEdges, err := g.graph(ctx, payer)
	if err != nil {
		telemetry.Logger.Warn("Sybil analysis degraded to unknown",
			zap.String("payer", payer), zap.Error(err))
	} else {
		sybil := ComputeSybil(payer, payerEdges, g.now())
		verdict.Sybil = sybil
		if req.BlockSybil && sybil.RiskLevel == models.RiskLevelHigh {
			verdict.Allowed = false
			verdict.Checks.Sybil = false
			verdict.Reason = fmt.Sprintf("payer sybil risk is high (score %d)", sybil.RiskScore)
			return verdict, nil
		}
	}

	// Payment-weighted recipient trust, best effort.
	if req.MinRecipientTrust != "" {
		trust, err := g.recipientTrust(ctx, recipient)
		if err != nil {
			telemetry.Logger.Warn("Recipient trust degraded to unknown",
				zap.String("recipient", recipient), zap.Error(err))
		} else {
			verdict.Trust = trust
			if trustRank(trust.TrustLevel) < trustRank(models.RiskLevel(req.MinRecipientTrust)) {
				verdict.Allowed = false
				verdict.Checks.RecipientTrust = false
				verdict.Reason = fmt.Sprintf("recipient trust %s below required %s",
					trust.TrustLevel, req.MinRecipientTrust)
				return verdict, nil
			}
		}
	}

	verdict.Allowed = true
	return verdict, nil
}

func (g *Gate) unknownVerdict(verdict *models.GateVerdict, reason string) *models.GateVerdict {
	verdict.Unknown = true
	verdict.Allowed = g.failOpen
	verdict.Reason = reason
	if !g.failOpen {
		verdict.Checks.ReputationScore = false
	}
	return verdict
}

// snapshot serves the payer's reputation from cache, refetching after TTL.
func (g *Gate) snapshot(ctx context.Context, id string) (*models.ReputationSnapshot, error) {
	g.mu.Lock()
	cached, ok := g.cache[id]
	g.mu.Unlock()
	if ok && g.now().Sub(cached.fetchedAt) < snapshotTTL {
		return cached.snapshot, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()
	snapshot, err := g.client.QueryReputation(ctx, id)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.cache[id] = cachedSnapshot{snapshot: snapshot, fetchedAt: g.now()}
	g.mu.Unlock()
	return snapshot, nil
}

// recipientTrust computes payment-weighted trust with one deadline over
// the whole computation: the graph fetch and every per-payer reputation
// lookup share it, so a recipient with many distinct payers cannot
// multiply the timeout.
func (g *Gate) recipientTrust(ctx context.Context, recipient string) (*models.PaymentWeightedTrust, error) {
	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()
	edges, err := g.client.QueryPaymentGraph(ctx, recipient, graphWindow)
	if err != nil {
		return nil, err
	}
	return ComputeTrust(recipient, edges, g.payerScore(ctx)), nil
}

func (g *Gate) graph(ctx context.Context, id string) ([]models.PaymentEdge, error) {
	ctx, cancel := context.WithTimeout(ctx, g.queryTimeout)
	defer cancel()
	return g.client.QueryPaymentGraph(ctx, id, graphWindow)
}

// payerScore looks up a payer's cached reputation for trust weighting.
func (g *Gate) payerScore(ctx context.Context) func(id string) (float64, bool) {
	return func(id string) (float64, bool) {
		snapshot, err := g.snapshot(ctx, id)
		if err != nil || snapshot == nil {
			return 0, false
		}
		return snapshot.Score, true
	}
}

package reputation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dotrep/payment-gateway/internal/models"
)

type mockReputationClient struct {
	snapshots map[string]*models.ReputationSnapshot
	graphs    map[string][]models.PaymentEdge
	snapErr   error
	graphErr  error

	snapshotQueries int
}

func (m *mockReputationClient) QueryReputation(_ context.Context, id string) (*models.ReputationSnapshot, error) {
	m.snapshotQueries++
	if m.snapErr != nil {
		return nil, m.snapErr
	}
	return m.snapshots[id], nil
}

func (m *mockReputationClient) QueryPaymentGraph(_ context.Context, id string, _ int) ([]models.PaymentEdge, error) {
	if m.graphErr != nil {
		return nil, m.graphErr
	}
	return m.graphs[id], nil
}

func goodSnapshot(id string) *models.ReputationSnapshot {
	return &models.ReputationSnapshot{
		ID:               id,
		Score:            0.9,
		PaymentCount:     50,
		TotalValue:       500,
		VerifiedIdentity: true,
	}
}

func TestGate_AllChecksPass(t *testing.T) {
	client := &mockReputationClient{
		snapshots: map[string]*models.ReputationSnapshot{"alice": goodSnapshot("alice")},
	}
	g := NewGate(client, time.Second, true)

	verdict, err := g.Evaluate(context.Background(), "alice", "shop", Requirements{
		MinScore:                0.5,
		MinPaymentCount:         10,
		MinTotalValue:           100,
		RequireVerifiedIdentity: true,
		BlockSybil:              true,
	})
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
	assert.False(t, verdict.Unknown)
	assert.True(t, verdict.Checks.ReputationScore)
}

func TestGate_DeniesBelowMinimums(t *testing.T) {
	snapshot := &models.ReputationSnapshot{ID: "alice", Score: 0.3, PaymentCount: 2, TotalValue: 5}
	client := &mockReputationClient{
		snapshots: map[string]*models.ReputationSnapshot{"alice": snapshot},
	}
	g := NewGate(client, time.Second, true)

	verdict, err := g.Evaluate(context.Background(), "alice", "shop", Requirements{
		MinScore:        0.5,
		MinPaymentCount: 10,
	})
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.False(t, verdict.Checks.ReputationScore)
	assert.False(t, verdict.Checks.PaymentCount)
	assert.True(t, verdict.Checks.TotalValue)
}

func TestGate_UnknownPayer(t *testing.T) {
	client := &mockReputationClient{}
	g := NewGate(client, time.Second, true)

	t.Run("denied when minimums apply", func(t *testing.T) {
		verdict, err := g.Evaluate(context.Background(), "nobody", "shop", Requirements{MinScore: 0.1})
		require.NoError(t, err)
		assert.False(t, verdict.Allowed)
		assert.Equal(t, "payer has no reputation record", verdict.Reason)
	})

	t.Run("allowed when no minimums", func(t *testing.T) {
		verdict, err := g.Evaluate(context.Background(), "nobody", "shop", Requirements{BlockSybil: true})
		require.NoError(t, err)
		assert.True(t, verdict.Allowed)
	})
}

func TestGate_StoreOutage(t *testing.T) {
	t.Run("fail open", func(t *testing.T) {
		client := &mockReputationClient{snapErr: errors.New("store down")}
		g := NewGate(client, time.Second, true)

		verdict, err := g.Evaluate(context.Background(), "alice", "shop", Requirements{MinScore: 0.5})
		require.NoError(t, err)
		assert.True(t, verdict.Allowed)
		assert.True(t, verdict.Unknown)
	})

	t.Run("fail closed", func(t *testing.T) {
		client := &mockReputationClient{snapErr: errors.New("store down")}
		g := NewGate(client, time.Second, false)

		verdict, err := g.Evaluate(context.Background(), "alice", "shop", Requirements{MinScore: 0.5})
		require.NoError(t, err)
		assert.False(t, verdict.Allowed)
		assert.True(t, verdict.Unknown)
	})
}

func TestGate_BlocksHighSybilRisk(t *testing.T) {
	now := time.Now()
	edges := make([]models.PaymentEdge, 0, 30)
	for i := 0; i < 30; i++ {
		edges = append(edges, models.PaymentEdge{
			From: "alice", To: "mule", Amount: 0.01, Timestamp: now,
		})
	}
	client := &mockReputationClient{
		snapshots: map[string]*models.ReputationSnapshot{"alice": goodSnapshot("alice")},
		graphs:    map[string][]models.PaymentEdge{"alice": edges},
	}
	g := NewGate(client, time.Second, true)

	verdict, err := g.Evaluate(context.Background(), "alice", "shop", Requirements{BlockSybil: true})
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.False(t, verdict.Checks.Sybil)
	require.NotNil(t, verdict.Sybil)
	assert.Equal(t, models.RiskLevelHigh, verdict.Sybil.RiskLevel)
}

func TestGate_SybilNotBlockedWhenPolicyAllows(t *testing.T) {
	now := time.Now()
	edges := make([]models.PaymentEdge, 0, 30)
	for i := 0; i < 30; i++ {
		edges = append(edges, models.PaymentEdge{
			From: "alice", To: "mule", Amount: 0.01, Timestamp: now,
		})
	}
	client := &mockReputationClient{
		snapshots: map[string]*models.ReputationSnapshot{"alice": goodSnapshot("alice")},
		graphs:    map[string][]models.PaymentEdge{"alice": edges},
	}
	g := NewGate(client, time.Second, true)

	verdict, err := g.Evaluate(context.Background(), "alice", "shop", Requirements{BlockSybil: false})
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
}

func TestGate_GraphOutageDegradesToUnknown(t *testing.T) {
	client := &mockReputationClient{
		snapshots: map[string]*models.ReputationSnapshot{"alice": goodSnapshot("alice")},
		graphErr:  errors.New("graph down"),
	}
	g := NewGate(client, time.Second, true)

	// A sybil data failure must not block an otherwise passing payer.
	verdict, err := g.Evaluate(context.Background(), "alice", "shop", Requirements{BlockSybil: true})
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)
	assert.Nil(t, verdict.Sybil)
}

func TestGate_RecipientTrust(t *testing.T) {
	client := &mockReputationClient{
		snapshots: map[string]*models.ReputationSnapshot{
			"alice":     goodSnapshot("alice"),
			"bad-payer": {ID: "bad-payer", Score: 0.1},
		},
		graphs: map[string][]models.PaymentEdge{
			"shop": {
				{From: "bad-payer", To: "shop", Amount: 100},
			},
		},
	}
	g := NewGate(client, time.Second, true)

	verdict, err := g.Evaluate(context.Background(), "alice", "shop", Requirements{
		MinRecipientTrust: string(models.RiskLevelMedium),
	})
	require.NoError(t, err)
	assert.False(t, verdict.Allowed)
	assert.False(t, verdict.Checks.RecipientTrust)
	require.NotNil(t, verdict.Trust)
	assert.Equal(t, models.RiskLevelLow, verdict.Trust.TrustLevel)
}

// deadlineClient records the context deadline seen by each query.
type deadlineClient struct {
	snapshots      map[string]*models.ReputationSnapshot
	graphs         map[string][]models.PaymentEdge
	graphDeadlines map[string]time.Time
	repDeadlines   map[string]time.Time
}

func (c *deadlineClient) QueryReputation(ctx context.Context, id string) (*models.ReputationSnapshot, error) {
	if d, ok := ctx.Deadline(); ok {
		c.repDeadlines[id] = d
	}
	return c.snapshots[id], nil
}

func (c *deadlineClient) QueryPaymentGraph(ctx context.Context, id string, _ int) ([]models.PaymentEdge, error) {
	if d, ok := ctx.Deadline(); ok {
		c.graphDeadlines[id] = d
	}
	return c.graphs[id], nil
}

func TestGate_TrustLookupsShareOneDeadline(t *testing.T) {
	client := &deadlineClient{
		snapshots: map[string]*models.ReputationSnapshot{
			"p1": {ID: "p1", Score: 0.9},
			"p2": {ID: "p2", Score: 0.9},
		},
		graphs: map[string][]models.PaymentEdge{
			"shop": {
				{From: "p1", To: "shop", Amount: 10},
				{From: "p2", To: "shop", Amount: 10},
			},
		},
		graphDeadlines: map[string]time.Time{},
		repDeadlines:   map[string]time.Time{},
	}
	g := NewGate(client, time.Second, true)

	verdict, err := g.Evaluate(context.Background(), "alice", "shop", Requirements{
		MinRecipientTrust: string(models.RiskLevelMedium),
	})
	require.NoError(t, err)
	assert.True(t, verdict.Allowed)

	// Every per-payer lookup runs under the deadline set for the trust
	// computation as a whole, never a fresh one per payer.
	graphDeadline := client.graphDeadlines["shop"]
	require.False(t, graphDeadline.IsZero())
	for _, id := range []string{"p1", "p2"} {
		d, ok := client.repDeadlines[id]
		require.True(t, ok, "no reputation lookup for %s", id)
		assert.False(t, d.After(graphDeadline), "lookup for %s outlives the trust deadline", id)
	}
}

func TestGate_SnapshotCache(t *testing.T) {
	client := &mockReputationClient{
		snapshots: map[string]*models.ReputationSnapshot{"alice": goodSnapshot("alice")},
	}
	g := NewGate(client, time.Second, true)
	ctx := context.Background()

	_, err := g.Evaluate(ctx, "alice", "shop", Requirements{MinScore: 0.5})
	require.NoError(t, err)
	_, err = g.Evaluate(ctx, "alice", "shop", Requirements{MinScore: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1, client.snapshotQueries)

	// Expire the cache and the next evaluation fetches again.
	g.now = func() time.Time { return time.Now().Add(snapshotTTL + time.Second) }
	_, err = g.Evaluate(ctx, "alice", "shop", Requirements{MinScore: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 2, client.snapshotQueries)
}

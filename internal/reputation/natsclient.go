// Package reputation gates granted access behind payer reputation, sybil
// risk, and payment-weighted recipient trust.
package reputation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/dotrep/payment-gateway/internal/models"
)

// Subjects of the reputation store's request/reply interface.
const (
	subjectReputationQuery = "reputation.query"
	subjectGraphQuery      = "graph.query"
)

// NatsClient consumes the reputation/provenance store over NATS
// request/reply.
type NatsClient struct {
	nc *nats.Conn
}

func NewNatsClient(nc *nats.Conn) *NatsClient {
	return &NatsClient{nc: nc}
}

type reputationQuery struct {
	ID string `json:"id"`
}

type reputationReply struct {
	Found    bool                       `json:"found"`
	Snapshot *models.ReputationSnapshot `json:"snapshot,omitempty"`
}

type graphQuery struct {
	ID    string `json:"id"`
	Limit int    `json:"limit"`
}

type graphReply struct {
	Edges []models.PaymentEdge `json:"edges"`
}

// QueryReputation returns the stored snapshot, or (nil, nil) for an unknown
// identity.
func (c *NatsClient) QueryReputation(ctx context.Context, id string) (*models.ReputationSnapshot, error) {
	payload, err := json.Marshal(reputationQuery{ID: id})
	if err != nil {
		return nil, err
	}
	msg, err := c.nc.RequestWithContext(ctx, subjectReputationQuery, payload)
	if err != nil {
		return nil, fmt.Errorf("reputation query for %s: %w", id, err)
	}
	var reply reputationReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode reputation reply: %w", err)
	}
	if !reply.Found {
		return nil, nil
	}
	return reply.Snapshot, nil
}

// QueryPaymentGraph returns up to limit most-recent payment edges touching
// the identity.
func (c *NatsClient) QueryPaymentGraph(ctx context.Context, id string, limit int) ([]models.PaymentEdge, error) {
	payload, err := json.Marshal(graphQuery{ID: id, Limit: limit})
	if err != nil {
		return nil, err
	}
	msg, err := c.nc.RequestWithContext(ctx, subjectGraphQuery, payload)
	if err != nil {
		return nil, fmt.Errorf("payment graph query for %s: %w", id, err)
	}
	var reply graphReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return nil, fmt.Errorf("decode payment graph reply: %w", err)
	}
	return reply.Edges, nil
}

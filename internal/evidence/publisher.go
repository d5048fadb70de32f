// Package evidence publishes provenance records for verified payments.
package evidence

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/retry"
)

// KafkaPublisher writes evidence documents to the provenance topic, keyed
// by transaction identifier so downstream consumers can deduplicate.
type KafkaPublisher struct {
	writer    *kafka.Writer
	retryOpts retry.Options
}

func NewKafkaPublisher(writer *kafka.Writer, retryOpts retry.Options) *KafkaPublisher {
	return &KafkaPublisher{writer: writer, retryOpts: retryOpts}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev *models.PaymentEvidence) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal evidence: %w", err)
	}
	return retry.Do(ctx, func(ctx context.Context) error {
		return p.writer.WriteMessages(ctx, kafka.Message{
			Key:   []byte(ev.TxID),
			Value: payload,
		})
	}, p.retryOpts)
}

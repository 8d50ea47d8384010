package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Kafka publishes audit events to a single topic, keyed by assessment id so
// one assessment's trail stays ordered within a partition.
type Kafka struct {
	client *kgo.Client
	topic  string
}

// NewKafka connects a franz-go producer for the audit topic.
func NewKafka(brokers []string, topic string) (*Kafka, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.ProducerLinger(0),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Kafka{client: client, topic: topic}, nil
}

// Publish produces the event asynchronously. Failures are logged, never
// returned: the audit trail is best-effort by contract.
func (k *Kafka) Publish(ctx context.Context, event Event) {
	if k == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("action", string(event.Action)).Msg("marshal audit event")
		return
	}
	record := &kgo.Record{
		Topic: k.topic,
		Key:   []byte(event.AssessmentID),
		Value: payload,
	}
	logger := zerolog.Ctx(ctx).With().Str("action", string(event.Action)).Logger()
	k.client.Produce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		if err != nil {
			logger.Error().Err(err).Msg("produce audit event")
		}
	})
}

// Close flushes pending records and releases the client.
func (k *Kafka) Close() {
	if k == nil {
		return
	}
	_ = k.client.Flush(context.Background())
	k.client.Close()
}

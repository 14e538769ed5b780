// internal/events/kafka_publisher.go
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"coinflip-settlement/internal/domain"
)

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// NewWriter creates a writer for topic. Messages are hashed by key so all
// events of one deposit land on the same partition.
func NewWriter(brokers string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(strings.Split(brokers, ",")...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
}

// KafkaPublisher publishes settlement and payout events as JSON keyed by deposit reference.
type KafkaPublisher struct {
	settled MessageWriter
	payouts MessageWriter
	now     func() time.Time
}

// NewKafkaPublisher creates a publisher over one writer per topic.
func NewKafkaPublisher(settled, payouts MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{settled: settled, payouts: payouts, now: time.Now}
}

// PublishWagerSettled publishes a WagerSettled event.
func (p *KafkaPublisher) PublishWagerSettled(ctx context.Context, res *domain.SettlementResult) error {
	return p.write(ctx, p.settled, res.DepositReference, NewWagerSettled(res, p.now()))
}

// PublishPayoutUpdated publishes a PayoutUpdated event.
func (p *KafkaPublisher) PublishPayoutUpdated(ctx context.Context, payout *domain.Payout) error {
	return p.write(ctx, p.payouts, payout.DepositReference, NewPayoutUpdated(payout, p.now()))
}

func (p *KafkaPublisher) write(ctx context.Context, w MessageWriter, key string, event any) error {
	b, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event for %s: %w", key, err)
	}
	msg := kafka.Message{
		Key:   []byte(key),
		Value: b,
		Time:  p.now(),
	}
	if err := w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish event for %s: %w", key, err)
	}
	return nil
}

// Close flushes and closes both writers.
func (p *KafkaPublisher) Close() error {
	return errors.Join(p.settled.Close(), p.payouts.Close())
}

// NopPublisher drops events. It is used when no brokers are configured.
type NopPublisher struct{}

// PublishWagerSettled discards the event.
func (NopPublisher) PublishWagerSettled(context.Context, *domain.SettlementResult) error { return nil }

// PublishPayoutUpdated discards the event.
func (NopPublisher) PublishPayoutUpdated(context.Context, *domain.Payout) error { return nil }

// Close is a no-op.
func (NopPublisher) Close() error { return nil }

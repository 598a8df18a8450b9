package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/kshitij406/VendingMachine/internal/domain"
)

const topic = "purchase-events"

// Publisher emits purchase events after a successful checkout. Publish
// failures must never fail the checkout; callers log and move on.
type Publisher interface {
	Publish(ctx context.Context, event domain.PurchaseEvent) error
	Close() error
}

type Kafka struct {
	writer *kafka.Writer
}

func NewKafka(brokers ...string) *Kafka {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &Kafka{writer: w}
}

func (p *Kafka) Publish(ctx context.Context, event domain.PurchaseEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal purchase event: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.Username),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("write purchase event: %w", err)
	}
	return nil
}

func (p *Kafka) Close() error {
	return p.writer.Close()
}

// Nop is used when no broker is configured.
type Nop struct{}

func (Nop) Publish(ctx context.Context, event domain.PurchaseEvent) error { return nil }

func (Nop) Close() error { return nil }

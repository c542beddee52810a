// Package events publishes payment events to Kafka for downstream consumers
// (the notification service subscribes to the successful_payments topic).
package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	log "github.com/sirupsen/logrus"

	"payment-service/internal/domain"
)

// PaymentEvent is the message published after a transaction settles.
type PaymentEvent struct {
	TransactionID string `json:"transaction_id"`
	UserID        string `json:"user_id,omitempty"`
	UserEmail     string `json:"user_email,omitempty"`
	Amount        string `json:"amount"`
	ProductType   string `json:"product_type"`
	Description   string `json:"description"`
}

type Publisher interface {
	PublishPaid(ctx context.Context, tx domain.Transaction) error
}

type KafkaPublisher struct {
	producer *kafka.Producer
	topic    string
}

func NewKafkaPublisher(bootstrapServers, topic string) (*KafkaPublisher, error) {
	producer, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": bootstrapServers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	log.WithField("topic", topic).Info("Kafka producer ready")
	return &KafkaPublisher{producer: producer, topic: topic}, nil
}

func (p *KafkaPublisher) PublishPaid(ctx context.Context, tx domain.Transaction) error {
	event := PaymentEvent{
		TransactionID: tx.ID,
		UserID:        tx.UserID.String,
		UserEmail:     tx.ContactEmail.String,
		Amount:        tx.Amount.StringFixed(2),
		ProductType:   string(tx.ProductType),
		Description:   tx.Description,
	}
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal payment event: %w", err)
	}

	delivery := make(chan kafka.Event, 1)
	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(tx.ID),
		Value:          value,
	}, delivery)
	if err != nil {
		return fmt.Errorf("failed to produce payment event: %w", err)
	}

	select {
	case ev := <-delivery:
		if m, ok := ev.(*kafka.Message); ok && m.TopicPartition.Error != nil {
			return fmt.Errorf("payment event delivery failed: %w", m.TopicPartition.Error)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}

func (p *KafkaPublisher) Close() {
	p.producer.Flush(5000)
	p.producer.Close()
}

// NoopPublisher is used when Kafka is not configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishPaid(ctx context.Context, tx domain.Transaction) error {
	return nil
}

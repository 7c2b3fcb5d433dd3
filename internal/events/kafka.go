// Package events publishes committed marketplace events to Kafka for
// downstream consumers (analytics, notifications).
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"upcycle-api-server/internal/logger"
	"upcycle-api-server/internal/marketplace"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher is a marketplace.Observer. Messages are keyed by material
// id so every event of one material lands on one partition, in order.
type KafkaPublisher struct {
	writer  messageWriter
	log     *logger.Logger
	timeout time.Duration
}

func NewKafkaPublisher(brokers []string, topic string, log *logger.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
		log:     log.With("service", "KafkaPublisher", "topic", topic),
		timeout: 5 * time.Second,
	}
}

// Message is the wire shape of one event.
type Message struct {
	Type           marketplace.EventType `json:"type"`
	MaterialID     string                `json:"materialID"`
	OrgID          string                `json:"orgID,omitempty"`
	MaterialStatus string                `json:"materialStatus,omitempty"`
	Remaining      string                `json:"remaining,omitempty"`
	RequestID      string                `json:"requestID,omitempty"`
	BuyerID        string                `json:"buyerID,omitempty"`
	Quantity       string                `json:"quantity,omitempty"`
	RequestStatus  string                `json:"requestStatus,omitempty"`
	ActorID        string                `json:"actorID"`
	At             time.Time             `json:"at"`
}

func (p *KafkaPublisher) Name() string { return "kafka" }

func (p *KafkaPublisher) Observe(ctx context.Context, ev marketplace.RequestEvent) error {
	msg, err := BuildMessage(ev)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	p.log.Debug("event published", "event", ev.Type, "key", string(msg.Key))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// BuildMessage turns an event into a keyed Kafka message.
func BuildMessage(ev marketplace.RequestEvent) (kafka.Message, error) {
	body := Message{Type: ev.Type, ActorID: ev.ActorID, At: ev.At.UTC()}
	if m := ev.Material; m != nil {
		body.MaterialID = m.ID
		body.OrgID = m.OrgID
		body.MaterialStatus = string(m.Status)
		body.Remaining = m.Remaining().String()
	}
	if r := ev.Request; r != nil {
		body.MaterialID = r.MaterialID
		body.RequestID = r.ID
		body.BuyerID = r.BuyerID
		body.Quantity = r.Quantity.String()
		body.RequestStatus = string(r.Status)
	}
	if body.MaterialID == "" {
		return kafka.Message{}, fmt.Errorf("event %s has no material", ev.Type)
	}

	value, err := json.Marshal(body)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("encode %s: %w", ev.Type, err)
	}
	return kafka.Message{
		Key:     []byte(body.MaterialID),
		Value:   value,
		Time:    body.At,
		Headers: []kafka.Header{{Key: "event-type", Value: []byte(ev.Type)}},
	}, nil
}

// Package events publishes domain events for consumers outside the API server.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Daskott/tandem/server/logger"
	"github.com/segmentio/kafka-go"
)

const CONTACT_LINKED = "contact.linked"

var logg = logger.Named("events")

type Event struct {
	Type            string    `json:"type"`
	RequesterID     uint      `json:"requester_id"`
	TargetOwnerID   uint      `json:"target_owner_id"`
	State           string    `json:"state"`
	OwnSide         string    `json:"own_side"`
	CounterpartSide string    `json:"counterpart_side"`
	OccurredAt      time.Time `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// NoopPublisher drops every event. Used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, Event) error { return nil }
func (NoopPublisher) Close() error                         { return nil }

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher writes events to topic asynchronously; delivery
// errors are logged & never reach the caller.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			Async:                  true,
			AllowAutoTopicCreation: true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					logg.Errorf("failed to deliver %d event(s): %v", len(messages), err)
				}
			},
		},
	}
}

// NewPublisher picks kafka when brokers are set, otherwise a no-op publisher
func NewPublisher(brokers []string, topic string) Publisher {
	if len(brokers) == 0 {
		return NoopPublisher{}
	}
	return NewKafkaPublisher(brokers, topic)
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}

	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatUint(uint64(event.RequesterID), 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(event.Type)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

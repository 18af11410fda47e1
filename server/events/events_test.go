package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPublisher(t *testing.T) {
	publisher := NewPublisher(nil, "tandem.contacts")
	assert.IsType(t, NoopPublisher{}, publisher)
	assert.Nil(t, publisher.Publish(context.Background(), Event{Type: CONTACT_LINKED}))
	assert.Nil(t, publisher.Close())

	publisher = NewPublisher([]string{"localhost:9092"}, "tandem.contacts")
	kafkaPublisher, ok := publisher.(*KafkaPublisher)
	assert.True(t, ok)
	assert.Equal(t, "tandem.contacts", kafkaPublisher.writer.Topic)
	assert.True(t, kafkaPublisher.writer.Async)
	assert.Nil(t, publisher.Close())
}

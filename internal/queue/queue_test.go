package queue

import (
	"context"
	"errors"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcknowledger struct {
	acked   int
	nacked  int
	requeue bool
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.acked++
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.nacked++
	f.requeue = requeue
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	f.nacked++
	return nil
}

func TestConsumer_Handle(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		handlerErr error
		wantCalled bool
		wantAck    int
		wantNack   int
	}{
		{
			name:       "valid message is acked",
			body:       `{"document_id":"doc-1"}`,
			wantCalled: true,
			wantAck:    1,
		},
		{
			name:       "handler error is nacked",
			body:       `{"document_id":"doc-1","reingest":true}`,
			handlerErr: errors.New("database down"),
			wantCalled: true,
			wantNack:   1,
		},
		{
			name:     "malformed json is dropped",
			body:     `{not json`,
			wantNack: 1,
		},
		{
			name:     "missing document id is dropped",
			body:     `{}`,
			wantNack: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got *IngestMessage
			c := NewConsumer(nil, "", 0, func(ctx context.Context, msg IngestMessage) error {
				got = &msg
				return tt.handlerErr
			})

			ack := &fakeAcknowledger{}
			c.handle(context.Background(), amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte(tt.body)})

			assert.Equal(t, tt.wantCalled, got != nil)
			assert.Equal(t, tt.wantAck, ack.acked)
			assert.Equal(t, tt.wantNack, ack.nacked)
			assert.False(t, ack.requeue)
		})
	}
}

func TestConsumer_HandlePassesReingestFlag(t *testing.T) {
	var got IngestMessage
	c := NewConsumer(nil, "ingest", 2, func(ctx context.Context, msg IngestMessage) error {
		got = msg
		return nil
	})

	c.handle(context.Background(), amqp.Delivery{
		Acknowledger: &fakeAcknowledger{},
		Body:         []byte(`{"document_id":"doc-9","reingest":true}`),
	})

	require.Equal(t, "doc-9", got.DocumentID)
	assert.True(t, got.Reingest)
	assert.Equal(t, "ingest", c.queueName)
	assert.Equal(t, 2, c.prefetch)
}

func TestNewPublisher_DefaultQueue(t *testing.T) {
	p := NewPublisher(nil, "")
	assert.Equal(t, DefaultQueueName, p.queueName)
}

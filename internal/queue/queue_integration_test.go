//go:build integration

package queue

import (
	"context"
	"testing"
	"time"

	"github.com/cloo-solutions/docchat/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublisherConsumer_RoundTrip(t *testing.T) {
	ctx := context.Background()
	rc := testutil.NewRabbitMQContainer(ctx, t)
	defer rc.Terminate(ctx)

	conn, err := Dial(rc.URL())
	require.NoError(t, err)
	defer conn.Close()

	received := make(chan IngestMessage, 2)
	consumer := NewConsumer(conn, "docchat.ingest.test", 1, func(ctx context.Context, msg IngestMessage) error {
		received <- msg
		return nil
	})
	require.NoError(t, consumer.Start(ctx))
	defer consumer.Close()

	publisher := NewPublisher(conn, "docchat.ingest.test")
	require.NoError(t, publisher.Enqueue(ctx, IngestMessage{DocumentID: "doc-1"}))
	require.NoError(t, publisher.Enqueue(ctx, IngestMessage{DocumentID: "doc-2", Reingest: true}))

	var got []IngestMessage
	timeout := time.After(10 * time.Second)
	for len(got) < 2 {
		select {
		case msg := <-received:
			got = append(got, msg)
		case <-timeout:
			t.Fatalf("received %d of 2 messages", len(got))
		}
	}

	assert.Equal(t, IngestMessage{DocumentID: "doc-1"}, got[0])
	assert.Equal(t, IngestMessage{DocumentID: "doc-2", Reingest: true}, got[1])
}

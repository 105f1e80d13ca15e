// Package queue moves ingest requests through RabbitMQ so uploads return
// before extraction and embedding finish.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultQueueName is used when no queue is configured.
const DefaultQueueName = "docchat.ingest"

// IngestMessage asks a worker to ingest one document.
type IngestMessage struct {
	DocumentID string `json:"document_id"`
	Reingest   bool   `json:"reingest,omitempty"`
}

// Dial connects to the broker.
func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq failed: %w", err)
	}
	return conn, nil
}

func declare(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s failed: %w", name, err)
	}
	return nil
}

// Publisher enqueues ingest requests.
type Publisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewPublisher(conn *amqp.Connection, queueName string) *Publisher {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	return &Publisher{conn: conn, queueName: queueName}
}

// Enqueue publishes a persistent ingest message.
func (p *Publisher) Enqueue(ctx context.Context, msg IngestMessage) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := declare(ch, p.queueName); err != nil {
		return err
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal ingest message failed: %w", err)
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         payload,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish ingest message failed: %w", err)
	}
	return nil
}

// Handler processes one ingest message. A returned error drops the message;
// ingestion failures that were recorded on the document should return nil.
type Handler func(ctx context.Context, msg IngestMessage) error

// Consumer runs a Handler for each delivery on the ingest queue.
type Consumer struct {
	conn      *amqp.Connection
	queueName string
	handler   Handler
	prefetch  int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewConsumer(conn *amqp.Connection, queueName string, prefetch int, handler Handler) *Consumer {
	if queueName == "" {
		queueName = DefaultQueueName
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	return &Consumer{conn: conn, queueName: queueName, prefetch: prefetch, handler: handler}
}

// Start begins consuming in the background. It returns once the subscription is set up.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cancel != nil {
		return nil
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel failed: %w", err)
	}
	if err := declare(ch, c.queueName); err != nil {
		_ = ch.Close()
		return err
	}
	if err := ch.Qos(c.prefetch, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("set consumer prefetch failed: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	workerCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					log.Println("ingest consumer: delivery channel closed")
					return
				}
				c.handle(workerCtx, d)
			}
		}
	}()

	log.Printf("ingest consumer started on queue %s", c.queueName)
	return nil
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	var msg IngestMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.DocumentID == "" {
		log.Printf("ingest consumer: dropping malformed message: %v", err)
		_ = d.Nack(false, false)
		return
	}

	if err := c.handler(ctx, msg); err != nil {
		log.Printf("ingest consumer: document %s: %v", msg.DocumentID, err)
		_ = d.Nack(false, false)
		return
	}
	_ = d.Ack(false)
}

// Close stops consuming and waits for the in-flight message.
func (c *Consumer) Close() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
}

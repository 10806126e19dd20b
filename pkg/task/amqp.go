package task

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPQueue is a Queue backed by a RabbitMQ queue. Messages are published
// persistent to a durable queue and acknowledged manually, giving
// at-least-once delivery across broker and worker restarts.
type AMQPQueue struct {
	conn *amqp.Connection
	chn  *amqp.Channel
	name string
}

// NewAMQPQueue connects to the AMQP server and declares the durable queue.
func NewAMQPQueue(url, queueName string) (*AMQPQueue, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to amqp server: %w", err)
	}
	chn, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if _, err := chn.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	); err != nil {
		chn.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}
	return &AMQPQueue{conn: conn, chn: chn, name: queueName}, nil
}

// Enqueue publishes the task as a persistent JSON message.
func (q *AMQPQueue) Enqueue(ctx context.Context, t Task) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}
	err = q.chn.PublishWithContext(
		ctx,
		"",     // default exchange
		q.name, // routing key
		false,  // mandatory
		false,  // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    t.ID,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish task %s: %w", t.ID, err)
	}
	return nil
}

// Consume starts delivering tasks one at a time. Each task must be Acked
// after processing; unacked tasks are redelivered when the consumer dies.
// Messages that fail to decode are rejected without requeue.
func (q *AMQPQueue) Consume(ctx context.Context) (<-chan Task, error) {
	// Prefetch of one keeps a slow grant from piling work onto a dead worker.
	if err := q.chn.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}
	deliveries, err := q.chn.Consume(
		q.name,
		"",    // consumer tag
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to consume from %s: %w", q.name, err)
	}

	out := make(chan Task)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var t Task
				if err := json.Unmarshal(d.Body, &t); err != nil {
					d.Nack(false, false)
					continue
				}
				t = t.WithAck(func() error { return d.Ack(false) })
				select {
				case out <- t:
				case <-ctx.Done():
					d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

// Close shuts down the channel and connection.
func (q *AMQPQueue) Close() error {
	if err := q.chn.Close(); err != nil {
		return err
	}
	return q.conn.Close()
}

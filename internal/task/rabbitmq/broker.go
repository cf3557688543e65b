// Package rabbitmq carries task messages over a durable RabbitMQ queue.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/frahmantamala/document-management/internal/task"
	amqp "github.com/rabbitmq/amqp091-go"
)

type Broker struct {
	conn        *amqp.Connection
	queue       string
	concurrency int
	logger      *slog.Logger

	mu      sync.Mutex
	channel *amqp.Channel
}

// Dial connects and declares the queue. Publishing and consuming processes
// declare it with the same parameters, so either may start first.
func Dial(url, queue string, concurrency int, logger *slog.Logger) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := declare(ch, queue); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	if concurrency <= 0 {
		concurrency = 1
	}
	logger.Info("rabbitmq broker ready", "queue", queue, "concurrency", concurrency)
	return &Broker{conn: conn, queue: queue, concurrency: concurrency, logger: logger, channel: ch}, nil
}

func declare(ch *amqp.Channel, queue string) error {
	_, err := ch.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}
	return nil
}

func (b *Broker) Publish(ctx context.Context, msg task.Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal task message: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channel == nil || b.channel.IsClosed() {
		return task.ErrBrokerClosed
	}
	err = b.channel.PublishWithContext(ctx,
		"",      // exchange
		b.queue, // routing key
		false,   // mandatory
		false,   // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msg.ID,
			Type:         msg.Name,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		})
	if err != nil {
		return fmt.Errorf("publish task %s: %w", msg.ID, err)
	}
	return nil
}

// Consume runs one channel per consumer, each with prefetch 1 and manual
// acknowledgements. Messages are acked after handle returns nil, requeued
// when it returns an error and dropped when they cannot be decoded.
func (b *Broker) Consume(ctx context.Context, handle task.ConsumeFunc) error {
	var wg sync.WaitGroup
	channels := make([]*amqp.Channel, 0, b.concurrency)
	defer func() {
		for _, ch := range channels {
			ch.Close()
		}
	}()

	for i := 0; i < b.concurrency; i++ {
		ch, err := b.conn.Channel()
		if err != nil {
			return fmt.Errorf("open consumer channel: %w", err)
		}
		channels = append(channels, ch)
		if err := ch.Qos(1, 0, false); err != nil {
			return fmt.Errorf("set qos: %w", err)
		}
		deliveries, err := ch.Consume(
			b.queue,
			fmt.Sprintf("worker-%d", i),
			false, // auto-ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,
		)
		if err != nil {
			return fmt.Errorf("consume %s: %w", b.queue, err)
		}

		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			b.loop(ctx, id, deliveries, handle)
		}(i)
	}

	b.logger.Info("consuming tasks", "queue", b.queue, "consumers", b.concurrency)
	wg.Wait()
	return nil
}

func (b *Broker) loop(ctx context.Context, id int, deliveries <-chan amqp.Delivery, handle task.ConsumeFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				b.logger.Warn("delivery channel closed", "consumer", id)
				return
			}
			var msg task.Message
			if err := json.Unmarshal(d.Body, &msg); err != nil {
				b.logger.Error("dropping undecodable task message", "message_id", d.MessageId, "error", err)
				_ = d.Nack(false, false)
				continue
			}
			if err := handle(ctx, msg); err != nil {
				b.logger.Warn("requeueing task", "task_id", msg.ID, "error", err)
				_ = d.Nack(false, true)
				continue
			}
			if err := d.Ack(false); err != nil {
				b.logger.Error("failed to ack task", "task_id", msg.ID, "error", err)
			}
		}
	}
}

func (b *Broker) Close() error {
	b.mu.Lock()
	if b.channel != nil {
		b.channel.Close()
		b.channel = nil
	}
	b.mu.Unlock()
	return b.conn.Close()
}

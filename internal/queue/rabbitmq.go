package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abkawan/banking-accounts/internal/models"
	"github.com/streadway/amqp"
)

const (
	// durable queue shared by the API (publisher) and the processor (consumer)
	AccountEventQueue = "account_events"

	consumerTag = "account-event-journal"
	prefetch    = 32
)

// RabbitMQ publishes and consumes account events over a single channel.
type RabbitMQ struct {
	conn   *amqp.Connection
	ch     *amqp.Channel
	logger *slog.Logger
}

func NewRabbitMQ(uri string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(uri)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	if err := declareEventQueue(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &RabbitMQ{conn: conn, ch: ch, logger: slog.Default()}, nil
}

func declareEventQueue(ch *amqp.Channel) error {
	_, err := ch.QueueDeclare(AccountEventQueue, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", AccountEventQueue, err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	return errors.Join(r.ch.Close(), r.conn.Close())
}

// builds the AMQP message for an event; the broker keeps it across restarts
func newPublishing(event models.AccountEvent) (amqp.Publishing, error) {
	body, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal account event: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.ID,
		Type:         string(event.Type),
		Timestamp:    event.OccurredAt,
		Body:         body,
	}, nil
}

// decodeAccountEvent parses a broker payload; events without an id or type are refused
func decodeAccountEvent(body []byte) (models.AccountEvent, error) {
	var event models.AccountEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return event, fmt.Errorf("failed to unmarshal account event: %w", err)
	}
	if event.ID == "" || event.Type == "" {
		return event, errors.New("account event missing id or type")
	}
	return event, nil
}

func (r *RabbitMQ) PublishAccountEvent(ctx context.Context, event models.AccountEvent) error {
	msg, err := newPublishing(event)
	if err != nil {
		return err
	}
	// default exchange routes by queue name
	if err := r.ch.Publish("", AccountEventQueue, false, false, msg); err != nil {
		return fmt.Errorf("failed to publish account event %s: %w", event.ID, err)
	}
	return nil
}

// streams events until ctx is done. A delivery is acked once the event has been
// handed over; undecodable payloads are dropped and in-flight ones requeued on shutdown.
func (r *RabbitMQ) ConsumeAccountEvents(ctx context.Context) (<-chan models.AccountEvent, error) {
	if err := r.ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := r.ch.Consume(AccountEventQueue, consumerTag, false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to register a consumer: %w", err)
	}

	events := make(chan models.AccountEvent)
	go func() {
		defer close(events)

		for {
			var d amqp.Delivery
			select {
			case <-ctx.Done():
				return
			case delivery, ok := <-deliveries:
				if !ok {
					return
				}
				d = delivery
			}

			event, err := decodeAccountEvent(d.Body)
			if err != nil {
				r.logger.Error("dropping account event", "message_id", d.MessageId, "error", err)
				d.Reject(false)
				continue
			}

			select {
			case events <- event:
				d.Ack(false)
			case <-ctx.Done():
				d.Nack(false, true)
				return
			}
		}
	}()

	return events, nil
}

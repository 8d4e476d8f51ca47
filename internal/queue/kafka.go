package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/abkawan/banking-accounts/internal/models"
	"github.com/segmentio/kafka-go"
)

// handles Kafka operations; events are keyed by account id so each account's
// events stay ordered within a partition
type Kafka struct {
	writer  *kafka.Writer
	brokers []string
	topic   string
	groupID string
	logger  *slog.Logger
}

// offsetCommitter is the part of *kafka.Reader used to move the group offset
type offsetCommitter interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

func NewKafka(brokers []string, topic, groupID string) *Kafka {
	return &Kafka{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
		brokers: brokers,
		topic:   topic,
		groupID: groupID,
		logger:  slog.Default(),
	}
}

func (k *Kafka) Close() error {
	return k.writer.Close()
}

func (k *Kafka) PublishAccountEvent(ctx context.Context, event models.AccountEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal account event: %w", err)
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AccountID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event-id", Value: []byte(event.ID)},
			{Key: "event-type", Value: []byte(event.Type)},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to write message to kafka: %w", err)
	}
	return nil
}

// consumes account events as part of the consumer group; offsets are committed once the
// event has been handed to the returned channel
func (k *Kafka) ConsumeAccountEvents(ctx context.Context) (<-chan models.AccountEvent, error) {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  k.brokers,
		Topic:    k.topic,
		GroupID:  k.groupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	events := make(chan models.AccountEvent)

	go func() {
		defer close(events)
		defer reader.Close()

		for {
			m, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil || errors.Is(err, context.Canceled) {
					return
				}
				k.logger.Error("error while reading message from kafka", "error", err)
				continue
			}

			event, err := decodeAccountEvent(m.Value)
			if err != nil {
				k.logger.Error("dropping account event", "offset", m.Offset, "error", err)
				k.commit(ctx, reader, m) // skip poison message
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
			k.commit(ctx, reader, m)
		}
	}()

	return events, nil
}

// commit moves the group offset past m; a failure only means redelivery
func (k *Kafka) commit(ctx context.Context, c offsetCommitter, m kafka.Message) bool {
	if err := c.CommitMessages(ctx, m); err != nil {
		k.logger.Error("failed to commit kafka offset",
			"partition", m.Partition, "offset", m.Offset, "error", err)
		return false
	}
	return true
}

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/abkawan/banking-accounts/internal/metrics"
	"github.com/abkawan/banking-accounts/internal/models"
)

// EventConsumer streams account events from a broker until ctx is done.
type EventConsumer interface {
	ConsumeAccountEvents(ctx context.Context) (<-chan models.AccountEvent, error)
}

// EventJournal appends events; it reports false for an event it already holds.
type EventJournal interface {
	AppendEvent(ctx context.Context, event models.AccountEvent) (bool, error)
}

// handles journaling of account events delivered by the broker
type JournalService struct {
	consumer EventConsumer
	journal  EventJournal
	logger   *slog.Logger
}

// creates a new JournalService
func NewJournalService(consumer EventConsumer, journal EventJournal, logger *slog.Logger) *JournalService {
	if logger == nil {
		logger = slog.Default()
	}
	return &JournalService{
		consumer: consumer,
		journal:  journal,
		logger:   logger,
	}
}

// processes a single event; redelivered events are skipped
func (s *JournalService) ProcessEvent(ctx context.Context, event models.AccountEvent) error {
	if event.ID == "" || event.Type == "" {
		return fmt.Errorf("malformed account event: id=%q type=%q", event.ID, event.Type)
	}

	added, err := s.journal.AppendEvent(ctx, event)
	if err != nil {
		return fmt.Errorf("failed to journal event %s: %w", event.ID, err)
	}
	if !added {
		s.logger.Info("duplicate account event skipped", "event_id", event.ID, "type", event.Type)
		return nil
	}

	metrics.EventsJournaled.WithLabelValues(string(event.Type)).Inc()
	return nil
}

// starts the event processor; it returns once consumption is set up and
// runs until ctx is cancelled or the broker closes the stream
func (s *JournalService) StartProcessor(ctx context.Context) (<-chan struct{}, error) {
	events, err := s.consumer.ConsumeAccountEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to consume account events: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-events:
				if !ok {
					return
				}

				if err := s.ProcessEvent(ctx, event); err != nil {
					s.logger.Error("failed to process account event", "event_id", event.ID, "error", err)
				} else {
					s.logger.Info("processed account event",
						"event_id", event.ID, "type", event.Type, "account_id", event.AccountID)
				}
			}
		}
	}()

	return done, nil
}

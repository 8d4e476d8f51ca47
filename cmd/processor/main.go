package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/abkawan/banking-accounts/internal/config"
	"github.com/abkawan/banking-accounts/internal/db"
	"github.com/abkawan/banking-accounts/internal/queue"
	"github.com/abkawan/banking-accounts/internal/service"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "accounts-processor")
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()

	logger.Info("connecting to MongoDB")
	mongodb, err := db.NewMongoDB(cfg.MongoURI, cfg.MongoDBName)
	if err != nil {
		fatal("failed to connect to MongoDB", err)
	}
	defer mongodb.Close(context.Background())

	var consumer service.EventConsumer
	switch cfg.EventBroker {
	case config.BrokerKafka:
		logger.Info("consuming from Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		kafka := queue.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
		defer kafka.Close()
		consumer = kafka
	case config.BrokerRabbitMQ:
		logger.Info("connecting to RabbitMQ")
		rabbitmq, err := queue.NewRabbitMQ(cfg.RabbitMQURI)
		if err != nil {
			fatal("failed to connect to RabbitMQ", err)
		}
		defer rabbitmq.Close()
		consumer = rabbitmq
	default:
		logger.Error("processor needs an event broker", "event_broker", cfg.EventBroker)
		os.Exit(1)
	}

	journalService := service.NewJournalService(consumer, mongodb, logger)

	logger.Info("starting event processor")
	done, err := journalService.StartProcessor(ctx)
	if err != nil {
		fatal("failed to start event processor", err)
	}
	logger.Info("event processor started")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigChan:
		logger.Info("shutting down processor")
	case <-done:
		logger.Warn("event stream closed by broker")
	}

	cancel() // Cancel context to stop processor
	<-done
	logger.Info("processor shut down successfully")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

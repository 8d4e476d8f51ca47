package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/abkawan/banking-accounts/internal/api"
	"github.com/abkawan/banking-accounts/internal/config"
	"github.com/abkawan/banking-accounts/internal/db"
	"github.com/abkawan/banking-accounts/internal/models"
	"github.com/abkawan/banking-accounts/internal/observability"
	"github.com/abkawan/banking-accounts/internal/queue"
	"github.com/abkawan/banking-accounts/internal/service"
	"github.com/gorilla/mux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("service", "accounts-api")
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Load()

	shutdownTracer, err := observability.InitTracer(ctx, observability.Config{
		ServiceName:    "accounts-api",
		ServiceVersion: "0.1.0",
		Endpoint:       cfg.OTLPEndpoint,
		Environment:    cfg.Env,
	})
	if err != nil {
		fatal("failed to init tracer", err)
	}
	defer shutdownTracer(context.Background())

	var (
		accounts  models.AccountRepository
		histories models.AccountHistoryStore
	)
	switch cfg.Storage {
	case config.StorageMemory:
		logger.Warn("using in-memory storage, data is lost on restart")
		accounts = db.NewMemoryAccounts()
		histories = db.NewMemoryHistories()
	default:
		logger.Info("connecting to PostgreSQL")
		postgres, err := db.NewPostgres(cfg.PostgresURI)
		if err != nil {
			fatal("failed to connect to PostgreSQL", err)
		}
		defer postgres.Close()

		logger.Info("creating the schema")
		if err := postgres.InitSchema(ctx); err != nil {
			fatal("failed to create schema", err)
		}

		logger.Info("connecting to MongoDB")
		mongodb, err := db.NewMongoDB(cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			fatal("failed to connect to MongoDB", err)
		}
		defer mongodb.Close(context.Background())

		accounts, histories = postgres, mongodb
	}

	var publisher models.EventPublisher
	switch cfg.EventBroker {
	case config.BrokerRabbitMQ:
		logger.Info("connecting to RabbitMQ")
		rabbitmq, err := queue.NewRabbitMQ(cfg.RabbitMQURI)
		if err != nil {
			fatal("failed to connect to RabbitMQ", err)
		}
		defer rabbitmq.Close()
		publisher = rabbitmq
	case config.BrokerKafka:
		logger.Info("using Kafka", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
		kafka := queue.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID)
		defer kafka.Close()
		publisher = kafka
	default:
		logger.Info("event publishing disabled")
	}

	accountService := service.NewAccountService(accounts, histories, publisher, logger)

	router := mux.NewRouter()
	api.SetupRoutes(router, accountService, logger)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(router, "accounts-request"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting server", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("failed to start server", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
		return
	}
	logger.Info("server shut down successfully")
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}

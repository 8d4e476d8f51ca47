package config

import (
	"reflect"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "STORAGE", "EVENT_BROKER", "KAFKA_BROKERS", "OTEL_EXPORTER_OTLP_ENDPOINT"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.Port != "8080" {
		t.Errorf("expected port 8080, got %q", cfg.Port)
	}
	if cfg.Storage != StoragePostgres {
		t.Errorf("expected postgres storage, got %q", cfg.Storage)
	}
	if cfg.EventBroker != BrokerRabbitMQ {
		t.Errorf("expected rabbitmq broker, got %q", cfg.EventBroker)
	}
	if cfg.OTLPEndpoint != "" {
		t.Errorf("expected tracing disabled, got %q", cfg.OTLPEndpoint)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORAGE", "Memory")
	t.Setenv("EVENT_BROKER", "KAFKA")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")

	cfg := Load()
	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %q", cfg.Port)
	}
	if cfg.Storage != StorageMemory {
		t.Errorf("expected memory storage, got %q", cfg.Storage)
	}
	if cfg.EventBroker != BrokerKafka {
		t.Errorf("expected kafka broker, got %q", cfg.EventBroker)
	}
	if want := []string{"k1:9092", "k2:9092"}; !reflect.DeepEqual(cfg.KafkaBrokers, want) {
		t.Errorf("expected brokers %v, got %v", want, cfg.KafkaBrokers)
	}
}

package main

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/donorguard/abuse"
	"github.com/MrEthical07/donorguard/broker"
	"github.com/MrEthical07/donorguard/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewPublisherWithoutBrokerLogsAbuseEvents(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	publisher, connected, err := newPublisher(config.Settings{}, zap.New(core))
	if err != nil {
		t.Fatalf("newPublisher failed: %v", err)
	}
	defer publisher.Close()
	if connected {
		t.Fatal("no broker is configured")
	}
	if _, ok := publisher.(broker.LogPublisher); !ok {
		t.Fatalf("expected LogPublisher, got %T", publisher)
	}

	sink := abuse.NewAMQPSink(publisher, "donorguard.abuse")
	err = sink.Emit(context.Background(), abuse.Event{
		Timestamp: time.Now(),
		IP:        "203.0.113.9",
		Category:  abuse.CategoryRateLimited,
	})
	if err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	entries := logs.FilterMessage("broker disabled, event not published").All()
	if len(entries) != 1 {
		t.Fatalf("expected one unpublished entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["routing_key"]; got != "abuse.rate_limited" {
		t.Fatalf("unexpected routing key %v", got)
	}
}

func TestNewPublisherRejectsBadBrokerURL(t *testing.T) {
	_, _, err := newPublisher(config.Settings{RabbitMQURL: "redis://localhost:6379"}, zap.NewNop())
	if err == nil {
		t.Fatal("expected error for non-amqp url")
	}
}

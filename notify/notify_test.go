package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

type recordingPublisher struct {
	exchange, routingKey string
	payload              []byte
}

func (p *recordingPublisher) Publish(_ context.Context, exchange, routingKey string, body any) error {
	p.exchange, p.routingKey = exchange, routingKey
	var err error
	p.payload, err = json.Marshal(body)
	return err
}

func (p *recordingPublisher) Close() {}

func TestAMQPNotifierPublishesIssuedCode(t *testing.T) {
	pub := &recordingPublisher{}
	n := NewAMQPNotifier(pub, "")

	err := n.Notify(context.Background(), Notification{
		Subject:   "a@b.com",
		Purpose:   "registration",
		Code:      "482913",
		ExpiresIn: 600 * time.Second,
		IssuedAt:  time.Unix(1767225600, 0).UTC(),
	})
	if err != nil {
		t.Fatalf("Notify failed: %v", err)
	}
	if pub.exchange != DefaultExchange || pub.routingKey != RoutingOTPIssued {
		t.Fatalf("unexpected routing %s/%s", pub.exchange, pub.routingKey)
	}

	var got map[string]any
	if err := json.Unmarshal(pub.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got["subject"] != "a@b.com" || got["code"] != "482913" || got["expires_in_seconds"] != float64(600) {
		t.Fatalf("unexpected payload %v", got)
	}
}

func TestLogNotifierHidesCodeByDefault(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := LogNotifier{Log: zap.New(core)}

	_ = n.Notify(context.Background(), Notification{Subject: "a@b.com", Code: "482913"})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if _, ok := entries[0].ContextMap()["code"]; ok {
		t.Fatal("code must not be logged unless RevealCode is set")
	}

	n.RevealCode = true
	_ = n.Notify(context.Background(), Notification{Subject: "a@b.com", Code: "482913"})
	if logs.All()[1].ContextMap()["code"] != "482913" {
		t.Fatal("expected code with RevealCode")
	}
}

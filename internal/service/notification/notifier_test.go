package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/funko-orders/internal/domain"
	"github.com/vladislavdragonenkov/funko-orders/internal/storage/memory"
)

func sampleOrder() domain.Order {
	return domain.Order{
		ID:     "order-1",
		UserID: "user-1",
		Client: domain.Client{FullName: "Ana Pérez", Email: "ana@example.com"},
		Lines: []domain.OrderLine{{
			ProductID:    "P1",
			ProductPrice: decimal.RequireFromString("19.99"),
			Quantity:     3,
			Total:        decimal.RequireFromString("59.97"),
		}},
		TotalItems: 3,
		Total:      decimal.RequireFromString("59.97"),
	}
}

func TestOutboxNotifier_EnqueuesPayload(t *testing.T) {
	ctx := context.Background()
	outbox := memory.NewOutboxRepository()
	notifier := NewOutboxNotifier(outbox, nil)
	notifier.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	if err := notifier.Notify(ctx, domain.NotificationCreate, sampleOrder()); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	pending := outbox.AllPending()
	if len(pending) != 1 {
		t.Fatalf("expected 1 outbox message, got %d", len(pending))
	}
	msg := pending[0]
	if msg.EventType != "ORDER_CREATE" || msg.AggregateID != "order-1" || msg.AggregateType != EntityOrder {
		t.Fatalf("unexpected outbox message: %+v", msg)
	}

	var decoded OrderNotification
	if err := json.Unmarshal(msg.Payload, &decoded); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if decoded.Type != domain.NotificationCreate || decoded.Entity != "order" {
		t.Fatalf("unexpected envelope: %+v", decoded)
	}
	if !decoded.Data.Total.Equal(decimal.RequireFromString("59.97")) || len(decoded.Data.Lines) != 1 {
		t.Fatalf("unexpected data: %+v", decoded.Data)
	}
}

func TestOutboxNotifier_PayloadKeepsDecimalStrings(t *testing.T) {
	payload, err := json.Marshal(NewOrderNotification(domain.NotificationUpdate, sampleOrder(), time.Unix(0, 0).UTC()))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	data := raw["data"].(map[string]any)
	if data["total"] != "59.97" {
		t.Fatalf("expected total as exact string, got %#v", data["total"])
	}
}

type failingOutbox struct {
	domain.OutboxRepository
}

func (failingOutbox) Enqueue(context.Context, domain.OutboxMessage) (domain.OutboxMessage, error) {
	return domain.OutboxMessage{}, errors.New("outbox unavailable")
}

func TestOutboxNotifier_PropagatesEnqueueError(t *testing.T) {
	notifier := NewOutboxNotifier(failingOutbox{}, nil)
	if err := notifier.Notify(context.Background(), domain.NotificationDelete, sampleOrder()); err == nil {
		t.Fatal("expected enqueue error")
	}
}

func TestLogNotifier_NeverFails(t *testing.T) {
	notifier := NewLogNotifier(nil)
	if err := notifier.Notify(context.Background(), domain.NotificationDelete, sampleOrder()); err != nil {
		t.Fatalf("log notifier must not fail: %v", err)
	}
}

func TestEventType(t *testing.T) {
	if got := EventType(domain.NotificationUpdate); got != "ORDER_UPDATE" {
		t.Fatalf("unexpected event type %q", got)
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		eventType string
		want      domain.NotificationType
		ok        bool
	}{
		{eventType: "ORDER_CREATE", want: domain.NotificationCreate, ok: true},
		{eventType: "ORDER_UPDATE", want: domain.NotificationUpdate, ok: true},
		{eventType: "ORDER_DELETE", want: domain.NotificationDelete, ok: true},
		{eventType: "ORDER_ARCHIVE"},
		{eventType: "CREATE"},
		{eventType: ""},
	}

	for _, tc := range tests {
		got, ok := KindOf(tc.eventType)
		if got != tc.want || ok != tc.ok {
			t.Fatalf("KindOf(%q) = %q, %v; want %q, %v", tc.eventType, got, ok, tc.want, tc.ok)
		}
	}
}

func TestDecode_RoundTripsEnqueuedNotification(t *testing.T) {
	ctx := context.Background()
	outbox := memory.NewOutboxRepository()
	if err := NewOutboxNotifier(outbox, nil).Notify(ctx, domain.NotificationUpdate, sampleOrder()); err != nil {
		t.Fatalf("notify failed: %v", err)
	}

	decoded, err := Decode(outbox.AllPending()[0])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.Type != domain.NotificationUpdate || decoded.Data.UserID != "user-1" || decoded.Data.TotalItems != 3 {
		t.Fatalf("unexpected notification: %+v", decoded)
	}
}

func TestDecode_RejectsInconsistentMessages(t *testing.T) {
	valid, err := json.Marshal(NewOrderNotification(domain.NotificationCreate, sampleOrder(), time.Unix(0, 0).UTC()))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	foreign, err := json.Marshal(OrderNotification{Entity: "product", Type: domain.NotificationCreate, Data: OrderPayload{ID: "order-1"}})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	tests := map[string]domain.OutboxMessage{
		"unknown event":      {AggregateID: "order-1", EventType: "ORDER_ARCHIVE", Payload: valid},
		"broken json":        {AggregateID: "order-1", EventType: "ORDER_CREATE", Payload: []byte(`{"entity":`)},
		"foreign entity":     {AggregateID: "order-1", EventType: "ORDER_CREATE", Payload: foreign},
		"type mismatch":      {AggregateID: "order-1", EventType: "ORDER_DELETE", Payload: valid},
		"aggregate mismatch": {AggregateID: "order-2", EventType: "ORDER_CREATE", Payload: valid},
	}

	for name, msg := range tests {
		if _, err := Decode(msg); !errors.Is(err, domain.ErrMalformedNotification) {
			t.Fatalf("%s: expected ErrMalformedNotification, got %v", name, err)
		}
	}
}

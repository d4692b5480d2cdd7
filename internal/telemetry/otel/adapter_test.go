package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"identity-session-plane/internal/events"
)

func TestNewEventProducer_NilProvider_ReturnsNoop(t *testing.T) {
	p := NewEventProducer(nil)
	if p == nil {
		t.Fatal("NewEventProducer(nil) returned nil")
	}
	if err := p.Emit(context.Background(), nil); err != nil {
		t.Errorf("noop Emit(ctx, nil): %v", err)
	}
	if err := p.Emit(context.Background(), events.New(events.TypeLogin, "u-1", "s-1")); err != nil {
		t.Errorf("noop Emit(ctx, event): %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("noop Close: %v", err)
	}
}

func TestEmit_NilEvent_ReturnsNil(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	p := NewEventProducer(provider)
	if err := p.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(ctx, nil): %v", err)
	}
}

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	rec otellog.Record
}

func (r *recordCapture) Emit(ctx context.Context, rec otellog.Record) {
	r.rec = rec
}

func TestEmit_AttributeAndBodyMapping(t *testing.T) {
	cap := &recordCapture{}
	p := NewEventProducerWithLogger(cap)
	event := &events.SecurityEvent{
		ID:        "e-1",
		UserID:    "user1",
		SessionID: "sess1",
		EventType: events.TypeLogin,
		Source:    "session-plane",
		Metadata:  map[string]string{"plan": "pro"},
		CreatedAt: time.Now().UTC(),
	}
	if err := p.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := cap.rec

	if got := rec.Body().AsString(); got != events.TypeLogin {
		t.Errorf("body = %q, want %q", got, events.TypeLogin)
	}

	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	want := map[string]string{
		"event_id": "e-1", "user_id": "user1", "session_id": "sess1",
		"event_type": events.TypeLogin, "source": "session-plane", "plan": "pro",
	}
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
	if rec.Timestamp() != event.CreatedAt {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), event.CreatedAt)
	}
}

func TestEmit_ZeroTimestamp_SetsCurrentTime(t *testing.T) {
	cap := &recordCapture{}
	p := NewEventProducerWithLogger(cap)
	event := &events.SecurityEvent{EventType: events.TypeLogout}
	if err := p.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	if cap.rec.Timestamp().IsZero() {
		t.Error("timestamp should default to now")
	}
}

package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"identity-session-plane/internal/events"
)

// NewEventProducer returns an events.Producer that sends security events
// as OTel log records via the given LoggerProvider. Used when no Kafka
// brokers are configured. If provider is nil, returns a no-op producer.
func NewEventProducer(provider *sdklog.LoggerProvider) events.Producer {
	if provider == nil {
		return noopProducer{}
	}
	return &otelProducer{logger: provider.Logger("isp.events")}
}

// NewEventProducerWithLogger is like NewEventProducer but takes the log
// record sink directly; tests use it to capture records.
func NewEventProducerWithLogger(logger recordEmitter) events.Producer {
	return &otelProducer{logger: logger}
}

type noopProducer struct{}

func (noopProducer) Emit(context.Context, *events.SecurityEvent) error { return nil }
func (noopProducer) Close() error { return nil }

// recordEmitter is the slice of otellog.Logger the producer needs.
type recordEmitter interface {
	Emit(ctx context.Context, rec otellog.Record)
}

type otelProducer struct {
	logger recordEmitter
}

// Emit converts the security event to an OTel log record and emits it. Best-effort.
func (p *otelProducer) Emit(ctx context.Context, event *events.SecurityEvent) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	} else {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetBody(otellog.StringValue(event.EventType))
	if event.ID != "" {
		rec.AddAttributes(otellog.String("event_id", event.ID))
	}
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	if event.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", event.SessionID))
	}
	if event.EventType != "" {
		rec.AddAttributes(otellog.String("event_type", event.EventType))
	}
	if event.Source != "" {
		rec.AddAttributes(otellog.String("source", event.Source))
	}
	for k, v := range event.Metadata {
		rec.AddAttributes(otellog.String(k, v))
	}
	p.logger.Emit(ctx, rec)
	return nil
}

func (p *otelProducer) Close() error { return nil }

// Package otel wires the OTLP trace, metric, and log pipelines and adapts
// security events onto the log pipeline when Kafka is not configured.
package otel

import (
	"context"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
)

const metricExportInterval = 10 * time.Second

// Providers bundles the three signal providers with a single Shutdown that
// flushes them in reverse construction order.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider
	Shutdown       func(context.Context) error
}

// collectorTarget reduces the configured endpoint to the host:port the gRPC
// exporters dial. Any URL path is dropped. An https scheme means TLS unless
// insecureOverride is set, matching OTEL_EXPORTER_OTLP_INSECURE.
func collectorTarget(endpoint string, insecureOverride bool) (target string, insecure bool, err error) {
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return u.Host, insecureOverride || u.Scheme != "https", nil
}

// NewProviders builds trace, metric, and log providers exporting over OTLP
// gRPC to endpoint. An empty endpoint yields no-op providers so local runs
// need no collector.
func NewProviders(ctx context.Context, endpoint, serviceName string, insecureOverride bool) (*Providers, error) {
	if strings.TrimSpace(endpoint) == "" {
		return &Providers{
			TracerProvider: sdktrace.NewTracerProvider(),
			MeterProvider:  metric.NewMeterProvider(),
			LoggerProvider: sdklog.NewLoggerProvider(),
			Shutdown:       func(context.Context) error { return nil },
		}, nil
	}

	target, insecure, err := collectorTarget(strings.TrimSpace(endpoint), insecureOverride)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(semconv.SchemaURL, semconv.ServiceNameKey.String(serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	var closers []func(context.Context) error
	abort := func(cause error) error {
		for _, c := range closers {
			_ = c(ctx)
		}
		return cause
	}

	traceOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
	if insecure {
		traceOpts = append(traceOpts, otlptracegrpc.WithInsecure())
	}
	traceExp, err := otlptracegrpc.New(ctx, traceOpts...)
	if err != nil {
		return nil, abort(fmt.Errorf("trace exporter: %w", err))
	}
	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(traceExp), sdktrace.WithResource(res))
	closers = append(closers, tp.Shutdown)

	metricOpts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(target)}
	if insecure {
		metricOpts = append(metricOpts, otlpmetricgrpc.WithInsecure())
	}
	metricExp, err := otlpmetricgrpc.New(ctx, metricOpts...)
	if err != nil {
		return nil, abort(fmt.Errorf("metric exporter: %w", err))
	}
	mp := metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(metricExp, metric.WithInterval(metricExportInterval))),
	)
	closers = append(closers, mp.Shutdown)

	logOpts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(target)}
	if insecure {
		logOpts = append(logOpts, otlploggrpc.WithInsecure())
	}
	logExp, err := otlploggrpc.New(ctx, logOpts...)
	if err != nil {
		return nil, abort(fmt.Errorf("log exporter: %w", err))
	}
	lp := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		sdklog.WithResource(res),
	)
	closers = append(closers, lp.Shutdown)

	shutdown := func(ctx context.Context) error {
		var lastErr error
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](ctx); err != nil {
				log.Printf("telemetry: shutdown: %v", err)
				lastErr = err
			}
		}
		return lastErr
	}

	return &Providers{TracerProvider: tp, MeterProvider: mp, LoggerProvider: lp, Shutdown: shutdown}, nil
}

// SetGlobal installs the tracer and meter providers globally. The logger
// provider stays local; the event adapter takes it explicitly.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}

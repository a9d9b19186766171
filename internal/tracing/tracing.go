// Package tracing wraps tool-loop iterations and process-lifecycle
// events in OpenTelemetry spans (domain-stack item A7), exported over
// OTLP/gRPC when enabled, and a no-op tracer otherwise so call sites
// never branch on whether telemetry is configured.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/chorus-run/chorus/internal/config"
)

// Shutdown flushes and stops the configured tracer provider. Calling it
// on a no-op provider is a harmless no-op.
type Shutdown func(ctx context.Context) error

// Setup installs a global TracerProvider per cfg. When cfg.Enabled is
// false, the global no-op tracer is left in place and Shutdown does
// nothing.
func Setup(ctx context.Context, cfg config.TelemetryConfig) (Shutdown, error) {
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("tracing: otlp exporter: %w", err)
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "chorus"
	}
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		semconv.ServiceName(serviceName),
	))
	if err != nil {
		return nil, fmt.Errorf("tracing: resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// Tracer returns the named tracer from the globally installed provider.
func Tracer(name string) trace.Tracer { return otel.Tracer(name) }

// StartToolLoopIteration opens a tool_loop.iteration span carrying the
// agent name and thread id, per the tracing plan in SPEC_FULL.md.
func StartToolLoopIteration(ctx context.Context, agentName string, threadID int) (context.Context, trace.Span) {
	return Tracer("chorus/toolloop").Start(ctx, "tool_loop.iteration",
		trace.WithAttributes(
			attribute.String("agent.name", agentName),
			attribute.Int("thread.id", threadID),
		),
	)
}

// StartProcessSupervise opens a process.supervise span carrying the
// agent name and pid.
func StartProcessSupervise(ctx context.Context, agentName string, pid int) (context.Context, trace.Span) {
	return Tracer("chorus/supervisor").Start(ctx, "process.supervise",
		trace.WithAttributes(
			attribute.String("agent.name", agentName),
			attribute.Int("process.pid", pid),
		),
	)
}

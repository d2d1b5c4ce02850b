// Package obs sets up OpenTelemetry tracing for the server.
package obs

import (
	"context"
	"fmt"

	"github.com/createarena/arena/config"
	"github.com/createarena/arena/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const instrumentation = "github.com/createarena/arena"

// InitTracer exports spans over OTLP/gRPC to endpoint. With no endpoint the
// global no-op provider stays in place. The returned func flushes and stops.
func InitTracer(ctx context.Context, endpoint, environment string) (func(context.Context) error, error) {
	if endpoint == "" {
		logger.Debug("tracing disabled: no otlp endpoint")
		return func(context.Context) error { return nil }, nil
	}

	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("otlp dial: %w", err)
	}
	exp, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("otlp exporter: %w", err)
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(config.GetName()),
			semconv.ServiceVersionKey.String(config.GetVersion()),
			semconv.DeploymentEnvironmentKey.String(environment),
		),
	)
	if err != nil {
		logger.Warning("otel resource:", err)
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exp),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})
	logger.Info("tracing to", endpoint)
	return tp.Shutdown, nil
}

// Tracer returns the arena tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(instrumentation)
}

// Start opens a span named name under ctx.
func Start(ctx context.Context, name string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name)
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

package tracing

import (
	"context"
	"fmt"
	"io"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"challenge-media/internal/logging"
)

const instrumentationPrefix = "challenge-media/"

// Config controls trace export.
type Config struct {
	Enabled     bool
	ServiceName string
	Version     string
	PrettyPrint bool
	// Writer receives exported spans (default stdout)
	Writer io.Writer
}

// Init installs a global tracer provider exporting to stdout. When tracing is
// disabled the global no-op provider stays in place. The returned function
// flushes and shuts the provider down.
func Init(ctx context.Context, config Config) (func(context.Context) error, error) {
	if !config.Enabled {
		logging.Debug("Tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	opts := []stdouttrace.Option{}
	if config.PrettyPrint {
		opts = append(opts, stdouttrace.WithPrettyPrint())
	}
	if config.Writer != nil {
		opts = append(opts, stdouttrace.WithWriter(config.Writer))
	}

	exporter, err := stdouttrace.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", config.ServiceName),
			attribute.String("service.version", config.Version),
		)),
	)
	otel.SetTracerProvider(tp)

	if err := tp.ForceFlush(ctx); err != nil {
		logging.Warn("Failed to flush traces: %v", err)
	}

	logging.Info("Tracing enabled (stdout exporter, service=%s)", config.ServiceName)
	return tp.Shutdown, nil
}

// Tracer returns a named tracer from the global provider.
func Tracer(component string) trace.Tracer {
	return otel.Tracer(instrumentationPrefix + component)
}

// RecordError marks span as failed with err. A nil err is ignored.
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

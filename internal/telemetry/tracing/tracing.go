package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	log "github.com/sirupsen/logrus"
)

var GlobalTracer = otel.Tracer("wtr-backend")

// Setup configures the global OpenTelemetry tracer provider. When disabled,
// the default no-op provider stays in place and the returned shutdown
// function does nothing.
func Setup(enabled bool) (shutdown func(), err error) {
	if !enabled {
		return func() {}, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(tp)
	GlobalTracer = otel.Tracer("wtr-backend")

	return func() {
		if err := tp.Shutdown(context.Background()); err != nil {
			log.Errorf("tracer provider shutdown: %s", err)
		}
	}, nil
}

func EndSpanWithErrCheck(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.RecordError(err)
	}
	span.End()
}

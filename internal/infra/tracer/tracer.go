package tracer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"chrysalis/internal/infra/config"
)

const tracerName = "chrysalis"

// Span attribute keys shared by the mission services.
const (
	KeyMissionID = attribute.Key("mission.id")
	KeyAgentID   = attribute.Key("agent.id")
	KeyStepID    = attribute.Key("step.id")
	KeyReportID  = attribute.Key("report.id")
	KeyEvent     = attribute.Key("mission.event")
	KeyCount     = attribute.Key("result.count")
	KeyDelivery  = attribute.Key("delivery.mode")
	KeyDelivered = attribute.Key("delivery.delivered")
	KeyAttempted = attribute.Key("delivery.attempted")
)

// Setup installs the global TracerProvider and returns its shutdown function.
// Disabled tracing and the "noop" exporter both install a noop provider.
func Setup(ctx context.Context, cfg config.TracerConfig) (func(context.Context) error, error) {
	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, err
	}
	if exporter == nil {
		otel.SetTracerProvider(noop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", tracerName),
		)),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// newExporter returns nil when spans should not be exported at all.
func newExporter(cfg config.TracerConfig) (sdktrace.SpanExporter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch cfg.Exporter {
	case "", "noop":
		return nil, nil
	case "stdout":
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", cfg.Exporter)
	}
}

// StartSpan starts a span on the chrysalis tracer.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, opts...)
}

// RecordError records err on the span and marks it failed.
func RecordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// SetOK marks the span successful.
func SetOK(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

func MissionAttr(id string) attribute.KeyValue { return KeyMissionID.String(id) }
func AgentAttr(id string) attribute.KeyValue { return KeyAgentID.String(id) }
func StepAttr(id string) attribute.KeyValue { return KeyStepID.String(id) }
func ReportAttr(id string) attribute.KeyValue { return KeyReportID.String(id) }

// EventAttr tags a span with the notification event it produced.
func EventAttr(event string) attribute.KeyValue { return KeyEvent.String(event) }

// CountAttr records the size of a listing.
func CountAttr(n int) attribute.KeyValue { return KeyCount.Int(n) }

// DeliveryAttrs describes how a notification was fanned out.
func DeliveryAttrs(mode string, attempted, delivered int) []attribute.KeyValue {
	return []attribute.KeyValue{
		KeyDelivery.String(mode),
		KeyAttempted.Int(attempted),
		KeyDelivered.Int(delivered),
	}
}

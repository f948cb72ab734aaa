package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/jarvis"

type interactionKey struct{}

// Tracer returns the tracer of the global [trace.TracerProvider].
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// StartInteraction starts the root span of one wake-to-dispatch interaction
// and stores id in the context so that [Logger] can attach it.
func StartInteraction(ctx context.Context, id, source string) (context.Context, trace.Span) {
	ctx = context.WithValue(ctx, interactionKey{}, id)
	return StartSpan(ctx, "interaction",
		trace.WithAttributes(
			attribute.String("interaction.id", id),
			attribute.String("wake.source", source),
		),
	)
}

// InteractionID returns the id stored by [StartInteraction], or "".
func InteractionID(ctx context.Context) string {
	id, _ := ctx.Value(interactionKey{}).(string)
	return id
}

// CorrelationID returns the trace ID of the active span, or "" when there is
// none.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Logger returns the default logger enriched with the interaction id and
// the trace and span IDs found in ctx.
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if id := InteractionID(ctx); id != "" {
		l = l.With(slog.String("interaction_id", id))
	}
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return l
}

package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentationName scopes spans and instruments created by medscribe.
const InstrumentationName = "github.com/kbukum/medscribe"

// Attribute keys shared by spans and metrics.
const (
	AttrSessionID    = "session.id"
	AttrUserID       = "user.id"
	AttrConnectionID = "connection.id"
	AttrModel        = "inference.model"
	AttrProvider     = "transcription.provider"
	AttrResult       = "result"
)

// Tracer returns the medscribe tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Meter returns the medscribe meter from the global provider.
func Meter() metric.Meter {
	return otel.Meter(InstrumentationName)
}

// StartSpan starts a span with string attributes given as key/value pairs.
func StartSpan(ctx context.Context, name string, kvs ...string) (context.Context, trace.Span) {
	attrs := make([]attribute.KeyValue, 0, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		attrs = append(attrs, attribute.String(kvs[i], kvs[i+1]))
	}
	return Tracer().Start(ctx, name, trace.WithAttributes(attrs...))
}

// EndSpan records err, if any, and ends span.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

package observability

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Result attribute values.
const (
	ResultOK    = "ok"
	ResultError = "error"
)

// Metrics holds the service's metric instruments. A nil *Metrics records
// nothing.
type Metrics struct {
	requestTotal         metric.Int64Counter
	requestDuration      metric.Float64Histogram
	chunkTotal           metric.Int64Counter
	chunkDuration        metric.Float64Histogram
	flushTotal           metric.Int64Counter
	activeTranscriptions metric.Int64UpDownCounter
	evictionTotal        metric.Int64Counter
	inferenceTotal       metric.Int64Counter
	inferenceDuration    metric.Float64Histogram
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	if m.requestTotal, err = meter.Int64Counter("http.server.requests",
		metric.WithDescription("Completed HTTP requests"),
	); err != nil {
		return nil, fmt.Errorf("creating http.server.requests counter: %w", err)
	}
	if m.requestDuration, err = meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating http.server.duration histogram: %w", err)
	}
	if m.chunkTotal, err = meter.Int64Counter("transcription.chunks",
		metric.WithDescription("Audio chunks processed"),
	); err != nil {
		return nil, fmt.Errorf("creating transcription.chunks counter: %w", err)
	}
	if m.chunkDuration, err = meter.Float64Histogram("transcription.chunk.duration",
		metric.WithDescription("Backend transcription latency per chunk"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating transcription.chunk.duration histogram: %w", err)
	}
	if m.flushTotal, err = meter.Int64Counter("transcription.flushes",
		metric.WithDescription("Transcript writes to the session store"),
	); err != nil {
		return nil, fmt.Errorf("creating transcription.flushes counter: %w", err)
	}
	if m.activeTranscriptions, err = meter.Int64UpDownCounter("transcription.active",
		metric.WithDescription("Active transcriptions"),
	); err != nil {
		return nil, fmt.Errorf("creating transcription.active gauge: %w", err)
	}
	if m.evictionTotal, err = meter.Int64Counter("transcription.evictions",
		metric.WithDescription("Idle transcriptions evicted by the reaper"),
	); err != nil {
		return nil, fmt.Errorf("creating transcription.evictions counter: %w", err)
	}
	if m.inferenceTotal, err = meter.Int64Counter("inference.requests",
		metric.WithDescription("Hosted model calls"),
	); err != nil {
		return nil, fmt.Errorf("creating inference.requests counter: %w", err)
	}
	if m.inferenceDuration, err = meter.Float64Histogram("inference.duration",
		metric.WithDescription("Hosted model call duration"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("creating inference.duration histogram: %w", err)
	}
	return &m, nil
}

// RecordRequest records a completed HTTP request.
func (m *Metrics) RecordRequest(ctx context.Context, method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.requestTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
		attribute.Int("http.status_code", status),
	))
	m.requestDuration.Record(ctx, d.Seconds(), metric.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.route", route),
	))
}

// RecordChunk records one backend transcription call.
func (m *Metrics) RecordChunk(ctx context.Context, provider, result string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrProvider, provider), attribute.String(AttrResult, result))
	m.chunkTotal.Add(ctx, 1, attrs)
	m.chunkDuration.Record(ctx, d.Seconds(), attrs)
}

// RecordFlush records one transcript write.
func (m *Metrics) RecordFlush(ctx context.Context, reason, result string) {
	if m == nil {
		return
	}
	m.flushTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
		attribute.String(AttrResult, result),
	))
}

// TranscriptionStarted increments the active transcription count.
func (m *Metrics) TranscriptionStarted(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeTranscriptions.Add(ctx, 1)
}

// TranscriptionEnded decrements the active transcription count.
func (m *Metrics) TranscriptionEnded(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.activeTranscriptions.Add(ctx, -1, metric.WithAttributes(attribute.String("reason", reason)))
	if reason == "evicted" {
		m.evictionTotal.Add(ctx, 1)
	}
}

// RecordInference records one hosted model call.
func (m *Metrics) RecordInference(ctx context.Context, model, result string, d time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrModel, model), attribute.String(AttrResult, result))
	m.inferenceTotal.Add(ctx, 1, attrs)
	m.inferenceDuration.Record(ctx, d.Seconds(), attrs)
}

// Result maps err to ResultOK or ResultError.
func Result(err error) string {
	if err != nil {
		return ResultError
	}
	return ResultOK
}

// Package inference proxies entity extraction, summarization and image
// classification to a Hugging Face compatible inference API.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"

	apperrors "github.com/kbukum/medscribe/errors"
	"github.com/kbukum/medscribe/httpclient"
	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/observability"
	"github.com/kbukum/medscribe/resilience"
)

// Summary length defaults.
const (
	DefaultMaxLength = 150
	DefaultMinLength = 50
)

// Client calls hosted models.
type Client struct {
	http    *httpclient.Client
	cfg     Config
	log     *logger.Logger
	metrics *observability.Metrics
}

// Option customizes a Client.
type Option func(*Client)

// WithMetrics records every model call on m.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// New creates a Client.
func New(cfg Config, log *logger.Logger, opts ...Option) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log = log.WithComponent("inference")
	hc := httpclient.Config{
		Name:    "inference",
		BaseURL: cfg.BaseURL,
		Timeout: cfg.Timeout,
		Auth:    httpclient.BearerAuth(cfg.APIKey),
	}
	if cfg.MaxAttempts > 1 {
		retry := httpclient.DefaultRetryConfig()
		retry.MaxAttempts = cfg.MaxAttempts
		retry.InitialBackoff = 500 * time.Millisecond
		hc.Retry = retry
	}
	if cfg.RequestsPerSecond > 0 {
		hc.RateLimiter = &resilience.RateLimiterConfig{Name: "inference", Rate: cfg.RequestsPerSecond}
	}
	cb := resilience.DefaultCircuitBreakerConfig("inference")
	hc.CircuitBreaker = &cb

	client, err := httpclient.New(hc)
	if err != nil {
		return nil, err
	}
	c := &Client{http: client, cfg: cfg, log: log}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ExtractEntities runs the NER model and keeps entities scoring above the
// configured threshold.
func (c *Client) ExtractEntities(ctx context.Context, text string) ([]Entity, error) {
	var items []nerItem
	if err := c.call(ctx, c.cfg.NERModel, map[string]string{"inputs": text}, &items); err != nil {
		return nil, err
	}

	entities := make([]Entity, 0, len(items))
	for _, it := range items {
		if it.Score <= c.cfg.MinEntityScore {
			continue
		}
		label := it.EntityGroup
		if label == "" {
			label = it.Entity
		}
		entities = append(entities, Entity{
			Text:       it.Word,
			Label:      label,
			Confidence: it.Score,
			Start:      it.Start,
			End:        it.End,
		})
	}
	return entities, nil
}

// Summarize runs the summarization model. Non-positive lengths fall back to
// the defaults.
func (c *Client) Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error) {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	req := summaryRequest{
		Inputs:     text,
		Parameters: summaryParameters{MaxLength: maxLength, MinLength: minLength},
	}

	var raw json.RawMessage
	if err := c.call(ctx, c.cfg.SummaryModel, req, &raw); err != nil {
		return "", err
	}
	return decodeSummary(raw), nil
}

// decodeSummary accepts either [{summary_text}] or {summary_text}.
func decodeSummary(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '[' {
		var list []summaryItem
		if json.Unmarshal(raw, &list) == nil && len(list) > 0 {
			return list[0].SummaryText
		}
		return ""
	}
	var single summaryItem
	_ = json.Unmarshal(raw, &single)
	return single.SummaryText
}

// ClassifyImage runs the image model and returns the top findings by
// confidence.
func (c *Client) ClassifyImage(ctx context.Context, image []byte, top int) ([]ImageFinding, error) {
	var items []classItem
	if err := c.call(ctx, c.cfg.ImageModel, image, &items); err != nil {
		return nil, err
	}

	sort.SliceStable(items, func(i, j int) bool { return items[i].Score > items[j].Score })
	if top > 0 && len(items) > top {
		items = items[:top]
	}
	findings := make([]ImageFinding, len(items))
	for i, it := range items {
		findings[i] = ImageFinding{Label: it.Label, Confidence: it.Score, Description: Describe(it.Label)}
	}
	return findings, nil
}

// AnalyzeSession runs entity extraction and summarization over transcript and
// classification over image. Individual failures are logged and yield empty
// results.
func (c *Client) AnalyzeSession(ctx context.Context, transcript string, image []byte) SessionAnalysis {
	var out SessionAnalysis
	log := c.log.WithContext(ctx)

	if transcript != "" {
		entities, err := c.ExtractEntities(ctx, transcript)
		if err != nil {
			log.Warn("Entity extraction failed", map[string]interface{}{logger.FieldError: err.Error()})
			entities = []Entity{}
		}
		out.Entities = entities

		summary, err := c.Summarize(ctx, transcript, 0, 0)
		if err != nil {
			log.Warn("Summarization failed", map[string]interface{}{logger.FieldError: err.Error()})
			summary = ""
		}
		out.Summary = &summary
	}

	if len(image) > 0 {
		findings, err := c.ClassifyImage(ctx, image, 3)
		if err != nil {
			log.Warn("Image analysis failed", map[string]interface{}{logger.FieldError: err.Error()})
			findings = []ImageFinding{}
		}
		out.ImageAnalysis = findings
	}
	return out
}

func (c *Client) call(ctx context.Context, model string, body any, out any) (err error) {
	ctx, span := observability.StartSpan(ctx, "inference."+model, observability.AttrModel, model)
	defer func() { observability.EndSpan(span, err) }()

	start := time.Now()
	resp, err := c.http.Do(ctx, httpclient.Request{Method: http.MethodPost, Path: model, Body: body})
	if err == nil {
		err = json.Unmarshal(resp.Body, out)
	}

	elapsed := time.Since(start)
	c.metrics.RecordInference(ctx, model, observability.Result(err), elapsed)

	fields := map[string]interface{}{
		"model":              model,
		logger.FieldDuration: elapsed.Milliseconds(),
	}
	if err != nil {
		fields[logger.FieldError] = err.Error()
		c.log.WithContext(ctx).Error("Inference request failed", fields)
		return apperrors.ExternalServiceError("AI", err)
	}
	c.log.WithContext(ctx).Debug("Inference request completed", fields)
	return nil
}

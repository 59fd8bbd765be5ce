// Package huggingface transcribes audio with a Whisper model served by the
// Hugging Face inference API. Audio is posted as the raw request body.
package huggingface

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/medscribe/httpclient"
	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/transcription"
)

func init() {
	transcription.RegisterFactory(transcription.ProviderHuggingFace, func(cfg transcription.Config, log *logger.Logger) (transcription.Provider, error) {
		return New(cfg, log)
	})
}

// Provider calls <BaseURL>/<Model>.
type Provider struct {
	client  *httpclient.Client
	model   string
	timeout time.Duration
}

var _ transcription.Provider = (*Provider)(nil)

// New creates a provider. cfg must already carry defaults.
func New(cfg transcription.Config, log *logger.Logger) (*Provider, error) {
	client, err := transcription.NewHTTPClient(transcription.ProviderHuggingFace, cfg, httpclient.BearerAuth(cfg.APIKey), log)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client, model: cfg.Model, timeout: cfg.Timeout}, nil
}

func (p *Provider) Name() string { return transcription.ProviderHuggingFace }

type response struct {
	Text string `json:"text"`
}

// Transcribe posts audio as audio/wav and returns the trimmed text.
func (p *Provider) Transcribe(ctx context.Context, audio []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Do(ctx, httpclient.Request{
		Method:  http.MethodPost,
		Path:    p.model,
		Headers: map[string]string{"Content-Type": "audio/wav"},
		Body:    audio,
	})
	if err != nil {
		return "", transcription.NewFailure(p.Name(), err)
	}

	out, err := httpclient.DecodeJSON[response](resp)
	if err != nil {
		return "", transcription.NewFailure(p.Name(), err)
	}
	return strings.TrimSpace(out.Text), nil
}

// Package whisper transcribes audio with a self-hosted faster-whisper HTTP
// sidecar. Audio is sent as a multipart upload to <BaseURL>/transcribe.
package whisper

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
	transcription.RegisterFactory(transcription.ProviderWhisper, func(cfg transcription.Config, log *logger.Logger) (transcription.Provider, error) {
		return New(cfg, log)
	})
}

// Provider implements transcription.Provider for the sidecar.
type Provider struct {
	client   *httpclient.Client
	model    string
	language string
	timeout  time.Duration
}

var _ transcription.Provider = (*Provider)(nil)

func New(cfg transcription.Config, log *logger.Logger) (*Provider, error) {
	var auth *httpclient.AuthConfig
	if cfg.APIKey != "" {
		auth = httpclient.BearerAuth(cfg.APIKey)
	}
	client, err := transcription.NewHTTPClient(transcription.ProviderWhisper, cfg, auth, log)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client, model: cfg.Model, language: cfg.Language, timeout: cfg.Timeout}, nil
}

func (p *Provider) Name() string { return transcription.ProviderWhisper }

type response struct {
	Text     string    `json:"text"`
	Language string    `json:"language"`
	Segments []segment `json:"segments"`
}

type segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

func (p *Provider) Transcribe(ctx context.Context, audio []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	fields := map[string]string{"model": p.model}
	if p.language != "" {
		fields["language"] = p.language
	}

	resp, err := p.client.Do(ctx, httpclient.Request{
		Method: http.MethodPost,
		Path:   "/transcribe",
		Body: &httpclient.MultipartBody{
			Fields: fields,
			Files: []httpclient.FileField{{
				FieldName:   "audio",
				FileName:    "audio.wav",
				ContentType: "audio/wav",
				Data:        audio,
			}},
		},
	})
	if err != nil {
		return "", transcription.NewFailure(p.Name(), err)
	}

	out, err := httpclient.DecodeJSON[response](resp)
	if err != nil {
		return "", transcription.NewFailure(p.Name(), err)
	}
	if out.Text == "" && len(out.Segments) > 0 {
		parts := make([]string, 0, len(out.Segments))
		for _, s := range out.Segments {
			if t := strings.TrimSpace(s.Text); t != "" {
				parts = append(parts, t)
			}
		}
		return strings.Join(parts, " "), nil
	}
	return strings.TrimSpace(out.Text), nil
}

package huggingface

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/transcription"
)

func newProvider(t *testing.T, url string, mutate func(*transcription.Config)) *Provider {
	t.Helper()
	cfg := transcription.Config{BaseURL: url, APIKey: "hf_key"}
	if mutate != nil {
		mutate(&cfg)
	}
	cfg.ApplyDefaults()
	p, err := New(cfg, logger.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return p
}

func TestTranscribe_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/openai/whisper-large-v3" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer hf_key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "audio/wav" {
			t.Errorf("Content-Type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "RIFFdata" {
			t.Errorf("body = %q", body)
		}
		_, _ = io.WriteString(w, `{"text":"  patient reports chest pain "}`)
	}))
	defer srv.Close()

	text, err := newProvider(t, srv.URL, nil).Transcribe(context.Background(), []byte("RIFFdata"))
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "patient reports chest pain" {
		t.Errorf("text = %q", text)
	}
}

func TestTranscribe_EmptyTextIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"text":""}`)
	}))
	defer srv.Close()

	text, err := newProvider(t, srv.URL, nil).Transcribe(context.Background(), []byte("silence"))
	if err != nil || text != "" {
		t.Fatalf("Transcribe() = %q, %v; want empty, nil", text, err)
	}
}

func TestTranscribe_Failures(t *testing.T) {
	tests := []struct {
		name      string
		handler   http.HandlerFunc
		retryable bool
	}{
		{
			name:      "server error",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) },
			retryable: true,
		},
		{
			name:      "bad request",
			handler:   func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusBadRequest) },
			retryable: false,
		},
		{
			name:      "malformed payload",
			handler:   func(w http.ResponseWriter, r *http.Request) { _, _ = io.WriteString(w, `[1,2`) },
			retryable: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newProvider(t, srv.URL, nil).Transcribe(context.Background(), []byte("a"))
			f, ok := transcription.AsFailure(err)
			if !ok {
				t.Fatalf("error = %v (%T), want *transcription.Failure", err, err)
			}
			if f.Retryable != tt.retryable {
				t.Errorf("Retryable = %v, want %v", f.Retryable, tt.retryable)
			}
			if f.Provider != transcription.ProviderHuggingFace {
				t.Errorf("Provider = %q", f.Provider)
			}
		})
	}
}

func TestTranscribe_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	p := newProvider(t, srv.URL, func(c *transcription.Config) { c.Timeout = 50 * time.Millisecond })
	_, err := p.Transcribe(context.Background(), []byte("a"))
	f, ok := transcription.AsFailure(err)
	if !ok {
		t.Fatalf("error = %v, want *transcription.Failure", err)
	}
	if !f.Retryable {
		t.Error("timeouts should be retryable")
	}
}

func TestTranscribe_RetriesWithinBudget(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"text":"hello"}`)
	}))
	defer srv.Close()

	p := newProvider(t, srv.URL, func(c *transcription.Config) { c.MaxAttempts = 2 })
	text, err := p.Transcribe(context.Background(), []byte("a"))
	if err != nil || text != "hello" {
		t.Fatalf("Transcribe() = %q, %v", text, err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestRegisteredFactory(t *testing.T) {
	p, err := transcription.New(transcription.Config{APIKey: "k"}, logger.NewNop())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if p.Name() != transcription.ProviderHuggingFace {
		t.Errorf("Name() = %q", p.Name())
	}
}

package httpclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/medscribe/resilience"
)

func TestClient_Do_JSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "application/json" {
			t.Errorf("Content-Type = %q", got)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		var in map[string]string
		_ = json.NewDecoder(r.Body).Decode(&in)
		_ = json.NewEncoder(w).Encode(map[string]string{"echo": in["inputs"]})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, Auth: BearerAuth("secret")})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	resp, err := c.Do(context.Background(), Request{Method: http.MethodPost, Path: "/models/x", Body: map[string]string{"inputs": "hello"}})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	out, err := DecodeJSON[map[string]string](resp)
	if err != nil {
		t.Fatalf("DecodeJSON() error = %v", err)
	}
	if out["echo"] != "hello" {
		t.Errorf("echo = %q, want hello", out["echo"])
	}
}

func TestClient_Do_RawBytesKeepExplicitContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Content-Type"); got != "audio/wav" {
			t.Errorf("Content-Type = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		_, _ = w.Write(body)
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	resp, err := c.Do(context.Background(), Request{
		Method:  http.MethodPost,
		Path:    "/",
		Headers: map[string]string{"Content-Type": "audio/wav"},
		Body:    []byte{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if len(resp.Body) != 3 {
		t.Errorf("body length = %d, want 3", len(resp.Body))
	}
}

func TestClient_Do_StatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		code      ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, ErrCodeAuth, false},
		{http.StatusNotFound, ErrCodeNotFound, false},
		{http.StatusBadRequest, ErrCodeValidation, false},
		{http.StatusTooManyRequests, ErrCodeRateLimit, true},
		{http.StatusServiceUnavailable, ErrCodeServer, true},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			c, _ := New(Config{BaseURL: srv.URL})
			resp, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
			if err == nil {
				t.Fatal("expected error")
			}
			if resp == nil || resp.StatusCode != tt.status {
				t.Errorf("response status not preserved")
			}
			if Code(err) != tt.code {
				t.Errorf("Code() = %v, want %v", Code(err), tt.code)
			}
			if IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable() = %v, want %v", IsRetryable(err), tt.retryable)
			}
		})
	}
}

func TestClient_Do_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if !IsTimeout(err) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if !IsRetryable(err) {
		t.Error("timeouts should be retryable")
	}
}

func TestClient_Do_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"text":"ok"}`))
	}))
	defer srv.Close()

	retry := DefaultRetryConfig()
	retry.InitialBackoff = time.Millisecond
	c, _ := New(Config{BaseURL: srv.URL, Retry: retry})

	if _, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"}); err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClient_Do_DoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	retry := DefaultRetryConfig()
	retry.InitialBackoff = time.Millisecond
	c, _ := New(Config{BaseURL: srv.URL, Retry: retry})

	_, _ = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestClient_CircuitBreakerOpens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := resilience.DefaultCircuitBreakerConfig("hf")
	cb.MaxFailures = 2
	cb.Timeout = time.Hour
	c, _ := New(Config{BaseURL: srv.URL, CircuitBreaker: &cb})

	for range 2 {
		_, _ = c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	}
	if c.Available() {
		t.Error("circuit should be open")
	}
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/"})
	if Code(err) != ErrCodeUnavailable {
		t.Errorf("Code() = %v, want unavailable", Code(err))
	}
}

func TestClient_Do_Multipart(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm() error = %v", err)
		}
		if r.FormValue("language") != "en" {
			t.Errorf("language = %q", r.FormValue("language"))
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile() error = %v", err)
		}
		defer f.Close()
		if hdr.Filename != "chunk.wav" {
			t.Errorf("filename = %q", hdr.Filename)
		}
		data, _ := io.ReadAll(f)
		if string(data) != "RIFF" {
			t.Errorf("data = %q", data)
		}
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	_, err := c.Do(context.Background(), Request{
		Method: http.MethodPost,
		Path:   "/transcribe",
		Body: &MultipartBody{
			Fields: map[string]string{"language": "en"},
			Files:  []FileField{{FieldName: "file", FileName: "chunk.wav", ContentType: "audio/wav", Data: []byte("RIFF")}},
		},
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
}

func TestDecodeJSON_Malformed(t *testing.T) {
	_, err := DecodeJSON[struct{ Text string }](&Response{StatusCode: 200, Body: []byte("not json")})
	if Code(err) != ErrCodeMalformed {
		t.Fatalf("Code() = %v, want malformed", Code(err))
	}
	if IsRetryable(err) {
		t.Error("malformed payloads should not be retryable")
	}
}

func TestAPIKeyAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "k" {
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	_, err := c.Do(context.Background(), Request{Method: http.MethodGet, Path: "/", Auth: APIKeyAuth("X-API-Key", "k")})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
}

package server

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/medscribe/component"
	apperrors "github.com/kbukum/medscribe/errors"
	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/security"
	"github.com/kbukum/medscribe/security/tlstest"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := Config{Host: "127.0.0.1"}
	cfg.MaxBodySize = "1MB"
	return New(cfg, logger.NewNop())
}

func TestServer_StartStop(t *testing.T) {
	s := newTestServer(t)
	s.Engine().GET("/ping", func(c *gin.Context) { RespondMessage(c, "pong") })

	if h := s.Health(context.Background()); h.Status != component.StatusUnhealthy {
		t.Errorf("health before start = %s, want unhealthy", h.Status)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = s.Stop(context.Background()) }()

	resp, err := http.Get("http://" + s.Addr() + "/ping")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer resp.Body.Close()

	var body map[string]string
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["message"] != "pong" {
		t.Errorf("message = %q, want pong", body["message"])
	}
	if h := s.Health(context.Background()); h.Status != component.StatusHealthy {
		t.Errorf("health after start = %s, want healthy", h.Status)
	}
}

func TestServer_TLS(t *testing.T) {
	certs := tlstest.Generate(t)
	cfg := Config{Host: "127.0.0.1", MaxBodySize: "1MB"}
	cfg.TLS = security.TLSConfig{CertFile: certs.CertFile, KeyFile: certs.KeyFile}
	s := New(cfg, logger.NewNop())
	s.Engine().GET("/ping", func(c *gin.Context) { RespondMessage(c, "pong") })

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() { _ = s.Stop(context.Background()) }()

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{RootCAs: certs.CertPool, MinVersion: tls.VersionTLS12},
	}}
	resp, err := client.Get("https://" + s.Addr() + "/ping")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d", resp.StatusCode)
	}
}

func TestServer_TLSMissingCertificate(t *testing.T) {
	cfg := Config{Host: "127.0.0.1"}
	cfg.TLS = security.TLSConfig{CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}
	s := New(cfg, logger.NewNop())
	if err := s.Start(context.Background()); err == nil {
		_ = s.Stop(context.Background())
		t.Error("expected error for missing certificate")
	}
}

func TestRespondWithError(t *testing.T) {
	s := newTestServer(t)
	s.Engine().GET("/missing", func(c *gin.Context) {
		RespondWithError(c, apperrors.NotFound("session", "s1"))
	})
	s.Engine().GET("/boom", func(c *gin.Context) {
		RespondWithError(c, errors.New("boom"))
	})

	tests := []struct {
		path   string
		status int
		code   apperrors.ErrorCode
	}{
		{"/missing", http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"/boom", http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			var resp apperrors.ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if resp.Error.Code != tt.code {
				t.Errorf("code = %s, want %s", resp.Error.Code, tt.code)
			}
		})
	}
}

func TestConfig_Defaults(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Port != 5000 {
		t.Errorf("Port = %d, want 5000", cfg.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Error("expected port validation error")
	}
}

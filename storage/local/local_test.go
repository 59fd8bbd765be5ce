package local

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/medscribe/component"
	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/storage"
)

func newStorage(t *testing.T) *Storage {
	t.Helper()
	s, err := New(t.TempDir(), "http://localhost:5000/", []byte("secret"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestStorage_RoundTrip(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	key := "sessions/s1/audio/f1_visit.wav"

	if err := s.Upload(ctx, key, bytes.NewReader([]byte("RIFF")), "audio/wav"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	ok, err := s.Exists(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Exists() = %v, %v", ok, err)
	}

	rc, err := s.Download(ctx, key)
	if err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "RIFF" {
		t.Errorf("data = %q", data)
	}

	if err := s.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Delete(ctx, key); err != nil {
		t.Errorf("second Delete() error = %v", err)
	}
	if _, err := s.Download(ctx, key); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Download() after delete error = %v, want ErrNotFound", err)
	}
}

func TestStorage_KeysCannotEscapeBase(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()

	if err := s.Upload(ctx, "../../escape.txt", strings.NewReader("x"), "text/plain"); err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.basePath, "escape.txt")); err != nil {
		t.Errorf("file should be written inside base path: %v", err)
	}
}

func TestStorage_List(t *testing.T) {
	s := newStorage(t)
	ctx := context.Background()
	for _, k := range []string{
		"sessions/s1/images/b_x.png",
		"sessions/s1/audio/a_y.wav",
		"sessions/s2/audio/c_z.wav",
	} {
		_ = s.Upload(ctx, k, strings.NewReader("data"), "")
	}

	files, err := s.List(ctx, "sessions/s1/")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("len(files) = %d, want 2", len(files))
	}
	if files[0].Key != "sessions/s1/audio/a_y.wav" || files[0].Size != 4 {
		t.Errorf("files[0] = %+v", files[0])
	}
	if files[1].ContentType != "image/png" {
		t.Errorf("content type = %q, want image/png", files[1].ContentType)
	}

	empty, err := s.List(ctx, "sessions/none/")
	if err != nil || len(empty) != 0 {
		t.Errorf("List() of empty prefix = %v, %v", empty, err)
	}
}

func TestStorage_SignedURL(t *testing.T) {
	s := newStorage(t)
	now := time.Unix(1_700_000_000, 0)
	s.now = func() time.Time { return now }

	raw, err := s.SignedURL(context.Background(), "sessions/s1/audio/f1_a.wav", time.Hour)
	if err != nil {
		t.Fatalf("SignedURL() error = %v", err)
	}
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	if u.Path != "/files/sessions/s1/audio/f1_a.wav" {
		t.Errorf("path = %q", u.Path)
	}
	expires, sig := u.Query().Get("expires"), u.Query().Get("signature")
	key := strings.TrimPrefix(u.Path, FilesRoute)

	if err := s.Verify(key, expires, sig); err != nil {
		t.Errorf("Verify() error = %v", err)
	}
	if err := s.Verify("sessions/s1/audio/other.wav", expires, sig); !errors.Is(err, storage.ErrInvalidSignature) {
		t.Errorf("Verify() with other key = %v, want ErrInvalidSignature", err)
	}
	if err := s.Verify(key, "1800000000", sig); !errors.Is(err, storage.ErrInvalidSignature) {
		t.Errorf("Verify() with tampered expiry = %v, want ErrInvalidSignature", err)
	}

	now = now.Add(2 * time.Hour)
	if err := s.Verify(key, expires, sig); !errors.Is(err, storage.ErrURLExpired) {
		t.Errorf("Verify() after expiry = %v, want ErrURLExpired", err)
	}
}

func TestFactoryRegistration(t *testing.T) {
	s, err := storage.New(storage.Config{
		Provider:   storage.ProviderLocal,
		BasePath:   t.TempDir(),
		SigningKey: "k",
	}, logger.NewNop())
	if err != nil {
		t.Fatalf("storage.New() error = %v", err)
	}
	if _, ok := s.(*Storage); !ok {
		t.Fatalf("storage.New() = %T, want *local.Storage", s)
	}
}

func TestComponent_Health(t *testing.T) {
	c := storage.NewComponent(storage.Config{
		Enabled:    true,
		Provider:   storage.ProviderLocal,
		BasePath:   t.TempDir(),
		SigningKey: "k",
	}, logger.NewNop())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if h := c.Health(context.Background()); h.Status != component.StatusHealthy {
		t.Errorf("health = %+v", h)
	}
}

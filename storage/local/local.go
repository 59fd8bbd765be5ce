// Package local implements storage.Storage on the local filesystem. Signed
// URLs point back at the service's /files route and carry an HMAC-SHA256
// signature over the key and expiry.
package local

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/storage"
)

// FilesRoute is the route prefix that serves signed local files.
const FilesRoute = "/files/"

func init() {
	storage.RegisterFactory(storage.ProviderLocal, func(cfg storage.Config, _ *logger.Logger) (storage.Storage, error) {
		return New(cfg.BasePath, cfg.PublicURL, []byte(cfg.SigningKey))
	})
}

// Storage stores objects as files under a base directory.
type Storage struct {
	basePath  string
	publicURL string
	key       []byte
	now       func() time.Time
}

var (
	_ storage.Storage  = (*Storage)(nil)
	_ storage.Verifier = (*Storage)(nil)
)

// New creates the base directory if needed.
func New(basePath, publicURL string, signingKey []byte) (*Storage, error) {
	if len(signingKey) == 0 {
		return nil, errors.New("local: signing key is required")
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("local: resolve base path: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("local: create base directory: %w", err)
	}
	return &Storage{
		basePath:  abs,
		publicURL: strings.TrimRight(publicURL, "/"),
		key:       signingKey,
		now:       time.Now,
	}, nil
}

// resolve maps a key onto a path that cannot escape basePath.
func (s *Storage) resolve(key string) string {
	return filepath.Join(s.basePath, filepath.FromSlash(path.Clean("/"+key)))
}

func (s *Storage) Upload(_ context.Context, key string, reader io.Reader, _ string) error {
	full := s.resolve(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("local: create directory: %w", err)
	}

	f, err := os.Create(full)
	if err != nil {
		return fmt.Errorf("local: create file: %w", err)
	}
	if _, err := io.Copy(f, reader); err != nil {
		_ = f.Close()
		_ = os.Remove(full)
		return fmt.Errorf("local: write file: %w", err)
	}
	return f.Close()
}

func (s *Storage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.resolve(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, key)
		}
		return nil, fmt.Errorf("local: open file: %w", err)
	}
	return f, nil
}

func (s *Storage) Delete(_ context.Context, key string) error {
	if err := os.Remove(s.resolve(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("local: delete file: %w", err)
	}
	return nil
}

func (s *Storage) Exists(_ context.Context, key string) (bool, error) {
	info, err := os.Stat(s.resolve(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("local: stat file: %w", err)
	}
	return !info.IsDir(), nil
}

// SignedURL returns <publicURL>/files/<key>?expires=<unix>&signature=<hex>.
func (s *Storage) SignedURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	expires := strconv.FormatInt(s.now().Add(expiry).Unix(), 10)

	q := url.Values{}
	q.Set("expires", expires)
	q.Set("signature", s.sign(key, expires))
	return s.publicURL + FilesRoute + key + "?" + q.Encode(), nil
}

func (s *Storage) Verify(key, expires, signature string) error {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	want := s.sign(key, expires)
	if !hmac.Equal([]byte(want), []byte(signature)) {
		return storage.ErrInvalidSignature
	}
	unix, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return storage.ErrInvalidSignature
	}
	if s.now().Unix() > unix {
		return storage.ErrURLExpired
	}
	return nil
}

func (s *Storage) sign(key, expires string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(key))
	mac.Write([]byte{'\n'})
	mac.Write([]byte(expires))
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *Storage) List(_ context.Context, prefix string) ([]storage.FileInfo, error) {
	files := []storage.FileInfo{}
	err := filepath.WalkDir(s.basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.basePath, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		ct := mime.TypeByExtension(path.Ext(key))
		if ct == "" {
			ct = "application/octet-stream"
		}
		files = append(files, storage.FileInfo{
			Key:          key,
			Size:         info.Size(),
			LastModified: info.ModTime(),
			ContentType:  ct,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("local: list files: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}

package middleware

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/kbukum/medscribe/errors"
	"github.com/kbukum/medscribe/resilience"
)

// RateLimitConfig configures per-key request limiting.
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per key.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
	// Burst is the bucket size. Defaults to RequestsPerMinute.
	Burst int `mapstructure:"burst"`
	// KeyFunc extracts the key. Defaults to UserBasedKey.
	KeyFunc func(*gin.Context) string `mapstructure:"-"`
}

// RateLimit keeps one token bucket per key and answers 429 when it is empty.
// Buckets idle for ten minutes are dropped.
func RateLimit(cfg RateLimitConfig) gin.HandlerFunc {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = 60
	}
	if cfg.Burst <= 0 {
		cfg.Burst = cfg.RequestsPerMinute
	}
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = UserBasedKey
	}

	buckets := &bucketSet{
		cfg: resilience.RateLimiterConfig{
			Rate:  float64(cfg.RequestsPerMinute) / 60,
			Burst: cfg.Burst,
		},
		entries: make(map[string]*bucket),
	}

	return func(c *gin.Context) {
		if !buckets.get(cfg.KeyFunc(c)).Allow() {
			abort(c, apperrors.RateLimited())
			return
		}
		c.Next()
	}
}

// IPBasedKey keys by client IP.
func IPBasedKey(c *gin.Context) string {
	return c.ClientIP()
}

// UserBasedKey keys by the authenticated user, falling back to client IP.
func UserBasedKey(c *gin.Context) string {
	if claims := CurrentClaims(c); claims != nil && claims.UserID() != "" {
		return "user:" + claims.UserID()
	}
	return "ip:" + c.ClientIP()
}

type bucket struct {
	*resilience.RateLimiter
	lastSeen time.Time
}

type bucketSet struct {
	cfg resilience.RateLimiterConfig

	mu        sync.Mutex
	entries   map[string]*bucket
	lastSweep time.Time
}

func (s *bucketSet) get(key string) *resilience.RateLimiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if now.Sub(s.lastSweep) > time.Minute {
		for k, b := range s.entries {
			if now.Sub(b.lastSeen) > 10*time.Minute {
				delete(s.entries, k)
			}
		}
		s.lastSweep = now
	}

	b, ok := s.entries[key]
	if !ok {
		b = &bucket{RateLimiter: resilience.NewRateLimiter(s.cfg)}
		s.entries[key] = b
	}
	b.lastSeen = now
	return b.RateLimiter
}

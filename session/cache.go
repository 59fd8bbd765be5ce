package session

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/redis"
)

// Cache providers.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// CacheConfig configures the read-through record cache.
type CacheConfig struct {
	Provider string        `mapstructure:"provider"`
	TTL      time.Duration `mapstructure:"ttl"`
}

func (c *CacheConfig) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = CacheMemory
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
}

func (c *CacheConfig) Validate() error {
	switch c.Provider {
	case CacheNone, CacheMemory, CacheRedis:
		return nil
	}
	return fmt.Errorf("cache: unsupported provider %q", c.Provider)
}

// Cache holds session records by id. Implementations return copies.
type Cache interface {
	Get(ctx context.Context, id string) (*Record, bool)
	Set(ctx context.Context, r *Record)
	Delete(ctx context.Context, id string)
}

// MemoryCache is an in-process Cache.
type MemoryCache struct {
	c *gocache.Cache
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	return &MemoryCache{c: gocache.New(ttl, 2*ttl)}
}

func (m *MemoryCache) Get(_ context.Context, id string) (*Record, bool) {
	v, ok := m.c.Get(id)
	if !ok {
		return nil, false
	}
	rec := v.(Record)
	return &rec, true
}

func (m *MemoryCache) Set(_ context.Context, r *Record) {
	m.c.SetDefault(r.ID, *r)
}

func (m *MemoryCache) Delete(_ context.Context, id string) {
	m.c.Delete(id)
}

// RedisCache stores records as JSON in Redis. Redis errors degrade to cache
// misses.
type RedisCache struct {
	store *redis.TypedStore[Record]
	ttl   time.Duration
	log   *logger.Logger
}

func NewRedisCache(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCache {
	return &RedisCache{
		store: redis.NewTypedStore[Record](client, "sessions"),
		ttl:   ttl,
		log:   log.WithComponent("session-cache"),
	}
}

func (c *RedisCache) Get(ctx context.Context, id string) (*Record, bool) {
	rec, err := c.store.Load(ctx, id)
	if err != nil {
		c.log.WithContext(ctx).Warn("Session cache read failed", map[string]interface{}{
			logger.FieldSessionID: id,
			logger.FieldError:     err.Error(),
		})
		return nil, false
	}
	return rec, rec != nil
}

func (c *RedisCache) Set(ctx context.Context, r *Record) {
	if err := c.store.Save(ctx, r.ID, r, c.ttl); err != nil {
		c.log.WithContext(ctx).Warn("Session cache write failed", map[string]interface{}{
			logger.FieldSessionID: r.ID,
			logger.FieldError:     err.Error(),
		})
	}
}

func (c *RedisCache) Delete(ctx context.Context, id string) {
	if err := c.store.Delete(ctx, id); err != nil {
		c.log.WithContext(ctx).Warn("Session cache delete failed", map[string]interface{}{
			logger.FieldSessionID: id,
			logger.FieldError:     err.Error(),
		})
	}
}

// CachedStore is a read-through cache in front of a Store. Every write
// invalidates the cached record.
type CachedStore struct {
	Store
	cache Cache
}

var _ Store = (*CachedStore)(nil)

func NewCachedStore(store Store, cache Cache) *CachedStore {
	return &CachedStore{Store: store, cache: cache}
}

func (s *CachedStore) Get(ctx context.Context, id string) (*Record, error) {
	if rec, ok := s.cache.Get(ctx, id); ok {
		return rec, nil
	}
	rec, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.Set(ctx, rec)
	return rec, nil
}

// LoadSession always reads the store, so a transcription starts from the
// persisted transcript.
func (s *CachedStore) LoadSession(ctx context.Context, id string) (*Record, error) {
	return s.Store.LoadSession(ctx, id)
}

func (s *CachedStore) Update(ctx context.Context, id string, p Patch) error {
	defer s.cache.Delete(ctx, id)
	return s.Store.Update(ctx, id, p)
}

func (s *CachedStore) AppendTranscript(ctx context.Context, id, text string) error {
	defer s.cache.Delete(ctx, id)
	return s.Store.AppendTranscript(ctx, id, text)
}

func (s *CachedStore) Delete(ctx context.Context, id string) error {
	defer s.cache.Delete(ctx, id)
	return s.Store.Delete(ctx, id)
}

// NewStore assembles the Store selected by cfg. A nil redis client with the
// redis provider falls back to the in-process cache.
func NewStore(repo *Repository, cfg CacheConfig, client *redis.Client, log *logger.Logger) Store {
	cfg.ApplyDefaults()
	switch {
	case cfg.Provider == CacheNone:
		return repo
	case cfg.Provider == CacheRedis && client != nil:
		return NewCachedStore(repo, NewRedisCache(client, cfg.TTL, log))
	case cfg.Provider == CacheRedis:
		log.Warn("Redis cache requested without a redis client, using memory cache")
	}
	return NewCachedStore(repo, NewMemoryCache(cfg.TTL))
}

// Package app assembles the medscribe service from its components.
//
// Infrastructure (telemetry, database, redis, storage) is registered up
// front and started in the first bootstrap phase. The business layer is
// wired in OnConfigure once those are running, and the HTTP server and the
// transcription reaper start last so that no request arrives before every
// route exists.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/kbukum/medscribe/account"
	"github.com/kbukum/medscribe/api"
	"github.com/kbukum/medscribe/auth"
	"github.com/kbukum/medscribe/bootstrap"
	"github.com/kbukum/medscribe/database"
	"github.com/kbukum/medscribe/inference"
	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/observability"
	"github.com/kbukum/medscribe/realtime"
	"github.com/kbukum/medscribe/realtime/socket"
	"github.com/kbukum/medscribe/redis"
	"github.com/kbukum/medscribe/server"
	"github.com/kbukum/medscribe/server/middleware"
	"github.com/kbukum/medscribe/session"
	"github.com/kbukum/medscribe/storage"
	"github.com/kbukum/medscribe/transcription"
	"github.com/kbukum/medscribe/util"

	_ "github.com/kbukum/medscribe/storage/local"
	_ "github.com/kbukum/medscribe/storage/s3"
	_ "github.com/kbukum/medscribe/transcription/huggingface"
	_ "github.com/kbukum/medscribe/transcription/whisper"
)

// Service is the assembled medscribe process.
type Service struct {
	*bootstrap.App[*Config]

	database *database.Component
	redis    *redis.Component
	storage  *storage.Component

	server      *server.Server
	coordinator *realtime.Coordinator
	migrateOnly bool
}

// New registers the infrastructure components and the wiring callback.
// Nothing connects until Run or RunTask.
func New(cfg *Config, opts ...bootstrap.Option) (*Service, error) {
	a, err := bootstrap.NewApp(cfg, opts...)
	if err != nil {
		return nil, err
	}
	s := &Service{App: a}

	telemetry := observability.New(cfg.Observability, observability.ServiceInfo{
		Name:        cfg.Name,
		Version:     cfg.Version,
		Environment: cfg.Environment,
	}, a.Logger)
	s.database = database.NewComponent(cfg.Database, a.Logger).
		WithModels(&session.Record{}, &account.User{})
	s.storage = storage.NewComponent(cfg.Storage, a.Logger)

	if cfg.Cache.Provider == session.CacheRedis {
		s.redis = redis.NewComponent(cfg.Redis, a.Logger)
	}

	if err := a.RegisterComponent(telemetry); err != nil {
		return nil, err
	}
	if err := a.RegisterComponent(s.database); err != nil {
		return nil, err
	}
	if s.redis != nil {
		if err := a.RegisterComponent(s.redis); err != nil {
			return nil, err
		}
	}
	if err := a.RegisterComponent(s.storage); err != nil {
		return nil, err
	}

	a.Logger.Info("Configuration loaded", map[string]interface{}{
		"environment":   cfg.Environment,
		"cache":         cfg.Cache.Provider,
		"transcription": cfg.Transcription.Provider,
		"asr_key":       util.MaskSecret(cfg.Transcription.APIKey, 4),
		"inference_key": util.MaskSecret(cfg.Inference.APIKey, 4),
		"auth":          cfg.Auth.Enabled,
	})

	a.OnConfigure(func(ctx context.Context, _ *bootstrap.App[*Config]) error {
		return s.wire(ctx)
	})
	a.OnStop(func(ctx context.Context) error {
		if s.coordinator == nil {
			return nil
		}
		if n := s.coordinator.DisconnectAll(ctx); n > 0 {
			a.Logger.Info("Persisted active transcriptions", map[string]interface{}{"count": n})
		}
		return nil
	})
	return s, nil
}

// wire builds the business layer on top of the running infrastructure and
// registers the serving components.
func (s *Service) wire(_ context.Context) error {
	if s.migrateOnly {
		return nil
	}
	cfg, log := s.Cfg, s.Logger

	metrics, err := observability.NewMetrics(observability.Meter())
	if err != nil {
		return fmt.Errorf("metrics: %w", err)
	}

	var cacheClient *redis.Client
	if s.redis != nil {
		cacheClient = s.redis.Client()
	}
	sessions := session.NewStore(session.NewRepository(s.database.DB()), cfg.Cache, cacheClient, log)
	accounts := account.NewRepository(s.database.DB())

	backend, err := transcription.New(cfg.Transcription, log)
	if err != nil {
		return fmt.Errorf("transcription: %w", err)
	}
	analyzer, err := inference.New(cfg.Inference, log, inference.WithMetrics(metrics))
	if err != nil {
		return fmt.Errorf("inference: %w", err)
	}

	var verifier middleware.TokenVerifier
	if cfg.Auth.Enabled {
		svc, err := auth.NewService(cfg.Auth)
		if err != nil {
			return fmt.Errorf("auth: %w", err)
		}
		verifier = svc
	} else {
		log.Warn("Authentication is disabled, protected routes will reject every request")
	}

	s.server = server.New(cfg.Server, log)
	hub := socket.NewHub(log)
	s.coordinator = realtime.NewCoordinator(cfg.Realtime, realtime.Deps{
		Registry: realtime.NewRegistry(nil),
		Gateway:  sessions,
		Backend:  backend,
		Emitter:  hub,
		Logger:   log,
		Metrics:  metrics,
	})

	engine := s.server.Engine()
	socket.NewHandler(cfg.Realtime, s.coordinator, hub, verifier, log).Register(engine)
	api.NewHandler(api.Deps{
		Sessions:             sessions,
		Accounts:             accounts,
		Analyzer:             analyzer,
		Transcriber:          backend,
		Storage:              s.storage.Storage(),
		MaxFileSize:          s.storage.MaxFileSize(),
		Verifier:             verifier,
		Health:               s.Components,
		ActiveTranscriptions: s.coordinator.ActiveCount,
		Transcribing:         s.coordinator.IsTranscribing,
		AIRateLimit:          cfg.AIRateLimit,
		Metrics:              metrics,
		Logger:               log,
	}).Register(engine)

	for _, r := range engine.Routes() {
		s.Summary.TrackRoute(r.Method, r.Path, handlerName(r.Handler))
	}

	if err := s.RegisterComponent(realtime.NewReaper(s.coordinator, log)); err != nil {
		return err
	}
	return s.RegisterComponent(s.server)
}

// Handler returns the HTTP handler once the service is configured.
func (s *Service) Handler() http.Handler {
	if s.server == nil {
		return nil
	}
	return s.server.Handler()
}

// Addr returns the bound HTTP address once the server has started.
func (s *Service) Addr() string {
	if s.server == nil {
		return ""
	}
	return s.server.Addr()
}

// Migrate starts only the infrastructure, which applies schema migrations
// when database.migrate is set, then exits. It replaces Run.
func (s *Service) Migrate(ctx context.Context) error {
	s.migrateOnly = true
	return s.RunTask(ctx, func(context.Context) error {
		s.Logger.Info("Migrations applied", map[string]interface{}{
			logger.FieldComponent: "database",
			"driver":              s.Cfg.Database.Driver,
		})
		return nil
	})
}

// handlerName shortens gin's fully qualified handler names to
// "pkg.(*Type).method".
func handlerName(full string) string {
	name := full[strings.LastIndex(full, "/")+1:]
	return strings.TrimSuffix(name, "-fm")
}

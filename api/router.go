// Package api mounts the REST surface: identity, session records, the AI
// proxy, file uploads and health.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/medscribe/account"
	"github.com/kbukum/medscribe/auth"
	"github.com/kbukum/medscribe/component"
	apperrors "github.com/kbukum/medscribe/errors"
	"github.com/kbukum/medscribe/inference"
	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/observability"
	"github.com/kbukum/medscribe/server"
	"github.com/kbukum/medscribe/server/middleware"
	"github.com/kbukum/medscribe/session"
	"github.com/kbukum/medscribe/storage"
	"github.com/kbukum/medscribe/transcription"
	"github.com/kbukum/medscribe/validation"
)

// Accounts is the user directory used by the identity routes.
type Accounts interface {
	Verify(ctx context.Context, claims *auth.Claims) (*account.User, error)
	Get(ctx context.Context, id string) (*account.User, error)
	UpdateProfile(ctx context.Context, id string, p account.Profile) error
	SetRole(ctx context.Context, id, role string) error
}

// Analyzer runs the hosted models behind the AI routes.
type Analyzer interface {
	ExtractEntities(ctx context.Context, text string) ([]inference.Entity, error)
	Summarize(ctx context.Context, text string, maxLength, minLength int) (string, error)
	ClassifyImage(ctx context.Context, image []byte, top int) ([]inference.ImageFinding, error)
	AnalyzeSession(ctx context.Context, transcript string, image []byte) inference.SessionAnalysis
}

// HealthChecker reports component health.
type HealthChecker interface {
	HealthAll(ctx context.Context) []component.Health
}

// Deps wires the handlers. Verifier may be nil when authentication is
// disabled, in which case every protected route answers 401.
type Deps struct {
	Sessions    session.Store
	Accounts    Accounts
	Analyzer    Analyzer
	Transcriber transcription.Provider
	Storage     storage.Storage
	MaxFileSize int64
	Verifier    middleware.TokenVerifier
	Health      HealthChecker
	// ActiveTranscriptions reports the live transcription count.
	ActiveTranscriptions func() int
	// Transcribing reports whether a live transcription owns a session's
	// transcript.
	Transcribing func(sessionID string) bool
	AIRateLimit  middleware.RateLimitConfig
	Metrics      *observability.Metrics
	Logger       *logger.Logger
	Clock        func() time.Time
}

// Handler serves every REST route.
type Handler struct {
	Deps
	log *logger.Logger
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.MaxFileSize <= 0 {
		d.MaxFileSize = 10 << 20
	}
	if d.ActiveTranscriptions == nil {
		d.ActiveTranscriptions = func() int { return 0 }
	}
	if d.Transcribing == nil {
		d.Transcribing = func(string) bool { return false }
	}
	return &Handler{Deps: d, log: d.Logger.WithComponent("api")}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.Use(middleware.Metrics(h.Metrics))

	r.GET("/health", h.health)
	if v, ok := h.Storage.(storage.Verifier); ok {
		r.GET("/files/*key", h.serveSignedFile(v))
	}

	authn := h.authenticate()
	doctor := middleware.RequireRole(auth.RoleDoctor)

	a := r.Group("/api/auth", authn)
	a.GET("/verify", h.verify)
	a.GET("/profile", h.getProfile)
	a.PUT("/profile", h.updateProfile)
	a.POST("/set-role", h.setRole)

	s := r.Group("/api/sessions", authn, doctor)
	s.POST("", h.createSession)
	s.GET("", h.listSessions)
	s.GET("/:id", h.getSession)
	s.PUT("/:id", h.updateSession)
	s.DELETE("/:id", h.deleteSession)

	ai := r.Group("/api/ai", authn, doctor, middleware.RateLimit(h.AIRateLimit))
	ai.POST("/transcribe", h.transcribe)
	ai.POST("/extract-entities", h.extractEntities)
	ai.POST("/summarize", h.summarize)
	ai.POST("/analyze-image", h.analyzeImage)
	ai.POST("/analyze-session", h.analyzeSession)

	up := r.Group("/api/upload", authn, doctor)
	up.POST("/audio", h.upload(kindAudio))
	up.POST("/image", h.upload(kindImage))
	up.GET("/file/:sessionId/:fileType/:fileId", h.getFile)
	up.DELETE("/file/:sessionId/:fileType/:fileId", h.deleteFile)
	up.GET("/files/:sessionId", h.listFiles)
}

func (h *Handler) authenticate() gin.HandlerFunc {
	if h.Verifier == nil {
		return func(c *gin.Context) {
			server.RespondWithError(c, apperrors.Unauthorized("Access token required"))
		}
	}
	return middleware.Authenticate(h.Verifier)
}

// bindJSON decodes the body into v and runs its validate tags. An empty
// body leaves v zero.
func bindJSON(c *gin.Context, v any) error {
	if err := c.ShouldBindJSON(v); err != nil && !errors.Is(err, io.EOF) {
		return apperrors.InvalidInput("", "Invalid request body").WithCause(err)
	}
	return validation.Struct(v)
}

// required reports a missing field with a route-specific message.
func required(field, msg string) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCodeMissingField, msg, http.StatusBadRequest).WithDetail("field", field)
}

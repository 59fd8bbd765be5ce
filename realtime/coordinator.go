// Package realtime coordinates live transcription over a duplex connection.
//
// Each connection is either idle or has exactly one active transcription in
// the Registry. The Coordinator consumes start, chunk, stop and disconnect
// events, drives the transcription backend, accumulates the transcript and
// flushes it to the session store. Events for one connection are handled in
// arrival order under a per-connection lock; different connections never
// contend.
package realtime

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	apperrors "github.com/kbukum/medscribe/errors"
	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/observability"
	"github.com/kbukum/medscribe/session"
	"github.com/kbukum/medscribe/transcription"
)

// Flush reasons reported in logs and metrics.
const (
	flushInterval   = "interval"
	flushLastChunk  = "last_chunk"
	flushStop       = "stop"
	flushDisconnect = "disconnect"
	flushEvicted    = "evicted"
)

// Deps are the collaborators of a Coordinator. Registry, Gateway, Backend
// and Emitter are required.
type Deps struct {
	Registry *Registry
	Gateway  session.Gateway
	Backend  transcription.Provider
	Emitter  Emitter
	Logger   *logger.Logger
	Metrics  *observability.Metrics
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Coordinator is the per-connection transcription state machine.
type Coordinator struct {
	cfg      Config
	registry *Registry
	gateway  session.Gateway
	backend  transcription.Provider
	emitter  Emitter
	log      *logger.Logger
	metrics  *observability.Metrics
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*connLock
}

// connLock serializes events for one connection. It lives in the map only
// while some caller holds or waits on it.
type connLock struct {
	mu   sync.Mutex
	refs int
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(cfg Config, deps Deps) *Coordinator {
	cfg.ApplyDefaults()
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	return &Coordinator{
		cfg:      cfg,
		registry: deps.Registry,
		gateway:  deps.Gateway,
		backend:  deps.Backend,
		emitter:  deps.Emitter,
		log:      deps.Logger.WithComponent("transcription"),
		metrics:  deps.Metrics,
		now:      deps.Clock,
		locks:    make(map[string]*connLock),
	}
}

// ActiveCount returns the number of active transcriptions.
func (c *Coordinator) ActiveCount() int {
	return c.registry.Len()
}

// IsTranscribing reports whether any connection holds an active
// transcription for sessionID.
func (c *Coordinator) IsTranscribing(sessionID string) bool {
	return c.registry.HasSession(sessionID)
}

func (c *Coordinator) lock(connID string) func() {
	c.mu.Lock()
	l, ok := c.locks[connID]
	if !ok {
		l = &connLock{}
		c.locks[connID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		c.mu.Lock()
		if l.refs--; l.refs == 0 {
			delete(c.locks, connID)
		}
		c.mu.Unlock()
	}
}

// Start validates ownership of the session and activates transcription on
// the connection. Failures are emitted and returned as *Error.
func (c *Coordinator) Start(ctx context.Context, connID string, req StartRequest) error {
	if req.SessionID == "" || req.UserID == "" {
		return c.fail(connID, InvalidRequest("Session ID and User ID are required"))
	}

	unlock := c.lock(connID)
	defer unlock()

	log := c.log.WithContext(ctx).WithFields(map[string]interface{}{
		logger.FieldConnectionID: connID,
		logger.FieldSessionID:    req.SessionID,
		logger.FieldUserID:       req.UserID,
	})

	if _, active := c.registry.Get(connID); active {
		return c.fail(connID, NewError(CodeAlreadyActive))
	}

	ctx, span := observability.StartSpan(ctx, "transcription.start",
		observability.AttrConnectionID, connID,
		observability.AttrSessionID, req.SessionID,
		observability.AttrUserID, req.UserID,
	)
	rec, err := c.gateway.LoadSession(ctx, req.SessionID)
	observability.EndSpan(span, err)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return c.fail(connID, NewError(CodeSessionNotFound))
		}
		log.Error("Failed to load session", map[string]interface{}{logger.FieldError: err.Error()})
		return c.fail(connID, NewError(CodeSessionLoadFailed).withCause(err, nil))
	}
	if !session.IsOwnedBy(rec, req.UserID) {
		log.Warn("Transcription start denied")
		return c.fail(connID, NewError(CodeAccessDenied))
	}

	if _, err := c.registry.Create(connID, req.SessionID, req.UserID, rec.Transcript); err != nil {
		if errors.Is(err, ErrEntryExists) {
			return c.fail(connID, NewError(CodeAlreadyActive))
		}
		return c.fail(connID, NewError(CodeSessionLoadFailed).withCause(err, nil))
	}
	c.metrics.TranscriptionStarted(ctx)

	c.emitter.Emit(connID, EventTranscriptionStarted, Started{SessionID: req.SessionID})
	log.Info("Transcription started")
	return nil
}

// Chunk transcribes one audio chunk and appends the text. The transcript is
// flushed when the flush interval has elapsed or the chunk is the last one.
func (c *Coordinator) Chunk(ctx context.Context, connID string, audio []byte, isLast bool) error {
	unlock := c.lock(connID)
	defer unlock()

	entry, ok := c.registry.Get(connID)
	if !ok {
		return c.fail(connID, NewError(CodeNoActiveSession))
	}
	if len(audio) == 0 {
		return c.fail(connID, InvalidRequest("Audio data is required"))
	}

	log := c.log.WithContext(ctx).WithFields(map[string]interface{}{
		logger.FieldConnectionID: connID,
		logger.FieldSessionID:    entry.SessionID,
	})

	text, err := c.transcribe(ctx, entry, audio)
	if err != nil {
		details := err.Error()
		if f, ok := transcription.AsFailure(err); ok {
			details = f.Message
		}
		log.Warn("Chunk transcription failed", map[string]interface{}{logger.FieldError: err.Error()})
		return c.fail(connID, NewError(CodeChunkProcessingFailed).withCause(err, details))
	}

	if strings.TrimSpace(text) == "" {
		c.registry.Touch(connID)
		if isLast {
			if current, ok := c.registry.Get(connID); ok && current.Dirty() {
				return c.flushAndReport(ctx, connID, current, flushLastChunk)
			}
		}
		return nil
	}

	c.registry.AppendText(connID, text)
	now := c.now()
	c.emitter.Emit(connID, EventTranscriptChunk, ChunkTranscribed{
		Text:      text,
		Timestamp: now.UnixMilli(),
		IsLast:    isLast,
	})

	current, ok := c.registry.Get(connID)
	if !ok {
		return nil
	}
	switch {
	case isLast:
		return c.flushAndReport(ctx, connID, current, flushLastChunk)
	case now.Sub(current.LastFlushAt) > c.cfg.FlushInterval:
		return c.flushAndReport(ctx, connID, current, flushInterval)
	}
	return nil
}

// Stop flushes the transcript, deactivates the connection and emits the
// final transcript. A failed flush is reported but does not prevent the stop.
func (c *Coordinator) Stop(ctx context.Context, connID string) error {
	unlock := c.lock(connID)
	defer unlock()

	entry, ok := c.registry.Get(connID)
	if !ok {
		return c.fail(connID, NewError(CodeNoActiveSession))
	}

	var flushErr error
	if err := c.flush(ctx, entry, flushStop); err != nil {
		flushErr = c.fail(connID, NewError(CodeFlushFailed).withCause(err, nil))
	}
	c.registry.Remove(connID)
	c.metrics.TranscriptionEnded(ctx, flushStop)

	c.emitter.Emit(connID, EventTranscriptionStopped, Stopped{
		SessionID:       entry.SessionID,
		FinalTranscript: entry.Transcript,
	})
	c.log.WithContext(ctx).Info("Transcription stopped", map[string]interface{}{
		logger.FieldConnectionID: connID,
		logger.FieldSessionID:    entry.SessionID,
	})
	return flushErr
}

// Disconnect flushes and removes any active transcription for a closed
// connection. Nothing is emitted.
func (c *Coordinator) Disconnect(ctx context.Context, connID string) {
	unlock := c.lock(connID)
	defer unlock()

	entry, ok := c.registry.Get(connID)
	if !ok {
		return
	}
	if err := c.flush(ctx, entry, flushDisconnect); err == nil {
		c.log.WithContext(ctx).Info("Client disconnected, transcript saved", map[string]interface{}{
			logger.FieldConnectionID: connID,
			logger.FieldSessionID:    entry.SessionID,
		})
	}
	c.registry.Remove(connID)
	c.metrics.TranscriptionEnded(ctx, flushDisconnect)
}

// DisconnectAll persists and removes every active transcription. It is used
// on shutdown, when open sockets will not reach their own disconnect path.
func (c *Coordinator) DisconnectAll(ctx context.Context) int {
	ids := c.registry.IDs()
	for _, id := range ids {
		c.Disconnect(ctx, id)
	}
	return len(ids)
}

// EvictIfIdle flushes and removes the connection's transcription if it is
// still idle for longer than timeout once the connection lock is held. It
// reports whether an entry was evicted.
func (c *Coordinator) EvictIfIdle(ctx context.Context, connID string, timeout time.Duration) bool {
	unlock := c.lock(connID)
	defer unlock()

	entry, ok := c.registry.Get(connID)
	if !ok || c.now().Sub(entry.LastActivityAt) <= timeout {
		return false
	}
	_ = c.flush(ctx, entry, flushEvicted)
	c.registry.Remove(connID)
	c.metrics.TranscriptionEnded(ctx, flushEvicted)

	c.log.WithContext(ctx).Info("Cleaning up inactive transcription", map[string]interface{}{
		logger.FieldConnectionID: connID,
		logger.FieldSessionID:    entry.SessionID,
		"idle":                   c.now().Sub(entry.LastActivityAt).String(),
	})
	return true
}

func (c *Coordinator) transcribe(ctx context.Context, entry Entry, audio []byte) (text string, err error) {
	ctx, span := observability.StartSpan(ctx, "transcription.chunk",
		observability.AttrConnectionID, entry.ConnectionID,
		observability.AttrSessionID, entry.SessionID,
		observability.AttrProvider, c.backend.Name(),
	)
	start := time.Now()
	defer func() {
		observability.EndSpan(span, err)
		c.metrics.RecordChunk(ctx, c.backend.Name(), observability.Result(err), time.Since(start))
	}()

	text, err = c.backend.Transcribe(ctx, audio)
	if err != nil {
		return "", transcription.NewFailure(c.backend.Name(), err)
	}
	return text, nil
}

// flush writes the entry's full transcript and records the flush time on
// success. The in-memory transcript is never reverted.
func (c *Coordinator) flush(ctx context.Context, entry Entry, reason string) (err error) {
	ctx, span := observability.StartSpan(ctx, "transcription.flush",
		observability.AttrConnectionID, entry.ConnectionID,
		observability.AttrSessionID, entry.SessionID,
		"reason", reason,
	)
	defer func() {
		observability.EndSpan(span, err)
		c.metrics.RecordFlush(ctx, reason, observability.Result(err))
	}()

	if err = c.gateway.AppendTranscript(ctx, entry.SessionID, entry.Transcript); err != nil {
		c.log.WithContext(ctx).Error("Failed to update session transcript", map[string]interface{}{
			logger.FieldConnectionID: entry.ConnectionID,
			logger.FieldSessionID:    entry.SessionID,
			logger.FieldError:        err.Error(),
			"reason":                 reason,
			"retryable":              apperrors.IsRetryable(err),
		})
		return err
	}
	c.registry.MarkFlushed(entry.ConnectionID, entry.Transcript, c.now())
	return nil
}

func (c *Coordinator) flushAndReport(ctx context.Context, connID string, entry Entry, reason string) error {
	if err := c.flush(ctx, entry, reason); err != nil {
		return c.fail(connID, NewError(CodeFlushFailed).withCause(err, nil))
	}
	return nil
}

func (c *Coordinator) fail(connID string, e *Error) error {
	c.emitter.Emit(connID, EventTranscriptionError, e.Payload())
	return e
}

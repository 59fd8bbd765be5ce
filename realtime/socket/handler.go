package socket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kbukum/medscribe/auth"
	apperrors "github.com/kbukum/medscribe/errors"
	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/realtime"
	"github.com/kbukum/medscribe/server"
	"github.com/kbukum/medscribe/server/middleware"
)

// Handler upgrades HTTP requests to transcription sockets.
type Handler struct {
	cfg      realtime.Config
	coord    *realtime.Coordinator
	hub      *Hub
	verifier middleware.TokenVerifier
	log      *logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a Handler. With a verifier every connection must carry
// a valid token and start requests must name the token's subject. With a nil
// verifier tokens are ignored and start requests are trusted as sent.
func NewHandler(cfg realtime.Config, coord *realtime.Coordinator, hub *Hub, verifier middleware.TokenVerifier, log *logger.Logger) *Handler {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.NewNop()
	}
	h := &Handler{
		cfg:      cfg,
		coord:    coord,
		hub:      hub,
		verifier: verifier,
		log:      log.WithComponent("socket"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Register mounts the socket endpoint.
func (h *Handler) Register(r gin.IRoutes) {
	r.GET(h.cfg.Path, h.Serve)
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if len(h.cfg.AllowedOrigins) == 0 || slices.Contains(h.cfg.AllowedOrigins, "*") {
		return true
	}
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(h.cfg.AllowedOrigins, origin)
}

// Serve runs one connection until it closes.
func (h *Handler) Serve(c *gin.Context) {
	claims, err := h.authenticate(c)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}

	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("Failed to upgrade websocket", map[string]interface{}{logger.FieldError: err.Error()})
		return
	}

	connID := uuid.NewString()
	ctx := logger.ContextWithConnectionID(context.WithoutCancel(c.Request.Context()), connID)
	if claims != nil {
		ctx = auth.WithClaims(ctx, claims)
		ctx = logger.ContextWithUserID(ctx, claims.UserID())
	}
	log := h.log.WithContext(ctx)

	send := h.hub.register(connID, h.cfg.SendBuffer, h.cfg.WriteWait)
	done := make(chan struct{})
	go h.writePump(ws, send, done)

	log.Debug("Client connected")
	h.readLoop(ctx, ws, connID, claims)

	h.coord.Disconnect(ctx, connID)
	h.hub.unregister(connID)
	<-done
	_ = ws.Close()
	log.Debug("Client disconnected")
}

// authenticate verifies the token from the query string or the
// Authorization header. Connections are anonymous only without a verifier.
func (h *Handler) authenticate(c *gin.Context) (*auth.Claims, error) {
	if h.verifier == nil {
		return nil, nil
	}
	token := c.Query("token")
	if token == "" {
		token = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		return nil, apperrors.Unauthorized("Authentication token required")
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		return nil, apperrors.Forbidden("Invalid or expired token").WithCause(err)
	}
	return claims, nil
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, connID string, claims *auth.Claims) {
	ws.SetReadLimit(h.cfg.MaxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.log.WithContext(ctx).Debug("WebSocket closed", map[string]interface{}{logger.FieldError: err.Error()})
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(h.cfg.PongWait))

		var frame realtime.Frame
		if err := json.Unmarshal(data, &frame); err != nil || frame.Event == "" {
			h.reject(connID, realtime.InvalidRequest("Invalid message format"))
			continue
		}
		h.dispatch(ctx, connID, claims, frame)
	}
}

func (h *Handler) dispatch(ctx context.Context, connID string, claims *auth.Claims, frame realtime.Frame) {
	var err error
	switch frame.Event {
	case realtime.EventStartTranscription:
		var req realtime.StartRequest
		if !h.decode(connID, frame, &req) {
			return
		}
		if claims != nil && claims.UserID() != req.UserID {
			h.reject(connID, realtime.NewError(realtime.CodeAccessDenied))
			return
		}
		err = h.coord.Start(ctx, connID, req)

	case realtime.EventAudioChunk:
		var req realtime.ChunkRequest
		if !h.decode(connID, frame, &req) {
			return
		}
		audio, decodeErr := base64.StdEncoding.DecodeString(req.AudioData)
		if decodeErr != nil {
			h.reject(connID, realtime.InvalidRequest("Audio data must be base64 encoded"))
			return
		}
		err = h.coord.Chunk(ctx, connID, audio, req.IsLast)

	case realtime.EventStopTranscription:
		err = h.coord.Stop(ctx, connID)

	default:
		h.reject(connID, realtime.InvalidRequest("Unknown event: "+frame.Event))
		return
	}

	var pe *realtime.Error
	if errors.As(err, &pe) {
		h.log.WithContext(ctx).Debug("Event rejected", map[string]interface{}{
			"event": frame.Event,
			"code":  string(pe.Code),
		})
	}
}

func (h *Handler) decode(connID string, frame realtime.Frame, v any) bool {
	if len(frame.Data) == 0 {
		return true
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		h.reject(connID, realtime.InvalidRequest("Invalid message format"))
		return false
	}
	return true
}

func (h *Handler) reject(connID string, e *realtime.Error) {
	h.hub.Emit(connID, realtime.EventTranscriptionError, e.Payload())
}

func (h *Handler) writePump(ws *websocket.Conn, send <-chan []byte, done chan<- struct{}) {
	ticker := time.NewTicker(h.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	for {
		select {
		case msg, ok := <-send:
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if !ok {
				_ = ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				// Unblock the read loop; the queue is drained until unregister.
				_ = ws.Close()
				for range send {
				}
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteWait))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				_ = ws.Close()
				for range send {
				}
				return
			}
		}
	}
}

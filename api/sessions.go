package api

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/kbukum/medscribe/errors"
	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/server"
	"github.com/kbukum/medscribe/server/middleware"
	"github.com/kbukum/medscribe/session"
)

type createSessionRequest struct {
	PatientName string  `json:"patientName"`
	PatientID   *string `json:"patientId"`
	SessionType string  `json:"sessionType" validate:"omitempty,max=64"`
}

func (h *Handler) createSession(c *gin.Context) {
	var req createSessionRequest
	if err := bindJSON(c, &req); err != nil {
		server.RespondWithError(c, err)
		return
	}
	if strings.TrimSpace(req.PatientName) == "" {
		server.RespondWithError(c, required("patientName", "Patient name is required"))
		return
	}

	claims := middleware.CurrentClaims(c)
	rec := session.NewRecord(uuid.NewString(), claims.UserID(), claims.DisplayName(), req.PatientName, req.PatientID, req.SessionType)
	if err := h.Sessions.Create(c.Request.Context(), rec); err != nil {
		server.RespondWithError(c, err)
		return
	}

	h.log.WithContext(c.Request.Context()).Info("Session created", logger.Fields(logger.FieldSessionID, rec.ID))
	server.RespondCreated(c, gin.H{"session": rec})
}

func (h *Handler) listSessions(c *gin.Context) {
	opts := session.ListOptions{
		Limit:  queryInt(c, "limit", session.DefaultListLimit),
		Offset: queryInt(c, "offset", 0),
		Status: c.Query("status"),
	}
	if opts.Status != "" && !session.ValidStatus(opts.Status) {
		server.RespondWithError(c, apperrors.InvalidInput("status", "Invalid status"))
		return
	}

	records, err := h.Sessions.List(c.Request.Context(), middleware.CurrentClaims(c).UserID(), opts)
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	if records == nil {
		records = []session.Record{}
	}
	server.RespondOK(c, gin.H{"sessions": records})
}

func (h *Handler) getSession(c *gin.Context) {
	rec, err := h.ownedSession(c, c.Param("id"))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, gin.H{"session": rec})
}

func (h *Handler) updateSession(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.ownedSession(c, id); err != nil {
		server.RespondWithError(c, err)
		return
	}

	var patch session.Patch
	if err := bindJSON(c, &patch); err != nil {
		server.RespondWithError(c, err)
		return
	}
	if patch.Transcript != nil && h.Transcribing(id) {
		server.RespondWithError(c, apperrors.Conflict("Transcript is being recorded by an active transcription"))
		return
	}
	if err := h.Sessions.Update(c.Request.Context(), id, patch); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondMessage(c, "Session updated successfully")
}

func (h *Handler) deleteSession(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.ownedSession(c, id); err != nil {
		server.RespondWithError(c, err)
		return
	}
	if err := h.Sessions.Delete(c.Request.Context(), id); err != nil {
		server.RespondWithError(c, err)
		return
	}

	h.log.WithContext(c.Request.Context()).Info("Session deleted", logger.Fields(logger.FieldSessionID, id))
	server.RespondMessage(c, "Session deleted successfully")
}

// ownedSession loads id and checks that the caller owns it.
func (h *Handler) ownedSession(c *gin.Context, id string) (*session.Record, error) {
	rec, err := h.Sessions.Get(c.Request.Context(), id)
	if err != nil {
		return nil, err
	}
	if !session.IsOwnedBy(rec, middleware.CurrentClaims(c).UserID()) {
		return nil, apperrors.Forbidden("Access denied")
	}
	return rec, nil
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

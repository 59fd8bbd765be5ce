package api

import (
	"github.com/gin-gonic/gin"

	"github.com/kbukum/medscribe/account"
	"github.com/kbukum/medscribe/auth"
	apperrors "github.com/kbukum/medscribe/errors"
	"github.com/kbukum/medscribe/logger"
	"github.com/kbukum/medscribe/server"
	"github.com/kbukum/medscribe/server/middleware"
)

type setRoleRequest struct {
	TargetUserID string `json:"targetUserId" validate:"required"`
	Role         string `json:"role" validate:"required"`
}

// verify registers the caller on first sight and returns the stored user.
func (h *Handler) verify(c *gin.Context) {
	user, err := h.Accounts.Verify(c.Request.Context(), middleware.CurrentClaims(c))
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, gin.H{"user": user})
}

func (h *Handler) getProfile(c *gin.Context) {
	user, err := h.Accounts.Get(c.Request.Context(), middleware.CurrentClaims(c).UserID())
	if err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, gin.H{"user": user})
}

func (h *Handler) updateProfile(c *gin.Context) {
	var p account.Profile
	if err := bindJSON(c, &p); err != nil {
		server.RespondWithError(c, err)
		return
	}
	if err := h.Accounts.UpdateProfile(c.Request.Context(), middleware.CurrentClaims(c).UserID(), p); err != nil {
		server.RespondWithError(c, err)
		return
	}
	server.RespondMessage(c, "Profile updated successfully")
}

// setRole lets a stored admin assign roles. The caller's stored record is
// authoritative here, not the role claim.
func (h *Handler) setRole(c *gin.Context) {
	ctx := c.Request.Context()
	caller, err := h.Accounts.Get(ctx, middleware.CurrentClaims(c).UserID())
	if err != nil && !apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
		server.RespondWithError(c, err)
		return
	}
	if caller == nil || caller.Role != auth.RoleAdmin {
		server.RespondWithError(c, apperrors.Forbidden("Admin access required"))
		return
	}

	var req setRoleRequest
	if err := bindJSON(c, &req); err != nil {
		server.RespondWithError(c, err)
		return
	}
	if !auth.ValidRole(req.Role) {
		server.RespondWithError(c, apperrors.InvalidInput("role", "Invalid role"))
		return
	}
	if err := h.Accounts.SetRole(ctx, req.TargetUserID, req.Role); err != nil {
		server.RespondWithError(c, err)
		return
	}

	h.log.WithContext(ctx).Info("User role updated", logger.Fields(
		"target_user_id", req.TargetUserID,
		"role", req.Role,
	))
	server.RespondMessage(c, "User role updated successfully")
}

package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/medscribe/auth"
	apperrors "github.com/kbukum/medscribe/errors"
	"github.com/kbukum/medscribe/logger"
)

const claimsKey = "auth.claims"

// TokenVerifier validates a bearer token.
type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

// Authenticate requires a bearer token. A missing token is 401, a token that
// fails verification is 403.
func Authenticate(verifier TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := BearerToken(c.GetHeader("Authorization"))
		if token == "" {
			abort(c, apperrors.Unauthorized("Access token required"))
			return
		}

		claims, err := verifier.Verify(token)
		if err != nil {
			abort(c, apperrors.Forbidden("Invalid or expired token").WithCause(err))
			return
		}

		c.Set(claimsKey, claims)
		ctx := auth.WithClaims(c.Request.Context(), claims)
		ctx = logger.ContextWithUserID(ctx, claims.UserID())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireRole rejects callers whose role claim is not one of roles.
// It must run after Authenticate.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := CurrentClaims(c)
		if claims == nil {
			abort(c, apperrors.Unauthorized("Authentication required"))
			return
		}
		if !claims.HasRole(roles...) {
			abort(c, apperrors.Forbidden(fmt.Sprintf("Access denied. %s role required.", strings.Join(roles, " or "))))
			return
		}
		c.Next()
	}
}

// CurrentClaims returns the caller set by Authenticate, or nil.
func CurrentClaims(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(claimsKey); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func abort(c *gin.Context, err *apperrors.AppError) {
	c.AbortWithStatusJSON(err.HTTPStatus, err.ToResponse())
}

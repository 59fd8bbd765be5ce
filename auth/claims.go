package auth

import (
	"context"
	"slices"

	gojwt "github.com/golang-jwt/jwt/v5"
)

// Roles carried in the role claim.
const (
	RoleDoctor  = "doctor"
	RoleAdmin   = "admin"
	RolePatient = "patient"
)

// Roles lists every assignable role.
var Roles = []string{RoleDoctor, RoleAdmin, RolePatient}

// ValidRole reports whether role is assignable.
func ValidRole(role string) bool {
	return slices.Contains(Roles, role)
}

// Claims is the verified identity of a caller. The subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
	gojwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *Claims) UserID() string {
	return c.Subject
}

// DisplayName returns the name claim, falling back to the email.
func (c *Claims) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.Email
}

// HasRole reports whether the role claim is one of roles.
func (c *Claims) HasRole(roles ...string) bool {
	return c.Role != "" && slices.Contains(roles, c.Role)
}

type claimsKey struct{}

// WithClaims stores claims in ctx.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// FromContext returns the claims stored by WithClaims.
func FromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*Claims)
	return claims, ok && claims != nil
}

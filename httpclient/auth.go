package httpclient

import "net/http"

// AuthConfig configures request authentication.
type AuthConfig struct {
	// Token is sent as "Authorization: Bearer <Token>".
	Token string
	// Header and Key send an API key in a custom header instead.
	Header string
	Key    string
}

// BearerAuth creates a bearer token auth config.
func BearerAuth(token string) *AuthConfig {
	return &AuthConfig{Token: token}
}

// APIKeyAuth sends key in the named header.
func APIKeyAuth(header, key string) *AuthConfig {
	return &AuthConfig{Header: header, Key: key}
}

func (a *AuthConfig) apply(req *http.Request) {
	if a == nil {
		return
	}
	if a.Token != "" {
		req.Header.Set("Authorization", "Bearer "+a.Token)
	}
	if a.Header != "" && a.Key != "" {
		req.Header.Set(a.Header, a.Key)
	}
}

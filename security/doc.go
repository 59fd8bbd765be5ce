// Package security builds TLS configurations from file-based settings. The
// HTTP server uses it for HTTPS and optional client certificates, the Redis
// client for encrypted connections to managed instances.
package security

// Package auth guards the privileged lead-export endpoint with an admin
// API key and tracks failed attempts per client IP.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// ValidateKey performs timing-safe comparison of the provided key against
// the expected key. Returns true if they match.
func ValidateKey(provided, expected string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) == 1
}

// KeyFromRequest extracts the admin key from a request. It accepts a
// Bearer token, the X-API-Key header, or the legacy "secret" query
// parameter used by the original export clients.
func KeyFromRequest(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return r.URL.Query().Get("secret")
}

// ClientIP extracts the client IP for failure tracking, honoring the
// reverse proxy's X-Forwarded-For.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.SplitN(forwarded, ",", 2)
		return strings.TrimSpace(parts[0])
	}
	return r.RemoteAddr
}

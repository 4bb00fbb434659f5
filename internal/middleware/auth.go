package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"creature-catalog-api/internal/models"
)

// APIKeyHeader carries the caller's key
const APIKeyHeader = "X-API-Key"

// KeyAuth validates API keys against the configured key sets
type KeyAuth struct {
	keys      map[string]bool
	adminKeys map[string]bool
}

// NewKeyAuth builds a validator. With no admin keys configured, any
// regular key carrying the "admin-" prefix is accepted as an admin key.
func NewKeyAuth(apiKeys, adminKeys []string) *KeyAuth {
	return &KeyAuth{keys: keySet(apiKeys), adminKeys: keySet(adminKeys)}
}

func keySet(keys []string) map[string]bool {
	set := make(map[string]bool, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			set[k] = true
		}
	}
	return set
}

// Authenticate rejects requests without a valid API key
func (a *KeyAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get(APIKeyHeader)
		if apiKey == "" {
			slog.Warn("Authentication failed: missing API key", "remote_addr", r.RemoteAddr)
			writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "API key required", nil)
			return
		}

		if !a.isValid(apiKey) && !a.isAdmin(apiKey) {
			slog.Warn("Authentication failed: invalid API key", "remote_addr", r.RemoteAddr)
			writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Invalid API key", nil)
			return
		}

		slog.Debug("Authentication successful", "remote_addr", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

// AuthenticateAdmin rejects requests without an admin key
func (a *KeyAuth) AuthenticateAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey := r.Header.Get(APIKeyHeader)
		if apiKey == "" {
			slog.Warn("Admin authentication failed: missing API key", "remote_addr", r.RemoteAddr)
			writeErrorResponse(w, http.StatusUnauthorized, "unauthorized", "Admin API key required", nil)
			return
		}

		if !a.isAdmin(apiKey) {
			slog.Warn("Admin authentication failed: key lacks admin access", "remote_addr", r.RemoteAddr)
			writeErrorResponse(w, http.StatusForbidden, "forbidden", "Admin access required", nil)
			return
		}

		slog.Debug("Admin authentication successful", "remote_addr", r.RemoteAddr)
		next.ServeHTTP(w, r)
	})
}

func (a *KeyAuth) isValid(apiKey string) bool {
	return a.keys[apiKey]
}

func (a *KeyAuth) isAdmin(apiKey string) bool {
	if len(a.adminKeys) == 0 {
		return strings.HasPrefix(apiKey, "admin-") && a.isValid(apiKey)
	}
	return a.adminKeys[apiKey]
}

// writeErrorResponse is a helper function to write error responses
func writeErrorResponse(w http.ResponseWriter, statusCode int, code, message string, details []models.ErrorDetail) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(models.ErrorResponse{
		Code:    code,
		Message: message,
		Details: details,
	})
}

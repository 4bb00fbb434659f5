package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"creature-catalog-api/internal/models"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/v1/sessions", nil)
	if key != "" {
		req.Header.Set(APIKeyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestKeyAuth_Authenticate(t *testing.T) {
	auth := NewKeyAuth([]string{"demo", " team-key "}, []string{"root"})
	h := auth.Authenticate(okHandler())

	tests := []struct {
		name   string
		key    string
		status int
		code   string
	}{
		{name: "missing key", key: "", status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "unknown key", key: "nope", status: http.StatusUnauthorized, code: "unauthorized"},
		{name: "valid key", key: "demo", status: http.StatusNoContent},
		{name: "trimmed key", key: "team-key", status: http.StatusNoContent},
		{name: "admin key", key: "root", status: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, tt.key)

			assert.Equal(t, tt.status, rec.Code)
			if tt.code != "" {
				var body models.ErrorResponse
				require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
				assert.Equal(t, tt.code, body.Code)
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestKeyAuth_AuthenticateAdmin(t *testing.T) {
	t.Run("configured admin keys", func(t *testing.T) {
		h := NewKeyAuth([]string{"demo"}, []string{"root"}).AuthenticateAdmin(okHandler())

		assert.Equal(t, http.StatusUnauthorized, serve(h, "").Code)
		assert.Equal(t, http.StatusForbidden, serve(h, "demo").Code)
		assert.Equal(t, http.StatusNoContent, serve(h, "root").Code)
	})

	t.Run("prefix fallback", func(t *testing.T) {
		h := NewKeyAuth([]string{"demo", "admin-ops"}, nil).AuthenticateAdmin(okHandler())

		assert.Equal(t, http.StatusNoContent, serve(h, "admin-ops").Code)
		assert.Equal(t, http.StatusForbidden, serve(h, "admin-unknown").Code)
		assert.Equal(t, http.StatusForbidden, serve(h, "demo").Code)
	})
}

package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_PassesThroughAndRecords(t *testing.T) {
	// Arrange
	tel, err := NewCatalogTelemetry()
	require.NoError(t, err)

	router := mux.NewRouter()
	router.Use(Middleware(tel))
	router.HandleFunc("/v1/creatures/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/creatures/{id}", EndpointFromRequest(r))
		w.WriteHeader(http.StatusNotFound)
	}).Methods(http.MethodGet)
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	tests := []struct {
		path   string
		status int
	}{
		{"/v1/creatures/25", http.StatusNotFound},
		{"/health", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			// Act
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))

			// Assert
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestNilTelemetryIsSafe(t *testing.T) {
	var tel *CatalogTelemetry
	ctx := context.Background()

	assert.NotPanics(t, func() {
		tel.PageFetched(ctx, "network")
		tel.DetailFetched(ctx, "cache", "success")
		tel.EnrichmentFinished(ctx, false)
		tel.CacheWriteFailed(ctx, "detail")
		tel.WarmUpPersisted(ctx, 10)
		tel.RecordRequest(ctx, RequestMetrics{Method: http.MethodGet, StatusCode: 500})
	})
}

func TestNormalizeClientIP(t *testing.T) {
	tests := []struct {
		ip   string
		want string
	}{
		{"", "unknown"},
		{"not-an-ip", "invalid"},
		{"127.0.0.1", "localhost"},
		{"10.1.2.3", "internal"},
		{"192.168.0.10", "internal"},
		{"fe80::1", "internal"},
		{"8.8.8.8", "external"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeClientIP(tt.ip), tt.ip)
	}
}

func TestClientIP_PrefersForwardedHeaders(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:5555"
	assert.Equal(t, "10.0.0.1", ClientIP(r))

	r.Header.Set("X-Real-IP", "203.0.113.9")
	assert.Equal(t, "203.0.113.9", ClientIP(r))

	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")
	assert.Equal(t, "198.51.100.7", ClientIP(r))
}

func TestInitMetrics_DisabledExporterIsNoop(t *testing.T) {
	tel, err := InitMetrics(context.Background(), ExporterNone, ":0")

	require.NoError(t, err)
	assert.Nil(t, tel.Provider)
	tel.Shutdown(context.Background())
}

package telemetry

import (
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

var privateRanges = mustParseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"169.254.0.0/16",
	"fc00::/7",
	"fe80::/10",
)

// Middleware records request count, errors and duration for every route
func Middleware(t *CatalogTelemetry) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapper, r)

			m := RequestMetrics{
				Method:       r.Method,
				Endpoint:     EndpointFromRequest(r),
				StatusCode:   wrapper.statusCode,
				Duration:     time.Since(start),
				ClientIPType: NormalizeClientIP(ClientIP(r)),
			}
			if wrapper.statusCode >= 400 {
				m.ErrorMessage = http.StatusText(wrapper.statusCode)
			}
			t.RecordRequest(r.Context(), m)
		})
	}
}

// responseWriterWrapper captures the status code
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// EndpointFromRequest returns the matched route template so that ids in
// the path do not become metric labels
func EndpointFromRequest(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// ClientIP extracts the caller address, preferring proxy headers
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" && net.ParseIP(xri) != nil {
		return xri
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// NormalizeClientIP buckets an address into a low-cardinality label
func NormalizeClientIP(clientIP string) string {
	if clientIP == "" {
		return "unknown"
	}
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return "invalid"
	}
	if ip.IsLoopback() {
		return "localhost"
	}
	for _, network := range privateRanges {
		if network.Contains(ip) {
			return "internal"
		}
	}
	return "external"
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, network, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		out = append(out, network)
	}
	return out
}

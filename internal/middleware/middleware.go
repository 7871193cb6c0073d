package middleware

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/qwestard/codassistant/internal/audit"
	"github.com/qwestard/codassistant/internal/metrics"
)

func LogMiddleware(auditLog audit.Logger, methods ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if methodInList(r.Method, methods) {
				log.Printf("[%s] %s", r.Method, r.URL.Path)
				auditLog.Log(audit.AuditLog{
					Timestamp: time.Now().UTC(),
					Action:    audit.ActionRequest,
					Endpoint:  r.URL.Path,
					Request:   r.Method + " " + r.URL.String(),
					Message:   "Request received",
				})
			}
			next.ServeHTTP(w, r)
		})
	}
}

// MetricsMiddleware counts requests by status and records latency under name.
func MetricsMiddleware(m *metrics.ServerMetrics, name string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.Requests.WithLabelValues(name, strconv.Itoa(rec.status)).Inc()
			m.LatencyMS.WithLabelValues(name).Observe(float64(time.Since(start).Microseconds()) / 1000)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func methodInList(method string, methods []string) bool {
	for _, m := range methods {
		if m == method {
			return true
		}
	}
	return false
}

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/nkiryanov/blogauth/internal/metrics"
)

// Collect HTTP metrics labeled by the matched route pattern
// Has to wrap the mux: the pattern is known only after it routed the request
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPInFlight.Inc()
			defer m.HTTPInFlight.Dec()

			lw := newLogWriter(w)
			next.ServeHTTP(lw, r)

			pattern := r.Pattern
			if pattern == "" {
				pattern = "unmatched"
			}
			status := strconv.Itoa(lw.data.responseStatus)

			m.HTTPRequests.WithLabelValues(r.Method, pattern, status).Inc()
			m.HTTPDuration.WithLabelValues(r.Method, pattern, status).Observe(time.Since(start).Seconds())
		})
	}
}

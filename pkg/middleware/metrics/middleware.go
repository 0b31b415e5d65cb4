package metrics

import (
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// Collect produces the HTTP middleware that records the admin counters/histogram.
func Collect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		startTime := time.Now()

		defer func() {
			// Skip self-scrape and any additional caller-configured paths
			if isSkipPath(r) {
				return
			}
			code := strconv.Itoa(ww.Status())
			totalHttpRequests.WithLabelValues(code, r.URL.Path, r.Method).Inc()
			responseTime.Observe(time.Since(startTime).Seconds())
		}()

		next.ServeHTTP(ww, r)
	})
}

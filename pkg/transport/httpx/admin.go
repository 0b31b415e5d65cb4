package httpx

import (
	"net/http"

	chimd "github.com/go-chi/chi/v5/middleware"
)

// AdminRoutes mounts the operational endpoints:
//
//	GET /metrics  prometheus exposition
//	GET /healthz  process is up
//	GET /readyz   503 until ready reports true
//
// mw runs after request-id and panic recovery.
func AdminRoutes(r Router, metrics http.Handler, ready func() bool, mw ...func(http.Handler) http.Handler) http.Handler {
	r.Use(chimd.RequestID, chimd.Recoverer)
	r.Use(mw...)

	r.Get("/metrics", metrics)
	r.Get("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	}))
	r.Get("/readyz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if ready != nil && ready() {
			writeStatus(w, http.StatusOK, "ready")
			return
		}
		writeStatus(w, http.StatusServiceUnavailable, "not ready")
	}))
	return r.Mux()
}

func writeStatus(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body + "\n"))
}

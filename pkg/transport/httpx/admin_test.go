package httpx

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdminRoutes(t *testing.T) {
	var ready atomic.Bool
	var seen atomic.Int32
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen.Add(1)
			next.ServeHTTP(w, r)
		})
	}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte("# metrics")) })

	h := AdminRoutes(NewChi(), metrics, ready.Load, mw)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/healthz").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/readyz").Code)
	ready.Store(true)
	assert.Equal(t, http.StatusOK, get("/readyz").Code)
	assert.Equal(t, "# metrics", get("/metrics").Body.String())
	assert.Equal(t, http.StatusNotFound, get("/nope").Code)
	assert.EqualValues(t, 5, seen.Load())
}

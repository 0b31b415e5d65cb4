package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	chimd "github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestAccessLog(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	m := NewMiddleware(zap.New(core))

	h := chimd.RequestID(m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "/readyz", fields["uri"])
	assert.EqualValues(t, http.StatusServiceUnavailable, fields["status"])
	assert.EqualValues(t, len("not ready"), fields["responseSize"])
	assert.NotEmpty(t, fields["requestId"])
}

func TestNewMiddlewareNilLogger(t *testing.T) {
	m := NewMiddleware(nil)
	rec := httptest.NewRecorder()
	m.Middleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

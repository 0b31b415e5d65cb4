package logger

import (
	"net/http"
	"time"

	chimd "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Middleware writes one access line per admin request.
type Middleware struct {
	log *zap.Logger
}

func NewMiddleware(l *zap.Logger) *Middleware {
	if l == nil {
		l = zap.NewNop()
	}
	return &Middleware{log: l}
}

func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimd.NewWrapResponseWriter(w, r.ProtoMajor)

		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}

		start := time.Now()
		defer func() {
			m.log.Info("admin request",
				zap.String("requestId", chimd.GetReqID(r.Context())),
				zap.String("httpScheme", scheme),
				zap.String("httpProto", r.Proto),
				zap.String("httpMethod", r.Method),
				zap.String("remoteAddr", r.RemoteAddr),
				zap.String("uri", r.URL.Path),
				zap.Duration("lat", time.Since(start)),
				zap.Int("responseSize", ww.BytesWritten()),
				zap.Int("status", ww.Status()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

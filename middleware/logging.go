package middleware

import (
	"net/http"
	"strings"
	"time"

	"livecollab/pkg/logger"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// LoggingMiddleware writes one access log entry per request. Poll requests
// arrive several times a second per participant, so they are logged at debug.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		fields := []zap.Field{
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
		}
		if r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/poll") {
			logger.Log.Debug("request", fields...)
			return
		}
		logger.Log.Info("request", fields...)
	})
}

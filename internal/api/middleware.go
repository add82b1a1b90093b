package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/influai/control-plane/internal/metrics"
)

// requestLogger logs one line per request. Probes, scrapes and worker event ingest are
// logged at debug so they do not drown the stream.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			level := zap.InfoLevel
			if shouldSuppressRequestLog(r.Method, r.URL.Path) {
				level = zap.DebugLevel
			}
			if ce := logger.Check(level, "request"); ce != nil {
				ce.Write(
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				)
			}
		})
	}
}

func shouldSuppressRequestLog(method string, path string) bool {
	switch {
	case method == http.MethodGet && (path == "/health" || path == "/ready" || path == "/metrics"):
		return true
	case method == http.MethodPost && isStreamPath(path) && path != "/api/campaign-automation":
		return true
	case method == http.MethodOptions:
		return true
	}
	return false
}

// requestMetrics labels requests by route pattern so ids do not explode cardinality.
func requestMetrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		pattern := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			pattern = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		metrics.ObserveHTTPRequest(r.Method, pattern, strconv.Itoa(status), time.Since(start))
	})
}

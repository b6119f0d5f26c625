package chi

import (
	"errors"
	"net/http"
	"slices"
	"time"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kira-labs/kira/internal/domain"
	logpkg "github.com/kira-labs/kira/internal/logger"
)

// CorrelationHeader carries the request correlation id in both directions.
const CorrelationHeader = "X-Correlation-ID"

var devOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
	"http://localhost:3000",
	"http://127.0.0.1:5173",
	"http://127.0.0.1:5174",
	"http://127.0.0.1:3000",
}

// CorrelationID reuses the caller's X-Correlation-ID or generates one, echoes it
// in the response and stores it in the request context.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(CorrelationHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(logpkg.ContextWithCorrelationID(r.Context(), id)))
	})
}

// BodyLimit rejects requests whose declared Content-Length exceeds maxBytes and caps
// the body reader for requests that do not declare one.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				writeError(w, r, http.StatusRequestEntityTooLarge, CodeRequestTooLarge, "Request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// CORS allows the configured browser origins. The dev environment also admits
// the local frontend dev servers.
func CORS(origins []string, env string) func(http.Handler) http.Handler {
	allowed := slices.Clone(origins)
	if env == "dev" {
		for _, o := range devOrigins {
			if !slices.Contains(allowed, o) {
				allowed = append(allowed, o)
			}
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", CorrelationHeader},
		ExposedHeaders:   []string{CorrelationHeader},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// JSONRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func JSONRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					if err, ok := rvr.(error); ok && errors.Is(err, http.ErrAbortHandler) {
						panic(rvr)
					}
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.String("correlation_id", logpkg.CorrelationID(r.Context())),
						zap.Stack("stacktrace"),
					)
					writeError(w, r, http.StatusInternalServerError, CodeInternal, msgInternal)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// WideEvent emits a canonical log line per request and installs a per-request logger.
// LLM calls made while serving the request are tallied onto the same line.
func WideEvent(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			reqLogger := logger.With(zap.String("correlation_id", logpkg.CorrelationID(r.Context())))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)
			ctx, usage := domain.NewContextWithUsage(ctx)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			llmCalls, llmAttempts, llmProviders := usage.Snapshot()

			// Canonical log line
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", clientIP(r)),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
				zap.Int("llm_calls", llmCalls),
				zap.Int("llm_attempts", llmAttempts),
				zap.Strings("llm_providers", llmProviders),
			)
		})
	}
}

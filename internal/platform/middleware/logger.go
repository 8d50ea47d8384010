package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"assessor/pkg/requestcontext"
)

// Logger attaches a request-scoped zerolog logger to the context. Handlers
// and services retrieve it with zerolog.Ctx(ctx).
func Logger(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			requestID := req.Header.Get("X-Request-Id")
			if requestID == "" {
				requestID = uuid.NewString()
			}

			reqLogger := logger.With().
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("request_id", requestID).
				Logger()

			ctx := reqLogger.WithContext(req.Context())
			ctx = requestcontext.WithRequestID(ctx, requestID)
			w.Header().Set("X-Request-Id", requestID)

			next.ServeHTTP(w, req.WithContext(ctx))
		})
	}
}

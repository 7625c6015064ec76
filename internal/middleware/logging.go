package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// RequestObserver records finished requests, e.g. into Prometheus.
type RequestObserver interface {
	ObserveRequest(method, route string, status int, elapsed time.Duration)
}

const userSinkKey contextKey = "user_sink"

func reportUser(ctx context.Context, userID string) {
	if sink, ok := ctx.Value(userSinkKey).(*string); ok {
		*sink = userID
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// Logging logs every request with its status and duration. Server errors
// are logged at error level, client errors at warn.
func Logging(logger *slog.Logger, observer RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w}

			// The mux and the auth middleware run inside this one. The mux
			// sets Pattern on the request it is given, and RequireAuth
			// reports the user through the sink.
			var userID string
			inner := r.WithContext(context.WithValue(r.Context(), userSinkKey, &userID))
			next.ServeHTTP(rec, inner)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(start)

			route := inner.Pattern
			if route == "" {
				route = "unmatched"
			}
			if observer != nil {
				observer.ObserveRequest(r.Method, route, status, elapsed)
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "HTTP request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"user_id", userID,
				"duration_ms", elapsed.Milliseconds(),
			)
		})
	}
}

package rest

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/roach88/gridstate/internal/gateway"
	"github.com/roach88/gridstate/internal/metrics"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type ctxKey struct{}

// RequestID returns the id assigned to the request by Logging.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

// responseWriter captures the status code written by the handler.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Logging logs one line per request and records its latency. A client
// supplied X-Request-ID is kept, otherwise a new one is generated.
func Logging(logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, id)
			r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, id))
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			took := time.Since(start)
			route := r.Pattern
			if route == "" {
				route = "unmatched"
			}
			m.ObserveRequest(route, rw.statusCode, took)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", rw.statusCode,
				"duration", took,
				"request_id", id,
				"remote", r.RemoteAddr)
		})
	}
}

// ProtocolGuard rejects requests whose GridProtocolVersion header falls
// outside the range configured for the route.
func ProtocolGuard(routes gateway.ProtocolRoutes) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rng := routes.For(r.URL.Path)
			if err := gateway.CheckProtocol(r.Header.Get(gateway.ProtocolHeader), rng); err != nil {
				writeError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Limit bounds the number of requests served concurrently to n. Waiting
// requests give up when their context ends.
func Limit(n int64) func(http.Handler) http.Handler {
	sem := semaphore.NewWeighted(n)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sem.Acquire(r.Context(), 1); err != nil {
				writeError(w, &gateway.Error{
					Status:  http.StatusServiceUnavailable,
					Code:    gateway.CodeUnavailable,
					Message: "Server is busy, try again later",
					Err:     err,
				})
				return
			}
			defer sem.Release(1)
			next.ServeHTTP(w, r)
		})
	}
}

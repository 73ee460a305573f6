// Package rest exposes the query gateway over HTTP.
//
// Routes are read-only GETs, one pair per entity kind:
//
//	GET /agent                     GET /agent/{public_key}
//	GET /organization              GET /organization/{id}
//	GET /location                  GET /location/{id}
//	GET /product                   GET /product/{id}
//	GET /schema                    GET /schema/{name}
//
// Every route accepts service_id; list routes also accept offset and limit.
// GET /metrics serves Prometheus metrics when a registry is configured.
package rest

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rs/cors"

	"github.com/roach88/gridstate/internal/gateway"
	"github.com/roach88/gridstate/internal/metrics"
)

// Options configures a Server.
type Options struct {
	// Protocol holds the accepted GridProtocolVersion range per route. A
	// zero Default accepts every version.
	Protocol gateway.ProtocolRoutes

	// Workers bounds concurrently served requests. Defaults to 64.
	Workers int

	// AllowedOrigins is passed to CORS. Defaults to every origin.
	AllowedOrigins []string

	Metrics *metrics.Metrics
	Logger  *slog.Logger
}

// Server serves gateway queries.
type Server struct {
	gw      *gateway.Gateway
	opts    Options
	handler http.Handler
}

// New builds the handler chain: CORS, access logging, protocol negotiation
// and the request limit, in that order.
func New(gw *gateway.Gateway, opts Options) *Server {
	if opts.Workers <= 0 {
		opts.Workers = 64
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Protocol.Default == (gateway.ProtocolRange{}) {
		opts.Protocol.Default = gateway.AnyProtocol
	}
	s := &Server{gw: gw, opts: opts}

	api := http.NewServeMux()
	s.routes(api)
	var h http.Handler = api
	h = Limit(int64(opts.Workers))(h)
	h = ProtocolGuard(opts.Protocol)(h)

	root := http.NewServeMux()
	root.Handle("/", h)
	if opts.Metrics != nil {
		root.Handle("GET /metrics", opts.Metrics.Handler())
	}

	c := cors.New(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", gateway.ProtocolHeader, RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader},
	})
	s.handler = c.Handler(Logging(opts.Logger, opts.Metrics)(root))
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	server := &http.Server{
		Handler:      s,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.opts.Logger.Info("rest server listening", "addr", ln.Addr().String())
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.opts.Logger.Info("shutting down rest server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

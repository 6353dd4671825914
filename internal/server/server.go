package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/invergent-ai/surogate-studio-sub002/internal/cluster"
	"github.com/invergent-ai/surogate-studio-sub002/internal/reconcile"
	"github.com/invergent-ai/surogate-studio-sub002/internal/resource"
	"github.com/invergent-ai/surogate-studio-sub002/internal/telemetry"
	"github.com/invergent-ai/surogate-studio-sub002/pkg/logging"
)

const (
	// DefaultReadHeaderTimeout is the default timeout for reading request headers.
	DefaultReadHeaderTimeout = 10 * time.Second
	// DefaultIdleTimeout is the default idle timeout for keepalive connections.
	DefaultIdleTimeout = 120 * time.Second
	// DefaultShutdownTimeout bounds the graceful shutdown of open connections.
	DefaultShutdownTimeout = 15 * time.Second

	healthCheckTimeout = 2 * time.Second
)

// Config wires a Server. Only Addr and Registry are required.
type Config struct {
	Addr     string
	Registry *cluster.Registry
	// Capacity adds the allocatable capacity of each cluster to the zone listing.
	Capacity cluster.CapacityReporter
	Pollers  map[resource.Kind]*reconcile.Poller
	Metrics  *telemetry.Metrics

	// Redis mirrors stream events to pub/sub channels named Prefix + channel.
	Redis       *redis.Client
	RedisPrefix string

	// Health checks the persistence store.
	Health func(ctx context.Context) error
}

// Server is the HTTP front of the engine.
type Server struct {
	cfg      Config
	mux      *http.ServeMux
	upgrader websocket.Upgrader
	http     *http.Server
}

// New creates a server and registers its routes.
func New(cfg Config) *Server {
	s := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
	s.register()
	s.http = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
		IdleTimeout:       DefaultIdleTimeout,
	}
	return s
}

func (s *Server) register() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.cfg.Metrics.Handler())
	s.mux.HandleFunc("GET /v1/zones", s.handleZones)
	s.mux.HandleFunc("GET /v1/streams/{kind}", s.handleStream)
}

// ServeHTTP delegates to the route mux.
func (s *Server) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	start := time.Now()
	s.mux.ServeHTTP(w, req)
	logging.Debug("Server", "%s %s in %v", req.Method, req.URL.Path, time.Since(start))
}

// Run serves on the configured address until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logging.Info("Server", "Listening on %s", ln.Addr())
		errCh <- s.http.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), DefaultShutdownTimeout)
	defer cancel()
	logging.Info("Server", "Shutting down")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

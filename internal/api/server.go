package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	bridge "github.com/mekatrol/imperium-core/internal/bridges/mqtt"
	"github.com/mekatrol/imperium-core/internal/device"
	"github.com/mekatrol/imperium-core/internal/infrastructure/config"
	"github.com/mekatrol/imperium-core/internal/infrastructure/logging"
	"github.com/mekatrol/imperium-core/internal/scheduler"
	"github.com/mekatrol/imperium-core/internal/status"
	"github.com/mekatrol/imperium-core/internal/subscription"
	"github.com/mekatrol/imperium-core/internal/update"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// HealthChecker is a dependency whose health is reported by /health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusSource lists recent status reports.
type StatusSource interface {
	Recent(ctx context.Context, limit int) ([]status.Record, error)
}

// MQTTState reports the bridge connection state.
type MQTTState interface {
	State() bridge.State
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Registry *device.Registry
	Updates  *update.Service
	Hub      *subscription.Hub

	// Optional.
	Status  StatusSource
	MQTT    MQTTState
	Loops   []*scheduler.Loop
	Checks  map[string]HealthChecker
	Version string
}

// Server is the HTTP API server.
//
// It is created with New(), started with Start() and stopped with Close().
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	registry *device.Registry
	updates  *update.Service
	hub      *subscription.Hub
	status   StatusSource
	mqtt     MQTTState
	loops    []*scheduler.Loop
	checks   map[string]HealthChecker
	version  string

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// Parameters:
//   - deps: Required dependencies (logger, registry, update service, hub)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Registry == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Updates == nil {
		return nil, fmt.Errorf("update service is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("subscription hub is required")
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		registry: deps.Registry,
		updates:  deps.Updates,
		hub:      deps.Hub,
		status:   deps.Status,
		mqtt:     deps.MQTT,
		loops:    deps.Loops,
		checks:   deps.Checks,
		version:  deps.Version,
	}, nil
}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in a background goroutine.
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(_ context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.mu.Unlock()

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete. Websocket
// connections are hijacked and must be closed through the hub.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

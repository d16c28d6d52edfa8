// Package api provides the HTTP surface of otacore: the administrative
// REST API, the unauthenticated firmware download endpoint devices fetch
// from, and the device WebSocket channel.
//
// The server follows the same lifecycle pattern as other infrastructure
// components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ferrolink/otacore/internal/device"
	"github.com/ferrolink/otacore/internal/firmware"
	"github.com/ferrolink/otacore/internal/hub"
	"github.com/ferrolink/otacore/internal/infrastructure/config"
	"github.com/ferrolink/otacore/internal/infrastructure/logging"
	"github.com/ferrolink/otacore/internal/orchestrator"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config    *config.Config
	Logger    *logging.Logger
	Devices   *device.Registry
	Firmwares *firmware.Registry
	Hub       *hub.Hub
	Engine    *orchestrator.Engine
	Version   string
}

// Server is the HTTP server for otacore.
//
// It manages the HTTP listener, routes, middleware, and the device
// WebSocket endpoint. The server is created with New() and started with
// Start().
type Server struct {
	cfg       *config.Config
	logger    *logging.Logger
	devices   *device.Registry
	firmwares *firmware.Registry
	hub       *hub.Hub
	engine    *orchestrator.Engine
	version   string
	server    *http.Server
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Devices == nil {
		return nil, fmt.Errorf("device registry is required")
	}
	if deps.Firmwares == nil {
		return nil, fmt.Errorf("firmware registry is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		devices:   deps.Devices,
		firmwares: deps.Firmwares,
		hub:       deps.Hub,
		engine:    deps.Engine,
		version:   deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It builds the router and launches the listener in a background goroutine.
// The server can be stopped with Close().
func (s *Server) Start(_ context.Context) error {
	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       s.cfg.GetReadTimeout(),
		ReadHeaderTimeout: s.cfg.GetReadTimeout(),
		WriteTimeout:      s.cfg.GetWriteTimeout(),
		IdleTimeout:       s.cfg.GetIdleTimeout(),
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.logger.Info("http server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the server. It waits up to 10 seconds for
// in-flight requests to complete, then forcefully closes remaining
// connections. Device WebSocket connections are closed through the hub.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("http server shutting down")
	s.hub.CloseAll()
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

// HealthCheck verifies the server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}

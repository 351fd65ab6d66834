package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/config"
	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/oilfox-bridge/internal/infrastructure/mqtt"
	"github.com/nerrad567/oilfox-bridge/internal/oilfox"
	"github.com/nerrad567/oilfox-bridge/internal/tank"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Store is the local history the API reads and the adopted-device list it
// maintains. *tank.SQLiteRepository satisfies it.
type Store interface {
	SaveDevice(ctx context.Context, dev oilfox.DeviceConfig) error
	DeleteDevice(ctx context.Context, hwid string) error
	History(ctx context.Context, hwid string, limit int) ([]tank.Reading, error)
	RecentPolls(ctx context.Context, limit int) ([]tank.PollRecord, error)
}

// Subscriber delivers MQTT messages for the WebSocket relay.
// *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// HealthChecker is implemented by every infrastructure client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config config.APIConfig
	WS     config.WebSocketConfig
	Logger *logging.Logger

	Bridge *oilfox.Bridge
	Inbox  *oilfox.Inbox
	Store  Store

	// MQTT feeds the WebSocket relay. Optional.
	MQTT Subscriber

	// Gatherer is served on /metrics. Optional.
	Gatherer prometheus.Gatherer

	// Checks are reported by /api/v1/health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the HTTP API server for oilfoxd.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	bridge   *oilfox.Bridge
	inbox    *oilfox.Inbox
	store    Store
	mqtt     Subscriber
	gatherer prometheus.Gatherer
	checks   map[string]HealthChecker
	version  string

	server    *http.Server
	hub       *Hub
	startTime time.Time
	cancel    context.CancelFunc

	// lastDeviceRefresh spaces POST /devices/{hwid}/refresh per device.
	refreshMu         sync.Mutex
	lastDeviceRefresh map[string]time.Time
	now               func() time.Time
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Bridge == nil {
		return nil, fmt.Errorf("bridge is required")
	}
	if deps.Store == nil {
		return nil, fmt.Errorf("store is required")
	}

	return &Server{
		cfg:       deps.Config,
		wsCfg:     deps.WS,
		logger:    deps.Logger,
		bridge:    deps.Bridge,
		inbox:     deps.Inbox,
		store:     deps.Store,
		mqtt:      deps.MQTT,
		gatherer:  deps.Gatherer,
		checks:    deps.Checks,
		version:   deps.Version,
		hub:       NewHub(deps.WS, deps.Logger),
		startTime: time.Now(),

		lastDeviceRefresh: make(map[string]time.Time),
		now:               time.Now,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, subscribes to the bridge's state and status
// topics for the live stream, binds the listener and serves in a background
// goroutine. The server can be stopped with Close().
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	if err := s.subscribeUpdates(); err != nil {
		s.logger.Warn("failed to subscribe to updates for WebSocket", "error", err)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		s.cancel()
		return fmt.Errorf("listening on %s: %w", s.server.Addr, err)
	}

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
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

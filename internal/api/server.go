package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/nerrad567/gray-logic-garage/internal/garage"
	"github.com/nerrad567/gray-logic-garage/internal/history"
	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-garage/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// commandTimeout bounds queueing plus the device call for one API command.
const commandTimeout = 30 * time.Second

// Controller is the accessory contract the API serves.
// *garage.Controller implements it.
type Controller interface {
	Name() string
	LightName() string
	HasLight() bool
	DoorSnapshot() garage.DoorSnapshot
	LightSnapshot() garage.LightSnapshot
	DoorCurrentState() (garage.DoorState, error)
	LightCurrentState() (bool, error)
	OperateDoor(ctx context.Context, target garage.DoorState) error
	OperateLight(ctx context.Context, on bool) error
	Refresh(ctx context.Context)
}

// HistoryReader returns the newest audit events first.
type HistoryReader interface {
	Recent(ctx context.Context, limit int) ([]history.Event, error)
}

// HealthChecker is implemented by the MQTT client, database and InfluxDB client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config     config.APIConfig
	WS         config.WebSocketConfig
	Logger     *logging.Logger
	Controller Controller

	// History is optional; without it /history answers 503.
	History HistoryReader

	// Gatherer is optional; without it /metrics is not routed.
	Gatherer prometheus.Gatherer

	// HealthChecks are reported by name on /health.
	HealthChecks map[string]HealthChecker

	// QueueDepth reports the device gate backlog. Optional.
	QueueDepth func() int

	Version string
}

// Server is the HTTP API server for the garage bridge.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start(). It implements
// garage.Notifier so every state push reaches WebSocket clients.
type Server struct {
	cfg          config.APIConfig
	wsCfg        config.WebSocketConfig
	logger       *logging.Logger
	ctrl         Controller
	history      HistoryReader
	gatherer     prometheus.Gatherer
	healthChecks map[string]HealthChecker
	queueDepth   func() int
	limiter      *rate.Limiter
	version      string
	startTime    time.Time
	server       *http.Server
	hub          *Hub
	cancel       context.CancelFunc // cancels the hub on Close()
}

var _ garage.Notifier = (*Server)(nil)

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, controller)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Controller == nil {
		return nil, fmt.Errorf("controller is required")
	}

	return &Server{
		cfg:          deps.Config,
		wsCfg:        deps.WS,
		logger:       deps.Logger,
		ctrl:         deps.Controller,
		history:      deps.History,
		gatherer:     deps.Gatherer,
		healthChecks: deps.HealthChecks,
		queueDepth:   deps.QueueDepth,
		limiter: newCommandLimiter(deps.Config.RateLimit.Enabled,
			deps.Config.RateLimit.RequestsPerMinute, deps.Config.RateLimit.Burst),
		version:   deps.Version,
		startTime: time.Now(),
		hub:       NewHub(deps.WS, deps.Logger),
	}, nil
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Parent context for the hub (not used for listener lifetime)
//
// Returns:
//   - error: Always nil; listener failures are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		s.logger.Info("API server starting", "address", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
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

func (s *Server) DoorCurrentStateChanged(state garage.DoorState) {
	s.hub.Broadcast(ChannelDoor, StateEvent{Axis: "current", Value: state})
}

func (s *Server) DoorTargetStateChanged(state garage.DoorState) {
	s.hub.Broadcast(ChannelDoor, StateEvent{Axis: "target", Value: state})
}

func (s *Server) ObstructionDetectedChanged(obstructed bool) {
	s.hub.Broadcast(ChannelDoor, StateEvent{Axis: "obstruction", Value: obstructed})
}

func (s *Server) LightStateChanged(on bool) {
	s.hub.Broadcast(ChannelLight, StateEvent{Axis: "on", Value: on})
}

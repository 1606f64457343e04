package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/ptl-core/internal/infrastructure/config"
	"github.com/nerrad567/ptl-core/internal/infrastructure/logging"
	"github.com/nerrad567/ptl-core/internal/metrics"
	"github.com/nerrad567/ptl-core/internal/ptl/orchestrator"
	"github.com/nerrad567/ptl-core/internal/topology"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultMetricsPath is used when metrics are enabled without a path.
const defaultMetricsPath = "/metrics"

// Orchestrator is the part of *orchestrator.Orchestrator the handlers use.
type Orchestrator interface {
	Process(ctx context.Context, action string, payload any) (any, error)
	PolicyName() string
	Units(ctx context.Context) (topology.Units, error)
	UnitByLocation(ctx context.Context, location string) (topology.Unit, bool, error)
	Endpoints(ctx context.Context) ([]orchestrator.EndpointStatus, error)
	SentLog(ctx context.Context) ([]orchestrator.SentRecord, error)
	ReceivedLog(ctx context.Context) ([]orchestrator.ReceivedRecord, error)
	PendingLog(ctx context.Context) ([]orchestrator.SentRecord, error)
	AlarmLog(ctx context.Context) ([]orchestrator.ReceivedRecord, error)
	Status(ctx context.Context) (orchestrator.Status, error)
	ReloadFrom(ctx context.Context, src orchestrator.TopologySource) (topology.Units, error)
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config       config.APIConfig
	WS           config.WebSocketConfig
	Logger       *logging.Logger
	Orchestrator Orchestrator
	Topology     orchestrator.TopologySource // Source for POST /configuration/reload
	Metrics      *metrics.Collector          // Optional; nil disables /metrics
	MetricsPath  string
	Hub          *Hub // If set, the server uses this hub instead of creating its own
	Version      string
}

// Server is the HTTP API server of the PTL service.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg         config.APIConfig
	wsCfg       config.WebSocketConfig
	logger      *logging.Logger
	orch        Orchestrator
	topology    orchestrator.TopologySource
	metrics     *metrics.Collector
	metricsPath string
	version     string
	server      *http.Server
	hub         *Hub
	externalHub bool               // true if hub was injected externally
	cancel      context.CancelFunc // cancels the hub on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, orchestrator)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Orchestrator == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}

	s := &Server{
		cfg:         deps.Config,
		wsCfg:       deps.WS,
		logger:      deps.Logger,
		orch:        deps.Orchestrator,
		topology:    deps.Topology,
		metrics:     deps.Metrics,
		metricsPath: deps.MetricsPath,
		version:     deps.Version,
	}
	if s.metricsPath == "" {
		s.metricsPath = defaultMetricsPath
	}

	// The orchestrator broadcasts through the hub, so cmd usually builds
	// it first and hands it over.
	if deps.Hub != nil {
		s.hub = deps.Hub
		s.externalHub = true
	}

	return s, nil
}

// Hub returns the server's WebSocket hub, nil before Start when none was injected.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub unless one was injected,
// and launches the HTTP listener in a background goroutine. The server can
// be stopped with Close().
//
// Parameters:
//   - ctx: Parent of the hub's context (not used for listener lifetime)
//
// Returns:
//   - error: Always nil; listener errors are logged
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	if !s.externalHub {
		go s.hub.Run(srvCtx)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
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
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
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

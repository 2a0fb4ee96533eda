// Package container wires the console's components with ordered start-up and
// reverse-order teardown.
package container

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/garyjia/logistics-console/internal/application/dispatcher"
	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/internal/application/service"
	"github.com/garyjia/logistics-console/internal/config"
	"github.com/garyjia/logistics-console/internal/domain/doctype"
	"github.com/garyjia/logistics-console/internal/infrastructure/identity"
	"github.com/garyjia/logistics-console/internal/infrastructure/worker"
	"github.com/garyjia/logistics-console/internal/observability/metrics"
	"github.com/garyjia/logistics-console/pkg/database"
)

// Container manages all application dependencies and lifecycle
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure
	db           *database.DB
	repositories *RepositoryBundle
	identity     *identity.Store
	backend      port.Backend
	messenger    port.MessageSender
	promRegistry *prometheus.Registry
	metrics      *metrics.Metrics

	// Application
	registry   *doctype.Registry
	dispatcher dispatcher.Dispatcher
	recorder   *service.ActivityRecorder
	sessions   *service.SessionManager
	exports    *service.ExportService

	// Workers
	workers *worker.Manager

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// HealthStatus represents the health of all components
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a container. Call Start to initialize it.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	return &Container{
		config:   cfg,
		logger:   logger,
		registry: registry,
	}, nil
}

// Start initializes components in dependency order:
// database, identity, backend, dispatcher, services, workers
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initExternalClients(); err != nil {
		c.closeDatabase()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized")

	c.initDispatcher()
	c.initServices()
	c.logger.Info("Application services initialized",
		zap.Strings("document_types", c.registry.Names()))

	if err := c.initWorkers(ctx); err != nil {
		c.logger.Warn("Some workers failed to start", zap.Error(err))
	}

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

// Close shuts components down in reverse order
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}
	c.logger.Info("Closing container")

	var errs []error

	if c.workers != nil {
		if err := c.workers.StopAll(); err != nil {
			errs = append(errs, fmt.Errorf("stop workers: %w", err))
		}
	}

	if c.sessions != nil {
		c.sessions.CloseAll()
	}

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
	}

	if err := c.closeDatabase(); err != nil {
		errs = append(errs, fmt.Errorf("close database: %w", err))
	}

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}
	c.logger.Info("Container closed successfully")
	return nil
}

// Ready returns true when all components are initialized
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health reports each component's state
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}
	set := func(name string, h ComponentHealth) {
		status.Components[name] = h
		if !h.Healthy {
			status.Overall = false
		}
	}

	switch {
	case c.db == nil:
		set("database", ComponentHealth{Message: "not initialized"})
	default:
		if err := c.db.Healthy(ctx); err != nil {
			set("database", ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)})
		} else {
			set("database", ComponentHealth{Healthy: true})
		}
	}

	if c.workers != nil {
		set("workers", ComponentHealth{
			Healthy: c.workers.IsRunning(),
			Message: fmt.Sprintf("running: %v", c.workers.Running()),
		})
	} else {
		set("workers", ComponentHealth{Message: "not initialized"})
	}

	if c.sessions != nil {
		set("sessions", ComponentHealth{Healthy: true, Message: fmt.Sprintf("open: %d", c.sessions.Count())})
	} else {
		set("sessions", ComponentHealth{Message: "not initialized"})
	}

	if c.messenger != nil {
		set("lark", ComponentHealth{Healthy: true})
	}
	return status
}

func (c *Container) initDatabase(ctx context.Context) error {
	bundle, err := ProvideDatabase(ctx, c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = bundle.DB
	c.repositories = ProvideRepositories(bundle.TransactionMgr, c.logger)
	return nil
}

func (c *Container) closeDatabase() error {
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func (c *Container) initExternalClients() error {
	c.promRegistry, c.metrics = ProvideMetrics(c.config.Metrics)
	c.identity = ProvideIdentity(c.repositories, c.logger)

	client, err := ProvideBackend(c.config.Backend, c.identity, c.metrics, c.logger)
	if err != nil {
		return err
	}
	c.backend = client

	messenger, err := ProvideMessenger(c.config.Lark, c.logger)
	if err != nil {
		return err
	}
	c.messenger = messenger
	return nil
}

func (c *Container) initDispatcher() {
	c.dispatcher = ProvideDispatcher(c.logger)
	c.recorder = service.NewActivityRecorder(c.repositories.Activity, NewServiceLogger(c.logger))

	deps := SubscriberDeps{Recorder: c.recorder, Metrics: c.metrics}
	if c.messenger != nil {
		deps.Notifier = service.NewApprovalNotifier(c.messenger, c.config.Lark.ChatID, c.registry, NewServiceLogger(c.logger))
	}
	RegisterSubscribers(c.dispatcher, deps)
}

func (c *Container) initServices() {
	svcLogger := NewServiceLogger(c.logger)

	opts := []service.SessionOption{
		service.WithSessionFormOptions(
			service.WithFormEvents(c.dispatcher),
			service.WithFormValidator(service.NewDraftValidator()),
			service.WithFormResolverOptions(service.WithLoadConcurrency(c.config.References.LoadConcurrency)),
		),
	}
	if c.metrics != nil {
		opts = append(opts, service.WithSessionGauge(c.metrics.SetOpenSessions))
	}
	c.sessions = service.NewSessionManager(c.registry, c.backend, c.identity, svcLogger, opts...)
	c.exports = ProvideExports(c.config.Export, c.logger)
}

func (c *Container) initWorkers(ctx context.Context) error {
	c.workers = worker.NewManager(c.logger)
	c.workers.Register(worker.NewSessionSweeper(
		c.sessions,
		c.config.Server.SweepInterval,
		c.config.Server.SessionIdleTimeout,
		c.logger,
	))
	return c.workers.StartAll(ctx)
}

// Config returns the loaded configuration
func (c *Container) Config() *config.Config { return c.config }

// Logger returns the root logger
func (c *Container) Logger() *zap.Logger { return c.logger }

// Registry returns the document type registry
func (c *Container) Registry() *doctype.Registry { return c.registry }

// Sessions returns the session manager
func (c *Container) Sessions() *service.SessionManager { return c.sessions }

// Identity returns the identity store
func (c *Container) Identity() *identity.Store { return c.identity }

// Activity returns the activity journal
func (c *Container) Activity() *service.ActivityRecorder { return c.recorder }

// Exports returns the export service
func (c *Container) Exports() *service.ExportService { return c.exports }

// MetricsHandler serves the prometheus registry, or nil when metrics are disabled
func (c *Container) MetricsHandler() http.Handler {
	if c.metrics == nil || c.promRegistry == nil {
		return nil
	}
	return promhttp.HandlerFor(c.promRegistry, promhttp.HandlerOpts{})
}

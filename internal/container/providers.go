package container

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/garyjia/logistics-console/internal/application/dispatcher"
	"github.com/garyjia/logistics-console/internal/application/port"
	"github.com/garyjia/logistics-console/internal/application/service"
	"github.com/garyjia/logistics-console/internal/config"
	"github.com/garyjia/logistics-console/internal/domain/event"
	"github.com/garyjia/logistics-console/internal/infrastructure/backend"
	"github.com/garyjia/logistics-console/internal/infrastructure/export"
	infraLark "github.com/garyjia/logistics-console/internal/infrastructure/external/lark"
	"github.com/garyjia/logistics-console/internal/infrastructure/identity"
	"github.com/garyjia/logistics-console/internal/infrastructure/persistence/repository"
	"github.com/garyjia/logistics-console/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/logistics-console/internal/infrastructure/storage"
	"github.com/garyjia/logistics-console/internal/observability/metrics"
	"github.com/garyjia/logistics-console/pkg/database"
)

// DatabaseBundle holds database-related components
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups the local repositories
type RepositoryBundle struct {
	Identity port.IdentityRepository
	Activity port.ActivityRepository
}

// ProvideDatabase opens the local store and applies pending migrations
func ProvideDatabase(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyRetries:     cfg.BusyRetries,
	}, logger)
	if err != nil {
		return nil, err
	}

	if _, err := database.NewMigrator(db, logger).Migrate(ctx, database.Migrations()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.New(db),
	}, nil
}

// ProvideRepositories creates the repositories over an open database
func ProvideRepositories(db *sqlite.DB, logger *zap.Logger) *RepositoryBundle {
	return &RepositoryBundle{
		Identity: repository.NewIdentityRepository(db, logger),
		Activity: repository.NewActivityRepository(db, logger),
	}
}

// ProvideMetrics registers the console collectors plus the process and Go
// runtime collectors on a private registry
func ProvideMetrics(cfg config.MetricsConfig) (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	if !cfg.Enabled {
		return reg, nil
	}
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.New(reg, metrics.Config{
		ServiceName: "logistics-console",
		Environment: cfg.Environment,
	})
}

// ProvideIdentity creates the identity store
func ProvideIdentity(repos *RepositoryBundle, logger *zap.Logger) *identity.Store {
	return identity.NewStore(repos.Identity, logger)
}

// ProvideBackend creates the REST backend client
func ProvideBackend(cfg config.BackendConfig, provider port.IdentityProvider, m *metrics.Metrics, logger *zap.Logger) (*backend.Client, error) {
	client, err := backend.New(backend.Config{
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
	}, provider, logger, backend.WithMetrics(m))
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}
	return client, nil
}

// ProvideMessenger creates the Lark sender, or nil when notifications are off
func ProvideMessenger(cfg config.LarkConfig, logger *zap.Logger) (port.MessageSender, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	client, err := infraLark.NewClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
		BaseURL:   cfg.BaseURL,
		Timeout:   cfg.Timeout,
	}, logger)
	if err != nil {
		return nil, err
	}
	return infraLark.NewMessenger(client, logger), nil
}

// ProvideDispatcher creates the event dispatcher
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(NewServiceLogger(logger)))
}

// SubscriberDeps are the event consumers wired to the dispatcher
type SubscriberDeps struct {
	Recorder *service.ActivityRecorder
	Metrics  *metrics.Metrics
	Notifier *service.ApprovalNotifier
}

// RegisterSubscribers subscribes the journal, metrics and notifier
func RegisterSubscribers(d dispatcher.Dispatcher, deps SubscriberDeps) {
	if deps.Recorder != nil {
		d.SubscribeAll("activity_journal", deps.Recorder.HandleEvent)
	}
	if deps.Metrics != nil {
		d.SubscribeAll("metrics", deps.Metrics.HandleEvent)
	}
	if deps.Notifier != nil {
		d.SubscribeNamed(event.TypeApprovalDecided, "lark_notifier", deps.Notifier.HandleEvent)
	}
}

// ProvideExports creates the export service over the export directory
func ProvideExports(cfg config.ExportConfig, logger *zap.Logger) *service.ExportService {
	var files port.FileStorage
	if cfg.Dir != "" {
		files = storage.NewLocalFileStorage(cfg.Dir, logger)
	}
	return service.NewExportService(export.NewExcelExporter(logger), files, NewServiceLogger(logger))
}

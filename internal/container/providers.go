// Package container provides dependency injection and lifecycle management
// for the invoice workflow service.
package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/garyjia/invoice-workflow/internal/application/delegation"
	"github.com/garyjia/invoice-workflow/internal/application/dispatcher"
	"github.com/garyjia/invoice-workflow/internal/application/port"
	"github.com/garyjia/invoice-workflow/internal/application/service"
	"github.com/garyjia/invoice-workflow/internal/application/workflow"
	"github.com/garyjia/invoice-workflow/internal/config"
	"github.com/garyjia/invoice-workflow/internal/domain/entity"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/export"
	infraLark "github.com/garyjia/invoice-workflow/internal/infrastructure/external/lark"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/metrics"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/notification"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/invoice-workflow/internal/infrastructure/worker"
	httpapi "github.com/garyjia/invoice-workflow/internal/interfaces/http"
	"github.com/garyjia/invoice-workflow/migrations"
	"github.com/garyjia/invoice-workflow/pkg/database"
	"go.uber.org/zap"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Invoice    port.InvoiceRepository
	Workflow   port.WorkflowRepository
	Delegation port.DelegationRepository
	Audit      port.AuditRepository
	User       port.UserRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Invoice      *service.InvoiceService
	Delegation   *service.DelegationService
	Report       *service.ReportService
	Notification *service.NotificationService
}

// EngineBundle groups the lifecycle engine and its collaborators.
type EngineBundle struct {
	Resolver *delegation.Resolver
	Audit    *workflow.AuditTrail
	Engine   workflow.WorkflowEngine
	Bulk     *workflow.BulkCoordinator
}

// ProvideDatabase opens the database and runs pending migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).Run(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil || db.DB == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	return &RepositoryBundle{
		Invoice:    repository.NewInvoiceRepository(db.DB, logger),
		Workflow:   repository.NewWorkflowRepository(db.DB, logger),
		Delegation: repository.NewDelegationRepository(db.DB, logger),
		Audit:      repository.NewAuditRepository(db.DB, logger),
		User:       repository.NewUserRepository(db.DB, logger),
	}, nil
}

// SeedUsers upserts the configured user profiles.
func SeedUsers(ctx context.Context, users port.UserRepository, seeds []config.UserSeed, logger *zap.Logger) error {
	for _, s := range seeds {
		u := &entity.User{
			ID:                   s.ID,
			Name:                 s.Name,
			Email:                s.Email,
			Role:                 entity.Role(s.Role),
			DepartmentID:         s.DepartmentID,
			ProgramIDs:           s.ProgramIDs,
			OperationsRoomMember: s.OperationsRoomMember,
			LarkOpenID:           s.LarkOpenID,
			CreatedAt:            time.Now(),
		}
		if !u.Role.IsValid() {
			return fmt.Errorf("user %s has unknown role %q", s.ID, s.Role)
		}
		if err := users.Create(ctx, u); err != nil {
			return fmt.Errorf("failed to seed user %s: %w", s.ID, err)
		}
	}
	if len(seeds) > 0 {
		logger.Info("Users seeded", zap.Int("count", len(seeds)))
	}
	return nil
}

// ProvideNotifier selects the notification driver.
func ProvideNotifier(cfg *config.Config, logger *zap.Logger) (port.Notifier, error) {
	switch cfg.Notification.Driver {
	case config.DriverLark:
		sdk := infraLark.NewSDKClient(infraLark.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
			BaseURL:   cfg.Lark.BaseURL,
		}, logger)
		return infraLark.NewNotifier(infraLark.NewMessenger(sdk, logger), logger), nil
	case config.DriverLog, "":
		return notification.NewLogNotifier(logger), nil
	default:
		return nil, fmt.Errorf("unknown notification driver: %s", cfg.Notification.Driver)
	}
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(&zapLoggerAdapter{logger: logger.Named("dispatcher")}))
}

// EngineDeps are the inputs of ProvideEngine.
type EngineDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Metrics    *metrics.Recorder
	Workflow   *config.WorkflowConfig
	Location   *time.Location
	Logger     *zap.Logger
}

// ProvideEngine creates the lifecycle engine, bulk coordinator and audit trail.
func ProvideEngine(deps *EngineDeps) (*EngineBundle, error) {
	if deps == nil || deps.Repos == nil || deps.TxManager == nil {
		return nil, fmt.Errorf("repositories and transaction manager are required")
	}
	log := &zapLoggerAdapter{logger: deps.Logger.Named("workflow")}

	resolver := delegation.NewResolver(deps.Repos.Delegation, log)
	audit := workflow.NewAuditTrail(deps.Repos.Audit, log)

	opts := []workflow.EngineOption{
		workflow.WithDispatcher(deps.Dispatcher),
		workflow.WithLogger(log),
		workflow.WithLocation(deps.Location),
	}
	bulkOpts := []workflow.BulkOption{
		workflow.WithBulkLimit(deps.Workflow.BulkLimit),
		workflow.WithBulkLogger(log),
	}
	if deps.Metrics != nil {
		opts = append(opts, workflow.WithMetrics(deps.Metrics))
		bulkOpts = append(bulkOpts, workflow.WithBulkMetrics(deps.Metrics))
	}

	engine := workflow.NewEngine(
		deps.Repos.Invoice,
		deps.Repos.Workflow,
		deps.Repos.User,
		deps.TxManager,
		audit,
		resolver,
		opts...,
	)

	return &EngineBundle{
		Resolver: resolver,
		Audit:    audit,
		Engine:   engine,
		Bulk:     workflow.NewBulkCoordinator(engine, bulkOpts...),
	}, nil
}

// ServiceDeps are the inputs of ProvideServices.
type ServiceDeps struct {
	Repos       *RepositoryBundle
	Engine      *EngineBundle
	Notifier    port.Notifier
	Parallelism int
	Logger      *zap.Logger
}

// ProvideServices creates all application services.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.Engine == nil {
		return nil, fmt.Errorf("repositories and engine are required")
	}
	log := &zapLoggerAdapter{logger: deps.Logger.Named("service")}

	invoices := service.NewInvoiceService(deps.Repos.Invoice, deps.Repos.Workflow, deps.Engine.Audit)
	return &ServiceBundle{
		Invoice:    invoices,
		Delegation: service.NewDelegationService(deps.Repos.Delegation, deps.Repos.User, deps.Engine.Resolver, log),
		Report:     service.NewReportService(invoices, export.NewXLSXExporter(deps.Logger), log),
		Notification: service.NewNotificationService(deps.Repos.User, deps.Notifier, log,
			service.WithParallelism(deps.Parallelism)),
	}, nil
}

// WorkerDeps are the inputs of ProvideWorkers.
type WorkerDeps struct {
	Repos      *RepositoryBundle
	Resolver   *delegation.Resolver
	Dispatcher dispatcher.Dispatcher
	Metrics    *metrics.Recorder
	Config     *config.Config
	Location   *time.Location
	Logger     *zap.Logger
}

// ProvideWorkers creates the worker manager and registers background workers.
func ProvideWorkers(deps *WorkerDeps) (*worker.Manager, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("repositories are required")
	}

	manager := worker.NewManager(deps.Logger)
	if !deps.Config.Worker.Enabled {
		deps.Logger.Info("Background workers disabled")
		return manager, nil
	}

	slaCfg := worker.DefaultSLAConfig()
	if deps.Config.Worker.SLAPollInterval > 0 {
		slaCfg.PollInterval = deps.Config.Worker.SLAPollInterval
	}
	if deps.Config.Workflow.SLADays > 0 {
		slaCfg.SLADays = deps.Config.Workflow.SLADays
	}
	slaCfg.Location = deps.Location

	var slaMetrics worker.SLAMetrics
	if deps.Metrics != nil {
		slaMetrics = deps.Metrics
	}
	manager.Register(worker.NewSLAReminderWorker(
		slaCfg,
		deps.Repos.Workflow,
		deps.Repos.Invoice,
		deps.Resolver,
		deps.Dispatcher,
		slaMetrics,
		deps.Logger.Named("sla"),
	))
	return manager, nil
}

// ProvideHTTPServer creates the API server.
func ProvideHTTPServer(cfg *config.Config, engine *EngineBundle, services *ServiceBundle, users port.UserRepository, recorder *metrics.Recorder, location *time.Location, logger *zap.Logger) *httpapi.Server {
	var metricsHandler http.Handler
	if recorder != nil {
		metricsHandler = recorder.Handler()
	}

	return httpapi.NewServer(httpapi.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		Mode:            cfg.Server.Mode,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		MetricsPath:     cfg.Metrics.Path,
	}, httpapi.Dependencies{
		Engine:      engine.Engine,
		Bulk:        engine.Bulk,
		Invoices:    services.Invoice,
		Delegations: services.Delegation,
		Reports:     services.Report,
		Users:       users,
		Metrics:     metricsHandler,
		Location:    location,
		Logger:      &zapLoggerAdapter{logger: logger.Named("http")},
	})
}

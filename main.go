package main

import (
	"context"
	"database/sql"
	"log"
	"os/signal"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql (migrations)
	"go.uber.org/zap"

	"github.com/casewatch/casewatch-engine/pkg/blockcheck"
	"github.com/casewatch/casewatch-engine/pkg/config"
	"github.com/casewatch/casewatch-engine/pkg/database"
	"github.com/casewatch/casewatch-engine/pkg/jobs"
	"github.com/casewatch/casewatch-engine/pkg/logging"
	"github.com/casewatch/casewatch-engine/pkg/repositories"
	"github.com/casewatch/casewatch-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

const migrationsDir = "migrations"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.String("wiki_id", cfg.WikiID),
		zap.String("environment", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", logging.SanitizeConnectionString(cfg.Database.ConnectionString())))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	// Migrations run over database/sql (required by golang-migrate).
	sqlDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, migrationsDir, logger); err != nil {
		sqlDB.Close()
		logger.Fatal("failed to run migrations", zap.Error(err))
	}
	sqlDB.Close()

	scopes := database.NewScopeProvider(db)
	repo := repositories.NewCaseRepository()
	manager := services.NewCaseManager(repo, logger)

	indef := blockcheck.NewIndefiniteComposite(
		blockcheck.NewLocalBlockStore(),
		blockcheck.NewGlobalBlockStore(),
	)
	autoClose := services.NewAutoCloseService(repo, manager, indef, logger)

	queue := jobs.NewPostgresQueue(db)
	worker := jobs.NewWorker(queue, &scopedHandler{
		scopes:  scopes,
		wikiID:  cfg.WikiID,
		handler: autoClose,
	}, jobs.WorkerConfig{
		WikiID:       cfg.WikiID,
		PollInterval: cfg.Worker.PollInterval(),
		BatchSize:    cfg.Worker.BatchSize,
		MaxAttempts:  cfg.Worker.MaxAttempts,
	}, logger)

	logger.Info("starting casewatch-engine worker",
		zap.String("wiki_id", cfg.WikiID),
		zap.Bool("autoclose_enabled", cfg.AutoClose.Enabled))

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Fatal("worker failed", zap.Error(err))
	}
	logger.Info("shutdown complete")
}

// scopedHandler pins a wiki-scoped connection around each job so repository
// calls made while handling it share one connection.
type scopedHandler struct {
	scopes  *database.ScopeProvider
	wikiID  string
	handler jobs.Handler
}

func (h *scopedHandler) HandleAutoClose(ctx context.Context, username string) error {
	scopedCtx, cleanup, err := h.scopes.WithWikiScope(ctx, h.wikiID)
	if err != nil {
		return err
	}
	defer cleanup()
	return h.handler.HandleAutoClose(scopedCtx, username)
}

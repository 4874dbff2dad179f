// Package app is the composition root: it opens the configured backend and
// wires the catalog, query layer, audit logger, tool registry and
// orchestrator on top of it.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/raphaelgruber/passprotect-go/internal/agent"
	"github.com/raphaelgruber/passprotect-go/internal/audit"
	"github.com/raphaelgruber/passprotect-go/internal/catalog"
	"github.com/raphaelgruber/passprotect-go/internal/config"
	"github.com/raphaelgruber/passprotect-go/internal/db"
	"github.com/raphaelgruber/passprotect-go/internal/llm"
	"github.com/raphaelgruber/passprotect-go/internal/metrics"
	"github.com/raphaelgruber/passprotect-go/internal/models"
	"github.com/raphaelgruber/passprotect-go/internal/policy"
	"github.com/raphaelgruber/passprotect-go/internal/query"
	"github.com/raphaelgruber/passprotect-go/internal/sqlstore"
	"github.com/raphaelgruber/passprotect-go/internal/tools"
)

// Backend is everything the app needs from a database.
type Backend interface {
	query.Backend
	catalog.Source
	audit.Store
	InitSchema(ctx context.Context, table string) error
}

// App holds the process-wide dependencies.
type App struct {
	Config   config.Config
	Logger   *slog.Logger
	Metrics  *metrics.Collector
	Catalog  *catalog.Catalog
	Layer    *query.Layer
	Audit    *audit.Logger
	Policy   *policy.Table
	Tools    *tools.Registry
	Sessions *agent.Store

	closeBackend func(ctx context.Context) error

	mu     sync.Mutex
	engine agent.Engine
	orch   *agent.Orchestrator
}

// New connects the configured backend and builds everything except the
// reasoning engine, which is created on first use.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	backend, closeFn, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a, err := Wire(ctx, cfg, backend, logger)
	if err != nil {
		_ = closeFn(ctx)
		return nil, err
	}
	a.closeBackend = closeFn
	return a, nil
}

// Open connects the backend named by cfg.Backend.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (Backend, func(context.Context) error, error) {
	switch cfg.Backend {
	case config.BackendSurrealDB:
		client, err := db.NewClient(ctx, db.Config{
			URL:       cfg.SurrealDBURL,
			Namespace: cfg.SurrealDBNamespace,
			Database:  cfg.SurrealDBDatabase,
			Username:  cfg.SurrealDBUser,
			Password:  cfg.SurrealDBPass,
			AuthLevel: cfg.SurrealDBAuthLevel,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		return client, client.Close, nil

	case config.BackendPostgres, config.BackendSQLite:
		dialect, err := sqlstore.ByName(cfg.Backend)
		if err != nil {
			return nil, nil, err
		}
		dsn := cfg.PostgresDSN
		if cfg.Backend == config.BackendSQLite {
			dsn = cfg.SQLitePath
		}
		store, err := sqlstore.Open(ctx, sqlstore.Config{
			Dialect:         dialect,
			DSN:             dsn,
			MaxOpenConns:    cfg.PostgresMaxOpenConns,
			MaxIdleConns:    cfg.PostgresMaxIdleConns,
			ConnMaxLifetime: cfg.PostgresConnLifetime,
		}, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to database: %w", err)
		}
		return store, func(context.Context) error { return store.Close() }, nil

	default:
		return nil, nil, fmt.Errorf("unsupported backend: %s", cfg.Backend)
	}
}

// Wire builds the app on an open backend. The caller keeps ownership of
// backend.
func Wire(ctx context.Context, cfg config.Config, backend Backend, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := backend.InitSchema(ctx, cfg.Table); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	pol := policy.Default()
	if cfg.PolicyFile != "" {
		var err error
		if pol, err = policy.Load(cfg.PolicyFile); err != nil {
			return nil, err
		}
	}

	mc := metrics.NewCollector()
	cat := catalog.New(backend, cfg.CatalogTTL, logger)
	if err := cat.Warm(ctx, cfg.Table); err != nil {
		return nil, fmt.Errorf("warm catalog: %w", err)
	}

	layer := query.New(backend, cat, query.Config{
		Table:        cfg.Table,
		DefaultLimit: cfg.DefaultLimit,
		MaxLimit:     cfg.MaxLimit,
		Logger:       logger,
	})
	auditLog := audit.New(backend, logger, mc)

	reg := tools.NewRegistry(pol, logger, mc)
	if err := tools.RegisterAll(reg, &tools.Dependencies{
		Layer:       layer,
		Audit:       auditLog,
		OwnerColumn: cfg.OwnerColumn,
		Logger:      logger,
	}); err != nil {
		return nil, fmt.Errorf("register tools: %w", err)
	}

	logger.Info("app ready",
		"backend", backend.Dialect().Name(),
		"table", cfg.Table,
		"tools", len(reg.Definitions()),
	)

	return &App{
		Config:       cfg,
		Logger:       logger,
		Metrics:      mc,
		Catalog:      cat,
		Layer:        layer,
		Audit:        auditLog,
		Policy:       pol,
		Tools:        reg,
		Sessions:     agent.NewStore(cfg.SessionTTL, logger),
		closeBackend: func(context.Context) error { return nil },
	}, nil
}

// Identity is the configured acting identity.
func (a *App) Identity() models.Identity {
	return models.Identity{UserID: a.Config.UserID, Role: a.Config.Role}
}

// SetEngine replaces the reasoning engine. It must be called before the
// first Orchestrator call.
func (a *App) SetEngine(e agent.Engine) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.engine = e
}

// Orchestrator returns the conversational orchestrator, creating the LLM
// engine on first use.
func (a *App) Orchestrator(ctx context.Context) (*agent.Orchestrator, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.orch != nil {
		return a.orch, nil
	}
	if a.engine == nil {
		e, err := llm.NewEngineFromConfig(ctx, a.Config, a.Logger)
		if err != nil {
			return nil, fmt.Errorf("init engine: %w", err)
		}
		a.Logger.Info("engine initialized", "provider", a.Config.LLMProvider, "model", e.Model())
		a.engine = e
	}
	orch, err := agent.New(a.engine, a.Tools, a.Sessions, agent.Config{
		MaxIterations:   a.Config.MaxIterations,
		MaxParallel:     a.Config.MaxParallel,
		EngineTimeout:   a.Config.EngineTimeout,
		MaxHistoryTurns: a.Config.MaxHistoryTurns,
		Logger:          a.Logger,
		Metrics:         a.Metrics,
	})
	if err != nil {
		return nil, err
	}
	a.orch = orch
	return orch, nil
}

// Close releases the backend.
func (a *App) Close(ctx context.Context) error {
	if a.closeBackend == nil {
		return nil
	}
	return a.closeBackend(ctx)
}

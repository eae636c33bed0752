package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/flowgate-labs/flowgate-go/internal/artifacts"
	"github.com/flowgate-labs/flowgate-go/internal/authz"
	"github.com/flowgate-labs/flowgate-go/internal/command"
	"github.com/flowgate-labs/flowgate-go/internal/engine"
	"github.com/minio/minio-go/v7"

	"github.com/flowgate-labs/flowgate-go/internal/platform/auditlog"
	"github.com/flowgate-labs/flowgate-go/internal/platform/auth"
	"github.com/flowgate-labs/flowgate-go/internal/platform/env"
	"github.com/flowgate-labs/flowgate-go/internal/platform/httpserver"
	"github.com/flowgate-labs/flowgate-go/internal/platform/objectstore"
	"github.com/flowgate-labs/flowgate-go/internal/platform/postgres"
	"github.com/flowgate-labs/flowgate-go/internal/query"
	"github.com/flowgate-labs/flowgate-go/internal/repo"
	pgrepo "github.com/flowgate-labs/flowgate-go/internal/repo/postgres"
	"github.com/flowgate-labs/flowgate-go/internal/repo/static"
)

const (
	catalogModePostgres = "postgres"
	catalogModeStatic   = "static"

	engineModeInmem = "inmem"
	engineModeHTTP  = "http"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("FLOWGATE_EXECUTOR_HTTP_ADDR", ":8081")
	shutdownTimeout, err := env.Duration("FLOWGATE_EXECUTOR_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	registry, err := buildRegistry()
	if err != nil {
		logger.Error("invalid engine config", "error", err)
		os.Exit(2)
	}

	catalog, db, err := buildCatalog(ctx)
	if err != nil {
		logger.Error("catalog unavailable", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer func() { _ = db.Close() }()
	}

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	authCfg, err := auth.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid auth config", "error", err)
		os.Exit(2)
	}
	authenticator, err := auth.NewAuthenticator(ctx, authCfg)
	if err != nil {
		logger.Error("auth init failed", "error", err)
		os.Exit(1)
	}

	gate, err := authz.NewGate(catalog)
	if err != nil {
		logger.Error("authz init failed", "error", err)
		os.Exit(2)
	}

	queries, err := query.NewService(registry, gate, catalog, catalog)
	if err != nil {
		logger.Error("query service init failed", "error", err)
		os.Exit(2)
	}

	dispatcher, err := command.NewDispatcher(registry, gate, catalog, auditHandle(db), logger)
	if err != nil {
		logger.Error("dispatcher init failed", "error", err)
		os.Exit(2)
	}

	store, err := artifacts.NewMinioStore(storeClient, storeCfg)
	if err != nil {
		logger.Error("artifact store init failed", "error", err)
		os.Exit(2)
	}
	reader, err := artifacts.NewService(registry, gate, store)
	if err != nil {
		logger.Error("artifact service init failed", "error", err)
		os.Exit(2)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("executor"))
	mux.HandleFunc("/readyz", httpserver.ReadyzWithChecks("executor", readinessChecks(db, storeClient, storeCfg)...))

	api := newExecutorAPI(logger, queries, dispatcher, reader)
	api.register(mux)

	handler := auth.Middleware{
		Logger:        logger,
		Authenticator: authenticator,
		SkipPrefixes:  []string{"/healthz", "/readyz"},
	}.Wrap(mux)

	cfg := httpserver.Config{
		Service:         "executor",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "executor", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// catalogStore is the full catalog surface the executor needs from one
// backend.
type catalogStore interface {
	repo.ProjectStore
	repo.FlowStore
	repo.ScheduleStore
}

func buildCatalog(ctx context.Context) (catalogStore, *sql.DB, error) {
	mode := strings.ToLower(strings.TrimSpace(env.String("FLOWGATE_CATALOG_MODE", catalogModeStatic)))
	switch mode {
	case catalogModeStatic:
		path := env.String("FLOWGATE_CATALOG_FILE", "catalog.yaml")
		store, err := static.Load(path)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	case catalogModePostgres:
		dbCfg, err := postgres.ConfigFromEnv()
		if err != nil {
			return nil, nil, err
		}
		db, err := postgres.Open(ctx, dbCfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := pgrepo.NewStore(db)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return store, db, nil
	default:
		return nil, nil, fmt.Errorf("unsupported catalog mode %q", mode)
	}
}

func buildRegistry() (engine.Registry, error) {
	mode := strings.ToLower(strings.TrimSpace(env.String("FLOWGATE_ENGINE_MODE", engineModeInmem)))
	switch mode {
	case engineModeInmem:
		return engine.NewInMemory(), nil
	case engineModeHTTP:
		baseURL := env.String("FLOWGATE_ENGINE_URL", "")
		return engine.NewClient(baseURL)
	default:
		return nil, fmt.Errorf("unsupported engine mode %q", mode)
	}
}

// auditHandle keeps the dispatcher's audit dependency nil when no
// database is configured; a typed nil *sql.DB would defeat its nil check.
func auditHandle(db *sql.DB) auditlog.QueryRower {
	if db == nil {
		return nil
	}
	return db
}

func readinessChecks(db *sql.DB, storeClient *minio.Client, storeCfg objectstore.Config) []httpserver.ReadinessCheck {
	checks := []httpserver.ReadinessCheck{
		{
			Name: "minio",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return objectstore.CheckBuckets(checkCtx, storeClient, storeCfg)
			},
		},
	}
	if db != nil {
		checks = append(checks, httpserver.ReadinessCheck{
			Name: "postgres",
			Check: func(ctx context.Context) error {
				checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
				defer cancel()
				return db.PingContext(checkCtx)
			},
		})
	}
	return checks
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redroomsim/redroomsim-go/internal/platform/auditlog"
	"github.com/redroomsim/redroomsim-go/internal/platform/auth"
	"github.com/redroomsim/redroomsim-go/internal/platform/env"
	"github.com/redroomsim/redroomsim-go/internal/platform/httpserver"
	"github.com/redroomsim/redroomsim-go/internal/platform/postgres"
	repopg "github.com/redroomsim/redroomsim-go/internal/repo/postgres"
	"github.com/redroomsim/redroomsim-go/internal/service/progress"
	"github.com/redroomsim/redroomsim-go/internal/service/scenarios"
	"github.com/redroomsim/redroomsim-go/internal/storage/objectstore"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("REDROOM_HTTP_ADDR", ":8080")
	shutdownTimeout, err := env.Duration("REDROOM_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}
	corsOrigins := strings.Split(env.String(
		"REDROOM_CORS_ORIGINS",
		"http://localhost:5173,http://localhost:3000",
	), ",")

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	if err := repopg.Migrate(db); err != nil {
		logger.Error("migrations failed", "error", err)
		os.Exit(1)
	}

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object storage config", "error", err)
		os.Exit(2)
	}
	store, err := objectstore.NewMinioStore(storeCfg)
	if err != nil {
		logger.Error("object storage unavailable", "error", err)
		os.Exit(1)
	}
	if err := store.EnsureBucket(ctx, storeCfg.BucketScenarios, storeCfg.Region); err != nil {
		logger.Error("scenario bucket unavailable", "error", err)
		os.Exit(1)
	}

	recorder := auditlog.NewRecorder(logger, db)

	progressSvc := progress.New(repopg.NewProgressStore(db), repopg.NewTimelineStore(db))
	scenariosSvc := scenarios.New(store, storeCfg.BucketScenarios, logger)
	loginLogs := repopg.NewLoginLogStore(db)
	auditLogs := repopg.NewAuditLogStore(db)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("redroomsim"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"redroomsim",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "scenario_bucket",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
					defer cancel()
					return store.CheckBucket(checkCtx, storeCfg.BucketScenarios)
				},
			},
		),
	)

	newProgressAPI(logger, progressSvc).register(mux)
	newScenariosAPI(logger, scenariosSvc, recorder).register(mux)
	newLogsAPI(logger, loginLogs, recorder).register(mux)
	newAuditAPI(logger, db, auditLogs).register(mux)

	handler := httpserver.CORS(corsOrigins, auth.Middleware(mux))

	cfg := httpserver.Config{
		Service:         "redroomsim",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "redroomsim", handler)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

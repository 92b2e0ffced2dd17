package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/CaioWing/apkharbor/internal/api"
	"github.com/CaioWing/apkharbor/internal/api/middleware"
	"github.com/CaioWing/apkharbor/internal/auth"
	"github.com/CaioWing/apkharbor/internal/config"
	"github.com/CaioWing/apkharbor/internal/notify"
	"github.com/CaioWing/apkharbor/internal/playapi"
	"github.com/CaioWing/apkharbor/internal/repository/postgres"
	"github.com/CaioWing/apkharbor/internal/service"
	"github.com/CaioWing/apkharbor/internal/storage/local"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the publishing HTTP service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := newLogger(os.Stdout)
			if err != nil {
				return err
			}
			if err := serve(log); err != nil {
				log.Error("fatal", "err", err)
				return errReported
			}
			return nil
		},
	}
}

func init() {
	rootCmd.AddCommand(newServeCommand())
}

func serve(log *slog.Logger) error {
	// Load config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log.Info("starting apkharbor",
		"version", Version,
		"listen", cfg.ListenAddr(),
		"db_host", cfg.DB.Host,
		"storage", cfg.Storage.Path,
	)

	// Run migrations
	log.Info("running database migrations")
	if err := postgres.RunMigrations(cfg.DB.DSN()); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}
	log.Info("migrations completed")

	// Database connection pool
	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DB.DSN())
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping db: %w", err)
	}
	log.Info("database connected")

	// Workspace storage
	store, err := local.New(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}
	log.Info("storage initialized", "path", cfg.Storage.Path)

	// Publishing API
	client, err := playapi.New(ctx, playapi.Config{
		CredentialsFile: cfg.Publisher.CredentialsFile,
		Endpoint:        cfg.Publisher.Endpoint,
		Timeout:         cfg.Publisher.HTTPTimeout,
		UserAgent:       userAgent(),
	}, log)
	if err != nil {
		return fmt.Errorf("publishing client: %w", err)
	}

	// Repositories
	runRepo := postgres.NewRunRepo(pool)
	auditRepo := postgres.NewAuditRepo(pool)

	// Services
	metrics := middleware.NewMetrics()
	auditSvc := service.NewAuditService(auditRepo, log)
	opts := []service.PublishServiceOption{
		service.WithRunRepository(runRepo),
		service.WithAudit(auditSvc),
		service.WithNotifier(metrics),
	}
	if cfg.Notify.WebhookURL != "" {
		opts = append(opts, service.WithNotifier(notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookTimeout)))
		log.Info("run webhook enabled")
	}
	publishSvc := newPublishService(client, log, opts...)

	cleanupSvc := service.NewCleanupService(runRepo, store, cfg.Cleanup.RunRetention, log)
	go cleanupSvc.StartScheduler(ctx, cfg.Cleanup.Interval)

	// Auth
	jwtMgr := auth.NewJWTManager(cfg.Auth.JWTSecret, cfg.Auth.JWTExpiry)
	ciTokens := auth.NewTokenSet(cfg.Auth.CITokenHashes)
	if ciTokens.Len() == 0 {
		log.Warn("no CI tokens configured, the CI API will reject every request")
	}

	adminHash := cfg.Auth.AdminPasswordHash
	if adminHash == "" {
		log.Warn("APKHARBOR_ADMIN_PASSWORD_HASH not set, using the default admin password")
		adminHash, err = auth.HashPassword("admin")
		if err != nil {
			return fmt.Errorf("hash default admin password: %w", err)
		}
	}

	// Router
	router := api.NewRouter(api.RouterDeps{
		PublishSvc:        publishSvc,
		AuditSvc:          auditSvc,
		Store:             store,
		JWTManager:        jwtMgr,
		CITokens:          ciTokens,
		AdminEmail:        cfg.Auth.AdminEmail,
		AdminPasswordHash: adminHash,
		Metrics:           metrics,
		CORSOrigins:       cfg.CORS.AllowedOrigins,
		Logger:            log,
	})

	// HTTP Server. A publish request is answered once the whole run is
	// done, so the write timeout covers the entire run.
	srv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      router,
		ReadTimeout:  5 * time.Minute,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.ListenAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}

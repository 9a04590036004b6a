package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/straye-as/finance-dashboard/docs"
	"github.com/straye-as/finance-dashboard/internal/apiclient"
	"github.com/straye-as/finance-dashboard/internal/auth"
	"github.com/straye-as/finance-dashboard/internal/config"
	"github.com/straye-as/finance-dashboard/internal/database"
	"github.com/straye-as/finance-dashboard/internal/http/handler"
	"github.com/straye-as/finance-dashboard/internal/http/middleware"
	"github.com/straye-as/finance-dashboard/internal/http/router"
	"github.com/straye-as/finance-dashboard/internal/identity"
	"github.com/straye-as/finance-dashboard/internal/jobs"
	"github.com/straye-as/finance-dashboard/internal/logger"
	"github.com/straye-as/finance-dashboard/internal/repository"
	"github.com/straye-as/finance-dashboard/internal/service"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// @title Finance Dashboard API
// @version 1.0
// @description Backend for the finance dashboard: invoice approval workflow, identity flows and system status

// @contact.name API Support
// @contact.email support@straye.io

// @host localhost:8080
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Session bearer token issued by /auth/login
// @Security BearerAuth

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	basicCfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.NewLogger(&basicCfg.Logging, &basicCfg.App)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting application",
		zap.String("app", basicCfg.App.Name),
		zap.String("env", basicCfg.App.Environment),
		zap.Int("port", basicCfg.App.Port),
	)

	switch basicCfg.App.Environment {
	case "staging", "production":
		docs.SwaggerInfo.Host = ""
	default:
		docs.SwaggerInfo.Host = fmt.Sprintf("localhost:%d", basicCfg.App.Port)
	}

	// Outside development the session signing key and database password come from Key Vault
	cfg, err := config.LoadWithSecrets(ctx, log)
	if err != nil {
		return fmt.Errorf("failed to load secrets: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	db, err := database.NewDatabase(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		if err := database.Close(db); err != nil {
			log.Warn("Error closing database", zap.Error(err))
		}
	}()
	if cfg.Database.AutoMigrate {
		if err := database.AutoMigrate(db); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		log.Info("Database schema migrated", zap.String("driver", cfg.Database.Driver))
	}

	client, err := apiclient.New(apiclient.Config{
		BaseURL:   cfg.Upstream.BaseURL,
		Timeout:   cfg.Upstream.TimeoutDuration(),
		UserAgent: cfg.Upstream.UserAgent,
	}, auth.AccessTokenFromContext, log)
	if err != nil {
		return fmt.Errorf("failed to create finance API client: %w", err)
	}

	flowStore, tokenStore, closeStores, err := newStores(ctx, &cfg.Redis, log)
	if err != nil {
		return err
	}
	defer closeStores()

	issuer, err := auth.NewSessionIssuer(&cfg.Session, tokenStore)
	if err != nil {
		return fmt.Errorf("failed to create session issuer: %w", err)
	}

	actionLogService := service.NewActionLogService(repository.NewActionLogRepository(db), log)
	workflowService := service.NewInvoiceWorkflowService(client, actionLogService, log)
	sessionService := service.NewSessionService(client, issuer, log)
	notificationService := service.NewNotificationService(client, log)
	passwordResetService := identity.NewPasswordResetService(client, flowStore, &cfg.Identity, log)
	emailChangeService := identity.NewEmailChangeService(client, flowStore, &cfg.Identity, log)
	statusService := service.NewSystemStatusService([]service.Probe{
		{Name: "finance-api", Check: client.Health},
		{Name: "database", Check: databaseProbe(db)},
	}, cfg.Monitor.HistorySize, log)

	authMiddleware := auth.NewMiddleware(issuer, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	rt := router.NewRouter(cfg, log, authMiddleware, rateLimiter, router.Handlers{
		Auth:         handler.NewAuthHandler(sessionService, log),
		Invoice:      handler.NewInvoiceHandler(workflowService, log),
		Identity:     handler.NewIdentityHandler(passwordResetService, emailChangeService, log),
		Notification: handler.NewNotificationHandler(notificationService, log),
		SystemStatus: handler.NewSystemStatusHandler(statusService),
		ActionLog:    handler.NewActionLogHandler(actionLogService, log),
	},
		router.HealthCheck{Name: "database", Check: func(ctx context.Context) error { return database.HealthCheck(ctx, db) }},
		router.HealthCheck{Name: "finance-api", Check: func(ctx context.Context) error {
			_, err := client.Health(ctx)
			return err
		}},
	)

	var scheduler *jobs.Scheduler
	if cfg.Monitor.Enabled {
		scheduler = jobs.NewScheduler(log)
		job := jobs.NewSystemStatusJob(ctx, statusService, cfg.Monitor.RequestTimeoutDuration(), log)
		if err := job.Register(scheduler, cfg.Monitor.Schedule); err != nil {
			log.Error("Failed to register system status job", zap.Error(err))
			scheduler = nil
		} else {
			scheduler.Start()
			log.Info("Scheduler started with system status job",
				zap.String("cron_expr", cfg.Monitor.Schedule),
				zap.Duration("timeout", cfg.Monitor.RequestTimeoutDuration()),
			)
		}
	} else {
		log.Info("System status monitor disabled")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      rt.Setup(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// cancels in-flight status refreshes
		cancel()
		if scheduler != nil {
			<-scheduler.Stop().Done()
			log.Info("Scheduler stopped")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Failed to shutdown gracefully", zap.Error(err))
			return err
		}
		log.Info("Server stopped gracefully")
	}

	return nil
}

// newStores keeps OTP flow state and the upstream tokens of sessions in Redis
// when configured, otherwise in memory
func newStores(ctx context.Context, cfg *config.RedisConfig, log *zap.Logger) (identity.FlowStore, auth.UpstreamTokenStore, func(), error) {
	if !cfg.Enabled {
		log.Info("Redis disabled, identity flows and session tokens kept in memory")
		return identity.NewMemoryStore(), auth.NewMemoryTokenStore(), func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	log.Info("Identity flows and session tokens stored in Redis", zap.String("address", cfg.Address))

	return identity.NewRedisStore(rdb, cfg.KeyPrefix), auth.NewRedisTokenStore(rdb, cfg.KeyPrefix), func() {
		if err := rdb.Close(); err != nil {
			log.Warn("Error closing redis", zap.Error(err))
		}
	}, nil
}

func databaseProbe(db *gorm.DB) func(ctx context.Context) (time.Duration, error) {
	return func(ctx context.Context) (time.Duration, error) {
		start := time.Now()
		err := database.HealthCheck(ctx, db)
		return time.Since(start), err
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-lifecycle/internal/api/http"
	"github.com/spec-kit/ticket-lifecycle/internal/api/http/handlers"
	"github.com/spec-kit/ticket-lifecycle/internal/auth"
	"github.com/spec-kit/ticket-lifecycle/internal/config"
	"github.com/spec-kit/ticket-lifecycle/internal/events"
	"github.com/spec-kit/ticket-lifecycle/internal/messaging/kafka"
	"github.com/spec-kit/ticket-lifecycle/internal/observability"
	"github.com/spec-kit/ticket-lifecycle/internal/persistence"
	"github.com/spec-kit/ticket-lifecycle/internal/presence"
	"github.com/spec-kit/ticket-lifecycle/internal/repository"
	"github.com/spec-kit/ticket-lifecycle/internal/repository/memory"
	"github.com/spec-kit/ticket-lifecycle/internal/service"
	"github.com/spec-kit/ticket-lifecycle/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("failed to connect postgres", zap.Error(err))
	}
	defer pg.Close()

	if cfg.Postgres.RunMigrations {
		if err := persistence.RunMigrations(ctx, pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger); err != nil {
			logger.Fatal("failed to run migrations", zap.Error(err))
		}
	}

	var store repository.Store
	if pool := pg.PoolHandle(); pool != nil {
		store = repository.NewPostgresStore(pool)
	} else {
		store = memory.NewStore()
	}

	redisConn := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redisConn.Close()
	var redisClient redis.Cmdable
	if redisConn.Enabled() {
		redisClient = redisConn.Client
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(registry)

	dispatcher := events.NewInMemoryDispatcher(observability.WithComponent(logger, "events"))

	var sinks []service.NotificationSink
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, observability.WithComponent(logger, "kafka"))
		defer producer.Close() //nolint:errcheck
		sinks = append(sinks, producer)
	}
	notifications := service.NewNotificationService(dispatcher, observability.WithComponent(logger, "notifications"), sinks...)
	worker.StartNotificationWorker(notifications, logger)

	deps := service.Dependencies{
		Store:      store,
		Dispatcher: dispatcher,
		Metrics:    metrics,
		Logger:     logger,
	}
	escalationService := service.NewEscalationService(deps)
	ticketService := service.NewTicketService(deps, escalationService)
	approvalService := service.NewApprovalService(deps)
	assignmentService := service.NewAssignmentService(deps, ticketService)
	policyService := service.NewSlaPolicyService(deps)
	scanner := service.NewSlaScanner(deps, service.ScannerConfig{
		RiskWindow: cfg.SLA.RiskWindow,
		PageSize:   cfg.SLA.PageSize,
		MaxPages:   cfg.SLA.MaxPages,
		Retry:      service.DefaultRetryConfig(),
	})
	repos := store.Repos()
	authService := service.NewAuthService(cfg.Auth, repos.Staff)
	staffService := service.NewStaffService(store, cfg.Auth.BcryptCost)

	if cfg.Auth.BootstrapEnabled() {
		admin, created, err := staffService.BootstrapAdmin(ctx, cfg.Auth.BootstrapTenant, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword)
		if err != nil {
			logger.Fatal("failed to bootstrap admin", zap.Error(err))
		}
		if created {
			logger.Info("bootstrap admin created", zap.String("tenant_id", admin.TenantID), zap.String("email", admin.Email))
		}
	}

	if cfg.SLA.PolicySeedFile != "" {
		created, err := policyService.SeedFromFile(ctx, cfg.SLA.PolicySeedFile)
		if err != nil {
			logger.Fatal("failed to seed sla policies", zap.Error(err))
		}
		logger.Info("sla policies seeded", zap.Int("created", created))
	}

	slaWorker := worker.NewSlaWorker(cfg.SLA, scanner, escalationService, assignmentService, redisClient, logger)
	go func() {
		if err := slaWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("sla worker stopped", zap.Error(err))
		}
	}()

	typing := presence.NewTypingStore(redisClient, cfg.Presence.TypingTTL, observability.WithComponent(logger, "presence"))
	authMiddleware := auth.NewAuthMiddleware(authService.TokenManager(), repos.Staff)

	app := fiber.New(fiber.Config{
		AppName:      cfg.App.Name,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())

	healthDeps := map[string]handlers.Pinger{"postgres": nil, "redis": nil}
	if pg.PoolHandle() != nil {
		healthDeps["postgres"] = pg
	}
	if redisConn.Enabled() {
		healthDeps["redis"] = redisConn
	}

	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:         handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, healthDeps),
		Staff:          handlers.NewStaffHandler(authService, staffService),
		Tickets:        handlers.NewTicketsHandler(ticketService, escalationService, assignmentService, typing),
		Approvals:      handlers.NewApprovalsHandler(approvalService),
		Sla:            handlers.NewSlaHandler(policyService, scanner),
		AuthMiddleware: authMiddleware,
		Gatherer:       registry,
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}

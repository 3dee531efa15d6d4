package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-erp/meridian-erp/internal/app"
	"github.com/meridian-erp/meridian-erp/internal/audit"
	"github.com/meridian-erp/meridian-erp/internal/auth"
	"github.com/meridian-erp/meridian-erp/internal/delivery"
	"github.com/meridian-erp/meridian-erp/internal/issue"
	"github.com/meridian-erp/meridian-erp/internal/ledger"
	"github.com/meridian-erp/meridian-erp/internal/masterdata"
	"github.com/meridian-erp/meridian-erp/internal/ncr"
	"github.com/meridian-erp/meridian-erp/internal/notify"
	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/periods"
	periodshttp "github.com/meridian-erp/meridian-erp/internal/periods/http"
	"github.com/meridian-erp/meridian-erp/internal/platform/db"
	"github.com/meridian-erp/meridian-erp/internal/procurement"
	"github.com/meridian-erp/meridian-erp/internal/recon"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/transfer"
	"github.com/meridian-erp/meridian-erp/internal/users"
	"github.com/meridian-erp/meridian-erp/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	auditLogger := shared.NewAuditLogger(pool)
	authorizer := shared.NewRoleAuthorizer(pool)

	jobsClient := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	notifier := notify.NewAsynqNotifier(jobsClient, logger)

	authService := auth.NewService(auth.NewRepository(pool), logger)
	authHandler := auth.NewHandler(logger, authService)

	usersService := users.NewService(users.NewRepository(pool), auditLogger, logger)
	usersHandler := users.NewHandler(logger, usersService)

	auditService := audit.NewService(audit.NewRepository(pool))
	auditHandler := audit.NewHandler(logger, auditService)

	catalog := masterdata.NewService(masterdata.NewRepository(pool))
	masterdataHandler := masterdata.NewHandler(logger, catalog)

	periodsService := periods.NewService(periods.NewRepository(pool), authorizer, auditLogger, logger)
	periodsHandler := periodshttp.NewHandler(logger, periodsService)

	procurementService := procurement.NewService(procurement.NewRepository(pool), logger)
	procurementHandler := procurement.NewHandler(logger, procurementService)

	ncrService := ncr.NewService(ncr.NewRepository(pool), auditLogger, logger)
	ncrHandler := ncr.NewHandler(logger, ncrService)

	deliveryRepo := delivery.NewRepository(pool)
	deliveryService := delivery.NewService(deliveryRepo, periodsService, catalog, authorizer, auditLogger, notifier, logger)
	deliveryHandler := delivery.NewHandler(logger, deliveryService)

	issueRepo := issue.NewRepository(pool)
	issueService := issue.NewService(issueRepo, periodsService, catalog, authorizer, auditLogger, logger)
	issueHandler := issue.NewHandler(logger, issueService)

	transferRepo := transfer.NewRepository(pool)
	transferService := transfer.NewService(transferRepo, periodsService, catalog, authorizer, auditLogger, notifier, logger)
	transferHandler := transfer.NewHandler(logger, transferService)

	stockRepo := ledger.NewRepository(pool)
	reconService := recon.NewService(recon.NewRepository(pool), periodsService,
		deliveryRepo, issueRepo, transferRepo, ncr.NewRepository(pool), stockRepo,
		authorizer, auditLogger, logger)
	reconHandler := recon.NewHandler(logger, reconService)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(inspector, logger)

	metrics := observability.NewMetrics()

	router := app.NewRouter(app.RouterParams{
		Logger:             logger,
		Config:             cfg,
		AuthHandler:        authHandler,
		AuthMiddleware:     auth.Middleware(authService, !cfg.IsProduction() && os.Getenv("MERIDIAN_HEADER_ACTORS") == "1"),
		UsersHandler:       usersHandler,
		AuditHandler:       auditHandler,
		MasterDataHandler:  masterdataHandler,
		ProcurementHandler: procurementHandler,
		DeliveryHandler:    deliveryHandler,
		IssueHandler:       issueHandler,
		TransferHandler:    transferHandler,
		NCRHandler:         ncrHandler,
		PeriodsHandler:     periodsHandler,
		ReconHandler:       reconHandler,
		JobsHandler:        jobsHandler,
		Metrics:            metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/boxflow-erp/boxflow-erp/internal/app"
	"github.com/boxflow-erp/boxflow-erp/internal/inventory"
	"github.com/boxflow-erp/boxflow-erp/internal/jobwork"
	"github.com/boxflow-erp/boxflow-erp/internal/masterdata/materials"
	"github.com/boxflow-erp/boxflow-erp/internal/masterdata/suppliers"
	"github.com/boxflow-erp/boxflow-erp/internal/observability"
	"github.com/boxflow-erp/boxflow-erp/internal/platform/cache"
	"github.com/boxflow-erp/boxflow-erp/internal/platform/db"
	"github.com/boxflow-erp/boxflow-erp/internal/purchasing"
	"github.com/boxflow-erp/boxflow-erp/internal/shared"
	"github.com/boxflow-erp/boxflow-erp/jobs"
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

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, advisory locks and jobs disabled", slog.Any("error", err))
	}
	defer func() {
		if redisClient != nil {
			if err := redisClient.Close(); err != nil {
				logger.Warn("redis close", slog.Any("error", err))
			}
		}
	}()

	auditLogger := shared.NewAuditLogger(pool)
	idempotencyStore := shared.NewIdempotencyStore(pool)
	metrics := observability.NewMetrics()

	var locker *shared.Locker
	var jobsClient *jobs.Client
	if redisClient != nil {
		locker = shared.NewLocker(redisClient)
		jobsClient, err = jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		if err != nil {
			logger.Warn("jobs client init", slog.Any("error", err))
		} else {
			defer func() {
				if err := jobsClient.Close(); err != nil {
					logger.Warn("jobs client close", slog.Any("error", err))
				}
			}()
		}
	}

	suppliersRepo := suppliers.NewRepository(pool)
	suppliersService := suppliers.NewService(suppliersRepo)
	suppliersHandler := suppliers.NewHandler(logger, suppliersService)

	materialsRepo := materials.NewRepository(pool)
	materialsService := materials.NewService(materialsRepo)
	materialsHandler := materials.NewHandler(logger, materialsService)

	var alertPort inventory.AlertPort
	var integrationPort purchasing.IntegrationPort
	if jobsClient != nil {
		alertPort = jobsClient
		integrationPort = jobsClient
	}

	inventoryRepo := inventory.NewRepository(pool)
	inventoryService := inventory.NewService(inventoryRepo, auditLogger, idempotencyStore, alertPort, logger, inventory.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
	})
	inventoryHandler := inventory.NewHandler(logger, inventoryService)

	purchasingRepo := purchasing.NewRepository(pool)
	purchasingService := purchasing.NewService(purchasingRepo, auditLogger, lockerOrNil(locker), integrationPort, metrics, logger, purchasing.ServiceConfig{
		DeliveryLockTTL: cfg.DeliveryLockTTL,
	})
	purchasingHandler := purchasing.NewHandler(logger, purchasingService)

	jobworkRepo := jobwork.NewRepository(pool)
	jobworkService := jobwork.NewService(jobworkRepo, auditLogger, lockerOrNil(locker), logger, jobwork.ServiceConfig{
		AllowNegativeStock: cfg.AllowNegativeStock,
		LockTTL:            cfg.DeliveryLockTTL,
	})
	jobworkHandler := jobwork.NewHandler(logger, jobworkService)

	var jobsHandler *jobs.Handler
	if redisClient != nil {
		inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := inspector.Close(); err != nil {
				logger.Warn("inspector close", slog.Any("error", err))
			}
		}()
		jobsHandler = jobs.NewHandler(inspector, logger)
	}

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		SuppliersHandler:  suppliersHandler,
		MaterialsHandler:  materialsHandler,
		PurchasingHandler: purchasingHandler,
		InventoryHandler:  inventoryHandler,
		JobworkHandler:    jobworkHandler,
		JobsHandler:       jobsHandler,
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server exit", slog.Any("error", err))
		os.Exit(1)
	}
}

// lockerOrNil keeps a typed-nil *shared.Locker out of the interface fields.
func lockerOrNil(l *shared.Locker) purchasing.LockerPort {
	if l == nil {
		return nil
	}
	return l
}

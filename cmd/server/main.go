package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/gokselkaptan/takas-app-sub005/internal/config"
	"github.com/gokselkaptan/takas-app-sub005/internal/db"
	"github.com/gokselkaptan/takas-app-sub005/internal/goroutine"
	httpHandlers "github.com/gokselkaptan/takas-app-sub005/internal/http/handlers"
	httpRouter "github.com/gokselkaptan/takas-app-sub005/internal/http/router"
	"github.com/gokselkaptan/takas-app-sub005/internal/logger"
	"github.com/gokselkaptan/takas-app-sub005/internal/repository"
	"github.com/gokselkaptan/takas-app-sub005/internal/service"
	"github.com/gokselkaptan/takas-app-sub005/internal/ws"
)

const accessTokenTTL = 24 * time.Hour

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: load config: %v", err)
	}

	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: connect to database: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: run migrations: %v", err)
	}

	// Redis is optional: pricing degrades to recomputing the snapshot.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("main: parse redis url: %v", err)
		}
		rdb = redis.NewClient(opts)
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Log.WithError(err).Warn("main: redis unavailable, pricing cache disabled")
		}
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, accessTokenTTL)

	// Repositories.
	userRepo := repository.NewUserRepository(dbConn)
	productRepo := repository.NewProductRepository(dbConn)
	swapRepo := repository.NewSwapRepository(dbConn)
	negotiationRepo := repository.NewNegotiationRepository(dbConn)
	escrowRepo := repository.NewEscrowRepository(dbConn)
	multiSwapRepo := repository.NewMultiSwapRepository(dbConn)
	notificationRepo := repository.NewNotificationRepository(dbConn)

	// Services.
	trustModel := service.NewTrustRiskModel(cfg.Swap.AutoCompleteCeiling)
	pricingEngine := service.NewValorPricingEngine(cfg.Pricing)
	demandService := service.NewDemandService(productRepo, rdb, cfg.Pricing)
	poolID, err := uuid.Parse(cfg.Swap.CommunityPoolUserID)
	if err != nil {
		log.Fatalf("main: invalid community pool user id: %v", err)
	}
	escrowService := service.NewEscrowService(escrowRepo, cfg.Swap.PlatformFeePercent, poolID)
	notificationService := service.NewNotificationService(notificationRepo)
	swapService := service.NewSwapService(swapRepo, userRepo, productRepo, escrowService, trustModel, cfg.Swap)
	negotiationService := service.NewNegotiationService(swapRepo, negotiationRepo, swapService, cfg.Swap)
	multiSwapService := service.NewMultiSwapService(multiSwapRepo, productRepo, swapService, cfg.Matcher, cfg.Swap)

	// Websockets.
	hub := ws.NewHub(ctx)
	hub.SetNotificationSaver(notificationService)
	go hub.Run()
	swapService.SetHub(hub)

	// Background deadline sweep.
	goroutine.SafeGoWithContext(ctx, func(ctx context.Context) {
		runSweepLoop(ctx, swapService, multiSwapService, cfg.Swap.SweepInterval)
	})

	// HTTP handlers.
	swapHandler := httpHandlers.NewSwapHandler(swapService)
	negotiationHandler := httpHandlers.NewNegotiationHandler(negotiationService)
	escrowHandler := httpHandlers.NewEscrowHandler(escrowService)
	pricingHandler := httpHandlers.NewPricingHandler(pricingEngine, demandService)
	trustHandler := httpHandlers.NewTrustHandler(trustModel, userRepo)
	multiSwapHandler := httpHandlers.NewMultiSwapHandler(multiSwapService)
	notificationHandler := httpHandlers.NewNotificationHandler(notificationService)
	adminHandler := httpHandlers.NewAdminHandler(swapService, multiSwapService, demandService)
	wsHandler := httpHandlers.NewWSHandler(hub, tokenManager)
	healthHandler := httpHandlers.NewHealthHandler(dbConn, rdb)

	engine := httpRouter.SetupRouter(cfg, swapHandler, negotiationHandler, escrowHandler, pricingHandler, trustHandler,
		multiSwapHandler, notificationHandler, adminHandler, wsHandler, healthHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: shutdown http server: %v", err)
		}
	}()

	log.Printf("main: HTTP server listening on port %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: server stopped with error: %v", err)
	}
}

// runSweepLoop applies the deadline-driven auto-transitions on a fixed
// interval until the context closes.
func runSweepLoop(ctx context.Context, swaps *service.SwapService, chains *service.MultiSwapService, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if _, err := swaps.SweepExpired(ctx, now); err != nil {
				logger.Log.WithError(err).Error("main: swap sweep failed")
			}
			if _, err := chains.SweepExpiredChains(ctx, now); err != nil {
				logger.Log.WithError(err).Error("main: chain sweep failed")
			}
		}
	}
}

func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: close database: %v", err)
	}
}

package router

import (
	"github.com/gin-gonic/gin"

	"github.com/gokselkaptan/takas-app-sub005/internal/config"
	"github.com/gokselkaptan/takas-app-sub005/internal/http/handlers"
	"github.com/gokselkaptan/takas-app-sub005/internal/http/middleware"
	"github.com/gokselkaptan/takas-app-sub005/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	swapHandler *handlers.SwapHandler,
	negotiationHandler *handlers.NegotiationHandler,
	escrowHandler *handlers.EscrowHandler,
	pricingHandler *handlers.PricingHandler,
	trustHandler *handlers.TrustHandler,
	multiSwapHandler *handlers.MultiSwapHandler,
	notificationHandler *handlers.NotificationHandler,
	adminHandler *handlers.AdminHandler,
	wsHandler *handlers.WSHandler,
	healthHandler *handlers.HealthHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))

	api.GET("/ws", wsHandler.Handle)

	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.POST("/swaps", swapHandler.Create)
		protected.GET("/swaps", swapHandler.List)
		protected.GET("/swaps/:id", middleware.UUIDValidator("id"), swapHandler.Get)
		protected.POST("/swaps/:id/events", middleware.UUIDValidator("id"), swapHandler.Transition)

		protected.POST("/swaps/:id/negotiation", middleware.UUIDValidator("id"), negotiationHandler.Act)
		protected.GET("/swaps/:id/negotiation", middleware.UUIDValidator("id"), negotiationHandler.History)
		protected.GET("/swaps/:id/escrow", middleware.UUIDValidator("id"), escrowHandler.SwapEntries)

		protected.GET("/escrow/balance", escrowHandler.Balance)
		protected.GET("/escrow/entries", escrowHandler.Entries)
		protected.POST("/escrow/deposit", escrowHandler.Deposit)

		protected.POST("/pricing/quote", pricingHandler.Quote)
		protected.GET("/pricing/snapshot", pricingHandler.Snapshot)
		protected.GET("/trust/profile", trustHandler.Profile)

		protected.GET("/multiswaps/candidates", multiSwapHandler.Candidates)
		protected.POST("/multiswaps", multiSwapHandler.Propose)
		protected.GET("/multiswaps/:id", middleware.UUIDValidator("id"), multiSwapHandler.Get)
		protected.POST("/multiswaps/:id/confirm", middleware.UUIDValidator("id"), multiSwapHandler.Confirm)

		protected.GET("/notifications", notificationHandler.List)
		protected.POST("/notifications/read", notificationHandler.MarkAllRead)
		protected.GET("/notifications/unread-count", notificationHandler.UnreadCount)
	}

	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.RequireAdmin())
	{
		admin.POST("/sweep", adminHandler.Sweep)
		admin.POST("/pricing/invalidate", adminHandler.InvalidatePricing)
		admin.POST("/swaps/:id/resolve", middleware.UUIDValidator("id"), swapHandler.Resolve)
	}

	return r
}

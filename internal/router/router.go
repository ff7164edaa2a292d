// internal/router/router.go
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/javajoker/paylink-backend/internal/config"
	"github.com/javajoker/paylink-backend/internal/handlers"
	"github.com/javajoker/paylink-backend/internal/middleware"
	"github.com/javajoker/paylink-backend/internal/services"
)

// Services is everything the HTTP layer needs, built once in main.
type Services struct {
	Purchases   *services.PurchaseService
	Ledger      *services.LedgerService
	Commissions *services.CommissionService
	Registry    services.ContentRegistry
}

func Initialize(db *gorm.DB, cfg *config.Config, svc Services) *gin.Engine {
	// Initialize handlers
	purchaseHandler := handlers.NewPurchaseHandler(svc.Purchases, cfg.Server.PublicURL)
	transactionHandler := handlers.NewTransactionHandler(svc.Ledger)
	affiliateHandler := handlers.NewAffiliateHandler(svc.Commissions, svc.Registry)
	adminHandler := handlers.NewAdminHandler(svc.Purchases)

	// Initialize Gin router
	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.I18nMiddleware())
	r.Use(middleware.GeneralRateLimit())
	r.Use(middleware.AuditLogMiddleware(db))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "up"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status = http.StatusServiceUnavailable
			dbStatus = "down"
		}

		c.JSON(status, gin.H{
			"status":   http.StatusText(status),
			"database": dbStatus,
			"version":  "1.0.0",
		})
	})

	// API v1 routes
	v1 := r.Group("/v1")
	{
		// Purchases
		listings := v1.Group("/listings")
		listings.Use(middleware.AuthRequired(), middleware.PurchaseRateLimit())
		{
			listings.POST("/:id/purchase", purchaseHandler.PurchaseListing)
		}

		sharedLinks := v1.Group("/shared-links")
		sharedLinks.Use(middleware.AuthRequired(), middleware.PurchaseRateLimit())
		{
			sharedLinks.POST("/:linkId/purchase", purchaseHandler.PurchaseSharedLink)
		}

		// Transaction history
		transactions := v1.Group("/transactions")
		transactions.Use(middleware.AuthRequired())
		{
			transactions.GET("", transactionHandler.ListTransactions)
			transactions.GET("/:id", transactionHandler.GetTransaction)
		}

		// Affiliates
		affiliates := v1.Group("/affiliates")
		{
			affiliates.GET("/code/:code", affiliateHandler.LookupCode)
			affiliates.POST("", middleware.AuthRequired(), affiliateHandler.CreateAffiliate)
			affiliates.GET("/commissions", middleware.AuthRequired(), affiliateHandler.ListCommissions)
		}

		// Admin
		admin := v1.Group("/admin")
		admin.Use(middleware.AuthRequired(), middleware.AdminRequired())
		{
			admin.POST("/transactions/:id/refund", adminHandler.ProcessRefund)
		}
	}

	return r
}

package routes

import (
	"gatilho_backend/config"
	"gatilho_backend/controllers"
	"gatilho_backend/middleware"
	"gatilho_backend/services"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes sets up all API routes
func SetupRoutes(
	router *gin.Engine,
	db *gorm.DB,
	cfg *config.Config,
	market *services.MarketDataService,
	checker *services.AlertChecker,
	stream *services.AlertStreamService,
	cache *services.QuoteCache,
	archive *services.MongoArchive,
) {
	// Initialize controllers
	authController := controllers.NewAuthController(db, cfg)
	alertController := controllers.NewAlertController(db)
	analyticsController := controllers.NewAnalyticsController(db)
	monitoringController := controllers.NewMonitoringController(db, market, checker, stream, cache, archive)
	streamController := controllers.NewStreamController(stream, cfg)

	api := router.Group("/api")
	{
		// Authentication
		auth := api.Group("/auth")
		{
			auth.POST("/signup", authController.Signup)
			auth.POST("/login", authController.Login)
		}

		// Alert management (authenticated)
		alerts := api.Group("/alerts")
		alerts.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
		{
			alerts.POST("", alertController.CreateAlert)
			alerts.GET("", alertController.ListAlerts)
			alerts.DELETE("/:id", alertController.DeleteAlert)
		}

		// Analytics (authenticated)
		analytics := api.Group("/analytics")
		analytics.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret))
		{
			analytics.GET("/dashboard", analyticsController.Dashboard)
			analytics.GET("/chart", analyticsController.Chart)
		}

		// Suggestions (public, aggregate data only)
		suggestions := api.Group("/suggestions")
		{
			suggestions.GET("/tickers", analyticsController.PopularTickers)
			suggestions.GET("/values", analyticsController.SuggestedValues)
		}

		// Monitoring and diagnostics
		monitoring := api.Group("/monitoring")
		{
			monitoring.GET("/status", monitoringController.Status)
			monitoring.GET("/quote/:ticker", monitoringController.TestQuote)
			monitoring.GET("/triggers", monitoringController.RecentTriggers)
			monitoring.POST("/check/:ticker", monitoringController.CheckTicker)
		}
	}

	// Live alert stream
	router.GET("/ws", streamController.Connect)

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "Gatilho API",
		})
	})
}

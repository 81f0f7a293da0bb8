package app

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"dispatch/internal/handler"
	"dispatch/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RequestHandler  *handler.RequestHandler
	ProviderHandler *handler.ProviderHandler
	WSHandler       *handler.WSHandler
	RedisClient     *redis.Client
	NewRelicApp     *newrelic.Application
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	// Add New Relic middleware if enabled.
	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.Use(middleware.IdempotencyMiddleware(deps.RedisClient))

	// Health check and metrics.
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 routes.
	v1 := router.Group("/v1")
	{
		// Service request routes.
		requests := v1.Group("/requests")
		{
			requests.POST("", deps.RequestHandler.CreateRequest)
			requests.GET("", deps.RequestHandler.GetAll)
			requests.GET("/:id", deps.RequestHandler.GetRequest)
			requests.POST("/:id/accept", deps.RequestHandler.AcceptOffer)
			requests.POST("/:id/decline", deps.RequestHandler.DeclineOffer)
			requests.POST("/:id/advance", deps.RequestHandler.ForceAdvance)
			requests.POST("/:id/cancel", deps.RequestHandler.Cancel)
			requests.POST("/:id/reject", deps.RequestHandler.Reject)
			requests.POST("/:id/start", deps.RequestHandler.Start)
			requests.POST("/:id/complete", deps.RequestHandler.Complete)
		}

		// Provider routes.
		providers := v1.Group("/providers")
		{
			providers.POST("/register", deps.ProviderHandler.Register)
			providers.GET("", deps.ProviderHandler.GetAll)
			providers.GET("/:id", deps.ProviderHandler.GetProvider)
			providers.POST("/:id/location", deps.ProviderHandler.UpdateLocation)
			providers.POST("/:id/availability", deps.ProviderHandler.SetAvailability)
		}

		// Notification websocket.
		v1.GET("/notifications/:id/ws", deps.WSHandler.Connect)
	}

	return router
}

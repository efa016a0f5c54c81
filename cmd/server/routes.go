package main

import (
	"github.com/gin-gonic/gin"

	"github.com/animastudio/aihub/internal/middleware"
	"github.com/animastudio/aihub/pkg/logger"
)

// registerRoutes sets up all HTTP routes on the given Gin engine.
func registerRoutes(r *gin.Engine, svc *appServices) {
	// Middleware
	r.Use(logger.GinLogger(), logger.GinRecovery())
	r.RedirectTrailingSlash = false
	r.RedirectFixedPath = false
	r.Use(middleware.CORS())

	// Rate limiter for generation routes
	generateLimiter := middleware.NewRateLimiter(10, 20)

	// Health check
	r.GET("/health", svc.healthHandler.Check)

	// API routes
	api := r.Group("/api")
	{
		// Generation (rate limited)
		gen := api.Group("", generateLimiter.Middleware())
		{
			gen.POST("/generate", svc.generateHandler.Generate)
			gen.POST("/generate/async", svc.generateHandler.GenerateAsync)
		}

		// Backends
		api.GET("/backends", svc.backendHandler.List)

		// Usage
		api.GET("/usage/summary", svc.usageHandler.Summary)
		api.GET("/usage/trend", svc.usageHandler.Trend)
		api.POST("/usage/export", svc.usageHandler.Export)
		api.DELETE("/usage", svc.usageHandler.Reset)

		// Cache
		api.GET("/cache/stats", svc.cacheHandler.Stats)
		api.DELETE("/cache", svc.cacheHandler.Clear)

		// Config
		api.GET("/config", svc.configHandler.Get)
		api.PUT("/config", svc.configHandler.Update)
	}
}

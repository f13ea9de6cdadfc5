package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/osiDTDr/ai-contract-review/internal/http/handler"
	"github.com/osiDTDr/ai-contract-review/internal/http/middleware"
)

type RouterConfig struct {
	MaxUploadBytes int64
	// Gatherer serves /metrics; nil leaves the endpoint out.
	Gatherer prometheus.Gatherer
}

type Handlers struct {
	Reviews *handler.ReviewHandler
	Events  *handler.EventsHandler
	Health  *handler.HealthHandler
}

func SetupRoutes(router *gin.Engine, h Handlers, cfg RouterConfig) {
	router.GET("/health", h.Health.Health)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	// multipart overhead on top of the file itself
	limit := middleware.BodyLimit(cfg.MaxUploadBytes + 2<<20)
	if cfg.MaxUploadBytes <= 0 {
		limit = middleware.BodyLimit(0)
	}
	router.POST("/analyze", limit, h.Reviews.Analyze)

	v1 := router.Group("/api/v1")
	{
		ReviewRouter(v1.Group("/reviews"), h, limit)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})
}

func ReviewRouter(rg *gin.RouterGroup, h Handlers, limit gin.HandlerFunc) {
	rg.POST("", limit, h.Reviews.Analyze)
	rg.GET("", h.Reviews.List)
	rg.GET("/:id", h.Reviews.Get)
	rg.GET("/:id/events", h.Events.Stream)
}

package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"tierscale/app/handler"
	"tierscale/app/middleware"
)

// Router Router
type Router struct {
	hookHandler       *handler.HookHandler
	autoscalerHandler *handler.AutoScalerHandler
	metricsHandler    http.Handler
	apiKey            string
}

// NewRouter creates a new Router. A nil metricsHandler disables /metrics.
func NewRouter(hookHandler *handler.HookHandler, autoscalerHandler *handler.AutoScalerHandler, metricsHandler http.Handler, apiKey string) *Router {
	return &Router{
		hookHandler:       hookHandler,
		autoscalerHandler: autoscalerHandler,
		metricsHandler:    metricsHandler,
		apiKey:            apiKey,
	}
}

// Setup sets up routes
func (r *Router) Setup(engine *gin.Engine) {
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestID())
	engine.Use(middleware.Logger())

	// Job lifecycle hooks, called by the queue backend
	hooks := engine.Group("/v1/hooks/:queue")
	hooks.Use(middleware.AuthMiddleware(r.apiKey))
	{
		hooks.POST("/enqueued", r.hookHandler.Enqueued)
		hooks.POST("/finished", r.hookHandler.Finished)
	}

	api := engine.Group("/api/v1")
	api.Use(middleware.AuthMiddleware(r.apiKey))
	{
		autoscaler := api.Group("/autoscaler")
		{
			autoscaler.GET("/status", r.autoscalerHandler.GetStatus)
			autoscaler.GET("/queues/:queue", r.autoscalerHandler.GetQueueStatus)
			autoscaler.GET("/recent-events", r.autoscalerHandler.GetRecentEvents)
			autoscaler.POST("/trigger", r.autoscalerHandler.TriggerReconcile)
		}
	}

	// Prometheus scrape endpoint
	if r.metricsHandler != nil {
		engine.GET("/metrics", gin.WrapH(r.metricsHandler))
	}

	// Health check
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

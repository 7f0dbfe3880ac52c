package http

import (
	"meetsignal/internal/infrastructure/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	// Gatherer backs /metrics; nil leaves the endpoint out.
	Gatherer        prometheus.Gatherer
	TracingEnabled  bool
	// AuthMode is recorded on request spans.
	AuthMode        string
	HTTPRateLimiter gin.HandlerFunc
}

// NewRouter wires the HTTP surface: the websocket upgrade route, health, metrics and the
// read-only API. wsHandlers are the middleware chain ending in the gateway handler.
func NewRouter(
	cfg RouterConfig,
	meetings *MeetingHandler,
	health *HealthHandler,
	logger *zap.SugaredLogger,
	wsHandlers ...gin.HandlerFunc,
) *gin.Engine {
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(logger))
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware(cfg.AuthMode))
	}
	router.Use(middleware.ErrorHandlerMiddleware(logger))

	health.SetupRoutes(router)
	if cfg.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	var limited []gin.HandlerFunc
	if cfg.HTTPRateLimiter != nil {
		limited = append(limited, cfg.HTTPRateLimiter)
	}
	if len(wsHandlers) > 0 {
		router.GET("/ws", append(limited, wsHandlers...)...)
	}
	meetings.SetupRoutes(router, limited...)

	return router
}

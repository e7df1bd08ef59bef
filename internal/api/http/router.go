package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ferrous-os/ferrous/internal/api/middleware"
	"github.com/ferrous-os/ferrous/internal/infrastructure/config"
	"github.com/ferrous-os/ferrous/internal/infrastructure/monitoring"
)

// NewRouter assembles the monitor API.
func NewRouter(h *Handlers, metrics *monitoring.Metrics, cfg *config.Config) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if metrics != nil {
		r.Use(monitoring.Middleware(metrics))
	}
	if cfg.RateLimit.Enabled {
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	r.GET("/health", h.Health)
	r.GET("/stats", h.Stats)
	r.GET("/processes", h.Processes)
	r.GET("/processes/:pid/capabilities", h.ProcessCapabilities)
	r.GET("/endpoints", h.Endpoints)
	r.GET("/events", h.EventsTail)
	r.GET("/events/export", h.EventsExport)
	r.GET("/events/stream", h.EventStream)
	r.POST("/sweep", h.Sweep)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

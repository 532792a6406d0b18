package httpapi

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/algoease/backend/internal/core/domain"
	"github.com/algoease/backend/internal/metrics"
)

// RouterConfig holds HTTP surface settings.
type RouterConfig struct {
	CORSOrigins []string
}

// NewRouter builds the gin engine with all routes registered.
func NewRouter(h *Handler, cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(), measureRequests())

	corsCfg := cors.DefaultConfig()
	if len(cfg.CORSOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	corsCfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsCfg.AllowHeaders = []string{"Origin", "Content-Type"}
	corsCfg.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsCfg))

	api := r.Group("/api")
	{
		api.POST("/bounties", h.createBounty)
		api.GET("/bounties", h.listBounties)
		api.GET("/bounties/:id", h.getBounty)
		api.POST("/bounties/:id/accept", h.acceptBounty)
		api.POST("/bounties/:id/submit", h.transition(domain.StatusSubmitted))
		api.POST("/bounties/:id/approve", h.transition(domain.StatusApproved))
		api.POST("/bounties/:id/reject", h.transition(domain.StatusRejected))
		api.POST("/bounties/:id/claim", h.transition(domain.StatusClaimed))
		api.POST("/bounties/:id/reconcile", h.reconcileBounty)
	}

	r.GET("/healthz", h.healthz)
	r.GET("/healthz/detailed", h.healthzDetailed)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		// Probes and scrapes would drown the log.
		if c.FullPath() == "/healthz" || c.FullPath() == "/metrics" {
			return
		}
		slog.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

func measureRequests() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		metrics.HTTPRequestsTotal.WithLabelValues(
			route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route, c.Request.Method).
			Observe(time.Since(start).Seconds())
	}
}

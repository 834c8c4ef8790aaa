package router

import (
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/MGDev761/layrbase-sync/internal/handler/health"
	"github.com/MGDev761/layrbase-sync/internal/handler/notification"
	"github.com/MGDev761/layrbase-sync/internal/middleware"
)

type Config struct {
	RateLimit  rate.Limit
	RateBurst  int
	CORSConfig middleware.CORSConfig
}

type Router struct {
	engine        *gin.Engine
	notificationH *notification.Handler
	healthH       *health.Handler
	config        Config
}

func NewRouter(notificationH *notification.Handler, healthH *health.Handler, config Config) *Router {
	gin.SetMode(gin.ReleaseMode)

	return &Router{
		engine:        gin.New(),
		notificationH: notificationH,
		healthH:       healthH,
		config:        config,
	}
}

func (r *Router) Setup() {
	r.engine.Use(middleware.RequestID())
	r.engine.Use(middleware.Recovery())
	r.engine.Use(middleware.Logger())
	r.engine.Use(middleware.CORS(r.config.CORSConfig))

	r.engine.GET("/healthz", r.healthH.LivenessCheck)
	r.engine.GET("/readyz", r.healthH.ReadinessCheck)
	r.engine.GET("/metrics", r.healthH.MetricsHandler)

	api := r.engine.Group("/api/v1")
	if r.config.RateLimit > 0 {
		limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
			Rate:  r.config.RateLimit,
			Burst: r.config.RateBurst,
		})
		api.Use(limiter.RateLimit())
	}
	api.Use(middleware.Identity())

	r.notificationH.RegisterRoutes(api)
}

func (r *Router) Engine() *gin.Engine {
	return r.engine
}

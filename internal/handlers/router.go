package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// RouterConfig carries everything the HTTP layer needs
type RouterConfig struct {
	Ads            *AdsHandler
	Admin          *AdminHandler
	CreateLimiter  gin.HandlerFunc
	AllowOrigins   []string
	RequestTimeout time.Duration
	LogRequests    bool
	Ping           func(ctx context.Context) error
}

// NewRouter builds the gin engine with every route registered
func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.LogRequests {
		r.Use(gin.Logger())
	}

	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", HeaderUserID, HeaderOwnerType, HeaderIdempotencyKey},
		ExposeHeaders: []string{HeaderReplayed},
	}
	if len(cfg.AllowOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))
	r.Use(RequestTimeout(cfg.RequestTimeout))

	r.GET("/health", func(c *gin.Context) {
		status, code := "ok", http.StatusOK
		if cfg.Ping != nil {
			if err := cfg.Ping(c.Request.Context()); err != nil {
				status, code = "degraded", http.StatusServiceUnavailable
			}
		}
		c.JSON(code, gin.H{
			"status": status,
			"time":   time.Now(),
		})
	})

	api := r.Group("/api")
	{
		create := []gin.HandlerFunc{cfg.Ads.Create}
		if cfg.CreateLimiter != nil {
			create = append([]gin.HandlerFunc{cfg.CreateLimiter}, create...)
		}
		api.POST("/ads", create...)
		api.GET("/ads", cfg.Ads.List)
		api.GET("/ads/:id", cfg.Ads.Get)
	}

	if cfg.Admin != nil {
		admin := r.Group("/api/admin")
		{
			admin.GET("/outbox/stats", cfg.Admin.GetOutboxStats)
			admin.POST("/cleanup/run", cfg.Admin.RunCleanup)
			admin.POST("/ads/:id/invalidate-cache", cfg.Admin.InvalidateAdCache)
			admin.GET("/ratelimit/stats", cfg.Admin.GetRateLimitStats)
		}
	}

	return r
}

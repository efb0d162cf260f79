package api

import (
	"time"

	"GlassRain/backend/go/internal/platform_service/store"
	"GlassRain/backend/go/pkg/cache"
	"GlassRain/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
)

// RouterConfig 汇总了路由需要的中间件参数。
type RouterConfig struct {
	JwtSecret        string
	RateLimitEnabled bool
	RateLimit        int
	RateWindow       time.Duration
	TrustProxy       bool
	CacheTTL         time.Duration
	GlobalLimit      int           // 进程级总限流, 0 表示关闭
	GlobalWindow     time.Duration // 进程级限流窗口
}

// SetupRouter 配置和返回一个 Gin 引擎实例。
func SetupRouter(h *Handler, limiter *ratelimiter.ClientLimiter, cacheStore *cache.Store, st *store.Store, cfg RouterConfig) *gin.Engine {
	// 使用默认中间件 (logger, recovery) 创建一个 Gin 引擎。
	r := gin.Default()
	r.Use(RequestIDMiddleware())

	// 进程级限流在所有路由之前，保护服务整体不被打垮。
	if cfg.GlobalLimit > 0 {
		window := cfg.GlobalWindow
		if window <= 0 {
			window = time.Second
		}
		r.Use(GlobalRateLimitMiddleware(ratelimiter.NewSlidingWindowLog(cfg.GlobalLimit, window)))
	}

	r.GET("/health", h.Health)

	api := r.Group("/api")
	api.Use(AuthMiddleware(cfg.JwtSecret))

	// 业务路由计入限流配额；管理端点 (缓存、限流状态) 不计入。
	metered := api.Group("")
	if cfg.RateLimitEnabled {
		metered.Use(RateLimitMiddleware(limiter, st, cfg.RateLimit, cfg.RateWindow, cfg.TrustProxy))
	}
	{
		// 任务路由组
		tasksGroup := metered.Group("/tasks")
		{
			tasksGroup.GET("", h.ListTasks)
			tasksGroup.GET("/history", h.ListTaskHistory)
			tasksGroup.GET("/:id", h.GetTask)
			tasksGroup.POST("/:id/cancel", h.CancelTask)
		}

		// 分析任务路由组
		analysis := metered.Group("/analysis")
		{
			analysis.POST("/property", h.SubmitPropertyAnalysis)
			analysis.POST("/seasonal", h.SubmitSeasonalCheck)
		}

		// 服务目录，GET 响应走缓存
		metered.GET("/services", CacheMiddleware(cacheStore, "services", cfg.CacheTTL), h.ListServices)

		// 缓存管理
		cacheGroup := api.Group("/cache")
		{
			cacheGroup.GET("/stats", h.CacheStats)
			cacheGroup.POST("/clear", h.ClearCache)
		}

		api.GET("/rate-limit-status", h.RateLimitStatus)
	}

	return r
}

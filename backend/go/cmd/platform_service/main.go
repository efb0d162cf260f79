package main

import (
	"GlassRain/backend/go/internal/config"
	"GlassRain/backend/go/internal/database/mysql"
	"GlassRain/backend/go/internal/database/redis"
	"GlassRain/backend/go/internal/models"
	"GlassRain/backend/go/internal/platform_service/api"
	"GlassRain/backend/go/internal/platform_service/service"
	"GlassRain/backend/go/internal/platform_service/store"
	"GlassRain/backend/go/pkg/cache"
	"GlassRain/backend/go/pkg/circuitbreaker"
	"GlassRain/backend/go/pkg/logger"
	"GlassRain/backend/go/pkg/ratelimiter"
	"GlassRain/backend/go/pkg/tasks"
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// duration 解析配置中的时长字符串，解析失败时使用默认值。
func duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return d
}

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("backend/go/internal/config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	appLogger := logger.New("platform_service", "", "")
	appLogger.Info("Logger initialized")

	// MySQL 是可选依赖: 未配置时任务历史镜像和房产数据退化为无操作。
	var db *gorm.DB
	if cfg.Databases.MySQL.Address != "" {
		db, err = mysql.GetDB(&cfg.Databases.MySQL)
		if err != nil {
			appLogger.WithErr(err).Warn("MySQL unavailable, running without persistence")
			db = nil
		} else {
			if err := db.AutoMigrate(&models.TaskHistory{}, &models.Address{}, &models.PropertyInsight{}, &models.ServiceOffering{}); err != nil {
				appLogger.WithErr(err).Fatal("Database migration failed")
			}
			appLogger.Info("Database migration completed")
		}
	}

	// Redis 同样可选: 未配置时限流统计不落盘。
	var rdb *goredis.Client
	if cfg.Databases.Redis.Address != "" {
		rdb, err = redis.GetClient(&cfg.Databases.Redis)
		if err != nil {
			appLogger.WithErr(err).Warn("Redis unavailable, rate-limit stats disabled")
			rdb = nil
		}
	}

	// Initialize dependencies (Store -> Service -> Handler)
	breaker := circuitbreaker.New(cfg.CircuitBreaker.FailureThreshold, duration(cfg.CircuitBreaker.Cooldown, 30*time.Second))
	platformStore := store.NewStore(db, rdb, breaker, appLogger)

	executor := tasks.New(appLogger,
		tasks.WithWorkers(cfg.Tasks.Workers),
		tasks.WithQueueSize(cfg.Tasks.QueueSize),
		tasks.WithRecorder(platformStore),
	)
	executor.Start()

	cacheStore := cache.NewStore()
	limiter := ratelimiter.NewClientLimiter(duration(cfg.RateLimiter.Retention, ratelimiter.DefaultRetention))

	// 后台清扫协程
	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	cacheStore.StartJanitor(janitorCtx, duration(cfg.Cache.SweepInterval, time.Minute))
	limiter.StartJanitor(janitorCtx, duration(cfg.RateLimiter.SweepInterval, time.Minute))
	executor.StartJanitor(janitorCtx, duration(cfg.Tasks.SweepInterval, time.Hour), duration(cfg.Tasks.Retention, 24*time.Hour))

	platformService := service.NewService(platformStore, executor, duration(cfg.Tasks.DefaultTimeout, 5*time.Minute))
	apiHandler := api.NewHandler(platformService, cacheStore, limiter)
	appLogger.Info("Dependencies injected")

	// Setup HTTP server
	router := api.SetupRouter(apiHandler, limiter, cacheStore, platformStore, api.RouterConfig{
		JwtSecret:        cfg.Auth.JwtSecret,
		RateLimitEnabled: cfg.RateLimiter.Enabled,
		RateLimit:        cfg.RateLimiter.Limit,
		RateWindow:       duration(cfg.RateLimiter.Window, time.Minute),
		TrustProxy:       cfg.RateLimiter.TrustProxy,
		CacheTTL:         duration(cfg.Cache.DefaultTTL, 5*time.Minute),
		GlobalLimit:      cfg.RateLimiter.GlobalLimit,
		GlobalWindow:     duration(cfg.RateLimiter.GlobalWindow, time.Second),
	})

	srv := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: router,
	}

	// Start server
	go func() {
		appLogger.Info("Starting HTTP server on " + srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithErr(err).Fatal("HTTP server failed to start")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), duration(cfg.Server.ShutdownTimeout, 10*time.Second))
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithErr(err).Error("Server forced to shutdown")
	}

	janitorCancel()
	if err := executor.Shutdown(shutdownCtx); err != nil {
		appLogger.WithErr(err).Error("Task executor did not drain in time")
	}
	if rdb != nil {
		if err := redis.Close(); err != nil {
			appLogger.WithErr(err).Error("Error closing Redis connection")
		}
	}
	if db != nil {
		if err := mysql.Close(); err != nil {
			appLogger.WithErr(err).Error("Error closing MySQL connection")
		}
	}

	appLogger.Info("Server gracefully stopped")
}

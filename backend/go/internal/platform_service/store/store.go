package store

import (
	"GlassRain/backend/go/pkg/circuitbreaker"
	"GlassRain/backend/go/pkg/logger"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Store 封装了平台服务的所有数据访问操作。
// DB 和 Redis 都允许为 nil: 未配置对应后端时，相关方法退化为无操作，
// 让服务在没有数据库的环境下仍然可以启动。
type Store struct {
	DB      *gorm.DB
	Redis   *redis.Client
	breaker *circuitbreaker.Breaker
	log     *logger.Logger
}

// NewStore 创建一个新的 Store 实例。breaker 为 nil 时使用默认配置。
func NewStore(db *gorm.DB, rdb *redis.Client, breaker *circuitbreaker.Breaker, log *logger.Logger) *Store {
	if breaker == nil {
		breaker = circuitbreaker.New(0, 0)
	}
	if log == nil {
		log = logger.New("platform_store", "", "")
	}
	return &Store{DB: db, Redis: rdb, breaker: breaker, log: log}
}

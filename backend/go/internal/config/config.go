package config

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
)

// RedisConfig 定义了 Redis 数据库的连接配置。
type RedisConfig struct {
	Address  string `yaml:"address"`  // Redis 服务器地址 (例如: "localhost:6379")
	Password string `yaml:"password"` // Redis 密码
	DB       int    `yaml:"db"`       // Redis 数据库编号
}

// MySQLConfig 定义了 MySQL 数据库的连接配置。
type MySQLConfig struct {
	Address         string `yaml:"address"`         // MySQL 服务器地址
	Username        string `yaml:"username"`        // 用户名
	Password        string `yaml:"password"`        // 密码
	Database        string `yaml:"database"`        // 数据库名称
	MaxOpenConns    int    `yaml:"maxOpenConns"`    // 最大打开连接数
	MaxIdleConns    int    `yaml:"maxIdleConns"`    // 最大空闲连接数
	ConnMaxLifetime int    `yaml:"connMaxLifetime"` // 连接最大生命周期 (秒)
}

// DatabaseConfigs 包含所有数据库的配置。
type DatabaseConfigs struct {
	Redis RedisConfig `yaml:"redis"` // Redis 数据库配置
	MySQL MySQLConfig `yaml:"mysql"` // MySQL 数据库配置
}

// AppInfo 对应 'app' 部分，包含应用程序的基本信息。
type AppInfo struct {
	Name        string `yaml:"name"`        // 应用程序名称
	Version     string `yaml:"version"`     // 应用程序版本
	Environment string `yaml:"environment"` // 运行环境 (例如: "development", "production")
}

// ServerConfig 定义了 HTTP 服务的监听配置。
type ServerConfig struct {
	Address         string `yaml:"address"`         // 监听地址 (例如: ":8080")
	ShutdownTimeout string `yaml:"shutdownTimeout"` // 优雅关闭的超时时间 (例如: "10s")
}

// LoggerConfig 定义了日志记录器的配置。
type LoggerConfig struct {
	Level string `yaml:"level"` // 日志级别 (例如: "info", "debug", "warn", "error")
}

// AuthConfig 用于配置认证方法和相关设置。
type AuthConfig struct {
	JwtSecret string `yaml:"jwtSecret"` // JWT 密钥
}

// CacheConfig 定义了响应缓存的配置。
type CacheConfig struct {
	DefaultTTL    string `yaml:"defaultTTL"`    // 默认缓存过期时间 (例如: "5m")
	SweepInterval string `yaml:"sweepInterval"` // 过期条目清理间隔 (例如: "1m")
}

// RateLimiterConfig 定义了限流器的配置。
type RateLimiterConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Limit         int    `yaml:"limit"`         // 窗口内允许的最大请求数
	Window        string `yaml:"window"`        // 滑动窗口大小 (例如: "1m", "30s")
	TrustProxy    bool   `yaml:"trustProxy"`    // 是否信任 X-Forwarded-For 头
	Retention     string `yaml:"retention"`     // 空闲客户端记录的保留时间 (例如: "1h")
	SweepInterval string `yaml:"sweepInterval"` // 空闲客户端清理间隔 (例如: "60s")
	GlobalLimit   int    `yaml:"globalLimit"`   // 进程级总限流, 0 表示关闭
	GlobalWindow  string `yaml:"globalWindow"`  // 进程级限流窗口 (例如: "1s")
}

// TasksConfig 定义了后台任务执行器的配置。
type TasksConfig struct {
	Workers        int    `yaml:"workers"`        // 工作协程数量
	QueueSize      int    `yaml:"queueSize"`      // 任务队列容量
	DefaultTimeout string `yaml:"defaultTimeout"` // 单个任务的默认超时时间 (例如: "5m")
	Retention      string `yaml:"retention"`      // 已完成任务的保留时间 (例如: "24h")
	SweepInterval  string `yaml:"sweepInterval"`  // 已完成任务清理间隔 (例如: "1h")
}

// CircuitBreakerConfig 定义了熔断器的配置。
type CircuitBreakerConfig struct {
	FailureThreshold int    `yaml:"failureThreshold"` // 连续失败阈值
	Cooldown         string `yaml:"cooldown"`         // 熔断后的冷却时间 (例如: "30s")
}

// AppConfig 是整个 YAML 文件的根结构，包含了应用程序的所有配置。
type AppConfig struct {
	App            AppInfo              `yaml:"app"`            // 应用程序信息
	Server         ServerConfig         `yaml:"server"`         // HTTP 服务配置
	Auth           AuthConfig           `yaml:"auth"`           // 认证配置
	Logger         LoggerConfig         `yaml:"logger"`         // 日志记录器配置
	Databases      DatabaseConfigs      `yaml:"databases"`      // 数据库配置
	Cache          CacheConfig          `yaml:"cache"`          // 响应缓存配置
	RateLimiter    RateLimiterConfig    `yaml:"rateLimiter"`    // 限流器配置
	Tasks          TasksConfig          `yaml:"tasks"`          // 后台任务配置
	CircuitBreaker CircuitBreakerConfig `yaml:"circuitBreaker"` // 熔断器配置
}

// LoadConfig 函数从指定路径加载并解析 YAML 配置文件。
//
// 参数:
//
//	path: YAML 配置文件的路径。
//
// 返回值:
//
//	*AppConfig: 解析后的应用程序配置结构体。
//	error: 如果文件读取或解析失败，则返回错误。
func LoadConfig(path string) (*AppConfig, error) {
	// 读取 YAML 文件内容。
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("无法读取 YAML 文件 '%s': %w", path, err)
	}
	var cfg AppConfig // 声明一个AppConfig变量用于存储解析后的配置。
	// 将 YAML 内容解析到 cfg 结构体中。
	err = yaml.Unmarshal(yamlFile, &cfg)
	if err != nil {
		return nil, fmt.Errorf("解析 YAML 文件失败: %w", err)
	}
	return &cfg, nil // 返回解析后的配置和nil错误。
}

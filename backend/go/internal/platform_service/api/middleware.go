package api

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"GlassRain/backend/go/internal/platform_service/store"
	"GlassRain/backend/go/pkg/cache"
	"GlassRain/backend/go/pkg/ratelimiter"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/google/uuid"
)

// AuthMiddleware 创建一个可选认证的 Gin 中间件: 携带有效 Bearer token 的
// 请求会把用户 ID 写入上下文，未携带 token 的请求照常放行（匿名）。
// 携带了 token 但验证失败的请求会被拒绝。
func AuthMiddleware(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		// 我们期望的格式是 "Bearer <token>"
		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "授权标头格式不正确"})
			c.Abort()
			return
		}

		token, err := jwt.Parse(parts[1], func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("非预期的签名方法")
			}
			return []byte(jwtSecret), nil
		})
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "无效的 token"})
			c.Abort()
			return
		}

		if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
			if sub, ok := claims["sub"].(string); ok {
				c.Set("userID", sub)
			}
		}
		c.Next()
	}
}

// clientIdentifier 提取限流用的客户端标识。trustProxy 为 true 时取
// X-Forwarded-For 的第一个地址，否则取对端地址（去掉端口）。
func clientIdentifier(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
				return first
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware 基于每个客户端的滑动窗口日志做限流。
// 每个响应都带上 X-RateLimit-* 标头；超限请求返回 429 和 Retry-After。
// 判定结果会异步计入 Redis 统计（未配置时跳过）。
func RateLimitMiddleware(limiter *ratelimiter.ClientLimiter, st *store.Store, limit int, window time.Duration, trustProxy bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := clientIdentifier(c.Request, trustProxy)
		decision := limiter.Check(clientID, limit, window)

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		c.Header("X-RateLimit-Reset", strconv.FormatInt(decision.ResetAt.Unix(), 10))

		if st != nil {
			go st.RecordRateDecision(context.Background(), clientID, decision.Limited)
		}

		if decision.Limited {
			retryAfter := decision.RetryAfter(time.Now())
			seconds := int(retryAfter.Seconds())
			if seconds < 1 {
				seconds = 1
			}
			c.Header("Retry-After", strconv.Itoa(seconds))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": seconds,
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

// GlobalRateLimitMiddleware 用一个进程级限流器保护整个服务，
// 不区分客户端。算法由传入的 ratelimiter.RateLimiter 决定。
func GlobalRateLimitMiddleware(limiter ratelimiter.RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !limiter.Allow() {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is overloaded, try again later"})
			c.Abort()
			return
		}
		c.Next()
	}
}

// cachedResponse 是缓存中存储的响应快照。
type cachedResponse struct {
	Status      int
	ContentType string
	Body        []byte
}

// cacheWriter 包装 gin 的 ResponseWriter，在写出的同时捕获响应体。
type cacheWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *cacheWriter) Write(p []byte) (int, error) {
	w.body.Write(p)
	return w.ResponseWriter.Write(p)
}

func (w *cacheWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// CacheMiddleware 缓存指定命名空间下的 GET 响应。
// 非 GET 请求直接放行；只有 2xx 响应会进入缓存。
// 缓存命中时回放原响应并带上 X-Cache: HIT 标头。
func CacheMiddleware(c *cache.Store, namespace string, ttl time.Duration) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodGet {
			ctx.Next()
			return
		}

		req := cache.KeyRequestFrom(ctx.Request)
		key := cache.Key(namespace, nil, nil, &req)
		if value, ok := c.Get(key); ok {
			if resp, ok := value.(*cachedResponse); ok {
				ctx.Header("X-Cache", "HIT")
				ctx.Data(resp.Status, resp.ContentType, resp.Body)
				ctx.Abort()
				return
			}
		}

		writer := &cacheWriter{ResponseWriter: ctx.Writer}
		ctx.Writer = writer
		ctx.Header("X-Cache", "MISS")
		ctx.Next()

		status := writer.Status()
		if status >= 200 && status < 300 {
			body := make([]byte, writer.body.Len())
			copy(body, writer.body.Bytes())
			c.Set(key, &cachedResponse{
				Status:      status,
				ContentType: writer.Header().Get("Content-Type"),
				Body:        body,
			}, ttl)
		}
	}
}

// RequestIDMiddleware 为每个请求分配一个追踪 ID，便于串联日志。
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader("X-Request-ID")
		if traceID == "" {
			traceID = uuid.NewString()
		}
		c.Set("traceID", traceID)
		c.Header("X-Request-ID", traceID)
		c.Next()
	}
}

package api

import (
	"net/http"
	"strconv"
	"time"

	"GlassRain/backend/go/internal/platform_service/service"
	"GlassRain/backend/go/pkg/cache"
	"GlassRain/backend/go/pkg/ratelimiter"
	"GlassRain/backend/go/pkg/tasks"

	"github.com/gin-gonic/gin"
)

// Handler 封装了所有 API endpoint 的处理函数。
type Handler struct {
	service *service.Service
	cache   *cache.Store
	limiter *ratelimiter.ClientLimiter
}

// NewHandler 创建一个新的 Handler 实例。
func NewHandler(s *service.Service, cacheStore *cache.Store, limiter *ratelimiter.ClientLimiter) *Handler {
	return &Handler{service: s, cache: cacheStore, limiter: limiter}
}

// requestUserID 解析当前请求的用户 ID: 优先取认证中间件写入的值，
// 匿名请求退回到 user_id 查询参数。
func requestUserID(c *gin.Context) string {
	if userID, ok := c.Get("userID"); ok {
		if s, ok := userID.(string); ok {
			return s
		}
	}
	return c.Query("user_id")
}

// --- Task Handlers ---

// ListTasks 列出任务，支持按用户和状态过滤。
// GET /api/tasks?user_id=&status=&limit=
func (h *Handler) ListTasks(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须是非负整数"})
			return
		}
		limit = n
	}

	status := tasks.Status(c.Query("status"))
	views := h.service.Executor().List(requestUserID(c), status, limit)
	c.JSON(http.StatusOK, gin.H{"tasks": views, "count": len(views)})
}

// GetTask 返回单个任务的当前快照。
// GET /api/tasks/:id
func (h *Handler) GetTask(c *gin.Context) {
	task := h.service.Executor().Get(c.Param("id"))
	if task == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}
	c.JSON(http.StatusOK, task.View())
}

// CancelTask 请求取消一个任务。已处于终态的任务无法取消。
// POST /api/tasks/:id/cancel
func (h *Handler) CancelTask(c *gin.Context) {
	taskID := c.Param("id")
	if h.service.Executor().Get(taskID) == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "任务不存在"})
		return
	}
	if !h.service.Executor().Cancel(taskID) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "任务已结束，无法取消"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "已请求取消", "task_id": taskID})
}

// ListTaskHistory 查询已持久化的历史任务镜像。
// GET /api/tasks/history?user_id=&limit=
func (h *Handler) ListTaskHistory(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	records := h.service.Store().ListTaskHistory(requestUserID(c), limit)
	c.JSON(http.StatusOK, gin.H{"tasks": records, "count": len(records)})
}

// --- Analysis Handlers ---

// PropertyAnalysisRequest 定义了房产分析请求的 JSON 结构。
type PropertyAnalysisRequest struct {
	AddressID uint `json:"address_id" binding:"required"`
}

// SubmitPropertyAnalysis 提交一次房产分析后台任务。
// POST /api/analysis/property
func (h *Handler) SubmitPropertyAnalysis(c *gin.Context) {
	var req PropertyAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	task := h.service.SubmitPropertyAnalysis(req.AddressID, requestUserID(c))
	c.JSON(http.StatusAccepted, gin.H{
		"task_id": task.ID(),
		"status":  task.Status(),
	})
}

// SubmitSeasonalCheck 提交一次季节性检查任务。
// POST /api/analysis/seasonal
func (h *Handler) SubmitSeasonalCheck(c *gin.Context) {
	task := h.service.SubmitSeasonalCheck(requestUserID(c))
	c.JSON(http.StatusAccepted, gin.H{
		"task_id": task.ID(),
		"status":  task.Status(),
	})
}

// --- Service Catalog ---

// ListServices 返回可预约的服务项目。该路由挂了响应缓存。
// GET /api/services?category=
func (h *Handler) ListServices(c *gin.Context) {
	offerings := h.service.Store().ListServiceOfferings(c.Query("category"))
	c.JSON(http.StatusOK, gin.H{"services": offerings, "count": len(offerings)})
}

// --- Cache Admin ---

// CacheStats 返回响应缓存的统计信息。
// GET /api/cache/stats
func (h *Handler) CacheStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.cache.Stats())
}

// ClearCache 清空缓存，带 namespace 参数时只清对应命名空间。
// POST /api/cache/clear?namespace=
func (h *Handler) ClearCache(c *gin.Context) {
	namespace := c.Query("namespace")
	removed := h.cache.Clear(namespace)
	c.JSON(http.StatusOK, gin.H{"cleared": removed, "namespace": namespace})
}

// --- Rate Limit Status ---

// RateLimitStatus 返回限流器的运行状态和累计判定计数。
// 这个端点本身不消耗配额。
// GET /api/rate-limit-status
func (h *Handler) RateLimitStatus(c *gin.Context) {
	allowed, denied := h.service.Store().RateStatsTotals(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"tracked_clients": h.limiter.Clients(),
		"allowed_total":   allowed,
		"denied_total":    denied,
	})
}

// --- Health ---

// Health 健康检查端点。
// GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"GlassRain/backend/go/internal/platform_service/service"
	"GlassRain/backend/go/internal/platform_service/store"
	"GlassRain/backend/go/pkg/cache"
	"GlassRain/backend/go/pkg/ratelimiter"
	"GlassRain/backend/go/pkg/tasks"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJwtSecret = "test-secret"

type testEnv struct {
	router   *gin.Engine
	executor *tasks.Executor
	cache    *cache.Store
	limiter  *ratelimiter.ClientLimiter
}

func newTestEnv(t *testing.T, cfg RouterConfig) *testEnv {
	t.Helper()

	executor := tasks.New(nil)
	executor.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		executor.Shutdown(ctx)
	})

	st := store.NewStore(nil, nil, nil, nil)
	svc := service.NewService(st, executor, time.Minute)
	cacheStore := cache.NewStore()
	limiter := ratelimiter.NewClientLimiter(0)

	h := NewHandler(svc, cacheStore, limiter)
	return &testEnv{
		router:   SetupRouter(h, limiter, cacheStore, st, cfg),
		executor: executor,
		cache:    cacheStore,
		limiter:  limiter,
	}
}

func defaultConfig() RouterConfig {
	return RouterConfig{
		JwtSecret:        testJwtSecret,
		RateLimitEnabled: false,
		RateLimit:        60,
		RateWindow:       time.Minute,
		TrustProxy:       true,
		CacheTTL:         time.Minute,
	}
}

func doRequest(env *testEnv, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body != "" {
		reader = strings.NewReader(body)
	} else {
		reader = strings.NewReader("")
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("响应不是合法 JSON: %v (%s)", err, w.Body.String())
	}
	return out
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	w := doRequest(env, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", w.Code)
	}
}

func TestSubmitAndGetTask(t *testing.T) {
	env := newTestEnv(t, defaultConfig())

	w := doRequest(env, http.MethodPost, "/api/analysis/property", `{"address_id": 7}`, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("期望 202, 实际 %d: %s", w.Code, w.Body.String())
	}
	body := decodeBody(t, w)
	taskID, _ := body["task_id"].(string)
	if taskID == "" {
		t.Fatal("期望返回 task_id")
	}

	// 轮询直到任务完成。
	deadline := time.After(3 * time.Second)
	for {
		w = doRequest(env, http.MethodGet, "/api/tasks/"+taskID, "", nil)
		if w.Code != http.StatusOK {
			t.Fatalf("期望 200, 实际 %d", w.Code)
		}
		view := decodeBody(t, w)
		if view["status"] == string(tasks.StatusCompleted) {
			if view["progress"] != float64(100) {
				t.Errorf("期望进度 100, 实际 %v", view["progress"])
			}
			break
		}
		select {
		case <-deadline:
			t.Fatalf("任务未在期限内完成, 最后状态: %v", view["status"])
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestSubmitPropertyAnalysisValidation(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	w := doRequest(env, http.MethodPost, "/api/analysis/property", `{}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("缺少 address_id 时期望 400, 实际 %d", w.Code)
	}
}

func TestGetTaskNotFound(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	w := doRequest(env, http.MethodGet, "/api/tasks/no-such-task", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("期望 404, 实际 %d", w.Code)
	}
}

func TestCancelTask(t *testing.T) {
	env := newTestEnv(t, defaultConfig())

	// 未知任务
	w := doRequest(env, http.MethodPost, "/api/tasks/no-such-task/cancel", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("期望 404, 实际 %d", w.Code)
	}

	// 已结束的任务
	task := env.executor.Submit(func(ctx context.Context, task *tasks.Task) (interface{}, error) {
		return nil, nil
	}, tasks.SubmitOptions{})
	select {
	case <-task.Done():
	case <-time.After(3 * time.Second):
		t.Fatal("等待任务完成超时")
	}
	w = doRequest(env, http.MethodPost, "/api/tasks/"+task.ID()+"/cancel", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("终态任务期望 400, 实际 %d", w.Code)
	}
}

func TestListTasksFiltersByUser(t *testing.T) {
	env := newTestEnv(t, defaultConfig())

	w := doRequest(env, http.MethodPost, "/api/analysis/seasonal?user_id=alice", "", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("期望 202, 实际 %d", w.Code)
	}

	w = doRequest(env, http.MethodGet, "/api/tasks?user_id=alice", "", nil)
	body := decodeBody(t, w)
	if body["count"] != float64(1) {
		t.Errorf("期望 alice 有 1 个任务, 实际 %v", body["count"])
	}

	w = doRequest(env, http.MethodGet, "/api/tasks?user_id=bob", "", nil)
	body = decodeBody(t, w)
	if body["count"] != float64(0) {
		t.Errorf("期望 bob 有 0 个任务, 实际 %v", body["count"])
	}
}

func TestRateLimitMiddleware(t *testing.T) {
	cfg := defaultConfig()
	cfg.RateLimitEnabled = true
	cfg.RateLimit = 2
	env := newTestEnv(t, cfg)

	header := map[string]string{"X-Forwarded-For": "10.0.0.1"}
	for i := 0; i < 2; i++ {
		w := doRequest(env, http.MethodGet, "/api/tasks", "", header)
		if w.Code != http.StatusOK {
			t.Fatalf("第 %d 次请求期望 200, 实际 %d", i+1, w.Code)
		}
		if w.Header().Get("X-RateLimit-Limit") != "2" {
			t.Errorf("X-RateLimit-Limit = %q", w.Header().Get("X-RateLimit-Limit"))
		}
	}

	w := doRequest(env, http.MethodGet, "/api/tasks", "", header)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("第 3 次请求期望 429, 实际 %d", w.Code)
	}
	if w.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("X-RateLimit-Remaining = %q", w.Header().Get("X-RateLimit-Remaining"))
	}
	if w.Header().Get("Retry-After") == "" {
		t.Error("期望 429 响应带 Retry-After")
	}

	// 其他客户端不受影响。
	w = doRequest(env, http.MethodGet, "/api/tasks", "", map[string]string{"X-Forwarded-For": "10.0.0.2"})
	if w.Code != http.StatusOK {
		t.Errorf("其他客户端期望 200, 实际 %d", w.Code)
	}

	// 管理端点不计入配额。
	w = doRequest(env, http.MethodGet, "/api/rate-limit-status", "", header)
	if w.Code != http.StatusOK {
		t.Errorf("限流状态端点期望 200, 实际 %d", w.Code)
	}
}

func TestGlobalRateLimit(t *testing.T) {
	cfg := defaultConfig()
	cfg.GlobalLimit = 3
	cfg.GlobalWindow = time.Minute
	env := newTestEnv(t, cfg)

	// 不同客户端共享进程级配额。
	for i := 0; i < 3; i++ {
		header := map[string]string{"X-Forwarded-For": "10.1.0." + strconv.Itoa(i)}
		w := doRequest(env, http.MethodGet, "/health", "", header)
		if w.Code != http.StatusOK {
			t.Fatalf("第 %d 次请求期望 200, 实际 %d", i+1, w.Code)
		}
	}
	w := doRequest(env, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("超出进程级配额后期望 429, 实际 %d", w.Code)
	}
}

func TestCacheMiddleware(t *testing.T) {
	env := newTestEnv(t, defaultConfig())

	w := doRequest(env, http.MethodGet, "/api/services", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", w.Code)
	}
	if got := w.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("首次请求期望 X-Cache MISS, 实际 %q", got)
	}
	first := w.Body.String()

	w = doRequest(env, http.MethodGet, "/api/services", "", nil)
	if got := w.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("第二次请求期望 X-Cache HIT, 实际 %q", got)
	}
	if w.Body.String() != first {
		t.Error("缓存命中时响应体应与原始响应一致")
	}

	// 不同查询串是不同的缓存键。
	w = doRequest(env, http.MethodGet, "/api/services?category=hvac", "", nil)
	if got := w.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("不同查询串期望 MISS, 实际 %q", got)
	}

	// 清空命名空间后恢复 MISS。
	w = doRequest(env, http.MethodPost, "/api/cache/clear?namespace=services", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", w.Code)
	}
	cleared := decodeBody(t, w)
	if cleared["cleared"] == float64(0) {
		t.Error("期望清除计数大于 0")
	}
	w = doRequest(env, http.MethodGet, "/api/services", "", nil)
	if got := w.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("清空后期望 MISS, 实际 %q", got)
	}
}

func TestCacheStats(t *testing.T) {
	env := newTestEnv(t, defaultConfig())
	doRequest(env, http.MethodGet, "/api/services", "", nil)

	w := doRequest(env, http.MethodGet, "/api/cache/stats", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("期望 200, 实际 %d", w.Code)
	}
	stats := decodeBody(t, w)
	if stats["total_entries"] != float64(1) {
		t.Errorf("期望缓存中有 1 个条目, 实际 %v", stats["total_entries"])
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, defaultConfig())

	// 匿名请求放行。
	w := doRequest(env, http.MethodGet, "/api/tasks", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("匿名请求期望 200, 实际 %d", w.Code)
	}

	// 畸形标头被拒绝。
	w = doRequest(env, http.MethodGet, "/api/tasks", "", map[string]string{"Authorization": "not-bearer"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("畸形标头期望 401, 实际 %d", w.Code)
	}

	// 非法 token 被拒绝。
	w = doRequest(env, http.MethodGet, "/api/tasks", "", map[string]string{"Authorization": "Bearer bad.token.here"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("非法 token 期望 401, 实际 %d", w.Code)
	}

	// 合法 token: 提交的任务归属 token 中的用户。
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "carol"})
	signed, err := token.SignedString([]byte(testJwtSecret))
	if err != nil {
		t.Fatalf("签发测试 token 失败: %v", err)
	}
	auth := map[string]string{"Authorization": "Bearer " + signed}

	w = doRequest(env, http.MethodPost, "/api/analysis/seasonal", "", auth)
	if w.Code != http.StatusAccepted {
		t.Fatalf("期望 202, 实际 %d: %s", w.Code, w.Body.String())
	}
	w = doRequest(env, http.MethodGet, "/api/tasks?user_id=carol", "", nil)
	body := decodeBody(t, w)
	if body["count"] != float64(1) {
		t.Errorf("期望 carol 有 1 个任务, 实际 %v", body["count"])
	}
}

func TestClientIdentifier(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5123"

	if got := clientIdentifier(req, false); got != "192.0.2.10" {
		t.Errorf("不信任代理时期望对端地址, 实际 %q", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.5, 70.41.3.18")
	if got := clientIdentifier(req, true); got != "203.0.113.5" {
		t.Errorf("期望 XFF 第一个地址, 实际 %q", got)
	}
	if got := clientIdentifier(req, false); got != "192.0.2.10" {
		t.Errorf("不信任代理时应忽略 XFF, 实际 %q", got)
	}
}

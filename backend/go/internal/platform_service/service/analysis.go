package service

import (
	"context"
	"fmt"
	"time"

	"GlassRain/backend/go/internal/platform_service/store"
	"GlassRain/backend/go/pkg/tasks"
)

// Service 封装了平台服务的业务逻辑: 把分析请求转换成后台任务。
type Service struct {
	store    *store.Store
	executor *tasks.Executor
	timeout  time.Duration
}

// NewService 创建一个新的 Service 实例。timeout 是单个分析任务的上限。
func NewService(s *store.Store, executor *tasks.Executor, timeout time.Duration) *Service {
	return &Service{
		store:    s,
		executor: executor,
		timeout:  timeout,
	}
}

// Executor 暴露底层任务执行器，供 API 层查询和取消任务。
func (s *Service) Executor() *tasks.Executor {
	return s.executor
}

// Store 暴露底层数据访问层。
func (s *Service) Store() *store.Store {
	return s.store
}

// SubmitPropertyAnalysis 提交一次房产分析后台任务并立即返回任务句柄。
// 分析分阶段执行，每个阶段上报一次进度；数据库不可用时按降级模式
// 继续，返回的结论不落库。
func (s *Service) SubmitPropertyAnalysis(addressID uint, userID string) *tasks.Task {
	return s.executor.Submit(func(ctx context.Context, task *tasks.Task) (interface{}, error) {
		task.ReportProgress(10, "正在加载地址信息")
		addr := s.store.GetAddress(addressID)
		if err := stageWait(ctx, 50*time.Millisecond); err != nil {
			return nil, err
		}

		task.ReportProgress(40, "正在评估房产状况")
		insights := map[string]interface{}{
			"address_id": addressID,
			"kind":       "property_analysis",
			"roof":       map[string]interface{}{"condition": "fair", "estimated_age_years": 12},
			"hvac":       map[string]interface{}{"condition": "good", "estimated_age_years": 6},
			"exterior":   map[string]interface{}{"condition": "good"},
		}
		if addr != nil {
			insights["address"] = fmt.Sprintf("%s, %s %s", addr.Line1, addr.City, addr.State)
		} else {
			insights["degraded"] = true
		}
		if err := stageWait(ctx, 50*time.Millisecond); err != nil {
			return nil, err
		}

		task.ReportProgress(80, "正在生成维护建议")
		insights["recommendations"] = []string{
			"schedule roof inspection within 12 months",
			"replace HVAC filter",
		}

		if err := s.store.SaveInsight(addressID, "property_analysis", insights); err != nil {
			task.ReportProgress(90, "结论落库失败，仅返回内存结果")
		}

		task.ReportProgress(100, "分析完成")
		return insights, nil
	}, tasks.SubmitOptions{
		Name:        "property_analysis",
		Description: fmt.Sprintf("Property analysis for address %d", addressID),
		Timeout:     s.timeout,
		UserID:      userID,
	})
}

// SubmitSeasonalCheck 提交一次季节性检查任务，产出当前季节的维护清单。
func (s *Service) SubmitSeasonalCheck(userID string) *tasks.Task {
	return s.executor.Submit(func(ctx context.Context, task *tasks.Task) (interface{}, error) {
		task.ReportProgress(20, "正在确定当前季节")
		season := seasonOf(time.Now())
		if err := stageWait(ctx, 30*time.Millisecond); err != nil {
			return nil, err
		}

		task.ReportProgress(60, "正在生成季节性检查清单")
		checklist := seasonalChecklist(season)
		offerings := s.store.ListServiceOfferings("")

		result := map[string]interface{}{
			"season":    season,
			"checklist": checklist,
		}
		if len(offerings) > 0 {
			names := make([]string, 0, len(offerings))
			for _, o := range offerings {
				names = append(names, o.Name)
			}
			result["available_services"] = names
		}

		task.ReportProgress(100, "检查完成")
		return result, nil
	}, tasks.SubmitOptions{
		Name:        "seasonal_check",
		Description: "Seasonal home maintenance check",
		Timeout:     s.timeout,
		UserID:      userID,
	})
}

// stageWait 在阶段之间等待，同时保持对取消和超时的响应。
func stageWait(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

func seasonOf(t time.Time) string {
	switch t.Month() {
	case time.December, time.January, time.February:
		return "winter"
	case time.March, time.April, time.May:
		return "spring"
	case time.June, time.July, time.August:
		return "summer"
	default:
		return "fall"
	}
}

func seasonalChecklist(season string) []string {
	switch season {
	case "winter":
		return []string{"insulate exposed pipes", "check heating system", "seal window drafts"}
	case "spring":
		return []string{"clean gutters", "service air conditioning", "inspect roof for winter damage"}
	case "summer":
		return []string{"check irrigation system", "inspect deck and fencing", "clean dryer vent"}
	default:
		return []string{"rake leaves from gutters", "winterize outdoor faucets", "test smoke detectors"}
	}
}

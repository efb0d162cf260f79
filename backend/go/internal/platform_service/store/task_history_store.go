package store

import (
	"encoding/json"

	"GlassRain/backend/go/internal/models"
	"GlassRain/backend/go/pkg/tasks"

	"gorm.io/datatypes"
	"gorm.io/gorm/clause"
)

// RecordTask 把任务的终态快照镜像到 MySQL，实现 tasks.Recorder 接口。
// 镜像是尽力而为的: 任何失败只记录日志，绝不影响内存中的任务注册表。
func (s *Store) RecordTask(v tasks.View) {
	if s.DB == nil {
		return
	}

	record := models.TaskHistory{
		TaskID:          v.TaskID,
		Name:            v.Name,
		Description:     v.Description,
		UserID:          v.UserID,
		Status:          string(v.Status),
		Progress:        v.Progress,
		ProgressMessage: v.ProgressMessage,
		StartedAt:       v.StartedAt,
		CompletedAt:     v.CompletedAt,
	}
	if v.Result != nil {
		if raw, err := json.Marshal(v.Result); err == nil {
			record.Result = datatypes.JSON(raw)
		}
	}
	if v.Error != nil {
		if raw, err := json.Marshal(v.Error); err == nil {
			record.Error = datatypes.JSON(raw)
		}
	}

	// 同一任务可能被记录多次 (例如超时后又被清理)，按 task_id 去重更新。
	err := s.breaker.Do(func() error {
		return s.DB.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "task_id"}},
			UpdateAll: true,
		}).Create(&record).Error
	})
	if err != nil {
		s.log.WithField("taskID", v.TaskID).WithErr(err).Warn("任务历史镜像写入失败")
	}
}

// ListTaskHistory 按用户查询已镜像的历史任务，userID 为空时返回全部。
func (s *Store) ListTaskHistory(userID string, limit int) []models.TaskHistory {
	if s.DB == nil {
		return nil
	}
	if limit <= 0 {
		limit = 20
	}
	var records []models.TaskHistory
	err := s.breaker.Do(func() error {
		q := s.DB.Order("created_at DESC").Limit(limit)
		if userID != "" {
			q = q.Where("user_id = ?", userID)
		}
		return q.Find(&records).Error
	})
	if err != nil {
		return nil
	}
	return records
}

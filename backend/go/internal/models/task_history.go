package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TaskHistory 代表一条持久化的后台任务记录。
// 内存中的任务注册表是权威数据源，这张表只是任务终态的镜像，
// 用于在进程重启后仍能查询历史任务。
type TaskHistory struct {
	gorm.Model

	TaskID      string `gorm:"uniqueIndex;not null;size:64"` // 任务唯一ID (UUID)
	Name        string `gorm:"size:255"`                     // 任务名称
	Description string `gorm:"size:1024"`                    // 任务描述
	UserID      string `gorm:"index;size:64"`                // 提交任务的用户ID
	Status      string `gorm:"type:varchar(20);not null"`    // 任务终态

	Progress        float64        // 最后上报的进度 (0-100)
	ProgressMessage string         `gorm:"size:512"` // 最后上报的进度说明
	Result          datatypes.JSON // 任务成功后的输出结果
	Error           datatypes.JSON // 任务失败时的错误信息

	StartedAt   *time.Time // 任务开始执行时间
	CompletedAt *time.Time // 任务完成时间
}

func (TaskHistory) TableName() string {
	return "task_histories"
}

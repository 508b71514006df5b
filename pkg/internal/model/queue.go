package model

import "time"

// QueueItemStatus 重试队列条目状态.
type QueueItemStatus string

const (
	QueueQueued     QueueItemStatus = "QUEUED"     // 等待排空
	QueueProcessing QueueItemStatus = "PROCESSING" // 本轮排空正在处理
	QueueCompleted  QueueItemStatus = "COMPLETED"  // 重试成功，条目归档
	QueueFailed     QueueItemStatus = "FAILED"     // 超过最大重试次数
)

// SubmissionQueue 瞬时故障的重试队列条目.
// 排空按 Priority 降序、QueuedAt 升序取批.
type SubmissionQueue struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	ArtifactID uint            `gorm:"index"      json:"artifact_id"`
	Priority   int             `gorm:"index"      json:"priority"`
	Status     QueueItemStatus `gorm:"size:16;index" json:"status"`
	Attempts   int             `json:"attempts"`
	MaxRetries int             `json:"max_retries"`
	LastError  string          `gorm:"type:text"  json:"last_error,omitempty"`

	QueuedAt    time.Time  `gorm:"index" json:"queued_at"`
	NextRetryAt *time.Time `json:"next_retry_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

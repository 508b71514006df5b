package types

import "time"

// MappingRequest 创建或更新科目映射.
type MappingRequest struct {
	SubjectCode  string `json:"subject_code"  binding:"required"`
	CourseID     int    `json:"course_id"     binding:"required"`
	AssignmentID int    `json:"assignment_id" binding:"required"`
	ExamSession  string `json:"exam_session"`
	Active       *bool  `json:"active"`
	Remark       string `json:"remark"`
}

// MappingView 科目映射视图.
type MappingView struct {
	ID           uint      `json:"id"`
	SubjectCode  string    `json:"subject_code"`
	CourseID     int       `json:"course_id"`
	AssignmentID int       `json:"assignment_id"`
	ExamSession  string    `json:"exam_session,omitempty"`
	Active       bool      `json:"active"`
	Remark       string    `json:"remark,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ResetRequest 管理员重置工件到 PENDING.
type ResetRequest struct {
	Reason string `json:"reason"`
}

// SupersedeRequest 以修正过的身份替换既有工件.
type SupersedeRequest struct {
	OwnerIdentity string `json:"owner_identity" binding:"required"`
	SubjectCode   string `json:"subject_code"   binding:"required"`
	Period        string `json:"period"`
	Reason        string `json:"reason"`
}

// DeleteRequest 软删除工件.
type DeleteRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// StatusStatsResponse 按状态统计工件数量.
type StatusStatsResponse struct {
	Counts map[string]int64 `json:"counts"`
	Total  int64            `json:"total"`
}

// QueueItemView 重试队列条目视图.
type QueueItemView struct {
	ID          uint       `json:"id"`
	ArtifactID  uint       `json:"artifact_id"`
	Priority    int        `json:"priority"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxRetries  int        `json:"max_retries"`
	LastError   string     `json:"last_error,omitempty"`
	QueuedAt    time.Time  `json:"queued_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// QueueStatusResponse 重试队列状态响应.
type QueueStatusResponse struct {
	Items []QueueItemView `json:"items"`
	Total int             `json:"total"`
}

// DrainStats 一轮排空的批次统计.
type DrainStats struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Requeued  int `json:"requeued"`
	Failed    int `json:"failed"`
}

// AuditEntryView 审计日志视图.
type AuditEntryView struct {
	ID         uint      `json:"id"`
	Actor      string    `json:"actor"`
	Action     string    `json:"action"`
	Category   string    `json:"category"`
	ArtifactID *uint     `json:"artifact_id,omitempty"`
	TargetType string    `json:"target_type,omitempty"`
	TargetID   string    `json:"target_id,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditListResponse 审计日志列表响应.
type AuditListResponse struct {
	Entries []AuditEntryView `json:"entries"`
	Total   int              `json:"total"`
}

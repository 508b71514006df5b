// Package model 定义工作流引擎的持久化模型.
package model

import (
	"time"

	"github.com/bytedance/sonic"
)

// WorkflowStatus 工件在提交工作流中的状态.
type WorkflowStatus string

const (
	StatusPending        WorkflowStatus = "PENDING"          // 已入库，等待处理
	StatusPendingReview  WorkflowStatus = "PENDING_REVIEW"   // 等待人工确认
	StatusValidated      WorkflowStatus = "VALIDATED"        // 校验通过
	StatusReadyForReview WorkflowStatus = "READY_FOR_REVIEW" // 确认完毕，可发起提交
	StatusUploading      WorkflowStatus = "UPLOADING"        // 正在上传草稿文件
	StatusSubmitting     WorkflowStatus = "SUBMITTING"       // 草稿已挂接，正在提交
	StatusCompleted      WorkflowStatus = "COMPLETED"        // 远端已受理
	StatusFailed         WorkflowStatus = "FAILED"           // 永久失败
	StatusQueued         WorkflowStatus = "QUEUED"           // 瞬时故障，等待重试
	StatusDeleted        WorkflowStatus = "DELETED"          // 已删除，身份已释放
)

// statusTransitions 定义状态机的合法迁移.
// 非失败状态不回退到 PENDING，管理员重置与重新上传走强制路径，不经过该表.
var statusTransitions = map[WorkflowStatus][]WorkflowStatus{
	StatusPending:        {StatusPendingReview, StatusValidated, StatusUploading, StatusQueued, StatusFailed, StatusDeleted},
	StatusPendingReview:  {StatusValidated, StatusReadyForReview, StatusFailed, StatusDeleted},
	StatusValidated:      {StatusReadyForReview, StatusUploading, StatusQueued, StatusFailed, StatusDeleted},
	StatusReadyForReview: {StatusUploading, StatusQueued, StatusFailed, StatusDeleted},
	StatusUploading:      {StatusUploading, StatusSubmitting, StatusQueued, StatusFailed, StatusDeleted},
	StatusSubmitting:     {StatusSubmitting, StatusCompleted, StatusQueued, StatusFailed, StatusDeleted},
	StatusQueued:         {StatusUploading, StatusSubmitting, StatusPending, StatusFailed, StatusDeleted},
	StatusFailed:         {StatusPending, StatusQueued, StatusDeleted},
	StatusCompleted:      {StatusDeleted},
	StatusDeleted:        {},
}

// CanTransition 返回 from -> to 是否为合法状态迁移.
func CanTransition(from, to WorkflowStatus) bool {
	for _, allowed := range statusTransitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

// IsTerminal 返回状态是否为终态（仅允许删除或重置脱离）.
func (s WorkflowStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusDeleted
}

// LogEntry 工件活动日志条目.
type LogEntry struct {
	At     time.Time `json:"at"`
	Event  string    `json:"event"`
	Detail string    `json:"detail,omitempty"`
}

// Artifact 扫描件工件.
// 身份三元组（OwnerIdentity, SubjectCode, Period）使用指针类型，
// 软删除时置 NULL 以释放唯一约束，允许同一身份重新上传.
// 存活工件以 (OwnerIdentity, SubjectCode) 保持唯一，期次只参与幂等键.
type Artifact struct {
	ID   uint   `gorm:"primaryKey"          json:"id"`
	UUID string `gorm:"size:36;uniqueIndex" json:"uuid"`

	// 幂等身份，三元组哈希前 32 位十六进制
	TransactionID *string `gorm:"size:32;uniqueIndex" json:"transaction_id"`
	OwnerIdentity *string `gorm:"size:12;index:idx_owner_subject,unique"  json:"owner_identity"`
	SubjectCode   *string `gorm:"size:10;index:idx_owner_subject,unique"  json:"subject_code"`
	Period        *string `gorm:"size:6"                                  json:"period"`

	// 原件存放位置
	RawFileName string `gorm:"size:512"       json:"raw_file_name"`
	FileName    string `gorm:"size:512"       json:"file_name"`
	Bucket      string `gorm:"size:255"       json:"bucket"`
	ObjectKey   string `gorm:"size:1024"      json:"object_key"`
	Size        int64  `json:"size"`
	ContentType string `gorm:"size:255"       json:"content_type"`
	Checksum    string `gorm:"size:64;index"  json:"checksum"`

	Status          WorkflowStatus `gorm:"size:32;index" json:"status"`
	StatusChangedAt time.Time      `json:"status_changed_at"`

	// 远端提交痕迹
	RemoteUserID     *int64     `json:"remote_user_id,omitempty"`
	RemoteUsername   string     `gorm:"size:128" json:"remote_username,omitempty"`
	CourseID         int        `json:"course_id,omitempty"`
	AssignmentID     int        `json:"assignment_id,omitempty"`
	DraftItemID      *int64     `json:"draft_item_id,omitempty"`
	SubmissionID     *string    `gorm:"size:64"  json:"submission_id,omitempty"`
	TransactionLogID *string    `gorm:"size:128" json:"transaction_log_id,omitempty"`

	Attempts  int    `json:"attempts"`
	LastError string `gorm:"type:text" json:"last_error,omitempty"`

	// SupersededBy 指向替换本工件的新工件，替换时身份字段一并释放
	SupersededBy *uint `json:"superseded_by,omitempty"`

	// ActivityLog 以 JSON 数组文本存储，条目追加不回写历史
	ActivityLog string `gorm:"type:text" json:"activity_log,omitempty"`

	ValidatedAt *time.Time `json:"validated_at,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AppendLog 追加一条活动日志，序列化失败时丢弃该条目而非污染历史.
func (a *Artifact) AppendLog(event, detail string) {
	entries, err := a.LogEntries()
	if err != nil {
		entries = nil
	}

	entries = append(entries, LogEntry{
		At:     time.Now().UTC(),
		Event:  event,
		Detail: detail,
	})

	data, err := sonic.Marshal(entries)
	if err != nil {
		return
	}

	a.ActivityLog = string(data)
}

// LogEntries 解析活动日志.
func (a *Artifact) LogEntries() ([]LogEntry, error) {
	if a.ActivityLog == "" {
		return nil, nil
	}

	var entries []LogEntry
	if err := sonic.Unmarshal([]byte(a.ActivityLog), &entries); err != nil {
		return nil, err
	}

	return entries, nil
}

// Identity 返回身份三元组，任一为空时 ok 为 false.
func (a *Artifact) Identity() (owner, subject, period string, ok bool) {
	if a.OwnerIdentity == nil || a.SubjectCode == nil || a.Period == nil {
		return "", "", "", false
	}

	return *a.OwnerIdentity, *a.SubjectCode, *a.Period, true
}

// ReleaseIdentity 释放身份字段，唯一约束随之解除.
func (a *Artifact) ReleaseIdentity() {
	a.TransactionID = nil
	a.OwnerIdentity = nil
	a.SubjectCode = nil
	a.Period = nil
}

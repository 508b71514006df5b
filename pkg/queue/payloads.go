package queue

import "time"

// EventHeader 定义所有事件的通用头部元数据.
// 建议在发布消息时填充 TraceID、OccurredAt、Producer 等，便于追踪链路与审计.
type EventHeader struct {
	// Topic 冗余记录消息主题，便于离线处理或转储后定位来源主题.
	Topic string `json:"topic"`
	// TraceID 分布式追踪/关联 ID，可来自中间件或业务生成.
	TraceID string `json:"trace_id,omitempty"`
	// Producer 生产者服务名或节点标识.
	Producer string `json:"producer,omitempty"`
	// OccurredAt 事件发生时间（UTC，RFC3339）.
	OccurredAt time.Time `json:"occurred_at"`
	// Version 事件负载版本，便于向后兼容演进.
	Version string `json:"version,omitempty"`
}

// Message 是统一的消息封装，Header + Payload.
// T 即不同主题对应的负载结构体.
type Message[T any] struct {
	Header  EventHeader `json:"header"`
	Payload T           `json:"payload"`
}

// -------------------------- 工件生命周期领域 --------------------------

// ArtifactRef 标识一个工件及其幂等身份.
type ArtifactRef struct {
	ArtifactID    uint   `json:"artifact_id"`
	TransactionID string `json:"transaction_id,omitempty"`
	OwnerIdentity string `json:"owner_identity,omitempty"`
	SubjectCode   string `json:"subject_code,omitempty"`
	Period        string `json:"period,omitempty"`
	Status        string `json:"status,omitempty"`
}

// ArtifactCreatedPayload 新工件完成入库.
type ArtifactCreatedPayload struct {
	Artifact ArtifactRef `json:"artifact"`
	FileName string      `json:"file_name,omitempty"`
	Bucket   string      `json:"bucket,omitempty"`
	Key      string      `json:"key,omitempty"`
	Size     int64       `json:"size,omitempty"`
}

// ArtifactReuploadedPayload 同一身份的工件被重新上传.
type ArtifactReuploadedPayload struct {
	Artifact   ArtifactRef `json:"artifact"`
	PrevStatus string      `json:"prev_status,omitempty"`
}

// ArtifactDeletedPayload 工件被软删除，身份释放.
type ArtifactDeletedPayload struct {
	Artifact ArtifactRef `json:"artifact"`
	Reason   string      `json:"reason,omitempty"`
}

// -------------------------- 远端提交领域 --------------------------

// SubmissionStartedPayload 提交工作流开始执行.
type SubmissionStartedPayload struct {
	Artifact  ArtifactRef `json:"artifact"`
	Initiator string      `json:"initiator,omitempty"` // 触发来源：api/retry
}

// SubmissionCompletedPayload 提交完成.
type SubmissionCompletedPayload struct {
	Artifact         ArtifactRef `json:"artifact"`
	SubmissionID     string      `json:"submission_id,omitempty"`
	TransactionLogID string      `json:"transaction_log_id,omitempty"`
	Finalized        bool        `json:"finalized"`
	AlreadySubmitted bool        `json:"already_submitted,omitempty"`
}

// SubmissionFailedPayload 提交永久失败.
type SubmissionFailedPayload struct {
	Artifact ArtifactRef `json:"artifact"`
	Stage    string      `json:"stage,omitempty"` // 失败发生的阶段：upload/link/verify/finalize
	Error    string      `json:"error"`
}

// SubmissionQueuedPayload 瞬时故障入重试队列.
type SubmissionQueuedPayload struct {
	Artifact ArtifactRef `json:"artifact"`
	QueueID  uint        `json:"queue_id,omitempty"`
	Attempts int         `json:"attempts,omitempty"`
	Error    string      `json:"error,omitempty"`
}

// -------------------------- 重试队列领域 --------------------------

// RetryDrainedPayload 一轮排空的批次统计.
type RetryDrainedPayload struct {
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Requeued  int `json:"requeued"`
	Failed    int `json:"failed"`
}

// -------------------------- 科目映射领域 --------------------------

// MappingChangedPayload 科目映射被创建或更新.
type MappingChangedPayload struct {
	SubjectCode  string `json:"subject_code"`
	CourseID     int    `json:"course_id,omitempty"`
	AssignmentID int    `json:"assignment_id,omitempty"`
	Action       string `json:"action,omitempty"` // created/updated/deleted
}

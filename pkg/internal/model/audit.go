package model

import "time"

// 审计目标类型.
const (
	AuditTargetArtifact = "artifact"
	AuditTargetMapping  = "mapping"
	AuditTargetQueue    = "queue"
	AuditTargetAudit    = "audit" // 交叉引用另一条审计条目
)

// 审计类别.
const (
	AuditCategoryWorkflow = "workflow"
	AuditCategorySecurity = "security"
	AuditCategoryAdmin    = "admin"
)

// AuditLog 追加式审计日志，记录谁在何时对什么做了什么.
// 条目只追加，撤销/修正以新条目交叉引用旧条目（TargetType=audit）表达.
type AuditLog struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Actor    string `gorm:"size:64;index"  json:"actor"`
	ActorIP  string `gorm:"size:64"        json:"actor_ip,omitempty"`
	Action   string `gorm:"size:64;index"  json:"action"`
	Category string `gorm:"size:32;index"  json:"category"`

	// ArtifactID 关联的工件，无关联时为 NULL
	ArtifactID *uint `gorm:"index" json:"artifact_id,omitempty"`

	// TargetType + TargetID 构成交叉引用，可按目标聚合查询
	TargetType string `gorm:"size:32;index:idx_audit_target" json:"target_type"`
	TargetID   string `gorm:"size:64;index:idx_audit_target" json:"target_id"`
	Detail     string `gorm:"type:text" json:"detail,omitempty"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

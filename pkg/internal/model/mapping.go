package model

import "time"

// SubjectMapping 科目代码到远端课程/作业的映射.
// ExamSession 非空时覆盖默认的按月考期.
type SubjectMapping struct {
	ID           uint   `gorm:"primaryKey" json:"id"`
	SubjectCode  string `gorm:"size:10;uniqueIndex" json:"subject_code"`
	CourseID     int    `json:"course_id"`
	AssignmentID int    `json:"assignment_id"`
	ExamSession  string `gorm:"size:6" json:"exam_session,omitempty"`
	Active       bool   `gorm:"default:true;index" json:"active"`
	Remark       string `gorm:"size:512" json:"remark,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AllModels 返回所有需要迁移的模型.
func AllModels() []any {
	return []any{
		&Artifact{},
		&SubmissionQueue{},
		&AuditLog{},
		&SubjectMapping{},
	}
}

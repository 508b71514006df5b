// Package lms 封装与远端学习平台的交互.
// 对上层暴露窄接口，便于在测试中以假实现替换真实 HTTP 客户端.
package lms

import (
	"context"
	"io"
	"time"
)

// Credential 学生登录凭据.
type Credential struct {
	Username string
	Password string
}

// Identity 远端平台上的用户身份.
type Identity struct {
	UserID   int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"fullname,omitempty"`
	Email    string `json:"email,omitempty"`
}

// TargetStatus 提交目标（作业）的可用性.
type TargetStatus struct {
	AssignmentID int       `json:"assignment_id"`
	Open         bool      `json:"open"`
	DueDate      time.Time `json:"due_date"`
	CutoffDate   time.Time `json:"cutoff_date"`
}

// SubmissionStatus 远端提交状态快照.
type SubmissionStatus struct {
	SubmissionID  string `json:"submission_id,omitempty"`
	Status        string `json:"status"` // new/draft/submitted
	AttachedFiles int    `json:"attached_files"`
	CanFinalize   bool   `json:"can_finalize"`
}

// Submitted 返回远端是否已受理该提交.
func (s SubmissionStatus) Submitted() bool {
	return s.Status == "submitted"
}

// LinkResult 草稿挂接结果.
type LinkResult struct {
	Accepted bool     `json:"accepted"`
	Warnings []string `json:"warnings,omitempty"`
}

// Client 远端学习平台客户端.
type Client interface {
	// Authenticate 以学生凭据换取访问令牌.
	Authenticate(ctx context.Context, cred Credential) (string, error)

	// GetIdentity 按校内学号解析远端用户.
	GetIdentity(ctx context.Context, ownerIdentity string) (Identity, error)

	// UploadDraft 上传文件到用户草稿区，返回草稿项 ID.
	// draftItemID 非 nil 时复用已有草稿项（中断续传）.
	UploadDraft(ctx context.Context, token string, draftItemID *int64, fileName string, r io.Reader, size int64) (int64, error)

	// VerifyTarget 检查作业提交目标是否可用.
	VerifyTarget(ctx context.Context, assignmentID int) (TargetStatus, error)

	// LinkDraft 将草稿项挂接到作业提交.
	LinkDraft(ctx context.Context, token string, assignmentID int, draftItemID int64) (LinkResult, error)

	// GetSubmissionStatus 获取用户在指定作业下的提交状态.
	GetSubmissionStatus(ctx context.Context, assignmentID int, userID int64) (SubmissionStatus, error)

	// Finalize 将草稿提交定稿（提交评分）.
	Finalize(ctx context.Context, token string, assignmentID int) error

	// Close 释放客户端持有的连接资源.
	// 客户端按单次提交的生命周期获取，每条退出路径都应调用.
	Close() error
}

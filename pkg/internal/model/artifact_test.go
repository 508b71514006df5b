package model_test

import (
	"testing"

	"github.com/yeisme/exambridge/pkg/internal/model"
)

// TestCanTransition 测试状态机的合法与非法迁移.
func TestCanTransition(t *testing.T) {
	cases := []struct {
		from model.WorkflowStatus
		to   model.WorkflowStatus
		want bool
	}{
		{model.StatusPending, model.StatusValidated, true},
		{model.StatusPending, model.StatusUploading, true},
		{model.StatusValidated, model.StatusReadyForReview, true},
		{model.StatusUploading, model.StatusSubmitting, true},
		{model.StatusUploading, model.StatusUploading, true},   // 重试时复用草稿
		{model.StatusSubmitting, model.StatusSubmitting, true}, // 挂接落盘后崩溃恢复
		{model.StatusSubmitting, model.StatusCompleted, true},
		{model.StatusSubmitting, model.StatusQueued, true},
		{model.StatusQueued, model.StatusUploading, true},
		{model.StatusFailed, model.StatusPending, true},
		{model.StatusCompleted, model.StatusDeleted, true},

		{model.StatusCompleted, model.StatusPending, false}, // 已受理不可直接回退
		{model.StatusDeleted, model.StatusPending, false},   // 删除为终态
		{model.StatusPending, model.StatusCompleted, false}, // 不可跳过提交
		{model.StatusQueued, model.StatusCompleted, false},

		// 进度不回退，重置与重新上传只能走强制路径
		{model.StatusPendingReview, model.StatusPending, false},
		{model.StatusValidated, model.StatusPending, false},
		{model.StatusReadyForReview, model.StatusPending, false},
		{model.StatusUploading, model.StatusPending, false},
		{model.StatusSubmitting, model.StatusPending, false},
	}

	for _, c := range cases {
		if got := model.CanTransition(c.from, c.to); got != c.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

// TestIsTerminal 测试终态判断.
func TestIsTerminal(t *testing.T) {
	terminals := []model.WorkflowStatus{model.StatusCompleted, model.StatusFailed, model.StatusDeleted}
	for _, s := range terminals {
		if !s.IsTerminal() {
			t.Errorf("expected %s to be terminal", s)
		}
	}

	live := []model.WorkflowStatus{model.StatusPending, model.StatusUploading, model.StatusQueued}
	for _, s := range live {
		if s.IsTerminal() {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

// TestArtifact_AppendLog 测试活动日志追加与解析.
func TestArtifact_AppendLog(t *testing.T) {
	a := &model.Artifact{}

	a.AppendLog("created", "initial upload")
	a.AppendLog("re-uploaded", "")

	entries, err := a.LogEntries()
	if err != nil {
		t.Fatalf("parse log entries: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if entries[0].Event != "created" || entries[0].Detail != "initial upload" {
		t.Errorf("unexpected first entry: %+v", entries[0])
	}

	if entries[1].Event != "re-uploaded" {
		t.Errorf("unexpected second entry: %+v", entries[1])
	}

	if entries[0].At.IsZero() {
		t.Error("expected timestamp on log entry")
	}
}

// TestArtifact_Identity 测试身份三元组访问与释放.
func TestArtifact_Identity(t *testing.T) {
	owner, subject, period := "202412030156", "MATH101", "202506"
	txn := "abc123"

	a := &model.Artifact{
		TransactionID: &txn,
		OwnerIdentity: &owner,
		SubjectCode:   &subject,
		Period:        &period,
	}

	o, s, p, ok := a.Identity()
	if !ok {
		t.Fatal("expected identity to be present")
	}

	if o != owner || s != subject || p != period {
		t.Errorf("unexpected identity: %s %s %s", o, s, p)
	}

	a.ReleaseIdentity()

	if _, _, _, ok := a.Identity(); ok {
		t.Error("expected identity to be released")
	}

	if a.TransactionID != nil {
		t.Error("expected transaction id to be cleared")
	}
}

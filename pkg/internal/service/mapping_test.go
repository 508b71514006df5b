package service_test

import (
	"testing"

	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/service"
	"github.com/yeisme/exambridge/pkg/internal/types"
)

// TestMappingLifecycle 创建、解析、更新、删除的完整链路.
func TestMappingLifecycle(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewMappingService(ctx)

	m, err := svc.Create(ctx, "admin", &types.MappingRequest{
		SubjectCode:  "MATH101",
		CourseID:     12,
		AssignmentID: 301,
		ExamSession:  "202506",
	})
	if err != nil {
		t.Fatalf("create mapping: %v", err)
	}

	resolved, err := svc.ResolveTarget(ctx, "MATH101")
	if err != nil {
		t.Fatalf("resolve target: %v", err)
	}

	if resolved.AssignmentID != 301 || resolved.ExamSession != "202506" {
		t.Errorf("unexpected resolved mapping: %+v", resolved)
	}

	if _, err := svc.Update(ctx, "admin", m.ID, &types.MappingRequest{
		SubjectCode:  "MATH101",
		CourseID:     12,
		AssignmentID: 999,
	}); err != nil {
		t.Fatalf("update mapping: %v", err)
	}

	resolved, err = svc.ResolveTarget(ctx, "MATH101")
	if err != nil {
		t.Fatalf("resolve after update: %v", err)
	}

	if resolved.AssignmentID != 999 {
		t.Errorf("update not visible, assignment = %d", resolved.AssignmentID)
	}

	if err := svc.Delete(ctx, "admin", m.ID); err != nil {
		t.Fatalf("delete mapping: %v", err)
	}

	if _, err := svc.ResolveTarget(ctx, "MATH101"); !service.IsNotFound(err) {
		t.Errorf("expected NotFoundError after delete, got %v", err)
	}
}

// TestMappingDuplicateSubject 重复科目代码被拒绝.
func TestMappingDuplicateSubject(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewMappingService(ctx)

	req := &types.MappingRequest{SubjectCode: "PHYS202", CourseID: 1, AssignmentID: 2}

	if _, err := svc.Create(ctx, "admin", req); err != nil {
		t.Fatalf("create mapping: %v", err)
	}

	if _, err := svc.Create(ctx, "admin", req); !service.IsConflict(err) {
		t.Errorf("expected ConflictError on duplicate subject, got %v", err)
	}
}

// TestMappingInactiveNotResolved 停用的映射不参与解析.
func TestMappingInactiveNotResolved(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewMappingService(ctx)

	inactive := false
	if _, err := svc.Create(ctx, "admin", &types.MappingRequest{
		SubjectCode:  "CHEM110",
		CourseID:     3,
		AssignmentID: 4,
		Active:       &inactive,
	}); err != nil {
		t.Fatalf("create mapping: %v", err)
	}

	if _, err := svc.ResolveTarget(ctx, "CHEM110"); !service.IsNotFound(err) {
		t.Errorf("inactive mapping must not resolve, got %v", err)
	}
}

// TestMappingChangesAudited 映射变更写入 admin 类别审计.
func TestMappingChangesAudited(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewMappingService(ctx)

	if _, err := svc.Create(ctx, "ops@example.com", &types.MappingRequest{
		SubjectCode:  "BIO120",
		CourseID:     7,
		AssignmentID: 8,
	}); err != nil {
		t.Fatalf("create mapping: %v", err)
	}

	audits := service.NewAuditService(ctx)

	entries, err := audits.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}

	found := false

	for _, e := range entries {
		if e.Action == "mapping_created" && e.Category == model.AuditCategoryAdmin && e.Actor == "ops@example.com" {
			found = true
		}
	}

	if !found {
		t.Error("expected an admin audit entry for the mapping change")
	}
}

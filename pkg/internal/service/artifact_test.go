package service_test

import (
	"errors"
	"strings"
	"testing"

	ctxPkg "github.com/yeisme/exambridge/pkg/context"
	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/service"
	"github.com/yeisme/exambridge/pkg/internal/types"
)

// TestResolve_Idempotent 同一身份三元组重复解析必须命中同一行.
func TestResolve_Idempotent(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewArtifactService(ctx)

	first := seedArtifact(t, ctx, svc, "202412030156", "MATH101", "202506")

	second, reupload, err := svc.Resolve(ctx, service.ResolveInput{
		OwnerIdentity: "202412030156",
		SubjectCode:   "MATH101",
		Period:        "202506",
		RawFileName:   "202412030156_MATH101.pdf",
		FileName:      "202412030156_MATH101.pdf",
		Bucket:        "exam-scans",
		ObjectKey:     "scans/202506/202412030156/v2.pdf",
		Size:          4096,
		ContentType:   "application/pdf",
		Checksum:      "cafebabe",
	})
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}

	if !reupload {
		t.Error("expected second resolve to be flagged as re-upload")
	}

	if second.ID != first.ID {
		t.Errorf("expected same artifact row, got %d and %d", first.ID, second.ID)
	}

	if *second.TransactionID != *first.TransactionID {
		t.Error("transaction id must be deterministic")
	}

	if second.Status != model.StatusPending {
		t.Errorf("re-upload must reset status to PENDING, got %s", second.Status)
	}

	if second.Checksum != "cafebabe" || second.Size != 4096 {
		t.Error("re-upload must replace content refs")
	}

	entries, err := second.LogEntries()
	if err != nil {
		t.Fatalf("parse log: %v", err)
	}

	found := false

	for _, e := range entries {
		// 重置走统一迁移入口，日志须携带旧状态到新状态的记录
		if e.Event == "re-uploaded" && strings.Contains(e.Detail, "-> PENDING") {
			found = true
		}
	}

	if !found {
		t.Error("expected re-uploaded log entry recording the status transition")
	}

	// 不产生重复行
	mgr := ctxPkg.GetManager(ctx)

	var count int64
	if err := mgr.GetDBClient().Model(&model.Artifact{}).Count(&count).Error; err != nil {
		t.Fatalf("count artifacts: %v", err)
	}

	if count != 1 {
		t.Errorf("expected 1 artifact row, got %d", count)
	}
}

// TestResolve_ReuploadInvalidatesDraft 重新上传后旧草稿项不可复用.
func TestResolve_ReuploadInvalidatesDraft(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewArtifactService(ctx)

	a := seedArtifact(t, ctx, svc, "202412030156", "MATH101", "202506")

	if err := svc.MarkSubmitting(ctx, a, 777); err != nil {
		t.Fatalf("mark submitting: %v", err)
	}

	second, _, err := svc.Resolve(ctx, service.ResolveInput{
		OwnerIdentity: "202412030156",
		SubjectCode:   "MATH101",
		Period:        "202506",
		FileName:      "v2.pdf",
		ObjectKey:     "scans/202506/202412030156/v2.pdf",
		Size:          1024,
		Checksum:      "aa",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if second.DraftItemID != nil {
		t.Error("re-upload must clear the persisted draft item id")
	}
}

// TestResolve_PeriodChangeConflict 期次变化不拆分逻辑工件：
// 同一 owner/subject 的存活行在新期次下照样拒绝，不产生第二个存活工件.
func TestResolve_PeriodChangeConflict(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewArtifactService(ctx)

	seedArtifact(t, ctx, svc, "202412030156", "MATH101", "202506")

	_, _, err := svc.Resolve(ctx, service.ResolveInput{
		OwnerIdentity: "202412030156",
		SubjectCode:   "MATH101",
		Period:        "202507",
		FileName:      "rollover.pdf",
	})
	if !service.IsConflict(err) {
		t.Fatalf("expected ConflictError for a live owner/subject pair, got %v", err)
	}

	mgr := ctxPkg.GetManager(ctx)

	var count int64
	if err := mgr.GetDBClient().Model(&model.Artifact{}).
		Where("owner_identity IS NOT NULL").Count(&count).Error; err != nil {
		t.Fatalf("count live artifacts: %v", err)
	}

	if count != 1 {
		t.Errorf("expected a single live artifact per owner/subject, got %d", count)
	}
}

// TestResolve_LiveConflict 同身份但幂等键不同的存活行必须拒绝.
func TestResolve_LiveConflict(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewArtifactService(ctx)
	mgr := ctxPkg.GetManager(ctx)

	// 遗留数据：身份相同但幂等键是旧算法产物
	owner, subject, period := "202412030156", "PHYS202", "202506"
	legacyTxn := "legacy00000000000000000000000000"
	legacy := &model.Artifact{
		UUID:          "legacy-uuid",
		TransactionID: &legacyTxn,
		OwnerIdentity: &owner,
		SubjectCode:   &subject,
		Period:        &period,
		Status:        model.StatusPending,
	}
	if err := mgr.GetDBClient().Create(legacy).Error; err != nil {
		t.Fatalf("seed legacy artifact: %v", err)
	}

	_, _, err := svc.Resolve(ctx, service.ResolveInput{
		OwnerIdentity: owner,
		SubjectCode:   subject,
		Period:        period,
		FileName:      "dup.pdf",
	})
	if !service.IsConflict(err) {
		t.Fatalf("expected ConflictError, got %v", err)
	}
}

// TestResolve_DeletedReleasesIdentity 已删除行的陈旧身份让位给新建.
func TestResolve_DeletedReleasesIdentity(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewArtifactService(ctx)
	mgr := ctxPkg.GetManager(ctx)

	owner, subject, period := "202412030156", "CHEM110", "202506"
	staleTxn := "stale00000000000000000000000000a"
	stale := &model.Artifact{
		UUID:          "stale-uuid",
		TransactionID: &staleTxn,
		OwnerIdentity: &owner,
		SubjectCode:   &subject,
		Period:        &period,
		Status:        model.StatusDeleted,
	}
	if err := mgr.GetDBClient().Create(stale).Error; err != nil {
		t.Fatalf("seed deleted artifact: %v", err)
	}

	a, reupload, err := svc.Resolve(ctx, service.ResolveInput{
		OwnerIdentity: owner,
		SubjectCode:   subject,
		Period:        period,
		FileName:      "fresh.pdf",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if reupload {
		t.Error("expected a fresh row, not a re-upload")
	}

	if a.ID == stale.ID {
		t.Error("expected a new artifact row")
	}

	var old model.Artifact
	if err := mgr.GetDBClient().First(&old, stale.ID).Error; err != nil {
		t.Fatalf("load stale row: %v", err)
	}

	if old.TransactionID != nil || old.OwnerIdentity != nil {
		t.Error("deleted row must have released its identity")
	}
}

// TestSoftDelete_AllowsReupload 软删除释放身份后同一身份可重新入库.
func TestSoftDelete_AllowsReupload(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewArtifactService(ctx)

	first := seedArtifact(t, ctx, svc, "202412030156", "MATH101", "202506")

	if err := svc.SoftDelete(ctx, "admin", first.ID, "scanned wrong document"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	second := seedArtifact(t, ctx, svc, "202412030156", "MATH101", "202506")

	if second.ID == first.ID {
		t.Error("expected a new artifact row after delete")
	}

	deleted, err := svc.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("load deleted: %v", err)
	}

	if deleted.Status != model.StatusDeleted {
		t.Errorf("expected DELETED, got %s", deleted.Status)
	}

	if _, _, _, ok := deleted.Identity(); ok {
		t.Error("deleted artifact must not retain its identity tuple")
	}
}

// TestSupersede 替换操作新建一行并在旧行记录 superseded_by.
func TestSupersede(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewArtifactService(ctx)

	old := seedArtifact(t, ctx, svc, "202412030156", "MATH101", "202506")

	replacement, err := svc.Supersede(ctx, "admin", old.ID, &types.SupersedeRequest{
		OwnerIdentity: "202412030156",
		SubjectCode:   "MATH102",
		Reason:        "subject code typo",
	})
	if err != nil {
		t.Fatalf("supersede: %v", err)
	}

	if replacement.Status != model.StatusPending {
		t.Errorf("replacement should start PENDING, got %s", replacement.Status)
	}

	if _, subject, _, _ := replacement.Identity(); subject != "MATH102" {
		t.Errorf("expected corrected subject, got %s", subject)
	}

	retired, err := svc.Get(ctx, old.ID)
	if err != nil {
		t.Fatalf("load retired: %v", err)
	}

	if retired.Status != model.StatusDeleted {
		t.Errorf("retired artifact should be DELETED, got %s", retired.Status)
	}

	if retired.SupersededBy == nil || *retired.SupersededBy != replacement.ID {
		t.Error("retired artifact must record superseded_by")
	}

	if _, _, _, ok := retired.Identity(); ok {
		t.Error("retired artifact must release its identity")
	}
}

// TestReset 管理员重置清除错误并回到 PENDING.
func TestReset(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewArtifactService(ctx)

	a := seedArtifact(t, ctx, svc, "202412030156", "MATH101", "202506")

	if _, err := svc.MarkFailed(ctx, a, errors.New("rejected content"), false); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	reset, err := svc.Reset(ctx, "admin", a.ID, "operator verified the scan")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}

	if reset.Status != model.StatusPending {
		t.Errorf("expected PENDING after reset, got %s", reset.Status)
	}

	if reset.LastError != "" {
		t.Error("reset must clear last error")
	}
}

// TestMarkFailed_Transient 瞬时失败转 QUEUED 并创建一条重试条目.
func TestMarkFailed_Transient(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewArtifactService(ctx)

	a := seedArtifact(t, ctx, svc, "202412030156", "MATH101", "202506")

	item, err := svc.MarkFailed(ctx, a, errors.New("connection refused"), true)
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if a.Status != model.StatusQueued {
		t.Errorf("expected QUEUED, got %s", a.Status)
	}

	if item.Status != model.QueueQueued {
		t.Errorf("expected queue item QUEUED, got %s", item.Status)
	}

	if item.Attempts != 0 {
		t.Errorf("fresh queue item must start at 0 attempts, got %d", item.Attempts)
	}

	if item.ArtifactID != a.ID {
		t.Error("queue item must reference the artifact")
	}
}

// TestStatusMonotonic 非管理员路径上状态不回退.
func TestStatusMonotonic(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewArtifactService(ctx)

	a := seedArtifact(t, ctx, svc, "202412030156", "MATH101", "202506")

	if err := svc.MarkSubmitting(ctx, a, 555); err != nil {
		t.Fatalf("mark submitting: %v", err)
	}

	if _, err := svc.MarkSubmitted(ctx, a, "9001"); err == nil {
		t.Error("UPLOADING -> COMPLETED must be rejected without the link step")
	}
}

// TestMarkSubmitted 完成时生成跨系统对账用的事务日志 ID.
func TestMarkSubmitted(t *testing.T) {
	ctx := newTestContext(t)
	svc := service.NewArtifactService(ctx)
	mgr := ctxPkg.GetManager(ctx)

	a := seedArtifact(t, ctx, svc, "202412030156", "MATH101", "202506")

	if err := svc.MarkSubmitting(ctx, a, 555); err != nil {
		t.Fatalf("mark submitting: %v", err)
	}

	if err := mgr.GetDBClient().Model(a).Update("status", model.StatusSubmitting).Error; err != nil {
		t.Fatalf("force submitting: %v", err)
	}

	a.Status = model.StatusSubmitting

	txnLogID, err := svc.MarkSubmitted(ctx, a, "9001")
	if err != nil {
		t.Fatalf("mark submitted: %v", err)
	}

	if !strings.HasPrefix(txnLogID, "TXN_"+a.UUID+"_") {
		t.Errorf("unexpected transaction log id: %s", txnLogID)
	}

	if a.Status != model.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", a.Status)
	}

	if a.CompletedAt == nil || a.SubmittedAt == nil {
		t.Error("completion timestamps must be set")
	}
}

// TestComputeTransactionID 幂等键确定且与输入顺序相关.
func TestComputeTransactionID(t *testing.T) {
	a := service.ComputeTransactionID("202412030156", "MATH101", "202506")
	b := service.ComputeTransactionID("202412030156", "MATH101", "202506")
	c := service.ComputeTransactionID("202412030156", "MATH101", "202507")

	if a != b {
		t.Error("same tuple must yield same transaction id")
	}

	if a == c {
		t.Error("different period must yield different transaction id")
	}

	if len(a) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(a))
	}
}

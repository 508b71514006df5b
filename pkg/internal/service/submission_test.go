package service_test

import (
	"context"
	"errors"
	"io"
	"testing"

	ctxPkg "github.com/yeisme/exambridge/pkg/context"
	"github.com/yeisme/exambridge/pkg/internal/lms"
	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/service"
	"github.com/yeisme/exambridge/pkg/internal/types"
)

// fakeLMSClient 假远端客户端，逐方法可注入返回值并记录调用.
type fakeLMSClient struct {
	authErr     error
	identity    lms.Identity
	identityErr error

	uploadItemID int64
	uploadErr    error
	uploadCalls  int

	target    lms.TargetStatus
	targetErr error

	linkErr error

	status    lms.SubmissionStatus
	statusErr error

	finalizeErr   error
	finalizeCalls int

	authCalls int
	closed    bool
}

func (f *fakeLMSClient) Authenticate(ctx context.Context, cred lms.Credential) (string, error) {
	f.authCalls++

	if f.authErr != nil {
		return "", f.authErr
	}

	return "student-token", nil
}

func (f *fakeLMSClient) GetIdentity(ctx context.Context, ownerIdentity string) (lms.Identity, error) {
	return f.identity, f.identityErr
}

func (f *fakeLMSClient) UploadDraft(ctx context.Context, token string, draftItemID *int64, fileName string, r io.Reader, size int64) (int64, error) {
	f.uploadCalls++

	return f.uploadItemID, f.uploadErr
}

func (f *fakeLMSClient) VerifyTarget(ctx context.Context, assignmentID int) (lms.TargetStatus, error) {
	return f.target, f.targetErr
}

func (f *fakeLMSClient) LinkDraft(ctx context.Context, token string, assignmentID int, draftItemID int64) (lms.LinkResult, error) {
	if f.linkErr != nil {
		return lms.LinkResult{}, f.linkErr
	}

	return lms.LinkResult{Accepted: true}, nil
}

func (f *fakeLMSClient) GetSubmissionStatus(ctx context.Context, assignmentID int, userID int64) (lms.SubmissionStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeLMSClient) Finalize(ctx context.Context, token string, assignmentID int) error {
	f.finalizeCalls++

	return f.finalizeErr
}

func (f *fakeLMSClient) Close() error {
	f.closed = true

	return nil
}

// happyFake 返回一个走通全部协议步骤的假客户端.
func happyFake() *fakeLMSClient {
	return &fakeLMSClient{
		identity:     lms.Identity{UserID: 77, Username: "student1"},
		uploadItemID: 123456,
		target:       lms.TargetStatus{AssignmentID: 301, Open: true},
		status: lms.SubmissionStatus{
			SubmissionID:  "9001",
			Status:        "draft",
			AttachedFiles: 1,
			CanFinalize:   true,
		},
	}
}

// submissionFixture 植入工件、映射与带假客户端的提交服务.
// 工件预置草稿项，协议从复用草稿开始，避免触达对象存储.
func submissionFixture(t *testing.T, fake *fakeLMSClient) (context.Context, *service.ArtifactService, *service.SubmissionService, *model.Artifact) {
	t.Helper()

	ctx := newTestContext(t)
	artifacts := service.NewArtifactService(ctx)
	mappings := service.NewMappingService(ctx)

	if _, err := mappings.Create(ctx, "admin", &types.MappingRequest{
		SubjectCode:  "MATH101",
		CourseID:     12,
		AssignmentID: 301,
	}); err != nil {
		t.Fatalf("create mapping: %v", err)
	}

	a := seedArtifact(t, ctx, artifacts, "202412030156", "MATH101", "202506")

	if err := artifacts.MarkSubmitting(ctx, a, 123456); err != nil {
		t.Fatalf("persist draft item: %v", err)
	}

	subs := service.NewSubmissionService(ctx).
		WithClientFactory(func() lms.Client { return fake })

	return ctx, artifacts, subs, a
}

var studentCred = lms.Credential{Username: "student1", Password: "pw"}

// TestSubmit_Success 完整协议成功，含条件最终化.
func TestSubmit_Success(t *testing.T) {
	ctx, artifacts, subs, a := submissionFixture(t, happyFake())

	result, err := subs.Submit(ctx, a.ID, "202412030156", studentCred, true)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}

	if result.SubmissionID != "9001" {
		t.Errorf("unexpected submission id: %s", result.SubmissionID)
	}

	if !result.Finalized || result.FinalizeSkipped {
		t.Error("expected finalize to run when remote requires it")
	}

	if result.TransactionLogID == "" {
		t.Error("expected transaction log id")
	}

	got, err := artifacts.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("reload artifact: %v", err)
	}

	if got.Status != model.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", got.Status)
	}

	if got.SubmissionID == nil || *got.SubmissionID != "9001" {
		t.Error("remote submission id must be persisted")
	}
}

// TestSubmit_Ownership 归属不匹配：拒绝、状态不动、security 审计.
func TestSubmit_Ownership(t *testing.T) {
	fake := happyFake()
	ctx, artifacts, subs, a := submissionFixture(t, fake)

	_, err := subs.Submit(ctx, a.ID, "209900000001", studentCred, true)
	if !service.IsAuthorization(err) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}

	got, _ := artifacts.Get(ctx, a.ID)
	if got.Status != model.StatusUploading {
		t.Errorf("status must be unchanged, got %s", got.Status)
	}

	if fake.authCalls != 0 || fake.uploadCalls != 0 {
		t.Error("no external call may be made on an ownership mismatch")
	}

	audits := service.NewAuditService(ctx)

	entries, err := audits.ListForArtifact(ctx, a.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}

	found := false

	for _, e := range entries {
		if e.Category == model.AuditCategorySecurity && e.Action == "submission_denied" {
			found = true
		}
	}

	if !found {
		t.Error("expected a security audit entry")
	}
}

// TestSubmit_AlreadySubmitted 已受理的工件短路成功.
func TestSubmit_AlreadySubmitted(t *testing.T) {
	fake := happyFake()
	ctx, artifacts, subs, a := submissionFixture(t, fake)

	if _, err := subs.Submit(ctx, a.ID, "202412030156", studentCred, true); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	result, err := subs.Submit(ctx, a.ID, "202412030156", studentCred, true)
	if err != nil {
		t.Fatalf("second submit: %v", err)
	}

	if !result.AlreadySubmitted || !result.Success {
		t.Errorf("expected already-submitted short circuit, got %+v", result)
	}

	if fake.authCalls != 1 {
		t.Errorf("second submit must not touch the remote, auth calls = %d", fake.authCalls)
	}

	got, _ := artifacts.Get(ctx, a.ID)
	if got.Attempts != 0 {
		t.Error("short circuit must not count as an attempt")
	}
}

// TestSubmit_NoMapping 缺失科目映射：硬失败、状态不动、不触达远端.
func TestSubmit_NoMapping(t *testing.T) {
	fake := happyFake()
	ctx := newTestContext(t)
	artifacts := service.NewArtifactService(ctx)
	a := seedArtifact(t, ctx, artifacts, "202412030156", "NOMAP1", "202506")

	subs := service.NewSubmissionService(ctx).
		WithClientFactory(func() lms.Client { return fake })

	result, err := subs.Submit(ctx, a.ID, "202412030156", studentCred, true)
	if !service.IsPermanentExternal(err) {
		t.Fatalf("expected PermanentExternalError, got %v", err)
	}

	if result.Message != "No assignment mapping found for subject NOMAP1" {
		t.Errorf("unexpected message: %s", result.Message)
	}

	got, _ := artifacts.Get(ctx, a.ID)
	if got.Status != model.StatusPending {
		t.Errorf("status must be unchanged, got %s", got.Status)
	}

	if fake.authCalls != 0 || fake.uploadCalls != 0 {
		t.Error("no external call may be made without a mapping")
	}
}

// TestSubmit_ZeroAttachedFiles 挂接成功但复核零附件：FAILED，不入重试队列.
func TestSubmit_ZeroAttachedFiles(t *testing.T) {
	fake := happyFake()
	fake.status = lms.SubmissionStatus{SubmissionID: "9001", Status: "draft", AttachedFiles: 0}

	ctx, artifacts, subs, a := submissionFixture(t, fake)

	_, err := subs.Submit(ctx, a.ID, "202412030156", studentCred, true)
	if !service.IsPermanentExternal(err) {
		t.Fatalf("expected PermanentExternalError, got %v", err)
	}

	got, _ := artifacts.Get(ctx, a.ID)
	if got.Status != model.StatusFailed {
		t.Errorf("zero attached files must yield FAILED, got %s", got.Status)
	}

	mgr := ctxPkg.GetManager(ctx)

	var count int64
	if err := mgr.GetDBClient().Model(&model.SubmissionQueue{}).Count(&count).Error; err != nil {
		t.Fatalf("count queue: %v", err)
	}

	if count != 0 {
		t.Error("permanent failure must not create a retry queue item")
	}
}

// TestSubmit_TransientFailure 超时类错误：QUEUED，恰好一条重试条目.
func TestSubmit_TransientFailure(t *testing.T) {
	fake := happyFake()
	fake.targetErr = errors.New("dial tcp: i/o timeout")

	ctx, artifacts, subs, a := submissionFixture(t, fake)

	result, err := subs.Submit(ctx, a.ID, "202412030156", studentCred, true)
	if !service.IsTransientExternal(err) {
		t.Fatalf("expected TransientExternalError, got %v", err)
	}

	if !result.Queued {
		t.Error("result must report queuing")
	}

	got, _ := artifacts.Get(ctx, a.ID)
	if got.Status != model.StatusQueued {
		t.Errorf("expected QUEUED, got %s", got.Status)
	}

	mgr := ctxPkg.GetManager(ctx)

	var items []model.SubmissionQueue
	if err := mgr.GetDBClient().Find(&items).Error; err != nil {
		t.Fatalf("load queue: %v", err)
	}

	if len(items) != 1 {
		t.Fatalf("expected exactly one queue item, got %d", len(items))
	}

	if items[0].Status != model.QueueQueued || items[0].Attempts != 0 {
		t.Errorf("unexpected queue item: %+v", items[0])
	}
}

// TestSubmit_FinalizeSkipped 远端不要求显式定稿时跳过并记录决策.
func TestSubmit_FinalizeSkipped(t *testing.T) {
	fake := happyFake()
	fake.status.CanFinalize = false

	ctx, artifacts, subs, a := submissionFixture(t, fake)

	result, err := subs.Submit(ctx, a.ID, "202412030156", studentCred, true)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}

	if !result.Success || !result.FinalizeSkipped || result.Finalized {
		t.Errorf("expected skipped finalize, got %+v", result)
	}

	if fake.finalizeCalls != 0 {
		t.Error("finalize must not be called when remote reports it unnecessary")
	}

	got, _ := artifacts.Get(ctx, a.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("skipped finalize still completes, got %s", got.Status)
	}

	entries, _ := got.LogEntries()

	found := false

	for _, e := range entries {
		if e.Event == "finalize_skipped" {
			found = true
		}
	}

	if !found {
		t.Error("the skip decision must be logged on the artifact")
	}
}

// TestSubmit_DraftReuse 已持久化的草稿项复用，不重复上传.
func TestSubmit_DraftReuse(t *testing.T) {
	fake := happyFake()
	ctx, _, subs, a := submissionFixture(t, fake)

	if _, err := subs.Submit(ctx, a.ID, "202412030156", studentCred, true); err != nil {
		t.Fatalf("submit: %v", err)
	}

	if fake.uploadCalls != 0 {
		t.Errorf("expected draft reuse without re-upload, got %d upload calls", fake.uploadCalls)
	}

	if !fake.closed {
		t.Error("client must be released on exit")
	}
}

// TestSubmit_ResumeAfterLink 挂接写入 SUBMITTING 后崩溃的工件可恢复并完成.
func TestSubmit_ResumeAfterLink(t *testing.T) {
	fake := happyFake()
	ctx, artifacts, subs, a := submissionFixture(t, fake)

	// 模拟挂接落盘之后、完成之前的进程崩溃
	mgr := ctxPkg.GetManager(ctx)
	if err := mgr.GetDBClient().Model(a).Update("status", model.StatusSubmitting).Error; err != nil {
		t.Fatalf("force submitting: %v", err)
	}

	result, err := subs.Submit(ctx, a.ID, "202412030156", studentCred, true)
	if err != nil {
		t.Fatalf("resume submit: %v", err)
	}

	if !result.Success {
		t.Fatalf("expected success, got %+v", result)
	}

	if fake.uploadCalls != 0 {
		t.Errorf("resume must reuse the persisted draft, got %d upload calls", fake.uploadCalls)
	}

	got, err := artifacts.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("reload artifact: %v", err)
	}

	if got.Status != model.StatusCompleted {
		t.Errorf("expected COMPLETED after resume, got %s", got.Status)
	}
}

// TestProbeRemote 远端状态探查只读不写.
func TestProbeRemote(t *testing.T) {
	fake := happyFake()
	ctx, artifacts, subs, a := submissionFixture(t, fake)

	status, err := subs.ProbeRemote(ctx, a.ID)
	if err != nil {
		t.Fatalf("probe remote: %v", err)
	}

	if status.SubmissionID != "9001" || status.AttachedFiles != 1 {
		t.Errorf("unexpected remote snapshot: %+v", status)
	}

	if !fake.closed {
		t.Error("probe must release the client")
	}

	got, _ := artifacts.Get(ctx, a.ID)
	if got.Status != model.StatusUploading {
		t.Errorf("probe must not touch workflow status, got %s", got.Status)
	}
}

// TestSubmit_ClientReleasedOnFailure 失败路径同样释放客户端.
func TestSubmit_ClientReleasedOnFailure(t *testing.T) {
	fake := happyFake()
	fake.authErr = errors.New("invalid login")

	ctx, _, subs, a := submissionFixture(t, fake)

	if _, err := subs.Submit(ctx, a.ID, "202412030156", studentCred, true); err == nil {
		t.Fatal("expected auth failure")
	}

	if !fake.closed {
		t.Error("client must be released on the failure path")
	}
}

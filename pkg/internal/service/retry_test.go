package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	ctxPkg "github.com/yeisme/exambridge/pkg/context"
	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/service"
)

// retryFixture 先用瞬时故障走一次提交，制造 QUEUED 工件与队列条目，
// 再返回绑定同一假客户端的重试服务.
func retryFixture(t *testing.T, fake *fakeLMSClient) (context.Context, *service.ArtifactService, *service.RetryService, *model.Artifact) {
	t.Helper()

	fake.targetErr = errors.New("dial tcp: i/o timeout")

	ctx, artifacts, subs, a := submissionFixture(t, fake)

	if _, err := subs.Submit(ctx, a.ID, "202412030156", studentCred, true); !service.IsTransientExternal(err) {
		t.Fatalf("expected transient failure to seed the queue, got %v", err)
	}

	retry := service.NewRetryService(ctx).WithSubmissionService(subs)

	return ctx, artifacts, retry, a
}

// TestDrain_Success 故障恢复后排空：条目归档，工件完成.
func TestDrain_Success(t *testing.T) {
	fake := happyFake()
	ctx, artifacts, retry, a := retryFixture(t, fake)

	fake.targetErr = nil

	stats, err := retry.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if stats.Processed != 1 || stats.Succeeded != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	got, _ := artifacts.Get(ctx, a.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("expected COMPLETED after redrive, got %s", got.Status)
	}

	items, err := retry.List(ctx, 10)
	if err != nil {
		t.Fatalf("list queue: %v", err)
	}

	if len(items) != 1 || items[0].Status != model.QueueCompleted {
		t.Errorf("expected archived queue item, got %+v", items)
	}

	if items[0].ProcessedAt == nil {
		t.Error("processed_at must be set on completion")
	}
}

// TestDrain_Requeue 持续瞬时故障：条目带退避放回队列，下一轮受时间闸门拦截.
func TestDrain_Requeue(t *testing.T) {
	fake := happyFake()
	ctx, artifacts, retry, a := retryFixture(t, fake)

	stats, err := retry.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if stats.Processed != 1 || stats.Requeued != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	items, _ := retry.List(ctx, 10)
	if len(items) != 1 {
		t.Fatalf("expected a single item, got %d", len(items))
	}

	item := items[0]
	if item.Status != model.QueueQueued || item.Attempts != 1 {
		t.Errorf("unexpected item after requeue: %+v", item)
	}

	if item.NextRetryAt == nil || !item.NextRetryAt.After(time.Now().UTC()) {
		t.Error("requeued item must carry a future next_retry_at")
	}

	got, _ := artifacts.Get(ctx, a.ID)
	if got.Status != model.StatusQueued {
		t.Errorf("artifact must stay QUEUED, got %s", got.Status)
	}

	// 退避未到期，第二轮不得取到该条目
	stats, err = retry.Drain(ctx)
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}

	if stats.Processed != 0 {
		t.Errorf("backoff gate must hold the item back, processed %d", stats.Processed)
	}
}

// TestDrain_Exhaustion 重试耗尽：条目与工件一起进入终态 FAILED.
func TestDrain_Exhaustion(t *testing.T) {
	fake := happyFake()
	ctx, artifacts, retry, a := retryFixture(t, fake)

	mgr := ctxPkg.GetManager(ctx)
	if err := mgr.GetDBClient().
		Model(&model.SubmissionQueue{}).
		Where("artifact_id = ?", a.ID).
		Update("max_retries", 1).Error; err != nil {
		t.Fatalf("lower max retries: %v", err)
	}

	stats, err := retry.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if stats.Processed != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	items, _ := retry.List(ctx, 10)
	if len(items) != 1 || items[0].Status != model.QueueFailed {
		t.Errorf("expected exhausted item, got %+v", items)
	}

	got, _ := artifacts.Get(ctx, a.ID)
	if got.Status != model.StatusFailed {
		t.Errorf("exhaustion must fail the artifact, got %s", got.Status)
	}

	// 终态条目不再被后续排空取到
	stats, err = retry.Drain(ctx)
	if err != nil {
		t.Fatalf("second drain: %v", err)
	}

	if stats.Processed != 0 {
		t.Errorf("failed item must not be drained again, processed %d", stats.Processed)
	}
}

// TestDrain_BatchIsolation 单条损坏条目不拖累同批其余条目.
func TestDrain_BatchIsolation(t *testing.T) {
	fake := happyFake()
	ctx, artifacts, retry, a := retryFixture(t, fake)

	fake.targetErr = nil

	// 指向不存在工件的条目排在更早的队首位置
	mgr := ctxPkg.GetManager(ctx)
	broken := &model.SubmissionQueue{
		ArtifactID: 99999,
		Status:     model.QueueQueued,
		QueuedAt:   time.Now().UTC().Add(-time.Hour),
	}

	if err := mgr.GetDBClient().Create(broken).Error; err != nil {
		t.Fatalf("seed broken item: %v", err)
	}

	stats, err := retry.Drain(ctx)
	if err != nil {
		t.Fatalf("drain: %v", err)
	}

	if stats.Processed != 2 || stats.Succeeded != 1 || stats.Failed != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	got, _ := artifacts.Get(ctx, a.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("healthy item must complete despite the broken one, got %s", got.Status)
	}

	var reloaded model.SubmissionQueue
	if err := mgr.GetDBClient().First(&reloaded, broken.ID).Error; err != nil {
		t.Fatalf("reload broken item: %v", err)
	}

	if reloaded.Status != model.QueueFailed {
		t.Errorf("broken item must be failed, got %s", reloaded.Status)
	}
}

// TestRequeueStale 崩溃遗留的 PROCESSING 条目被回收放回队列.
func TestRequeueStale(t *testing.T) {
	fake := happyFake()
	ctx, _, retry, a := retryFixture(t, fake)

	mgr := ctxPkg.GetManager(ctx)

	stale := time.Now().UTC().Add(-2 * time.Hour)
	if err := mgr.GetDBClient().
		Model(&model.SubmissionQueue{}).
		Where("artifact_id = ?", a.ID).
		UpdateColumns(map[string]any{
			"status":     model.QueueProcessing,
			"updated_at": stale,
		}).Error; err != nil {
		t.Fatalf("simulate stale item: %v", err)
	}

	count, err := retry.RequeueStale(ctx)
	if err != nil {
		t.Fatalf("requeue stale: %v", err)
	}

	if count != 1 {
		t.Fatalf("expected one requeued item, got %d", count)
	}

	items, _ := retry.List(ctx, 10)
	if len(items) != 1 || items[0].Status != model.QueueQueued {
		t.Errorf("stale item must be back in the queue, got %+v", items)
	}
}

// TestSubmitForRetry_NoDuplicateItems 重放的瞬时失败不得新建队列条目.
func TestSubmitForRetry_NoDuplicateItems(t *testing.T) {
	fake := happyFake()
	ctx, _, retry, _ := retryFixture(t, fake)

	if _, err := retry.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	depth, err := retry.Depth(ctx)
	if err != nil {
		t.Fatalf("depth: %v", err)
	}

	if depth != 1 {
		t.Errorf("redrive must reuse the existing item, depth = %d", depth)
	}

	var count int64
	if err := ctxPkg.GetManager(ctx).GetDBClient().
		Model(&model.SubmissionQueue{}).
		Count(&count).Error; err != nil {
		t.Fatalf("count items: %v", err)
	}

	if count != 1 {
		t.Errorf("expected exactly one queue item overall, got %d", count)
	}
}

// TestSubmitForRetry_ElevatedToken 重放跳过交互式认证，使用管理员令牌.
func TestSubmitForRetry_ElevatedToken(t *testing.T) {
	fake := happyFake()
	ctx, artifacts, retry, a := retryFixture(t, fake)

	fake.targetErr = nil

	if _, err := retry.Drain(ctx); err != nil {
		t.Fatalf("drain: %v", err)
	}

	// 初次提交认证一次，重放不再认证
	if fake.authCalls != 1 {
		t.Errorf("redrive must not authenticate interactively, auth calls = %d", fake.authCalls)
	}

	got, _ := artifacts.Get(ctx, a.ID)
	if got.Status != model.StatusCompleted {
		t.Errorf("expected COMPLETED, got %s", got.Status)
	}
}

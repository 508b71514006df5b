package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/exambridge/pkg/configs"
	ctxPkg "github.com/yeisme/exambridge/pkg/context"
	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/storage/db"
	"github.com/yeisme/exambridge/pkg/internal/storage/mq"
	"github.com/yeisme/exambridge/pkg/internal/types"
	nlog "github.com/yeisme/exambridge/pkg/log"
	"github.com/yeisme/exambridge/pkg/metrics"
	"github.com/yeisme/exambridge/pkg/queue"
)

// requeueBackoff 重试条目再次入队的线性退避步长.
const requeueBackoff = 5 * time.Minute

// RetryService 排空重试队列，逐条重放提交工作流.
type RetryService struct {
	dbClient    *db.Client
	mqClient    *mq.Client
	artifacts   *ArtifactService
	submissions *SubmissionService
	cfg         configs.RetryConfig
}

func NewRetryService(c context.Context) *RetryService {
	return &RetryService{
		dbClient:    ctxPkg.GetDBClient(c),
		mqClient:    ctxPkg.GetMQClient(c),
		artifacts:   NewArtifactService(c),
		submissions: NewSubmissionService(c),
		cfg:         configs.GetConfig().Retry,
	}
}

// WithSubmissionService 替换提交服务，测试时注入带假客户端的实例.
func (s *RetryService) WithSubmissionService(sub *SubmissionService) *RetryService {
	s.submissions = sub

	return s
}

// Drain 排空一批重试条目.
// 批量有界，按优先级降序、入队时间升序取批；条目间严格串行，
// 单条失败不影响批内其余条目.
func (s *RetryService) Drain(ctx context.Context) (types.DrainStats, error) {
	var stats types.DrainStats

	now := time.Now().UTC()

	var items []model.SubmissionQueue
	if err := s.dbClient.WithContext(ctx).
		Where("status = ?", model.QueueQueued).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("priority desc, queued_at asc").
		Limit(s.cfg.BatchSize).
		Find(&items).Error; err != nil {
		return stats, &InternalError{Err: fmt.Errorf("load retry batch: %w", err)}
	}

	for i := range items {
		stats.Processed++
		s.processItem(ctx, &items[i], &stats)
	}

	s.refreshDepthGauge(ctx)

	if stats.Processed > 0 {
		payload := queue.RetryDrainedPayload{
			Processed: stats.Processed,
			Succeeded: stats.Succeeded,
			Requeued:  stats.Requeued,
			Failed:    stats.Failed,
		}

		publishEvent(s.mqClient, func(pub message.Publisher) error {
			msg, err := queue.NewWatermillMessage(queue.TopicRetryDrained, payload)
			if err != nil {
				return err
			}

			return pub.Publish(queue.TopicRetryDrained, msg)
		})
	}

	return stats, nil
}

// processItem 处理单个条目，任何失败都只影响该条目自身.
func (s *RetryService) processItem(ctx context.Context, item *model.SubmissionQueue, stats *types.DrainStats) {
	// 标记处理中，防止并发排空重复触碰同一工件
	item.Status = model.QueueProcessing
	if err := s.dbClient.WithContext(ctx).Save(item).Error; err != nil {
		nlog.Logger().Error().Err(err).Uint("queue_id", item.ID).Msg("mark queue item processing failed")
		stats.Failed++

		return
	}

	result, err := s.submissions.SubmitForRetry(ctx, item.ArtifactID)
	now := time.Now().UTC()

	switch {
	case err == nil && result.Success:
		item.Status = model.QueueCompleted
		item.ProcessedAt = &now
		stats.Succeeded++
	case IsTransientExternal(err):
		item.Attempts++
		item.LastError = err.Error()

		maxRetries := item.MaxRetries
		if maxRetries <= 0 {
			maxRetries = s.cfg.MaxAttempts
		}

		if item.Attempts >= maxRetries {
			// 重试耗尽：条目与工件一起进入终态 FAILED，不再自动尝试
			item.Status = model.QueueFailed
			item.ProcessedAt = &now
			s.failArtifact(ctx, item.ArtifactID, err)
			stats.Failed++
		} else {
			item.Status = model.QueueQueued
			next := now.Add(time.Duration(item.Attempts) * requeueBackoff)
			item.NextRetryAt = &next
			stats.Requeued++
		}
	default:
		// 永久失败：工件已由提交工作流转入 FAILED
		item.Status = model.QueueFailed
		item.ProcessedAt = &now

		if err != nil {
			item.LastError = err.Error()
		}

		stats.Failed++
	}

	if err := s.dbClient.WithContext(ctx).Save(item).Error; err != nil {
		nlog.Logger().Error().Err(err).Uint("queue_id", item.ID).Msg("persist queue item outcome failed")
	}
}

// failArtifact 重试耗尽时把工件标记为终态 FAILED.
func (s *RetryService) failArtifact(ctx context.Context, artifactID uint, cause error) {
	a, err := s.artifacts.Get(ctx, artifactID)
	if err != nil {
		nlog.Logger().Error().Err(err).Uint("artifact_id", artifactID).Msg("load artifact for retry exhaustion failed")

		return
	}

	a.LastError = cause.Error()

	if err := s.artifacts.updateStatus(ctx, a, model.StatusFailed, "retries_exhausted", cause.Error(), false); err != nil {
		nlog.Logger().Error().Err(err).Uint("artifact_id", artifactID).Msg("mark artifact failed after retry exhaustion")
	}
}

// RequeueStale 把滞留在 PROCESSING 超时的条目放回队列.
// 处理进程崩溃会留下 PROCESSING 条目，由定时任务回收.
func (s *RetryService) RequeueStale(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-time.Duration(s.cfg.StaleAfterMin) * time.Minute)

	res := s.dbClient.WithContext(ctx).
		Model(&model.SubmissionQueue{}).
		Where("status = ? AND updated_at < ?", model.QueueProcessing, cutoff).
		Update("status", model.QueueQueued)
	if res.Error != nil {
		return 0, &InternalError{Err: fmt.Errorf("requeue stale items: %w", res.Error)}
	}

	if res.RowsAffected > 0 {
		nlog.Logger().Warn().Int64("count", res.RowsAffected).Msg("requeued stale processing items")
	}

	return int(res.RowsAffected), nil
}

// List 列出重试队列条目.
func (s *RetryService) List(ctx context.Context, limit int) ([]model.SubmissionQueue, error) {
	var items []model.SubmissionQueue
	if err := s.dbClient.WithContext(ctx).
		Order("priority desc, queued_at asc").
		Limit(limit).
		Find(&items).Error; err != nil {
		return nil, &InternalError{Err: fmt.Errorf("list queue items: %w", err)}
	}

	return items, nil
}

// Depth 返回待处理条目数.
func (s *RetryService) Depth(ctx context.Context) (int64, error) {
	var count int64
	if err := s.dbClient.WithContext(ctx).
		Model(&model.SubmissionQueue{}).
		Where("status = ?", model.QueueQueued).
		Count(&count).Error; err != nil {
		return 0, &InternalError{Err: fmt.Errorf("count queue depth: %w", err)}
	}

	return count, nil
}

func (s *RetryService) refreshDepthGauge(ctx context.Context) {
	if depth, err := s.Depth(ctx); err == nil {
		metrics.RetryQueueDepth.Set(float64(depth))
	}
}

// Package jobs 注册重试队列相关的后台定时任务.
package jobs

import (
	"context"

	"github.com/yeisme/exambridge/pkg/configs"
	"github.com/yeisme/exambridge/pkg/internal/service"
	nlog "github.com/yeisme/exambridge/pkg/log"
	"github.com/yeisme/exambridge/pkg/scheduler"
)

// Register 注册排空与滞留回收任务.
// ctx 必须携带存储管理器，任务运行时由此取得各客户端.
func Register(sched *scheduler.Scheduler, ctx context.Context) error {
	cfg := configs.GetConfig().Retry
	if !cfg.EnableJobs {
		nlog.Logger().Info().Msg("retry jobs disabled by config")

		return nil
	}

	if err := sched.AddCron("retry-drain", cfg.DrainCron, drainJob, ctx); err != nil {
		return err
	}

	return sched.AddCron("requeue-stale", cfg.StaleCron, requeueStaleJob, ctx)
}

// drainJob 处理一批到期的重试条目.
func drainJob(ctx context.Context) {
	svc := service.NewRetryService(ctx)

	stats, err := svc.Drain(ctx)
	if err != nil {
		nlog.Logger().Error().Err(err).Msg("scheduled queue drain failed")

		return
	}

	if stats.Processed > 0 {
		nlog.Logger().Info().
			Int("processed", stats.Processed).
			Int("succeeded", stats.Succeeded).
			Int("requeued", stats.Requeued).
			Int("failed", stats.Failed).
			Msg("retry queue drained")
	}
}

// requeueStaleJob 回收崩溃遗留的 PROCESSING 条目.
func requeueStaleJob(ctx context.Context) {
	svc := service.NewRetryService(ctx)

	if _, err := svc.RequeueStale(ctx); err != nil {
		nlog.Logger().Error().Err(err).Msg("stale item requeue failed")
	}
}

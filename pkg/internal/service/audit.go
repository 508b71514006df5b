package service

import (
	"context"
	"fmt"
	"strconv"

	ctxPkg "github.com/yeisme/exambridge/pkg/context"
	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/storage/db"
)

// AuditService 全局审计日志，只追加不修改.
type AuditService struct {
	dbClient *db.Client
}

func NewAuditService(c context.Context) *AuditService {
	return &AuditService{
		dbClient: ctxPkg.GetDBClient(c),
	}
}

// Append 追加一条审计条目.
func (s *AuditService) Append(ctx context.Context, entry *model.AuditLog) error {
	if entry.Category == "" {
		entry.Category = model.AuditCategoryWorkflow
	}

	if err := s.dbClient.WithContext(ctx).Create(entry).Error; err != nil {
		return &InternalError{Err: fmt.Errorf("append audit entry: %w", err)}
	}

	return nil
}

// ListForArtifact 列出工件的审计条目.
// 结果包含交叉引用这些条目的注解条目（如撤销、复核记录）.
func (s *AuditService) ListForArtifact(ctx context.Context, artifactID uint) ([]model.AuditLog, error) {
	var entries []model.AuditLog
	if err := s.dbClient.WithContext(ctx).
		Where("artifact_id = ?", artifactID).
		Order("created_at asc, id asc").
		Find(&entries).Error; err != nil {
		return nil, &InternalError{Err: fmt.Errorf("list audit entries: %w", err)}
	}

	if len(entries) == 0 {
		return entries, nil
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, strconv.FormatUint(uint64(e.ID), 10))
	}

	var refs []model.AuditLog
	if err := s.dbClient.WithContext(ctx).
		Where("target_type = ? AND target_id IN ?", model.AuditTargetAudit, ids).
		Order("created_at asc, id asc").
		Find(&refs).Error; err != nil {
		return nil, &InternalError{Err: fmt.Errorf("list cross-referenced audit entries: %w", err)}
	}

	return append(entries, refs...), nil
}

// ListRecent 列出最近的审计条目.
func (s *AuditService) ListRecent(ctx context.Context, limit int) ([]model.AuditLog, error) {
	var entries []model.AuditLog
	if err := s.dbClient.WithContext(ctx).
		Order("created_at desc, id desc").
		Limit(limit).
		Find(&entries).Error; err != nil {
		return nil, &InternalError{Err: fmt.Errorf("list recent audit entries: %w", err)}
	}

	return entries, nil
}

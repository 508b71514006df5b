package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/types"
	"github.com/yeisme/exambridge/pkg/queue"
)

// Reset 管理员将工件重置回 PENDING，绕过状态机限制.
func (s *ArtifactService) Reset(ctx context.Context, actor string, id uint, reason string) (*model.Artifact, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if a.Status == model.StatusDeleted {
		return nil, &ConflictError{Reason: "artifact " + strconv.FormatUint(uint64(id), 10) + " is deleted"}
	}

	a.LastError = ""

	if err := s.updateStatus(ctx, a, model.StatusPending, "admin_reset", reason, true); err != nil {
		return nil, err
	}

	s.auditArtifact(ctx, actor, "artifact_reset", model.AuditCategoryAdmin, a, reason)

	return a, nil
}

// Supersede 以修正过的身份替换工件：新建一行，旧行转 DELETED 并释放身份.
// 存活工件的身份字段从不原地改写，替换关系记录在旧行的 superseded_by 上.
func (s *ArtifactService) Supersede(ctx context.Context, actor string, id uint, req *types.SupersedeRequest) (*model.Artifact, error) {
	old, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if old.Status == model.StatusDeleted {
		return nil, &ConflictError{Reason: "artifact " + strconv.FormatUint(uint64(id), 10) + " is already deleted"}
	}

	period := req.Period
	if period == "" {
		if _, _, p, ok := old.Identity(); ok {
			period = p
		} else {
			period = time.Now().UTC().Format("200601")
		}
	}

	txnID := ComputeTransactionID(req.OwnerIdentity, req.SubjectCode, period)
	owner, subject := req.OwnerIdentity, req.SubjectCode

	replacement := &model.Artifact{
		UUID:            uuid.NewString(),
		TransactionID:   &txnID,
		OwnerIdentity:   &owner,
		SubjectCode:     &subject,
		Period:          &period,
		RawFileName:     old.RawFileName,
		FileName:        old.FileName,
		Bucket:          old.Bucket,
		ObjectKey:       old.ObjectKey,
		Size:            old.Size,
		ContentType:     old.ContentType,
		Checksum:        old.Checksum,
		Status:          model.StatusPending,
		StatusChangedAt: time.Now().UTC(),
	}
	replacement.AppendLog("superseding", fmt.Sprintf("replaces artifact %d", old.ID))

	err = s.dbClient.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 旧行先让出身份，新身份可能与之相同
		old.ReleaseIdentity()

		if err := s.updateStatusTx(tx, old, model.StatusDeleted, "superseded", req.Reason, true); err != nil {
			return err
		}

		if err := tx.Create(replacement).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &ConflictError{Reason: "corrected identity collides with a live artifact"}
			}

			return &InternalError{Err: fmt.Errorf("create replacement artifact: %w", err)}
		}

		old.SupersededBy = &replacement.ID

		if err := tx.Save(old).Error; err != nil {
			return &InternalError{Err: fmt.Errorf("record superseded_by: %w", err)}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.auditArtifact(ctx, actor, "artifact_superseded", model.AuditCategoryAdmin, old,
		fmt.Sprintf("replaced by artifact %d: %s", replacement.ID, req.Reason))

	return replacement, nil
}

// SoftDelete 软删除：保留历史，释放身份三元组供重新上传使用.
func (s *ArtifactService) SoftDelete(ctx context.Context, actor string, id uint, reason string) error {
	a, err := s.Get(ctx, id)
	if err != nil {
		return err
	}

	if a.Status == model.StatusDeleted {
		return &ConflictError{Reason: "artifact " + strconv.FormatUint(uint64(id), 10) + " is already deleted"}
	}

	ref := artifactRef(a)
	a.ReleaseIdentity()

	if err := s.updateStatus(ctx, a, model.StatusDeleted, "deleted", reason, true); err != nil {
		return err
	}

	s.auditArtifact(ctx, actor, "artifact_deleted", model.AuditCategoryAdmin, a, reason)

	ref.Status = string(model.StatusDeleted)
	payload := queue.ArtifactDeletedPayload{Artifact: ref, Reason: reason}

	publishEvent(s.mqClient, func(pub message.Publisher) error {
		msg, err := queue.NewWatermillMessage(queue.TopicArtifactDeleted, payload)
		if err != nil {
			return err
		}

		return pub.Publish(queue.TopicArtifactDeleted, msg)
	})

	return nil
}

// ClearTransactionID 清除幂等键，供修复被占用的约束使用.
func (s *ArtifactService) ClearTransactionID(ctx context.Context, actor string, id uint) (*model.Artifact, error) {
	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	a.TransactionID = nil
	a.AppendLog("transaction_id_cleared", "by "+actor)

	if err := s.dbClient.WithContext(ctx).Save(a).Error; err != nil {
		return nil, &InternalError{Err: fmt.Errorf("clear transaction id: %w", err)}
	}

	s.auditArtifact(ctx, actor, "transaction_id_cleared", model.AuditCategoryAdmin, a, "")

	return a, nil
}

// auditArtifact 为工件写一条审计条目，失败只记日志不阻断操作.
func (s *ArtifactService) auditArtifact(ctx context.Context, actor, action, category string, a *model.Artifact, detail string) {
	artifactID := a.ID

	_ = s.audits.Append(ctx, &model.AuditLog{
		Actor:      actor,
		Action:     action,
		Category:   category,
		ArtifactID: &artifactID,
		TargetType: model.AuditTargetArtifact,
		TargetID:   strconv.FormatUint(uint64(artifactID), 10),
		Detail:     detail,
	})
}

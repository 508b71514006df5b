package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yeisme/exambridge/pkg/configs"
	ctxPkg "github.com/yeisme/exambridge/pkg/context"
	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/storage/db"
	"github.com/yeisme/exambridge/pkg/internal/storage/mq"
	"github.com/yeisme/exambridge/pkg/internal/storage/s3"
)

// ArtifactService 管理工件的生命周期：幂等创建、状态机与管理操作.
type ArtifactService struct {
	dbClient *db.Client
	s3Client *s3.Client
	mqClient *mq.Client
	mappings *MappingService
	audits   *AuditService

	maxRetries int
}

func NewArtifactService(c context.Context) *ArtifactService {
	return &ArtifactService{
		dbClient:   ctxPkg.GetDBClient(c),
		s3Client:   ctxPkg.GetS3Client(c),
		mqClient:   ctxPkg.GetMQClient(c),
		mappings:   NewMappingService(c),
		audits:     NewAuditService(c),
		maxRetries: configs.GetConfig().Retry.MaxAttempts,
	}
}

// ComputeTransactionID 由身份三元组派生确定性幂等键.
// 同一 owner/subject/period 的重复上传刻意得到相同的键.
func ComputeTransactionID(owner, subject, period string) string {
	sum := sha256.Sum256([]byte(owner + ":" + subject + ":" + period))

	return hex.EncodeToString(sum[:])[:32]
}

// ResolveInput 幂等解析的输入：身份三元组与已落盘的内容引用.
type ResolveInput struct {
	OwnerIdentity string
	SubjectCode   string
	Period        string

	RawFileName string
	FileName    string
	Bucket      string
	ObjectKey   string
	Size        int64
	ContentType string
	Checksum    string
}

// Resolve 按幂等键解析工件：命中即视为重新上传并复用原行，
// 与已删除工件的陈旧身份冲突时释放旧身份后新建，与存活工件冲突时拒绝.
// 提交时的唯一约束冲突视为并发裁决信号，同样转为 ConflictError.
func (s *ArtifactService) Resolve(ctx context.Context, in ResolveInput) (*model.Artifact, bool, error) {
	txnID := ComputeTransactionID(in.OwnerIdentity, in.SubjectCode, in.Period)

	var (
		out      *model.Artifact
		reupload bool
	)

	err := s.dbClient.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 按幂等键查找
		var existing model.Artifact

		err := tx.Where("transaction_id = ?", txnID).First(&existing).Error

		switch {
		case err == nil:
			owner, subject, period, ok := existing.Identity()
			if ok && owner == in.OwnerIdentity && subject == in.SubjectCode && period == in.Period {
				// 重新上传：替换内容引用并重置到 PENDING，不建新行
				existing.RawFileName = in.RawFileName
				existing.FileName = in.FileName
				existing.Bucket = in.Bucket
				existing.ObjectKey = in.ObjectKey
				existing.Size = in.Size
				existing.ContentType = in.ContentType
				existing.Checksum = in.Checksum
				existing.LastError = ""
				// 旧草稿对应旧内容，重新上传后不可复用
				existing.DraftItemID = nil
				if err := s.updateStatusTx(tx, &existing, model.StatusPending, "re-uploaded", in.RawFileName, true); err != nil {
					return err
				}

				out = &existing
				reupload = true

				return nil
			}

			// 幂等键被身份不符的旧行占用：只有已删除的行可以让位
			if existing.Status != model.StatusDeleted {
				return &ConflictError{
					Reason: fmt.Sprintf("transaction id %s held by live artifact %d", txnID, existing.ID),
				}
			}

			existing.ReleaseIdentity()

			if err := tx.Save(&existing).Error; err != nil {
				return &InternalError{Err: fmt.Errorf("release stale identity: %w", err)}
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return &InternalError{Err: fmt.Errorf("lookup by transaction id: %w", err)}
		}

		// 2. 同一 owner/subject 但幂等键不同的遗留行.
		// 存活工件按 (owner, subject) 去重，期次不同也算同一逻辑工件
		var dup model.Artifact

		err = tx.Where("owner_identity = ? AND subject_code = ?",
			in.OwnerIdentity, in.SubjectCode).First(&dup).Error

		switch {
		case err == nil:
			if dup.Status != model.StatusDeleted {
				return &ConflictError{
					Reason: fmt.Sprintf("owner %s already has a live artifact for subject %s",
						in.OwnerIdentity, in.SubjectCode),
				}
			}

			dup.ReleaseIdentity()

			if err := tx.Save(&dup).Error; err != nil {
				return &InternalError{Err: fmt.Errorf("release stale identity: %w", err)}
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return &InternalError{Err: fmt.Errorf("lookup by identity tuple: %w", err)}
		}

		// 3. 新建
		owner, subject, period := in.OwnerIdentity, in.SubjectCode, in.Period

		a := &model.Artifact{
			UUID:            uuid.NewString(),
			TransactionID:   &txnID,
			OwnerIdentity:   &owner,
			SubjectCode:     &subject,
			Period:          &period,
			RawFileName:     in.RawFileName,
			FileName:        in.FileName,
			Bucket:          in.Bucket,
			ObjectKey:       in.ObjectKey,
			Size:            in.Size,
			ContentType:     in.ContentType,
			Checksum:        in.Checksum,
			Status:          model.StatusPending,
			StatusChangedAt: time.Now().UTC(),
		}
		a.AppendLog("created", in.RawFileName)

		if err := tx.Create(a).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return &ConflictError{Reason: "concurrent resolution for transaction " + txnID}
			}

			return &InternalError{Err: fmt.Errorf("create artifact: %w", err)}
		}

		out = a

		return nil
	})
	if err != nil {
		return nil, false, err
	}

	return out, reupload, nil
}

// updateStatusTx 状态迁移的唯一入口.
// 非法迁移被拒绝；force 仅供管理员重置与重新上传这类显式操作使用.
// 每次迁移都在工件内嵌日志中留下旧状态、新状态与调用方补充信息.
func (s *ArtifactService) updateStatusTx(tx *gorm.DB, a *model.Artifact, next model.WorkflowStatus, action, detail string, force bool) error {
	if !force && !model.CanTransition(a.Status, next) {
		return &ConflictError{Reason: fmt.Sprintf("illegal status transition %s -> %s", a.Status, next)}
	}

	prev := a.Status
	now := time.Now().UTC()
	a.Status = next
	a.StatusChangedAt = now

	switch next {
	case model.StatusValidated:
		a.ValidatedAt = &now
	case model.StatusCompleted:
		a.SubmittedAt = &now
		a.CompletedAt = &now
	}

	a.AppendLog(action, fmt.Sprintf("%s -> %s; %s", prev, next, detail))

	if err := tx.Save(a).Error; err != nil {
		return &InternalError{Err: fmt.Errorf("persist status %s: %w", next, err)}
	}

	return nil
}

func (s *ArtifactService) updateStatus(ctx context.Context, a *model.Artifact, next model.WorkflowStatus, action, detail string, force bool) error {
	return s.updateStatusTx(s.dbClient.WithContext(ctx), a, next, action, detail, force)
}

// MarkSubmitting 记录远端草稿项并进入 UPLOADING，崩溃后重试可复用草稿.
func (s *ArtifactService) MarkSubmitting(ctx context.Context, a *model.Artifact, draftItemID int64) error {
	a.DraftItemID = &draftItemID

	return s.updateStatus(ctx, a, model.StatusUploading, "draft_uploaded",
		"draft item "+strconv.FormatInt(draftItemID, 10), false)
}

// MarkSubmitted 记录远端提交 ID 并进入 COMPLETED.
// 返回本地生成的事务日志 ID（UUID + 时间戳），用于跨系统对账.
func (s *ArtifactService) MarkSubmitted(ctx context.Context, a *model.Artifact, submissionID string) (string, error) {
	txnLogID := fmt.Sprintf("TXN_%s_%d", a.UUID, time.Now().UTC().Unix())
	a.SubmissionID = &submissionID
	a.TransactionLogID = &txnLogID

	if err := s.updateStatus(ctx, a, model.StatusCompleted, "submission_completed",
		"remote submission "+submissionID, false); err != nil {
		return "", err
	}

	return txnLogID, nil
}

// MarkFailed 记录一次失败.
// queueForRetry 为真时转入 QUEUED 并创建重试条目；永久失败不进队列.
func (s *ArtifactService) MarkFailed(ctx context.Context, a *model.Artifact, cause error, queueForRetry bool) (*model.SubmissionQueue, error) {
	a.Attempts++
	a.LastError = cause.Error()

	if !queueForRetry {
		return nil, s.updateStatus(ctx, a, model.StatusFailed, "submission_failed", cause.Error(), false)
	}

	if err := s.updateStatus(ctx, a, model.StatusQueued, "submission_queued", cause.Error(), false); err != nil {
		return nil, err
	}

	item := &model.SubmissionQueue{
		ArtifactID: a.ID,
		Status:     model.QueueQueued,
		MaxRetries: s.maxRetries,
		LastError:  cause.Error(),
		QueuedAt:   time.Now().UTC(),
	}

	if err := s.dbClient.WithContext(ctx).Create(item).Error; err != nil {
		return nil, &InternalError{Err: fmt.Errorf("enqueue retry item: %w", err)}
	}

	return item, nil
}

// Get 按主键取工件.
func (s *ArtifactService) Get(ctx context.Context, id uint) (*model.Artifact, error) {
	var a model.Artifact

	err := s.dbClient.WithContext(ctx).First(&a, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "artifact", Key: strconv.FormatUint(uint64(id), 10)}
	}

	if err != nil {
		return nil, &InternalError{Err: fmt.Errorf("load artifact %d: %w", id, err)}
	}

	return &a, nil
}

// GetByUUID 按公开 UUID 取工件.
func (s *ArtifactService) GetByUUID(ctx context.Context, id string) (*model.Artifact, error) {
	var a model.Artifact

	err := s.dbClient.WithContext(ctx).Where("uuid = ?", id).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "artifact", Key: id}
	}

	if err != nil {
		return nil, &InternalError{Err: fmt.Errorf("load artifact %s: %w", id, err)}
	}

	return &a, nil
}

// ListByOwner 列出某个归属身份的工件，可按状态过滤.
func (s *ArtifactService) ListByOwner(ctx context.Context, owner string, statuses ...model.WorkflowStatus) ([]model.Artifact, error) {
	q := s.dbClient.WithContext(ctx).Where("owner_identity = ?", owner)
	if len(statuses) > 0 {
		q = q.Where("status IN ?", statuses)
	}

	var artifacts []model.Artifact
	if err := q.Order("created_at desc").Find(&artifacts).Error; err != nil {
		return nil, &InternalError{Err: fmt.Errorf("list artifacts for %s: %w", owner, err)}
	}

	return artifacts, nil
}

// ListByStatus 按状态列出工件.
func (s *ArtifactService) ListByStatus(ctx context.Context, status model.WorkflowStatus, limit int) ([]model.Artifact, error) {
	var artifacts []model.Artifact
	if err := s.dbClient.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at asc").
		Limit(limit).
		Find(&artifacts).Error; err != nil {
		return nil, &InternalError{Err: fmt.Errorf("list artifacts by status %s: %w", status, err)}
	}

	return artifacts, nil
}

// CountByStatus 按状态统计工件数量.
func (s *ArtifactService) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}

	var rows []row
	if err := s.dbClient.WithContext(ctx).
		Model(&model.Artifact{}).
		Select("status, count(*) as count").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, &InternalError{Err: fmt.Errorf("count artifacts by status: %w", err)}
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}

	return counts, nil
}

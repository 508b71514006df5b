package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/yeisme/exambridge/pkg/configs"
	ctxPkg "github.com/yeisme/exambridge/pkg/context"
	"github.com/yeisme/exambridge/pkg/internal/lms"
	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/storage/mq"
	"github.com/yeisme/exambridge/pkg/internal/storage/s3"
	"github.com/yeisme/exambridge/pkg/internal/types"
	"github.com/yeisme/exambridge/pkg/metrics"
	"github.com/yeisme/exambridge/pkg/queue"
)

// SubmissionService 驱动单个工件的远端提交协议.
// 每一步先持久化效果再执行下一步，崩溃后重试从正确的步骤恢复，
// 不会重复产生远端副作用.
type SubmissionService struct {
	s3Client  *s3.Client
	mqClient  *mq.Client
	artifacts *ArtifactService
	mappings  *MappingService
	audits    *AuditService
	cfg       configs.LMSConfig

	// newClient 按单次提交获取客户端，每条退出路径都会释放
	newClient func() lms.Client
}

func NewSubmissionService(c context.Context) *SubmissionService {
	cfg := configs.GetConfig().LMS

	return &SubmissionService{
		s3Client:  ctxPkg.GetS3Client(c),
		mqClient:  ctxPkg.GetMQClient(c),
		artifacts: NewArtifactService(c),
		mappings:  NewMappingService(c),
		audits:    NewAuditService(c),
		cfg:       cfg,
		newClient: func() lms.Client { return lms.NewMoodleClient(cfg) },
	}
}

// WithClientFactory 替换客户端获取方式，测试时注入假实现.
func (s *SubmissionService) WithClientFactory(f func() lms.Client) *SubmissionService {
	s.newClient = f

	return s
}

// Submit 以调用者身份发起提交.
func (s *SubmissionService) Submit(ctx context.Context, artifactID uint, caller string, cred lms.Credential, finalize bool) (*types.SubmitResult, error) {
	return s.submit(ctx, artifactID, caller, cred, finalize, false)
}

// SubmitForRetry 以管理员令牌重放提交，归属校验放行.
// 瞬时失败不再新建队列条目，由既有条目记录重试次数.
func (s *SubmissionService) SubmitForRetry(ctx context.Context, artifactID uint) (*types.SubmitResult, error) {
	return s.submit(ctx, artifactID, "retry-worker", lms.Credential{}, true, true)
}

func (s *SubmissionService) submit(ctx context.Context, artifactID uint, caller string, cred lms.Credential, wantFinalize, elevated bool) (*types.SubmitResult, error) {
	a, err := s.artifacts.Get(ctx, artifactID)
	if err != nil {
		return &types.SubmitResult{ArtifactID: artifactID, Message: err.Error()}, err
	}

	result := &types.SubmitResult{ArtifactID: a.ID, Status: string(a.Status)}

	owner, subject, _, ok := a.Identity()
	if !ok {
		verr := &ValidationError{Reason: "artifact has no parsed identity"}
		result.Message = verr.Error()

		return result, verr
	}

	// 归属校验不通过：security 审计，状态不动，绝不触碰远端
	if !elevated && owner != caller {
		s.auditEntry(ctx, caller, a, "submission_denied", model.AuditCategorySecurity,
			"caller does not own this artifact")

		aerr := &AuthorizationError{Caller: caller}
		result.Message = aerr.Error()

		return result, aerr
	}

	// 已受理的提交短路成功
	if a.Status == model.StatusCompleted {
		result.Success = true
		result.AlreadySubmitted = true
		result.Message = "already submitted"

		if a.SubmissionID != nil {
			result.SubmissionID = *a.SubmissionID
		}

		if a.TransactionLogID != nil {
			result.TransactionLogID = *a.TransactionLogID
		}

		return result, nil
	}

	// 目标映射缺失是硬失败：不重试，也不发起任何远端调用
	mapping, err := s.mappings.ResolveTarget(ctx, subject)
	if err != nil {
		msg := "No assignment mapping found for subject " + subject
		s.auditEntry(ctx, caller, a, "submission_rejected", model.AuditCategoryWorkflow, msg)
		metrics.SubmissionCounter.WithLabelValues("rejected").Inc()

		result.Message = msg

		return result, &PermanentExternalError{Stage: "mapping", Err: errors.New(msg)}
	}

	a.CourseID = mapping.CourseID
	a.AssignmentID = mapping.AssignmentID

	initiator := "api"
	if elevated {
		initiator = "retry"
	}

	s.publishStarted(a, initiator)

	client := s.newClient()
	defer func() { _ = client.Close() }()

	var token string

	if elevated {
		token = s.cfg.AdminToken
	} else {
		token, err = client.Authenticate(ctx, cred)
		if err != nil {
			return s.fail(ctx, caller, a, result, "authenticate", err, !elevated)
		}
	}

	identity, err := client.GetIdentity(ctx, owner)
	if err != nil {
		return s.fail(ctx, caller, a, result, "identity", err, !elevated)
	}

	a.RemoteUserID = &identity.UserID
	a.RemoteUsername = identity.Username

	// 1. 上传：已持久化的草稿项直接复用（崩溃恢复、队列重放），
	// 草稿一经落盘就是既成的远端副作用，重试绝不重复上传；
	// 否则拉取原件上传，并在任何后续步骤前落盘草稿项 ID
	if a.DraftItemID == nil {
		obj, err := s.s3Client.FetchScan(ctx, a.ObjectKey)
		if err != nil {
			return s.fail(ctx, caller, a, result, "upload", fmt.Errorf("fetch scan: %w", err), !elevated)
		}

		draftID, err := client.UploadDraft(ctx, token, a.DraftItemID, a.FileName, obj, a.Size)

		_ = obj.Close()

		if err != nil {
			return s.fail(ctx, caller, a, result, "upload", err, !elevated)
		}

		if err := s.artifacts.MarkSubmitting(ctx, a, draftID); err != nil {
			result.Message = err.Error()

			return result, err
		}
	}

	result.MarkStep(types.StepUpload)

	// 2. 校验目标可用性，失败是描述性硬错误，从不静默跳过
	target, err := client.VerifyTarget(ctx, a.AssignmentID)
	if err != nil {
		return s.fail(ctx, caller, a, result, "verify_target", err, !elevated)
	}

	if !target.Open {
		return s.fail(ctx, caller, a, result, "verify_target",
			fmt.Errorf("assignment %d is closed for submission", a.AssignmentID), !elevated)
	}

	result.MarkStep(types.StepVerifyTarget)

	// 3. 挂接草稿
	if _, err := client.LinkDraft(ctx, token, a.AssignmentID, *a.DraftItemID); err != nil {
		return s.fail(ctx, caller, a, result, "link", err, !elevated)
	}

	if err := s.artifacts.updateStatus(ctx, a, model.StatusSubmitting, "draft_linked",
		"assignment "+strconv.Itoa(a.AssignmentID), false); err != nil {
		result.Message = err.Error()

		return result, err
	}

	result.MarkStep(types.StepLink)

	// 4. 复核结果：不信任挂接调用的成功返回，必须独立确认至少一个附件
	status, err := client.GetSubmissionStatus(ctx, a.AssignmentID, identity.UserID)
	if err != nil {
		return s.fail(ctx, caller, a, result, "verify_result", err, !elevated)
	}

	if status.AttachedFiles == 0 {
		// 零附件是硬失败，绝不入重试队列
		return s.failPermanent(ctx, caller, a, result, "verify_result",
			errors.New("remote submission reports zero attached files"))
	}

	result.MarkStep(types.StepVerifyResult)

	// 5. 条件最终化：远端标记无需显式定稿时跳过，避免误触发已知的远端错误
	if wantFinalize && (status.CanFinalize || s.cfg.ForceFinalize) {
		if err := client.Finalize(ctx, token, a.AssignmentID); err != nil {
			return s.fail(ctx, caller, a, result, "finalize", err, !elevated)
		}

		result.Finalized = true

		result.MarkStep(types.StepFinalize)
	} else {
		result.FinalizeSkipped = true
		a.AppendLog("finalize_skipped", fmt.Sprintf("requested=%v can_finalize=%v force=%v",
			wantFinalize, status.CanFinalize, s.cfg.ForceFinalize))
	}

	txnLogID, err := s.artifacts.MarkSubmitted(ctx, a, status.SubmissionID)
	if err != nil {
		result.Message = err.Error()

		return result, err
	}

	result.Success = true
	result.Status = string(a.Status)
	result.SubmissionID = status.SubmissionID
	result.TransactionLogID = txnLogID
	result.Message = "submission completed"

	s.auditEntry(ctx, caller, a, "submission_completed", model.AuditCategoryWorkflow,
		"remote submission "+status.SubmissionID)
	metrics.SubmissionCounter.WithLabelValues("completed").Inc()

	payload := queue.SubmissionCompletedPayload{
		Artifact:         artifactRef(a),
		SubmissionID:     status.SubmissionID,
		TransactionLogID: txnLogID,
		Finalized:        result.Finalized,
	}

	publishEvent(s.mqClient, func(pub message.Publisher) error {
		return queue.PublishSubmissionCompleted(pub, payload)
	})

	return result, nil
}

// ProbeRemote 以管理员令牌探查工件在远端的提交状态，不产生任何副作用.
func (s *SubmissionService) ProbeRemote(ctx context.Context, artifactID uint) (*lms.SubmissionStatus, error) {
	a, err := s.artifacts.Get(ctx, artifactID)
	if err != nil {
		return nil, err
	}

	owner, subject, _, ok := a.Identity()
	if !ok {
		return nil, &ValidationError{Reason: "artifact has no parsed identity"}
	}

	mapping, err := s.mappings.ResolveTarget(ctx, subject)
	if err != nil {
		return nil, err
	}

	client := s.newClient()
	defer func() { _ = client.Close() }()

	var userID int64

	if a.RemoteUserID != nil {
		userID = *a.RemoteUserID
	} else {
		identity, err := client.GetIdentity(ctx, owner)
		if err != nil {
			return nil, classifyExternal("identity", err)
		}

		userID = identity.UserID
	}

	status, err := client.GetSubmissionStatus(ctx, mapping.AssignmentID, userID)
	if err != nil {
		return nil, classifyExternal("probe", err)
	}

	return &status, nil
}

// classifyExternal 按错误信号把远端错误归入瞬时或永久.
func classifyExternal(stage string, err error) error {
	if lms.IsTransient(err) {
		return &TransientExternalError{Stage: stage, Err: err}
	}

	return &PermanentExternalError{Stage: stage, Err: err}
}

// fail 统一的失败出口：按错误信号分类为瞬时或永久，
// 先持久化工件状态与审计条目，再返回分类后的错误.
// enqueue 为假时（重试工作流）瞬时失败不再新建队列条目.
func (s *SubmissionService) fail(ctx context.Context, caller string, a *model.Artifact, result *types.SubmitResult, stage string, cause error, enqueue bool) (*types.SubmitResult, error) {
	if !lms.IsTransient(cause) {
		return s.failPermanent(ctx, caller, a, result, stage, cause)
	}

	if enqueue {
		item, err := s.artifacts.MarkFailed(ctx, a, cause, true)
		if err != nil {
			result.Message = err.Error()

			return result, err
		}

		result.Queued = true

		payload := queue.SubmissionQueuedPayload{
			Artifact: artifactRef(a),
			QueueID:  item.ID,
			Attempts: item.Attempts,
			Error:    cause.Error(),
		}

		publishEvent(s.mqClient, func(pub message.Publisher) error {
			return queue.PublishSubmissionQueued(pub, payload)
		})
	} else {
		// 既有队列条目负责重试计数，这里只回到 QUEUED
		a.Attempts++
		a.LastError = cause.Error()

		if err := s.artifacts.updateStatus(ctx, a, model.StatusQueued, "retry_failed", cause.Error(), true); err != nil {
			result.Message = err.Error()

			return result, err
		}
	}

	s.auditEntry(ctx, caller, a, "submission_queued", model.AuditCategoryWorkflow,
		fmt.Sprintf("transient failure at %s: %v", stage, cause))
	metrics.SubmissionCounter.WithLabelValues("queued").Inc()

	result.Status = string(a.Status)
	result.Message = cause.Error()

	return result, &TransientExternalError{Stage: stage, Err: cause}
}

// failPermanent 永久失败：工件终态 FAILED，不创建重试条目.
func (s *SubmissionService) failPermanent(ctx context.Context, caller string, a *model.Artifact, result *types.SubmitResult, stage string, cause error) (*types.SubmitResult, error) {
	if _, err := s.artifacts.MarkFailed(ctx, a, cause, false); err != nil {
		result.Message = err.Error()

		return result, err
	}

	s.auditEntry(ctx, caller, a, "submission_failed", model.AuditCategoryWorkflow,
		fmt.Sprintf("permanent failure at %s: %v", stage, cause))
	metrics.SubmissionCounter.WithLabelValues("failed").Inc()

	payload := queue.SubmissionFailedPayload{
		Artifact: artifactRef(a),
		Stage:    stage,
		Error:    cause.Error(),
	}

	publishEvent(s.mqClient, func(pub message.Publisher) error {
		return queue.PublishSubmissionFailed(pub, payload)
	})

	result.Status = string(a.Status)
	result.Message = cause.Error()

	return result, &PermanentExternalError{Stage: stage, Err: cause}
}

func (s *SubmissionService) publishStarted(a *model.Artifact, initiator string) {
	payload := queue.SubmissionStartedPayload{
		Artifact:  artifactRef(a),
		Initiator: initiator,
	}

	publishEvent(s.mqClient, func(pub message.Publisher) error {
		msg, err := queue.NewWatermillMessage(queue.TopicSubmissionStarted, payload)
		if err != nil {
			return err
		}

		return pub.Publish(queue.TopicSubmissionStarted, msg)
	})
}

func (s *SubmissionService) auditEntry(ctx context.Context, actor string, a *model.Artifact, action, category, detail string) {
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

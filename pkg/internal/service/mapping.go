package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"gorm.io/gorm"

	"github.com/yeisme/exambridge/pkg/cache"
	ctxPkg "github.com/yeisme/exambridge/pkg/context"
	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/storage/db"
	"github.com/yeisme/exambridge/pkg/internal/storage/mq"
	"github.com/yeisme/exambridge/pkg/internal/types"
	"github.com/yeisme/exambridge/pkg/queue"
)

const mappingCacheTTL = 10 * time.Minute

// MappingService 管理科目到远端课程/作业的映射.
type MappingService struct {
	dbClient *db.Client
	mqClient *mq.Client
	cache    *cache.Cache // nil 时直接查库
	audits   *AuditService
}

func NewMappingService(c context.Context) *MappingService {
	svc := &MappingService{
		dbClient: ctxPkg.GetDBClient(c),
		mqClient: ctxPkg.GetMQClient(c),
		audits:   NewAuditService(c),
	}

	if kvClient := ctxPkg.GetKVClient(c); kvClient != nil {
		svc.cache = cache.NewCache(kvClient)
	}

	return svc
}

func mappingCacheKey(subjectCode string) string {
	return "mapping:" + subjectCode
}

// ResolveTarget 解析科目对应的远端提交目标，结果走缓存.
// 无激活映射时返回 NotFoundError，调用方据此硬失败且不重试.
func (s *MappingService) ResolveTarget(ctx context.Context, subjectCode string) (model.SubjectMapping, error) {
	lookup := func() (model.SubjectMapping, error) {
		var m model.SubjectMapping
		err := s.dbClient.WithContext(ctx).
			Where("subject_code = ? AND active = ?", subjectCode, true).
			First(&m).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return m, &NotFoundError{Resource: "subject mapping", Key: subjectCode}
		}

		if err != nil {
			return m, &InternalError{Err: fmt.Errorf("resolve mapping for %s: %w", subjectCode, err)}
		}

		return m, nil
	}

	if s.cache == nil {
		return lookup()
	}

	return cache.GetOrSet(ctx, s.cache, mappingCacheKey(subjectCode), lookup, mappingCacheTTL)
}

// Create 创建科目映射.
func (s *MappingService) Create(ctx context.Context, actor string, req *types.MappingRequest) (*model.SubjectMapping, error) {
	m := &model.SubjectMapping{
		SubjectCode:  req.SubjectCode,
		CourseID:     req.CourseID,
		AssignmentID: req.AssignmentID,
		ExamSession:  req.ExamSession,
		Active:       true,
		Remark:       req.Remark,
	}

	if req.Active != nil {
		m.Active = *req.Active
	}

	if err := s.dbClient.WithContext(ctx).Create(m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &ConflictError{Reason: "mapping for subject " + req.SubjectCode + " already exists"}
		}

		return nil, &InternalError{Err: fmt.Errorf("create mapping: %w", err)}
	}

	s.afterChange(ctx, actor, "mapping_created", m)

	return m, nil
}

// Update 更新科目映射并失效缓存.
func (s *MappingService) Update(ctx context.Context, actor string, id uint, req *types.MappingRequest) (*model.SubjectMapping, error) {
	var m model.SubjectMapping

	err := s.dbClient.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "subject mapping", Key: strconv.FormatUint(uint64(id), 10)}
	}

	if err != nil {
		return nil, &InternalError{Err: fmt.Errorf("load mapping %d: %w", id, err)}
	}

	// 科目代码变更时两个键的缓存都要失效
	prevSubject := m.SubjectCode

	m.SubjectCode = req.SubjectCode
	m.CourseID = req.CourseID
	m.AssignmentID = req.AssignmentID
	m.ExamSession = req.ExamSession
	m.Remark = req.Remark

	if req.Active != nil {
		m.Active = *req.Active
	}

	if err := s.dbClient.WithContext(ctx).Save(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, &ConflictError{Reason: "mapping for subject " + req.SubjectCode + " already exists"}
		}

		return nil, &InternalError{Err: fmt.Errorf("update mapping %d: %w", id, err)}
	}

	if s.cache != nil && prevSubject != m.SubjectCode {
		_ = s.cache.Delete(ctx, mappingCacheKey(prevSubject))
	}

	s.afterChange(ctx, actor, "mapping_updated", &m)

	return &m, nil
}

// Delete 删除科目映射.
func (s *MappingService) Delete(ctx context.Context, actor string, id uint) error {
	var m model.SubjectMapping

	err := s.dbClient.WithContext(ctx).First(&m, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &NotFoundError{Resource: "subject mapping", Key: strconv.FormatUint(uint64(id), 10)}
	}

	if err != nil {
		return &InternalError{Err: fmt.Errorf("load mapping %d: %w", id, err)}
	}

	if err := s.dbClient.WithContext(ctx).Delete(&m).Error; err != nil {
		return &InternalError{Err: fmt.Errorf("delete mapping %d: %w", id, err)}
	}

	s.afterChange(ctx, actor, "mapping_deleted", &m)

	return nil
}

// List 列出全部科目映射.
func (s *MappingService) List(ctx context.Context) ([]model.SubjectMapping, error) {
	var mappings []model.SubjectMapping
	if err := s.dbClient.WithContext(ctx).
		Order("subject_code asc").
		Find(&mappings).Error; err != nil {
		return nil, &InternalError{Err: fmt.Errorf("list mappings: %w", err)}
	}

	return mappings, nil
}

// afterChange 映射变更后的缓存失效、审计与事件发布.
func (s *MappingService) afterChange(ctx context.Context, actor, action string, m *model.SubjectMapping) {
	if s.cache != nil {
		_ = s.cache.Delete(ctx, mappingCacheKey(m.SubjectCode))
	}

	_ = s.audits.Append(ctx, &model.AuditLog{
		Actor:      actor,
		Action:     action,
		Category:   model.AuditCategoryAdmin,
		TargetType: model.AuditTargetMapping,
		TargetID:   strconv.FormatUint(uint64(m.ID), 10),
		Detail:     fmt.Sprintf("subject=%s course=%d assignment=%d", m.SubjectCode, m.CourseID, m.AssignmentID),
	})

	payload := queue.MappingChangedPayload{
		SubjectCode:  m.SubjectCode,
		CourseID:     m.CourseID,
		AssignmentID: m.AssignmentID,
		Action:       action,
	}

	publishEvent(s.mqClient, func(pub message.Publisher) error {
		msg, err := queue.NewWatermillMessage(queue.TopicMappingChanged, payload)
		if err != nil {
			return err
		}

		return pub.Publish(queue.TopicMappingChanged, msg)
	})
}

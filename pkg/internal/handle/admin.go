package handle

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/service"
	"github.com/yeisme/exambridge/pkg/internal/types"
	"github.com/yeisme/exambridge/pkg/log"
)

const defaultListLimit = 100

// ListMappings 列出全部科目映射.
//
//	@Summary		查询科目映射列表
//	@Tags			管理/映射
//	@Produce		json
//	@Success		200	{array}		types.MappingView	"映射列表"
//	@Failure		500	{object}	map[string]string	"服务器内部错误"
//	@Router			/api/v1/admin/mappings [get]
func ListMappings(c *gin.Context) {
	ctx := c.Request.Context()
	svc := service.NewMappingService(ctx)

	mappings, err := svc.List(ctx)
	if err != nil {
		writeServiceError(c, err)

		return
	}

	views := make([]types.MappingView, 0, len(mappings))
	for i := range mappings {
		views = append(views, mappingView(&mappings[i]))
	}

	c.JSON(http.StatusOK, views)
}

// CreateMapping 新建科目映射.
//
//	@Summary		创建科目映射
//	@Description	把科目代码绑定到远端课程与作业，变更即时生效并失效缓存
//	@Tags			管理/映射
//	@Accept			json
//	@Produce		json
//	@Param			mapping	body		types.MappingRequest	true	"映射定义"
//	@Success		200		{object}	types.MappingView		"已创建"
//	@Failure		400		{object}	map[string]string		"请求参数错误"
//	@Failure		409		{object}	map[string]string		"科目代码已存在"
//	@Router			/api/v1/admin/mappings [post]
func CreateMapping(c *gin.Context) {
	var req types.MappingRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	ctx := c.Request.Context()
	svc := service.NewMappingService(ctx)

	m, err := svc.Create(ctx, adminActor(c), &req)
	if err != nil {
		writeServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, mappingView(m))
}

// UpdateMapping 更新科目映射.
//
//	@Summary		更新科目映射
//	@Tags			管理/映射
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int						true	"映射 ID"
//	@Param			mapping	body		types.MappingRequest	true	"映射定义"
//	@Success		200		{object}	types.MappingView		"已更新"
//	@Failure		404		{object}	map[string]string		"映射不存在"
//	@Router			/api/v1/admin/mappings/{id} [put]
func UpdateMapping(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		return
	}

	var req types.MappingRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	ctx := c.Request.Context()
	svc := service.NewMappingService(ctx)

	m, err := svc.Update(ctx, adminActor(c), id, &req)
	if err != nil {
		writeServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, mappingView(m))
}

// DeleteMapping 删除科目映射.
//
//	@Summary		删除科目映射
//	@Tags			管理/映射
//	@Produce		json
//	@Param			id	path		int					true	"映射 ID"
//	@Success		200	{object}	map[string]string	"已删除"
//	@Failure		404	{object}	map[string]string	"映射不存在"
//	@Router			/api/v1/admin/mappings/{id} [delete]
func DeleteMapping(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		return
	}

	ctx := c.Request.Context()
	svc := service.NewMappingService(ctx)

	if err := svc.Delete(ctx, adminActor(c), id); err != nil {
		writeServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "mapping deleted"})
}

// ResetArtifact 把工件重置回 PENDING.
//
//	@Summary		重置工件
//	@Description	管理员把任意状态的工件拉回 PENDING，清除错误痕迹，保留活动日志
//	@Tags			管理/工件
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"工件 ID"
//	@Param			request	body		types.ResetRequest	false	"重置原因"
//	@Success		200		{object}	types.ArtifactView	"已重置"
//	@Failure		404		{object}	map[string]string	"工件不存在"
//	@Router			/api/v1/admin/artifacts/{id}/reset [post]
func ResetArtifact(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		return
	}

	var req types.ResetRequest
	_ = c.ShouldBind(&req)

	ctx := c.Request.Context()
	svc := service.NewArtifactService(ctx)

	a, err := svc.Reset(ctx, adminActor(c), id, req.Reason)
	if err != nil {
		writeServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, artifactView(a))
}

// SupersedeArtifact 以修正过的身份替换工件.
//
//	@Summary		替换工件身份
//	@Description	旧工件转入 DELETED 并释放身份，新工件继承内容引用与修正后的身份，双向留痕
//	@Tags			管理/工件
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int						true	"工件 ID"
//	@Param			request	body		types.SupersedeRequest	true	"修正后的身份"
//	@Success		200		{object}	types.ArtifactView		"替换后的新工件"
//	@Failure		404		{object}	map[string]string		"工件不存在"
//	@Failure		409		{object}	map[string]string		"修正身份与存活工件冲突"
//	@Router			/api/v1/admin/artifacts/{id}/supersede [post]
func SupersedeArtifact(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		return
	}

	var req types.SupersedeRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	ctx := c.Request.Context()
	svc := service.NewArtifactService(ctx)

	replacement, err := svc.Supersede(ctx, adminActor(c), id, &req)
	if err != nil {
		writeServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, artifactView(replacement))
}

// DeleteArtifact 软删除工件.
//
//	@Summary		删除工件
//	@Description	软删除：状态转入 DELETED 并释放身份三元组，允许同一身份重新上传
//	@Tags			管理/工件
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"工件 ID"
//	@Param			request	body		types.DeleteRequest	true	"删除原因"
//	@Success		200		{object}	map[string]string	"已删除"
//	@Failure		404		{object}	map[string]string	"工件不存在"
//	@Router			/api/v1/admin/artifacts/{id} [delete]
func DeleteArtifact(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		return
	}

	var req types.DeleteRequest
	if err := c.ShouldBind(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	ctx := c.Request.Context()
	svc := service.NewArtifactService(ctx)

	if err := svc.SoftDelete(ctx, adminActor(c), id, req.Reason); err != nil {
		writeServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "artifact deleted"})
}

// ClearArtifactTransaction 清除工件的幂等键.
//
//	@Summary		清除幂等键
//	@Description	释放工件占用的幂等键，用于人工解除顽固的唯一约束冲突
//	@Tags			管理/工件
//	@Produce		json
//	@Param			id	path		int					true	"工件 ID"
//	@Success		200	{object}	types.ArtifactView	"已清除"
//	@Failure		404	{object}	map[string]string	"工件不存在"
//	@Router			/api/v1/admin/artifacts/{id}/transaction [delete]
func ClearArtifactTransaction(c *gin.Context) {
	id, err := parseIDParam(c)
	if err != nil {
		return
	}

	ctx := c.Request.Context()
	svc := service.NewArtifactService(ctx)

	a, err := svc.ClearTransactionID(ctx, adminActor(c), id)
	if err != nil {
		writeServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, artifactView(a))
}

// StatusStats 按状态统计工件数量.
//
//	@Summary		工件状态统计
//	@Tags			管理/统计
//	@Produce		json
//	@Success		200	{object}	types.StatusStatsResponse	"各状态数量"
//	@Router			/api/v1/admin/stats/status [get]
func StatusStats(c *gin.Context) {
	ctx := c.Request.Context()
	svc := service.NewArtifactService(ctx)

	counts, err := svc.CountByStatus(ctx)
	if err != nil {
		writeServiceError(c, err)

		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	c.JSON(http.StatusOK, types.StatusStatsResponse{Counts: counts, Total: total})
}

// QueueStatus 查看重试队列.
//
//	@Summary		查询重试队列
//	@Tags			管理/队列
//	@Produce		json
//	@Param			limit	query		int							false	"返回条目上限"
//	@Success		200		{object}	types.QueueStatusResponse	"队列条目"
//	@Router			/api/v1/admin/queue [get]
func QueueStatus(c *gin.Context) {
	ctx := c.Request.Context()
	svc := service.NewRetryService(ctx)

	limit := defaultListLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}

	items, err := svc.List(ctx, limit)
	if err != nil {
		writeServiceError(c, err)

		return
	}

	resp := types.QueueStatusResponse{
		Items: make([]types.QueueItemView, 0, len(items)),
		Total: len(items),
	}
	for i := range items {
		resp.Items = append(resp.Items, queueItemView(&items[i]))
	}

	c.JSON(http.StatusOK, resp)
}

// DrainQueue 手动触发一轮重试队列排空.
//
//	@Summary		排空重试队列
//	@Description	立即处理一批到期的重试条目，与定时任务走同一条路径
//	@Tags			管理/队列
//	@Produce		json
//	@Success		200	{object}	types.DrainStats	"批次统计"
//	@Router			/api/v1/admin/queue/drain [post]
func DrainQueue(c *gin.Context) {
	l := log.Logger()
	ctx := c.Request.Context()
	svc := service.NewRetryService(ctx)

	stats, err := svc.Drain(ctx)
	if err != nil {
		l.Error().Err(err).Msg("manual queue drain failed")
		writeServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, stats)
}

// RequeueStaleItems 回收滞留的 PROCESSING 条目.
//
//	@Summary		回收滞留条目
//	@Tags			管理/队列
//	@Produce		json
//	@Success		200	{object}	map[string]int	"回收数量"
//	@Router			/api/v1/admin/queue/requeue-stale [post]
func RequeueStaleItems(c *gin.Context) {
	ctx := c.Request.Context()
	svc := service.NewRetryService(ctx)

	count, err := svc.RequeueStale(ctx)
	if err != nil {
		writeServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, gin.H{"requeued": count})
}

// ListAudit 查询审计日志.
//
//	@Summary		查询审计日志
//	@Description	不带参数时返回最近条目，带 artifact_id 时返回该工件的全部条目及交叉引用
//	@Tags			管理/审计
//	@Produce		json
//	@Param			artifact_id	query		int						false	"按工件过滤"
//	@Param			limit		query		int						false	"返回条目上限"
//	@Success		200			{object}	types.AuditListResponse	"审计条目"
//	@Router			/api/v1/admin/audit [get]
func ListAudit(c *gin.Context) {
	ctx := c.Request.Context()
	svc := service.NewAuditService(ctx)

	var (
		entries []model.AuditLog
		err     error
	)

	if v, aerr := strconv.ParseUint(c.Query("artifact_id"), 10, 64); aerr == nil {
		entries, err = svc.ListForArtifact(ctx, uint(v))
	} else {
		limit := defaultListLimit
		if n, lerr := strconv.Atoi(c.Query("limit")); lerr == nil && n > 0 {
			limit = n
		}

		entries, err = svc.ListRecent(ctx, limit)
	}

	if err != nil {
		writeServiceError(c, err)

		return
	}

	resp := types.AuditListResponse{
		Entries: make([]types.AuditEntryView, 0, len(entries)),
		Total:   len(entries),
	}
	for i := range entries {
		resp.Entries = append(resp.Entries, auditEntryView(&entries[i]))
	}

	c.JSON(http.StatusOK, resp)
}

func parseIDParam(c *gin.Context) (uint, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})

		return 0, err
	}

	return uint(id), nil
}

func mappingView(m *model.SubjectMapping) types.MappingView {
	return types.MappingView{
		ID:           m.ID,
		SubjectCode:  m.SubjectCode,
		CourseID:     m.CourseID,
		AssignmentID: m.AssignmentID,
		ExamSession:  m.ExamSession,
		Active:       m.Active,
		Remark:       m.Remark,
		UpdatedAt:    m.UpdatedAt,
	}
}

func queueItemView(item *model.SubmissionQueue) types.QueueItemView {
	return types.QueueItemView{
		ID:          item.ID,
		ArtifactID:  item.ArtifactID,
		Priority:    item.Priority,
		Status:      string(item.Status),
		Attempts:    item.Attempts,
		MaxRetries:  item.MaxRetries,
		LastError:   item.LastError,
		QueuedAt:    item.QueuedAt,
		ProcessedAt: item.ProcessedAt,
	}
}

func auditEntryView(e *model.AuditLog) types.AuditEntryView {
	return types.AuditEntryView{
		ID:         e.ID,
		Actor:      e.Actor,
		Action:     e.Action,
		Category:   e.Category,
		ArtifactID: e.ArtifactID,
		TargetType: e.TargetType,
		TargetID:   e.TargetID,
		Detail:     e.Detail,
		CreatedAt:  e.CreatedAt,
	}
}

package handle

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/service"
	"github.com/yeisme/exambridge/pkg/internal/types"
)

// ListArtifacts 列出调用者的工件.
//
//	@Summary		查询工件列表
//	@Description	按归属身份列出工件，可用 status 参数过滤
//	@Tags			工件
//	@Produce		json
//	@Param			owner	query		string						false	"归属身份（或经 X-Owner-Identity 请求头传入）"
//	@Param			status	query		string						false	"按工作流状态过滤"
//	@Success		200		{object}	types.ArtifactListResponse	"工件列表"
//	@Failure		400		{object}	map[string]string			"归属身份缺失或非法"
//	@Router			/api/v1/artifacts [get]
func ListArtifacts(c *gin.Context) {
	owner, err := checkOwner(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	ctx := c.Request.Context()
	svc := service.NewArtifactService(ctx)

	var statuses []model.WorkflowStatus
	if s := c.Query("status"); s != "" {
		statuses = append(statuses, model.WorkflowStatus(s))
	}

	artifacts, err := svc.ListByOwner(ctx, owner, statuses...)
	if err != nil {
		writeServiceError(c, err)

		return
	}

	resp := types.ArtifactListResponse{
		Artifacts: make([]types.ArtifactView, 0, len(artifacts)),
		Total:     len(artifacts),
	}
	for i := range artifacts {
		resp.Artifacts = append(resp.Artifacts, artifactView(&artifacts[i]))
	}

	c.JSON(http.StatusOK, resp)
}

// GetArtifact 按 ID 或公开 UUID 取单个工件.
//
//	@Summary		查询单个工件
//	@Description	路径参数为数字时按主键查找，否则按公开 UUID 查找
//	@Tags			工件
//	@Produce		json
//	@Param			id	path		string				true	"工件 ID 或 UUID"
//	@Success		200	{object}	types.ArtifactView	"工件详情"
//	@Failure		404	{object}	map[string]string	"工件不存在"
//	@Router			/api/v1/artifacts/{id} [get]
func GetArtifact(c *gin.Context) {
	a, err := loadArtifact(c)
	if err != nil {
		writeServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, artifactView(a))
}

// GetArtifactLog 返回工件的活动日志与关联审计条目.
//
//	@Summary		查询工件活动日志
//	@Description	返回工件内嵌的全部活动日志条目，按时间追加顺序
//	@Tags			工件
//	@Produce		json
//	@Param			id	path		string						true	"工件 ID 或 UUID"
//	@Success		200	{object}	types.ArtifactLogResponse	"活动日志"
//	@Failure		404	{object}	map[string]string			"工件不存在"
//	@Router			/api/v1/artifacts/{id}/log [get]
func GetArtifactLog(c *gin.Context) {
	a, err := loadArtifact(c)
	if err != nil {
		writeServiceError(c, err)

		return
	}

	entries, err := a.LogEntries()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	resp := types.ArtifactLogResponse{
		ArtifactID: a.ID,
		Entries:    make([]types.ArtifactLogEntry, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, types.ArtifactLogEntry{
			At:     e.At,
			Event:  e.Event,
			Detail: e.Detail,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// loadArtifact 解析路径参数并加载工件.
func loadArtifact(c *gin.Context) (*model.Artifact, error) {
	ctx := c.Request.Context()
	svc := service.NewArtifactService(ctx)

	param := c.Param("id")
	if id, err := strconv.ParseUint(param, 10, 64); err == nil {
		return svc.Get(ctx, uint(id))
	}

	return svc.GetByUUID(ctx, param)
}

func artifactView(a *model.Artifact) types.ArtifactView {
	view := types.ArtifactView{
		ID:          a.ID,
		UUID:        a.UUID,
		FileName:    a.FileName,
		Size:        a.Size,
		ContentType: a.ContentType,
		Checksum:    a.Checksum,
		Status:      string(a.Status),
		Attempts:    a.Attempts,
		LastError:   a.LastError,
		SubmittedAt: a.SubmittedAt,
		CreatedAt:   a.CreatedAt,
		UpdatedAt:   a.UpdatedAt,
	}

	if a.TransactionID != nil {
		view.TransactionID = *a.TransactionID
	}

	if owner, subject, period, ok := a.Identity(); ok {
		view.OwnerIdentity = owner
		view.SubjectCode = subject
		view.Period = period
	}

	if a.SubmissionID != nil {
		view.SubmissionID = *a.SubmissionID
	}

	return view
}

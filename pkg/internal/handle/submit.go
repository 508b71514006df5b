package handle

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/exambridge/pkg/internal/lms"
	"github.com/yeisme/exambridge/pkg/internal/service"
	"github.com/yeisme/exambridge/pkg/internal/types"
	"github.com/yeisme/exambridge/pkg/log"
)

// SubmitArtifact 以学生本人凭据发起一次远端提交.
//
//	@Summary		提交工件到学习平台
//	@Description	执行完整提交协议：上传草稿、校验目标、挂接、独立复核、条件最终化；瞬时故障自动入重试队列
//	@Tags			提交
//	@Accept			json
//	@Produce		json
//	@Param			id		path		int					true	"工件 ID"
//	@Param			request	body		types.SubmitRequest	true	"归属身份与学习平台凭据"
//	@Success		200		{object}	types.SubmitResult	"远端已受理"
//	@Success		202		{object}	types.SubmitResult	"瞬时故障，已入重试队列"
//	@Failure		400		{object}	map[string]string	"请求参数错误"
//	@Failure		403		{object}	types.SubmitResult	"调用者不持有该工件"
//	@Failure		404		{object}	map[string]string	"工件不存在"
//	@Failure		422		{object}	types.SubmitResult	"远端拒绝，永久失败"
//	@Router			/api/v1/artifacts/{id}/submit [post]
func SubmitArtifact(c *gin.Context) {
	l := log.Logger()

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid artifact id"})

		return
	}

	var req types.SubmitRequest
	if err := c.ShouldBind(&req); err != nil {
		l.Warn().Err(err).Msg("invalid submit request")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	ctx := c.Request.Context()
	svc := service.NewSubmissionService(ctx)

	cred := lms.Credential{Username: req.Username, Password: req.Password}

	result, err := svc.Submit(ctx, uint(id), req.OwnerIdentity, cred, req.Finalize)

	switch {
	case err == nil:
		c.JSON(http.StatusOK, result)
	case service.IsTransientExternal(err):
		// 已入重试队列，结果体带 queued 标记
		c.JSON(http.StatusAccepted, result)
	case service.IsPermanentExternal(err):
		c.JSON(http.StatusUnprocessableEntity, result)
	case service.IsAuthorization(err):
		c.JSON(http.StatusForbidden, result)
	case service.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case service.IsValidation(err):
		c.JSON(http.StatusBadRequest, result)
	default:
		l.Error().Err(err).Uint64("artifact_id", id).Msg("submission failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// GetRemoteStatus 探查工件在远端的提交状态.
//
//	@Summary		探查远端提交状态
//	@Description	以管理员令牌直接读取远端平台上的提交快照，不产生任何副作用
//	@Tags			提交
//	@Produce		json
//	@Param			id	path		int					true	"工件 ID"
//	@Success		200	{object}	lms.SubmissionStatus	"远端提交快照"
//	@Failure		404	{object}	map[string]string	"工件或映射不存在"
//	@Failure		502	{object}	map[string]string	"远端不可达"
//	@Router			/api/v1/artifacts/{id}/remote [get]
func GetRemoteStatus(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid artifact id"})

		return
	}

	ctx := c.Request.Context()
	svc := service.NewSubmissionService(ctx)

	status, err := svc.ProbeRemote(ctx, uint(id))
	if err != nil {
		writeServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, status)
}

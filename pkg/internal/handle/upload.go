package handle

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/exambridge/pkg/internal/model"
	"github.com/yeisme/exambridge/pkg/internal/service"
	"github.com/yeisme/exambridge/pkg/internal/types"
	"github.com/yeisme/exambridge/pkg/log"
)

// UploadScan 接收一份扫描件并做幂等解析.
//
//	@Summary		上传考试扫描件
//	@Description	接收 multipart 扫描件，从文件名解析学号与科目代码，写入对象存储并按幂等键解析工件；同一身份重复上传复用原工件
//	@Tags			扫描件
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file						true	"扫描件文件（pdf/jpg/jpeg/png）"
//	@Success		200		{object}	types.UploadScanResponse	"工件已创建或复用"
//	@Failure		400		{object}	map[string]string			"请求参数错误"
//	@Failure		409		{object}	map[string]string			"与存活工件冲突"
//	@Failure		422		{object}	types.UploadScanResponse	"文件名无法解析，已留痕"
//	@Failure		500		{object}	map[string]string			"服务器内部错误"
//	@Router			/api/v1/scans [post]
func UploadScan(c *gin.Context) {
	l := log.Logger()

	fileHeader, err := c.FormFile("file")
	if err != nil {
		l.Warn().Err(err).Msg("missing scan file in upload request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})

		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		l.Error().Err(err).Msg("failed to open uploaded scan")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}
	defer f.Close() //nolint:errcheck

	ctx := c.Request.Context()
	svc := service.NewArtifactService(ctx)

	a, reupload, err := svc.Ingest(ctx, fileHeader.Filename, f, fileHeader.Size,
		fileHeader.Header.Get("Content-Type"))
	if err != nil {
		// 无法解析的文件已作为 FAILED 工件留痕，返回引用供人工处理
		if service.IsValidation(err) && a != nil {
			c.JSON(http.StatusUnprocessableEntity, uploadResponse(a, false, err))

			return
		}

		l.Warn().Err(err).Str("file", fileHeader.Filename).Msg("scan ingest failed")
		writeServiceError(c, err)

		return
	}

	c.JSON(http.StatusOK, uploadResponse(a, reupload, nil))
}

func uploadResponse(a *model.Artifact, reupload bool, err error) *types.UploadScanResponse {
	resp := &types.UploadScanResponse{
		ArtifactID: a.ID,
		UUID:       a.UUID,
		Status:     string(a.Status),
		Reupload:   reupload,
		Checksum:   a.Checksum,
	}

	if a.TransactionID != nil {
		resp.TransactionID = *a.TransactionID
	}

	if owner, subject, period, ok := a.Identity(); ok {
		resp.OwnerIdentity = owner
		resp.SubjectCode = subject
		resp.Period = period
	}

	if err != nil {
		resp.Error = err.Error()
	}

	return resp
}

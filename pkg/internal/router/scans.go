package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/exambridge/pkg/internal/handle"
)

// RegisterScanRoutes 注册扫描件上传与工件查询路由.
func RegisterScanRoutes(g *gin.RouterGroup) {
	// 扫描件入口
	g.POST("/scans", handle.UploadScan)

	// 工件查询与提交
	artifactRoutes := g.Group("/artifacts")
	{
		artifactRoutes.GET("", handle.ListArtifacts)

		singleGroup := artifactRoutes.Group("/:id")
		{
			singleGroup.GET("", handle.GetArtifact)
			// 活动日志
			singleGroup.GET("/log", handle.GetArtifactLog)
			// 发起远端提交
			singleGroup.POST("/submit", handle.SubmitArtifact)
			// 远端状态探查
			singleGroup.GET("/remote", handle.GetRemoteStatus)
		}
	}
}

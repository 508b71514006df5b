package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/exambridge/pkg/configs"
	"github.com/yeisme/exambridge/pkg/internal/handle"
	"github.com/yeisme/exambridge/pkg/middleware"
)

// RegisterAdminRoutes 注册管理端路由，整组挂共享令牌校验.
func RegisterAdminRoutes(g *gin.RouterGroup, auth configs.AuthConfig) {
	adminRoutes := g.Group("/admin", middleware.AdminAuthMiddleware(auth))
	{
		// 科目映射管理
		mappingGroup := adminRoutes.Group("/mappings")
		{
			mappingGroup.GET("", handle.ListMappings)
			mappingGroup.POST("", handle.CreateMapping)
			mappingGroup.PUT("/:id", handle.UpdateMapping)
			mappingGroup.DELETE("/:id", handle.DeleteMapping)
		}

		// 工件管理操作
		artifactGroup := adminRoutes.Group("/artifacts/:id")
		{
			artifactGroup.POST("/reset", handle.ResetArtifact)
			artifactGroup.POST("/supersede", handle.SupersedeArtifact)
			artifactGroup.DELETE("", handle.DeleteArtifact)
			artifactGroup.DELETE("/transaction", handle.ClearArtifactTransaction)
		}

		// 统计与审计
		adminRoutes.GET("/stats/status", handle.StatusStats)
		adminRoutes.GET("/audit", handle.ListAudit)

		// 重试队列
		queueGroup := adminRoutes.Group("/queue")
		{
			queueGroup.GET("", handle.QueueStatus)
			queueGroup.POST("/drain", handle.DrainQueue)
			queueGroup.POST("/requeue-stale", handle.RequeueStaleItems)
		}

		// 调度器
		RegisterSchedulerRoutes(adminRoutes)
	}
}

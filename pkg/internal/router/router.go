// Package router 管理路由配置，用于设置HTTP服务的路由规则.
package router

import (
	"github.com/gin-gonic/gin"

	"github.com/yeisme/exambridge/pkg/configs"
)

// RegisterRoutes 把全部业务路由绑定到 /api/v1 分组.
// 管理路由组带共享令牌校验，其余路由按请求体/请求头自证身份.
func RegisterRoutes(engine *gin.Engine, cfg *configs.AppConfig) {
	api := engine.Group("/api/v1")

	RegisterScanRoutes(api)
	RegisterAdminRoutes(api, cfg.Auth)
	RegisterHealthCheckRoute(api)
}

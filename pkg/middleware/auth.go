package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/exambridge/pkg/configs"
)

// AdminAuthMiddleware 校验管理端共享令牌.
// 令牌经 X-Admin-Token 请求头传入，仅挂在管理路由组上.
func AdminAuthMiddleware(conf configs.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !conf.Enabled {
			c.Next()
			return
		}

		token := strings.TrimSpace(c.GetHeader("X-Admin-Token"))
		if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(conf.AdminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})

			return
		}

		c.Next()
	}
}

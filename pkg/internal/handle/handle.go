// Package handle 提供请求处理器的实现，用于处理HTTP请求.
package handle

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yeisme/exambridge/pkg/internal/service"
	"github.com/yeisme/exambridge/pkg/rule"
)

func DefaultHandler(c *gin.Context) {
	c.JSON(http.StatusNotImplemented, gin.H{"message": "Not Implemented"})
}

// checkOwner 提取调用者的归属身份：Header 优先 -> query 参数.
func checkOwner(c *gin.Context) (string, error) {
	owner := c.GetHeader("X-Owner-Identity")
	if owner == "" {
		owner = c.Query("owner")
	}

	owner = strings.TrimSpace(owner)

	// 归属身份为 12 位数字学号
	if err := rule.ValidateVar(owner, "required,len=12,number"); err != nil {
		return "", err
	}

	return owner, nil
}

// adminActor 管理操作的操作者标识，进入审计日志.
func adminActor(c *gin.Context) string {
	actor := strings.TrimSpace(c.GetHeader("X-Admin-User"))
	if actor == "" {
		actor = "admin"
	}

	return actor
}

// writeServiceError 将服务层错误映射为 HTTP 状态码.
func writeServiceError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case service.IsValidation(err):
		status = http.StatusBadRequest
	case service.IsAuthorization(err):
		status = http.StatusForbidden
	case service.IsNotFound(err):
		status = http.StatusNotFound
	case service.IsConflict(err):
		status = http.StatusConflict
	case service.IsTransientExternal(err), service.IsPermanentExternal(err):
		status = http.StatusBadGateway
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

package api

import (
	"github.com/gin-gonic/gin"

	"github.com/namishanaseem-clustox/ATS/internal/requisition"
)

func userIDFromContext(c *gin.Context) (uint, bool) {
	value, exists := c.Get("userID")
	if !exists {
		return 0, false
	}

	switch v := value.(type) {
	case uint:
		return v, true
	case int:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	case uint64:
		return uint(v), true
	case int64:
		if v < 0 {
			return 0, false
		}
		return uint(v), true
	default:
		return 0, false
	}
}

func roleFromContext(c *gin.Context) (string, bool) {
	value, exists := c.Get("userRole")
	if !exists {
		return "", false
	}
	role, ok := value.(string)
	return role, ok
}

func departmentIDFromContext(c *gin.Context) *uint {
	value, exists := c.Get("departmentID")
	if !exists {
		return nil
	}
	if id, ok := value.(uint); ok {
		return &id
	}
	return nil
}

// actorFromContext 从认证中间件注入的上下文组装工作流的执行者身份。
func actorFromContext(c *gin.Context) (requisition.Actor, bool) {
	userID, ok := userIDFromContext(c)
	if !ok {
		return requisition.Actor{}, false
	}
	role, ok := roleFromContext(c)
	if !ok {
		return requisition.Actor{}, false
	}
	return requisition.Actor{
		UserID:       userID,
		Role:         role,
		DepartmentID: departmentIDFromContext(c),
	}, true
}

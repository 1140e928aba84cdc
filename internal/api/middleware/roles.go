package middleware

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
)

// RequireRoles 限制端点只允许给定角色访问，须在 AuthMiddleware 之后使用。
func RequireRoles(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok := c.Get("userRole")
		if !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		role, ok := value.(string)
		if !ok || !slices.Contains(roles, role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}

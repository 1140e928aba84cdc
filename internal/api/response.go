package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/namishanaseem-clustox/ATS/internal/errcode"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

func Unauthorized(c *gin.Context)           { Error(c, http.StatusUnauthorized, "unauthorized") }
func BadRequest(c *gin.Context, msg string) { Error(c, http.StatusBadRequest, msg) }
func Forbidden(c *gin.Context, msg string)  { Error(c, http.StatusForbidden, msg) }
func NotFound(c *gin.Context, msg string)   { Error(c, http.StatusNotFound, msg) }
func Conflict(c *gin.Context, msg string)   { Error(c, http.StatusConflict, msg) }
func Internal(c *gin.Context, msg string)   { Error(c, http.StatusInternalServerError, msg) }

// DomainError 把业务错误类别翻译为对应的 HTTP 状态码。
// 未携带类别的错误一律按内部错误处理，避免把底层细节透给调用方。
func DomainError(c *gin.Context, err error, fallback string) {
	switch errcode.KindOf(err) {
	case errcode.KindNotFound:
		NotFound(c, err.Error())
	case errcode.KindForbidden:
		Forbidden(c, err.Error())
	case errcode.KindInvalidState, errcode.KindInvalidOperation:
		BadRequest(c, err.Error())
	default:
		Internal(c, fallback)
	}
}

// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"extractlab-go/internal/apperr"
	"extractlab-go/internal/model"
)

// respondOK 以统一的响应信封返回成功结果。
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    data,
	})
}

// respondError 按错误分类映射 HTTP 状态码并返回错误信封。
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var validation *apperr.ValidationError
	var referential *apperr.ReferentialError
	var precondition *apperr.PreconditionError
	var integrity *apperr.DataIntegrityError
	var transient *apperr.TransientExecutionError

	switch {
	case errors.As(err, &validation):
		status = http.StatusBadRequest
	case errors.As(err, &referential):
		status = http.StatusNotFound
	case errors.As(err, &precondition):
		status = http.StatusConflict
	case errors.As(err, &integrity):
		status = http.StatusUnprocessableEntity
	case errors.As(err, &transient):
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"code":    status,
		"message": err.Error(),
	})
}

// principalFrom 返回认证中间件注入的用户名，作为写操作的审计主体。
func principalFrom(c *gin.Context) string {
	if v, ok := c.Get("user"); ok {
		if u, ok := v.(*model.User); ok {
			return u.Username
		}
	}
	return "anonymous"
}

// currentUser 返回认证中间件注入的完整用户对象。
func currentUser(c *gin.Context) (*model.User, bool) {
	v, ok := c.Get("user")
	if !ok {
		return nil, false
	}
	u, ok := v.(*model.User)
	return u, ok
}

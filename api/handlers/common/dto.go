// Package common 处理器共用的响应结构与错误映射
package common

import (
	"errors"
	"net/http"

	"usagehub/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse 统一错误返回结构，与现有看板前端兼容
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse 写操作的成功标记
type SuccessResponse struct {
	Success bool `json:"success"`
}

// BadRequest 400
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// InternalError 500，同时记录带 trace_id 的错误日志
func InternalError(c *gin.Context, err error) {
	logger.WithContext(c.Request.Context()).Error("请求处理失败",
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
}

// Fail 命中 badRequest 中任一哨兵错误时返回 400，否则 500
func Fail(c *gin.Context, err error, badRequest ...error) {
	for _, target := range badRequest {
		if errors.Is(err, target) {
			BadRequest(c, err.Error())
			return
		}
	}
	InternalError(c, err)
}

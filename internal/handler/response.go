// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"portfolio-go/internal/service"
	"portfolio-go/pkg/llm"
	"portfolio-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// 错误类别，前端据此区分展示。
const (
	kindInvalidRequest = "invalid_request"
	kindExhausted      = "all_providers_exhausted"
	kindCancelled      = "request_cancelled"
	kindInternal       = "internal_error"
)

// timestamp 返回 ISO-8601 格式的 UTC 时间，精确到毫秒。
func timestamp() string {
	return time.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00")
}

// isValidationError 判断是否为请求校验失败。
func isValidationError(err error) bool {
	return errors.Is(err, service.ErrMessageRequired) || errors.Is(err, service.ErrElementInfoRequired)
}

// validationMessage 返回校验失败时展示给用户的提示。
func validationMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrElementInfoRequired):
		return "Element info is required"
	case errors.Is(err, service.ErrMessageRequired):
		return "Message is required"
	default:
		return "Invalid request"
	}
}

// errorKind 将聊天服务返回的错误映射为错误类别。
func errorKind(err error) string {
	var exhausted *llm.ExhaustedError
	switch {
	case isValidationError(err):
		return kindInvalidRequest
	case errors.As(err, &exhausted):
		return kindExhausted
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return kindCancelled
	default:
		return kindInternal
	}
}

// writeChatError 输出聊天请求的错误响应：校验失败 400，其余 500。
func writeChatError(c *gin.Context, err error) {
	if isValidationError(err) {
		c.JSON(http.StatusBadRequest, gin.H{"error": validationMessage(err)})
		return
	}
	log.Errorf("聊天请求失败: %v", err)
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":     "Failed to process chat request",
		"kind":      errorKind(err),
		"details":   err.Error(),
		"timestamp": timestamp(),
	})
}

// pageParams 解析分页参数，非法值交给服务层归一化。
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))
	return page, size
}

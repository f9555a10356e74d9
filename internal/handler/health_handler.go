package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// HealthHandler 报告进程存活状态以及可选组件是否启用。
type HealthHandler struct {
	components map[string]bool
}

// NewHealthHandler 创建一个新的 HealthHandler。components 的键为组件名，值为是否启用。
func NewHealthHandler(components map[string]bool) *HealthHandler {
	return &HealthHandler{components: components}
}

// Health 处理 GET /health。
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"components": h.components,
		"timestamp":  timestamp(),
	})
}

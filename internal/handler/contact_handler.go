package handler

import (
	"net/http"

	"portfolio-go/internal/model"
	"portfolio-go/internal/service"
	"portfolio-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ContactHandler 处理联系表单提交。
type ContactHandler struct {
	contactService service.ContactService
}

// NewContactHandler 创建一个新的 ContactHandler。
func NewContactHandler(contactService service.ContactService) *ContactHandler {
	return &ContactHandler{contactService: contactService}
}

// Submit 处理 POST /contact，同时接受表单和 JSON。
func (h *ContactHandler) Submit(c *gin.Context) {
	var form model.ContactForm
	if err := c.ShouldBind(&form); err != nil {
		log.Warnf("联系表单参数错误: %v", err)
		c.JSON(http.StatusBadRequest, model.ContactResult{Error: "Invalid form submission"})
		return
	}

	res := h.contactService.Submit(c.Request.Context(), form)
	switch {
	case res.Success:
		c.JSON(http.StatusOK, res)
	case res.Kind == model.ContactUnavailable:
		c.JSON(http.StatusServiceUnavailable, res)
	default:
		c.JSON(http.StatusBadRequest, res)
	}
}

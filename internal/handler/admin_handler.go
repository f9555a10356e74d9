package handler

import (
	"errors"
	"net/http"

	"portfolio-go/internal/service"
	"portfolio-go/pkg/log"
	"portfolio-go/pkg/token"

	"github.com/gin-gonic/gin"
)

// AdminHandler 负责处理所有与管理员相关的 API 请求。
type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler 创建一个新的 AdminHandler 实例。
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// LoginRequest 定义了管理员登录 API 的请求体结构。
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login 处理 POST /admin/login。
func (h *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("Login 接口参数绑定失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	resp, err := h.adminService.Login(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			log.Warnf("管理员登录失败, username: %s", req.Username)
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		log.Errorf("生成 token 失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}
	log.Infof("管理员登录成功, username: %s", req.Username)
	c.JSON(http.StatusOK, resp)
}

// RefreshGitHub 处理 POST /admin/github/refresh，强制重新拉取 GitHub 快照。
func (h *AdminHandler) RefreshGitHub(c *gin.Context) {
	log.Infof("管理员 %s 触发 GitHub 快照刷新", adminName(c))
	snap, err := h.adminService.RefreshGitHub(c.Request.Context())
	if err != nil {
		log.Errorf("强制刷新 GitHub 快照失败: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "GitHub refresh failed", "details": err.Error(), "timestamp": timestamp()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":              snap.Success,
		"total_fetched":        snap.TotalFetched,
		"fetched_at":           snap.FetchedAt,
		"rate_limit_remaining": snap.RateLimitRemaining,
	})
}

// ListContacts 处理 GET /admin/contacts?page=&size=。
func (h *AdminHandler) ListContacts(c *gin.Context) {
	page, size := pageParams(c)
	resp, err := h.adminService.ListContacts(c.Request.Context(), page, size)
	if err != nil {
		writeAdminListError(c, "联系表单", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListConversations 处理 GET /admin/conversations?page=&size=，列出已记录的问答。
func (h *AdminHandler) ListConversations(c *gin.Context) {
	page, size := pageParams(c)
	resp, err := h.adminService.ListExchanges(c.Request.Context(), page, size)
	if err != nil {
		writeAdminListError(c, "对话记录", err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func writeAdminListError(c *gin.Context, what string, err error) {
	if errors.Is(err, service.ErrStorageDisabled) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	log.Errorf("查询%s失败: %v", what, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list " + c.FullPath()})
}

// adminName 从中间件设置的 claims 中取出用户名。
func adminName(c *gin.Context) string {
	if v, ok := c.Get("claims"); ok {
		if claims, ok := v.(*token.CustomClaims); ok {
			return claims.Username
		}
	}
	return "unknown"
}

package handler

import (
	"net/http"
	"strings"

	"portfolio-go/internal/service"
	"portfolio-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// GitHubHandler 负责 GitHub 展示相关的请求。
type GitHubHandler struct {
	githubService service.GitHubService
}

// NewGitHubHandler 创建一个新的 GitHubHandler。
func NewGitHubHandler(githubService service.GitHubService) *GitHubHandler {
	return &GitHubHandler{githubService: githubService}
}

// GetRepos 处理 GET /github-repos。
// 实时或旧快照返回 200；只能给出内置兜底数据时返回 500，但响应体依然完整，前端照常渲染。
func (h *GitHubHandler) GetRepos(c *gin.Context) {
	snap := h.githubService.Snapshot(c.Request.Context())
	status := http.StatusOK
	if !snap.Success {
		log.Warnf("GitHub 快照使用兜底数据: %s", snap.Error)
		status = http.StatusInternalServerError
	}
	c.JSON(status, snap)
}

// Search 处理 GET /github-repos/search?q=。
func (h *GitHubHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Query parameter q is required"})
		return
	}
	hits, err := h.githubService.SearchRepositories(c.Request.Context(), q)
	if err != nil {
		log.Errorf("仓库搜索失败, q: %s, error: %v", q, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to search repositories", "timestamp": timestamp()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "results": hits, "total": len(hits)})
}

// GetRepo 处理 GET /github-repos/:name，按名称或描述查找仓库。
func (h *GitHubHandler) GetRepo(c *gin.Context) {
	name := c.Param("name")
	repo := h.githubService.FindRepository(c.Request.Context(), name)
	if repo == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Repository not found", "name": name})
		return
	}
	c.JSON(http.StatusOK, repo)
}

package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"portfolio-go/internal/config"
	"portfolio-go/internal/middleware"
	"portfolio-go/internal/service"
	"portfolio-go/pkg/hash"
	"portfolio-go/pkg/token"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAdminRouter(t *testing.T) *gin.Engine {
	t.Helper()
	pw, err := hash.HashPassword("s3cret")
	require.NoError(t, err)

	jwtManager := token.NewJWTManager("test-secret", 1)
	gh := &stubGitHubService{snap: liveSnapshot()}
	svc := service.NewAdminService(config.AdminConfig{Username: "admin", PasswordHash: pw}, jwtManager, nil, nil, gh)
	h := NewAdminHandler(svc)

	r := gin.New()
	api := r.Group("/api")
	api.POST("/admin/login", h.Login)
	admin := api.Group("/admin", middleware.AdminAuthMiddleware(jwtManager))
	admin.POST("/github/refresh", h.RefreshGitHub)
	admin.GET("/contacts", h.ListContacts)
	admin.GET("/conversations", h.ListConversations)
	return r
}

func login(t *testing.T, r http.Handler) string {
	t.Helper()
	w := postJSON(r, "/api/admin/login", map[string]string{"username": "admin", "password": "s3cret"})
	require.Equal(t, http.StatusOK, w.Code)
	tok, _ := decode(t, w)["token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func authed(r http.Handler, method, path, tok string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminLogin(t *testing.T) {
	r := newAdminRouter(t)

	login(t, r)

	w := postJSON(r, "/api/admin/login", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = postJSON(r, "/api/admin/login", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRoutesRequireToken(t *testing.T) {
	r := newAdminRouter(t)

	w := authed(r, http.MethodPost, "/api/admin/github/refresh", "garbage")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAdminRefreshGitHub(t *testing.T) {
	r := newAdminRouter(t)
	tok := login(t, r)

	w := authed(r, http.MethodPost, "/api/admin/github/refresh", tok)

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, true, body["success"])
}

func TestAdminListsWithoutStorage(t *testing.T) {
	r := newAdminRouter(t)
	tok := login(t, r)

	assert.Equal(t, http.StatusServiceUnavailable, authed(r, http.MethodGet, "/api/admin/contacts?page=1&size=10", tok).Code)
	assert.Equal(t, http.StatusServiceUnavailable, authed(r, http.MethodGet, "/api/admin/conversations", tok).Code)
}

func TestHealth(t *testing.T) {
	h := NewHealthHandler(map[string]bool{"mysql": false, "redis": true})
	r := gin.New()
	r.GET("/api/health", h.Health)

	w := get(r, "/api/health")

	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, map[string]any{"mysql": false, "redis": true}, body["components"])
}

package service

import (
	"context"
	"errors"
	"time"

	"portfolio-go/internal/config"
	"portfolio-go/internal/model"
	"portfolio-go/internal/repository"
	"portfolio-go/pkg/hash"
	"portfolio-go/pkg/token"
)

var (
	// ErrInvalidCredentials 表示用户名或密码错误。
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrStorageDisabled 表示没有配置 MySQL，后台列表不可用。
	ErrStorageDisabled = errors.New("storage is not configured")
)

// PageResponse 定义了分页列表 API 的响应结构。
type PageResponse[T any] struct {
	Content       []T   `json:"content"`
	TotalElements int64 `json:"totalElements"`
	TotalPages    int   `json:"totalPages"`
	Size          int   `json:"size"`
	Number        int   `json:"number"`
}

// LoginResponse 是登录成功后返回的 token。
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AdminService 接口定义了所有管理员相关的业务操作。
type AdminService interface {
	Login(username, password string) (*LoginResponse, error)
	ListContacts(ctx context.Context, page, size int) (*PageResponse[model.ContactSubmission], error)
	ListExchanges(ctx context.Context, page, size int) (*PageResponse[model.ChatExchange], error)
	RefreshGitHub(ctx context.Context) (*model.GitHubSnapshot, error)
}

type adminService struct {
	cfg           config.AdminConfig
	jwtManager    *token.JWTManager
	contactRepo   repository.ContactRepository
	exchangeRepo  repository.ExchangeRepository
	githubService GitHubService
}

// NewAdminService 创建一个新的 AdminService 实例。两个仓储在未配置 MySQL 时为 nil。
func NewAdminService(cfg config.AdminConfig, jwtManager *token.JWTManager, contactRepo repository.ContactRepository, exchangeRepo repository.ExchangeRepository, githubService GitHubService) AdminService {
	return &adminService{
		cfg:           cfg,
		jwtManager:    jwtManager,
		contactRepo:   contactRepo,
		exchangeRepo:  exchangeRepo,
		githubService: githubService,
	}
}

func (s *adminService) Login(username, password string) (*LoginResponse, error) {
	if s.cfg.Username == "" || s.cfg.PasswordHash == "" || username != s.cfg.Username {
		return nil, ErrInvalidCredentials
	}
	if !hash.CheckPasswordHash(password, s.cfg.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	tok, expires, err := s.jwtManager.GenerateToken(username, "ADMIN")
	if err != nil {
		return nil, err
	}
	return &LoginResponse{Token: tok, ExpiresAt: expires}, nil
}

func (s *adminService) ListContacts(ctx context.Context, page, size int) (*PageResponse[model.ContactSubmission], error) {
	if s.contactRepo == nil {
		return nil, ErrStorageDisabled
	}
	page, size = normalizePage(page, size)
	rows, total, err := s.contactRepo.List(ctx, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	return newPage(rows, total, page, size), nil
}

func (s *adminService) ListExchanges(ctx context.Context, page, size int) (*PageResponse[model.ChatExchange], error) {
	if s.exchangeRepo == nil {
		return nil, ErrStorageDisabled
	}
	page, size = normalizePage(page, size)
	rows, total, err := s.exchangeRepo.List(ctx, (page-1)*size, size)
	if err != nil {
		return nil, err
	}
	return newPage(rows, total, page, size), nil
}

func (s *adminService) RefreshGitHub(ctx context.Context) (*model.GitHubSnapshot, error) {
	return s.githubService.Refresh(ctx)
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 || size > 100 {
		size = 20
	}
	return page, size
}

func newPage[T any](rows []T, total int64, page, size int) *PageResponse[T] {
	if rows == nil {
		rows = []T{}
	}
	return &PageResponse[T]{
		Content:       rows,
		TotalElements: total,
		TotalPages:    int((total + int64(size) - 1) / int64(size)),
		Size:          size,
		Number:        page,
	}
}

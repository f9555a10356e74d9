// Package github 是 GitHub REST API 的最小只读客户端，封装 go-github。
package github

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gogithub "github.com/google/go-github/v66/github"
)

const defaultAPIBase = "https://api.github.com"

// User 是账号资料中用到的字段。
type User struct {
	Login       string
	HTMLURL     string
	AvatarURL   *string
	Bio         *string
	Location    *string
	Blog        *string
	Company     *string
	PublicRepos int
	PublicGists int
	Followers   int
	Following   int
	CreatedAt   *time.Time
}

// License 是仓库许可证。
type License struct {
	Name string
}

// Repo 是仓库列表中的单个仓库，数值字段缺失时为零值。
type Repo struct {
	ID              int64
	Name            string
	Description     *string
	StargazersCount int
	ForksCount      int
	WatchersCount   int
	Language        *string
	HTMLURL         string
	Homepage        *string
	Topics          []string
	CreatedAt       *time.Time
	UpdatedAt       *time.Time
	PushedAt        *time.Time
	Size            *int
	OpenIssuesCount int
	Fork            bool
	Private         bool
	DefaultBranch   string
	License         *License
	HasIssues       bool
	HasProjects     bool
	HasWiki         bool
	Archived        bool
	Disabled        bool
}

// StatusError 表示 GitHub 返回了非 2xx 状态码。Err 是 go-github 的原始错误。
type StatusError struct {
	Endpoint   string
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("github %s api failed: %d", e.Endpoint, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// Client 调用 GitHub REST API。Token 可选，未配置时使用匿名请求。
type Client struct {
	gh            *gogithub.Client
	authenticated bool

	mu            sync.Mutex
	rateRemaining *int
}

// NewClient creates a GitHub API client. base 为空时使用 api.github.com。
func NewClient(base, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	gh := gogithub.NewClient(&http.Client{Timeout: timeout})
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	gh.UserAgent = "portfolio-app"
	if base != "" && strings.TrimRight(base, "/") != defaultAPIBase {
		u, err := url.Parse(strings.TrimRight(base, "/") + "/")
		if err == nil {
			gh.BaseURL = u
		}
	}
	return &Client{gh: gh, authenticated: token != ""}
}

// Authenticated 报告请求是否携带 token。
func (c *Client) Authenticated() bool {
	return c.authenticated
}

// GetUser 获取账号资料。
func (c *Client) GetUser(ctx context.Context, username string) (*User, error) {
	u, resp, err := c.gh.Users.Get(ctx, username)
	c.recordRateLimit(resp)
	if err != nil {
		return nil, wrapError("user", err)
	}
	return &User{
		Login:       u.GetLogin(),
		HTMLURL:     u.GetHTMLURL(),
		AvatarURL:   u.AvatarURL,
		Bio:         u.Bio,
		Location:    u.Location,
		Blog:        u.Blog,
		Company:     u.Company,
		PublicRepos: u.GetPublicRepos(),
		PublicGists: u.GetPublicGists(),
		Followers:   u.GetFollowers(),
		Following:   u.GetFollowing(),
		CreatedAt:   timeOf(u.CreatedAt),
	}, nil
}

// ListRepos 获取一页仓库，按更新时间排序。
func (c *Client) ListRepos(ctx context.Context, username string, page, perPage int) ([]Repo, error) {
	opts := &gogithub.RepositoryListByUserOptions{
		Sort:        "updated",
		ListOptions: gogithub.ListOptions{Page: page, PerPage: perPage},
	}
	list, resp, err := c.gh.Repositories.ListByUser(ctx, username, opts)
	c.recordRateLimit(resp)
	if err != nil {
		return nil, wrapError("repos", err)
	}

	repos := make([]Repo, 0, len(list))
	for _, r := range list {
		repo := Repo{
			ID:              r.GetID(),
			Name:            r.GetName(),
			Description:     r.Description,
			StargazersCount: r.GetStargazersCount(),
			ForksCount:      r.GetForksCount(),
			WatchersCount:   r.GetWatchersCount(),
			Language:        r.Language,
			HTMLURL:         r.GetHTMLURL(),
			Homepage:        r.Homepage,
			Topics:          r.Topics,
			CreatedAt:       timeOf(r.CreatedAt),
			UpdatedAt:       timeOf(r.UpdatedAt),
			PushedAt:        timeOf(r.PushedAt),
			Size:            r.Size,
			OpenIssuesCount: r.GetOpenIssuesCount(),
			Fork:            r.GetFork(),
			Private:         r.GetPrivate(),
			DefaultBranch:   r.GetDefaultBranch(),
			HasIssues:       r.GetHasIssues(),
			HasProjects:     r.GetHasProjects(),
			HasWiki:         r.GetHasWiki(),
			Archived:        r.GetArchived(),
			Disabled:        r.GetDisabled(),
		}
		if r.License != nil {
			repo.License = &License{Name: r.License.GetName()}
		}
		repos = append(repos, repo)
	}
	return repos, nil
}

// RateLimitRemaining 返回最近一次响应中的剩余配额，未知时为 nil。
func (c *Client) RateLimitRemaining() *int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.rateRemaining == nil {
		return nil
	}
	v := *c.rateRemaining
	return &v
}

func (c *Client) recordRateLimit(resp *gogithub.Response) {
	// 响应头里没有配额信息时 Rate 为零值，不能当作 0 记录
	if resp == nil || resp.Response == nil || resp.Header.Get("X-RateLimit-Remaining") == "" {
		return
	}
	n := resp.Rate.Remaining
	c.mu.Lock()
	c.rateRemaining = &n
	c.mu.Unlock()
}

// wrapError 把 go-github 的状态码错误转换为 StatusError，网络错误原样包装。
func wrapError(endpoint string, err error) error {
	var (
		rateErr  *gogithub.RateLimitError
		abuseErr *gogithub.AbuseRateLimitError
		respErr  *gogithub.ErrorResponse
		resp     *http.Response
	)
	switch {
	case errors.As(err, &rateErr):
		resp = rateErr.Response
	case errors.As(err, &abuseErr):
		resp = abuseErr.Response
	case errors.As(err, &respErr):
		resp = respErr.Response
	}
	if resp != nil {
		return &StatusError{Endpoint: endpoint, StatusCode: resp.StatusCode, Err: err}
	}
	return fmt.Errorf("failed to call github %s api: %w", endpoint, err)
}

func timeOf(ts *gogithub.Timestamp) *time.Time {
	if ts == nil {
		return nil
	}
	t := ts.Time
	return &t
}

// Package model 定义了服务内部以及对外 JSON 使用的数据结构。
package model

import "time"

// Repository 是单个 GitHub 仓库归一化后的快照。
// 可选字段使用指针，缺失时序列化为 null。
type Repository struct {
	ID            int64      `json:"id"`
	Name          string     `json:"name"`
	Description   string     `json:"description"`
	Stars         int        `json:"stars"`
	Forks         int        `json:"forks"`
	Watchers      int        `json:"watchers"`
	Language      *string    `json:"language"`
	URL           string     `json:"url"`
	Homepage      *string    `json:"homepage"`
	Topics        []string   `json:"topics"`
	CreatedAt     *time.Time `json:"created_at,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
	PushedAt      *time.Time `json:"pushed_at,omitempty"`
	Size          *int       `json:"size,omitempty"`
	OpenIssues    int        `json:"open_issues"`
	IsFeatured    bool       `json:"is_featured"`
	IsFork        bool       `json:"is_fork"`
	IsPrivate     bool       `json:"is_private"`
	DefaultBranch string     `json:"default_branch,omitempty"`
	License       *string    `json:"license"`
	HasIssues     bool       `json:"has_issues"`
	HasProjects   bool       `json:"has_projects"`
	HasWiki       bool       `json:"has_wiki"`
	Archived      bool       `json:"archived"`
	Disabled      bool       `json:"disabled"`
}

// ProfileStats 汇总一个账号的统计信息。
// TotalRepos 取自账号元数据，Stars/Forks 为所有已拉取仓库之和。
type ProfileStats struct {
	TotalRepos  int        `json:"total_repos"`
	TotalStars  int        `json:"total_stars"`
	TotalForks  int        `json:"total_forks"`
	Followers   int        `json:"followers"`
	Following   int        `json:"following"`
	ProfileURL  string     `json:"profile_url"`
	AvatarURL   *string    `json:"avatar_url"`
	Bio         *string    `json:"bio"`
	Location    *string    `json:"location"`
	Blog        *string    `json:"blog"`
	Company     *string    `json:"company"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	PublicGists int        `json:"public_gists"`
}

// GitHubSnapshot 是某一时刻的完整 GitHub 数据。缓存持有它，调用方只拿到副本。
type GitHubSnapshot struct {
	Success            bool         `json:"success"`
	Repositories       []Repository `json:"repositories"`
	Stats              ProfileStats `json:"stats"`
	FetchedAt          time.Time    `json:"fetched_at"`
	TotalFetched       int          `json:"total_fetched"`
	RateLimitRemaining *int         `json:"rate_limit_remaining,omitempty"`
	Error              string       `json:"error,omitempty"`
}

// Clone 返回深拷贝，调用方修改副本不会影响缓存中的快照。
func (s *GitHubSnapshot) Clone() *GitHubSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.Stats = s.Stats.clone()
	out.RateLimitRemaining = clonePtr(s.RateLimitRemaining)
	if s.Repositories != nil {
		out.Repositories = make([]Repository, len(s.Repositories))
		for i := range s.Repositories {
			out.Repositories[i] = s.Repositories[i].Clone()
		}
	}
	return &out
}

// Clone 返回仓库的深拷贝。
func (r Repository) Clone() Repository {
	out := r
	out.Language = clonePtr(r.Language)
	out.Homepage = clonePtr(r.Homepage)
	out.License = clonePtr(r.License)
	out.Size = clonePtr(r.Size)
	out.CreatedAt = clonePtr(r.CreatedAt)
	out.UpdatedAt = clonePtr(r.UpdatedAt)
	out.PushedAt = clonePtr(r.PushedAt)
	if r.Topics != nil {
		out.Topics = append([]string(nil), r.Topics...)
	}
	return out
}

func (p ProfileStats) clone() ProfileStats {
	out := p
	out.AvatarURL = clonePtr(p.AvatarURL)
	out.Bio = clonePtr(p.Bio)
	out.Location = clonePtr(p.Location)
	out.Blog = clonePtr(p.Blog)
	out.Company = clonePtr(p.Company)
	out.CreatedAt = clonePtr(p.CreatedAt)
	return out
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

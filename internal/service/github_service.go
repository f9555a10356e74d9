package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"portfolio-go/internal/config"
	"portfolio-go/internal/model"
	"portfolio-go/pkg/github"
	"portfolio-go/pkg/log"

	"golang.org/x/sync/singleflight"
)

const (
	snapshotKey           = "github-snapshot"
	noDescription         = "No description available"
	defaultSearchPageSize = 10
)

// GitHubAPI 是快照缓存依赖的 GitHub 接口，由 *github.Client 实现。
type GitHubAPI interface {
	GetUser(ctx context.Context, username string) (*github.User, error)
	ListRepos(ctx context.Context, username string, page, perPage int) ([]github.Repo, error)
	RateLimitRemaining() *int
}

// SnapshotArchive 持久化最近一次成功的快照，由 *storage.SnapshotStore 实现。
type SnapshotArchive interface {
	Save(ctx context.Context, snap *model.GitHubSnapshot) error
	Load(ctx context.Context) (*model.GitHubSnapshot, error)
}

// RepoIndexer 提供仓库全文检索，由 *es.RepoIndex 实现。
type RepoIndexer interface {
	IndexRepositories(ctx context.Context, docs []model.RepoDocument) error
	Search(ctx context.Context, query string, size int) ([]model.RepoSearchHit, error)
}

// GitHubService 定义了 GitHub 快照缓存的操作接口。
type GitHubService interface {
	// Snapshot 返回当前快照的副本，从不返回 nil。
	Snapshot(ctx context.Context) *model.GitHubSnapshot
	// Refresh 忽略新鲜度强制刷新；刷新失败时返回降级后的快照以及失败原因。
	Refresh(ctx context.Context) (*model.GitHubSnapshot, error)
	FindRepository(ctx context.Context, name string) *model.Repository
	SearchRepositories(ctx context.Context, query string) ([]model.RepoSearchHit, error)
}

// GitHubOption 配置 githubService 的可选依赖。
type GitHubOption func(*githubService)

// WithClock 替换时间来源。
func WithClock(now func() time.Time) GitHubOption {
	return func(s *githubService) { s.now = now }
}

// WithSnapshotArchive 启用快照归档。
func WithSnapshotArchive(a SnapshotArchive) GitHubOption {
	return func(s *githubService) { s.archive = a }
}

// WithRepoIndexer 启用 Elasticsearch 检索。
func WithRepoIndexer(idx RepoIndexer) GitHubOption {
	return func(s *githubService) { s.index = idx }
}

type githubService struct {
	api      GitHubAPI
	cfg      config.GitHubConfig
	featured map[string]struct{}
	archive  SnapshotArchive
	index    RepoIndexer
	now      func() time.Time

	group singleflight.Group

	mu       sync.RWMutex
	cached   *model.GitHubSnapshot
	cachedAt time.Time
}

// NewGitHubService 创建一个新的 GitHubService 实例。
func NewGitHubService(api GitHubAPI, cfg config.GitHubConfig, opts ...GitHubOption) GitHubService {
	if cfg.PerPage <= 0 {
		cfg.PerPage = 100
	}
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 10
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	s := &githubService{
		api:      api,
		cfg:      cfg,
		featured: make(map[string]struct{}, len(cfg.Featured)),
		now:      time.Now,
	}
	for _, name := range cfg.Featured {
		s.featured[name] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *githubService) Snapshot(ctx context.Context) *model.GitHubSnapshot {
	if snap := s.fresh(); snap != nil {
		log.Info("GitHub Data: Using cached data")
		return snap.Clone()
	}
	ch := s.group.DoChan(snapshotKey, func() (interface{}, error) {
		// 等待期间可能已经有其他调用者完成了刷新
		if snap := s.fresh(); snap != nil {
			return snap, nil
		}
		snap, _ := s.refreshDetached(ctx)
		return snap, nil
	})
	res, ok := s.wait(ctx, ch)
	if !ok {
		log.Warnf("GitHub Data: Request ended before refresh finished: %v", ctx.Err())
		return s.unavailable()
	}
	return res.Val.(*model.GitHubSnapshot).Clone()
}

func (s *githubService) Refresh(ctx context.Context) (*model.GitHubSnapshot, error) {
	ch := s.group.DoChan(snapshotKey, func() (interface{}, error) {
		return s.refreshDetached(ctx)
	})
	res, ok := s.wait(ctx, ch)
	if !ok {
		return s.unavailable(), ctx.Err()
	}
	return res.Val.(*model.GitHubSnapshot).Clone(), res.Err
}

// wait 等待共享刷新的结果。调用方的 ctx 先结束时返回 false，刷新本身继续在后台完成。
func (s *githubService) wait(ctx context.Context, ch <-chan singleflight.Result) (singleflight.Result, bool) {
	select {
	case res := <-ch:
		return res, true
	case <-ctx.Done():
		select {
		case res := <-ch:
			return res, true
		default:
			return singleflight.Result{}, false
		}
	}
}

// unavailable 在调用方放弃等待时使用：有旧缓存就返回旧缓存，否则返回不入缓存的静态数据。
func (s *githubService) unavailable() *model.GitHubSnapshot {
	s.mu.RLock()
	prev := s.cached
	s.mu.RUnlock()
	if prev != nil {
		return prev.Clone()
	}
	return FallbackSnapshot(s.now())
}

// refreshDetached 在脱离调用方取消信号的 ctx 中刷新，耗时上限为每次请求的超时乘以请求次数。
func (s *githubService) refreshDetached(ctx context.Context) (*model.GitHubSnapshot, error) {
	timeout := s.cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout*time.Duration(s.cfg.MaxPages+1))
	defer cancel()
	return s.refresh(rctx)
}

// fresh 返回仍在新鲜窗口内的缓存快照，否则返回 nil。
func (s *githubService) fresh() *model.GitHubSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cached != nil && s.now().Sub(s.cachedAt) < s.cfg.CacheTTL {
		return s.cached
	}
	return nil
}

func (s *githubService) store(snap *model.GitHubSnapshot, at time.Time) {
	s.mu.Lock()
	s.cached = snap
	s.cachedAt = at
	s.mu.Unlock()
}

// refresh 总是返回一个可用的快照。拉取失败时按 旧缓存 → 归档 → 静态数据 的顺序降级，
// 并把拉取错误一并返回。
func (s *githubService) refresh(ctx context.Context) (*model.GitHubSnapshot, error) {
	log.Info("GitHub Data: Fetching fresh data...")
	snap, err := s.fetch(ctx)
	if err == nil {
		s.store(snap, snap.FetchedAt)
		s.persist(ctx, snap)
		log.Infof("GitHub Data: Fresh data cached, %d repositories", len(snap.Repositories))
		return snap, nil
	}
	log.Errorf("GitHub Data: Failed to fetch fresh data: %v", err)

	s.mu.RLock()
	prev := s.cached
	s.mu.RUnlock()
	if prev != nil {
		// 旧快照原样返回，缓存时间不变，下一次请求会再次尝试刷新
		log.Info("GitHub Data: Using stale cached data")
		return prev, err
	}

	now := s.now()
	if errors.Is(err, context.Canceled) {
		// 被取消不代表 GitHub 不可用，降级结果不入缓存
		return FallbackSnapshot(now), err
	}
	if s.archive != nil {
		archived, aerr := s.archive.Load(ctx)
		if aerr == nil && archived != nil {
			log.Infof("GitHub Data: Using archived snapshot from %s", archived.FetchedAt.Format(time.RFC3339))
			s.store(archived, now)
			return archived, err
		}
		log.Warnf("GitHub Data: No archived snapshot available: %v", aerr)
	}

	log.Info("GitHub Data: Using fallback data")
	fallback := FallbackSnapshot(now)
	s.store(fallback, now)
	return fallback, err
}

// fetch 拉取账号资料和全部仓库页。页按顺序请求，任何一步失败都使整个刷新失败。
func (s *githubService) fetch(ctx context.Context) (*model.GitHubSnapshot, error) {
	user, err := s.api.GetUser(ctx, s.cfg.Username)
	if err != nil {
		return nil, err
	}

	var all []github.Repo
	for page := 1; ; page++ {
		log.Infof("GitHub Data: Fetching page %d...", page)
		repos, err := s.api.ListRepos(ctx, s.cfg.Username, page, s.cfg.PerPage)
		if err != nil {
			return nil, err
		}
		if len(repos) == 0 {
			break
		}
		all = append(all, repos...)
		if len(repos) < s.cfg.PerPage {
			break
		}
		if page >= s.cfg.MaxPages {
			log.Warnf("GitHub Data: Reached page limit (%d), stopping fetch", s.cfg.MaxPages)
			break
		}
	}

	snap := &model.GitHubSnapshot{
		Success:            true,
		Repositories:       make([]model.Repository, 0, len(all)),
		FetchedAt:          s.now(),
		RateLimitRemaining: s.api.RateLimitRemaining(),
	}
	for _, r := range all {
		snap.Repositories = append(snap.Repositories, s.transform(r))
	}
	snap.TotalFetched = len(snap.Repositories)
	snap.Stats = model.ProfileStats{
		TotalRepos:  user.PublicRepos,
		Followers:   user.Followers,
		Following:   user.Following,
		ProfileURL:  user.HTMLURL,
		AvatarURL:   user.AvatarURL,
		Bio:         user.Bio,
		Location:    user.Location,
		Blog:        user.Blog,
		Company:     user.Company,
		CreatedAt:   user.CreatedAt,
		PublicGists: user.PublicGists,
	}
	for _, r := range all {
		snap.Stats.TotalStars += r.StargazersCount
		snap.Stats.TotalForks += r.ForksCount
	}
	log.Infof("GitHub Stats: %d repos, %d stars, %d forks", snap.Stats.TotalRepos, snap.Stats.TotalStars, snap.Stats.TotalForks)
	return snap, nil
}

func (s *githubService) transform(r github.Repo) model.Repository {
	desc := noDescription
	if r.Description != nil && *r.Description != "" {
		desc = *r.Description
	}
	topics := r.Topics
	if topics == nil {
		topics = []string{}
	}
	var license *string
	if r.License != nil && r.License.Name != "" {
		name := r.License.Name
		license = &name
	}
	_, featured := s.featured[r.Name]
	return model.Repository{
		ID:            r.ID,
		Name:          r.Name,
		Description:   desc,
		Stars:         r.StargazersCount,
		Forks:         r.ForksCount,
		Watchers:      r.WatchersCount,
		Language:      r.Language,
		URL:           r.HTMLURL,
		Homepage:      r.Homepage,
		Topics:        topics,
		CreatedAt:     r.CreatedAt,
		UpdatedAt:     r.UpdatedAt,
		PushedAt:      r.PushedAt,
		Size:          r.Size,
		OpenIssues:    r.OpenIssuesCount,
		IsFeatured:    featured,
		IsFork:        r.Fork,
		IsPrivate:     r.Private,
		DefaultBranch: r.DefaultBranch,
		License:       license,
		HasIssues:     r.HasIssues,
		HasProjects:   r.HasProjects,
		HasWiki:       r.HasWiki,
		Archived:      r.Archived,
		Disabled:      r.Disabled,
	}
}

// persist 把成功的快照归档并写入检索索引，失败只记录日志。
func (s *githubService) persist(ctx context.Context, snap *model.GitHubSnapshot) {
	if s.archive != nil {
		if err := s.archive.Save(ctx, snap); err != nil {
			log.Warnf("GitHub Data: Failed to archive snapshot: %v", err)
		}
	}
	if s.index != nil {
		docs := make([]model.RepoDocument, 0, len(snap.Repositories))
		for _, r := range snap.Repositories {
			docs = append(docs, repoDocument(r))
		}
		if err := s.index.IndexRepositories(ctx, docs); err != nil {
			log.Warnf("GitHub Data: Failed to index repositories: %v", err)
		}
	}
}

func repoDocument(r model.Repository) model.RepoDocument {
	doc := model.RepoDocument{
		RepoID:      r.ID,
		Name:        r.Name,
		Description: r.Description,
		Topics:      r.Topics,
		Stars:       r.Stars,
		URL:         r.URL,
		IsFeatured:  r.IsFeatured,
	}
	if r.Language != nil {
		doc.Language = *r.Language
	}
	return doc
}

// FindRepository 先按忽略大小写和 "-", "_", 空白的名称精确匹配，再按名称或描述的子串匹配。
func (s *githubService) FindRepository(ctx context.Context, name string) *model.Repository {
	query := strings.ToLower(strings.TrimSpace(name))
	if query == "" {
		return nil
	}
	snap := s.Snapshot(ctx)
	return findRepository(snap.Repositories, query)
}

func findRepository(repos []model.Repository, query string) *model.Repository {
	normalized := normalizeRepoName(query)
	for i := range repos {
		if normalizeRepoName(repos[i].Name) == normalized {
			return &repos[i]
		}
	}
	for i := range repos {
		if strings.Contains(strings.ToLower(repos[i].Name), query) ||
			strings.Contains(strings.ToLower(repos[i].Description), query) {
			return &repos[i]
		}
	}
	return nil
}

func normalizeRepoName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '-', '_', ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, strings.ToLower(s))
}

// SearchRepositories 优先使用 Elasticsearch；未配置或查询失败时在快照中做子串匹配。
func (s *githubService) SearchRepositories(ctx context.Context, query string) ([]model.RepoSearchHit, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []model.RepoSearchHit{}, nil
	}
	if s.index != nil {
		hits, err := s.index.Search(ctx, query, defaultSearchPageSize)
		if err == nil {
			return hits, nil
		}
		log.Warnf("GitHub Data: Elasticsearch search failed, falling back to snapshot: %v", err)
	}
	return searchSnapshot(s.Snapshot(ctx).Repositories, query), nil
}

func searchSnapshot(repos []model.Repository, query string) []model.RepoSearchHit {
	q := strings.ToLower(query)
	nq := normalizeRepoName(q)
	hits := []model.RepoSearchHit{}
	for _, r := range repos {
		score := 0.0
		switch {
		case normalizeRepoName(r.Name) == nq:
			score = 3
		case strings.Contains(normalizeRepoName(r.Name), nq):
			score = 2
		case strings.Contains(strings.ToLower(r.Description), q) || containsFold(r.Topics, q):
			score = 1
		default:
			continue
		}
		doc := repoDocument(r)
		hits = append(hits, model.RepoSearchHit{
			Name:        doc.Name,
			Description: doc.Description,
			Language:    doc.Language,
			Topics:      doc.Topics,
			Stars:       doc.Stars,
			URL:         doc.URL,
			IsFeatured:  doc.IsFeatured,
			Score:       score,
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Stars > hits[j].Stars
	})
	if len(hits) > defaultSearchPageSize {
		hits = hits[:defaultSearchPageSize]
	}
	return hits
}

func containsFold(items []string, q string) bool {
	for _, it := range items {
		if strings.Contains(strings.ToLower(it), q) {
			return true
		}
	}
	return false
}

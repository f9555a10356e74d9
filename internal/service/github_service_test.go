package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"portfolio-go/internal/config"
	"portfolio-go/internal/model"
	"portfolio-go/pkg/github"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGitHub struct {
	mu      sync.Mutex
	user    *github.User
	pages   [][]github.Repo
	userErr error
	repoErr error
	calls   int32
	block   chan struct{}
}

func (f *fakeGitHub) GetUser(ctx context.Context, username string) (*github.User, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.userErr != nil {
		return nil, f.userErr
	}
	u := *f.user
	return &u, nil
}

func (f *fakeGitHub) ListRepos(ctx context.Context, username string, page, perPage int) ([]github.Repo, error) {
	atomic.AddInt32(&f.calls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.repoErr != nil {
		return nil, f.repoErr
	}
	if page-1 >= len(f.pages) {
		return nil, nil
	}
	return f.pages[page-1], nil
}

func (f *fakeGitHub) RateLimitRemaining() *int {
	n := 59
	return &n
}

func (f *fakeGitHub) setErr(err error) {
	f.mu.Lock()
	f.userErr = err
	f.mu.Unlock()
}

func (f *fakeGitHub) callCount() int {
	return int(atomic.LoadInt32(&f.calls))
}

// fakeClock 可能被后台刷新并发读取。
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func sptr(s string) *string { return &s }

func testGitHubConfig() config.GitHubConfig {
	return config.GitHubConfig{
		Username: "MeeksonJr",
		PerPage:  2,
		MaxPages: 10,
		CacheTTL: 10 * time.Minute,
		Featured: []string{"edusphere-ai", "portfolio-2025"},
	}
}

func newFakeGitHub() *fakeGitHub {
	return &fakeGitHub{
		user: &github.User{Login: "MeeksonJr", HTMLURL: "https://github.com/MeeksonJr", PublicRepos: 30, Followers: 10, Following: 4},
		pages: [][]github.Repo{
			{
				{ID: 1, Name: "edusphere-ai", Description: sptr("AI dashboard for students"), StargazersCount: 5, ForksCount: 1, Language: sptr("TypeScript"), License: &github.License{Name: "MIT"}},
				{ID: 2, Name: "EduSphere-AI", StargazersCount: 2},
			},
			{
				{ID: 3, Name: "go-tools", Description: sptr("Interview helpers"), StargazersCount: 7, ForksCount: 3, Topics: []string{"cli"}},
			},
		},
	}
}

func TestSnapshotFetchesAllPagesAndAggregates(t *testing.T) {
	api := newFakeGitHub()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewGitHubService(api, testGitHubConfig(), WithClock(clock.now))

	snap := svc.Snapshot(context.Background())
	require.True(t, snap.Success)
	assert.Empty(t, snap.Error)
	require.Len(t, snap.Repositories, 3)
	assert.Equal(t, 3, snap.TotalFetched)
	assert.Equal(t, 30, snap.Stats.TotalRepos)
	assert.Equal(t, 14, snap.Stats.TotalStars)
	assert.Equal(t, 4, snap.Stats.TotalForks)
	assert.Equal(t, clock.now(), snap.FetchedAt)
	require.NotNil(t, snap.RateLimitRemaining)
	assert.Equal(t, 59, *snap.RateLimitRemaining)
	// 用户 + 两页（第二页不满一页即停止）
	assert.Equal(t, 3, api.callCount())

	missing := snap.Repositories[1]
	assert.Equal(t, noDescription, missing.Description)
	assert.Nil(t, missing.Language)
	assert.Nil(t, missing.License)
	assert.Equal(t, []string{}, missing.Topics)
	require.NotNil(t, snap.Repositories[0].License)
	assert.Equal(t, "MIT", *snap.Repositories[0].License)
}

func TestSnapshotIsFeaturedIsCaseSensitive(t *testing.T) {
	svc := NewGitHubService(newFakeGitHub(), testGitHubConfig())
	snap := svc.Snapshot(context.Background())

	featured := map[string]bool{}
	for _, r := range snap.Repositories {
		featured[r.Name] = r.IsFeatured
	}
	assert.True(t, featured["edusphere-ai"])
	assert.False(t, featured["EduSphere-AI"])
	assert.False(t, featured["go-tools"])
}

func TestSnapshotWithinFreshnessWindowMakesNoCalls(t *testing.T) {
	api := newFakeGitHub()
	clock := &fakeClock{t: time.Now()}
	svc := NewGitHubService(api, testGitHubConfig(), WithClock(clock.now))

	first := svc.Snapshot(context.Background())
	calls := api.callCount()
	clock.advance(9 * time.Minute)
	second := svc.Snapshot(context.Background())

	assert.Equal(t, calls, api.callCount())
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	assert.JSONEq(t, string(a), string(b))

	clock.advance(2 * time.Minute)
	svc.Snapshot(context.Background())
	assert.Greater(t, api.callCount(), calls)
}

func TestSnapshotReturnsCopies(t *testing.T) {
	svc := NewGitHubService(newFakeGitHub(), testGitHubConfig())
	first := svc.Snapshot(context.Background())
	first.Repositories[0].Name = "mutated"
	*first.Repositories[0].Language = "Cobol"

	second := svc.Snapshot(context.Background())
	assert.Equal(t, "edusphere-ai", second.Repositories[0].Name)
	assert.Equal(t, "TypeScript", *second.Repositories[0].Language)
}

func TestSnapshotServesStaleOnFailure(t *testing.T) {
	api := newFakeGitHub()
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewGitHubService(api, testGitHubConfig(), WithClock(clock.now))

	good := svc.Snapshot(context.Background())
	clock.advance(time.Hour)
	api.setErr(&github.StatusError{Endpoint: "user", StatusCode: http.StatusForbidden})

	stale := svc.Snapshot(context.Background())
	assert.True(t, stale.Success)
	assert.Empty(t, stale.Error)
	assert.Equal(t, good.FetchedAt, stale.FetchedAt)

	// 缓存时间未更新，下一次仍会尝试网络
	calls := api.callCount()
	svc.Snapshot(context.Background())
	assert.Greater(t, api.callCount(), calls)
}

func TestSnapshotStaticFallbackOnColdFailure(t *testing.T) {
	api := newFakeGitHub()
	api.setErr(&github.StatusError{Endpoint: "user", StatusCode: http.StatusForbidden})
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewGitHubService(api, testGitHubConfig(), WithClock(clock.now))

	snap := svc.Snapshot(context.Background())
	assert.False(t, snap.Success)
	assert.NotEmpty(t, snap.Error)
	require.Len(t, snap.Repositories, 4)
	assert.Equal(t, 25, snap.Stats.TotalRepos)
	assert.Equal(t, []string{"edusphere-ai", "interview-prep-ai", "ai-content-generator", "portfolio-2025"},
		[]string{snap.Repositories[0].Name, snap.Repositories[1].Name, snap.Repositories[2].Name, snap.Repositories[3].Name})

	// 静态数据同样被缓存
	calls := api.callCount()
	clock.advance(5 * time.Minute)
	again := svc.Snapshot(context.Background())
	assert.Equal(t, calls, api.callCount())
	assert.False(t, again.Success)
}

func TestSnapshotPageFailureFailsWholeRefresh(t *testing.T) {
	api := newFakeGitHub()
	api.repoErr = errors.New("connection reset")
	svc := NewGitHubService(api, testGitHubConfig())

	snap := svc.Snapshot(context.Background())
	assert.False(t, snap.Success)
	assert.Equal(t, fallbackError, snap.Error)
}

func TestSnapshotStopsAtPageCeiling(t *testing.T) {
	api := newFakeGitHub()
	api.pages = nil
	for i := 0; i < 15; i++ {
		api.pages = append(api.pages, []github.Repo{{ID: int64(2*i + 1), Name: fmt.Sprintf("r%d", 2*i)}, {ID: int64(2*i + 2), Name: fmt.Sprintf("r%d", 2*i+1)}})
	}
	cfg := testGitHubConfig()
	cfg.MaxPages = 10
	svc := NewGitHubService(api, cfg)

	snap := svc.Snapshot(context.Background())
	assert.Len(t, snap.Repositories, 20)
	assert.Equal(t, 11, api.callCount())
}

type fakeArchive struct {
	saved  *model.GitHubSnapshot
	loaded *model.GitHubSnapshot
}

func (a *fakeArchive) Save(_ context.Context, s *model.GitHubSnapshot) error {
	a.saved = s.Clone()
	return nil
}

func (a *fakeArchive) Load(_ context.Context) (*model.GitHubSnapshot, error) {
	if a.loaded == nil {
		return nil, errors.New("not found")
	}
	return a.loaded.Clone(), nil
}

func TestSnapshotArchiveRoundTrip(t *testing.T) {
	archive := &fakeArchive{}
	api := newFakeGitHub()
	svc := NewGitHubService(api, testGitHubConfig(), WithSnapshotArchive(archive))
	good := svc.Snapshot(context.Background())
	require.NotNil(t, archive.saved)
	assert.Len(t, archive.saved.Repositories, len(good.Repositories))

	// 新进程冷启动时 GitHub 不可用，使用归档
	cold := newFakeGitHub()
	cold.setErr(errors.New("timeout"))
	svc2 := NewGitHubService(cold, testGitHubConfig(), WithSnapshotArchive(&fakeArchive{loaded: archive.saved}))
	snap := svc2.Snapshot(context.Background())
	assert.True(t, snap.Success)
	assert.Len(t, snap.Repositories, 3)
}

func TestRefreshReportsErrorButDegrades(t *testing.T) {
	api := newFakeGitHub()
	svc := NewGitHubService(api, testGitHubConfig())
	_, err := svc.Refresh(context.Background())
	require.NoError(t, err)

	api.setErr(errors.New("boom"))
	snap, err := svc.Refresh(context.Background())
	assert.Error(t, err)
	assert.True(t, snap.Success)
}

func TestSnapshotCoalescesConcurrentRefreshes(t *testing.T) {
	api := newFakeGitHub()
	api.block = make(chan struct{})
	svc := NewGitHubService(api, testGitHubConfig())

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			svc.Snapshot(context.Background())
		}()
	}
	// 等待第一个调用进入 GetUser
	require.Eventually(t, func() bool { return api.callCount() >= 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(api.block)
	wg.Wait()

	assert.Equal(t, 3, api.callCount())
}

// ctxAwareGitHub 在 ctx 结束后像真实客户端一样返回 ctx.Err()。
type ctxAwareGitHub struct {
	*fakeGitHub
}

func (f ctxAwareGitHub) GetUser(ctx context.Context, username string) (*github.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.fakeGitHub.GetUser(ctx, username)
}

func TestSnapshotCancelledCallerDoesNotPinFallback(t *testing.T) {
	api := ctxAwareGitHub{newFakeGitHub()}
	clock := &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	svc := NewGitHubService(api, testGitHubConfig(), WithClock(clock.now))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	svc.Snapshot(cancelled)

	clock.advance(time.Minute)
	snap := svc.Snapshot(context.Background())
	assert.True(t, snap.Success)
	assert.Empty(t, snap.Error)
	assert.Len(t, snap.Repositories, 3)
}

func TestSnapshotCallerGivesUpWhileRefreshContinues(t *testing.T) {
	api := newFakeGitHub()
	api.block = make(chan struct{})
	svc := NewGitHubService(api, testGitHubConfig())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		for api.callCount() < 1 {
			time.Sleep(time.Millisecond)
		}
		cancel()
	}()
	snap := svc.Snapshot(ctx)
	assert.False(t, snap.Success)
	assert.Equal(t, "Using fallback data", snap.Error)

	_, err := svc.Refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)

	close(api.block)
	snap = svc.Snapshot(context.Background())
	assert.True(t, snap.Success)
	// 放弃等待的调用者没有触发第二次拉取
	assert.Equal(t, 3, api.callCount())
}

func TestRefreshCancelledDoesNotCacheFallback(t *testing.T) {
	api := ctxAwareGitHub{newFakeGitHub()}
	svc := NewGitHubService(api, testGitHubConfig()).(*githubService)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snap, err := svc.refresh(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, snap.Success)
	assert.Nil(t, svc.fresh())
}

func TestFindRepository(t *testing.T) {
	svc := NewGitHubService(newFakeGitHub(), testGitHubConfig())
	ctx := context.Background()

	r := svc.FindRepository(ctx, "EduSphere AI")
	require.NotNil(t, r)
	assert.Equal(t, "edusphere-ai", r.Name)

	r = svc.FindRepository(ctx, "interview")
	require.NotNil(t, r)
	assert.Equal(t, "go-tools", r.Name)

	assert.Nil(t, svc.FindRepository(ctx, "kubernetes"))
	assert.Nil(t, svc.FindRepository(ctx, "  "))
}

type fakeIndexer struct {
	docs    []model.RepoDocument
	hits    []model.RepoSearchHit
	err     error
	queries []string
}

func (f *fakeIndexer) IndexRepositories(_ context.Context, docs []model.RepoDocument) error {
	f.docs = docs
	return nil
}

func (f *fakeIndexer) Search(_ context.Context, q string, size int) ([]model.RepoSearchHit, error) {
	f.queries = append(f.queries, q)
	return f.hits, f.err
}

func TestSearchRepositoriesUsesIndex(t *testing.T) {
	idx := &fakeIndexer{hits: []model.RepoSearchHit{{Name: "edusphere-ai", Score: 4.2}}}
	svc := NewGitHubService(newFakeGitHub(), testGitHubConfig(), WithRepoIndexer(idx))

	svc.Snapshot(context.Background())
	assert.Len(t, idx.docs, 3)

	hits, err := svc.SearchRepositories(context.Background(), "edu")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, []string{"edu"}, idx.queries)
}

func TestSearchRepositoriesFallsBackToSnapshot(t *testing.T) {
	idx := &fakeIndexer{err: errors.New("es down")}
	svc := NewGitHubService(newFakeGitHub(), testGitHubConfig(), WithRepoIndexer(idx))

	hits, err := svc.SearchRepositories(context.Background(), "cli")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "go-tools", hits[0].Name)

	hits, err = svc.SearchRepositories(context.Background(), "edusphere")
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "edusphere-ai", hits[0].Name)
}

func TestFallbackSnapshotIsIndependent(t *testing.T) {
	now := time.Now()
	a := FallbackSnapshot(now)
	a.Repositories[0].Topics[0] = "changed"
	b := FallbackSnapshot(now)
	assert.Equal(t, "ai", b.Repositories[0].Topics[0])
	assert.Equal(t, 88, b.Stats.TotalStars)
	assert.Equal(t, now, b.FetchedAt)
}

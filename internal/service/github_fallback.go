package service

import (
	"time"

	"portfolio-go/internal/model"
)

const fallbackError = "Using fallback data"

// FallbackSnapshot 返回 GitHub 不可用且没有任何缓存时使用的静态快照。
// 每次调用都构造新值，调用方可以随意修改。
func FallbackSnapshot(now time.Time) *model.GitHubSnapshot {
	repos := []model.Repository{
		fallbackRepo(1, "edusphere-ai", "AI-powered educational platform with assignment assistance and blog generation",
			24, 8, 12, "TypeScript", 3, 2048, true, false, false, "", "ai", "education", "nextjs", "supabase"),
		fallbackRepo(2, "interview-prep-ai", "Mock interview platform with AI-powered feedback and resume analysis",
			18, 5, 8, "JavaScript", 2, 1536, true, true, false, "", "ai", "interview", "career", "firebase"),
		fallbackRepo(3, "ai-content-generator", "Advanced content generation with sentiment analysis and analytics",
			31, 12, 15, "TypeScript", 1, 3072, true, true, true, "", "ai", "content", "saas", "analytics"),
		fallbackRepo(4, "portfolio-2025", "Creative terminal-inspired portfolio built with Next.js and Framer Motion",
			15, 3, 6, "TypeScript", 0, 1024, true, false, false, "https://mohameddatt.com", "portfolio", "nextjs", "framer-motion", "ai"),
	}
	return &model.GitHubSnapshot{
		Success:      false,
		Repositories: repos,
		Stats: model.ProfileStats{
			TotalRepos:  25,
			TotalStars:  88,
			TotalForks:  28,
			Followers:   45,
			Following:   32,
			ProfileURL:  "https://github.com/MeeksonJr",
			AvatarURL:   strPtr("https://github.com/MeeksonJr.png"),
			Bio:         strPtr("Full Stack Developer passionate about AI and web technologies"),
			Location:    strPtr("Norfolk, Virginia"),
			Blog:        strPtr("https://mohameddatt.com"),
			PublicGists: 5,
		},
		FetchedAt:    now,
		TotalFetched: len(repos),
		Error:        fallbackError,
	}
}

func fallbackRepo(id int64, name, desc string, stars, forks, watchers int, lang string, issues, size int,
	hasIssues, hasProjects, hasWiki bool, homepage string, topics ...string) model.Repository {
	r := model.Repository{
		ID:            id,
		Name:          name,
		Description:   desc,
		Stars:         stars,
		Forks:         forks,
		Watchers:      watchers,
		Language:      strPtr(lang),
		URL:           "https://github.com/MeeksonJr/" + name,
		Topics:        topics,
		Size:          &size,
		OpenIssues:    issues,
		IsFeatured:    true,
		DefaultBranch: "main",
		License:       strPtr("MIT"),
		HasIssues:     hasIssues,
		HasProjects:   hasProjects,
		HasWiki:       hasWiki,
	}
	if homepage != "" {
		r.Homepage = strPtr(homepage)
	}
	return r
}

func strPtr(s string) *string { return &s }

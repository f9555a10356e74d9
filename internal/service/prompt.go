package service

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"portfolio-go/internal/model"
)

const githubUnavailable = "GitHub data is currently unavailable."

// BuildSystemPrompt 拼接个人资料与 GitHub 快照文本。
func BuildSystemPrompt(profile string, snap *model.GitHubSnapshot) string {
	return strings.TrimSpace(profile) + "\n\n" + FormatSnapshotForPrompt(snap)
}

// BuildInspectorPrompt 生成只围绕单个页面元素回答的系统提示词。
func BuildInspectorPrompt(intro string, el *model.ElementInfo) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(intro))
	b.WriteString("\n\nCurrent Element Information:\n")
	fmt.Fprintf(&b, "- Title: %s\n", el.Title)
	fmt.Fprintf(&b, "- Description: %s\n", el.Description)
	fmt.Fprintf(&b, "- Technical Details: %s\n", el.Details)
	fmt.Fprintf(&b, "- Technologies: %s\n", strings.Join(el.Tech, ", "))
	fmt.Fprintf(&b, "- Design Inspiration: %s\n", el.Inspiration)
	b.WriteString(`
Answer questions about this specific element naturally and conversationally. Explain your implementation choices, design decisions, and how this showcases your skills. Be technical but approachable.

You can discuss:
- Why you chose certain technologies
- How you implemented specific features
- Design patterns you used
- User experience considerations
- Animation and interaction details
- Your development process

Keep responses focused and conversational, like you're talking to a potential employer or collaborator.`)
	return b.String()
}

// FormatSnapshotForPrompt 把快照渲染成模型可读的文本。排序在副本上进行，不修改 snap。
func FormatSnapshotForPrompt(snap *model.GitHubSnapshot) string {
	if snap == nil {
		return githubUnavailable
	}
	repos := snap.Repositories
	stats := snap.Stats

	var b strings.Builder
	b.WriteString("COMPLETE GITHUB PROFILE DATA:\n\nPROFILE STATISTICS:\n")
	watchers, totalSize := 0, 0
	for _, r := range repos {
		watchers += r.Watchers
		if r.Size != nil {
			totalSize += *r.Size
		}
	}
	fmt.Fprintf(&b, "- Total Public Repositories: %d\n", stats.TotalRepos)
	fmt.Fprintf(&b, "- Total Stars Received: %d\n", stats.TotalStars)
	fmt.Fprintf(&b, "- Total Forks: %d\n", stats.TotalForks)
	fmt.Fprintf(&b, "- Total Watchers: %d\n", watchers)
	fmt.Fprintf(&b, "- Followers: %d\n", stats.Followers)
	fmt.Fprintf(&b, "- Following: %d\n", stats.Following)
	fmt.Fprintf(&b, "- Public Gists: %d\n", stats.PublicGists)
	fmt.Fprintf(&b, "- Profile URL: %s\n", stats.ProfileURL)
	writeOpt(&b, "Location", stats.Location)
	writeOpt(&b, "Bio", stats.Bio)
	writeOpt(&b, "Website", stats.Blog)
	writeOpt(&b, "Company", stats.Company)
	if stats.CreatedAt != nil {
		fmt.Fprintf(&b, "- GitHub Member Since: %d\n", stats.CreatedAt.Year())
	}

	byStars := append([]model.Repository(nil), repos...)
	sort.SliceStable(byStars, func(i, j int) bool { return byStars[i].Stars > byStars[j].Stars })

	fmt.Fprintf(&b, "\nALL REPOSITORIES (%d total):\n", len(repos))
	for i, r := range byStars {
		fmt.Fprintf(&b, "\n%d. %s:\n", i+1, strings.ToUpper(r.Name))
		fmt.Fprintf(&b, "   - Description: %s\n", r.Description)
		fmt.Fprintf(&b, "   - Stars: %d | Forks: %d | Watchers: %d\n", r.Stars, r.Forks, r.Watchers)
		fmt.Fprintf(&b, "   - Primary Language: %s\n", deref(r.Language, "Not specified"))
		fmt.Fprintf(&b, "   - GitHub URL: %s\n", r.URL)
		if r.Homepage != nil && *r.Homepage != "" {
			fmt.Fprintf(&b, "   - Live Demo: %s\n", *r.Homepage)
		}
		topics := "None"
		if len(r.Topics) > 0 {
			topics = strings.Join(r.Topics, ", ")
		}
		fmt.Fprintf(&b, "   - Topics: %s\n", topics)
		fmt.Fprintf(&b, "   - Created: %s\n", formatDate(r.CreatedAt))
		fmt.Fprintf(&b, "   - Last Updated: %s\n", formatDate(r.UpdatedAt))
		fmt.Fprintf(&b, "   - Last Push: %s\n", formatDate(r.PushedAt))
		if r.Size != nil {
			fmt.Fprintf(&b, "   - Repository Size: %d KB\n", *r.Size)
		}
		fmt.Fprintf(&b, "   - Open Issues: %d\n", r.OpenIssues)
		if r.License != nil {
			fmt.Fprintf(&b, "   - License: %s\n", *r.License)
		}
		if r.IsFeatured {
			b.WriteString("   - Status: FEATURED PROJECT\n")
		}
		if r.IsFork {
			b.WriteString("   - Type: Fork\n")
		} else {
			b.WriteString("   - Type: Original Repository\n")
		}
		if r.Archived {
			b.WriteString("   - Status: ARCHIVED\n")
		}
		fmt.Fprintf(&b, "   - Features: Issues(%s), Projects(%s), Wiki(%s)\n", yesNo(r.HasIssues), yesNo(r.HasProjects), yesNo(r.HasWiki))
	}

	b.WriteString("\nREPOSITORY ANALYSIS:\n")
	if len(byStars) > 0 {
		fmt.Fprintf(&b, "- Most Popular: %s (%d stars)\n", byStars[0].Name, byStars[0].Stars)
	}
	recent := mostRecent(repos, func(r model.Repository) *time.Time { return r.UpdatedAt }, 3)
	pushed := mostRecent(repos, func(r model.Repository) *time.Time { return r.PushedAt }, 3)
	if len(recent) > 0 {
		fmt.Fprintf(&b, "- Most Recent: %s\n", recent[0])
	}
	fmt.Fprintf(&b, "- Languages Used: %s\n", strings.Join(languages(repos), ", "))
	var featured, forks, archived, withIssues, withWiki int
	for _, r := range repos {
		if r.IsFeatured {
			featured++
		}
		if r.IsFork {
			forks++
		}
		if r.Archived {
			archived++
		}
		if r.HasIssues {
			withIssues++
		}
		if r.HasWiki {
			withWiki++
		}
	}
	fmt.Fprintf(&b, "- Featured Projects: %d\n", featured)
	fmt.Fprintf(&b, "- Original Repositories: %d\n", len(repos)-forks)
	fmt.Fprintf(&b, "- Forked Repositories: %d\n", forks)
	fmt.Fprintf(&b, "- Archived Repositories: %d\n", archived)
	fmt.Fprintf(&b, "- Repositories with Issues Enabled: %d\n", withIssues)
	fmt.Fprintf(&b, "- Repositories with Wiki: %d\n", withWiki)
	fmt.Fprintf(&b, "- Total Repository Size: %d KB\n", totalSize)

	b.WriteString("\nRECENT ACTIVITY:\n")
	fmt.Fprintf(&b, "- Most Recently Updated: %s\n", strings.Join(recent, ", "))
	fmt.Fprintf(&b, "- Most Recently Pushed: %s\n\n", strings.Join(pushed, ", "))

	if snap.Success {
		b.WriteString("This data was fetched live from GitHub API.\n")
	} else {
		b.WriteString("This is fallback data (GitHub API unavailable).\n")
	}
	fmt.Fprintf(&b, "Data last updated: %s\n", snap.FetchedAt.Format(time.RFC1123))
	total := snap.TotalFetched
	if total == 0 {
		total = len(repos)
	}
	fmt.Fprintf(&b, "Total repositories fetched: %d\n\n", total)
	b.WriteString("You can answer questions about ANY of these repositories, including their details, technologies used, features, activity, and more.\n")
	return b.String()
}

func writeOpt(b *strings.Builder, label string, v *string) {
	if v != nil && *v != "" {
		fmt.Fprintf(b, "- %s: %s\n", label, *v)
	}
}

func deref(v *string, def string) string {
	if v == nil || *v == "" {
		return def
	}
	return *v
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "Unknown"
	}
	return t.Format("2006-01-02")
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

// mostRecent 返回按时间倒序的前 n 个仓库名，时间缺失的排在最后。
func mostRecent(repos []model.Repository, at func(model.Repository) *time.Time, n int) []string {
	sorted := append([]model.Repository(nil), repos...)
	sort.SliceStable(sorted, func(i, j int) bool {
		ti, tj := at(sorted[i]), at(sorted[j])
		switch {
		case ti == nil:
			return false
		case tj == nil:
			return true
		default:
			return ti.After(*tj)
		}
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	names := make([]string, 0, len(sorted))
	for _, r := range sorted {
		names = append(names, r.Name)
	}
	return names
}

func languages(repos []model.Repository) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range repos {
		if r.Language == nil || *r.Language == "" {
			continue
		}
		if _, ok := seen[*r.Language]; ok {
			continue
		}
		seen[*r.Language] = struct{}{}
		out = append(out, *r.Language)
	}
	return out
}

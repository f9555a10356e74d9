package model

// RepoDocument 是写入 Elasticsearch 的仓库文档。
type RepoDocument struct {
	RepoID      int64    `json:"repo_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Topics      []string `json:"topics"`
	Stars       int      `json:"stars"`
	URL         string   `json:"url"`
	IsFeatured  bool     `json:"is_featured"`
}

// RepoSearchHit 是仓库搜索结果。
type RepoSearchHit struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Topics      []string `json:"topics"`
	Stars       int      `json:"stars"`
	URL         string   `json:"url"`
	IsFeatured  bool     `json:"is_featured"`
	Score       float64  `json:"score"`
}

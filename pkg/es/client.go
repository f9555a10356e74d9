// Package es 提供了与 Elasticsearch 交互的客户端功能。
package es

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"portfolio-go/internal/config"
	"portfolio-go/internal/model"
	"portfolio-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// RepoIndex 把 GitHub 仓库写入 Elasticsearch 并提供全文搜索。
type RepoIndex struct {
	client *elasticsearch.Client
	index  string
}

// NewRepoIndex 初始化 Elasticsearch 客户端并确保索引存在。
func NewRepoIndex(esCfg config.ElasticsearchConfig) (*RepoIndex, error) {
	cfg := elasticsearch.Config{
		Addresses: strings.Split(esCfg.Addresses, ","),
		Username:  esCfg.Username,
		Password:  esCfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		},
	}
	client, err := elasticsearch.NewClient(cfg)
	if err != nil {
		return nil, err
	}
	idx := &RepoIndex{client: client, index: esCfg.IndexName}
	if err := idx.createIndexIfNotExists(); err != nil {
		return nil, err
	}
	return idx, nil
}

// createIndexIfNotExists 检查索引是否存在，如果不存在则创建它
func (r *RepoIndex) createIndexIfNotExists() error {
	res, err := r.client.Indices.Exists([]string{r.index})
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return err
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		log.Infof("索引 '%s' 已存在", r.index)
		return nil
	}
	if res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
	}

	mapping := `{
		"mappings": {
			"properties": {
				"repo_id": { "type": "long" },
				"name": { "type": "text", "fields": { "keyword": { "type": "keyword" } } },
				"description": { "type": "text" },
				"language": { "type": "keyword" },
				"topics": { "type": "keyword" },
				"stars": { "type": "integer" },
				"url": { "type": "keyword", "index": false },
				"is_featured": { "type": "boolean" }
			}
		}
	}`

	res, err = r.client.Indices.Create(
		r.index,
		r.client.Indices.Create.WithBody(strings.NewReader(mapping)),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", r.index, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", r.index, res.String())
		return errors.New("创建索引时 Elasticsearch 返回错误")
	}

	log.Infof("索引 '%s' 创建成功", r.index)
	return nil
}

// IndexRepositories 使用 bulk API 写入（覆盖）仓库文档，文档 ID 为仓库 ID。
func (r *RepoIndex) IndexRepositories(ctx context.Context, docs []model.RepoDocument) error {
	if len(docs) == 0 {
		return nil
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]map[string]string{
			"index": {"_index": r.index, "_id": strconv.FormatInt(doc.RepoID, 10)},
		}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, r.client)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("批量索引仓库到 Elasticsearch 出错: %s", res.String())
		return errors.New("failed to index repositories")
	}
	return nil
}

// Search 在名称、描述和主题上做 multi_match 搜索，名称权重更高。
func (r *RepoIndex) Search(ctx context.Context, query string, size int) ([]model.RepoSearchHit, error) {
	body := map[string]interface{}{
		"size": size,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":     query,
				"fields":    []string{"name^3", "description", "topics^2", "language"},
				"fuzziness": "AUTO",
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, err
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search failed: %s", res.String())
	}

	var out struct {
		Hits struct {
			Hits []struct {
				Score  float64            `json:"_score"`
				Source model.RepoDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, err
	}

	hits := make([]model.RepoSearchHit, 0, len(out.Hits.Hits))
	for _, h := range out.Hits.Hits {
		hits = append(hits, model.RepoSearchHit{
			Name:        h.Source.Name,
			Description: h.Source.Description,
			Language:    h.Source.Language,
			Topics:      h.Source.Topics,
			Stars:       h.Source.Stars,
			URL:         h.Source.URL,
			IsFeatured:  h.Source.IsFeatured,
			Score:       h.Score,
		})
	}
	return hits, nil
}

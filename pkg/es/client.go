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
	"strings"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/pkg/log"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
)

// ErrIndexMissing 表示目标索引不存在。
var ErrIndexMissing = errors.New("elasticsearch index does not exist")

// Client 封装了索引的创建、写入、k-NN 检索与删除。
type Client struct {
	es *elasticsearch.Client
}

// Hit 是一条检索结果。Score 为 Elasticsearch 的原始得分。
type Hit struct {
	Score  float64
	Source model.EsSegment
}

// NewClient 创建一个 Elasticsearch 客户端。Addresses 以逗号分隔。
func NewClient(esCfg config.ElasticsearchConfig) (*Client, error) {
	var addrs []string
	for _, a := range strings.Split(esCfg.Addresses, ",") {
		if a = strings.TrimSpace(a); a != "" {
			addrs = append(addrs, a)
		}
	}
	cfg := elasticsearch.Config{
		Addresses: addrs,
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
	return &Client{es: client}, nil
}

// IndexExists 检查索引是否存在。
func (c *Client) IndexExists(ctx context.Context, indexName string) (bool, error) {
	res, err := c.es.Indices.Exists([]string{indexName}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		log.Errorf("检查索引是否存在时出错: %v", err)
		return false, err
	}
	defer res.Body.Close()
	// 如果 res.StatusCode 是 200，说明索引已存在
	if res.StatusCode == http.StatusOK {
		return true, nil
	}
	if res.StatusCode == http.StatusNotFound {
		return false, nil
	}
	log.Errorf("检查索引 '%s' 是否存在时收到意外的状态码: %d", indexName, res.StatusCode)
	return false, fmt.Errorf("检查索引是否存在时收到意外的状态码: %d", res.StatusCode)
}

// CreateIndex 以指定的向量维度和 cosine 相似度创建索引。
func (c *Client) CreateIndex(ctx context.Context, indexName string, dims int) error {
	mapping := fmt.Sprintf(`{
		"mappings": {
			"properties": {
				"vector_id": { "type": "keyword" },
				"document_id": { "type": "keyword" },
				"chunk_index": { "type": "integer" },
				"page": { "type": "integer" },
				"text_content": { "type": "text" },
				"vector": {
					"type": "dense_vector",
					"dims": %d,
					"index": true,
					"similarity": "cosine"
				},
				"model_version": { "type": "keyword" }
			}
		}
	}`, dims)

	res, err := c.es.Indices.Create(
		indexName,
		c.es.Indices.Create.WithBody(strings.NewReader(mapping)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		log.Errorf("创建索引 '%s' 失败: %v", indexName, err)
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("创建索引 '%s' 时 Elasticsearch 返回错误: %s", indexName, res.String())
		return fmt.Errorf("创建索引时 Elasticsearch 返回错误: %s", res.Status())
	}

	log.Infof("索引 '%s' 创建成功, 维度: %d", indexName, dims)
	return nil
}

// BulkIndex 批量写入分块。以 vector_id 作为文档 ID，重复写入会覆盖。
func (c *Client) BulkIndex(ctx context.Context, indexName string, docs []model.EsSegment) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, doc := range docs {
		meta := map[string]interface{}{"index": map[string]interface{}{"_index": indexName, "_id": doc.VectorID}}
		if err := enc.Encode(meta); err != nil {
			return err
		}
		if err := enc.Encode(doc); err != nil {
			return err
		}
	}

	req := esapi.BulkRequest{
		Index:   indexName,
		Body:    &buf,
		Refresh: "true",
	}
	res, err := req.Do(ctx, c.es)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		log.Errorf("批量写入 Elasticsearch 出错: %s", res.String())
		return fmt.Errorf("failed to bulk index documents: %s", res.Status())
	}

	var body struct {
		Errors bool `json:"errors"`
		Items  []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return fmt.Errorf("failed to decode bulk response: %w", err)
	}
	if body.Errors {
		for _, item := range body.Items {
			for _, r := range item {
				if r.Error != nil {
					return fmt.Errorf("bulk item failed with status %d: %s", r.Status, r.Error.Reason)
				}
			}
		}
		return errors.New("bulk request reported errors")
	}
	return nil
}

// maxNumCandidates 是 Elasticsearch 对 knn.num_candidates 的上限，k 也不能超过它。
const maxNumCandidates = 10000

// KNNSearch 对 vector 字段做近似最近邻检索。
func (c *Client) KNNSearch(ctx context.Context, indexName string, queryVector []float32, k int) ([]Hit, error) {
	k = min(k, maxNumCandidates)
	var buf bytes.Buffer
	esQuery := map[string]interface{}{
		"knn": map[string]interface{}{
			"field":          "vector",
			"query_vector":   queryVector,
			"k":              k,
			"num_candidates": min(k*10, maxNumCandidates),
		},
		"_source": map[string]interface{}{"excludes": []string{"vector"}},
		"size":    k,
	}
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, fmt.Errorf("failed to encode es query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(indexName),
		c.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return nil, ErrIndexMissing
	}
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch returned error: %s", res.String())
	}

	var esResponse struct {
		Hits struct {
			Hits []struct {
				Score  float64         `json:"_score"`
				Source model.EsSegment `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&esResponse); err != nil {
		return nil, fmt.Errorf("failed to decode es response: %w", err)
	}

	hits := make([]Hit, 0, len(esResponse.Hits.Hits))
	for _, h := range esResponse.Hits.Hits {
		hits = append(hits, Hit{Score: h.Score, Source: h.Source})
	}
	return hits, nil
}

// Count 返回索引中的文档数。
func (c *Client) Count(ctx context.Context, indexName string) (int, error) {
	res, err := c.es.Count(c.es.Count.WithContext(ctx), c.es.Count.WithIndex(indexName))
	if err != nil {
		return 0, err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return 0, ErrIndexMissing
	}
	if res.IsError() {
		return 0, fmt.Errorf("elasticsearch count failed: %s", res.Status())
	}
	var body struct {
		Count int `json:"count"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return 0, err
	}
	return body.Count, nil
}

// DeleteIndex 删除索引。索引不存在时返回 ErrIndexMissing。
func (c *Client) DeleteIndex(ctx context.Context, indexName string) error {
	res, err := c.es.Indices.Delete([]string{indexName}, c.es.Indices.Delete.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return ErrIndexMissing
	}
	if res.IsError() {
		return fmt.Errorf("failed to delete index %s: %s", indexName, res.Status())
	}
	log.Infof("索引 '%s' 已删除", indexName)
	return nil
}

// Package elastic 使用 Elasticsearch 的 dense_vector 字段实现向量索引，每个存储对应一个 ES 索引。
package elastic

import (
	"context"
	"errors"
	"fmt"

	"docqa-go/internal/model"
	"docqa-go/internal/vectorstore"
	"docqa-go/pkg/embedding"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/es"
	"docqa-go/pkg/log"
)

const bulkBatchSize = 200

// Store 将存储名映射为 "<prefix>-<name>" 形式的 ES 索引。
type Store struct {
	client   *es.Client
	embedder embedding.Client
	prefix   string
}

func NewStore(client *es.Client, embedder embedding.Client, prefix string) *Store {
	return &Store{client: client, embedder: embedder, prefix: prefix}
}

func (s *Store) Backend() string { return "elasticsearch" }

func (s *Store) indexName(name string) string {
	if s.prefix == "" {
		return name
	}
	return s.prefix + "-" + name
}

// Build 删除同名索引后重建，保证重复构建不累积。
func (s *Store) Build(ctx context.Context, name string, segments []model.Segment) (vectorstore.Index, error) {
	const op = "elastic.Build"
	if err := vectorstore.CheckBuildInput(op, name, segments); err != nil {
		return nil, err
	}
	indexName := s.indexName(name)
	log.Infof("[ElasticStore] 开始构建索引 '%s', 分块数: %d", indexName, len(segments))

	vecs, err := vectorstore.EmbedSegments(ctx, s.embedder, segments)
	if err != nil {
		return nil, err
	}

	exists, err := s.client.IndexExists(ctx, indexName)
	if err != nil {
		return nil, errs.E(errs.KindIndexBuild, op, err)
	}
	if exists {
		if err := s.client.DeleteIndex(ctx, indexName); err != nil && !errors.Is(err, es.ErrIndexMissing) {
			return nil, errs.E(errs.KindIndexBuild, op, err)
		}
	}
	if err := s.client.CreateIndex(ctx, indexName, len(vecs[0])); err != nil {
		return nil, errs.E(errs.KindIndexBuild, op, err)
	}

	docs := make([]model.EsSegment, len(segments))
	for i, seg := range segments {
		docs[i] = model.NewEsSegment(seg, vecs[i], s.embedder.Model())
	}
	for start := 0; start < len(docs); start += bulkBatchSize {
		end := start + bulkBatchSize
		if end > len(docs) {
			end = len(docs)
		}
		if err := s.client.BulkIndex(ctx, indexName, docs[start:end]); err != nil {
			return nil, errs.E(errs.KindIndexBuild, op, fmt.Errorf("bulk %d-%d: %w", start, end, err))
		}
	}

	n, err := s.client.Count(ctx, indexName)
	if err != nil {
		return nil, errs.E(errs.KindIndexBuild, op, err)
	}
	log.Infof("[ElasticStore] 索引 '%s' 构建完成, 文档数: %d", indexName, n)
	return &index{name: name, indexName: indexName, client: s.client, embedder: s.embedder, size: n}, nil
}

func (s *Store) Open(ctx context.Context, name string) (vectorstore.Index, error) {
	const op = "elastic.Open"
	if err := vectorstore.ValidateName(name); err != nil {
		return nil, errs.E(errs.KindIndexNotFound, op, err)
	}
	indexName := s.indexName(name)
	exists, err := s.client.IndexExists(ctx, indexName)
	if err != nil {
		return nil, errs.E(errs.KindIndexNotFound, op, err)
	}
	if !exists {
		return nil, errs.Ef(errs.KindIndexNotFound, op, "index %s does not exist", indexName)
	}
	n, err := s.client.Count(ctx, indexName)
	if err != nil {
		return nil, errs.E(errs.KindIndexNotFound, op, err)
	}
	if n == 0 {
		return nil, errs.Ef(errs.KindIndexNotFound, op, "index %s is empty", indexName)
	}
	return &index{name: name, indexName: indexName, client: s.client, embedder: s.embedder, size: n}, nil
}

type index struct {
	name      string
	indexName string
	client    *es.Client
	embedder  embedding.Client
	size      int
}

func (i *index) Name() string     { return i.name }
func (i *index) Location() string { return "elasticsearch://" + i.indexName }
func (i *index) Len() int         { return i.size }

func (i *index) Search(ctx context.Context, query string, k int) ([]model.ScoredSegment, error) {
	const op = "elastic.Search"
	k = vectorstore.NormalizeK(k)
	qv, err := vectorstore.EmbedQuery(ctx, i.embedder, query)
	if err != nil {
		return nil, err
	}
	hits, err := i.client.KNNSearch(ctx, i.indexName, qv, k)
	if err != nil {
		if errors.Is(err, es.ErrIndexMissing) {
			return nil, errs.E(errs.KindIndexNotFound, op, err)
		}
		return nil, err
	}
	results := make([]model.ScoredSegment, 0, len(hits))
	for _, h := range hits {
		results = append(results, model.ScoredSegment{Segment: h.Source.Segment(), Score: cosineFromScore(h.Score)})
	}
	return vectorstore.RankTopK(results, k), nil
}

// cosineFromScore 还原余弦相似度：cosine 相似度的 dense_vector 得分为 (1 + cos) / 2。
func cosineFromScore(score float64) float64 {
	return 2*score - 1
}

func (i *index) Clear(ctx context.Context) error {
	const op = "elastic.Clear"
	if err := i.client.DeleteIndex(ctx, i.indexName); err != nil {
		return errs.E(errs.KindIndexDeletion, op, err)
	}
	i.size = 0
	return nil
}

func (i *index) Close() error { return nil }

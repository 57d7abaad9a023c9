// Package vectorstore 定义了向量索引的抽象：构建、打开、检索与清除。
// 具体后端位于子包 local、elastic 与 qdrant。
package vectorstore

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"docqa-go/internal/model"
	"docqa-go/pkg/embedding"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"
)

// DefaultTopK 是未指定或指定了非正数 k 时返回的结果数。
const DefaultTopK = 10

// Store 负责创建和打开命名的向量索引。
type Store interface {
	// Build 对所有分块做向量化并持久化到名为 name 的存储。segments 为空时返回 IndexBuildError 且不创建任何存储。
	// 对同一 name 重复 Build 会覆盖既有内容而不是追加。
	Build(ctx context.Context, name string, segments []model.Segment) (Index, error)
	// Open 加载已持久化的存储而不重新构建；不存在或损坏时返回 IndexNotFoundError。
	Open(ctx context.Context, name string) (Index, error)
	Backend() string
}

// Index 是一个已构建的向量索引句柄。
type Index interface {
	Name() string
	Location() string
	Len() int
	// Search 向量化 query 并返回最多 k 个结果，按相似度非递增排序。
	Search(ctx context.Context, query string, k int) ([]model.ScoredSegment, error)
	// Clear 删除该句柄的全部持久化数据；底层存储无法删除时返回 IndexDeletionError。
	Clear(ctx context.Context) error
	// Close 释放资源但保留持久化数据。
	Close() error
}

var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// ValidateName 检查存储名能否安全地用作目录名、ES 索引名和 Qdrant 集合名。
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return errs.Ef(errs.KindInvalidArgument, "vectorstore.ValidateName", "invalid store name %q", name)
	}
	return nil
}

// NormalizeK 将非正数的 k 替换为默认值。
func NormalizeK(k int) int {
	if k <= 0 {
		return DefaultTopK
	}
	return k
}

// EmbedSegments 批量向量化分块文本，返回与 segments 一一对应的向量。
func EmbedSegments(ctx context.Context, embedder embedding.Client, segments []model.Segment) ([][]float32, error) {
	texts := make([]string, len(segments))
	for i, s := range segments {
		texts[i] = s.Text
	}
	vecs, err := embedder.CreateEmbeddings(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(segments) {
		return nil, errs.Ef(errs.KindEmbeddingService, "vectorstore.EmbedSegments", "expected %d vectors, got %d", len(segments), len(vecs))
	}
	dim := len(vecs[0])
	for i, v := range vecs {
		if len(v) != dim {
			return nil, errs.Ef(errs.KindEmbeddingService, "vectorstore.EmbedSegments", "vector %d has dimension %d, expected %d", i, len(v), dim)
		}
	}
	log.Infof("[VectorStore] 分块向量化完成, 数量: %d, 维度: %d", len(vecs), dim)
	return vecs, nil
}

// EmbedQuery 向量化查询文本。
func EmbedQuery(ctx context.Context, embedder embedding.Client, query string) ([]float32, error) {
	if query == "" {
		return nil, errs.Ef(errs.KindInvalidArgument, "vectorstore.EmbedQuery", "query must not be empty")
	}
	return embedder.CreateEmbedding(ctx, query)
}

// RankTopK 按得分降序排序并截取前 k 个；得分相同按分块序号升序，保证结果稳定。
func RankTopK(results []model.ScoredSegment, k int) []model.ScoredSegment {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// CheckBuildInput 校验 Build 的输入，所有后端共用。
func CheckBuildInput(op, name string, segments []model.Segment) error {
	if len(segments) == 0 {
		return errs.Ef(errs.KindIndexBuild, op, "no segments to index")
	}
	if err := ValidateName(name); err != nil {
		return errs.E(errs.KindIndexBuild, op, err)
	}
	return nil
}

// Describe 返回便于日志输出的索引描述。
func Describe(idx Index) string {
	if idx == nil {
		return "<none>"
	}
	return fmt.Sprintf("%s(%d segments @ %s)", idx.Name(), idx.Len(), idx.Location())
}

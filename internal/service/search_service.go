package service

import (
	"context"
	"strings"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/internal/session"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"
)

// SearchService 接口定义了对激活文档的原始检索操作，用于查看回答的依据。
type SearchService interface {
	Search(ctx context.Context, sess *session.Session, query string, topK int) ([]model.ScoredSegment, error)
}

type searchService struct {
	retrieval config.RetrievalConfig
}

// NewSearchService 创建一个新的 SearchService 实例。
func NewSearchService(retrieval config.RetrievalConfig) SearchService {
	return &searchService{retrieval: retrieval}
}

func (s *searchService) Search(ctx context.Context, sess *session.Session, query string, topK int) ([]model.ScoredSegment, error) {
	const op = "SearchService.Search"
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errs.Ef(errs.KindInvalidArgument, op, "query must not be empty")
	}
	release, err := sess.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	idx, err := activeIndex(sess, op)
	if err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = s.retrieval.TopK
	}
	log.Infof("[SearchService] 开始检索, query: '%s', topK: %d", query, topK)
	results, err := idx.Search(ctx, query, topK)
	if err != nil {
		log.Errorf("[SearchService] 检索失败: %v", err)
		return nil, err
	}
	log.Infof("[SearchService] 检索完成, 返回 %d 条结果", len(results))
	return results, nil
}

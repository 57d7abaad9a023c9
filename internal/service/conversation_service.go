package service

import (
	"context"
	"time"

	"docqa-go/internal/model"
	"docqa-go/internal/repository"
	"docqa-go/internal/session"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"
)

// ConversationService 定义了问答历史的业务逻辑接口。历史只供回看，提问之间互不影响。
type ConversationService interface {
	// History 返回当前文档的问答历史；没有激活文档时返回 NoActiveDocumentError。
	History(ctx context.Context, sess *session.Session) ([]model.ChatRecord, error)
	record(ctx context.Context, doc *model.DocumentRecord, answer *model.Answer)
}

type conversationService struct {
	repo repository.ConversationRepository
}

// NewConversationService 创建一个新的 ConversationService。
func NewConversationService(repo repository.ConversationRepository) ConversationService {
	return &conversationService{repo: repo}
}

func (s *conversationService) History(ctx context.Context, sess *session.Session) ([]model.ChatRecord, error) {
	doc := sess.Document()
	if doc == nil {
		return nil, errs.Ef(errs.KindNoActiveDocument, "ConversationService.History", "no document is active")
	}
	return s.repo.History(ctx, doc.ID)
}

// record 追加一条问答记录。写入失败只记录日志，不影响回答。
func (s *conversationService) record(ctx context.Context, doc *model.DocumentRecord, answer *model.Answer) {
	if doc == nil {
		return
	}
	err := s.repo.Append(ctx, doc.ID, model.ChatRecord{
		Question:      answer.Question,
		Answer:        answer.Text,
		TopScore:      answer.TopScore,
		LowConfidence: answer.LowConfidence,
		Timestamp:     time.Now(),
	})
	if err != nil {
		log.Warnf("[ConversationService] 保存问答历史失败, DocumentID: %d, Error: %v", doc.ID, err)
	}
}

package service

import (
	"context"
	"errors"
	"strings"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/internal/session"
	"docqa-go/internal/vectorstore"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/llm"
	"docqa-go/pkg/log"
)

// ContextPlaceholder 是系统提示中被替换为检索结果的占位符。
const ContextPlaceholder = "{context}"

// ChatService 接口定义了基于激活文档的问答操作。
type ChatService interface {
	// Ask 检索与问题最相关的 topK 个分块，拼入系统提示后调用大模型生成回答。topK <= 0 时使用配置值。
	Ask(ctx context.Context, sess *session.Session, question string, topK int) (*model.Answer, error)
}

type chatService struct {
	llmClient llm.Client
	prompt    config.LLMPromptConfig
	retrieval config.RetrievalConfig
	history   ConversationService
}

// NewChatService 创建一个新的 ChatService 实例。history 为 nil 时不记录问答历史。
func NewChatService(llmClient llm.Client, prompt config.LLMPromptConfig, retrieval config.RetrievalConfig, history ConversationService) ChatService {
	if prompt.System == "" {
		prompt.System = config.DefaultSystemPrompt
	}
	if prompt.Separator == "" {
		prompt.Separator = "\n\n"
	}
	return &chatService{llmClient: llmClient, prompt: prompt, retrieval: retrieval, history: history}
}

func (s *chatService) Ask(ctx context.Context, sess *session.Session, question string, topK int) (*model.Answer, error) {
	const op = "ChatService.Ask"
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, errs.Ef(errs.KindInvalidArgument, op, "question must not be empty")
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

	// 1. 检索
	log.Infof("[ChatService] 步骤1: 检索相关分块, topK: %d", topK)
	results, err := idx.Search(ctx, question, topK)
	if err != nil {
		log.Errorf("[ChatService] 检索失败: %v", err)
		return nil, err
	}

	answer := &model.Answer{Question: question, Sources: results}
	if len(results) > 0 {
		answer.TopScore = results[0].Score
	}
	if s.retrieval.MinScore > 0 && answer.TopScore < s.retrieval.MinScore {
		answer.LowConfidence = true
		log.Warnf("[ChatService] 最高相似度 %.4f 低于阈值 %.4f, 回答可能缺乏文档依据", answer.TopScore, s.retrieval.MinScore)
	}

	// 2. 组装提示并生成
	systemPrompt := s.BuildSystemPrompt(results)
	log.Debugf("[ChatService] 系统提示长度: %d 字符", len([]rune(systemPrompt)))
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: systemPrompt},
		{Role: llm.RoleUser, Content: question},
	}
	log.Infof("[ChatService] 步骤2: 调用模型 %s 生成回答, 上下文分块数: %d", s.llmClient.Model(), len(results))
	text, err := s.llmClient.Generate(ctx, messages, nil)
	if err != nil {
		log.Errorf("[ChatService] 生成回答失败: %v", err)
		return nil, err
	}
	answer.Text = text
	if s.history != nil {
		s.history.record(ctx, sess.Document(), answer)
	}
	return answer, nil
}

// BuildSystemPrompt 用分隔符拼接分块文本并替换系统提示中的占位符。
func (s *chatService) BuildSystemPrompt(results []model.ScoredSegment) string {
	texts := make([]string, 0, len(results))
	for _, r := range results {
		texts = append(texts, r.Text)
	}
	contextText := strings.Join(texts, s.prompt.Separator)
	if contextText == "" {
		contextText = s.prompt.NoResultText
	}
	return strings.ReplaceAll(s.prompt.System, ContextPlaceholder, contextText)
}

func activeIndex(sess *session.Session, op string) (vectorstore.Index, error) {
	idx := sess.Index()
	if idx == nil {
		return nil, errs.E(errs.KindNoActiveDocument, op, errors.New("please upload and process a PDF document first"))
	}
	return idx, nil
}

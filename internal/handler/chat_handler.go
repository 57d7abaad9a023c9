package handler

import (
	"net/http"

	"docqa-go/internal/service"
	"docqa-go/internal/session"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// ChatHandler 处理问答请求。
type ChatHandler struct {
	chatService service.ChatService
	sess        *session.Session
}

// NewChatHandler 创建一个新的 ChatHandler 实例。
func NewChatHandler(chatService service.ChatService, sess *session.Session) *ChatHandler {
	return &ChatHandler{chatService: chatService, sess: sess}
}

// AskRequest 定义了问答 API 的请求体结构。
type AskRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"topK"`
}

// Ask 对当前文档提问。
func (h *ChatHandler) Ask(c *gin.Context) {
	const op = "ChatHandler.Ask"
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, op, errs.Ef(errs.KindInvalidArgument, op, "无效的请求负载: %v", err))
		return
	}
	log.Infof("[ChatHandler] 收到问题: %s", req.Question)

	answer, err := h.chatService.Ask(c.Request.Context(), h.sess, req.Question, req.TopK)
	if err != nil {
		respondError(c, op, err)
		return
	}
	respondOK(c, http.StatusOK, "success", answer)
}

package handler

import (
	"net/http"

	"docqa-go/internal/service"
	"docqa-go/internal/session"

	"github.com/gin-gonic/gin"
)

// ConversationHandler 处理与问答历史相关的 API 请求。
type ConversationHandler struct {
	service service.ConversationService
	sess    *session.Session
}

// NewConversationHandler 创建一个新的 ConversationHandler。
func NewConversationHandler(service service.ConversationService, sess *session.Session) *ConversationHandler {
	return &ConversationHandler{service: service, sess: sess}
}

// GetHistory 返回当前文档的问答历史。
func (h *ConversationHandler) GetHistory(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), h.sess)
	if err != nil {
		respondError(c, "ConversationHandler.GetHistory", err)
		return
	}
	respondOK(c, http.StatusOK, "success", history)
}

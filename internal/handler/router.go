package handler

import (
	"net/http"

	"docqa-go/internal/config"
	"docqa-go/internal/service"
	"docqa-go/internal/session"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes 在 r 上注册全部 API 路由。所有请求共享同一个会话 sess。
func RegisterRoutes(r gin.IRouter, sess *session.Session, ingestCfg config.IngestConfig,
	docService service.DocumentService, chatService service.ChatService, searchService service.SearchService,
	conversationService service.ConversationService) {

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "session": sess.ID})
	})

	apiV1 := r.Group("/api/v1")
	{
		documentHandler := NewDocumentHandler(docService, sess, ingestCfg)
		documents := apiV1.Group("/documents")
		{
			documents.POST("", documentHandler.Upload)
			documents.GET("", documentHandler.List)
			documents.GET("/current", documentHandler.Current)
			documents.DELETE("/current", documentHandler.Clear)
		}

		apiV1.POST("/chat", NewChatHandler(chatService, sess).Ask)
		apiV1.GET("/chat/history", NewConversationHandler(conversationService, sess).GetHistory)
		apiV1.GET("/search", NewSearchHandler(searchService, sess).Search)
	}
}

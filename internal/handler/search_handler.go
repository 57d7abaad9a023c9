package handler

import (
	"net/http"
	"strconv"

	"docqa-go/internal/service"
	"docqa-go/internal/session"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// SearchHandler 结构体定义了检索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
	sess          *session.Session
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService, sess *session.Session) *SearchHandler {
	return &SearchHandler{searchService: searchService, sess: sess}
}

// Search 返回与 query 最相似的分块及其得分。
func (h *SearchHandler) Search(c *gin.Context) {
	const op = "SearchHandler.Search"
	query := c.Query("query")
	log.Infof("[SearchHandler] 收到检索请求, query: %s", query)

	if query == "" {
		respondError(c, op, errs.Ef(errs.KindInvalidArgument, op, "缺少 query 参数"))
		return
	}
	topK := 0
	if s := c.Query("topK"); s != "" {
		k, err := strconv.Atoi(s)
		if err != nil {
			respondError(c, op, errs.Ef(errs.KindInvalidArgument, op, "无效的 topK: %s", s))
			return
		}
		topK = k
	}

	results, err := h.searchService.Search(c.Request.Context(), h.sess, query, topK)
	if err != nil {
		respondError(c, op, err)
		return
	}
	respondOK(c, http.StatusOK, "success", results)
}

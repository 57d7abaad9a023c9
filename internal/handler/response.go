// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"errors"
	"net/http"

	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// StatusFor 将错误类别映射为 HTTP 状态码。
func StatusFor(err error) int {
	switch errs.KindOf(err) {
	case errs.KindInvalidArgument:
		return http.StatusBadRequest
	case errs.KindIndexNotFound:
		return http.StatusNotFound
	case errs.KindNoActiveDocument:
		return http.StatusConflict
	case errs.KindUnreadableDocument:
		return http.StatusUnprocessableEntity
	case errs.KindEmbeddingService, errs.KindGenerationService:
		return http.StatusBadGateway
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// respondError 以统一的结构返回错误信息，会话本身不受影响。
func respondError(c *gin.Context, op string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("%s: %v", op, err)
	} else {
		log.Warnf("%s: %v", op, err)
	}
	c.JSON(status, gin.H{
		"code":    status,
		"message": err.Error(),
		"data":    nil,
	})
}

func respondOK(c *gin.Context, status int, message string, data interface{}) {
	c.JSON(status, gin.H{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

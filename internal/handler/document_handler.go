package handler

import (
	"io"
	"net/http"

	"docqa-go/internal/config"
	"docqa-go/internal/pipeline"
	"docqa-go/internal/service"
	"docqa-go/internal/session"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// DocumentHandler 负责处理所有与文档相关的 API 请求。
type DocumentHandler struct {
	docService service.DocumentService
	sess       *session.Session
	ingestCfg  config.IngestConfig
}

// NewDocumentHandler 创建一个新的 DocumentHandler 实例。
func NewDocumentHandler(docService service.DocumentService, sess *session.Session, ingestCfg config.IngestConfig) *DocumentHandler {
	return &DocumentHandler{docService: docService, sess: sess, ingestCfg: ingestCfg}
}

// Upload 接收 multipart 表单中的 file 字段。同步模式下处理完成后返回，异步模式下返回 202。
func (h *DocumentHandler) Upload(c *gin.Context) {
	const op = "DocumentHandler.Upload"
	fileHeader, err := c.FormFile("file")
	if err != nil {
		respondError(c, op, errs.Ef(errs.KindInvalidArgument, op, "缺少上传文件: %v", err))
		return
	}
	log.Infof("[DocumentHandler] 收到上传请求, FileName: %s, Size: %d", fileHeader.Filename, fileHeader.Size)

	if !pipeline.IsPDFName(fileHeader.Filename) {
		respondError(c, op, errs.Ef(errs.KindInvalidArgument, op, "只支持 PDF 文件: %s", fileHeader.Filename))
		return
	}
	if h.ingestCfg.MaxUploadBytes > 0 && fileHeader.Size > h.ingestCfg.MaxUploadBytes {
		respondError(c, op, errs.Ef(errs.KindInvalidArgument, op, "文件大小 %d 超过上限 %d", fileHeader.Size, h.ingestCfg.MaxUploadBytes))
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		respondError(c, op, errs.E(errs.KindUnreadableDocument, op, err))
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		respondError(c, op, errs.E(errs.KindUnreadableDocument, op, err))
		return
	}

	if h.ingestCfg.Mode == "async" {
		dto, err := h.docService.Submit(c.Request.Context(), h.sess, fileHeader.Filename, data)
		if err != nil {
			respondError(c, op, err)
			return
		}
		respondOK(c, http.StatusAccepted, "文档已提交, 正在后台处理", dto)
		return
	}

	outcome, err := h.docService.Ingest(c.Request.Context(), h.sess, fileHeader.Filename, data)
	if err != nil {
		respondError(c, op, err)
		return
	}
	respondOK(c, http.StatusOK, "文档处理完成", outcome)
}

// List 返回最近的文档记录。
func (h *DocumentHandler) List(c *gin.Context) {
	docs, err := h.docService.List(c.Request.Context())
	if err != nil {
		respondError(c, "DocumentHandler.List", err)
		return
	}
	respondOK(c, http.StatusOK, "获取文档列表成功", docs)
}

// Current 返回当前激活的文档。
func (h *DocumentHandler) Current(c *gin.Context) {
	doc, err := h.docService.Current(h.sess)
	if err != nil {
		respondError(c, "DocumentHandler.Current", err)
		return
	}
	respondOK(c, http.StatusOK, "获取当前文档成功", doc)
}

// Clear 删除当前文档的索引。索引删除失败时仍返回 200，并在 data.warnings 中说明。
func (h *DocumentHandler) Clear(c *gin.Context) {
	warnings, err := h.docService.Clear(c.Request.Context(), h.sess)
	if err != nil {
		respondError(c, "DocumentHandler.Clear", err)
		return
	}
	respondOK(c, http.StatusOK, "当前文档已清除", gin.H{"warnings": warnings})
}

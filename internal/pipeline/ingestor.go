// Package pipeline 定义了文档解析、切分以及异步处理任务的核心流程。
package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/pkg/errs"
	"docqa-go/pkg/log"
)

// Extractor 从 PDF 字节中按页提取文本。
type Extractor interface {
	ExtractPages(ctx context.Context, data []byte, fileName string) ([]model.Page, error)
}

// IngestResult 是一次解析与切分的结果。
type IngestResult struct {
	PageCount int
	Segments  []model.Segment
}

// Ingestor 负责把 PDF 转换为有序的分块序列。
type Ingestor struct {
	extractor Extractor
	splitter  *Splitter
}

// NewIngestor 创建一个新的 Ingestor 实例。
func NewIngestor(extractor Extractor, cfg config.IngestConfig) *Ingestor {
	return &Ingestor{
		extractor: extractor,
		splitter:  NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
	}
}

// FileMD5 计算文档内容的 MD5，作为文档身份。
func FileMD5(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

// IngestFile 从本地路径读取 PDF 并解析。
func (i *Ingestor) IngestFile(ctx context.Context, path string) (*IngestResult, model.SourceDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, model.SourceDocument{}, errs.E(errs.KindUnreadableDocument, "pipeline.IngestFile", err)
	}
	doc := model.SourceDocument{FileName: filepath.Base(path), FileMD5: FileMD5(data), Data: data}
	res, err := i.Ingest(ctx, doc)
	return res, doc, err
}

// Ingest 逐页提取文本并切分。每一页单独切分，因此每个分块都能标注来源页码。
func (i *Ingestor) Ingest(ctx context.Context, doc model.SourceDocument) (*IngestResult, error) {
	const op = "pipeline.Ingest"
	if doc.FileMD5 == "" {
		doc.FileMD5 = FileMD5(doc.Data)
	}
	log.Infof("[Ingestor] 开始解析文档, FileName: %s, FileMD5: %s, 大小: %d字节", doc.FileName, doc.FileMD5, len(doc.Data))

	if len(doc.Data) == 0 {
		return nil, errs.Ef(errs.KindUnreadableDocument, op, "文件 '%s' 内容为空", doc.FileName)
	}

	// 1. 提取文本
	pages, err := i.extractor.ExtractPages(ctx, doc.Data, doc.FileName)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		log.Errorf("[Ingestor] 步骤1: 提取文本失败, FileName: %s, Error: %v", doc.FileName, err)
		return nil, errs.E(errs.KindUnreadableDocument, op, err)
	}
	log.Infof("[Ingestor] 步骤1: 文本提取完成, 共 %d 页", len(pages))

	// 2. 按页切分
	var segments []model.Segment
	for _, page := range pages {
		chunks, err := i.splitter.Split(page.Text)
		if err != nil {
			return nil, fmt.Errorf("切分第 %d 页失败: %w", page.Number, err)
		}
		for _, chunk := range chunks {
			idx := len(segments)
			segments = append(segments, model.Segment{
				ID:         model.SegmentID(doc.FileMD5, idx),
				DocumentID: doc.FileMD5,
				ChunkIndex: idx,
				Page:       page.Number,
				Text:       chunk,
			})
		}
	}
	if len(segments) == 0 {
		// 纯扫描件等没有文字层的 PDF
		log.Warnf("[Ingestor] 文档 '%s' 没有可提取的文本", doc.FileName)
		return nil, errs.E(errs.KindUnreadableDocument, op, fmt.Errorf("文件 '%s' 不包含可提取的文本", doc.FileName))
	}
	log.Infof("[Ingestor] 步骤2: 文本切分完成, 共生成 %d 个分块", len(segments))

	return &IngestResult{PageCount: len(pages), Segments: segments}, nil
}

// IsPDFName 判断文件名是否为 PDF。
func IsPDFName(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

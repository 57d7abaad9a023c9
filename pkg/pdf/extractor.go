// Package pdf 提供基于 ledongthuc/pdf 的本地 PDF 文本提取。
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"docqa-go/internal/model"
	"docqa-go/pkg/log"

	"github.com/ledongthuc/pdf"
)

// Extractor 在进程内逐页提取 PDF 文本，无需外部服务。
type Extractor struct{}

// NewExtractor 创建一个本地提取器。
func NewExtractor() *Extractor {
	return &Extractor{}
}

// ExtractPages 按页提取文本。返回的切片包含所有页，无文本的页 Text 为空。
// 解析器在遇到损坏的内容流时可能 panic，这里统一转换为错误返回。
func (e *Extractor) ExtractPages(ctx context.Context, data []byte, fileName string) (pages []model.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("解析 PDF '%s' 时发生异常: %v", fileName, r)
		}
	}()

	if !bytes.HasPrefix(bytes.TrimLeft(data, "\x00\t\r\n "), []byte("%PDF-")) {
		return nil, fmt.Errorf("文件 '%s' 不是有效的 PDF", fileName)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("打开 PDF '%s' 失败: %w", fileName, err)
	}

	total := reader.NumPage()
	log.Infof("[PDFExtractor] 开始提取文本, 文件: %s, 页数: %d", fileName, total)
	pages = make([]model.Page, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			pages = append(pages, model.Page{Number: i})
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			log.Warnf("[PDFExtractor] 第 %d 页提取失败, 跳过: %v", i, err)
			pages = append(pages, model.Page{Number: i})
			continue
		}
		pages = append(pages, model.Page{Number: i, Text: strings.TrimSpace(text)})
	}
	return pages, nil
}

// Package testutil 提供测试共用的替身实现与样例数据构造函数。
package testutil

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
)

// BuildPDF 用 Helvetica 生成一个 PDF，每个元素对应一页，页内以换行分隔多行文本。
// 空字符串生成一个没有文字内容的页。只支持 cp1252 可表示的字符。
func BuildPDF(pages []string) []byte {
	doc := fpdf.New("P", "mm", "A4", "")
	// 不压缩内容流，便于排查提取结果
	doc.SetCompression(false)
	doc.SetFont("Helvetica", "", 12)
	for _, text := range pages {
		doc.AddPage()
		if text == "" {
			continue
		}
		for i, line := range strings.Split(text, "\n") {
			doc.Text(20, 30+float64(i)*7, line)
		}
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		panic(fmt.Sprintf("生成测试 PDF 失败: %v", err))
	}
	return buf.Bytes()
}

// Package tika 提供了一个与 Apache Tika 服务器交互的客户端。
package tika

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strings"

	"docqa-go/internal/config"
	"docqa-go/internal/model"
	"docqa-go/pkg/log"

	"github.com/PuerkitoBio/goquery"
)

// Client 是 Tika 服务器的客户端。
type Client struct {
	serverURL string
	client    *http.Client
}

// NewClient 创建一个新的 Tika 客户端实例。
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{
		serverURL: strings.TrimRight(cfg.ServerURL, "/"),
		client:    &http.Client{Timeout: cfg.Timeout},
	}
}

// ExtractPages 调用 Tika 的 XHTML 输出，并按 <div class="page"> 拆分为页。
// Tika 对 PDF 会为每一页生成一个 page div；若不存在则整篇作为第 1 页。
func (c *Client) ExtractPages(ctx context.Context, data []byte, fileName string) ([]model.Page, error) {
	body, err := c.extract(ctx, bytes.NewReader(data), fileName, "text/html")
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("解析 Tika XHTML 响应失败: %w", err)
	}

	var pages []model.Page
	doc.Find("div.page").Each(func(i int, s *goquery.Selection) {
		pages = append(pages, model.Page{Number: i + 1, Text: pageText(s)})
	})
	if len(pages) == 0 {
		pages = []model.Page{{Number: 1, Text: pageText(doc.Find("body"))}}
	}
	log.Infof("[TikaClient] 文本提取完成, 文件: %s, 页数: %d", fileName, len(pages))
	return pages, nil
}

func (c *Client) extract(ctx context.Context, fileReader io.Reader, fileName, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.serverURL+"/tika", fileReader)
	if err != nil {
		return nil, fmt.Errorf("创建请求失败: %w", err)
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("调用 Tika 失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Tika 返回错误 [%d]: %s", resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return nil, fmt.Errorf("读取 Tika 响应失败: %w", err)
	}
	return buf.Bytes(), nil
}

// pageText 以段落为单位拼接文本，段落之间保留空行，供切分器优先在段落处断开。
func pageText(s *goquery.Selection) string {
	var parts []string
	s.Find("p").Each(func(_ int, p *goquery.Selection) {
		if t := strings.TrimSpace(p.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	if len(parts) == 0 {
		return strings.TrimSpace(s.Text())
	}
	return strings.Join(parts, "\n\n")
}

// detectMimeType 根据文件扩展名判断 Content-Type
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/pdf"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}

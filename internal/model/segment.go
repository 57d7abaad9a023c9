package model

import "fmt"

// SourceDocument 是一次上传请求中的原始文档，只在处理期间存在。
type SourceDocument struct {
	FileName string
	FileMD5  string
	Data     []byte
}

// Page 是从 PDF 单页中提取的文本，Number 从 1 开始。
type Page struct {
	Number int
	Text   string
}

// Segment 是文档中一段连续的文本及其来源信息。创建后不可修改。
type Segment struct {
	ID         string `json:"id"`
	DocumentID string `json:"documentId"`
	ChunkIndex int    `json:"chunkIndex"`
	Page       int    `json:"page"`
	Text       string `json:"text"`
}

// SegmentID 生成确定性的分块 ID，重复构建时用于覆盖而不是追加。
func SegmentID(documentID string, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", documentID, chunkIndex)
}

// ScoredSegment 是检索结果：分块及其相似度得分（越大越相似）。
type ScoredSegment struct {
	Segment
	Score float64 `json:"score"`
}

// Answer 是一次问答的结果，不做持久化。
type Answer struct {
	Question      string          `json:"question"`
	Text          string          `json:"answer"`
	Sources       []ScoredSegment `json:"sources"`
	TopScore      float64         `json:"topScore"`
	LowConfidence bool            `json:"lowConfidence"`
}

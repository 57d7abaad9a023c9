package model

// EsSegment 定义了存储在 Elasticsearch 中的分块文档结构。
type EsSegment struct {
	VectorID     string    `json:"vector_id"` // 唯一标识，fileMd5 + chunkIndex
	DocumentID   string    `json:"document_id"`
	ChunkIndex   int       `json:"chunk_index"`
	Page         int       `json:"page"`
	TextContent  string    `json:"text_content"`
	Vector       []float32 `json:"vector"`
	ModelVersion string    `json:"model_version"`
}

// NewEsSegment 由分块和向量组装 ES 文档。
func NewEsSegment(seg Segment, vector []float32, modelVersion string) EsSegment {
	return EsSegment{
		VectorID:     seg.ID,
		DocumentID:   seg.DocumentID,
		ChunkIndex:   seg.ChunkIndex,
		Page:         seg.Page,
		TextContent:  seg.Text,
		Vector:       vector,
		ModelVersion: modelVersion,
	}
}

// Segment 还原为领域分块。
func (d EsSegment) Segment() Segment {
	return Segment{
		ID:         d.VectorID,
		DocumentID: d.DocumentID,
		ChunkIndex: d.ChunkIndex,
		Page:       d.Page,
		Text:       d.TextContent,
	}
}

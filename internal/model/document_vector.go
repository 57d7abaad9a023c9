package model

// DocumentVector 对应本地向量库中的 document_vectors 表。
// 每一行保存一个分块的文本与向量，向量以 little-endian float32 字节序列存储。
type DocumentVector struct {
	VectorID     string `gorm:"primaryKey;type:varchar(64);column:vector_id"`
	DocumentID   string `gorm:"type:varchar(32);not null;index;column:document_id"`
	ChunkIndex   int    `gorm:"not null;column:chunk_index"`
	Page         int    `gorm:"not null;column:page"`
	TextContent  string `gorm:"type:text;column:text_content"`
	Vector       []byte `gorm:"column:vector"`
	ModelVersion string `gorm:"type:varchar(64);column:model_version"`
}

func (DocumentVector) TableName() string {
	return "document_vectors"
}

// Segment 还原为领域分块。
func (v DocumentVector) Segment() Segment {
	return Segment{
		ID:         v.VectorID,
		DocumentID: v.DocumentID,
		ChunkIndex: v.ChunkIndex,
		Page:       v.Page,
		Text:       v.TextContent,
	}
}

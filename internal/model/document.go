// Package model 定义了领域对象以及与数据库表对应的 Go 结构体。
package model

import "time"

// 文档记录的处理状态。
const (
	DocumentStatusProcessing = 0
	DocumentStatusIndexed    = 1
	DocumentStatusFailed     = 2
	DocumentStatusCleared    = 3
	DocumentStatusQueued     = 4
)

// DocumentRecord 定义了 documents 表的 ORM 模型。
// 它只记录上传文档的元数据与状态，文档内容本身在处理结束后即被丢弃。
type DocumentRecord struct {
	ID           uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID    string     `gorm:"type:varchar(36);index" json:"sessionId"`
	FileMD5      string     `gorm:"type:varchar(32);not null;index" json:"fileMd5"`
	FileName     string     `gorm:"type:varchar(255);not null" json:"fileName"`
	TotalSize    int64      `gorm:"not null" json:"totalSize"`
	PageCount    int        `gorm:"not null;default:0" json:"pageCount"`
	SegmentCount int        `gorm:"not null;default:0" json:"segmentCount"`
	Status       int        `gorm:"not null;default:0" json:"status"`
	Backend      string     `gorm:"type:varchar(32)" json:"backend"`
	StoreName    string     `gorm:"type:varchar(64)" json:"storeName"`
	Location     string     `gorm:"type:varchar(512)" json:"location"`
	ErrorMsg     string     `gorm:"type:text" json:"errorMsg,omitempty"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	IndexedAt    *time.Time `gorm:"default:null" json:"indexedAt"`
}

// TableName 指定了此模型在数据库中对应的表名。
func (DocumentRecord) TableName() string {
	return "documents"
}

// StatusText 返回状态的可读描述。
func (d DocumentRecord) StatusText() string {
	switch d.Status {
	case DocumentStatusProcessing:
		return "processing"
	case DocumentStatusIndexed:
		return "indexed"
	case DocumentStatusFailed:
		return "failed"
	case DocumentStatusCleared:
		return "cleared"
	case DocumentStatusQueued:
		return "queued"
	default:
		return "unknown"
	}
}

// DocumentDTO 是返回给前端的文档信息。
type DocumentDTO struct {
	ID           uint       `json:"id"`
	FileMD5      string     `json:"fileMd5"`
	FileName     string     `json:"fileName"`
	TotalSize    int64      `json:"totalSize"`
	PageCount    int        `json:"pageCount"`
	SegmentCount int        `json:"segmentCount"`
	Status       string     `json:"status"`
	Backend      string     `json:"backend"`
	Location     string     `json:"location"`
	ErrorMsg     string     `json:"errorMsg,omitempty"`
	CreatedAt    LocalTime  `json:"createdAt"`
	IndexedAt    *LocalTime `json:"indexedAt,omitempty"`
}

// ToDTO 将数据库记录转换为 DTO。
func (d DocumentRecord) ToDTO() DocumentDTO {
	dto := DocumentDTO{
		ID:           d.ID,
		FileMD5:      d.FileMD5,
		FileName:     d.FileName,
		TotalSize:    d.TotalSize,
		PageCount:    d.PageCount,
		SegmentCount: d.SegmentCount,
		Status:       d.StatusText(),
		Backend:      d.Backend,
		Location:     d.Location,
		ErrorMsg:     d.ErrorMsg,
		CreatedAt:    LocalTime(d.CreatedAt),
	}
	if d.IndexedAt != nil {
		t := LocalTime(*d.IndexedAt)
		dto.IndexedAt = &t
	}
	return dto
}

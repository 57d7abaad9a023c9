// Package repository 定义了与数据库进行数据交换的接口和实现。
package repository

import (
	"errors"
	"time"

	"docqa-go/internal/model"

	"gorm.io/gorm"
)

// DocumentRepository 接口定义了文档记录的持久化操作。
type DocumentRepository interface {
	Create(record *model.DocumentRecord) error
	Update(record *model.DocumentRecord) error
	FindByID(id uint) (*model.DocumentRecord, error)
	// FindLatestIndexed 返回最近一次成功建立索引的记录，不存在时返回 (nil, nil)。
	FindLatestIndexed() (*model.DocumentRecord, error)
	List(limit int) ([]model.DocumentRecord, error)
	UpdateStatus(id uint, status int, errMsg string) error
	MarkIndexed(record *model.DocumentRecord) error
}

type documentRepository struct {
	db *gorm.DB
}

// NewDocumentRepository 创建一个新的 DocumentRepository 实例。
func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(record *model.DocumentRecord) error {
	return r.db.Create(record).Error
}

func (r *documentRepository) Update(record *model.DocumentRecord) error {
	return r.db.Save(record).Error
}

func (r *documentRepository) FindByID(id uint) (*model.DocumentRecord, error) {
	var record model.DocumentRecord
	if err := r.db.First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *documentRepository) FindLatestIndexed() (*model.DocumentRecord, error) {
	var record model.DocumentRecord
	err := r.db.Where("status = ?", model.DocumentStatusIndexed).Order("indexed_at DESC, id DESC").First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// List 按创建时间倒序返回最近的记录。
func (r *documentRepository) List(limit int) ([]model.DocumentRecord, error) {
	var records []model.DocumentRecord
	q := r.db.Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&records).Error
	return records, err
}

func (r *documentRepository) UpdateStatus(id uint, status int, errMsg string) error {
	return r.db.Model(&model.DocumentRecord{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":    status,
		"error_msg": errMsg,
	}).Error
}

// MarkIndexed 将记录置为已索引并写入统计信息。
func (r *documentRepository) MarkIndexed(record *model.DocumentRecord) error {
	now := time.Now()
	record.Status = model.DocumentStatusIndexed
	record.IndexedAt = &now
	record.ErrorMsg = ""
	return r.db.Save(record).Error
}

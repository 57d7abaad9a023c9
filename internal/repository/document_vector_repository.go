package repository

import (
	"docqa-go/internal/model"

	"gorm.io/gorm"
)

// DocumentVectorRepository 定义了对本地向量库 document_vectors 表的数据操作接口。
type DocumentVectorRepository interface {
	// ReplaceAll 在一个事务内清空既有分块并写入新的分块。
	ReplaceAll(vectors []*model.DocumentVector) error
	FindAll() ([]*model.DocumentVector, error)
}

type documentVectorRepository struct {
	db *gorm.DB
}

// NewDocumentVectorRepository 创建一个新的 DocumentVectorRepository 实例。
func NewDocumentVectorRepository(db *gorm.DB) DocumentVectorRepository {
	return &documentVectorRepository{db: db}
}

// ReplaceAll 先清理旧记录再批量写入，重复构建不会累积重复分块。
func (r *documentVectorRepository) ReplaceAll(vectors []*model.DocumentVector) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.DocumentVector{}).Error; err != nil {
			return err
		}
		if len(vectors) == 0 {
			return nil
		}
		return tx.CreateInBatches(vectors, 100).Error // 每100条记录一批
	})
}

// FindAll 按分块序号返回全部记录。
func (r *documentVectorRepository) FindAll() ([]*model.DocumentVector, error) {
	var vectors []*model.DocumentVector
	err := r.db.Order("chunk_index ASC").Find(&vectors).Error
	return vectors, err
}


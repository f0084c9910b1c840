package repository

import (
	"docquiz_backend/internal/model"

	"gorm.io/gorm"
)

type DocumentRepository struct {
	DB *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) *DocumentRepository {
	return &DocumentRepository{DB: db}
}

func (r *DocumentRepository) Create(doc *model.Document) error {
	return r.DB.Create(doc).Error
}

func (r *DocumentRepository) FindByID(id string) (*model.Document, error) {
	var doc model.Document
	err := r.DB.First(&doc, "id = ?", id).Error
	return &doc, err
}

func (r *DocumentRepository) FindByIDAndUser(id string, userID uint) (*model.Document, error) {
	var doc model.Document
	err := r.DB.Where("id = ? AND user_id = ?", id, userID).First(&doc).Error
	return &doc, err
}

func (r *DocumentRepository) ListByUser(userID uint) ([]model.Document, error) {
	var docs []model.Document
	err := r.DB.Where("user_id = ?", userID).Order("created_at desc").Find(&docs).Error
	return docs, err
}

func (r *DocumentRepository) UpdateStatus(id string, status string) error {
	return r.DB.Model(&model.Document{}).Where("id = ?", id).
		Update("status", status).Error
}

// SetExtractedText 写入抽取文本缓存，first-writer-wins：
// 只有缓存为空时才写入。返回 true 表示本次写入生效，
// false 表示已有并发抽取先一步写入，调用方应重新读取。
func (r *DocumentRepository) SetExtractedText(id string, text string) (bool, error) {
	res := r.DB.Model(&model.Document{}).
		Where("id = ? AND extracted_text IS NULL", id).
		Updates(map[string]interface{}{
			"extracted_text": text,
			"status":         model.DocumentStatusCompleted,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *DocumentRepository) Delete(id string) error {
	return r.DB.Delete(&model.Document{}, "id = ?", id).Error
}

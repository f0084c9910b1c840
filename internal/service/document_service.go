package service

import (
	"context"
	"docquiz_backend/internal/model"
	"docquiz_backend/internal/repository"
	"docquiz_backend/internal/util"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"gorm.io/gorm"
)

type DocumentService struct {
	Repo    *repository.DocumentRepository
	Storage *StorageService
}

func NewDocumentService(repo *repository.DocumentRepository, storage *StorageService) *DocumentService {
	return &DocumentService{Repo: repo, Storage: storage}
}

// Upload 保存上传文件并创建文档记录。
// 存储 key 用 uuid 前缀避免同名覆盖。
func (s *DocumentService) Upload(ctx context.Context, userID uint, filename string, reader io.Reader, size int64, contentType string) (*model.Document, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".pdf" {
		return nil, fmt.Errorf("unsupported file type: %s", ext)
	}

	if contentType == "" || contentType == util.MimeOctetStream {
		contentType = util.MimePDF
	}

	storageKey := fmt.Sprintf("documents/%s/%s%s", model.GenerateUUID(), strings.TrimSuffix(filepath.Base(filename), ext), ext)

	if _, err := s.Storage.Upload(ctx, storageKey, reader, size, contentType); err != nil {
		return nil, err
	}

	doc := &model.Document{
		UserID:      userID,
		Filename:    filename,
		StorageKey:  storageKey,
		ContentType: contentType,
		Size:        size,
		Status:      model.DocumentStatusUploaded,
	}

	if err := s.Repo.Create(doc); err != nil {
		// 入库失败时清掉已上传的对象，避免存储里留孤儿文件
		s.Storage.Delete(ctx, storageKey)
		return nil, err
	}

	return doc, nil
}

func (s *DocumentService) GetDocument(userID uint, documentID string) (*model.Document, error) {
	doc, err := s.Repo.FindByIDAndUser(documentID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrDocumentNotFound
		}
		return nil, err
	}
	return doc, nil
}

func (s *DocumentService) ListDocuments(userID uint) ([]model.Document, error) {
	return s.Repo.ListByUser(userID)
}

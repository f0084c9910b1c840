package service

import (
	"bytes"
	"context"
	"docquiz_backend/internal/model"
	"docquiz_backend/internal/repository"
	"docquiz_backend/internal/util"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// BlobDownloader 抽取阶段对存储层的最小依赖
type BlobDownloader interface {
	Download(ctx context.Context, filename string) (io.ReadCloser, error)
}

// TextParser 把文档字节解析为纯文本
type TextParser interface {
	Parse(data []byte) (string, error)
}

// PDFParser 基于 ledongthuc/pdf 的 PDF 文本解析
type PDFParser struct{}

func (PDFParser) Parse(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if _, err := io.Copy(&sb, textReader); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// ExtractionService 出题流水线的第一阶段：拿到文档文本。
// 抽取开销大，结果缓存在 Document.ExtractedText 上，最多执行一次。
type ExtractionService struct {
	Repo    *repository.DocumentRepository
	Storage BlobDownloader
	Parser  TextParser
}

func NewExtractionService(repo *repository.DocumentRepository, storage BlobDownloader, parser TextParser) *ExtractionService {
	return &ExtractionService{Repo: repo, Storage: storage, Parser: parser}
}

// ExtractText 返回文档的抽取文本。缓存命中直接返回；否则从存储拉取
// 字节、解析、写回缓存。并发抽取同一文档时 first-writer-wins，
// 输掉竞争的一方重新读取胜者写入的文本。
func (s *ExtractionService) ExtractText(ctx context.Context, doc *model.Document) (string, error) {
	if doc.ExtractedText != nil && *doc.ExtractedText != "" {
		return *doc.ExtractedText, nil
	}

	obj, err := s.Storage.Download(ctx, doc.StorageKey)
	if err != nil {
		return "", fmt.Errorf("%w: download %s: %v", util.ErrExtractionFailed, doc.StorageKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %v", util.ErrExtractionFailed, doc.StorageKey, err)
	}

	text, err := s.Parser.Parse(data)
	if err != nil {
		return "", fmt.Errorf("%w: parse %s: %v", util.ErrExtractionFailed, doc.Filename, err)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: document %s produced no text", util.ErrExtractionFailed, doc.ID)
	}

	won, err := s.Repo.SetExtractedText(doc.ID, text)
	if err != nil {
		return "", fmt.Errorf("%w: cache write for %s: %v", util.ErrExtractionFailed, doc.ID, err)
	}
	if !won {
		// 并发抽取先一步写入，以数据库里的版本为准
		fresh, err := s.Repo.FindByID(doc.ID)
		if err != nil {
			return "", fmt.Errorf("%w: reload %s: %v", util.ErrExtractionFailed, doc.ID, err)
		}
		if fresh.ExtractedText != nil && *fresh.ExtractedText != "" {
			return *fresh.ExtractedText, nil
		}
	}

	return text, nil
}

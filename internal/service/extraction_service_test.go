package service

import (
	"bytes"
	"context"
	"docquiz_backend/internal/model"
	"docquiz_backend/internal/repository"
	"docquiz_backend/internal/util"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDownloader struct {
	data  []byte
	err   error
	calls int
}

func (f *fakeDownloader) Download(ctx context.Context, filename string) (io.ReadCloser, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(bytes.NewReader(f.data)), nil
}

type fakeParser struct {
	text string
	err  error
}

func (f *fakeParser) Parse(data []byte) (string, error) {
	return f.text, f.err
}

func TestExtractionService(t *testing.T) {
	newService := func(t *testing.T, dl *fakeDownloader, parser *fakeParser) (*ExtractionService, *repository.DocumentRepository) {
		db := newTestDB(t)
		repo := repository.NewDocumentRepository(db)
		return NewExtractionService(repo, dl, parser), repo
	}

	t.Run("extracts and caches text", func(t *testing.T) {
		dl := &fakeDownloader{data: []byte("pdf bytes")}
		svc, repo := newService(t, dl, &fakeParser{text: "extracted text"})

		doc := &model.Document{UserID: 1, Filename: "a.pdf", StorageKey: "documents/x/a.pdf"}
		require.NoError(t, repo.Create(doc))

		text, err := svc.ExtractText(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, "extracted text", text)

		// 缓存已写入，文档状态翻到 completed
		fresh, err := repo.FindByID(doc.ID)
		require.NoError(t, err)
		require.NotNil(t, fresh.ExtractedText)
		assert.Equal(t, "extracted text", *fresh.ExtractedText)
		assert.Equal(t, model.DocumentStatusCompleted, fresh.Status)
	})

	t.Run("cache hit skips download", func(t *testing.T) {
		dl := &fakeDownloader{data: []byte("pdf bytes")}
		svc, repo := newService(t, dl, &fakeParser{text: "ignored"})

		cached := "already extracted"
		doc := &model.Document{UserID: 1, Filename: "a.pdf", StorageKey: "k", ExtractedText: &cached}
		require.NoError(t, repo.Create(doc))

		text, err := svc.ExtractText(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, "already extracted", text)
		assert.Zero(t, dl.calls)
	})

	t.Run("download failure wraps extraction error", func(t *testing.T) {
		dl := &fakeDownloader{err: errors.New("storage down")}
		svc, repo := newService(t, dl, &fakeParser{})

		doc := &model.Document{UserID: 1, Filename: "a.pdf", StorageKey: "k"}
		require.NoError(t, repo.Create(doc))

		_, err := svc.ExtractText(context.Background(), doc)
		assert.ErrorIs(t, err, util.ErrExtractionFailed)
	})

	t.Run("parser failure wraps extraction error", func(t *testing.T) {
		dl := &fakeDownloader{data: []byte("junk")}
		svc, repo := newService(t, dl, &fakeParser{err: errors.New("not a pdf")})

		doc := &model.Document{UserID: 1, Filename: "a.pdf", StorageKey: "k"}
		require.NoError(t, repo.Create(doc))

		_, err := svc.ExtractText(context.Background(), doc)
		assert.ErrorIs(t, err, util.ErrExtractionFailed)
	})

	t.Run("empty text is an extraction failure", func(t *testing.T) {
		dl := &fakeDownloader{data: []byte("scanned pdf")}
		svc, repo := newService(t, dl, &fakeParser{text: "   \n  "})

		doc := &model.Document{UserID: 1, Filename: "a.pdf", StorageKey: "k"}
		require.NoError(t, repo.Create(doc))

		_, err := svc.ExtractText(context.Background(), doc)
		assert.ErrorIs(t, err, util.ErrExtractionFailed)
	})

	t.Run("lost write race returns winner text", func(t *testing.T) {
		dl := &fakeDownloader{data: []byte("pdf bytes")}
		svc, repo := newService(t, dl, &fakeParser{text: "loser text"})

		doc := &model.Document{UserID: 1, Filename: "a.pdf", StorageKey: "k"}
		require.NoError(t, repo.Create(doc))

		// 另一个 worker 抢先写入缓存
		won, err := repo.SetExtractedText(doc.ID, "winner text")
		require.NoError(t, err)
		require.True(t, won)

		// 传入的是竞争前的旧快照，缓存字段为空
		text, err := svc.ExtractText(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, "winner text", text)
	})

	t.Run("second cache write loses", func(t *testing.T) {
		db := newTestDB(t)
		repo := repository.NewDocumentRepository(db)

		doc := &model.Document{UserID: 1, Filename: "a.pdf", StorageKey: "k"}
		require.NoError(t, repo.Create(doc))

		won, err := repo.SetExtractedText(doc.ID, "first")
		require.NoError(t, err)
		assert.True(t, won)

		won, err = repo.SetExtractedText(doc.ID, "second")
		require.NoError(t, err)
		assert.False(t, won)

		fresh, err := repo.FindByID(doc.ID)
		require.NoError(t, err)
		assert.Equal(t, "first", *fresh.ExtractedText)
	})
}

package worker

import (
	"context"
	"docquiz_backend/internal/config"
	"docquiz_backend/internal/model"
	"docquiz_backend/internal/repository"
	"docquiz_backend/internal/service"
	"docquiz_backend/internal/util"
	"docquiz_backend/pkg/logger"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.Document{},
		&model.GenerationJob{},
		&model.Quiz{},
		&model.Question{},
	))

	return db
}

type fakeQueue struct {
	enqueued []string
	delayed  map[string]time.Duration
}

func newFakeQueue() *fakeQueue {
	return &fakeQueue{delayed: map[string]time.Duration{}}
}

func (f *fakeQueue) Enqueue(ctx context.Context, jobID string) error {
	f.enqueued = append(f.enqueued, jobID)
	return nil
}

func (f *fakeQueue) EnqueueIn(ctx context.Context, jobID string, delay time.Duration) error {
	f.delayed[jobID] = delay
	return nil
}

func (f *fakeQueue) Dequeue(ctx context.Context, timeout time.Duration) (string, error) {
	return "", nil
}

type fakeExtractor struct {
	text string
	err  error
}

func (f *fakeExtractor) ExtractText(ctx context.Context, doc *model.Document) (string, error) {
	return f.text, f.err
}

// fakeGenerator 前 failUntil 次调用失败，之后成功
type fakeGenerator struct {
	failUntil int
	calls     int
	drafts    []service.QuestionDraft
	err       error
}

func (f *fakeGenerator) GenerateQuestions(ctx context.Context, text string, questionCount int, focusAreas []string) ([]service.QuestionDraft, error) {
	f.calls++
	if f.calls <= f.failUntil {
		if f.err != nil {
			return nil, f.err
		}
		return nil, fmt.Errorf("%w: transient model error", util.ErrGenerationFailed)
	}
	return f.drafts, nil
}

func makeDrafts(n int) []service.QuestionDraft {
	drafts := make([]service.QuestionDraft, n)
	for i := range drafts {
		drafts[i] = service.QuestionDraft{
			QuestionText:       fmt.Sprintf("Question %d?", i),
			Options:            []string{"A", "B", "C", "D"},
			CorrectOptionIndex: i % 4,
			Explanation:        "because",
			SourceSnippet:      "snippet",
		}
	}
	return drafts
}

type workerTestEnv struct {
	pool *Pool
	db   *gorm.DB
	q    *fakeQueue
	gen  *fakeGenerator
	job  *model.GenerationJob
	quiz *model.Quiz
}

func newWorkerTestEnv(t *testing.T, gen *fakeGenerator) *workerTestEnv {
	db := newTestDB(t)
	jobs := repository.NewJobRepository(db)
	quizzes := repository.NewQuizRepository(db)
	documents := repository.NewDocumentRepository(db)
	q := newFakeQueue()

	cfg := config.QueueConfig{}
	config.ApplyQueueDefaults(&cfg)

	doc := &model.Document{UserID: 1, Filename: "notes.pdf", StorageKey: "documents/x/notes.pdf"}
	require.NoError(t, documents.Create(doc))

	quiz := &model.Quiz{
		UserID:        1,
		DocumentID:    doc.ID,
		Title:         "MCQ Quiz - notes.pdf",
		QuestionCount: 10,
		Status:        model.QuizStatusGenerating,
	}
	require.NoError(t, db.Create(quiz).Error)

	job := &model.GenerationJob{
		UserID:        1,
		DocumentID:    doc.ID,
		QuizID:        quiz.ID,
		QuestionCount: 10,
		Status:        model.JobStatusPending,
	}
	require.NoError(t, jobs.Create(job))

	pool := NewPool(cfg, q, jobs, quizzes, documents, &fakeExtractor{text: "document text"}, gen, db)

	return &workerTestEnv{pool: pool, db: db, q: q, gen: gen, job: job, quiz: quiz}
}

func (e *workerTestEnv) reloadJob(t *testing.T) *model.GenerationJob {
	var job model.GenerationJob
	require.NoError(t, e.db.First(&job, "id = ?", e.job.ID).Error)
	return &job
}

func (e *workerTestEnv) reloadQuiz(t *testing.T) *model.Quiz {
	var quiz model.Quiz
	require.NoError(t, e.db.First(&quiz, "id = ?", e.quiz.ID).Error)
	return &quiz
}

func TestProcess(t *testing.T) {
	t.Run("successful job becomes ready", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{drafts: makeDrafts(10)})

		env.pool.process(context.Background(), env.job.ID)

		job := env.reloadJob(t)
		assert.Equal(t, model.JobStatusReady, job.Status)
		assert.Equal(t, 1, job.Attempts)

		quiz := env.reloadQuiz(t)
		assert.Equal(t, model.QuizStatusReady, quiz.Status)

		var count int64
		require.NoError(t, env.db.Model(&model.Question{}).Where("quiz_id = ?", env.quiz.ID).Count(&count).Error)
		assert.EqualValues(t, 10, count)
	})

	t.Run("questions keep submission order", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{drafts: makeDrafts(10)})

		env.pool.process(context.Background(), env.job.ID)

		var questions []model.Question
		require.NoError(t, env.db.Where("quiz_id = ?", env.quiz.ID).Order("sort_order asc").Find(&questions).Error)
		require.Len(t, questions, 10)
		for i, q := range questions {
			assert.Equal(t, i, q.Order)
			assert.Equal(t, fmt.Sprintf("Question %d?", i), q.QuestionText)
		}
	})

	t.Run("failed attempt is requeued with backoff", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{failUntil: 99})

		env.pool.process(context.Background(), env.job.ID)

		job := env.reloadJob(t)
		assert.Equal(t, model.JobStatusPending, job.Status)
		assert.Equal(t, 1, job.Attempts)
		require.NotNil(t, job.LastError)
		assert.Contains(t, *job.LastError, "generation failed")

		// 第一次重试延迟为基准值
		assert.Equal(t, 2*time.Second, env.q.delayed[env.job.ID])

		// 试卷仍在 generating，等待重试
		assert.Equal(t, model.QuizStatusGenerating, env.reloadQuiz(t).Status)
	})

	t.Run("backoff doubles per attempt", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{failUntil: 99})

		env.pool.process(context.Background(), env.job.ID)
		assert.Equal(t, 2*time.Second, env.q.delayed[env.job.ID])

		env.pool.process(context.Background(), env.job.ID)
		assert.Equal(t, 4*time.Second, env.q.delayed[env.job.ID])
	})

	t.Run("job succeeds on second attempt", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{failUntil: 1, drafts: makeDrafts(10)})

		env.pool.process(context.Background(), env.job.ID)
		require.Equal(t, model.JobStatusPending, env.reloadJob(t).Status)

		env.pool.process(context.Background(), env.job.ID)

		job := env.reloadJob(t)
		assert.Equal(t, model.JobStatusReady, job.Status)
		assert.Equal(t, 2, job.Attempts)
		assert.Equal(t, model.QuizStatusReady, env.reloadQuiz(t).Status)
	})

	t.Run("exhausted retries fail job and quiz", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{failUntil: 99})

		for i := 0; i < 3; i++ {
			env.pool.process(context.Background(), env.job.ID)
		}

		job := env.reloadJob(t)
		assert.Equal(t, model.JobStatusFailed, job.Status)
		assert.Equal(t, 3, job.Attempts)
		require.NotNil(t, job.LastError)

		assert.Equal(t, model.QuizStatusFailed, env.reloadQuiz(t).Status)

		// 第三次失败不再安排重试，延迟记录停留在第二次的值
		assert.Equal(t, 4*time.Second, env.q.delayed[env.job.ID])
		env.pool.process(context.Background(), env.job.ID)
		assert.Equal(t, 3, env.reloadJob(t).Attempts)
	})

	t.Run("stale delivery of terminal job is dropped", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{drafts: makeDrafts(10)})

		env.pool.process(context.Background(), env.job.ID)
		require.Equal(t, model.JobStatusReady, env.reloadJob(t).Status)

		// 同一任务被重复投递
		env.pool.process(context.Background(), env.job.ID)

		job := env.reloadJob(t)
		assert.Equal(t, model.JobStatusReady, job.Status)
		assert.Equal(t, 1, job.Attempts)

		var count int64
		require.NoError(t, env.db.Model(&model.Question{}).Where("quiz_id = ?", env.quiz.ID).Count(&count).Error)
		assert.EqualValues(t, 10, count)
	})

	t.Run("corrupt focus areas are ignored", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{drafts: makeDrafts(10)})
		require.NoError(t, env.db.Model(&model.GenerationJob{}).
			Where("id = ?", env.job.ID).
			UpdateColumn("focus_areas", []byte("not valid json")).Error)

		env.pool.process(context.Background(), env.job.ID)

		assert.Equal(t, model.JobStatusReady, env.reloadJob(t).Status)
		assert.Equal(t, model.QuizStatusReady, env.reloadQuiz(t).Status)
	})

	t.Run("extraction failure is retried", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{drafts: makeDrafts(10)})
		env.pool.extractor = &fakeExtractor{err: fmt.Errorf("%w: storage down", util.ErrExtractionFailed)}

		env.pool.process(context.Background(), env.job.ID)

		job := env.reloadJob(t)
		assert.Equal(t, model.JobStatusPending, job.Status)
		require.NotNil(t, job.LastError)
		assert.Contains(t, *job.LastError, "extraction failed")
	})
}

func TestBackoff(t *testing.T) {
	cfg := config.QueueConfig{}
	config.ApplyQueueDefaults(&cfg)
	pool := &Pool{cfg: cfg}

	assert.Equal(t, 2*time.Second, pool.backoff(1))
	assert.Equal(t, 4*time.Second, pool.backoff(2))
	assert.Equal(t, 8*time.Second, pool.backoff(3))
}

func TestSweep(t *testing.T) {
	t.Run("re-enqueues stale pending jobs", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{})

		// 任务滞留在 pending，更新时间早于扫描阈值
		stale := time.Now().Add(-time.Hour)
		require.NoError(t, env.db.Model(&model.GenerationJob{}).
			Where("id = ?", env.job.ID).
			UpdateColumn("updated_at", stale).Error)

		env.pool.sweepOnce(context.Background())

		assert.Equal(t, []string{env.job.ID}, env.q.enqueued)

		// 时间戳已刷新，下一轮扫描不会再捡起
		env.pool.sweepOnce(context.Background())
		assert.Len(t, env.q.enqueued, 1)
	})

	t.Run("fresh pending jobs are left alone", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{})

		env.pool.sweepOnce(context.Background())

		assert.Empty(t, env.q.enqueued)
	})

	t.Run("stalled processing job is reclaimed and finishes on redelivery", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{drafts: makeDrafts(10)})
		jobs := repository.NewJobRepository(env.db)

		// worker 认领后崩溃：任务停在 processing，消息已被消费
		claimed, err := jobs.MarkProcessing(env.job.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		stale := time.Now().Add(-time.Hour)
		require.NoError(t, env.db.Model(&model.GenerationJob{}).
			Where("id = ?", env.job.ID).
			UpdateColumn("updated_at", stale).Error)

		env.pool.sweepOnce(context.Background())

		job := env.reloadJob(t)
		assert.Equal(t, model.JobStatusPending, job.Status)
		assert.Equal(t, 1, job.Attempts)
		require.NotNil(t, job.LastError)
		assert.Contains(t, *job.LastError, "worker lost")
		assert.Equal(t, []string{env.job.ID}, env.q.enqueued)

		// 重新投递后正常跑完
		env.pool.process(context.Background(), env.job.ID)
		job = env.reloadJob(t)
		assert.Equal(t, model.JobStatusReady, job.Status)
		assert.Equal(t, 2, job.Attempts)
		assert.Equal(t, model.QuizStatusReady, env.reloadQuiz(t).Status)
	})

	t.Run("stalled processing job at attempt cap is failed with quiz", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{})
		jobs := repository.NewJobRepository(env.db)

		claimed, err := jobs.MarkProcessing(env.job.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		stale := time.Now().Add(-time.Hour)
		require.NoError(t, env.db.Model(&model.GenerationJob{}).
			Where("id = ?", env.job.ID).
			UpdateColumns(map[string]interface{}{
				"attempts":   3,
				"updated_at": stale,
			}).Error)

		env.pool.sweepOnce(context.Background())

		job := env.reloadJob(t)
		assert.Equal(t, model.JobStatusFailed, job.Status)
		require.NotNil(t, job.LastError)
		assert.Contains(t, *job.LastError, "worker lost")
		assert.Equal(t, model.QuizStatusFailed, env.reloadQuiz(t).Status)
		assert.Empty(t, env.q.enqueued)
	})

	t.Run("fresh processing jobs are left alone", func(t *testing.T) {
		env := newWorkerTestEnv(t, &fakeGenerator{})
		jobs := repository.NewJobRepository(env.db)

		claimed, err := jobs.MarkProcessing(env.job.ID)
		require.NoError(t, err)
		require.True(t, claimed)

		env.pool.sweepOnce(context.Background())

		assert.Equal(t, model.JobStatusProcessing, env.reloadJob(t).Status)
		assert.Empty(t, env.q.enqueued)
	})
}

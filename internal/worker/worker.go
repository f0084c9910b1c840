package worker

import (
	"context"
	"docquiz_backend/internal/config"
	"docquiz_backend/internal/model"
	"docquiz_backend/internal/repository"
	"docquiz_backend/internal/service"
	"docquiz_backend/pkg/logger"
	"docquiz_backend/pkg/monitoring"
	"docquiz_backend/pkg/queue"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Extractor 流水线第一阶段：拿到文档的纯文本
type Extractor interface {
	ExtractText(ctx context.Context, doc *model.Document) (string, error)
}

// Generator 流水线第二阶段：根据文本生成题目草稿
type Generator interface {
	GenerateQuestions(ctx context.Context, text string, questionCount int, focusAreas []string) ([]service.QuestionDraft, error)
}

// Pool 出题任务消费者。固定数量的 goroutine 阻塞消费队列，
// 每个任务走 提取 -> 生成 -> 落库 三段流水线。
// 队列是 at-least-once，所有状态迁移都用条件更新防住重复投递。
type Pool struct {
	cfg       config.QueueConfig
	queue     queue.Queue
	jobs      *repository.JobRepository
	quizzes   *repository.QuizRepository
	documents *repository.DocumentRepository
	extractor Extractor
	generator Generator
	db        *gorm.DB

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewPool(cfg config.QueueConfig, q queue.Queue, jobs *repository.JobRepository, quizzes *repository.QuizRepository, documents *repository.DocumentRepository, extractor Extractor, generator Generator, db *gorm.DB) *Pool {
	return &Pool{
		cfg:       cfg,
		queue:     q,
		jobs:      jobs,
		quizzes:   quizzes,
		documents: documents,
		extractor: extractor,
		generator: generator,
		db:        db,
	}
}

// Start 启动消费 goroutine 和 pending 兜底扫描。非阻塞。
func (p *Pool) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel

	for i := 0; i < p.cfg.Concurrency; i++ {
		p.wg.Add(1)
		go func(id int) {
			defer p.wg.Done()
			p.consumeLoop(ctx, id)
		}(i)
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.sweepLoop(ctx)
	}()

	logger.Log.Info("generation worker pool started",
		zap.Int("concurrency", p.cfg.Concurrency),
		zap.Int("maxAttempts", p.cfg.MaxAttempts))
}

// Stop 停止消费并等待在途任务跑完
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	logger.Log.Info("generation worker pool stopped")
}

func (p *Pool) consumeLoop(ctx context.Context, workerID int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		jobID, err := p.queue.Dequeue(ctx, p.cfg.DequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Log.Error("dequeue failed", zap.Int("worker", workerID), zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		if jobID == "" {
			continue
		}

		p.process(ctx, jobID)
	}
}

// process 处理一次投递。先用条件更新抢占任务（pending -> processing），
// 抢不到说明是重复投递或任务已终态，直接丢弃。
func (p *Pool) process(ctx context.Context, jobID string) {
	claimed, err := p.jobs.MarkProcessing(jobID)
	if err != nil {
		logger.Log.Error("claim job failed", zap.String("jobId", jobID), zap.Error(err))
		return
	}
	if !claimed {
		logger.Log.Debug("stale delivery dropped", zap.String("jobId", jobID))
		return
	}

	job, err := p.jobs.FindByID(jobID)
	if err != nil {
		logger.Log.Error("load job failed", zap.String("jobId", jobID), zap.Error(err))
		return
	}

	start := time.Now()
	err = p.runPipeline(ctx, job)
	monitoring.JobDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		monitoring.JobsProcessed.WithLabelValues("success").Inc()
		logger.Log.Info("generation job completed",
			zap.String("jobId", job.ID),
			zap.String("quizId", job.QuizID),
			zap.Int("attempts", job.Attempts),
			zap.Duration("took", time.Since(start)))
		return
	}

	p.handleFailure(ctx, job, err)
}

func (p *Pool) runPipeline(ctx context.Context, job *model.GenerationJob) error {
	doc, err := p.documents.FindByID(job.DocumentID)
	if err != nil {
		return err
	}

	text, err := p.extractor.ExtractText(ctx, doc)
	if err != nil {
		return err
	}

	var focusAreas []string
	if len(job.FocusAreas) > 0 {
		if err := json.Unmarshal(job.FocusAreas, &focusAreas); err != nil {
			// 脏数据不值得整个任务失败，当作没有侧重点继续
			logger.Log.Warn("invalid focus areas, ignoring",
				zap.String("jobId", job.ID), zap.Error(err))
			focusAreas = nil
		}
	}

	drafts, err := p.generator.GenerateQuestions(ctx, text, job.QuestionCount, focusAreas)
	if err != nil {
		return err
	}

	return p.commitQuestions(job, drafts)
}

// commitQuestions 流水线落库阶段：题目写入、试卷就绪、任务收尾
// 在一个事务里完成，要么全部生效要么全部回滚。
func (p *Pool) commitQuestions(job *model.GenerationJob, drafts []service.QuestionDraft) error {
	return p.db.Transaction(func(tx *gorm.DB) error {
		for i, d := range drafts {
			opts, err := json.Marshal(d.Options)
			if err != nil {
				return err
			}
			q := &model.Question{
				QuizID:             job.QuizID,
				QuestionText:       d.QuestionText,
				Options:            opts,
				CorrectOptionIndex: d.CorrectOptionIndex,
				Explanation:        d.Explanation,
				SourceSnippet:      d.SourceSnippet,
				Order:              i,
			}
			if err := tx.Create(q).Error; err != nil {
				return err
			}
		}

		res := tx.Model(&model.Quiz{}).
			Where("id = ? AND status = ?", job.QuizID, model.QuizStatusGenerating).
			Update("status", model.QuizStatusReady)
		if res.Error != nil {
			return res.Error
		}

		return tx.Model(&model.GenerationJob{}).
			Where("id = ? AND status = ?", job.ID, model.JobStatusProcessing).
			Update("status", model.JobStatusReady).Error
	})
}

// handleFailure 失败处理：未超过最大尝试次数则退避后重新入队，
// 否则任务和试卷一起置为 failed。退避时长按尝试次数指数翻倍。
func (p *Pool) handleFailure(ctx context.Context, job *model.GenerationJob, cause error) {
	logger.Log.Warn("generation job attempt failed",
		zap.String("jobId", job.ID),
		zap.Int("attempt", job.Attempts),
		zap.Error(cause))

	if job.Attempts >= p.cfg.MaxAttempts {
		monitoring.JobsProcessed.WithLabelValues("failed").Inc()
		if err := p.jobs.Fail(job.ID, cause.Error()); err != nil {
			logger.Log.Error("mark job failed", zap.String("jobId", job.ID), zap.Error(err))
		}
		if _, err := p.quizzes.UpdateStatusIf(job.QuizID, model.QuizStatusGenerating, model.QuizStatusFailed); err != nil {
			logger.Log.Error("mark quiz failed", zap.String("quizId", job.QuizID), zap.Error(err))
		}
		logger.Log.Error("generation job exhausted retries",
			zap.String("jobId", job.ID),
			zap.String("quizId", job.QuizID),
			zap.Int("attempts", job.Attempts))
		return
	}

	monitoring.JobsProcessed.WithLabelValues("retried").Inc()

	requeued, err := p.jobs.Requeue(job.ID, cause.Error())
	if err != nil || !requeued {
		logger.Log.Error("requeue job failed", zap.String("jobId", job.ID), zap.Error(err))
		return
	}

	delay := p.backoff(job.Attempts)
	if err := p.queue.EnqueueIn(ctx, job.ID, delay); err != nil {
		// 入队失败不终结任务，兜底扫描会把滞留的 pending 重新捡起来
		logger.Log.Error("delayed enqueue failed, job left for sweep",
			zap.String("jobId", job.ID), zap.Error(err))
		return
	}

	logger.Log.Info("generation job scheduled for retry",
		zap.String("jobId", job.ID),
		zap.Int("attempt", job.Attempts),
		zap.Duration("delay", delay))
}

// backoff 第 n 次尝试失败后的重试延迟：base * 2^(n-1)
func (p *Pool) backoff(attempts int) time.Duration {
	delay := p.cfg.BackoffBase
	for i := 1; i < attempts; i++ {
		delay *= 2
	}
	return delay
}

// sweepLoop 定期收回滞留的任务。覆盖三种场景：准入入队成功但消息
// 丢失、重试入队失败（pending 滞留），以及 worker 崩溃把任务留在
// processing（消息已消费，不会再有投递）。
func (p *Pool) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.sweepOnce(ctx)
		}
	}
}

func (p *Pool) sweepOnce(ctx context.Context) {
	cutoff := time.Now().Add(-p.cfg.SweepAfter)

	stuck, err := p.jobs.ListPendingBefore(cutoff)
	if err != nil {
		logger.Log.Error("pending sweep failed", zap.Error(err))
		return
	}
	for _, job := range stuck {
		// 先刷新时间戳再入队，避免下一轮扫描重复捡起同一任务
		if err := p.jobs.Touch(job.ID); err != nil {
			logger.Log.Error("touch stuck job failed", zap.String("jobId", job.ID), zap.Error(err))
			continue
		}
		if err := p.queue.Enqueue(ctx, job.ID); err != nil {
			logger.Log.Error("re-enqueue stuck job failed", zap.String("jobId", job.ID), zap.Error(err))
			continue
		}
		logger.Log.Warn("stuck pending job re-enqueued", zap.String("jobId", job.ID))
	}

	p.reclaimStalled(ctx, cutoff)
}

// reclaimStalled 收回崩溃 worker 留下的 processing 任务。
// 认领时已经记过一次尝试，这里不再加；未达上限的退回 pending 重新
// 入队，已达上限的按失败收尾。条件更新保证和仍在跑的 worker 不冲突。
func (p *Pool) reclaimStalled(ctx context.Context, cutoff time.Time) {
	const stalledMsg = "worker lost while processing"

	stalled, err := p.jobs.ListProcessingBefore(cutoff)
	if err != nil {
		logger.Log.Error("processing sweep failed", zap.Error(err))
		return
	}

	for _, job := range stalled {
		if job.Attempts >= p.cfg.MaxAttempts {
			monitoring.JobsProcessed.WithLabelValues("failed").Inc()
			if err := p.jobs.Fail(job.ID, stalledMsg); err != nil {
				logger.Log.Error("fail stalled job", zap.String("jobId", job.ID), zap.Error(err))
				continue
			}
			if _, err := p.quizzes.UpdateStatusIf(job.QuizID, model.QuizStatusGenerating, model.QuizStatusFailed); err != nil {
				logger.Log.Error("mark quiz failed", zap.String("quizId", job.QuizID), zap.Error(err))
			}
			logger.Log.Error("stalled processing job exhausted retries",
				zap.String("jobId", job.ID), zap.Int("attempts", job.Attempts))
			continue
		}

		requeued, err := p.jobs.Requeue(job.ID, stalledMsg)
		if err != nil {
			logger.Log.Error("requeue stalled job failed", zap.String("jobId", job.ID), zap.Error(err))
			continue
		}
		if !requeued {
			// 状态已变，任务另有归宿
			continue
		}
		if err := p.queue.Enqueue(ctx, job.ID); err != nil {
			logger.Log.Error("re-enqueue stalled job failed", zap.String("jobId", job.ID), zap.Error(err))
			continue
		}
		logger.Log.Warn("stalled processing job re-enqueued",
			zap.String("jobId", job.ID), zap.Int("attempts", job.Attempts))
	}
}

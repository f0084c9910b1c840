package service

import (
	"context"
	"docquiz_backend/internal/model"
	"docquiz_backend/internal/repository"
	"docquiz_backend/internal/util"
	"docquiz_backend/pkg/logger"
	"docquiz_backend/pkg/queue"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// QuizService 出题请求的准入与查询。
// 准入负责去重（同一文档同一用户最多一个进行中的任务）、
// 创建任务记录和试卷壳，并把任务投入队列。
type QuizService struct {
	Jobs      *repository.JobRepository
	Quizzes   *repository.QuizRepository
	Documents *repository.DocumentRepository
	Queue     queue.Queue
	DB        *gorm.DB
}

func NewQuizService(jobs *repository.JobRepository, quizzes *repository.QuizRepository, documents *repository.DocumentRepository, q queue.Queue, db *gorm.DB) *QuizService {
	return &QuizService{
		Jobs:      jobs,
		Quizzes:   quizzes,
		Documents: documents,
		Queue:     q,
		DB:        db,
	}
}

// GenerateQuiz 受理一次异步出题请求。
// 返回 ErrGenerationInProgress 时，第一个返回值是已存在的任务，
// 调用方用它携带 existingJobId 返回 409。
func (s *QuizService) GenerateQuiz(ctx context.Context, userID uint, documentID string, questionCount int, focusAreas []string) (*model.GenerationJob, *model.Quiz, error) {
	if !util.IsAllowedQuestionCount(questionCount) {
		return nil, nil, util.ErrInvalidQuestionCount
	}

	doc, err := s.Documents.FindByIDAndUser(documentID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, util.ErrDocumentNotFound
		}
		return nil, nil, err
	}

	// 去重：同一 (用户, 文档) 已有进行中的任务则直接返回它
	existing, err := s.Jobs.FindActiveByUserAndDocument(userID, documentID)
	if err == nil {
		return existing, nil, util.ErrGenerationInProgress
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}

	var focusJSON json.RawMessage
	if len(focusAreas) > 0 {
		focusJSON, _ = json.Marshal(focusAreas)
	}

	quiz := &model.Quiz{
		UserID:        userID,
		DocumentID:    documentID,
		Title:         fmt.Sprintf("MCQ Quiz - %s", doc.Filename),
		QuestionCount: questionCount,
		Status:        model.QuizStatusGenerating,
	}
	job := &model.GenerationJob{
		UserID:        userID,
		DocumentID:    documentID,
		QuestionCount: questionCount,
		FocusAreas:    focusJSON,
		Status:        model.JobStatusPending,
	}

	// 任务记录和试卷壳在同一个事务里落库
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(quiz).Error; err != nil {
			return err
		}
		job.QuizID = quiz.ID
		return tx.Create(job).Error
	})
	if err != nil {
		return nil, nil, err
	}

	// 入队在事务提交之后。失败时把任务和试卷都翻到 failed，
	// 不能留下永远 pending 的任务；兜底扫描会处理入队丢失的残留。
	if err := s.Queue.Enqueue(ctx, job.ID); err != nil {
		logger.Log.Error("enqueue generation job failed",
			zap.String("jobId", job.ID), zap.Error(err))
		s.Jobs.Fail(job.ID, "failed to enqueue job: "+err.Error())
		s.Quizzes.UpdateStatusIf(quiz.ID, model.QuizStatusGenerating, model.QuizStatusFailed)
		return nil, nil, err
	}

	logger.Log.Info("generation job created",
		zap.String("jobId", job.ID),
		zap.String("quizId", quiz.ID),
		zap.String("documentId", documentID),
		zap.Int("questionCount", questionCount))

	return job, quiz, nil
}

// JobStatusView 任务状态查询结果。失败是数据不是异常：
// failed 任务照常返回，错误信息在 LastError 里。
type JobStatusView struct {
	JobID     string  `json:"jobId"`
	Status    string  `json:"status"`
	Attempts  int     `json:"attempts"`
	QuizID    string  `json:"quizId,omitempty"`
	LastError *string `json:"lastError,omitempty"`
}

func (s *QuizService) GetJobStatus(userID uint, jobID string) (*JobStatusView, error) {
	job, err := s.Jobs.FindByIDAndUser(jobID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrJobNotFound
		}
		return nil, err
	}

	return &JobStatusView{
		JobID:     job.ID,
		Status:    job.Status,
		Attempts:  job.Attempts,
		QuizID:    job.QuizID,
		LastError: job.LastError,
	}, nil
}

// QuizQuestionView 作答视角的题目：不含正确选项和解析
type QuizQuestionView struct {
	ID           string          `json:"id"`
	QuestionText string          `json:"questionText"`
	Options      json.RawMessage `json:"options"`
	Order        int             `json:"order"`
}

type QuizView struct {
	ID            string             `json:"id"`
	Title         string             `json:"title"`
	QuestionCount int                `json:"questionCount"`
	Status        string             `json:"status"`
	Questions     []QuizQuestionView `json:"questions"`
}

// GetQuiz 返回试卷及题目。正确答案与解析在提交前对用户保密，
// 这里永远不下发。
func (s *QuizService) GetQuiz(userID uint, quizID string) (*QuizView, error) {
	quiz, err := s.Quizzes.FindByIDAndUser(quizID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuizNotFound
		}
		return nil, err
	}

	view := &QuizView{
		ID:            quiz.ID,
		Title:         quiz.Title,
		QuestionCount: quiz.QuestionCount,
		Status:        quiz.Status,
		Questions:     []QuizQuestionView{},
	}

	if quiz.Status != model.QuizStatusReady {
		return view, nil
	}

	questions, err := s.Quizzes.ListQuestions(quizID)
	if err != nil {
		return nil, err
	}
	for _, q := range questions {
		view.Questions = append(view.Questions, QuizQuestionView{
			ID:           q.ID,
			QuestionText: q.QuestionText,
			Options:      q.Options,
			Order:        q.Order,
		})
	}

	return view, nil
}

func (s *QuizService) ListQuizzes(userID uint) ([]model.Quiz, error) {
	return s.Quizzes.ListByUser(userID)
}

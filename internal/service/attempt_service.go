package service

import (
	"docquiz_backend/internal/model"
	"docquiz_backend/internal/repository"
	"docquiz_backend/internal/util"
	"docquiz_backend/pkg/logger"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AttemptService 作答生命周期：开始、提交判分、历史查询。
// 判分本身是纯函数 Grade，这里负责取数、落库和提交幂等。
type AttemptService struct {
	Attempts *repository.AttemptRepository
	Quizzes  *repository.QuizRepository
	DB       *gorm.DB
}

func NewAttemptService(attempts *repository.AttemptRepository, quizzes *repository.QuizRepository, db *gorm.DB) *AttemptService {
	return &AttemptService{Attempts: attempts, Quizzes: quizzes, DB: db}
}

// StartAttempt 对 ready 状态的试卷开启一次作答。
// 同一试卷允许多次作答，每次独立判分。
func (s *AttemptService) StartAttempt(userID uint, quizID string) (*model.QuizAttempt, error) {
	quiz, err := s.Quizzes.FindByIDAndUser(quizID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrQuizNotFound
		}
		return nil, err
	}
	if quiz.Status != model.QuizStatusReady {
		return nil, util.ErrQuizNotReady
	}

	attempt := &model.QuizAttempt{
		QuizID:    quizID,
		UserID:    userID,
		Status:    model.AttemptStatusInProgress,
		StartedAt: time.Now(),
	}
	if err := s.Attempts.Create(attempt); err != nil {
		return nil, err
	}
	return attempt, nil
}

// SubmittedAnswer 提交里的一条答案，questionId 对应选项下标
type SubmittedAnswer struct {
	QuestionID          string `json:"questionId" binding:"required"`
	SelectedOptionIndex int    `json:"selectedOptionIndex"`
}

// AttemptResultView 提交后的完整判分结果，此时才下发正确答案和解析
type AttemptResultView struct {
	AttemptID    string         `json:"attemptId"`
	QuizID       string         `json:"quizId"`
	Status       string         `json:"status"`
	CorrectCount int            `json:"correctCount"`
	WrongCount   int            `json:"wrongCount"`
	Percentage   float64        `json:"percentage"`
	SubmittedAt  *time.Time     `json:"submittedAt,omitempty"`
	Answers      []AnswerResult `json:"answers"`
}

// SubmitAttempt 提交作答并判分。提交只允许一次，重复提交返回
// ErrAttemptAlreadySubmitted。未作答的题按错误计入。
func (s *AttemptService) SubmitAttempt(userID uint, attemptID string, submitted []SubmittedAnswer) (*AttemptResultView, error) {
	attempt, err := s.Attempts.FindByIDAndUser(attemptID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	if attempt.Status == model.AttemptStatusCompleted {
		return nil, util.ErrAttemptAlreadySubmitted
	}

	selected := make(map[string]int, len(submitted))
	for _, a := range submitted {
		if a.SelectedOptionIndex < 0 || a.SelectedOptionIndex > 3 {
			return nil, util.ErrInvalidAnswer
		}
		selected[a.QuestionID] = a.SelectedOptionIndex
	}

	quiz, err := s.Quizzes.FindByID(attempt.QuizID)
	if err != nil {
		return nil, err
	}
	questions, err := s.Quizzes.ListQuestions(attempt.QuizID)
	if err != nil {
		return nil, err
	}

	result := Grade(questions, selected, quiz.QuestionCount)
	now := time.Now()

	// 答案记录和作答状态在一个事务里落库。
	// 条件更新兜住并发重复提交：只有 in_progress 的那次能赢。
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.QuizAttempt{}).
			Where("id = ? AND status = ?", attemptID, model.AttemptStatusInProgress).
			Updates(map[string]interface{}{
				"status":        model.AttemptStatusCompleted,
				"correct_count": result.CorrectCount,
				"wrong_count":   result.WrongCount,
				"percentage":    result.Percentage,
				"submitted_at":  now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return util.ErrAttemptAlreadySubmitted
		}
		for _, ar := range result.Answers {
			answer := &model.Answer{
				AttemptID:           attemptID,
				QuestionID:          ar.QuestionID,
				SelectedOptionIndex: ar.SelectedOptionIndex,
				IsCorrect:           ar.IsCorrect,
			}
			if err := tx.Create(answer).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Log.Info("attempt submitted",
		zap.String("attemptId", attemptID),
		zap.String("quizId", attempt.QuizID),
		zap.Int("correct", result.CorrectCount),
		zap.Float64("percentage", result.Percentage))

	return &AttemptResultView{
		AttemptID:    attemptID,
		QuizID:       attempt.QuizID,
		Status:       model.AttemptStatusCompleted,
		CorrectCount: result.CorrectCount,
		WrongCount:   result.WrongCount,
		Percentage:   result.Percentage,
		SubmittedAt:  &now,
		Answers:      result.Answers,
	}, nil
}

func (s *AttemptService) ListAttempts(userID uint) ([]model.QuizAttempt, error) {
	return s.Attempts.ListByUser(userID)
}

// GetAttemptDetail 查询一次作答。未提交的作答没有答案明细；
// 已提交的回放当时的判分结果。
func (s *AttemptService) GetAttemptDetail(userID uint, attemptID string) (*AttemptResultView, error) {
	attempt, err := s.Attempts.FindByIDAndUser(attemptID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}

	view := &AttemptResultView{
		AttemptID:    attempt.ID,
		QuizID:       attempt.QuizID,
		Status:       attempt.Status,
		CorrectCount: attempt.CorrectCount,
		WrongCount:   attempt.WrongCount,
		Percentage:   attempt.Percentage,
		SubmittedAt:  attempt.SubmittedAt,
		Answers:      []AnswerResult{},
	}
	if attempt.Status != model.AttemptStatusCompleted {
		return view, nil
	}

	answers, err := s.Attempts.ListAnswers(attemptID)
	if err != nil {
		return nil, err
	}
	questions, err := s.Quizzes.ListQuestions(attempt.QuizID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	for _, a := range answers {
		ar := AnswerResult{
			QuestionID:          a.QuestionID,
			SelectedOptionIndex: a.SelectedOptionIndex,
			IsCorrect:           a.IsCorrect,
		}
		if q, ok := byID[a.QuestionID]; ok {
			ar.CorrectOptionIndex = q.CorrectOptionIndex
			ar.Explanation = q.Explanation
			ar.SourceSnippet = q.SourceSnippet
		}
		view.Answers = append(view.Answers, ar)
	}

	return view, nil
}

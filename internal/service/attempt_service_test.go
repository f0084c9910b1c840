package service

import (
	"docquiz_backend/internal/model"
	"docquiz_backend/internal/repository"
	"docquiz_backend/internal/util"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type attemptTestEnv struct {
	svc  *AttemptService
	db   *gorm.DB
	quiz *model.Quiz
}

// newAttemptTestEnv 准备一份 ready 状态、含 questionCount 道题的试卷。
// 正确答案全部是选项 i%4。
func newAttemptTestEnv(t *testing.T, questionCount int) *attemptTestEnv {
	db := newTestDB(t)
	attempts := repository.NewAttemptRepository(db)
	quizzes := repository.NewQuizRepository(db)

	quiz := &model.Quiz{
		UserID:        1,
		DocumentID:    "doc-1",
		Title:         "MCQ Quiz - notes.pdf",
		QuestionCount: questionCount,
		Status:        model.QuizStatusReady,
	}
	require.NoError(t, db.Create(quiz).Error)

	for i := 0; i < questionCount; i++ {
		q := &model.Question{
			UUIDBase:           model.UUIDBase{ID: fmt.Sprintf("q%d", i)},
			QuizID:             quiz.ID,
			QuestionText:       fmt.Sprintf("Question %d?", i),
			Options:            json.RawMessage(`["A","B","C","D"]`),
			CorrectOptionIndex: i % 4,
			Explanation:        "because",
			Order:              i,
		}
		require.NoError(t, db.Create(q).Error)
	}

	return &attemptTestEnv{
		svc:  NewAttemptService(attempts, quizzes, db),
		db:   db,
		quiz: quiz,
	}
}

func correctAnswers(n int) []SubmittedAnswer {
	answers := make([]SubmittedAnswer, n)
	for i := range answers {
		answers[i] = SubmittedAnswer{QuestionID: fmt.Sprintf("q%d", i), SelectedOptionIndex: i % 4}
	}
	return answers
}

func TestStartAttempt(t *testing.T) {
	t.Run("starts attempt on ready quiz", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)

		attempt, err := env.svc.StartAttempt(1, env.quiz.ID)
		require.NoError(t, err)
		assert.Equal(t, model.AttemptStatusInProgress, attempt.Status)
		assert.Equal(t, env.quiz.ID, attempt.QuizID)
		assert.False(t, attempt.StartedAt.IsZero())
	})

	t.Run("rejects quiz that is not ready", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)
		require.NoError(t, env.db.Model(env.quiz).Update("status", model.QuizStatusGenerating).Error)

		_, err := env.svc.StartAttempt(1, env.quiz.ID)
		assert.ErrorIs(t, err, util.ErrQuizNotReady)
	})

	t.Run("multiple attempts on the same quiz are allowed", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)

		first, err := env.svc.StartAttempt(1, env.quiz.ID)
		require.NoError(t, err)
		second, err := env.svc.StartAttempt(1, env.quiz.ID)
		require.NoError(t, err)
		assert.NotEqual(t, first.ID, second.ID)
	})

	t.Run("quiz of another user is not visible", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)

		_, err := env.svc.StartAttempt(2, env.quiz.ID)
		assert.ErrorIs(t, err, util.ErrQuizNotFound)
	})
}

func TestSubmitAttempt(t *testing.T) {
	t.Run("grades full submission", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)
		attempt, err := env.svc.StartAttempt(1, env.quiz.ID)
		require.NoError(t, err)

		// 7 对 3 错
		answers := correctAnswers(7)
		for i := 7; i < 10; i++ {
			answers = append(answers, SubmittedAnswer{
				QuestionID:          fmt.Sprintf("q%d", i),
				SelectedOptionIndex: (i%4 + 1) % 4,
			})
		}

		result, err := env.svc.SubmitAttempt(1, attempt.ID, answers)
		require.NoError(t, err)
		assert.Equal(t, 7, result.CorrectCount)
		assert.Equal(t, 3, result.WrongCount)
		assert.Equal(t, 70.0, result.Percentage)
		assert.Equal(t, model.AttemptStatusCompleted, result.Status)
		assert.NotNil(t, result.SubmittedAt)
		assert.Len(t, result.Answers, 10)
	})

	t.Run("partial submission counts missing as wrong", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)
		attempt, err := env.svc.StartAttempt(1, env.quiz.ID)
		require.NoError(t, err)

		result, err := env.svc.SubmitAttempt(1, attempt.ID, correctAnswers(4))
		require.NoError(t, err)
		assert.Equal(t, 4, result.CorrectCount)
		assert.Equal(t, 6, result.WrongCount)
		assert.Equal(t, 40.0, result.Percentage)
	})

	t.Run("empty submission scores zero", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)
		attempt, err := env.svc.StartAttempt(1, env.quiz.ID)
		require.NoError(t, err)

		result, err := env.svc.SubmitAttempt(1, attempt.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, result.CorrectCount)
		assert.Equal(t, 10, result.WrongCount)
		assert.Equal(t, 0.0, result.Percentage)
	})

	t.Run("second submission is rejected", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)
		attempt, err := env.svc.StartAttempt(1, env.quiz.ID)
		require.NoError(t, err)

		_, err = env.svc.SubmitAttempt(1, attempt.ID, correctAnswers(10))
		require.NoError(t, err)

		_, err = env.svc.SubmitAttempt(1, attempt.ID, correctAnswers(10))
		assert.ErrorIs(t, err, util.ErrAttemptAlreadySubmitted)
	})

	t.Run("rejects out of range option index", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)
		attempt, err := env.svc.StartAttempt(1, env.quiz.ID)
		require.NoError(t, err)

		_, err = env.svc.SubmitAttempt(1, attempt.ID, []SubmittedAnswer{
			{QuestionID: "q0", SelectedOptionIndex: 4},
		})
		assert.ErrorIs(t, err, util.ErrInvalidAnswer)

		// 校验失败不应改变作答状态
		fresh, err := env.svc.GetAttemptDetail(1, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, model.AttemptStatusInProgress, fresh.Status)
	})

	t.Run("answers to unknown questions are ignored", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)
		attempt, err := env.svc.StartAttempt(1, env.quiz.ID)
		require.NoError(t, err)

		answers := append(correctAnswers(10), SubmittedAnswer{QuestionID: "stray", SelectedOptionIndex: 0})
		result, err := env.svc.SubmitAttempt(1, attempt.ID, answers)
		require.NoError(t, err)
		assert.Equal(t, 10, result.CorrectCount)
		assert.Len(t, result.Answers, 10)
	})

	t.Run("persists answer rows", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)
		attempt, err := env.svc.StartAttempt(1, env.quiz.ID)
		require.NoError(t, err)

		_, err = env.svc.SubmitAttempt(1, attempt.ID, correctAnswers(4))
		require.NoError(t, err)

		var count int64
		require.NoError(t, env.db.Model(&model.Answer{}).Where("attempt_id = ?", attempt.ID).Count(&count).Error)
		assert.EqualValues(t, 10, count)
	})
}

func TestGetAttemptDetail(t *testing.T) {
	t.Run("completed attempt replays grading", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)
		attempt, err := env.svc.StartAttempt(1, env.quiz.ID)
		require.NoError(t, err)

		_, err = env.svc.SubmitAttempt(1, attempt.ID, correctAnswers(7))
		require.NoError(t, err)

		view, err := env.svc.GetAttemptDetail(1, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, model.AttemptStatusCompleted, view.Status)
		assert.Equal(t, 7, view.CorrectCount)
		assert.Equal(t, 70.0, view.Percentage)
		assert.Len(t, view.Answers, 10)

		// 提交后的回放包含正确答案
		for _, ar := range view.Answers {
			assert.GreaterOrEqual(t, ar.CorrectOptionIndex, 0)
			assert.LessOrEqual(t, ar.CorrectOptionIndex, 3)
		}
	})

	t.Run("in progress attempt has no answers", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)
		attempt, err := env.svc.StartAttempt(1, env.quiz.ID)
		require.NoError(t, err)

		view, err := env.svc.GetAttemptDetail(1, attempt.ID)
		require.NoError(t, err)
		assert.Equal(t, model.AttemptStatusInProgress, view.Status)
		assert.Empty(t, view.Answers)
	})

	t.Run("attempt of another user is not visible", func(t *testing.T) {
		env := newAttemptTestEnv(t, 10)
		attempt, err := env.svc.StartAttempt(1, env.quiz.ID)
		require.NoError(t, err)

		_, err = env.svc.GetAttemptDetail(2, attempt.ID)
		assert.ErrorIs(t, err, util.ErrAttemptNotFound)
	})
}

package model

import "time"

const (
	AttemptStatusInProgress = "in_progress"
	AttemptStatusCompleted  = "completed"
)

// swagger:model QuizAttempt
// QuizAttempt 用户对一份试卷的一次作答。
// Percentage = CorrectCount / Quiz.QuestionCount * 100，
// 分母始终是试卷声明的题目数，不是实际提交的答案数。
type QuizAttempt struct {
	UUIDBase
	QuizID       string     `gorm:"index;type:varchar(36);not null" json:"quizId"`
	UserID       uint       `gorm:"index;type:bigint unsigned;not null" json:"userId"`
	Status       string     `gorm:"size:20;default:'in_progress'" json:"status"`
	CorrectCount int        `gorm:"default:0" json:"correctCount"`
	WrongCount   int        `gorm:"default:0" json:"wrongCount"`
	Percentage   float64    `gorm:"default:0" json:"percentage"`
	StartedAt    time.Time  `json:"startedAt"`
	SubmittedAt  *time.Time `json:"submittedAt,omitempty"`
}

func (QuizAttempt) TableName() string {
	return "quiz_attempts"
}

// swagger:model Answer
// Answer 提交时逐题生成的判分记录。SelectedOptionIndex 为 nil 表示未作答，
// 未作答一律计为错误。提交后不可变。
type Answer struct {
	UUIDBase
	AttemptID           string `gorm:"index;type:varchar(36);not null" json:"attemptId"`
	QuestionID          string `gorm:"index;type:varchar(36);not null" json:"questionId"`
	SelectedOptionIndex *int   `json:"selectedOptionIndex"`
	IsCorrect           bool   `gorm:"default:false" json:"isCorrect"`
}

func (Answer) TableName() string {
	return "answers"
}

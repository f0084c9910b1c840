package model

import "encoding/json"

const (
	QuizStatusGenerating = "generating"
	QuizStatusReady      = "ready"
	QuizStatusFailed     = "failed"
)

// swagger:model Quiz
// Quiz 由一次成功的出题任务产出的可作答试卷。
// QuestionCount 在创建时固定，之后不可变，评分以它为分母。
type Quiz struct {
	UUIDBase
	UserID        uint   `gorm:"index;type:bigint unsigned;not null" json:"userId"`
	DocumentID    string `gorm:"index;type:varchar(36);not null" json:"documentId"`
	Title         string `gorm:"size:255;not null" json:"title"`
	QuestionCount int    `gorm:"not null" json:"questionCount"`
	Status        string `gorm:"size:20;default:'generating'" json:"status"`
}

func (Quiz) TableName() string {
	return "quizzes"
}

// swagger:model Question
// Question 单选题，固定 4 个选项。持久化后不可变，
// 只有出题流水线的提交阶段可以写入。
type Question struct {
	UUIDBase
	QuizID             string          `gorm:"index;type:varchar(36);not null" json:"quizId"`
	QuestionText       string          `gorm:"type:text;not null" json:"questionText"`
	Options            json.RawMessage `gorm:"type:json;not null" json:"options"`
	CorrectOptionIndex int             `gorm:"not null" json:"-"`
	Explanation        string          `gorm:"type:text" json:"-"`
	SourceSnippet      string          `gorm:"type:text" json:"-"`
	Order              int             `gorm:"column:sort_order;default:0" json:"order"`
}

func (Question) TableName() string {
	return "questions"
}

package service

import (
	"docquiz_backend/internal/model"
	"math"
)

// AnswerResult 单题判分结果，含对错与正确答案回显
type AnswerResult struct {
	QuestionID          string `json:"questionId"`
	SelectedOptionIndex *int   `json:"selectedOptionIndex"`
	CorrectOptionIndex  int    `json:"correctOptionIndex"`
	IsCorrect           bool   `json:"isCorrect"`
	Explanation         string `json:"explanation,omitempty"`
	SourceSnippet       string `json:"sourceSnippet,omitempty"`
}

type GradeResult struct {
	CorrectCount int            `json:"correctCount"`
	WrongCount   int            `json:"wrongCount"`
	Percentage   float64        `json:"percentage"`
	Answers      []AnswerResult `json:"answers"`
}

// Grade 对一次提交判分。纯函数，不碰数据库。
// 判分逐题比较 selected == correctOptionIndex；未提交的题按错误记。
// 错误数和百分比的基数都是 totalQuestions（试卷声明的题目数），
// 即使实际持久化的题目更少也按声明数记错，百分比保留一位小数。
func Grade(questions []model.Question, selected map[string]int, totalQuestions int) GradeResult {
	result := GradeResult{Answers: make([]AnswerResult, 0, len(questions))}

	for _, q := range questions {
		ar := AnswerResult{
			QuestionID:         q.ID,
			CorrectOptionIndex: q.CorrectOptionIndex,
			Explanation:        q.Explanation,
			SourceSnippet:      q.SourceSnippet,
		}
		if idx, ok := selected[q.ID]; ok {
			picked := idx
			ar.SelectedOptionIndex = &picked
			ar.IsCorrect = idx == q.CorrectOptionIndex
		}
		if ar.IsCorrect {
			result.CorrectCount++
		}
		result.Answers = append(result.Answers, ar)
	}

	result.WrongCount = totalQuestions - result.CorrectCount
	if totalQuestions > 0 {
		pct := float64(result.CorrectCount) / float64(totalQuestions) * 100
		result.Percentage = math.Round(pct*10) / 10
	}

	return result
}

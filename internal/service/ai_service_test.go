package service

import (
	"docquiz_backend/internal/util"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPayload(n int) string {
	questions := make([]QuestionDraft, n)
	for i := range questions {
		questions[i] = QuestionDraft{
			QuestionText:       fmt.Sprintf("Question %d?", i),
			Options:            []string{"A", "B", "C", "D"},
			CorrectOptionIndex: i % 4,
			Explanation:        "because",
			SourceSnippet:      "snippet",
		}
	}
	data, _ := json.Marshal(map[string]interface{}{"questions": questions})
	return string(data)
}

func TestParseQuestionPayload(t *testing.T) {
	t.Run("valid payload", func(t *testing.T) {
		drafts, err := parseQuestionPayload(validPayload(10), 10)
		require.NoError(t, err)
		require.Len(t, drafts, 10)
		assert.Equal(t, "Question 0?", drafts[0].QuestionText)
		assert.Equal(t, []string{"A", "B", "C", "D"}, drafts[0].Options)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := parseQuestionPayload("not json at all", 10)
		assert.ErrorIs(t, err, util.ErrGenerationFailed)
	})

	t.Run("empty question list", func(t *testing.T) {
		_, err := parseQuestionPayload(`{"questions":[]}`, 10)
		assert.ErrorIs(t, err, util.ErrGenerationFailed)
	})

	t.Run("wrong question count", func(t *testing.T) {
		_, err := parseQuestionPayload(validPayload(8), 10)
		require.Error(t, err)
		assert.ErrorIs(t, err, util.ErrGenerationFailed)
		assert.Contains(t, err.Error(), "expected 10 questions, got 8")
	})

	t.Run("empty question text", func(t *testing.T) {
		payload := `{"questions":[{"question":"  ","options":["A","B","C","D"],"correctOptionIndex":0}]}`
		_, err := parseQuestionPayload(payload, 1)
		assert.ErrorIs(t, err, util.ErrGenerationFailed)
	})

	t.Run("wrong number of options", func(t *testing.T) {
		payload := `{"questions":[{"question":"Q?","options":["A","B","C"],"correctOptionIndex":0}]}`
		_, err := parseQuestionPayload(payload, 1)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "3 options, want 4")
	})

	t.Run("correct index out of range", func(t *testing.T) {
		payload := `{"questions":[{"question":"Q?","options":["A","B","C","D"],"correctOptionIndex":4}]}`
		_, err := parseQuestionPayload(payload, 1)
		assert.ErrorIs(t, err, util.ErrGenerationFailed)

		payload = `{"questions":[{"question":"Q?","options":["A","B","C","D"],"correctOptionIndex":-1}]}`
		_, err = parseQuestionPayload(payload, 1)
		assert.ErrorIs(t, err, util.ErrGenerationFailed)
	})
}

func TestBuildMCQPrompt(t *testing.T) {
	t.Run("truncates long document text", func(t *testing.T) {
		longText := strings.Repeat("a", maxContextChars+5000)
		prompt := buildMCQPrompt(longText, 10, nil)

		assert.NotContains(t, prompt, strings.Repeat("a", maxContextChars+1))
		assert.Contains(t, prompt, strings.Repeat("a", maxContextChars))
	})

	t.Run("truncation does not split a multi-byte rune", func(t *testing.T) {
		// 1 字节前缀让后续 2 字节字符都落在奇数偏移上，
		// 截断点正好落在一个字符中间
		longText := "a" + strings.Repeat("é", maxContextChars)
		prompt := buildMCQPrompt(longText, 10, nil)

		assert.True(t, utf8.ValidString(prompt))
	})

	t.Run("includes question count", func(t *testing.T) {
		prompt := buildMCQPrompt("some text", 20, nil)
		assert.Contains(t, prompt, "exactly 20")
	})

	t.Run("focus areas change the instruction", func(t *testing.T) {
		prompt := buildMCQPrompt("some text", 10, []string{"networking", "concurrency"})
		assert.Contains(t, prompt, "networking, concurrency")

		prompt = buildMCQPrompt("some text", 10, nil)
		assert.Contains(t, prompt, "entire document")
	})
}

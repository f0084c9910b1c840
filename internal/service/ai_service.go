package service

import (
	"context"
	"docquiz_backend/internal/config"
	"docquiz_backend/internal/util"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
)

// maxContextChars 输入文本硬上限，超出部分直接截断，
// 保证提示词不超过模型输入限制。
const maxContextChars = 12000

const systemPrompt = "You are an expert educational content creator. Generate high-quality multiple-choice questions based on the provided text."

// QuestionDraft 生成阶段的产物，尚未持久化
type QuestionDraft struct {
	QuestionText       string   `json:"question"`
	Options            []string `json:"options"`
	CorrectOptionIndex int      `json:"correctOptionIndex"`
	Explanation        string   `json:"explanation"`
	SourceSnippet      string   `json:"sourceSnippet"`
}

// AIService 出题流水线的第二阶段：调用大模型生成题目。
// 阶段内部不做重试，失败直接交给 worker 的退避策略。
type AIService struct {
	client *openai.Client
	model  string
}

func NewAIService(cfg config.AIConfig) *AIService {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}

	return &AIService{
		client: openai.NewClientWithConfig(clientCfg),
		model:  model,
	}
}

// GenerateQuestions 单次请求生成恰好 questionCount 道题。
// 模型返回的任何结构违规（缺字段、选项数不是 4、序号越界、数量不符）
// 都包装为 ErrGenerationFailed，不做兜底截断或补全。
func (s *AIService) GenerateQuestions(ctx context.Context, text string, questionCount int, focusAreas []string) ([]QuestionDraft, error) {
	prompt := buildMCQPrompt(text, questionCount, focusAreas)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.3,
		MaxTokens:   4000,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrGenerationFailed, err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices in response", util.ErrGenerationFailed)
	}

	return parseQuestionPayload(resp.Choices[0].Message.Content, questionCount)
}

// parseQuestionPayload 解析并严格校验模型输出。
// 模型不可信：这里是对所有 schema 违规的统一防线。
func parseQuestionPayload(content string, questionCount int) ([]QuestionDraft, error) {
	var payload struct {
		Questions []QuestionDraft `json:"questions"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON in response: %v", util.ErrGenerationFailed, err)
	}

	if len(payload.Questions) == 0 {
		return nil, fmt.Errorf("%w: response contains no questions", util.ErrGenerationFailed)
	}
	if len(payload.Questions) != questionCount {
		return nil, fmt.Errorf("%w: expected %d questions, got %d", util.ErrGenerationFailed, questionCount, len(payload.Questions))
	}

	for i, q := range payload.Questions {
		if strings.TrimSpace(q.QuestionText) == "" {
			return nil, fmt.Errorf("%w: question %d has empty text", util.ErrGenerationFailed, i)
		}
		if len(q.Options) != 4 {
			return nil, fmt.Errorf("%w: question %d has %d options, want 4", util.ErrGenerationFailed, i, len(q.Options))
		}
		if q.CorrectOptionIndex < 0 || q.CorrectOptionIndex > 3 {
			return nil, fmt.Errorf("%w: question %d has correct index %d out of range", util.ErrGenerationFailed, i, q.CorrectOptionIndex)
		}
	}

	return payload.Questions, nil
}

func buildMCQPrompt(documentText string, questionCount int, focusAreas []string) string {
	if len(documentText) > maxContextChars {
		cut := maxContextChars
		// 回退到字符边界，不把多字节字符切成半个
		for cut > 0 && !utf8.RuneStart(documentText[cut]) {
			cut--
		}
		documentText = documentText[:cut]
	}

	focusInstruction := "Cover key concepts from the entire document."
	if len(focusAreas) > 0 {
		focusInstruction = fmt.Sprintf("Focus on these areas: %s.", strings.Join(focusAreas, ", "))
	}

	return fmt.Sprintf(`DOCUMENT TEXT:
%s

TASK: Generate exactly %d high-quality multiple-choice questions based on the document text.
%s

REQUIREMENTS:
- Each question must have 4 options (A, B, C, D)
- Questions should test understanding, not just recall
- Include one clearly correct answer
- Provide a brief explanation (max 40 words)
- Include the exact text snippet from the document that supports the answer

OUTPUT FORMAT (JSON):
{
  "questions": [
    {
      "question": "Question text?",
      "options": ["Option A", "Option B", "Option C", "Option D"],
      "correctOptionIndex": 0,
      "explanation": "Brief explanation...",
      "sourceSnippet": "Exact text from document..."
    }
  ]
}

IMPORTANT: Return ONLY valid JSON. No other text.`, documentText, questionCount, focusInstruction)
}

package util

import "errors"

var (
	ErrUserNotFound    = errors.New("用户不存在")
	ErrEmailRegistered = errors.New("该邮箱已被注册")

	ErrDocumentNotFound     = errors.New("document not found")
	ErrQuizNotFound         = errors.New("quiz not found")
	ErrQuizNotReady         = errors.New("quiz not ready")
	ErrJobNotFound          = errors.New("generation job not found")
	ErrAttemptNotFound      = errors.New("attempt not found")
	ErrInvalidQuestionCount = errors.New("question count must be 10, 20, or 50")
	ErrInvalidAnswer        = errors.New("selected option index must be between 0 and 3")

	// ErrGenerationInProgress 同一文档已有 pending/processing 任务，
	// 调用方应返回已有任务的 ID 而不是创建新任务。
	ErrGenerationInProgress = errors.New("document is already being processed")

	// ErrAttemptAlreadySubmitted 同一次作答只能提交一次。
	ErrAttemptAlreadySubmitted = errors.New("attempt already submitted")

	// 流水线阶段错误，worker 按重试策略处理。
	ErrExtractionFailed = errors.New("text extraction failed")
	ErrGenerationFailed = errors.New("question generation failed")
)

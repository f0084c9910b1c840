package model

import "encoding/json"

// 出题任务状态机：
// pending --出队--> processing --成功--> ready
// processing --失败且未达上限--> pending（延迟重新入队）
// processing --失败且已达上限--> failed（终态）
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusReady      = "ready"
	JobStatusFailed     = "failed"
)

// swagger:model GenerationJob
// GenerationJob 一次异步出题请求。约束：同一 (UserID, DocumentID)
// 同时最多存在一个 pending/processing 状态的任务。
type GenerationJob struct {
	UUIDBase
	UserID        uint            `gorm:"index:idx_job_user_doc;type:bigint unsigned;not null" json:"userId"`
	DocumentID    string          `gorm:"index:idx_job_user_doc;type:varchar(36);not null" json:"documentId"`
	QuizID        string          `gorm:"index;type:varchar(36);not null" json:"quizId"`
	QuestionCount int             `gorm:"not null" json:"questionCount"`
	FocusAreas    json.RawMessage `gorm:"type:json" json:"focusAreas,omitempty"`
	Status        string          `gorm:"index;size:20;default:'pending'" json:"status"`
	Attempts      int             `gorm:"default:0" json:"attempts"`
	LastError     *string         `gorm:"type:text" json:"lastError,omitempty"`
}

func (GenerationJob) TableName() string {
	return "generation_jobs"
}

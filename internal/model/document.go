package model

// 文档状态
const (
	DocumentStatusUploaded   = "uploaded"
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
)

// swagger:model Document
// Document 用户上传的文档。ExtractedText 是抽取文本缓存：
// 只在第一次成功抽取后写入（first-writer-wins），之后不再重复抽取。
type Document struct {
	UUIDBase
	UserID        uint    `gorm:"index;type:bigint unsigned;not null" json:"userId"`
	Filename      string  `gorm:"size:255;not null" json:"filename"`
	StorageKey    string  `gorm:"size:512;not null" json:"-"`
	ContentType   string  `gorm:"size:100" json:"contentType"`
	Size          int64   `gorm:"default:0" json:"size"`
	Status        string  `gorm:"size:20;default:'uploaded'" json:"status"`
	ExtractedText *string `gorm:"type:longtext" json:"-"`
}

func (Document) TableName() string {
	return "documents"
}

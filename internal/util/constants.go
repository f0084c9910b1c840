package util

const (
	StorageLocal = "local"
	StorageMinio = "minio"
	StorageOSS   = "oss"
)

// 文件上传相关常量
const (
	MimePDF         = "application/pdf"
	MimeOctetStream = "application/octet-stream"
)

// 出题请求允许的题目数量
var AllowedQuestionCounts = []int{10, 20, 50}

func IsAllowedQuestionCount(n int) bool {
	for _, v := range AllowedQuestionCounts {
		if n == v {
			return true
		}
	}
	return false
}

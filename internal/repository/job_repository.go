package repository

import (
	"docquiz_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type JobRepository struct {
	DB *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{DB: db}
}

func (r *JobRepository) Create(job *model.GenerationJob) error {
	return r.DB.Create(job).Error
}

func (r *JobRepository) FindByID(id string) (*model.GenerationJob, error) {
	var job model.GenerationJob
	err := r.DB.First(&job, "id = ?", id).Error
	return &job, err
}

func (r *JobRepository) FindByIDAndUser(id string, userID uint) (*model.GenerationJob, error) {
	var job model.GenerationJob
	err := r.DB.Where("id = ? AND user_id = ?", id, userID).First(&job).Error
	return &job, err
}

// FindActiveByUserAndDocument 查找同一 (用户, 文档) 上仍在进行中的任务，
// 用于准入去重。没有则返回 gorm.ErrRecordNotFound。
func (r *JobRepository) FindActiveByUserAndDocument(userID uint, documentID string) (*model.GenerationJob, error) {
	var job model.GenerationJob
	err := r.DB.Where("user_id = ? AND document_id = ? AND status IN ?",
		userID, documentID, []string{model.JobStatusPending, model.JobStatusProcessing}).
		First(&job).Error
	return &job, err
}

// MarkProcessing 条件转移 pending -> processing 并把尝试次数 +1。
// 返回 false 表示任务已不在 pending 状态（迟到的重复投递），应丢弃。
func (r *JobRepository) MarkProcessing(id string) (bool, error) {
	res := r.DB.Model(&model.GenerationJob{}).
		Where("id = ? AND status = ?", id, model.JobStatusPending).
		Updates(map[string]interface{}{
			"status":   model.JobStatusProcessing,
			"attempts": gorm.Expr("attempts + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Requeue 条件转移 processing -> pending，为下一次延迟投递做准备。
func (r *JobRepository) Requeue(id string, lastError string) (bool, error) {
	res := r.DB.Model(&model.GenerationJob{}).
		Where("id = ? AND status = ?", id, model.JobStatusProcessing).
		Updates(map[string]interface{}{
			"status":     model.JobStatusPending,
			"last_error": lastError,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Fail 将任务置为终态 failed 并记录错误信息。
func (r *JobRepository) Fail(id string, lastError string) error {
	return r.DB.Model(&model.GenerationJob{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     model.JobStatusFailed,
			"last_error": lastError,
		}).Error
}

// ListPendingBefore 兜底扫描：找出创建（或最近更新）超过 age 仍停留在
// pending 的任务，可能是入队丢失或进程重启造成的滞留。
func (r *JobRepository) ListPendingBefore(cutoff time.Time) ([]model.GenerationJob, error) {
	var jobs []model.GenerationJob
	err := r.DB.Where("status = ? AND updated_at < ?", model.JobStatusPending, cutoff).
		Find(&jobs).Error
	return jobs, err
}

// ListProcessingBefore 找出停留在 processing 超过 age 的任务。
// worker 进程崩溃时在途任务会停在这个状态，消息已被消费不会再投递，
// 只能靠扫描收回。
func (r *JobRepository) ListProcessingBefore(cutoff time.Time) ([]model.GenerationJob, error) {
	var jobs []model.GenerationJob
	err := r.DB.Where("status = ? AND updated_at < ?", model.JobStatusProcessing, cutoff).
		Find(&jobs).Error
	return jobs, err
}

func (r *JobRepository) Touch(id string) error {
	return r.DB.Model(&model.GenerationJob{}).Where("id = ?", id).
		Update("updated_at", time.Now()).Error
}

package repository

import (
	"docquiz_backend/internal/model"

	"gorm.io/gorm"
)

type QuizRepository struct {
	DB *gorm.DB
}

func NewQuizRepository(db *gorm.DB) *QuizRepository {
	return &QuizRepository{DB: db}
}

func (r *QuizRepository) Create(quiz *model.Quiz) error {
	return r.DB.Create(quiz).Error
}

func (r *QuizRepository) FindByID(id string) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.First(&quiz, "id = ?", id).Error
	return &quiz, err
}

func (r *QuizRepository) FindByIDAndUser(id string, userID uint) (*model.Quiz, error) {
	var quiz model.Quiz
	err := r.DB.Where("id = ? AND user_id = ?", id, userID).First(&quiz).Error
	return &quiz, err
}

func (r *QuizRepository) ListByUser(userID uint) ([]model.Quiz, error) {
	var quizzes []model.Quiz
	err := r.DB.Where("user_id = ?", userID).Order("created_at desc").Find(&quizzes).Error
	return quizzes, err
}

// UpdateStatusIf 条件状态更新：只有当前状态为 from 时才改为 to，
// 防止迟到的重复投递覆盖更新的状态。
func (r *QuizRepository) UpdateStatusIf(id string, from, to string) (bool, error) {
	res := r.DB.Model(&model.Quiz{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *QuizRepository) ListQuestions(quizID string) ([]model.Question, error) {
	var qs []model.Question
	err := r.DB.Where("quiz_id = ?", quizID).Order("sort_order asc, created_at asc").Find(&qs).Error
	return qs, err
}

func (r *QuizRepository) CountQuestions(quizID string) (int64, error) {
	var n int64
	err := r.DB.Model(&model.Question{}).Where("quiz_id = ?", quizID).Count(&n).Error
	return n, err
}

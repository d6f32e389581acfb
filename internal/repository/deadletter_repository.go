package repository

import (
	"github.com/tetherapp/tether/internal/model"
	"gorm.io/gorm"
)

// DeadLetterRepository 簿记失败记录数据访问
type DeadLetterRepository struct {
	db *gorm.DB
}

// NewDeadLetterRepository 创建死信仓库
func NewDeadLetterRepository(db *gorm.DB) *DeadLetterRepository {
	return &DeadLetterRepository{db: db}
}

// Create 记录一条死信
func (r *DeadLetterRepository) Create(dl *model.DeadLetter) error {
	return r.db.Create(dl).Error
}

// ListRecent 列出最近的死信
func (r *DeadLetterRepository) ListRecent(limit int) ([]*model.DeadLetter, error) {
	var letters []*model.DeadLetter
	err := r.db.Order("created_at DESC").Limit(limit).Find(&letters).Error
	return letters, err
}

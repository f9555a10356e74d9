package repository

import (
	"context"

	"portfolio-go/internal/model"

	"gorm.io/gorm"
)

// ContactRepository 持久化联系表单提交。
type ContactRepository interface {
	Create(ctx context.Context, submission *model.ContactSubmission) error
	List(ctx context.Context, offset, limit int) ([]model.ContactSubmission, int64, error)
}

type contactRepository struct {
	db *gorm.DB
}

// NewContactRepository 创建一个新的 ContactRepository 实例。
func NewContactRepository(db *gorm.DB) ContactRepository {
	return &contactRepository{db: db}
}

func (r *contactRepository) Create(ctx context.Context, submission *model.ContactSubmission) error {
	return r.db.WithContext(ctx).Create(submission).Error
}

func (r *contactRepository) List(ctx context.Context, offset, limit int) ([]model.ContactSubmission, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.ContactSubmission{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []model.ContactSubmission
	err := r.db.WithContext(ctx).Order("id desc").Offset(offset).Limit(limit).Find(&rows).Error
	return rows, total, err
}

package repository

import (
	"context"

	"portfolio-go/internal/model"

	"gorm.io/gorm"
)

// ExchangeRepository 持久化问答审计记录。
type ExchangeRepository interface {
	Create(ctx context.Context, exchange *model.ChatExchange) error
	List(ctx context.Context, offset, limit int) ([]model.ChatExchange, int64, error)
}

type exchangeRepository struct {
	db *gorm.DB
}

// NewExchangeRepository 创建一个新的 ExchangeRepository 实例。
func NewExchangeRepository(db *gorm.DB) ExchangeRepository {
	return &exchangeRepository{db: db}
}

func (r *exchangeRepository) Create(ctx context.Context, exchange *model.ChatExchange) error {
	return r.db.WithContext(ctx).Create(exchange).Error
}

// List 按创建时间倒序分页返回记录以及总数。
func (r *exchangeRepository) List(ctx context.Context, offset, limit int) ([]model.ChatExchange, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&model.ChatExchange{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var rows []model.ChatExchange
	err := r.db.WithContext(ctx).Order("id desc").Offset(offset).Limit(limit).Find(&rows).Error
	return rows, total, err
}

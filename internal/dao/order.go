package dao

import (
	"context"

	"tradectl/internal/model"

	"gorm.io/gorm"
)

type OrderDao struct {
	db *gorm.DB
}

func NewOrderDao(db *gorm.DB) *OrderDao {
	return &OrderDao{db: db}
}

// 插入下单记录
func (d *OrderDao) Insert(ctx context.Context, record *model.OrderRecord) error {
	return d.db.WithContext(ctx).Create(record).Error
}

// 查找相同策略下的最后一个订单
func (d *OrderDao) OrderGetLast(ctx context.Context, strategy, symbol string) (or model.OrderRecord, err error) {
	err = d.db.WithContext(ctx).Model(&model.OrderRecord{}).
		Where("strategy = ?", strategy).
		Where("symbol = ?", symbol).
		Order("timestamp DESC").
		Limit(1).
		Find(&or).Error
	return
}

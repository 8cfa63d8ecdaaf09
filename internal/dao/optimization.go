package dao

import (
	"context"

	"tradectl/internal/model"

	"gorm.io/gorm"
)

type OptimizationDao struct {
	db *gorm.DB
}

func NewOptimizationDao(db *gorm.DB) *OptimizationDao {
	return &OptimizationDao{db: db}
}

func (d *OptimizationDao) Save(ctx context.Context, run *model.OptimizationRun) error {
	return d.db.WithContext(ctx).Create(run).Error
}

// Recent 某个交易对最近的优化记录
func (d *OptimizationDao) Recent(ctx context.Context, symbol, timeframe string, limit int) (runs []model.OptimizationRun, err error) {
	err = d.db.WithContext(ctx).Model(&model.OptimizationRun{}).
		Where("symbol = ? AND timeframe = ?", symbol, timeframe).
		Order("finished_at DESC").
		Limit(limit).
		Find(&runs).Error
	return
}

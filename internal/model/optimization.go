package model

import (
	"time"

	"gorm.io/datatypes"
)

// OptimizationRun 一次参数优化的结果，落库用
type OptimizationRun struct {
	ID          uint           `gorm:"column:id;primary_key;" json:"id"`
	RunID       string         `gorm:"column:run_id;type:varchar(64);uniqueIndex" json:"run_id"`
	Strategy    string         `gorm:"column:strategy" json:"strategy"`
	Symbol      string         `gorm:"column:symbol" json:"symbol"`
	Timeframe   string         `gorm:"column:timeframe" json:"timeframe"`
	Evaluations int            `gorm:"column:evaluations" json:"evaluations"`
	Objective   float64        `gorm:"column:objective" json:"objective"`
	TotalReturn float64        `gorm:"column:total_return" json:"total_return"`
	TotalTrades int            `gorm:"column:total_trades" json:"total_trades"`
	Params      datatypes.JSON `gorm:"column:params;type:json" json:"params"`
	StartedAt   time.Time      `gorm:"column:started_at" json:"started_at"`
	FinishedAt  time.Time      `gorm:"column:finished_at" json:"finished_at"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (OptimizationRun) TableName() string {
	return "optimization_run"
}

package position

import (
	"time"

	"tradectl/internal/model"
	"tradectl/pkg/logger"
)

// LocalPositionMeta 本地记录的开仓方向，只用于在下单后、交易所仓位可见前屏蔽重复开仓
type LocalPositionMeta struct {
	Symbol   string
	Side     model.Side
	OpenTime time.Time
}

// Outcome 一次对账的结果
type Outcome struct {
	Position *model.Position // 交易所真实仓位，nil 表示无仓位
	// StaleStop 本地认为有仓位但交易所已平仓，调用方需要关闭移动止损
	StaleStop bool
	// Adopted 本地方向与交易所不一致，已改为交易所方向
	Adopted bool
}

// Reconciler 以交易所仓位为准修正本地记录
type Reconciler struct {
	symbol string
	meta   *LocalPositionMeta
	grace  time.Duration
	now    func() time.Time
}

func NewReconciler(symbol string) *Reconciler {
	return &Reconciler{symbol: symbol, now: time.Now}
}

// WithGrace 刚开仓 grace 时间内交易所仍显示无仓位时保留本地记录
func (r *Reconciler) WithGrace(d time.Duration) *Reconciler {
	r.grace = d
	return r
}

func (r *Reconciler) Reconcile(remote *model.Position) Outcome {
	if !remote.Open() {
		out := Outcome{}
		if r.meta != nil && r.grace > 0 && r.now().Sub(r.meta.OpenTime) < r.grace {
			logger.Debugf("[%s] 开仓后交易所仓位尚不可见，保留本地 %s 方向", r.symbol, r.meta.Side)
			return out
		}
		if r.meta != nil {
			logger.Infof("[%s] 交易所无仓位，清除本地记录的 %s 方向", r.symbol, r.meta.Side)
			r.meta = nil
			out.StaleStop = true
		}
		return out
	}

	out := Outcome{Position: remote}
	if r.meta == nil || r.meta.Side != remote.Side {
		if r.meta != nil {
			logger.Warnf("[%s] 本地方向 %s 与交易所 %s 不一致，以交易所为准", r.symbol, r.meta.Side, remote.Side)
		}
		r.meta = &LocalPositionMeta{Symbol: r.symbol, Side: remote.Side, OpenTime: r.now()}
		out.Adopted = true
	}
	return out
}

// Track 开仓成功后记录方向
func (r *Reconciler) Track(side model.Side) {
	r.meta = &LocalPositionMeta{Symbol: r.symbol, Side: side, OpenTime: r.now()}
}

func (r *Reconciler) Clear() {
	r.meta = nil
}

func (r *Reconciler) Tracked() (model.Side, bool) {
	if r.meta == nil {
		return "", false
	}
	return r.meta.Side, true
}

// Suppress 本地已记录任一方向的仓位时不再开仓，反向信号也不例外
func (r *Reconciler) Suppress() bool {
	return r.meta != nil
}

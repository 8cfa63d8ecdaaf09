package journal

import (
	"context"
	"time"

	"tradectl/internal/dao"
	"tradectl/internal/model"
	"tradectl/pkg/kafka"
	"tradectl/pkg/recorder"

	"go.uber.org/multierr"
)

type EventType string

const (
	EventOpen           EventType = "open"
	EventClose          EventType = "close"
	EventStopBreach     EventType = "stop_breach"
	EventProtectiveStop EventType = "protective_stop"
	EventStopFailed     EventType = "protective_stop_failed"
	EventRejected       EventType = "order_rejected"
	EventAdopted        EventType = "position_adopted"
)

// Event 交易流水，订单和止损相关的事件都会记录
type Event struct {
	Type          EventType    `json:"type"`
	Symbol        string       `json:"symbol"`
	Side          model.Side   `json:"side,omitempty"`
	Signal        model.Signal `json:"signal,omitempty"`
	Price         float64      `json:"price,omitempty"`
	Quantity      float64      `json:"quantity,omitempty"`
	StopPrice     float64      `json:"stop_price,omitempty"`
	Distance      float64      `json:"distance,omitempty"`
	OrderID       string       `json:"order_id,omitempty"`
	ClientOrderID string       `json:"client_order_id,omitempty"`
	Strategy      string       `json:"strategy,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Time          time.Time    `json:"time"`

	Order *model.Order `json:"-"`
}

type Sink interface {
	Record(ctx context.Context, e Event) error
}

// Fanout 依次写入所有 sink，错误合并返回，不会因为某个 sink 失败而中断
type Fanout []Sink

func (f Fanout) Record(ctx context.Context, e Event) error {
	var err error
	for _, s := range f {
		err = multierr.Append(err, s.Record(ctx, e))
	}
	return err
}

type Nop struct{}

func (Nop) Record(context.Context, Event) error { return nil }

// FileSink JSONL 文件
type FileSink struct {
	rec *recorder.JSONFileRecorder
}

func NewFileSink(path string) *FileSink {
	return &FileSink{rec: recorder.NewJSONFileRecorder(path)}
}

func (s *FileSink) Record(_ context.Context, e Event) error {
	return s.rec.Record(e)
}

func (s *FileSink) Close() error {
	return s.rec.Close()
}

// KafkaSink 以交易对为 key 投递到 Kafka
type KafkaSink struct {
	producer kafka.ProducerService
}

func NewKafkaSink(producer kafka.ProducerService) *KafkaSink {
	return &KafkaSink{producer: producer}
}

func (s *KafkaSink) Record(ctx context.Context, e Event) error {
	return s.producer.Produce(ctx, []byte(e.Symbol), e)
}

// DBSink 只记录真实成交的订单
type DBSink struct {
	orders *dao.OrderDao
}

func NewDBSink(orders *dao.OrderDao) *DBSink {
	return &DBSink{orders: orders}
}

func (s *DBSink) Record(ctx context.Context, e Event) error {
	if e.Order == nil || (e.Type != EventOpen && e.Type != EventClose && e.Type != EventStopBreach) {
		return nil
	}
	return s.orders.Insert(ctx, model.NewOrderRecord(e.Order, &model.OrderResponse{
		OrderId:       e.OrderID,
		ClientOrderID: e.ClientOrderID,
	}))
}

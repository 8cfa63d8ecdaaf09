package kafka

import (
	"context"
	"time"

	"tradectl/pkg/logger"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
)

// Kafka 生产者服务
// 定义接口，方便测试和替换
type ProducerService interface {
	Produce(ctx context.Context, key []byte, msg any) error
	Close()
}

// messageWriter kafka.Writer 的子集
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaProducer struct {
	writer messageWriter
}

func NewKafkaProducer(brokerURL, topic string) ProducerService {
	return &kafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokerURL),
			Topic:        topic,
			Balancer:     &kafka.Hash{}, // 相同 key（交易对）进入同一个 Partition，保证顺序
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
		},
	}
}

// Produce 通用方法：JSON 序列化后写入 Kafka
func (p *kafkaProducer) Produce(ctx context.Context, key []byte, msg any) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   key,
		Value: value,
		Time:  time.Now(),
	})
}

func (p *kafkaProducer) Close() {
	if err := p.writer.Close(); err != nil {
		logger.Warnf("Error closing kafka writer: %v", err)
	}
}

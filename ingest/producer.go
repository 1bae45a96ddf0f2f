package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/contextiq/contextiq/core"
)

// Producer 把交互事件发布到 Kafka 主题，供 API 层与种子工具使用。
//
//   - 以 user_id 作分区键，同一用户的事件保持有序
//   - 每条消息携带 event_id 头便于追踪
type Producer struct {
	client *kgo.Client
	topic  string
	log    *zap.Logger
}

// NewProducer 建立生产者连接。
func NewProducer(brokers []string, topic string, logger *zap.Logger) (*Producer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := kgo.NewClient(kgo.SeedBrokers(brokers...))
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &Producer{client: client, topic: topic, log: logger}, nil
}

// Publish 同步发布一条事件，返回前确认 broker 已接收。
func (p *Producer) Publish(ctx context.Context, ev *core.InteractionEvent) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(ev.UserID),
		Value: data,
		Headers: []kgo.RecordHeader{
			{Key: "event_id", Value: []byte(uuid.NewString())},
		},
	}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce: %w", err)
	}
	p.log.Debug("event published",
		zap.String("user_id", ev.UserID), zap.String("content_id", ev.ContentID))
	return nil
}

// Close 冲刷在途消息并关闭连接。
func (p *Producer) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := p.client.Flush(ctx); err != nil {
		p.log.Warn("producer flush on close failed", zap.Error(err))
	}
	p.client.Close()
	return nil
}

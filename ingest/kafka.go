package ingest

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"
	"go.uber.org/zap"

	"github.com/contextiq/contextiq/core"
)

// KafkaSource 从 Kafka 主题消费交互事件，实现 Source。
//
// 工程特征：
//   - 消费组模式，多实例时分区自动均衡
//   - 消息体为 JSON 编码的 InteractionEvent
//   - 反序列化失败的消息记日志跳过，不会阻塞分区
type KafkaSource struct {
	client  *kgo.Client
	log     *zap.Logger
	pending []*core.InteractionEvent
}

// NewKafkaSource 建立消费组连接。
func NewKafkaSource(brokers []string, topic, group string, logger *zap.Logger) (*KafkaSource, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup(group),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return &KafkaSource{client: client, log: logger}, nil
}

// Next 返回下一条可解析的事件，必要时向 broker 拉取新批次。
func (s *KafkaSource) Next(ctx context.Context) (*core.InteractionEvent, error) {
	for len(s.pending) == 0 {
		fetches := s.client.PollFetches(ctx)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			s.log.Error("kafka fetch error",
				zap.String("topic", topic), zap.Int32("partition", partition), zap.Error(err))
		})
		fetches.EachRecord(func(rec *kgo.Record) {
			var ev core.InteractionEvent
			if err := json.Unmarshal(rec.Value, &ev); err != nil {
				s.log.Warn("skipping malformed message",
					zap.String("topic", rec.Topic),
					zap.Int32("partition", rec.Partition),
					zap.Int64("offset", rec.Offset),
					zap.Error(err))
				return
			}
			if ev.Timestamp.IsZero() {
				ev.Timestamp = rec.Timestamp
			}
			s.pending = append(s.pending, &ev)
		})
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

// Close 关闭消费者连接。
func (s *KafkaSource) Close() error {
	s.client.Close()
	return nil
}

var _ Source = (*KafkaSource)(nil)

// Package ingest 实现交互事件的消费、批量落库与周期性重训编排。
package ingest

import (
	"context"

	"github.com/contextiq/contextiq/core"
)

// Source 是交互事件的来源抽象。
//
// 核心思想：
//   - Ingestor 只面向 Source 编程，Kafka 只是其中一种实现
//   - Next 阻塞直到有下一条事件；ctx 取消时返回 ctx.Err()
//   - 测试中可用 channel 实现替代外部依赖
type Source interface {
	// Next 返回下一条交互事件。格式非法的消息由实现方跳过，
	// 不会从这里返回。
	Next(ctx context.Context) (*core.InteractionEvent, error)
	// Close 释放底层连接。
	Close() error
}

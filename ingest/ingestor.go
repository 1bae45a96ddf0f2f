package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/contextiq/contextiq/core"
	"github.com/contextiq/contextiq/model"
)

const (
	// DefaultBufferSize 是触发批量落库的缓冲事件数
	DefaultBufferSize = 50
	// DefaultRetrainInterval 是触发重训的累计事件数
	DefaultRetrainInterval = 3600
	// DefaultRecencyWindow 是训练数据的时间窗口
	DefaultRecencyWindow = 7 * 24 * time.Hour
	// DefaultLearningRate 是 SGD 学习率
	DefaultLearningRate = 0.01
	// DefaultEpochs 是每次重训的迭代轮数
	DefaultEpochs = 5
)

// Recomputer 在重训完成后为给定用户集重算推荐。
type Recomputer interface {
	RecomputeAll(ctx context.Context, userIDs []string) error
}

// Ingestor 是事件管道的单线程编排器。
//
// 核心思想：
//   - 逐条消费事件，攒满 BufferSize 条批量落库
//   - 落库失败时保留缓冲，下次触发时连同新事件一起重试
//   - 每累计 RetrainInterval 条有效事件触发一次重训
//   - 重训 = 全量重建嵌入 + 窗口内加权交互 SGD + 推荐重算
//   - 停止时尽力把缓冲写穿，不丢已消费的事件
//
// 工程特征：
//   - 单一事件循环串行化 flush 与 retrain，模型写入无需加锁
//   - 非法事件跳过并计数告警，不中断管道
type Ingestor struct {
	Source       Source
	Interactions core.InteractionStore
	Contents     core.ContentStore
	Model        *model.EmbeddingModel
	Recomputer   Recomputer // 可为 nil（只落库不重算）

	BufferSize      int
	RetrainInterval int
	RecencyWindow   time.Duration
	LearningRate    float64
	Epochs          int

	Log *zap.Logger

	buffer  []*core.InteractionEvent
	counter int
}

func (in *Ingestor) logger() *zap.Logger {
	if in.Log == nil {
		return zap.NewNop()
	}
	return in.Log
}

func (in *Ingestor) bufferSize() int {
	if in.BufferSize <= 0 {
		return DefaultBufferSize
	}
	return in.BufferSize
}

func (in *Ingestor) retrainInterval() int {
	if in.RetrainInterval <= 0 {
		return DefaultRetrainInterval
	}
	return in.RetrainInterval
}

// Run 持续消费事件直到 ctx 取消或 Source 出错。
// 退出前会用独立的短超时上下文做最后一次落库。
func (in *Ingestor) Run(ctx context.Context) error {
	in.logger().Info("ingestor started",
		zap.Int("buffer_size", in.bufferSize()),
		zap.Int("retrain_interval", in.retrainInterval()))

	for {
		ev, err := in.Source.Next(ctx)
		if err != nil {
			in.drain()
			if ctx.Err() != nil {
				in.logger().Info("ingestor stopped", zap.Int("pending", len(in.buffer)))
				return nil
			}
			return fmt.Errorf("event source: %w", err)
		}
		in.Handle(ctx, ev)
	}
}

// Handle 处理一条事件：校验、缓冲、按水位落库、按计数重训。
// 非法事件跳过；落库与重训的失败都只记日志，由后续触发点重试。
func (in *Ingestor) Handle(ctx context.Context, ev *core.InteractionEvent) {
	if err := ev.Validate(); err != nil {
		in.logger().Warn("dropping invalid event", zap.Error(err))
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	in.buffer = append(in.buffer, ev)
	if len(in.buffer) >= in.bufferSize() {
		if err := in.Flush(ctx); err != nil {
			in.logger().Error("flush failed, retaining buffer",
				zap.Int("pending", len(in.buffer)), zap.Error(err))
		}
	}

	in.counter++
	if in.counter >= in.retrainInterval() {
		if err := in.Retrain(ctx); err != nil {
			in.logger().Error("retrain failed", zap.Error(err))
		}
		in.counter = 0
	}
}

// Flush 把缓冲的事件批量写入存储。失败时缓冲原样保留。
func (in *Ingestor) Flush(ctx context.Context) error {
	if len(in.buffer) == 0 {
		return nil
	}
	if err := in.Interactions.InsertBatch(ctx, in.buffer); err != nil {
		return err
	}
	in.logger().Info("flushed interactions", zap.Int("count", len(in.buffer)))
	in.buffer = in.buffer[:0]
	return nil
}

// Pending 返回当前缓冲中未落库的事件数。
func (in *Ingestor) Pending() int { return len(in.buffer) }

// Retrain 执行一次全量重训：
// 先写穿缓冲保证训练集包含最新事件，再全量重建嵌入，
// 用时间窗口内的加权交互做 SGD，最后触发推荐重算。
//
// 没有任何用户或内容时跳过并保留旧模型；窗口内没有交互时
// 训练是零损失空转，嵌入停留在新初始化的状态。
func (in *Ingestor) Retrain(ctx context.Context) error {
	if err := in.Flush(ctx); err != nil {
		in.logger().Warn("pre-retrain flush failed", zap.Error(err))
	}

	userIDs, err := in.Interactions.DistinctUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	contentIDs, err := in.Contents.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list contents: %w", err)
	}
	if len(userIDs) == 0 || len(contentIDs) == 0 {
		in.logger().Info("skipping retrain, no training data",
			zap.Int("users", len(userIDs)), zap.Int("contents", len(contentIDs)))
		return nil
	}

	in.Model.InitializeEmbeddings(userIDs, contentIDs)

	window := in.RecencyWindow
	if window <= 0 {
		window = DefaultRecencyWindow
	}
	weighted, err := in.Interactions.RecentWeighted(ctx, time.Now().Add(-window))
	if err != nil {
		return fmt.Errorf("load training window: %w", err)
	}
	triples := in.buildTriples(weighted)

	lr := in.LearningRate
	if lr <= 0 {
		lr = DefaultLearningRate
	}
	epochs := in.Epochs
	if epochs <= 0 {
		epochs = DefaultEpochs
	}
	_, finalLoss, err := in.Model.TrainOnInteractions(triples, lr, epochs)
	if err != nil {
		return fmt.Errorf("train: %w", err)
	}
	in.logger().Info("model retrained",
		zap.Int("users", len(userIDs)),
		zap.Int("contents", len(contentIDs)),
		zap.Int("triples", len(triples)),
		zap.Float64("final_loss", finalLoss))

	if in.Recomputer != nil {
		if err := in.Recomputer.RecomputeAll(ctx, userIDs); err != nil {
			in.logger().Error("recommendation recompute incomplete", zap.Error(err))
		}
	}
	return nil
}

// buildTriples 把加权交互映射为训练三元组。
// 目标权重 = min(1, 交互次数/10)，重复交互越多目标分越高。
func (in *Ingestor) buildTriples(weighted []core.WeightedInteraction) []model.Triple {
	triples := make([]model.Triple, 0, len(weighted))
	for _, w := range weighted {
		ui, ok := in.Model.UserIndex(w.UserID)
		if !ok {
			continue
		}
		ci, ok := in.Model.ContentIndex(w.ContentID)
		if !ok {
			continue
		}
		weight := float64(w.Count) / 10.0
		if weight > 1.0 {
			weight = 1.0
		}
		triples = append(triples, model.Triple{UserIdx: ui, ContentIdx: ci, Weight: weight})
	}
	return triples
}

// drain 在退出路径上尽力落库，用独立上下文避免被已取消的 ctx 截断。
func (in *Ingestor) drain() {
	if len(in.buffer) == 0 {
		return
	}
	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := in.Flush(flushCtx); err != nil {
		in.logger().Error("final flush failed, events lost",
			zap.Int("count", len(in.buffer)), zap.Error(err))
	}
}

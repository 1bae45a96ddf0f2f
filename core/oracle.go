package core

import "context"

// RelevanceOracle 是 LLM 相关性评分的领域接口。
//
// 契约：
//   - Score 返回 [0,1] 的相关性分数；ok=false 表示"无分数"（服务不可用、
//     超时、响应无法解析等），调用方退回纯 ML 评分，绝不中断重算
//   - 一次评分过程中，每个 (user, content) 至多咨询一次，不做同轮重试
//   - 实现必须受超时约束，不允许无限阻塞
//
// 实现：
//   - oracle.Client（Claude messages API）
//   - 测试用 mock（记录调用次数，验证门控策略）
type RelevanceOracle interface {
	// Name 返回 Oracle 名称（用于日志/监控）
	Name() string

	// Available 返回 Oracle 当前是否可用（如凭证未配置时为 false）
	Available() bool

	// Score 对 (用户画像, 内容) 给出 [0,1] 相关性分数。
	// ok=false 表示无分数，调用方不应将其当作 0 分。
	Score(ctx context.Context, profile *UserProfile, content *Content) (score float64, ok bool)
}

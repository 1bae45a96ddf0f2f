// Package contextiq 是一个个性化内容推荐引擎（Context IQ）。
//
// 设计要点：
// - 事件驱动: 交互事件经消息源进入 Ingestor，批量落库并按计数周期触发重训
// - 混合评分: 嵌入模型相似度分 + 可选 LLM 相关性分按权重融合（门控控制调用量）
// - 接口在 core: 存储/缓存/Oracle 均为领域接口，基础设施按需替换（内存实现用于测试）
package contextiq

import "github.com/contextiq/contextiq/core"

// 轻量 facade：便于用户直接 import "contextiq" 使用核心类型。
type InteractionEvent = core.InteractionEvent
type Recommendation = core.Recommendation
type UserProfile = core.UserProfile
type Content = core.Content

const (
	InteractionView  = core.InteractionView
	InteractionLike  = core.InteractionLike
	InteractionSave  = core.InteractionSave
	InteractionShare = core.InteractionShare
)

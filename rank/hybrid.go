// Package rank 提供 ML 分数与 LLM 分数的融合评分。
package rank

import (
	"github.com/contextiq/contextiq/core"
	"github.com/contextiq/contextiq/pkg/dsl"
)

// 默认融合权重与门控阈值。权重按惯例相加为 1，但不强制。
const (
	DefaultMLWeight      = 0.6
	DefaultLLMWeight     = 0.4
	DefaultGateThreshold = 0.3
)

// HybridScorer 把嵌入模型分数与可选的 LLM 相关性分数融合为最终排序分。
//
// 融合语义：
//   - 无 LLM 分数：combined = ml（缺失不视为 0 分，也不重新归一权重）
//   - 有 LLM 分数：combined = clamp(0, 1, w_ml*ml + w_llm*llm)
//
// 此类型是纯函数载体，无任何外部依赖，可穷举测试。
type HybridScorer struct {
	// MLWeight 是嵌入模型分数的权重（默认 0.6）
	MLWeight float64

	// LLMWeight 是 LLM 分数的权重（默认 0.4）
	LLMWeight float64
}

// NewHybridScorer 创建带默认权重的融合器。
func NewHybridScorer() *HybridScorer {
	return &HybridScorer{
		MLWeight:  DefaultMLWeight,
		LLMWeight: DefaultLLMWeight,
	}
}

// Blend 融合两个分数。llmScore 为 nil 表示 Oracle 未给出分数。
func (s *HybridScorer) Blend(mlScore float64, llmScore *float64) float64 {
	if llmScore == nil {
		return mlScore
	}
	blended := s.MLWeight*mlScore + s.LLMWeight*(*llmScore)
	if blended < 0 {
		return 0
	}
	if blended > 1 {
		return 1
	}
	return blended
}

// GatePolicy 决定是否为某个候选咨询 RelevanceOracle。
//
// 门控是成本控制手段而非精度优化：只有 ML 分数超过"最低潜力阈值"的
// 候选才值得花一次 LLM 调用；阈值之下直接使用 ML 分数。
//
// Rule 可选，配置 CEL 表达式后取代固定阈值（表达式可同时引用
// ml_score、user、content，见 pkg/dsl）。规则求值失败时回退到阈值门控。
type GatePolicy struct {
	// Threshold 是最低潜力阈值（默认 0.3），ml_score 必须严格大于它
	Threshold float64

	// Rule 是可选的 CEL 门控规则
	Rule *dsl.GateRule
}

// NewGatePolicy 创建带默认阈值的门控策略。
func NewGatePolicy() *GatePolicy {
	return &GatePolicy{Threshold: DefaultGateThreshold}
}

// ShouldConsult 判断是否咨询 Oracle。
func (g *GatePolicy) ShouldConsult(mlScore float64, profile *core.UserProfile, content *core.Content) bool {
	if g.Rule != nil {
		if ok, err := g.Rule.Evaluate(mlScore, profile, content); err == nil {
			return ok
		}
		// 规则求值失败时回退到阈值门控
	}
	return mlScore > g.Threshold
}

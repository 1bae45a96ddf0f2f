package model

import (
	"math"
	"sort"
)

// Metrics 是模型在留出集上的评估指标。
type Metrics struct {
	RMSE     float64 // 预测分与目标权重的均方根误差
	MAE      float64 // 平均绝对误差
	Accuracy float64 // |误差| < 0.2 的样本占比
	Samples  int     // 评估样本数
}

// Evaluate 在留出三元组上评估模型。
// 模型未初始化或样本为空时返回零值 Metrics。
func (m *EmbeddingModel) Evaluate(test []Triple) Metrics {
	if !m.Ready() || len(test) == 0 {
		return Metrics{}
	}

	var sumSq, sumAbs float64
	var hits, n int
	for _, t := range test {
		if t.UserIdx < 0 || t.UserIdx >= len(m.userVecs) ||
			t.ContentIdx < 0 || t.ContentIdx >= len(m.contentVecs) {
			continue
		}
		predicted := m.PredictScore(t.UserIdx, t.ContentIdx)
		diff := predicted - t.Weight
		sumSq += diff * diff
		sumAbs += math.Abs(diff)
		if math.Abs(diff) < 0.2 {
			hits++
		}
		n++
	}
	if n == 0 {
		return Metrics{}
	}

	return Metrics{
		RMSE:     math.Sqrt(sumSq / float64(n)),
		MAE:      sumAbs / float64(n),
		Accuracy: float64(hits) / float64(n),
		Samples:  n,
	}
}

// TopKHitRate 计算 top-k 命中率：按分数取前 k 个内容，统计其中有多少属于
// 已知相关集合。用于离线验证推荐排序质量。
func TopKHitRate(scores map[string]float64, relevant map[string]bool, k int) float64 {
	if k <= 0 || len(scores) == 0 {
		return 0
	}

	type scored struct {
		id    string
		score float64
	}
	ranked := make([]scored, 0, len(scores))
	for id, s := range scores {
		ranked = append(ranked, scored{id: id, score: s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score == ranked[j].score {
			return ranked[i].id < ranked[j].id
		}
		return ranked[i].score > ranked[j].score
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	hits := 0
	for _, s := range ranked[:k] {
		if relevant[s.id] {
			hits++
		}
	}
	return float64(hits) / float64(k)
}

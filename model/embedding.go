package model

import (
	"math"
	"math/rand"
	"time"

	"github.com/contextiq/contextiq/core"
)

// DefaultDim 是嵌入向量的默认维度。
const DefaultDim = 32

// DefaultScore 是未知用户/内容的默认预测分数（"无信息"时的中性分）。
const DefaultScore = 0.5

// Triple 是一条训练样本：(用户下标, 内容下标, 目标权重)。
// 权重在 [0,1]，由交互频次派生：min(1, count/10)。
type Triple struct {
	UserIdx    int
	ContentIdx int
	Weight     float64
}

// EmbeddingModel 是基于隐向量的打分模型。
//
// 核心思想：
//   - 每个用户、每个内容各持有一个 D 维隐向量
//   - 预测分数 = (cosine(用户向量, 内容向量) + 1) / 2，落在 [0,1]
//   - 训练目标：预测分数与交互权重的平方误差，SGD 逐样本下降
//
// 工程特征：
//   - 实时性：好（离线重训，在线查表 + 向量内积）
//   - 计算复杂度：低（O(D) 每对）
//   - 可解释性：中等（可分析向量相似度）
//
// 并发约束：
//   - InitializeEmbeddings / TrainOnInteractions 会改写内部状态，
//     必须由单一协调者串行调用（重训与重算不得交叠）
//   - PredictScore / PredictScores 只读，不修改任何状态
type EmbeddingModel struct {
	dim int
	rng *rand.Rand

	userIdx    map[string]int
	contentIdx map[string]int

	userVecs    [][]float64
	contentVecs [][]float64
}

// NewEmbeddingModel 创建一个嵌入模型。dim <= 0 时使用 DefaultDim。
func NewEmbeddingModel(dim int) *EmbeddingModel {
	if dim <= 0 {
		dim = DefaultDim
	}
	return &EmbeddingModel{
		dim: dim,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithSeed 固定随机种子（用于可复现的测试）。
func (m *EmbeddingModel) WithSeed(seed int64) *EmbeddingModel {
	m.rng = rand.New(rand.NewSource(seed))
	return m
}

// Dim 返回嵌入维度。
func (m *EmbeddingModel) Dim() int { return m.dim }

// Ready 返回模型是否已初始化过嵌入（有用户且有内容）。
func (m *EmbeddingModel) Ready() bool {
	return len(m.userVecs) > 0 && len(m.contentVecs) > 0
}

// InitializeEmbeddings 为每个用户/内容分配一个隐向量，并重建 id→下标映射。
//
// 语义是"整体替换"而非增量更新：重复调用时先前的全部状态被丢弃。
// 初始值取小幅零均值随机数（±0.01 量级）打破对称性。
func (m *EmbeddingModel) InitializeEmbeddings(userIDs, contentIDs []string) {
	m.userIdx = make(map[string]int, len(userIDs))
	m.contentIdx = make(map[string]int, len(contentIDs))
	m.userVecs = m.userVecs[:0]
	m.contentVecs = m.contentVecs[:0]

	for _, id := range userIDs {
		if _, ok := m.userIdx[id]; ok {
			continue
		}
		m.userIdx[id] = len(m.userVecs)
		m.userVecs = append(m.userVecs, m.randomVector())
	}
	for _, id := range contentIDs {
		if _, ok := m.contentIdx[id]; ok {
			continue
		}
		m.contentIdx[id] = len(m.contentVecs)
		m.contentVecs = append(m.contentVecs, m.randomVector())
	}
}

func (m *EmbeddingModel) randomVector() []float64 {
	vec := make([]float64, m.dim)
	for i := range vec {
		vec[i] = m.rng.NormFloat64() * 0.01
	}
	return vec
}

// UserIndex 返回用户 id 对应的下标。
func (m *EmbeddingModel) UserIndex(userID string) (int, bool) {
	idx, ok := m.userIdx[userID]
	return idx, ok
}

// ContentIndex 返回内容 id 对应的下标。
func (m *EmbeddingModel) ContentIndex(contentID string) (int, bool) {
	idx, ok := m.contentIdx[contentID]
	return idx, ok
}

// TrainOnInteractions 在交互三元组上做 epochs 轮 SGD。
//
// 每个样本：p = (cosine(u,v)+1)/2，loss = (p-w)^2，
// 对 u、v 同时按梯度下降更新，使相似度逼近权重目标。
// 返回每轮的平均损失与最终损失；学习率合理时损失在轮次间平均不增。
//
// 失败策略：模型未初始化时返回 INSUFFICIENT_DATA 领域错误；
// 三元组为空时是无操作，返回零损失而非错误。
func (m *EmbeddingModel) TrainOnInteractions(triples []Triple, learningRate float64, epochs int) (losses []float64, finalLoss float64, err error) {
	if !m.Ready() {
		return nil, 0, core.NewDomainError(core.ModuleModel, core.ErrorCodeInsufficientData,
			"model: embeddings not initialized, nothing to train")
	}
	if len(triples) == 0 {
		return nil, 0, nil
	}
	if learningRate <= 0 {
		learningRate = 0.01
	}
	if epochs <= 0 {
		epochs = 5
	}

	losses = make([]float64, 0, epochs)
	for epoch := 0; epoch < epochs; epoch++ {
		var sumSq float64
		var n int
		for _, t := range triples {
			if t.UserIdx < 0 || t.UserIdx >= len(m.userVecs) ||
				t.ContentIdx < 0 || t.ContentIdx >= len(m.contentVecs) {
				continue
			}
			u := m.userVecs[t.UserIdx]
			v := m.contentVecs[t.ContentIdx]

			cos, normU, normV := cosineWithNorms(u, v)
			if normU == 0 || normV == 0 {
				continue
			}

			predicted := (cos + 1) / 2
			diff := predicted - t.Weight
			sumSq += diff * diff
			n++

			// dL/dcos = 2*(p-w) * dp/dcos = (p-w)，其中 dp/dcos = 1/2
			// dcos/du_i = v_i/(|u||v|) - cos*u_i/|u|^2（对 v 对称）
			grad := diff
			invUV := 1 / (normU * normV)
			invUU := 1 / (normU * normU)
			invVV := 1 / (normV * normV)
			for i := 0; i < m.dim; i++ {
				gu := grad * (v[i]*invUV - cos*u[i]*invUU)
				gv := grad * (u[i]*invUV - cos*v[i]*invVV)
				u[i] -= learningRate * gu
				v[i] -= learningRate * gv
			}
		}

		if n == 0 {
			losses = append(losses, 0)
			continue
		}
		losses = append(losses, sumSq/float64(n))
	}

	return losses, losses[len(losses)-1], nil
}

// PredictScore 返回 (用户下标, 内容下标) 的预测分数，范围 [0,1]。
// 下标越界时返回 DefaultScore，不报错、不修改状态。
func (m *EmbeddingModel) PredictScore(userIdx, contentIdx int) float64 {
	if userIdx < 0 || userIdx >= len(m.userVecs) ||
		contentIdx < 0 || contentIdx >= len(m.contentVecs) {
		return DefaultScore
	}
	cos, normU, normV := cosineWithNorms(m.userVecs[userIdx], m.contentVecs[contentIdx])
	if normU == 0 || normV == 0 {
		return DefaultScore
	}
	score := (cos + 1) / 2
	// 浮点误差防护
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// PredictScores 批量预测用户对一组内容的分数。
// 未知用户或未知内容一律得到 DefaultScore。
func (m *EmbeddingModel) PredictScores(userID string, contentIDs []string) map[string]float64 {
	scores := make(map[string]float64, len(contentIDs))
	userIdx, knownUser := m.userIdx[userID]
	for _, cid := range contentIDs {
		if !knownUser {
			scores[cid] = DefaultScore
			continue
		}
		contentIdx, ok := m.contentIdx[cid]
		if !ok {
			scores[cid] = DefaultScore
			continue
		}
		scores[cid] = m.PredictScore(userIdx, contentIdx)
	}
	return scores
}

// cosineWithNorms 返回余弦相似度及两个向量的模长。
func cosineWithNorms(a, b []float64) (cos, normA, normB float64) {
	var dot, sqA, sqB float64
	for i := range a {
		dot += a[i] * b[i]
		sqA += a[i] * a[i]
		sqB += b[i] * b[i]
	}
	normA = math.Sqrt(sqA)
	normB = math.Sqrt(sqB)
	if normA == 0 || normB == 0 {
		return 0, normA, normB
	}
	return dot / (normA * normB), normA, normB
}

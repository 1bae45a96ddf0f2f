package model

import (
	"testing"

	"github.com/contextiq/contextiq/core"
)

func TestInitializeEmbeddings(t *testing.T) {
	m := NewEmbeddingModel(16).WithSeed(42)

	m.InitializeEmbeddings([]string{"u1", "u2", "u1"}, []string{"c1", "c2", "c3"})

	if !m.Ready() {
		t.Fatal("model should be ready after initialization")
	}
	// 重复 id 去重
	if _, ok := m.UserIndex("u1"); !ok {
		t.Error("u1 should be indexed")
	}
	if _, ok := m.UserIndex("u3"); ok {
		t.Error("u3 should not be indexed")
	}
	if got := len(m.userVecs); got != 2 {
		t.Errorf("want 2 user vectors, got %d", got)
	}
	if got := len(m.contentVecs); got != 3 {
		t.Errorf("want 3 content vectors, got %d", got)
	}

	// 重复调用是整体替换，不是增量更新
	m.InitializeEmbeddings([]string{"u9"}, []string{"c9"})
	if _, ok := m.UserIndex("u1"); ok {
		t.Error("u1 should be gone after re-initialization")
	}
	if got := len(m.userVecs); got != 1 {
		t.Errorf("want 1 user vector after re-init, got %d", got)
	}
}

func TestPredictScore_UnknownDefault(t *testing.T) {
	m := NewEmbeddingModel(8).WithSeed(1)
	m.InitializeEmbeddings([]string{"u1"}, []string{"c1"})

	tests := []struct {
		name       string
		userIdx    int
		contentIdx int
	}{
		{"negative user index", -1, 0},
		{"user index out of range", 5, 0},
		{"content index out of range", 0, 9},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.PredictScore(tt.userIdx, tt.contentIdx); got != DefaultScore {
				t.Errorf("PredictScore(%d, %d) = %v, want default %v", tt.userIdx, tt.contentIdx, got, DefaultScore)
			}
		})
	}
}

func TestPredictScores_UnknownIDs(t *testing.T) {
	m := NewEmbeddingModel(8).WithSeed(1)
	m.InitializeEmbeddings([]string{"u1"}, []string{"c1"})

	// 未知用户：所有内容都是默认分
	scores := m.PredictScores("nobody", []string{"c1", "c2"})
	for cid, s := range scores {
		if s != DefaultScore {
			t.Errorf("unknown user: score for %s = %v, want %v", cid, s, DefaultScore)
		}
	}

	// 已知用户，未知内容
	scores = m.PredictScores("u1", []string{"c1", "unknown"})
	if scores["unknown"] != DefaultScore {
		t.Errorf("unknown content score = %v, want %v", scores["unknown"], DefaultScore)
	}
	if s := scores["c1"]; s < 0 || s > 1 {
		t.Errorf("known pair score %v out of [0,1]", s)
	}
}

func TestTrainOnInteractions_NotInitialized(t *testing.T) {
	m := NewEmbeddingModel(8)

	_, _, err := m.TrainOnInteractions([]Triple{{0, 0, 1.0}}, 0.01, 5)
	if err == nil {
		t.Fatal("expected error when training an uninitialized model")
	}
	if !core.IsInsufficientData(err) {
		t.Errorf("expected INSUFFICIENT_DATA, got %v", err)
	}
}

func TestTrainOnInteractions_EmptyTriplesIsNoop(t *testing.T) {
	m := NewEmbeddingModel(8).WithSeed(7)
	m.InitializeEmbeddings([]string{"u1"}, []string{"c1"})

	before := m.PredictScore(0, 0)
	losses, final, err := m.TrainOnInteractions(nil, 0.01, 5)
	if err != nil {
		t.Fatalf("TrainOnInteractions() error = %v", err)
	}
	if len(losses) != 0 || final != 0 {
		t.Errorf("empty training should report zero losses, got %v / %v", losses, final)
	}
	if after := m.PredictScore(0, 0); after != before {
		t.Errorf("empty training must not move embeddings: %v -> %v", before, after)
	}
}

// 统计性质：高权重交互对训练后得分高于无交互对。
// 不同种子重复验证相对排序，不断言具体数值。
func TestTrain_LearnsRelativeOrdering(t *testing.T) {
	users := []string{"u1", "u2", "u3"}
	contents := []string{"c1", "c2", "c3", "c4", "c5"}

	for _, seed := range []int64{1, 2, 3, 4, 5} {
		m := NewEmbeddingModel(16).WithSeed(seed)
		m.InitializeEmbeddings(users, contents)

		u1, _ := m.UserIndex("u1")
		u2, _ := m.UserIndex("u2")
		c1, _ := m.ContentIndex("c1")
		c2, _ := m.ContentIndex("c2")
		c3, _ := m.ContentIndex("c3")

		triples := []Triple{
			{u1, c1, 1.0},
			{u1, c2, 0.2},
			{u2, c3, 0.8},
		}
		if _, _, err := m.TrainOnInteractions(triples, 0.05, 20); err != nil {
			t.Fatalf("seed %d: TrainOnInteractions() error = %v", seed, err)
		}

		if got1, got3 := m.PredictScore(u1, c1), m.PredictScore(u1, c3); got1 <= got3 {
			t.Errorf("seed %d: predict(u1,c1)=%v should exceed predict(u1,c3)=%v", seed, got1, got3)
		}
		if got1, got2 := m.PredictScore(u1, c1), m.PredictScore(u1, c2); got1 <= got2 {
			t.Errorf("seed %d: predict(u1,c1)=%v should exceed predict(u1,c2)=%v", seed, got1, got2)
		}
	}
}

func TestTrain_LossDecreases(t *testing.T) {
	m := NewEmbeddingModel(16).WithSeed(99)
	m.InitializeEmbeddings([]string{"u1", "u2"}, []string{"c1", "c2", "c3"})

	triples := []Triple{
		{0, 0, 1.0},
		{0, 1, 0.3},
		{1, 2, 0.9},
	}
	losses, final, err := m.TrainOnInteractions(triples, 0.01, 10)
	if err != nil {
		t.Fatalf("TrainOnInteractions() error = %v", err)
	}
	if len(losses) != 10 {
		t.Fatalf("want 10 epoch losses, got %d", len(losses))
	}
	for i, l := range losses {
		if l < 0 {
			t.Errorf("epoch %d: loss %v is negative", i, l)
		}
	}
	// 平均性质：最终损失不高于首轮损失
	if final > losses[0] {
		t.Errorf("final loss %v should not exceed first-epoch loss %v", final, losses[0])
	}
}

func TestTopKHitRate(t *testing.T) {
	scores := map[string]float64{
		"c1": 0.9,
		"c2": 0.8,
		"c3": 0.2,
		"c4": 0.1,
	}
	relevant := map[string]bool{"c1": true, "c3": true}

	if got := TopKHitRate(scores, relevant, 2); got != 0.5 {
		t.Errorf("TopKHitRate(k=2) = %v, want 0.5", got)
	}
	if got := TopKHitRate(scores, relevant, 0); got != 0 {
		t.Errorf("TopKHitRate(k=0) = %v, want 0", got)
	}
}

func TestEvaluate(t *testing.T) {
	m := NewEmbeddingModel(16).WithSeed(11)

	// 未初始化：零值指标
	if got := m.Evaluate([]Triple{{0, 0, 1.0}}); got.Samples != 0 {
		t.Errorf("uninitialized Evaluate should report 0 samples, got %d", got.Samples)
	}

	m.InitializeEmbeddings([]string{"u1"}, []string{"c1", "c2"})
	triples := []Triple{{0, 0, 1.0}, {0, 1, 0.2}}
	if _, _, err := m.TrainOnInteractions(triples, 0.05, 20); err != nil {
		t.Fatalf("TrainOnInteractions() error = %v", err)
	}

	metrics := m.Evaluate(triples)
	if metrics.Samples != 2 {
		t.Errorf("want 2 samples, got %d", metrics.Samples)
	}
	if metrics.RMSE < 0 || metrics.MAE < 0 {
		t.Errorf("negative error metrics: %+v", metrics)
	}
	if metrics.Accuracy < 0 || metrics.Accuracy > 1 {
		t.Errorf("accuracy %v out of [0,1]", metrics.Accuracy)
	}
}

package rank

import (
	"testing"

	"github.com/contextiq/contextiq/core"
	"github.com/contextiq/contextiq/pkg/dsl"
)

func f(v float64) *float64 { return &v }

func TestBlend_NoLLMScore(t *testing.T) {
	s := NewHybridScorer()

	// 无 LLM 分数时 combined == ml，不重新加权
	for _, ml := range []float64{0, 0.1, 0.29, 0.5, 0.77, 1} {
		if got := s.Blend(ml, nil); got != ml {
			t.Errorf("Blend(%v, nil) = %v, want %v", ml, got, ml)
		}
	}
}

func TestBlend_Weighted(t *testing.T) {
	s := NewHybridScorer()

	tests := []struct {
		name string
		ml   float64
		llm  float64
		want float64
	}{
		{"both mid", 0.5, 0.5, 0.5},
		{"ml dominates", 1.0, 0.0, 0.6},
		{"llm dominates", 0.0, 1.0, 0.4},
		{"both max", 1.0, 1.0, 1.0},
		{"both min", 0.0, 0.0, 0.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := s.Blend(tt.ml, f(tt.llm))
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("Blend(%v, %v) = %v, want %v", tt.ml, tt.llm, got, tt.want)
			}
		})
	}
}

// clamp 不变式：对 [0,1] 网格上的所有组合，输出都在 [0,1]。
func TestBlend_ClampInvariant(t *testing.T) {
	// 权重故意不和为 1，验证 clamp 而非权重归一
	s := &HybridScorer{MLWeight: 0.9, LLMWeight: 0.8}

	for i := 0; i <= 10; i++ {
		for j := 0; j <= 10; j++ {
			ml := float64(i) / 10
			llm := float64(j) / 10
			got := s.Blend(ml, f(llm))
			if got < 0 || got > 1 {
				t.Fatalf("Blend(%v, %v) = %v out of [0,1]", ml, llm, got)
			}
		}
	}
}

func TestGatePolicy_Threshold(t *testing.T) {
	g := NewGatePolicy()

	tests := []struct {
		ml   float64
		want bool
	}{
		{0.29, false},
		{0.30, false}, // 必须严格大于阈值
		{0.31, true},
		{0.0, false},
		{1.0, true},
	}
	for _, tt := range tests {
		if got := g.ShouldConsult(tt.ml, nil, nil); got != tt.want {
			t.Errorf("ShouldConsult(ml=%v) = %v, want %v", tt.ml, got, tt.want)
		}
	}
}

func TestGatePolicy_CELRule(t *testing.T) {
	rule, err := dsl.CompileGate(`ml_score > 0.5 || content.category in user.interests`)
	if err != nil {
		t.Fatalf("CompileGate() error = %v", err)
	}
	g := &GatePolicy{Threshold: DefaultGateThreshold, Rule: rule}

	profile := &core.UserProfile{UserID: "u1", Interests: []string{"tech"}}
	techContent := &core.Content{ID: "c1", Category: "tech"}
	sportContent := &core.Content{ID: "c2", Category: "sport"}

	if !g.ShouldConsult(0.2, profile, techContent) {
		t.Error("interest-category content should pass the gate even at low ml score")
	}
	if g.ShouldConsult(0.4, profile, sportContent) {
		t.Error("off-interest content below 0.5 should not pass the gate")
	}
	if !g.ShouldConsult(0.6, profile, sportContent) {
		t.Error("high ml score should pass the gate regardless of category")
	}
}

func TestGateRule_CompileErrors(t *testing.T) {
	if _, err := dsl.CompileGate(`ml_score +`); err == nil {
		t.Error("expected compile error for malformed expression")
	}
	if _, err := dsl.CompileGate(`ml_score + 1.0`); err == nil {
		t.Error("expected compile error for non-bool expression")
	}
}

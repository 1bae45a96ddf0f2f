// Package dsl 提供基于 CEL 的 Oracle 门控规则解释器。
package dsl

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"

	"github.com/contextiq/contextiq/core"
)

var (
	// celEnv 是全局的 CEL 环境，线程安全，可复用
	celEnv     *cel.Env
	celEnvOnce sync.Once
)

// initCELEnv 初始化 CEL 环境，定义变量
func initCELEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("ml_score", cel.DoubleType),
		cel.Variable("user", cel.DynType),
		cel.Variable("content", cel.DynType),
	)
	return env, err
}

// getCELEnv 获取或创建 CEL 环境
func getCELEnv() (*cel.Env, error) {
	var err error
	celEnvOnce.Do(func() {
		celEnv, err = initCELEnv()
	})
	if celEnv == nil && err == nil {
		err = fmt.Errorf("cel environment not initialized")
	}
	return celEnv, err
}

// GateRule 是门控规则解释器，使用 CEL (Common Expression Language) 实现。
// 规则决定某个候选是否值得咨询 RelevanceOracle（控制 LLM 调用量）。
//
// 表达式语法（CEL 标准语法）：
//   - 数值：ml_score > 0.3 / ml_score >= 0.5
//   - 画像：user.interaction_count > 10
//   - 内容：content.category == "tech"
//   - 逻辑：ml_score > 0.3 && content.category in user.interests
//
// 示例：
//   - `ml_score > 0.3` → 默认阈值门控的等价表达
//   - `ml_score > 0.5 || content.category in user.interests` → 高分或兴趣类目才咨询
type GateRule struct {
	expr string
	prg  cel.Program
}

// CompileGate 编译一条门控规则。表达式必须求值为 bool。
func CompileGate(expr string) (*GateRule, error) {
	env, err := getCELEnv()
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}

	ast, issues := env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile gate rule %q: %w", expr, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("gate rule %q must evaluate to bool, got %s", expr, out)
	}

	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("program gate rule %q: %w", expr, err)
	}

	return &GateRule{expr: expr, prg: prg}, nil
}

// String 返回规则表达式。
func (r *GateRule) String() string { return r.expr }

// Evaluate 执行门控规则。画像或内容为 nil 时以空值参与求值。
func (r *GateRule) Evaluate(mlScore float64, profile *core.UserProfile, content *core.Content) (bool, error) {
	userMap := map[string]any{
		"user_id":           "",
		"interests":         []string{},
		"interaction_count": 0,
	}
	if profile != nil {
		userMap["user_id"] = profile.UserID
		userMap["interests"] = profile.Interests
		userMap["interaction_count"] = profile.InteractionCount
	}

	contentMap := map[string]any{
		"content_id": "",
		"title":      "",
		"category":   "",
		"tags":       []string{},
	}
	if content != nil {
		contentMap["content_id"] = content.ID
		contentMap["title"] = content.Title
		contentMap["category"] = content.Category
		contentMap["tags"] = content.Tags
	}

	out, _, err := r.prg.Eval(map[string]any{
		"ml_score": mlScore,
		"user":     userMap,
		"content":  contentMap,
	})
	if err != nil {
		return false, fmt.Errorf("eval gate rule %q: %w", r.expr, err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("gate rule %q returned non-bool %T", r.expr, out.Value())
	}
	return result, nil
}

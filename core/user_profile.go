package core

import (
	"context"
	"time"
)

// UserProfile 是用户画像的核心抽象。
//
// 一句话定义：用户画像 = 评分链路的"上下文 + 决策信号"
//
// 它不属于某一个组件，而是：
//   - 由交互历史聚合而来（feature 包）
//   - 驱动 Oracle 评分的提示词构建
//   - 可缓存（user_profile:{user_id}，TTL 为推荐缓存的 2 倍）
type UserProfile struct {
	UserID string `json:"user_id"`

	// Interests 是兴趣类目（从交互过的内容类目聚合，长期信号）
	Interests []string `json:"interests"`

	// InteractionCount 是历史交互总数（活跃度信号）
	InteractionCount int `json:"interaction_count"`

	// UpdateTime 是画像构建时间
	UpdateTime time.Time `json:"update_time"`
}

// NewUserProfile 创建一个新的用户画像。
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:     userID,
		Interests:  make([]string, 0),
		UpdateTime: time.Now(),
	}
}

// ProfileProvider 是用户画像的领域接口。
//
// 实现：
//   - feature.Service：从交互存储聚合（默认）
//   - feature.FeastProvider：从 Feast Feature Store 在线特征获取（可选）
type ProfileProvider interface {
	// Profile 获取用户画像。用户不存在时返回空画像而非错误。
	Profile(ctx context.Context, userID string) (*UserProfile, error)
}

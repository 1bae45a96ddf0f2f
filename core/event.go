package core

import (
	"fmt"
	"time"
)

// InteractionKind 是用户与内容的交互类型。
type InteractionKind string

const (
	InteractionView  InteractionKind = "view"  // 浏览
	InteractionLike  InteractionKind = "like"  // 点赞
	InteractionSave  InteractionKind = "save"  // 收藏
	InteractionShare InteractionKind = "share" // 分享
)

// Valid 判断交互类型是否合法。
func (k InteractionKind) Valid() bool {
	switch k {
	case InteractionView, InteractionLike, InteractionSave, InteractionShare:
		return true
	}
	return false
}

// Weight 返回交互类型的隐式反馈权重，用于冷启动训练。
// 点赞/分享是强信号，收藏次之，浏览最弱。
func (k InteractionKind) Weight() float64 {
	switch k {
	case InteractionLike, InteractionShare:
		return 1.0
	case InteractionSave:
		return 0.8
	case InteractionView:
		return 0.5
	default:
		return 0.5
	}
}

// InteractionEvent 是消息源投递的原始交互事件。
//
// 事件在入口处校验（Validate），进入管道后视为可信数据。
// Timestamp 序列化为 ISO-8601 字符串（RFC3339）。
type InteractionEvent struct {
	UserID          string          `json:"user_id"`
	ContentID       string          `json:"content_id"`
	InteractionType InteractionKind `json:"interaction_type"`
	DurationSeconds int             `json:"duration_seconds"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	Timestamp       time.Time       `json:"timestamp"`
}

// Validate 校验事件字段，失败时返回 INVALID_INPUT 领域错误。
func (e *InteractionEvent) Validate() error {
	if e.UserID == "" {
		return NewDomainError(ModuleIngest, ErrorCodeInvalidInput, "event: user_id is required")
	}
	if e.ContentID == "" {
		return NewDomainError(ModuleIngest, ErrorCodeInvalidInput, "event: content_id is required")
	}
	if !e.InteractionType.Valid() {
		return NewDomainError(ModuleIngest, ErrorCodeInvalidInput,
			fmt.Sprintf("event: unknown interaction_type %q", e.InteractionType))
	}
	if e.DurationSeconds < 0 {
		return NewDomainError(ModuleIngest, ErrorCodeInvalidInput, "event: duration_seconds must be >= 0")
	}
	return nil
}

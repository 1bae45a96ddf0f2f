package core

import (
	"fmt"
	"time"
)

// Recommendation 是 (user, content) 维度的一条推荐结果。
//
// 不变式：
//   - CombinedScore 始终存在且在 [0,1]
//   - LLMScore 仅在 Oracle 被咨询且成功时存在
//   - (UserID, ContentID) 唯一，重算时整行覆盖（upsert），不追加
type Recommendation struct {
	UserID        string    `json:"user_id" db:"user_id"`
	ContentID     string    `json:"content_id" db:"content_id"`
	MLScore       float64   `json:"ml_score" db:"ml_score"`
	LLMScore      *float64  `json:"llm_score,omitempty" db:"llm_score"`
	CombinedScore float64   `json:"combined_score" db:"combined_score"`
	ComputedAt    time.Time `json:"computed_at" db:"computed_at"`
}

// 缓存 key 约定

// RecommendationCacheKey 返回用户推荐列表的缓存 key。
func RecommendationCacheKey(userID string) string {
	return fmt.Sprintf("recommendations:%s", userID)
}

// UserProfileCacheKey 返回用户画像的缓存 key。
func UserProfileCacheKey(userID string) string {
	return fmt.Sprintf("user_profile:%s", userID)
}

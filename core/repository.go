package core

import (
	"context"
	"time"
)

// WeightedInteraction 是按 (user, content) 聚合后的交互频次，用于构建训练三元组。
type WeightedInteraction struct {
	UserID    string `db:"user_id"`
	ContentID string `db:"content_id"`
	Count     int    `db:"interaction_count"`
}

// InteractionStore 是交互历史的持久化领域接口。
//
// 实现：
//   - store.PostgresInteractionStore（生产）
//   - store.MemoryInteractionStore（测试/开发）
type InteractionStore interface {
	// InsertBatch 以单个事务批量写入交互。
	// 以 (user_id, content_id, interaction_type, created_at) 为自然键做冲突忽略，
	// 整批要么全部提交、要么全部回滚。
	InsertBatch(ctx context.Context, events []*InteractionEvent) error

	// DistinctUserIDs 返回出现过交互的全部用户 id。
	DistinctUserIDs(ctx context.Context) ([]string, error)

	// RecentWeighted 返回 since 之后的交互，按 (user, content) 分组计数。
	RecentWeighted(ctx context.Context, since time.Time) ([]WeightedInteraction, error)

	// CountByUser 返回用户的历史交互总数。
	CountByUser(ctx context.Context, userID string) (int, error)

	// CategoriesByUser 返回用户交互过的内容类目（去重，最多 limit 个）。
	CategoriesByUser(ctx context.Context, userID string, limit int) ([]string, error)
}

// ContentStore 是内容元信息的持久化领域接口。
type ContentStore interface {
	// ListIDs 返回全部内容 id。
	ListIDs(ctx context.Context) ([]string, error)

	// Get 返回单个内容，不存在时返回 NOT_FOUND 领域错误。
	Get(ctx context.Context, contentID string) (*Content, error)
}

// RecommendationStore 是推荐结果的持久化领域接口。
type RecommendationStore interface {
	// UpsertBatch 以单个事务批量 upsert 推荐行。
	// 以 (user_id, content_id) 为唯一键，后写覆盖先写（last-write-wins）。
	UpsertBatch(ctx context.Context, recs []*Recommendation) error

	// ListByUser 按 combined_score 降序返回用户的推荐，最多 limit 条。
	ListByUser(ctx context.Context, userID string, limit int) ([]*Recommendation, error)
}

package store

// 注意：此包只包含实现，接口定义在 core 包。
// 缓存使用 core.Store 接口；持久化使用 core.InteractionStore /
// core.ContentStore / core.RecommendationStore 接口。
//
// 示例：
//   var cache core.Store = NewMemoryStore()
//   interactions := NewPostgresInteractionStore(db, logger)
//   contents := NewPostgresContentStore(db, logger)
//   recommendations := NewPostgresRecommendationStore(db, logger)

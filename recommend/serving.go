package recommend

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/contextiq/contextiq/core"
)

// DefaultServeTTL 是推荐列表缓存的默认存活秒数
const DefaultServeTTL = 300

// DefaultServeLimit 是单次读取返回的默认条数
const DefaultServeLimit = 10

// Summary 是面向读取端的推荐条目，附带内容标题便于展示。
type Summary struct {
	ContentID     string   `json:"content_id"`
	Title         string   `json:"title,omitempty"`
	Category      string   `json:"category,omitempty"`
	MLScore       float64  `json:"ml_score"`
	LLMScore      *float64 `json:"llm_score,omitempty"`
	CombinedScore float64  `json:"combined_score"`
}

// Service 提供 cache-aside 的推荐读取：
// 命中缓存直接返回，否则回源数据库按 combined_score 降序取 top-N 并回填缓存。
// 缓存读写失败都不阻断请求，只记日志。
type Service struct {
	Recommendations core.RecommendationStore
	Contents        core.ContentStore // 可为 nil（不补标题）
	Cache           core.Store        // 可为 nil（直连回源）
	TTL             int               // 秒，<=0 用 DefaultServeTTL
	Log             *zap.Logger
}

func (s *Service) logger() *zap.Logger {
	if s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}

// TopForUser 返回用户的 top-N 推荐。第二个返回值标记是否命中缓存。
func (s *Service) TopForUser(ctx context.Context, userID string, n int) ([]Summary, bool, error) {
	if n <= 0 {
		n = DefaultServeLimit
	}
	key := core.RecommendationCacheKey(userID)

	if s.Cache != nil {
		raw, err := s.Cache.Get(ctx, key)
		if err == nil {
			var cached []Summary
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, true, nil
			}
			s.logger().Warn("cached recommendations malformed", zap.String("user_id", userID))
		} else if !core.IsStoreNotFound(err) {
			s.logger().Warn("recommendation cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
	}

	recs, err := s.Recommendations.ListByUser(ctx, userID, n)
	if err != nil {
		return nil, false, fmt.Errorf("list recommendations: %w", err)
	}

	out := make([]Summary, 0, len(recs))
	for _, rec := range recs {
		item := Summary{
			ContentID:     rec.ContentID,
			MLScore:       rec.MLScore,
			LLMScore:      rec.LLMScore,
			CombinedScore: rec.CombinedScore,
		}
		if s.Contents != nil {
			if content, err := s.Contents.Get(ctx, rec.ContentID); err == nil {
				item.Title = content.Title
				item.Category = content.Category
			}
		}
		out = append(out, item)
	}

	if s.Cache != nil && len(out) > 0 {
		ttl := s.TTL
		if ttl <= 0 {
			ttl = DefaultServeTTL
		}
		if data, err := json.Marshal(out); err == nil {
			if err := s.Cache.Set(ctx, key, data, ttl); err != nil {
				s.logger().Warn("recommendation cache write failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}
	return out, false, nil
}

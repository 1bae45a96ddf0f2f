// Package feature 聚合用户画像：兴趣类目 + 活跃度信号。
package feature

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/contextiq/contextiq/core"
)

// DefaultProfileTTL 是画像缓存的默认 TTL 秒数（推荐缓存 TTL 的 2 倍）。
const DefaultProfileTTL = 600

// DefaultInterestLimit 是画像中兴趣类目的上限。
const DefaultInterestLimit = 10

// Service 从交互存储聚合用户画像，并写入缓存。
//
// 画像内容：
//   - Interests：用户交互过的内容类目（去重，最多 10 个）
//   - InteractionCount：历史交互总数
//
// 缓存 key：user_profile:{user_id}，TTL 默认 600 秒。
// 缓存读写失败都只记日志，画像退回实时聚合，不影响评分链路。
type Service struct {
	interactions core.InteractionStore
	cache        core.Store // 可为 nil（无缓存）
	ttl          int
	log          *zap.Logger
}

func NewService(interactions core.InteractionStore, cache core.Store, ttl int, logger *zap.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultProfileTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		interactions: interactions,
		cache:        cache,
		ttl:          ttl,
		log:          logger,
	}
}

// Profile 获取用户画像，优先读缓存。无交互的用户得到空画像而非错误。
func (s *Service) Profile(ctx context.Context, userID string) (*core.UserProfile, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, core.UserProfileCacheKey(userID)); err == nil {
			var profile core.UserProfile
			if err := json.Unmarshal(data, &profile); err == nil {
				return &profile, nil
			}
			s.log.Warn("malformed cached profile", zap.String("user_id", userID))
		}
	}

	profile, err := s.build(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(profile); err == nil {
			if err := s.cache.Set(ctx, core.UserProfileCacheKey(userID), data, s.ttl); err != nil {
				s.log.Warn("cache profile failed", zap.String("user_id", userID), zap.Error(err))
			}
		}
	}
	return profile, nil
}

func (s *Service) build(ctx context.Context, userID string) (*core.UserProfile, error) {
	count, err := s.interactions.CountByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	interests, err := s.interactions.CategoriesByUser(ctx, userID, DefaultInterestLimit)
	if err != nil {
		return nil, err
	}

	profile := core.NewUserProfile(userID)
	profile.InteractionCount = count
	if interests != nil {
		profile.Interests = interests
	}
	profile.UpdateTime = time.Now()
	return profile, nil
}

var _ core.ProfileProvider = (*Service)(nil)

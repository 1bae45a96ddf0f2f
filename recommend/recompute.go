// Package recommend 实现推荐结果的全量重算与读取服务。
package recommend

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/contextiq/contextiq/core"
	"github.com/contextiq/contextiq/model"
	"github.com/contextiq/contextiq/rank"
)

// Recomputer 在一次重训完成后，为每个用户对全量内容重算推荐并落库。
//
// 评分链路（每个 (user, content) 对）：
//  1. 嵌入模型给出 ml_score（只读预测）
//  2. GatePolicy 决定是否咨询 Oracle（每对至多一次，不重试）
//  3. HybridScorer 融合为 combined_score
//  4. 整个用户的行集以单事务 upsert，后写覆盖先写
//  5. 用户级缓存恰好失效一次（非逐内容）
//
// 用户之间可并发（模型预测只读），MaxConcurrent 控制并发度；
// 重算与重训的串行化由 ingest 的单一事件循环保证。
//
// 注意：全量 (user × content) 重算对目录规模是平方的；类目很大时
// 可换成 top-k 近邻短名单，存储语义不变。
type Recomputer struct {
	Model           *model.EmbeddingModel
	Scorer          *rank.HybridScorer
	Gate            *rank.GatePolicy
	Oracle          core.RelevanceOracle // 可为 nil（纯 ML 评分）
	Profiles        core.ProfileProvider // 可为 nil
	Contents        core.ContentStore
	Recommendations core.RecommendationStore
	Cache           core.Store // 可为 nil

	// MaxConcurrent 是并发重算的用户数上限（默认 4）
	MaxConcurrent int

	Log *zap.Logger
}

func (r *Recomputer) logger() *zap.Logger {
	if r.Log == nil {
		return zap.NewNop()
	}
	return r.Log
}

// RecomputeAll 为给定用户集重算推荐。
// 单个用户失败只影响该用户（记日志并继续），最终汇总为一个错误返回，
// 由编排层决定重试或放弃。
func (r *Recomputer) RecomputeAll(ctx context.Context, userIDs []string) error {
	contentIDs, err := r.Contents.ListIDs(ctx)
	if err != nil {
		return fmt.Errorf("list content ids: %w", err)
	}
	if len(userIDs) == 0 || len(contentIDs) == 0 {
		r.logger().Info("nothing to recompute",
			zap.Int("users", len(userIDs)), zap.Int("contents", len(contentIDs)))
		return nil
	}

	// 内容元信息预加载一次，供 Oracle 提示词复用
	contents := make(map[string]*core.Content, len(contentIDs))
	for _, cid := range contentIDs {
		content, err := r.Contents.Get(ctx, cid)
		if err != nil {
			r.logger().Warn("content lookup failed", zap.String("content_id", cid), zap.Error(err))
			continue
		}
		contents[cid] = content
	}

	maxConcurrent := r.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	failed := make(chan string, len(userIDs))
	for _, userID := range userIDs {
		uid := userID
		eg.Go(func() error {
			if err := r.RecomputeUser(ctx, uid, contentIDs, contents); err != nil {
				r.logger().Error("recompute user failed", zap.String("user_id", uid), zap.Error(err))
				failed <- uid
			}
			return nil
		})
	}
	_ = eg.Wait()
	close(failed)

	if n := len(failed); n > 0 {
		return fmt.Errorf("recompute: %d/%d users failed", n, len(userIDs))
	}
	return nil
}

// RecomputeUser 为单个用户重算全量推荐。
func (r *Recomputer) RecomputeUser(ctx context.Context, userID string, contentIDs []string, contents map[string]*core.Content) error {
	scores := r.Model.PredictScores(userID, contentIDs)

	var profile *core.UserProfile
	if r.Profiles != nil {
		var err error
		profile, err = r.Profiles.Profile(ctx, userID)
		if err != nil {
			// 画像缺失不阻断评分，Oracle 提示词退化为空画像
			r.logger().Warn("profile lookup failed", zap.String("user_id", userID), zap.Error(err))
			profile = core.NewUserProfile(userID)
		}
	}

	now := time.Now()
	recs := make([]*core.Recommendation, 0, len(contentIDs))
	for _, cid := range contentIDs {
		mlScore := scores[cid]

		var llmScore *float64
		if r.Oracle != nil && r.Oracle.Available() && r.Gate.ShouldConsult(mlScore, profile, contents[cid]) {
			if v, ok := r.Oracle.Score(ctx, profile, contents[cid]); ok {
				llmScore = &v
			}
		}

		recs = append(recs, &core.Recommendation{
			UserID:        userID,
			ContentID:     cid,
			MLScore:       mlScore,
			LLMScore:      llmScore,
			CombinedScore: r.Scorer.Blend(mlScore, llmScore),
			ComputedAt:    now,
		})
	}

	if err := r.Recommendations.UpsertBatch(ctx, recs); err != nil {
		return fmt.Errorf("upsert recommendations: %w", err)
	}

	// 用户级缓存恰好失效一次，下次读取回源取新结果
	if r.Cache != nil {
		if err := r.Cache.Delete(ctx, core.RecommendationCacheKey(userID)); err != nil {
			r.logger().Warn("cache invalidation failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return nil
}

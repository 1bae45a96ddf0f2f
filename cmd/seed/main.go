// seed 工具：建表、写入演示数据并做一次冷启动训练与推荐重算，
// 让新环境无需等待第一个重训周期就有可读的推荐结果。
package main

import (
	"context"
	"flag"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/contextiq/contextiq/config"
	"github.com/contextiq/contextiq/core"
	"github.com/contextiq/contextiq/feature"
	"github.com/contextiq/contextiq/model"
	"github.com/contextiq/contextiq/rank"
	"github.com/contextiq/contextiq/recommend"
	"github.com/contextiq/contextiq/store"
)

var demoContents = []*core.Content{
	{ID: "content-001", Title: "Understanding Distributed Consensus", Category: "technology", Tags: []string{"distributed-systems", "raft"}},
	{ID: "content-002", Title: "A Field Guide to Sourdough", Category: "cooking", Tags: []string{"baking", "fermentation"}},
	{ID: "content-003", Title: "Vector Databases in Production", Category: "technology", Tags: []string{"ml", "infrastructure"}},
	{ID: "content-004", Title: "Trail Running for Beginners", Category: "fitness", Tags: []string{"running", "outdoors"}},
	{ID: "content-005", Title: "The Economics of Streaming", Category: "business", Tags: []string{"media", "economics"}},
	{ID: "content-006", Title: "Index Structures Beyond B-Trees", Category: "technology", Tags: []string{"databases", "storage"}},
	{ID: "content-007", Title: "Meal Prep Without the Boredom", Category: "cooking", Tags: []string{"nutrition", "planning"}},
	{ID: "content-008", Title: "Strength Training at Home", Category: "fitness", Tags: []string{"strength", "home"}},
}

// 用户 → (内容, 交互类型) 的演示行为，交互类型权重决定冷启动目标分
var demoInteractions = map[string][]struct {
	contentID string
	kind      core.InteractionKind
}{
	"alice": {
		{"content-001", core.InteractionLike},
		{"content-003", core.InteractionSave},
		{"content-006", core.InteractionView},
		{"content-001", core.InteractionShare},
	},
	"bob": {
		{"content-002", core.InteractionLike},
		{"content-007", core.InteractionSave},
		{"content-004", core.InteractionView},
	},
	"carol": {
		{"content-004", core.InteractionLike},
		{"content-008", core.InteractionShare},
		{"content-003", core.InteractionView},
		{"content-005", core.InteractionView},
	},
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := store.NewPostgresDB(cfg.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer db.Close()
	if err := store.EnsureSchema(ctx, db); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}

	interactions := store.NewPostgresInteractionStore(db, logger)
	contents := store.NewPostgresContentStore(db, logger)
	recommendations := store.NewPostgresRecommendationStore(db, logger)

	for _, c := range demoContents {
		if err := contents.Upsert(ctx, c); err != nil {
			logger.Fatal("seed content", zap.String("content_id", c.ID), zap.Error(err))
		}
	}
	events := buildEvents()
	if err := interactions.InsertBatch(ctx, events); err != nil {
		logger.Fatal("seed interactions", zap.Error(err))
	}
	logger.Info("demo data written",
		zap.Int("contents", len(demoContents)), zap.Int("interactions", len(events)))

	// 冷启动训练：目标分直接取交互类型权重
	embModel := model.NewEmbeddingModel(cfg.Model.Dim)
	userIDs := make([]string, 0, len(demoInteractions))
	for uid := range demoInteractions {
		userIDs = append(userIDs, uid)
	}
	contentIDs := make([]string, 0, len(demoContents))
	for _, c := range demoContents {
		contentIDs = append(contentIDs, c.ID)
	}
	embModel.InitializeEmbeddings(userIDs, contentIDs)

	var triples []model.Triple
	for uid, acts := range demoInteractions {
		ui, _ := embModel.UserIndex(uid)
		for _, act := range acts {
			ci, ok := embModel.ContentIndex(act.contentID)
			if !ok {
				continue
			}
			triples = append(triples, model.Triple{UserIdx: ui, ContentIdx: ci, Weight: act.kind.Weight()})
		}
	}
	_, finalLoss, err := embModel.TrainOnInteractions(triples, cfg.Model.LearningRate, cfg.Model.Epochs)
	if err != nil {
		logger.Fatal("cold-start training", zap.Error(err))
	}
	logger.Info("cold-start model trained",
		zap.Int("triples", len(triples)), zap.Float64("final_loss", finalLoss))

	// 纯 ML 重算，不接 Oracle 和缓存
	recomputer := &recommend.Recomputer{
		Model:           embModel,
		Scorer:          rank.NewHybridScorer(),
		Gate:            rank.NewGatePolicy(),
		Profiles:        feature.NewService(interactions, nil, cfg.Cache.ProfileTTL, logger),
		Contents:        contents,
		Recommendations: recommendations,
		Log:             logger,
	}
	if err := recomputer.RecomputeAll(ctx, userIDs); err != nil {
		logger.Fatal("recompute recommendations", zap.Error(err))
	}
	logger.Info("seed complete", zap.Int("users", len(userIDs)))
}

func buildEvents() []*core.InteractionEvent {
	now := time.Now().UTC()
	var events []*core.InteractionEvent
	i := 0
	for uid, acts := range demoInteractions {
		for _, act := range acts {
			i++
			events = append(events, &core.InteractionEvent{
				UserID:          uid,
				ContentID:       act.contentID,
				InteractionType: act.kind,
				DurationSeconds: 30 * i,
				Timestamp:       now.Add(-time.Duration(i) * time.Minute),
			})
		}
	}
	return events
}

func loadConfig(path string, logger *zap.Logger) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("config file not found, using defaults", zap.String("path", path))
		return config.Default(), nil
	}
	return config.Load(path)
}

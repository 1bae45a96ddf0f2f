// consumer 进程：消费交互事件、批量落库、周期重训并重算推荐。
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/contextiq/contextiq/config"
	"github.com/contextiq/contextiq/core"
	"github.com/contextiq/contextiq/feature"
	"github.com/contextiq/contextiq/ingest"
	"github.com/contextiq/contextiq/model"
	"github.com/contextiq/contextiq/oracle"
	"github.com/contextiq/contextiq/pkg/dsl"
	"github.com/contextiq/contextiq/rank"
	"github.com/contextiq/contextiq/recommend"
	"github.com/contextiq/contextiq/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the YAML config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := loadConfig(*configPath, logger)
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	var cache core.Store
	if redisStore, err := store.NewRedisStore(cfg.Redis.Addr, cfg.Redis.DB); err != nil {
		logger.Warn("redis unavailable, running without cache", zap.Error(err))
	} else {
		cache = redisStore
		defer redisStore.Close()
	}

	embModel := model.NewEmbeddingModel(cfg.Model.Dim)

	gate := rank.NewGatePolicy()
	gate.Threshold = cfg.Rank.GateThreshold
	if cfg.Rank.GateRule != "" {
		rule, err := dsl.CompileGate(cfg.Rank.GateRule)
		if err != nil {
			logger.Fatal("compile gate rule", zap.String("rule", cfg.Rank.GateRule), zap.Error(err))
		}
		gate.Rule = rule
	}

	var relevance core.RelevanceOracle
	if key := cfg.OracleAPIKey(); key != "" {
		relevance = oracle.New(key, cfg.Oracle.Model, cfg.Oracle.Timeout.Std(), logger)
		logger.Info("relevance oracle enabled")
	} else {
		logger.Info("relevance oracle disabled, scoring with model only")
	}

	profiles, err := buildProfileProvider(cfg, interactions, cache, logger)
	if err != nil {
		logger.Fatal("profile provider", zap.Error(err))
	}

	recomputer := &recommend.Recomputer{
		Model: embModel,
		Scorer: &rank.HybridScorer{
			MLWeight:  cfg.Rank.MLWeight,
			LLMWeight: cfg.Rank.LLMWeight,
		},
		Gate:            gate,
		Oracle:          relevance,
		Profiles:        profiles,
		Contents:        contents,
		Recommendations: recommendations,
		Cache:           cache,
		MaxConcurrent:   cfg.Pipeline.MaxConcurrent,
		Log:             logger,
	}

	source, err := ingest.NewKafkaSource(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.Group, logger)
	if err != nil {
		logger.Fatal("kafka source", zap.Error(err))
	}
	defer source.Close()

	ingestor := &ingest.Ingestor{
		Source:          source,
		Interactions:    interactions,
		Contents:        contents,
		Model:           embModel,
		Recomputer:      recomputer,
		BufferSize:      cfg.Pipeline.BufferSize,
		RetrainInterval: cfg.Pipeline.RetrainInterval,
		RecencyWindow:   cfg.Pipeline.RecencyWindow.Std(),
		LearningRate:    cfg.Model.LearningRate,
		Epochs:          cfg.Model.Epochs,
		Log:             logger,
	}

	if err := ingestor.Run(ctx); err != nil {
		logger.Fatal("ingestor exited", zap.Error(err))
	}
	logger.Info("consumer shut down")
}

func loadConfig(path string, logger *zap.Logger) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("config file not found, using defaults", zap.String("path", path))
		return config.Default(), nil
	}
	return config.Load(path)
}

func buildProfileProvider(cfg *config.Config, interactions core.InteractionStore, cache core.Store, logger *zap.Logger) (core.ProfileProvider, error) {
	if cfg.Feast.Enabled {
		return feature.NewFeastProvider(cfg.Feast.Host, cfg.Feast.Port, cfg.Feast.Project, logger)
	}
	return feature.NewService(interactions, cache, cfg.Cache.ProfileTTL, logger), nil
}

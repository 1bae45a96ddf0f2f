// api 进程：HTTP 接入层，事件写入走 Kafka，推荐读取走 cache-aside。
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/contextiq/contextiq/api"
	"github.com/contextiq/contextiq/config"
	"github.com/contextiq/contextiq/core"
	"github.com/contextiq/contextiq/feature"
	"github.com/contextiq/contextiq/ingest"
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
		logger.Warn("redis unavailable, serving without cache", zap.Error(err))
	} else {
		cache = redisStore
		defer redisStore.Close()
	}

	producer, err := ingest.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic, logger)
	if err != nil {
		logger.Fatal("kafka producer", zap.Error(err))
	}
	defer producer.Close()

	server := &api.Server{
		Publisher: producer,
		Recs: &recommend.Service{
			Recommendations: recommendations,
			Contents:        contents,
			Cache:           cache,
			TTL:             cfg.Cache.RecommendationTTL,
			Log:             logger,
		},
		Profiles: feature.NewService(interactions, cache, cfg.Cache.ProfileTTL, logger),
		Cache:    cache,
		Log:      logger,
	}

	if err := server.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		logger.Fatal("http server", zap.Error(err))
	}
	logger.Info("api server shut down")
}

func loadConfig(path string, logger *zap.Logger) (*config.Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warn("config file not found, using defaults", zap.String("path", path))
		return config.Default(), nil
	}
	return config.Load(path)
}

package main

import (
	"context"
	"log"
	"os"

	"rhema/internal/api"
	"rhema/internal/auth"
	"rhema/internal/config"
	"rhema/internal/docstore"
	"rhema/internal/logger"
	"rhema/internal/profile"
	"rhema/internal/rag"
	"rhema/internal/redis"
	"rhema/internal/service/ai"
	"rhema/internal/service/devotional"
	"rhema/internal/service/embedding"
	"rhema/internal/storage"
	"rhema/internal/worker"

	"github.com/gin-gonic/gin"
)

func main() {
	cfgPath := os.Getenv("RHEMA_CONFIG")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.RequireCredentials(); err != nil {
		log.Fatalf("%v", err)
	}
	appLog, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer appLog.Sync()

	db, err := storage.Open(cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	// Create necessary tables: documents, profiles, daily_rhemas, prayers
	if err := storage.Migrate(db, cfg.Database.Driver, cfg.AI.EmbedDimension); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	rdb, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		log.Fatalf("create redis client: %v", err)
	}
	if rdb != nil {
		defer rdb.Close()
	}

	ctx := context.Background()
	gemini, err := embedding.NewGeminiEmbedder(ctx, cfg.AI.APIKey, cfg.AI.EmbedModel, cfg.AI.EmbedDimension)
	if err != nil {
		log.Fatalf("init embedder: %v", err)
	}
	embedder := embedding.NewCachedEmbedder(gemini.WithTaskType("RETRIEVAL_QUERY"), rdb, gemini.Model()+":query", appLog)

	store, err := docstore.New(db, cfg.Database.Driver, cfg.AI.EmbedDimension)
	if err != nil {
		log.Fatalf("init document store: %v", err)
	}
	profiles := profile.NewCachedStore(profile.NewSQLStore(db, cfg.Database.Driver), rdb, appLog)

	providerCfg, err := cfg.ProviderFor("")
	if err != nil {
		log.Fatalf("%v", err)
	}
	generator, err := ai.NewService(ctx, cfg.AI.Provider, providerCfg)
	if err != nil {
		log.Fatalf("init generator: %v", err)
	}

	pipeline, err := rag.NewPipeline(embedder, store, generator, profiles,
		rag.WithRetrieval(cfg.Retrieval.MatchThreshold, cfg.Retrieval.MatchCount),
		rag.WithLogger(appLog),
	)
	if err != nil {
		log.Fatalf("init pipeline: %v", err)
	}

	authService := auth.NewService(cfg.Auth.JWTSecret, rdb, appLog)
	if !authService.Enabled() {
		appLog.Warn("RHEMA_JWT_SECRET not set; every caller is anonymous")
	}
	dispatcher := worker.NewDispatcher(worker.DispatcherConfig{
		MaxWorkers: cfg.Server.MaxStreams,
		QueueSize:  cfg.Server.QueueSize,
	}, rdb, appLog)

	handlers := api.NewHandler(api.Deps{
		Pipeline:     pipeline,
		Devotions:    devotional.NewService(db, cfg.Database.Driver, generator, profiles, appLog),
		Profiles:     profiles,
		Auth:         authService,
		Streams:      dispatcher,
		Timeout:      cfg.RequestTimeout(),
		AllowOrigins: cfg.Server.AllowOrigins,
		Logger:       appLog,
	})

	router := gin.Default()
	handlers.RegisterRoutes(router)

	appLog.Info("server starting", "address", cfg.Server.Address, "model", generator.Model(), "driver", cfg.Database.Driver)
	if err := router.Run(cfg.Server.Address); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

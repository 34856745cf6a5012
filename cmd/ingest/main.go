package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"rhema/internal/config"
	"rhema/internal/docstore"
	"rhema/internal/ingest"
	"rhema/internal/logger"
	"rhema/internal/redis"
	"rhema/internal/service/embedding"
	"rhema/internal/storage"
)

func main() {
	var (
		cfgPath = flag.String("config", os.Getenv("RHEMA_CONFIG"), "Path to config file (JSON or YAML)")
		dir     = flag.String("dir", "", "Library folder to ingest (defaults to ingest.library_dir)")
		seed    = flag.Bool("seed", false, "Also store the built-in doctrine and verse bank")
		watch   = flag.Bool("watch", false, "Keep running and ingest files added to the library folder")
		reset   = flag.Bool("reset", false, "Delete every stored chunk before ingesting")
	)
	flag.Parse()

	if err := run(*cfgPath, *dir, *seed, *watch, *reset); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run(cfgPath, dir string, seed, watch, reset bool) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}
	if dir == "" {
		dir = cfg.Ingest.LibraryDir
	}

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	if err := storage.Migrate(db, cfg.Database.Driver, cfg.AI.EmbedDimension); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	store, err := docstore.New(db, cfg.Database.Driver, cfg.AI.EmbedDimension)
	if err != nil {
		return err
	}

	rdb, err := redis.NewRedisClient(cfg.Redis)
	if err != nil {
		return fmt.Errorf("create redis client: %w", err)
	}
	defer rdb.Close()

	gemini, err := embedding.NewGeminiEmbedder(ctx, cfg.AI.APIKey, cfg.AI.EmbedModel, cfg.AI.EmbedDimension)
	if err != nil {
		return err
	}
	embedder := embedding.NewCachedEmbedder(gemini.WithTaskType("RETRIEVAL_DOCUMENT"), rdb, gemini.Model()+":document", log)

	loader, err := ingest.NewFileLoader(ctx)
	if err != nil {
		return err
	}
	ingestor, err := ingest.New(ingest.Options{
		Embedder:  embedder,
		Store:     store,
		Loader:    loader,
		ChunkSize: cfg.Ingest.ChunkSize,
		Overlap:   cfg.Ingest.Overlap,
		Delay:     cfg.RateLimit(),
		Out:       os.Stdout,
		Logger:    log,
	})
	if err != nil {
		return err
	}

	if reset {
		if err := store.Clear(ctx); err != nil {
			return fmt.Errorf("clear documents: %w", err)
		}
		fmt.Println("Cleared existing documents.")
	}

	fmt.Println("Starting ingestion...")
	report, err := ingestor.IngestDir(ctx, dir)
	if err != nil {
		return err
	}
	if seed {
		fr, err := ingestor.Seed(ctx, ingest.DoctrineBank())
		if err != nil {
			return err
		}
		report.Files = append(report.Files, fr)
	}
	total, _ := store.Count(ctx)
	fmt.Printf("Ingestion complete. Stored %d chunks, skipped %d (%d in library).\n", report.Stored(), report.Skipped(), total)
	for _, name := range report.FailedFiles {
		fmt.Printf("  - Could not read: %s\n", name)
	}

	if watch {
		return ingestor.Watch(ctx, dir, 0)
	}
	return nil
}

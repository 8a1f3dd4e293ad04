package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"productimages/internal/catalog"
	"productimages/internal/images"
	"productimages/internal/ingest"
	"productimages/internal/jobs"
	"productimages/internal/logger"
	"productimages/internal/models"
	"productimages/internal/queue"
	"productimages/internal/server"
	"productimages/internal/storage"
	"productimages/internal/watermark"
)

func main() {
	path := "config.yaml"
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		path = p
	}
	cfg, err := models.LoadConfig(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer lg.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		kv  storage.KV
		cat catalog.Catalog
	)
	if cfg.DatabaseURL != "" {
		db, err := storage.NewStorage(ctx, cfg.DatabaseURL, lg)
		if err != nil {
			lg.Fatal("failed to init storage", "error", err)
		}
		defer db.Close()
		kv = db

		pg, err := catalog.NewPostgres(cfg.DatabaseURL, cfg.CatalogTable)
		if err != nil {
			lg.Fatal("failed to init catalog", "error", err)
		}
		defer pg.Close()
		cat = pg
	} else {
		lg.Warn("database_url is empty, using in-memory storage and an empty catalog")
		kv = storage.NewMemoryKV()
		cat = catalog.NewMemory()
	}

	blobs := storage.NewLocalBlobs(cfg.StoragePath)
	store := images.NewStore(kv, blobs, cat, lg)
	if err := store.Load(ctx); err != nil {
		lg.Fatal("failed to load images", "error", err)
	}

	compositor, err := watermark.New(watermark.NewBlobLogoLoader(blobs), lg)
	if err != nil {
		lg.Fatal("failed to init watermark compositor", "error", err)
	}
	ingestor := ingest.New(store, blobs, cat, *cfg, lg)
	tracker := jobs.NewTracker()

	deps := server.Deps{
		Store:      store,
		Ingestor:   ingestor,
		Catalog:    cat,
		Blobs:      blobs,
		Compositor: compositor,
		Settings:   watermark.NewSettingsStore(kv),
		Tracker:    tracker,
	}

	var producer *queue.Producer
	if cfg.KafkaBroker != "" && cfg.KafkaTopic != "" {
		producer = queue.NewProducer(cfg.KafkaBroker, cfg.KafkaTopic)
		deps.Publisher = producer

		// Archive jobs are consumed in the background.
		runner := jobs.NewRunner(tracker, ingestor, blobs, lg)
		go func() {
			reader := queue.NewReader(cfg.KafkaBroker, cfg.KafkaTopic, cfg.KafkaGroup)
			defer reader.Close()
			if err := queue.Consume(ctx, reader, runner.Handle, lg); err != nil {
				lg.Error("archive consumer stopped", "error", err)
			}
		}()
	} else {
		lg.Warn("kafka is not configured, archives are ingested synchronously")
	}

	srv := server.NewServer(cfg, deps, lg)
	go func() {
		if err := srv.Start(); err != nil {
			lg.Fatal("failed to start server", "error", err)
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	if err := srv.Stop(shutdownCtx); err != nil {
		lg.Error("server shutdown", "error", err)
	}
	if producer != nil {
		if err := producer.Close(); err != nil {
			lg.Error("producer close", "error", err)
		}
	}
}

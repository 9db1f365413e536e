package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kotaro/photoinsight/internal/codec"
	"github.com/kotaro/photoinsight/internal/config"
	applog "github.com/kotaro/photoinsight/internal/logger"
	"github.com/kotaro/photoinsight/internal/progress"
	"github.com/kotaro/photoinsight/internal/repository"
	"github.com/kotaro/photoinsight/internal/service"
)

func main() {
	var (
		dir          = flag.String("dir", "", "Directory to index (required unless -classify-only)")
		classify     = flag.Bool("classify", false, "Run season classification after indexing")
		classifyOnly = flag.Bool("classify-only", false, "Skip indexing, only classify already-indexed photos")
		configPath   = flag.String("config", "", "Path to config file")
	)
	flag.Parse()

	if *dir == "" && !*classifyOnly {
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := applog.NewFromEnv(applog.LoadFromEnv())
	applog.SetDefaultLogger(logger)
	defer applog.Sync()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}
	photoRepo := repository.NewPhotoRepository(db)

	qdrantRepo, err := repository.NewQdrantRepository(&repository.QdrantConnectionConfig{
		Host:            cfg.Qdrant.Host,
		Port:            cfg.Qdrant.Port,
		Collection:      cfg.Qdrant.Collection,
		APIKey:          cfg.Qdrant.APIKey,
		UseTLS:          cfg.Qdrant.UseTLS,
		VectorDimension: cfg.Qdrant.Dimension,
	}, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize Qdrant repository")
	}
	defer qdrantRepo.Close()

	// Cancel the run on Ctrl-C; the pipelines stop between items
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to ensure Qdrant collection")
	}

	imageCodec := codec.New(cfg.Indexer.MaxImageDim)
	opts := &service.IndexerOptions{
		Pace: time.Duration(cfg.Indexer.PaceMs) * time.Millisecond,
	}
	obs := progress.NewLogObserver(logger)

	if !*classifyOnly {
		embeddingService := service.NewEmbeddingService(&service.EmbeddingConfig{
			Model:      cfg.Embedding.Model,
			BaseURL:    cfg.Embedding.BaseURL,
			APIKey:     cfg.Embedding.APIKey,
			Dimensions: cfg.Embedding.Dimensions,
		}, imageCodec, logger)

		if err := embeddingService.Ping(ctx); err != nil {
			logger.WithError(err).Fatal("Embedding endpoint unreachable")
		}

		indexer := service.NewIndexerService(photoRepo, qdrantRepo, embeddingService, logger, opts)
		stats, err := indexer.IndexDirectory(ctx, *dir, obs)
		if err != nil {
			logger.WithError(err).Fatal("Indexing run failed")
		}
		fmt.Printf("Indexed %d of %d images (%d skipped, %d failed)\n",
			stats.Indexed, stats.Total, stats.Skipped, stats.Failed)
	}

	if *classify || *classifyOnly {
		classifierService := service.NewClassifierService(&service.ClassifierConfig{
			Model:   cfg.Classifier.Model,
			BaseURL: cfg.Classifier.BaseURL,
			APIKey:  cfg.Classifier.APIKey,
		}, imageCodec, logger)

		seasons := service.NewSeasonService(photoRepo, classifierService, logger, opts)
		stats, err := seasons.ClassifyAll(ctx, obs)
		if err != nil {
			logger.WithError(err).Fatal("Classification run failed")
		}
		fmt.Printf("Classified %d of %d images (%d already labeled, %d failed)\n",
			stats.Classified, stats.Total, stats.Duplicates, stats.Failed)
	}
}

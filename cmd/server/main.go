package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kotaro/photoinsight/internal/api"
	"github.com/kotaro/photoinsight/internal/codec"
	"github.com/kotaro/photoinsight/internal/config"
	applog "github.com/kotaro/photoinsight/internal/logger"
	"github.com/kotaro/photoinsight/internal/repository"
	"github.com/kotaro/photoinsight/internal/service"
	"github.com/kotaro/photoinsight/internal/storage"
	"github.com/kotaro/photoinsight/internal/ws"
)

func main() {
	// Support CONFIG_PATH environment variable for production deployments
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger := applog.NewFromEnv(applog.LoadFromEnv())
	applog.SetDefaultLogger(logger)
	defer applog.Sync()

	// Initialize database
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

	ctx := context.Background()
	if err := qdrantRepo.EnsureCollection(ctx); err != nil {
		logger.WithError(err).Fatal("Failed to ensure Qdrant collection")
	}

	// Initialize thumbnail cache storage
	objectStorage, err := storage.NewStorage(&cfg.Storage)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize storage")
	}
	if s3Store, ok := objectStorage.(*storage.S3Storage); ok {
		if err := s3Store.EnsureBucket(ctx); err != nil {
			logger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}

	// Shared codec for provider payloads
	imageCodec := codec.New(cfg.Indexer.MaxImageDim)

	// Initialize providers
	embeddingService := service.NewEmbeddingService(&service.EmbeddingConfig{
		Model:      cfg.Embedding.Model,
		BaseURL:    cfg.Embedding.BaseURL,
		APIKey:     cfg.Embedding.APIKey,
		Dimensions: cfg.Embedding.Dimensions,
	}, imageCodec, logger)

	// The embedding endpoint is a hard dependency: without it every index
	// run would fail item by item
	if err := embeddingService.Ping(ctx); err != nil {
		logger.WithError(err).Fatal("Embedding endpoint unreachable")
	}

	classifierService := service.NewClassifierService(&service.ClassifierConfig{
		Model:   cfg.Classifier.Model,
		BaseURL: cfg.Classifier.BaseURL,
		APIKey:  cfg.Classifier.APIKey,
	}, imageCodec, logger)

	// Initialize pipelines
	opts := &service.IndexerOptions{
		Pace: time.Duration(cfg.Indexer.PaceMs) * time.Millisecond,
	}
	indexerService := service.NewIndexerService(photoRepo, qdrantRepo, embeddingService, logger, opts)
	seasonService := service.NewSeasonService(photoRepo, classifierService, logger, opts)
	thumbnailService := service.NewThumbnailService(photoRepo, objectStorage, logger)

	// Progress hub
	hub := ws.NewHub(logger)
	go hub.Run()
	defer hub.Shutdown()

	router := api.SetupRouter(api.RouterDeps{
		Photos:     photoRepo,
		Vectors:    qdrantRepo,
		Indexer:    indexerService,
		Seasons:    seasonService,
		Thumbnails: thumbnailService,
		Hub:        hub,
		Logger:     logger,
	}, &cfg.Server)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

package service

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kotaro/photoinsight/internal/logger"
	"github.com/kotaro/photoinsight/internal/progress"
	"github.com/kotaro/photoinsight/internal/repository"
)

// VectorStore persists embeddings keyed by an opaque id. AddVector reports
// failure as false instead of an error so one bad item cannot abort a batch.
type VectorStore interface {
	AddVector(ctx context.Context, vector []float32, id string) bool
	Count(ctx context.Context) (uint64, error)
}

// supportedExtensions lists accepted image extensions, lower case.
var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// IndexerService drives the ingestion pipeline: discover files, create
// metadata rows, generate embeddings, and link the two stores.
type IndexerService struct {
	photos  *repository.PhotoRepository
	vectors VectorStore
	embed   Embedder
	logger  *logger.Logger
	pace    time.Duration
}

// IndexerOptions holds tuning knobs for the indexer.
type IndexerOptions struct {
	// Pace is the fixed delay between items, keeping the progress event
	// transport from being flooded. Zero disables pacing.
	Pace time.Duration
}

// NewIndexerService creates a new indexer service.
// Parameters:
//   - photos: metadata store.
//   - vectors: embedding store.
//   - embed: embedding provider.
//   - log: structured logger; nil uses the default.
//   - opts: tuning options; nil uses defaults.
// Returns:
//   - *IndexerService: initialized pipeline.
func NewIndexerService(
	photos *repository.PhotoRepository,
	vectors VectorStore,
	embed Embedder,
	log *logger.Logger,
	opts *IndexerOptions,
) *IndexerService {
	if log == nil {
		log = logger.GetDefault()
	}
	pace := 50 * time.Millisecond
	if opts != nil {
		pace = opts.Pace
	}
	return &IndexerService{
		photos:  photos,
		vectors: vectors,
		embed:   embed,
		logger:  log,
		pace:    pace,
	}
}

// IndexStats holds counters for one ingestion run.
type IndexStats struct {
	Total     int
	Indexed   int
	Skipped   int
	Failed    int
	StartTime time.Time
	EndTime   time.Time
}

// IndexDirectory scans root recursively for supported images and indexes
// each one: metadata row first, then embedding, then vector write, and only
// then the vector reference on the row. Per-item failures leave the row
// without a vector reference so a later run retries it. The observer receives
// a status event per item and a completion event at the end; a batch-level
// failure (unreadable root, cancellation) is reported through the error event
// and the run stops early with all prior work persisted.
// Parameters:
//   - ctx: context checked between items for cooperative cancellation.
//   - root: directory to scan.
//   - obs: progress observer; nil discards events.
// Returns:
//   - *IndexStats: counters for the run, also valid on early termination.
//   - error: non-nil on batch-level failure.
func (s *IndexerService) IndexDirectory(ctx context.Context, root string, obs progress.Observer) (*IndexStats, error) {
	if obs == nil {
		obs = progress.Nop
	}

	stats := &IndexStats{StartTime: time.Now()}

	s.logger.WithField("directory", root).Info("Starting indexing run")
	obs.Notify(progress.Status(progress.EventIndexingStatus, fmt.Sprintf("Scanning directory: %s", root)))

	files, err := discoverImages(root)
	if err != nil {
		s.logger.WithField("directory", root).WithError(err).Error("Directory scan failed")
		obs.Notify(progress.Failure(fmt.Sprintf("Directory scan failed: %v", err)))
		return stats, err
	}

	stats.Total = len(files)
	obs.Notify(progress.Status(progress.EventIndexingStatus, fmt.Sprintf("Found %d images, starting processing", stats.Total)))

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			obs.Notify(progress.Failure("Indexing canceled"))
			stats.EndTime = time.Now()
			return stats, err
		}

		obs.Notify(progress.Status(progress.EventIndexingStatus,
			fmt.Sprintf("(%d/%d) Processing: %s", i+1, stats.Total, filepath.Base(path))))

		switch s.indexOne(ctx, path) {
		case indexOutcomeDone:
			stats.Indexed++
			obs.Notify(progress.Found(path))
		case indexOutcomeSkipped:
			stats.Skipped++
		case indexOutcomeFailed:
			stats.Failed++
		}

		s.sleep(ctx)
	}

	stats.EndTime = time.Now()

	logger.With(logger.Fields{
		"total":   stats.Total,
		"indexed": stats.Indexed,
		"skipped": stats.Skipped,
		"failed":  stats.Failed,
		logger.FieldDurationMs: stats.EndTime.Sub(stats.StartTime).Milliseconds(),
	}).Info(ctx, "Indexing run completed")

	obs.Notify(progress.Status(progress.EventIndexingComplete,
		fmt.Sprintf("All images processed: %d indexed, %d skipped, %d failed", stats.Indexed, stats.Skipped, stats.Failed)))

	return stats, nil
}

type indexOutcome int

const (
	indexOutcomeDone indexOutcome = iota
	indexOutcomeSkipped
	indexOutcomeFailed
)

// indexOne runs the per-file state machine. The vector write strictly
// precedes attaching the reference: a row must never claim an embedding
// entry that does not exist.
func (s *IndexerService) indexOne(ctx context.Context, path string) indexOutcome {
	log := s.logger.WithField(logger.FieldPhoto, path)

	photo, err := s.photos.GetByPath(ctx, path)
	if err != nil {
		log.WithError(err).Error("Failed to look up photo record")
		return indexOutcomeFailed
	}

	if photo != nil && photo.FullyIndexed() {
		log.Debug("Photo already fully indexed, skipping")
		return indexOutcomeSkipped
	}

	if photo == nil {
		photo, err = s.photos.CreateBase(ctx, path)
		if err != nil {
			log.WithError(err).Error("Failed to create photo record")
			return indexOutcomeFailed
		}
	}

	vector := s.embed.EmbedImage(ctx, path)
	if vector == nil {
		// Already logged by the provider; the row stays retryable
		return indexOutcomeFailed
	}

	vectorID := uuid.New().String()
	if !s.vectors.AddVector(ctx, vector, vectorID) {
		log.WithField("vector_id", vectorID).Error("Vector store rejected embedding, leaving record retryable")
		return indexOutcomeFailed
	}

	if err := s.photos.AttachVectorID(ctx, photo, vectorID); err != nil {
		log.WithError(err).Error("Failed to attach vector id")
		return indexOutcomeFailed
	}

	log.WithField("vector_id", vectorID).Info("Indexed new photo")
	return indexOutcomeDone
}

// sleep pauses between items without outliving the context.
func (s *IndexerService) sleep(ctx context.Context) {
	if s.pace <= 0 {
		return
	}
	t := time.NewTimer(s.pace)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// discoverImages walks root recursively, collecting files with a supported
// extension (case-insensitive) in traversal order.
func discoverImages(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if supportedExtensions[strings.ToLower(filepath.Ext(path))] {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

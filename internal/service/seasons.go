package service

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/kotaro/photoinsight/internal/logger"
	"github.com/kotaro/photoinsight/internal/progress"
	"github.com/kotaro/photoinsight/internal/repository"
)

// SeasonService drives the classification pipeline: iterate fully-indexed
// photos and record season memberships.
type SeasonService struct {
	photos   *repository.PhotoRepository
	classify SeasonClassifier
	logger   *logger.Logger
	pace     time.Duration
}

// NewSeasonService creates a new season classification service.
// Parameters:
//   - photos: metadata store.
//   - classify: season classifier provider.
//   - log: structured logger; nil uses the default.
//   - opts: tuning options shared with the indexer; nil uses defaults.
// Returns:
//   - *SeasonService: initialized pipeline.
func NewSeasonService(
	photos *repository.PhotoRepository,
	classify SeasonClassifier,
	log *logger.Logger,
	opts *IndexerOptions,
) *SeasonService {
	if log == nil {
		log = logger.GetDefault()
	}
	pace := 50 * time.Millisecond
	if opts != nil {
		pace = opts.Pace
	}
	return &SeasonService{
		photos:   photos,
		classify: classify,
		logger:   log,
		pace:     pace,
	}
}

// ClassifyStats holds counters for one classification run.
type ClassifyStats struct {
	Total      int
	Classified int
	Duplicates int
	Failed     int
	StartTime  time.Time
	EndTime    time.Time
}

// ClassifyAll labels every fully-indexed photo with a season and records the
// membership. Membership writes are idempotent, so the run can be repeated
// over the same corpus; an already-present pair is counted as a duplicate and
// logged at notice level only. Per-item failures (no label, store error) are
// logged and the batch continues. A store failure while listing photos is a
// batch-level error: reported through the error event, run ends early with
// prior memberships persisted.
// Parameters:
//   - ctx: context checked between items for cooperative cancellation.
//   - obs: progress observer; nil discards events.
// Returns:
//   - *ClassifyStats: counters for the run, also valid on early termination.
//   - error: non-nil on batch-level failure.
func (s *SeasonService) ClassifyAll(ctx context.Context, obs progress.Observer) (*ClassifyStats, error) {
	if obs == nil {
		obs = progress.Nop
	}

	stats := &ClassifyStats{StartTime: time.Now()}

	s.logger.Info("Starting season classification run")
	obs.Notify(progress.Status(progress.EventClassificationStatus, "Classification run started"))

	photos, err := s.photos.ListFullyIndexed(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to list indexed photos")
		obs.Notify(progress.Failure(fmt.Sprintf("Failed to load indexed photos: %v", err)))
		return stats, err
	}

	stats.Total = len(photos)
	obs.Notify(progress.Status(progress.EventClassificationStatus,
		fmt.Sprintf("Found %d images to classify", stats.Total)))

	for i, photo := range photos {
		if err := ctx.Err(); err != nil {
			obs.Notify(progress.Failure("Classification canceled"))
			stats.EndTime = time.Now()
			return stats, err
		}

		obs.Notify(progress.Status(progress.EventClassificationStatus,
			fmt.Sprintf("(%d/%d) Classifying: %s", i+1, stats.Total, filepath.Base(photo.Path))))

		log := s.logger.WithField(logger.FieldPhoto, photo.Path)

		season, ok := s.classify.ClassifySeason(ctx, photo.Path)
		if !ok {
			// Cause already logged by the provider
			stats.Failed++
			s.sleep(ctx)
			continue
		}

		_, created, err := s.photos.AddSeasonMembership(ctx, season, photo.ID)
		switch {
		case err != nil:
			log.WithField(logger.FieldSeason, string(season)).WithError(err).Error("Failed to record season membership")
			stats.Failed++
		case created:
			log.WithField(logger.FieldSeason, string(season)).Info("Recorded season membership")
			stats.Classified++
		default:
			log.WithField(logger.FieldSeason, string(season)).Debug("Photo already in season set")
			stats.Duplicates++
		}

		s.sleep(ctx)
	}

	stats.EndTime = time.Now()

	logger.With(logger.Fields{
		"total":      stats.Total,
		"classified": stats.Classified,
		"duplicates": stats.Duplicates,
		"failed":     stats.Failed,
		logger.FieldDurationMs: stats.EndTime.Sub(stats.StartTime).Milliseconds(),
	}).Info(ctx, "Classification run completed")

	obs.Notify(progress.Status(progress.EventClassificationComplete,
		fmt.Sprintf("Season classification finished: %d classified, %d already labeled, %d failed",
			stats.Classified, stats.Duplicates, stats.Failed)))

	return stats, nil
}

func (s *SeasonService) sleep(ctx context.Context) {
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

package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/kotaro/photoinsight/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSourceVanished is returned by CreateBase when the file disappeared
// between discovery and stat. Callers treat it as a per-item skip.
var ErrSourceVanished = errors.New("source file vanished")

// ErrVectorIDConflict is returned by AttachVectorID when the record already
// carries a different vector reference. Correct pipeline sequencing never
// triggers this; it guards against double-indexing bugs.
var ErrVectorIDConflict = errors.New("photo already has a different vector id")

// PhotoRepository handles photo metadata operations.
type PhotoRepository struct {
	db *gorm.DB
}

// NewPhotoRepository creates a new PhotoRepository.
// Parameters:
//   - db: GORM database handle used for queries.
// Returns:
//   - *PhotoRepository: repository instance bound to db.
func NewPhotoRepository(db *gorm.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

// GetByPath retrieves a photo by its absolute file path.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: absolute file path.
// Returns:
//   - *domain.Photo: photo record if found, nil when no record exists.
//   - error: non-nil if the lookup fails for a reason other than not-found.
func (r *PhotoRepository) GetByPath(ctx context.Context, path string) (*domain.Photo, error) {
	var photo domain.Photo
	err := r.db.WithContext(ctx).First(&photo, "path = ?", path).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &photo, nil
}

// CreateBase inserts a base metadata row for a newly discovered file,
// deriving filename, size and timestamps from the filesystem at call time.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: absolute file path.
// Returns:
//   - *domain.Photo: created record without a vector reference.
//   - error: ErrSourceVanished when the stat fails, otherwise a DB error.
func (r *PhotoRepository) CreateBase(ctx context.Context, path string) (*domain.Photo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSourceVanished, path)
	}

	photo := &domain.Photo{
		Path:      path,
		Filename:  filepath.Base(path),
		SizeMB:    roundMB(info.Size()),
		CreatedAt: info.ModTime(),
		IndexedAt: time.Now().UTC(),
	}
	if err := r.db.WithContext(ctx).Create(photo).Error; err != nil {
		return nil, fmt.Errorf("failed to create photo record: %w", err)
	}
	return photo, nil
}

// roundMB converts a byte count to megabytes rounded to two decimals.
func roundMB(size int64) float64 {
	return math.Round(float64(size)/(1024*1024)*100) / 100
}

// AttachVectorID records the embedding reference on an existing photo row.
// Attaching the same id twice is a no-op; a different existing id returns
// ErrVectorIDConflict.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - photo: photo record to update.
//   - vectorID: opaque id of the stored embedding entry.
// Returns:
//   - error: non-nil if the guard trips or the update fails.
func (r *PhotoRepository) AttachVectorID(ctx context.Context, photo *domain.Photo, vectorID string) error {
	if photo.VectorID != nil && *photo.VectorID != "" {
		if *photo.VectorID == vectorID {
			return nil
		}
		return fmt.Errorf("%w: photo=%d existing=%s new=%s", ErrVectorIDConflict, photo.ID, *photo.VectorID, vectorID)
	}

	if err := r.db.WithContext(ctx).Model(photo).Update("vector_id", vectorID).Error; err != nil {
		return fmt.Errorf("failed to attach vector id: %w", err)
	}
	photo.VectorID = &vectorID
	return nil
}

// ListAll retrieves every photo row regardless of indexed state, in insertion
// order.
func (r *PhotoRepository) ListAll(ctx context.Context) ([]domain.Photo, error) {
	var photos []domain.Photo
	if err := r.db.WithContext(ctx).Order("id").Find(&photos).Error; err != nil {
		return nil, err
	}
	return photos, nil
}

// ListFullyIndexed retrieves photos that have a vector reference, in insertion
// order.
func (r *PhotoRepository) ListFullyIndexed(ctx context.Context) ([]domain.Photo, error) {
	var photos []domain.Photo
	if err := r.db.WithContext(ctx).
		Where("vector_id IS NOT NULL AND vector_id <> ''").
		Order("id").
		Find(&photos).Error; err != nil {
		return nil, err
	}
	return photos, nil
}

// GetByID retrieves a photo by its ID.
func (r *PhotoRepository) GetByID(ctx context.Context, id uint) (*domain.Photo, error) {
	var photo domain.Photo
	if err := r.db.WithContext(ctx).First(&photo, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &photo, nil
}

// AddSeasonMembership asserts that a photo belongs to a season's set. The
// operation is idempotent: re-adding an existing (season, photo) pair returns
// the stored row with created=false instead of erroring.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - season: canonical season value.
//   - photoID: photo row id.
// Returns:
//   - *domain.SeasonMembership: stored membership row.
//   - bool: true when a new row was inserted by this call.
//   - error: non-nil if persistence fails.
func (r *PhotoRepository) AddSeasonMembership(ctx context.Context, season domain.Season, photoID uint) (*domain.SeasonMembership, bool, error) {
	membership := &domain.SeasonMembership{
		Season:    season,
		PhotoID:   photoID,
		CreatedAt: time.Now().UTC(),
	}

	res := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "season"}, {Name: "photo_id"}},
		DoNothing: true,
	}).Create(membership)
	if res.Error != nil {
		return nil, false, fmt.Errorf("failed to add season membership: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return membership, true, nil
	}

	// Conflict path: fetch the existing row
	var existing domain.SeasonMembership
	if err := r.db.WithContext(ctx).
		First(&existing, "season = ? AND photo_id = ?", season, photoID).Error; err != nil {
		return nil, false, fmt.Errorf("failed to load existing membership: %w", err)
	}
	return &existing, false, nil
}

// ListSeasonMembers retrieves photos belonging to a season with pagination,
// joined against the membership table in membership insertion order.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - season: canonical season value.
//   - limit: maximum number of records to return.
//   - offset: number of records to skip.
// Returns:
//   - []domain.Photo: member photos.
//   - error: non-nil if the query fails.
func (r *PhotoRepository) ListSeasonMembers(ctx context.Context, season domain.Season, limit, offset int) ([]domain.Photo, error) {
	var photos []domain.Photo
	if err := r.db.WithContext(ctx).
		Joins("JOIN season_photos ON season_photos.photo_id = images.id").
		Where("season_photos.season = ?", season).
		Order("season_photos.id").
		Limit(limit).
		Offset(offset).
		Find(&photos).Error; err != nil {
		return nil, err
	}
	return photos, nil
}

// CountPhotos counts all photo rows.
func (r *PhotoRepository) CountPhotos(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Photo{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountFullyIndexed counts photos carrying a vector reference.
func (r *PhotoRepository) CountFullyIndexed(ctx context.Context) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.Photo{}).
		Where("vector_id IS NOT NULL AND vector_id <> ''").
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// CountSeasonMembers counts membership rows for one season.
func (r *PhotoRepository) CountSeasonMembers(ctx context.Context, season domain.Season) (int64, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&domain.SeasonMembership{}).
		Where("season = ?", season).
		Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

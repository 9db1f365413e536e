package service

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/kotaro/photoinsight/internal/codec"
	"github.com/kotaro/photoinsight/internal/logger"
	"github.com/kotaro/photoinsight/internal/repository"
	"github.com/kotaro/photoinsight/internal/storage"
)

// ThumbnailMaxDimension bounds the longest edge of cached thumbnails.
const ThumbnailMaxDimension = 256

// ThumbnailService renders and caches small JPEG previews of indexed photos.
// Thumbnails are keyed by photo ID in object storage and rendered lazily on
// first request.
type ThumbnailService struct {
	photos *repository.PhotoRepository
	store  storage.ObjectStorage
	codec  *codec.Codec
	logger *logger.Logger
}

// NewThumbnailService creates a new thumbnail service.
// Parameters:
//   - photos: metadata store used to resolve photo IDs to paths.
//   - store: object storage backend for the thumbnail cache.
//   - log: structured logger; nil uses the default.
// Returns:
//   - *ThumbnailService: initialized service.
func NewThumbnailService(
	photos *repository.PhotoRepository,
	store storage.ObjectStorage,
	log *logger.Logger,
) *ThumbnailService {
	if log == nil {
		log = logger.GetDefault()
	}
	return &ThumbnailService{
		photos: photos,
		store:  store,
		codec:  codec.New(ThumbnailMaxDimension),
		logger: log,
	}
}

func thumbnailKey(photoID uint) string {
	return fmt.Sprintf("thumbnails/%d.jpg", photoID)
}

// Get returns the JPEG thumbnail for a photo, rendering and caching it on the
// first request. A cache read failure falls through to a fresh render; a cache
// write failure is logged and the thumbnail is still returned.
// Parameters:
//   - ctx: request context.
//   - photoID: photo primary key.
// Returns:
//   - []byte: JPEG thumbnail bytes.
//   - error: non-nil if the photo is unknown or the source cannot be rendered.
func (s *ThumbnailService) Get(ctx context.Context, photoID uint) ([]byte, error) {
	key := thumbnailKey(photoID)

	exists, err := s.store.Exists(ctx, key)
	if err != nil {
		s.logger.WithError(err).Warn("Thumbnail cache lookup failed")
	}
	if err == nil && exists {
		rc, err := s.store.Download(ctx, key)
		if err == nil {
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err == nil {
				return data, nil
			}
			s.logger.WithError(err).Warn("Thumbnail cache read failed, re-rendering")
		}
	}

	photo, err := s.photos.GetByID(ctx, photoID)
	if err != nil {
		return nil, err
	}
	if photo == nil {
		return nil, fmt.Errorf("photo %d not found", photoID)
	}

	data, err := s.codec.EncodeJPEG(photo.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to render thumbnail: %w", err)
	}

	if err := s.store.Upload(ctx, key, bytes.NewReader(data), int64(len(data)), "image/jpeg"); err != nil {
		s.logger.WithField(logger.FieldPhoto, photo.Path).WithError(err).Warn("Failed to cache thumbnail")
	}

	return data, nil
}

// Invalidate drops a photo's cached thumbnail.
func (s *ThumbnailService) Invalidate(ctx context.Context, photoID uint) error {
	return s.store.Delete(ctx, thumbnailKey(photoID))
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/kotaro/photoinsight/internal/domain"
	"github.com/kotaro/photoinsight/internal/repository"
	"github.com/kotaro/photoinsight/internal/service"
)

// PhotoHandler handles photo catalog endpoints.
type PhotoHandler struct {
	photos     *repository.PhotoRepository
	thumbnails *service.ThumbnailService
}

// NewPhotoHandler creates a new photo handler.
// Parameters:
//   - photos: metadata store.
//   - thumbnails: thumbnail render/cache service.
// Returns:
//   - *PhotoHandler: initialized handler.
func NewPhotoHandler(photos *repository.PhotoRepository, thumbnails *service.ThumbnailService) *PhotoHandler {
	return &PhotoHandler{
		photos:     photos,
		thumbnails: thumbnails,
	}
}

// ListPhotos handles GET /api/v1/photos. Only fully indexed photos are
// returned; rows awaiting a retry stay invisible to browsing clients.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PhotoHandler) ListPhotos(c *gin.Context) {
	photos, err := h.photos.ListFullyIndexed(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list photos: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"total":  len(photos),
		"photos": photos,
	})
}

// ListSeasonPhotos handles GET /api/v1/seasons/:season/photos.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PhotoHandler) ListSeasonPhotos(c *gin.Context) {
	season, ok := domain.ParseSeason(c.Param("season"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Unknown season: " + c.Param("season"),
		})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	photos, err := h.photos.ListSeasonMembers(c.Request.Context(), season, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list season photos: " + err.Error(),
		})
		return
	}

	total, err := h.photos.CountSeasonMembers(c.Request.Context(), season)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to count season photos: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"season": season,
		"total":  total,
		"limit":  limit,
		"offset": offset,
		"photos": photos,
	})
}

// GetThumbnail handles GET /api/v1/photos/:id/thumbnail.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JPEG response).
func (h *PhotoHandler) GetThumbnail(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid photo ID",
		})
		return
	}

	data, err := h.thumbnails.Get(c.Request.Context(), uint(id))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Thumbnail not available",
		})
		return
	}

	c.Header("Cache-Control", "public, max-age=86400")
	c.Data(http.StatusOK, "image/jpeg", data)
}

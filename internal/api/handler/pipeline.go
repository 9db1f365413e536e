package handler

import (
	"context"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/kotaro/photoinsight/internal/domain"
	"github.com/kotaro/photoinsight/internal/logger"
	"github.com/kotaro/photoinsight/internal/progress"
	"github.com/kotaro/photoinsight/internal/repository"
	"github.com/kotaro/photoinsight/internal/service"
)

// PipelineHandler triggers indexing and classification runs and reports
// catalog statistics. Runs execute in the background; progress streams to the
// observer (normally the websocket hub). A single run of either kind may be
// active at a time.
type PipelineHandler struct {
	indexer *service.IndexerService
	seasons *service.SeasonService
	photos  *repository.PhotoRepository
	vectors service.VectorStore
	obs     progress.Observer
	logger  *logger.Logger

	// running guards against concurrent pipeline runs
	running sync.Mutex
}

// NewPipelineHandler creates a new pipeline handler.
// Parameters:
//   - indexer: directory indexing pipeline.
//   - seasons: season classification pipeline.
//   - photos: metadata store for stats.
//   - vectors: vector store for stats.
//   - obs: progress observer for background runs.
//   - log: structured logger; nil uses the default.
// Returns:
//   - *PipelineHandler: initialized handler.
func NewPipelineHandler(
	indexer *service.IndexerService,
	seasons *service.SeasonService,
	photos *repository.PhotoRepository,
	vectors service.VectorStore,
	obs progress.Observer,
	log *logger.Logger,
) *PipelineHandler {
	if log == nil {
		log = logger.GetDefault()
	}
	if obs == nil {
		obs = progress.Nop
	}
	return &PipelineHandler{
		indexer: indexer,
		seasons: seasons,
		photos:  photos,
		vectors: vectors,
		obs:     obs,
		logger:  log,
	}
}

// IndexRequest is the payload for POST /api/v1/index.
type IndexRequest struct {
	Directory string `json:"directory" binding:"required"`
}

// StartIndex handles POST /api/v1/index. The scan runs in the background and
// reports through the progress stream; the response only acknowledges the
// start. A second trigger while a run is active returns 409.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PipelineHandler) StartIndex(c *gin.Context) {
	var req IndexRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	if !h.running.TryLock() {
		c.JSON(http.StatusConflict, gin.H{
			"error": "A pipeline run is already in progress",
		})
		return
	}

	runID := uuid.New().String()
	go func() {
		defer h.running.Unlock()

		ctx := logger.SetRunID(context.Background(), runID)
		if _, err := h.indexer.IndexDirectory(ctx, req.Directory, h.obs); err != nil {
			logger.CtxError(ctx, "Indexing run failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"status": "started",
		"run_id": runID,
	})
}

// StartClassify handles POST /api/v1/classify. Same background-run contract
// as StartIndex.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PipelineHandler) StartClassify(c *gin.Context) {
	if !h.running.TryLock() {
		c.JSON(http.StatusConflict, gin.H{
			"error": "A pipeline run is already in progress",
		})
		return
	}

	runID := uuid.New().String()
	go func() {
		defer h.running.Unlock()

		ctx := logger.SetRunID(context.Background(), runID)
		if _, err := h.seasons.ClassifyAll(ctx, h.obs); err != nil {
			logger.CtxError(ctx, "Classification run failed: %v", err)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"status": "started",
		"run_id": runID,
	})
}

// GetStats handles GET /api/v1/stats.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *PipelineHandler) GetStats(c *gin.Context) {
	ctx := c.Request.Context()

	total, err := h.photos.CountPhotos(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to count photos: " + err.Error(),
		})
		return
	}

	indexed, err := h.photos.CountFullyIndexed(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to count indexed photos: " + err.Error(),
		})
		return
	}

	seasonCounts := make(map[string]int64, len(domain.Seasons()))
	for _, season := range domain.Seasons() {
		count, err := h.photos.CountSeasonMembers(ctx, season)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to count season members: " + err.Error(),
			})
			return
		}
		seasonCounts[string(season)] = count
	}

	stats := gin.H{
		"total_photos":   total,
		"indexed_photos": indexed,
		"seasons":        seasonCounts,
	}

	// Vector count is best-effort: the store may be down while metadata is fine
	if vectors, err := h.vectors.Count(ctx); err == nil {
		stats["vector_count"] = vectors
	} else {
		h.logger.WithError(err).Warn("Failed to count vectors for stats")
	}

	c.JSON(http.StatusOK, stats)
}

package api

import (
	"github.com/gin-gonic/gin"
	"github.com/kotaro/photoinsight/internal/api/handler"
	"github.com/kotaro/photoinsight/internal/api/middleware"
	"github.com/kotaro/photoinsight/internal/config"
	"github.com/kotaro/photoinsight/internal/logger"
	"github.com/kotaro/photoinsight/internal/repository"
	"github.com/kotaro/photoinsight/internal/service"
	"github.com/kotaro/photoinsight/internal/ws"
)

// RouterDeps bundles the services the HTTP layer exposes.
type RouterDeps struct {
	Photos     *repository.PhotoRepository
	Vectors    service.VectorStore
	Indexer    *service.IndexerService
	Seasons    *service.SeasonService
	Thumbnails *service.ThumbnailService
	Hub        *ws.Hub
	Logger     *logger.Logger
}

// SetupRouter configures the Gin router with all routes
func SetupRouter(deps RouterDeps, cfg *config.ServerConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware(deps.Logger))
	r.Use(middleware.CORS(middleware.CORSConfig{
		AllowedOrigins:  cfg.CORS.AllowedOrigins,
		AllowAllOrigins: cfg.CORS.AllowAllOrigins,
	}))

	healthHandler := handler.NewHealthHandler()
	photoHandler := handler.NewPhotoHandler(deps.Photos, deps.Thumbnails)
	pipelineHandler := handler.NewPipelineHandler(
		deps.Indexer,
		deps.Seasons,
		deps.Photos,
		deps.Vectors,
		deps.Hub,
		deps.Logger,
	)

	// Health check
	r.GET("/health", healthHandler.Health)

	// Progress stream
	r.GET("/ws", func(c *gin.Context) {
		ws.HandleWebSocket(deps.Hub, c.Writer, c.Request)
	})

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		// Pipelines
		v1.POST("/index", pipelineHandler.StartIndex)
		v1.POST("/classify", pipelineHandler.StartClassify)

		// Catalog
		v1.GET("/photos", photoHandler.ListPhotos)
		v1.GET("/photos/:id/thumbnail", photoHandler.GetThumbnail)
		v1.GET("/seasons/:season/photos", photoHandler.ListSeasonPhotos)

		// Stats
		v1.GET("/stats", pipelineHandler.GetStats)
	}

	return r
}

package service

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/kotaro/photoinsight/internal/codec"
	"github.com/kotaro/photoinsight/internal/logger"
)

// Embedder produces a fixed-length embedding for an image file. A nil result
// means the item failed and should be skipped; implementations never raise
// past this boundary.
type Embedder interface {
	EmbedImage(ctx context.Context, path string) []float32
}

// EmbeddingService generates image embeddings through a local model server
// exposing an OpenAI-compatible embeddings endpoint.
type EmbeddingService struct {
	client     *resty.Client
	codec      *codec.Codec
	model      string
	baseURL    string
	dimensions int
	logger     *logger.Logger
}

// EmbeddingConfig holds configuration for the embedding service.
type EmbeddingConfig struct {
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
}

// NewEmbeddingService creates a new embedding service.
// Parameters:
//   - cfg: embedding configuration including model name and endpoint.
//   - c: image codec used to prepare files for transmission.
//   - log: structured logger; nil uses the default.
// Returns:
//   - *EmbeddingService: initialized client wrapper.
func NewEmbeddingService(cfg *EmbeddingConfig, c *codec.Codec, log *logger.Logger) *EmbeddingService {
	client := resty.New()
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	client.SetHeader("Content-Type", "application/json")

	if log == nil {
		log = logger.GetDefault()
	}
	if c == nil {
		c = codec.New(0)
	}

	return &EmbeddingService{
		client:     client,
		codec:      c,
		model:      cfg.Model,
		baseURL:    cfg.BaseURL,
		dimensions: cfg.Dimensions,
		logger:     log,
	}
}

// GetModel returns the model name being used.
func (s *EmbeddingService) GetModel() string {
	return s.model
}

// Dimensions returns the configured vector dimensionality.
func (s *EmbeddingService) Dimensions() int {
	return s.dimensions
}

// OpenAI-compatible embeddings request/response structures
type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Ping verifies the model server is reachable. Nothing downstream can work
// without embeddings, so callers treat a Ping failure as fatal at startup.
// Parameters:
//   - ctx: context for cancellation and deadlines.
// Returns:
//   - error: non-nil when the server cannot be reached.
func (s *EmbeddingService) Ping(ctx context.Context) error {
	resp, err := s.client.R().
		SetContext(ctx).
		Get(s.baseURL + "/models")
	if err != nil {
		return fmt.Errorf("embedding server unreachable: %w", err)
	}
	if resp.StatusCode() >= 500 {
		return fmt.Errorf("embedding server unhealthy: HTTP %d", resp.StatusCode())
	}
	return nil
}

// EmbedImage generates an embedding for the image at path. Every per-call
// failure (missing file, decode error, inference error) is logged and
// reported as nil so the caller can skip the item; the row stays eligible
// for retry on a later run.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: image file path.
// Returns:
//   - []float32: embedding vector, or nil on failure.
func (s *EmbeddingService) EmbedImage(ctx context.Context, path string) []float32 {
	jpegData, err := s.codec.EncodeJPEG(path)
	if err != nil {
		s.logger.WithField(logger.FieldPhoto, path).WithError(err).Error("Failed to prepare image for embedding")
		return nil
	}

	req := embeddingRequest{
		Model:      s.model,
		Input:      []string{codec.DataURL(jpegData)},
		Dimensions: s.dimensions,
	}

	var resp embeddingResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.baseURL + "/embeddings")

	if err != nil {
		s.logger.WithField(logger.FieldPhoto, path).WithError(err).Error("Failed to call embedding API")
		return nil
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		msg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			msg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		}
		s.logger.WithField(logger.FieldPhoto, path).Error("Embedding API returned error: " + msg)
		return nil
	}

	if len(resp.Data) == 0 {
		s.logger.WithField(logger.FieldPhoto, path).Error("Embedding API returned no data")
		return nil
	}

	return resp.Data[0].Embedding
}

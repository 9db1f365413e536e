package service

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kotaro/photoinsight/internal/codec"
	"github.com/kotaro/photoinsight/internal/domain"
	"github.com/kotaro/photoinsight/internal/logger"
	"github.com/kotaro/photoinsight/internal/prompts"
)

// classifierTimeout bounds one remote inference call.
const classifierTimeout = 60 * time.Second

// SeasonClassifier labels an image file with one of the four seasons.
// The bool result is false when no valid label could be determined; failures
// never propagate as errors past this boundary.
type SeasonClassifier interface {
	ClassifySeason(ctx context.Context, path string) (domain.Season, bool)
}

// ClassifierService labels images by season through a remote VLM endpoint
// speaking the chat-completions protocol.
type ClassifierService struct {
	client   *resty.Client
	codec    *codec.Codec
	model    string
	endpoint string
	logger   *logger.Logger
}

// ClassifierConfig holds configuration for the classifier service.
type ClassifierConfig struct {
	Model   string
	BaseURL string
	APIKey  string
}

// NewClassifierService creates a new classifier service.
// Parameters:
//   - cfg: classifier configuration including model name and endpoint.
//   - c: image codec used to prepare files for transmission.
//   - log: structured logger; nil uses the default.
// Returns:
//   - *ClassifierService: initialized client wrapper.
func NewClassifierService(cfg *ClassifierConfig, c *codec.Codec, log *logger.Logger) *ClassifierService {
	client := resty.New()
	if cfg.APIKey != "" {
		client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(classifierTimeout)

	if log == nil {
		log = logger.GetDefault()
	}
	if c == nil {
		c = codec.New(0)
	}

	return &ClassifierService{
		client:   client,
		codec:    c,
		model:    cfg.Model,
		endpoint: cfg.BaseURL + "/chat/completions",
		logger:   log,
	}
}

// GetModel returns the model name being used.
func (s *ClassifierService) GetModel() string {
	return s.model
}

// Chat-completions request/response structures
type chatRequest struct {
	Model     string        `json:"model"`
	Messages  []chatMessage `json:"messages"`
	MaxTokens int           `json:"max_tokens"`
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []interface{} `json:"content"`
}

type chatTextContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type chatImageContent struct {
	Type     string       `json:"type"`
	ImageURL chatImageURL `json:"image_url"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// ClassifySeason asks the VLM which season the image at path represents.
// All failure paths normalize to an empty label plus a logged cause: network
// errors, HTTP failures (a 502 gets a distinct model-crash diagnostic),
// and unknown labels. The call is bounded by a 60 second timeout.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - path: image file path.
// Returns:
//   - domain.Season: canonical season label when classification succeeded.
//   - bool: false when no valid label was obtained.
func (s *ClassifierService) ClassifySeason(ctx context.Context, path string) (domain.Season, bool) {
	log := s.logger.WithField(logger.FieldPhoto, path)

	jpegData, err := s.codec.EncodeJPEG(path)
	if err != nil {
		log.WithError(err).Error("Failed to prepare image for classification")
		return "", false
	}

	req := chatRequest{
		Model: s.model,
		Messages: []chatMessage{
			{
				Role: "user",
				Content: []interface{}{
					chatTextContent{
						Type: "text",
						Text: prompts.SeasonPrompt,
					},
					chatImageContent{
						Type: "image_url",
						ImageURL: chatImageURL{
							URL: codec.DataURL(jpegData),
						},
					},
				},
			},
		},
		MaxTokens: 10,
	}

	var resp chatResponse
	httpResp, err := s.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		Post(s.endpoint)

	if err != nil {
		// Transport failure, distinct from an HTTP-level error
		log.WithError(err).Error("Network error calling season classifier")
		return "", false
	}

	switch {
	case httpResp.StatusCode() == 200:
		// handled below
	case httpResp.StatusCode() == 502:
		// The model server is up but the model crashed mid-inference.
		// Not retried here: a future run re-scans unclassified images.
		log.Error("Season classifier returned 502 Bad Gateway: the model likely crashed while processing this image")
		return "", false
	default:
		log.WithFields(logger.Fields{
			"status": httpResp.StatusCode(),
			"body":   string(httpResp.Body()),
		}).Error("Season classifier returned unexpected status")
		return "", false
	}

	if resp.Error != nil {
		log.Error("Season classifier error: " + resp.Error.Message)
		return "", false
	}

	if len(resp.Choices) == 0 {
		log.Error("Season classifier returned no choices")
		return "", false
	}

	raw := resp.Choices[0].Message.Content
	season, ok := domain.ParseSeason(raw)
	if !ok {
		log.WithField("label", raw).Warn("Model returned unknown label")
		return "", false
	}

	return season, true
}

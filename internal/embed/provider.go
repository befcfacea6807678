// Package embed generates vector embeddings for search queries and images.
package embed

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// Provider maps text and image content into a shared similarity space.
// Implementations are stateless; the mirror caches their output.
type Provider interface {
	// EmbedText generates a vector for a query string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedImage generates a vector for raw image bytes.
	EmbedImage(ctx context.Context, data []byte) ([]float32, error)
}

// Config holds embedding provider configuration.
type Config struct {
	// Text embeddings: any OpenAI-compatible endpoint.
	APIKey  string
	BaseURL string
	Model   string

	// Image embeddings: CLIP-style HTTP service.
	ImageURL     string
	ImageTimeout time.Duration
	MaxDimension int
}

type service struct {
	client *openai.Client
	model  string
	images *imageClient
}

// NewProvider creates a Provider backed by an OpenAI-compatible text endpoint
// and a CLIP-style image embedding service.
func NewProvider(cfg Config) (Provider, error) {
	if cfg.ImageURL == "" {
		return nil, errors.New("image embedding URL is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &service{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
		images: newImageClient(cfg.ImageURL, cfg.ImageTimeout, cfg.MaxDimension),
	}, nil
}

func (s *service) EmbedText(ctx context.Context, text string) ([]float32, error) {
	req := openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(s.model),
	}

	resp, err := s.client.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("create embeddings failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}

func (s *service) EmbedImage(ctx context.Context, data []byte) ([]float32, error) {
	return s.images.Embed(ctx, data)
}

package embedding

import (
	"context"
	"fmt"
	"time"

	"profrag/internal/config"
	"profrag/internal/domain"
	"profrag/internal/embedding/gemini"
	"profrag/internal/embedding/openai"
	"profrag/internal/embedding/tfidf"
)

// New builds the embedder selected by cfg.Embedder.Type, wrapped in a check
// against cfg.Index.Dimension.
func New(ctx context.Context, cfg *config.AppConfig) (*Checked, error) {
	dim := cfg.Index.Dimension
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "gemini", "":
		if cfg.Embedder.Gemini == nil {
			return nil, fmt.Errorf("%w: gemini embedder config missing", domain.ErrConfig)
		}
		client, err := gemini.NewClient(ctx, gemini.Config{
			APIKeyEnv: cfg.Embedder.Gemini.APIKeyEnv,
			Model:     cfg.Embedder.Gemini.Model,
			Dimension: dim,
			Timeout:   time.Duration(cfg.Embedder.Gemini.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		emb = client
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			return nil, fmt.Errorf("%w: openai embedder config missing", domain.ErrConfig)
		}
		client, err := openai.NewClient(openai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Dimension: dim,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		emb = client
	case "tfidf":
		emb = tfidf.NewEmbedder(dim)
	default:
		return nil, fmt.Errorf("%w: unknown embedder: %s", domain.ErrConfig, cfg.Embedder.Type)
	}
	return WithDimension(emb, dim), nil
}

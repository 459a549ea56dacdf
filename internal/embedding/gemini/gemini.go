// Package gemini embeds text with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"google.golang.org/genai"

	"profrag/internal/domain"
)

// Client embeds text with a Gemini embedding model.
type Client struct {
	models    *genai.Models
	model     string
	dimension int
	timeout   time.Duration
	logger    *slog.Logger
}

// Config configures the Gemini embeddings client.
type Config struct {
	APIKeyEnv string
	Model     string
	Dimension int
	Timeout   time.Duration
	// BaseURL overrides the API endpoint; empty uses the public Gemini API.
	BaseURL string
}

// NewClient creates a Gemini client from the provided configuration.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrConfig, cfg.APIKeyEnv)
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-embedding-001"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 30 * time.Second
	}
	cc := &genai.ClientConfig{
		APIKey:  key,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: gemini client: %v", domain.ErrConfig, err)
	}
	return &Client{
		models:    client.Models,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		timeout:   t,
		logger:    slog.Default().With("component", "gemini-embedder"),
	}, nil
}

// Name returns the identifier of this embedder implementation.
func (c *Client) Name() string { return "gemini" }

// Dimension returns the requested output dimensionality.
func (c *Client) Dimension() int { return c.dimension }

// Embed returns the embedding of a single text.
func (c *Client) Embed(ctx context.Context, text string, task domain.TaskType) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ec := &genai.EmbedContentConfig{TaskType: apiTaskType(task)}
	if c.dimension > 0 {
		dim := int32(c.dimension)
		ec.OutputDimensionality = &dim
	}
	c.logger.Debug("generating embedding", "model", c.model, "task", task, "length", len(text))
	resp, err := c.models.EmbedContent(ctx, c.model, genai.Text(text), ec)
	if err != nil {
		c.logger.Error("failed to generate embedding", "err", err)
		return nil, fmt.Errorf("%w: gemini: %w", domain.ErrEmbedding, err)
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("%w: gemini: %w", domain.ErrEmbedding, errors.New("no embedding returned"))
	}
	return resp.Embeddings[0].Values, nil
}

// apiTaskType maps the lowercase task hint to the API enum spelling.
func apiTaskType(task domain.TaskType) string {
	if task == "" {
		task = domain.TaskRetrievalDocument
	}
	return strings.ToUpper(string(task))
}

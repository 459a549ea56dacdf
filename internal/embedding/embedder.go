// Package embedding holds the embedding providers and the dimension check
// every provider is wrapped in before it reaches the ingest pipeline.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"profrag/internal/domain"
)

// Checked wraps an embedder and rejects vectors whose length differs from
// the declared index dimension.
type Checked struct {
	inner     domain.Embedder
	dimension int
}

// WithDimension returns inner wrapped in a dimension check.
func WithDimension(inner domain.Embedder, dimension int) *Checked {
	return &Checked{inner: inner, dimension: dimension}
}

// Name returns the identifier of the wrapped embedder.
func (c *Checked) Name() string { return c.inner.Name() }

// Dimension returns the enforced dimension.
func (c *Checked) Dimension() int { return c.dimension }

// Prepare forwards to the wrapped embedder when it needs the corpus.
func (c *Checked) Prepare(corpus []string) error {
	if p, ok := c.inner.(domain.Preparer); ok {
		return p.Prepare(corpus)
	}
	return nil
}

// Embed calls the wrapped embedder and checks the result length.
func (c *Checked) Embed(ctx context.Context, text string, task domain.TaskType) ([]float32, error) {
	vec, err := c.inner.Embed(ctx, text, task)
	if err != nil {
		if errors.Is(err, domain.ErrEmbedding) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrEmbedding, c.inner.Name(), err)
	}
	if len(vec) != c.dimension {
		return nil, fmt.Errorf("%w: %s returned %d values, index expects %d",
			domain.ErrDimensionMismatch, c.inner.Name(), len(vec), c.dimension)
	}
	return vec, nil
}

package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profrag/internal/config"
	"profrag/internal/domain"
)

func TestNew_TFIDF(t *testing.T) {
	cfg := config.Default()
	cfg.Embedder.Type = "tfidf"
	cfg.Index.Dimension = 32

	emb, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "tfidf", emb.Name())
	assert.Equal(t, 32, emb.Dimension())

	require.NoError(t, emb.Prepare([]string{"clear explanations", "tough exams"}))
	vec, err := emb.Embed(context.Background(), "clear exams", domain.TaskRetrievalDocument)
	require.NoError(t, err)
	assert.Len(t, vec, 32)
}

func TestNew_UnknownType(t *testing.T) {
	cfg := config.Default()
	cfg.Embedder.Type = "word2vec"

	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestNew_GeminiMissingKey(t *testing.T) {
	t.Setenv("PROFRAG_TEST_GOOGLE_KEY", "")
	cfg := config.Default()
	cfg.Embedder.Gemini.APIKeyEnv = "PROFRAG_TEST_GOOGLE_KEY"

	_, err := New(context.Background(), cfg)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

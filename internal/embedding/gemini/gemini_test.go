package gemini

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profrag/internal/domain"
)

func TestNewClient_MissingKey(t *testing.T) {
	t.Setenv("PROFRAG_TEST_GOOGLE_KEY", "")

	_, err := NewClient(context.Background(), Config{APIKeyEnv: "PROFRAG_TEST_GOOGLE_KEY"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfig)
}

func TestNewClient_Defaults(t *testing.T) {
	t.Setenv("PROFRAG_TEST_GOOGLE_KEY", "key")

	c, err := NewClient(context.Background(), Config{APIKeyEnv: "PROFRAG_TEST_GOOGLE_KEY", Dimension: 768})
	require.NoError(t, err)
	assert.Equal(t, "gemini-embedding-001", c.model)
	assert.Equal(t, 768, c.Dimension())
	assert.Equal(t, "gemini", c.Name())
}

func TestAPITaskType(t *testing.T) {
	assert.Equal(t, "RETRIEVAL_DOCUMENT", apiTaskType(domain.TaskRetrievalDocument))
	assert.Equal(t, "RETRIEVAL_QUERY", apiTaskType(domain.TaskRetrievalQuery))
	assert.Equal(t, "SEMANTIC_SIMILARITY", apiTaskType(domain.TaskSemanticSimilarity))
	assert.Equal(t, "RETRIEVAL_DOCUMENT", apiTaskType(""))
}

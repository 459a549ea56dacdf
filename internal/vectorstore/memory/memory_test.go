package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profrag/internal/domain"
)

var testSpec = domain.IndexSpec{Name: "rag", Dimension: 3, Metric: domain.MetricCosine, Cloud: "aws", Region: "us-east-1"}

func record(id string, values ...float32) domain.IngestRecord {
	return domain.IngestRecord{ID: id, Values: values, Metadata: domain.ReviewMetadata{Review: "r-" + id, Subject: "s", Stars: 4}}
}

func TestCreateIndex_SecondCallFails(t *testing.T) {
	ctx := context.Background()
	s := NewStorage("rag")

	require.NoError(t, s.CreateIndex(ctx, testSpec))
	err := s.CreateIndex(ctx, testSpec)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIndexAlreadyExists)
}

func TestCreateIndex_InvalidDimension(t *testing.T) {
	spec := testSpec
	spec.Dimension = 0
	assert.ErrorIs(t, NewStorage("rag").CreateIndex(context.Background(), spec), domain.ErrConfig)
}

func TestUpsert_CountsAndOverwrites(t *testing.T) {
	ctx := context.Background()
	s := NewStorage("rag")
	require.NoError(t, s.CreateIndex(ctx, testSpec))

	n, err := s.Upsert(ctx, "ns1", []domain.IngestRecord{
		record("A", 1, 0, 0),
		record("B", 0, 1, 0),
		record("A", 0, 0, 1),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, ok := s.Get("ns1", "A")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 0, 1}, got.Values, "later duplicate wins")

	stats, err := s.DescribeIndexStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Dimension)
	assert.Equal(t, 2, stats.TotalVectorCount)
	assert.Equal(t, map[string]int{"ns1": 2}, stats.Namespaces)
}

func TestUpsert_RejectsWrongDimension(t *testing.T) {
	ctx := context.Background()
	s := NewStorage("rag")
	require.NoError(t, s.CreateIndex(ctx, testSpec))

	_, err := s.Upsert(ctx, "ns1", []domain.IngestRecord{record("A", 1, 0, 0), record("B", 1)})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpsert)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)

	_, ok := s.Get("ns1", "A")
	assert.False(t, ok, "batch is all-or-nothing")
	assert.Equal(t, 0, s.UpsertCalls())
}

func TestUpsert_WithoutIndex(t *testing.T) {
	_, err := NewStorage("rag").Upsert(context.Background(), "ns1", []domain.IngestRecord{record("A", 1, 2, 3)})
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestDescribeIndexStats_WithoutIndex(t *testing.T) {
	_, err := NewStorage("rag").DescribeIndexStats(context.Background())
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

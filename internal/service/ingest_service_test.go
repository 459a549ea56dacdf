package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profrag/internal/domain"
	"profrag/internal/embedding"
	"profrag/internal/embedding/tfidf"
	"profrag/internal/vectorstore/memory"
)

// testEmbedder returns a vector derived from the text length, or fails on failText.
type testEmbedder struct {
	dim      int
	failText string
	delay    func(text string) time.Duration

	mu    sync.Mutex
	texts []string
	tasks []domain.TaskType
	calls atomic.Int32
}

func (e *testEmbedder) Name() string   { return "test" }
func (e *testEmbedder) Dimension() int { return e.dim }
func (e *testEmbedder) Embed(ctx context.Context, text string, task domain.TaskType) ([]float32, error) {
	e.calls.Add(1)
	e.mu.Lock()
	e.texts = append(e.texts, text)
	e.tasks = append(e.tasks, task)
	e.mu.Unlock()
	if e.delay != nil {
		select {
		case <-time.After(e.delay(text)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if text == e.failText {
		return nil, fmt.Errorf("%w: quota exceeded", domain.ErrEmbedding)
	}
	vec := make([]float32, e.dim)
	vec[0] = float32(len(text))
	return vec, nil
}

// spyStore records every upsert batch before delegating to the memory store.
type spyStore struct {
	*memory.Storage
	batches [][]domain.IngestRecord
}

func newSpyStore() *spyStore {
	return &spyStore{Storage: memory.NewStorage("rag")}
}

func (s *spyStore) Upsert(ctx context.Context, namespace string, records []domain.IngestRecord) (int, error) {
	s.batches = append(s.batches, records)
	return s.Storage.Upsert(ctx, namespace, records)
}

func testSpec(dim int) domain.IndexSpec {
	return domain.IndexSpec{Name: "rag", Dimension: dim, Metric: domain.MetricCosine, Cloud: "aws", Region: "us-east-1"}
}

func writeCorpus(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reviews.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const twoReviews = `{"reviews": [
	{"professor": "A", "subject": "Math", "stars": 5, "review": "great"},
	{"professor": "B", "subject": "CS", "stars": 3, "review": "ok"}
]}`

func TestRun_TwoReviewCorpus(t *testing.T) {
	emb := &testEmbedder{dim: 4}
	store := newSpyStore()
	svc := NewIngestService(embedding.WithDimension(emb, 4), store, testSpec(4), "ns1")

	res, err := svc.Run(context.Background(), writeCorpus(t, twoReviews))
	require.NoError(t, err)

	assert.Equal(t, 2, res.Reviews)
	assert.Equal(t, 2, res.Upserted)
	require.Len(t, store.batches, 1, "exactly one bulk write")
	batch := store.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "A", batch[0].ID)
	assert.Equal(t, "B", batch[1].ID)
	assert.Equal(t, domain.ReviewMetadata{Review: "great", Subject: "Math", Stars: 5}, batch[0].Metadata)
	assert.Equal(t, domain.ReviewMetadata{Review: "ok", Subject: "CS", Stars: 3}, batch[1].Metadata)

	assert.Equal(t, []string{"great", "ok"}, emb.texts, "review text is embedded, in order")
	assert.Equal(t, []domain.TaskType{domain.TaskRetrievalDocument, domain.TaskRetrievalDocument}, emb.tasks)

	assert.Equal(t, 4, res.Stats.Dimension)
	assert.Equal(t, map[string]int{"ns1": 2}, res.Stats.Namespaces)
}

func TestRun_FiveReviewsYieldFiveRecords(t *testing.T) {
	content := `{"reviews": [
		{"professor": "P1", "subject": "S", "stars": 1, "review": "a"},
		{"professor": "P2", "subject": "S", "stars": 2, "review": "bb"},
		{"professor": "P3", "subject": "S", "stars": 3, "review": "ccc"},
		{"professor": "P4", "subject": "S", "stars": 4, "review": "dddd"},
		{"professor": "P5", "subject": "S", "stars": 5, "review": "eeeee"}
	]}`
	store := newSpyStore()
	svc := NewIngestService(embedding.WithDimension(&testEmbedder{dim: 3}, 3), store, testSpec(3), "ns1")

	res, err := svc.Run(context.Background(), writeCorpus(t, content))
	require.NoError(t, err)
	assert.Equal(t, 5, res.Upserted)
	require.Len(t, store.batches, 1)
	assert.Len(t, store.batches[0], 5)
	for i, rec := range store.batches[0] {
		assert.Equal(t, fmt.Sprintf("P%d", i+1), rec.ID)
		assert.Len(t, rec.Values, 3)
	}
}

func TestRun_SecondRunFailsAtProvisioning(t *testing.T) {
	store := newSpyStore()
	path := writeCorpus(t, twoReviews)
	emb := &testEmbedder{dim: 2}
	svc := NewIngestService(embedding.WithDimension(emb, 2), store, testSpec(2), "ns1")

	_, err := svc.Run(context.Background(), path)
	require.NoError(t, err)
	callsAfterFirst := emb.calls.Load()

	_, err = svc.Run(context.Background(), path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrIndexAlreadyExists)
	assert.Equal(t, callsAfterFirst, emb.calls.Load(), "no embedding after failed provisioning")
	assert.Len(t, store.batches, 1)
}

func TestRun_EmbeddingFailureSkipsUpsert(t *testing.T) {
	emb := &testEmbedder{dim: 2, failText: "ok"}
	store := newSpyStore()
	svc := NewIngestService(embedding.WithDimension(emb, 2), store, testSpec(2), "ns1")

	_, err := svc.Run(context.Background(), writeCorpus(t, twoReviews))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.Contains(t, err.Error(), "review 1 (B)")
	assert.Empty(t, store.batches, "no upsert call is made")

	stats, err := store.DescribeIndexStats(context.Background())
	require.NoError(t, err, "index stays provisioned")
	assert.Equal(t, 0, stats.TotalVectorCount)
}

func TestRun_DimensionMismatchRejectedLocally(t *testing.T) {
	store := newSpyStore()
	svc := NewIngestService(embedding.WithDimension(&testEmbedder{dim: 3}, 768), store, testSpec(768), "ns1")

	_, err := svc.Run(context.Background(), writeCorpus(t, twoReviews))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Empty(t, store.batches)
}

func TestRun_StoreRejectsWrongDimension(t *testing.T) {
	// Without the local check the store still refuses the batch.
	store := newSpyStore()
	svc := NewIngestService(&testEmbedder{dim: 3}, store, testSpec(768), "ns1")

	_, err := svc.Run(context.Background(), writeCorpus(t, twoReviews))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpsert)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
}

func TestRun_CorpusErrors(t *testing.T) {
	svc := NewIngestService(&testEmbedder{dim: 2}, newSpyStore(), testSpec(2), "ns1")
	_, err := svc.Run(context.Background(), filepath.Join(t.TempDir(), "missing.json"))
	assert.ErrorIs(t, err, domain.ErrCorpusNotFound)

	svc = NewIngestService(&testEmbedder{dim: 2}, newSpyStore(), testSpec(2), "ns1")
	_, err = svc.Run(context.Background(), writeCorpus(t, `{"reviews": [{"professor": "A"}]}`))
	assert.ErrorIs(t, err, domain.ErrCorpusSchema)
}

func TestRun_EmptyCorpusMakesNoUpsert(t *testing.T) {
	store := newSpyStore()
	svc := NewIngestService(&testEmbedder{dim: 2}, store, testSpec(2), "ns1")

	res, err := svc.Run(context.Background(), writeCorpus(t, `{"reviews": []}`))
	require.NoError(t, err)
	assert.Equal(t, 0, res.Upserted)
	assert.Empty(t, store.batches)
}

func TestRun_DuplicateProfessorsOverwrite(t *testing.T) {
	content := `{"reviews": [
		{"professor": "A", "subject": "Math", "stars": 5, "review": "first"},
		{"professor": "A", "subject": "Math", "stars": 1, "review": "second"}
	]}`
	store := newSpyStore()
	svc := NewIngestService(&testEmbedder{dim: 2}, store, testSpec(2), "ns1")

	res, err := svc.Run(context.Background(), writeCorpus(t, content))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Upserted, "store reports both writes")
	assert.Equal(t, 1, res.Stats.TotalVectorCount)
	rec, ok := store.Get("ns1", "A")
	require.True(t, ok)
	assert.Equal(t, "second", rec.Metadata.Review)
}

func TestIngest_ConcurrentPreservesOrder(t *testing.T) {
	reviews := make([]domain.ReviewRecord, 20)
	for i := range reviews {
		reviews[i] = domain.ReviewRecord{
			Professor: fmt.Sprintf("P%02d", i),
			Subject:   "S",
			Stars:     float64(i % 5),
			Review:    fmt.Sprintf("review-%0*d", i+1, i),
		}
	}
	emb := &testEmbedder{
		dim: 2,
		delay: func(text string) time.Duration {
			// Later reviews finish first.
			return time.Duration(40-len(text)) * time.Millisecond
		},
	}
	store := newSpyStore()
	require.NoError(t, store.CreateIndex(context.Background(), testSpec(2)))

	var mu sync.Mutex
	var seen []int
	svc := NewIngestService(emb, store, testSpec(2), "ns1",
		WithConcurrency(4),
		WithProgress(func(done, total int) {
			mu.Lock()
			seen = append(seen, done)
			mu.Unlock()
			assert.Equal(t, 20, total)
		}))

	n, err := svc.Ingest(context.Background(), reviews)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	require.Len(t, store.batches, 1)
	for i, rec := range store.batches[0] {
		assert.Equal(t, reviews[i].Professor, rec.ID)
		assert.Equal(t, float32(len(reviews[i].Review)), rec.Values[0], "vector belongs to its own review")
	}
	require.Len(t, seen, 20)
	for i, d := range seen {
		assert.Equal(t, i+1, d)
	}
}

func TestIngest_ConcurrentFailureSkipsUpsert(t *testing.T) {
	reviews := make([]domain.ReviewRecord, 10)
	for i := range reviews {
		reviews[i] = domain.ReviewRecord{Professor: fmt.Sprintf("P%d", i), Review: fmt.Sprintf("text %d", i)}
	}
	emb := &testEmbedder{dim: 2, failText: "text 3"}
	store := newSpyStore()
	require.NoError(t, store.CreateIndex(context.Background(), testSpec(2)))
	svc := NewIngestService(emb, store, testSpec(2), "ns1", WithConcurrency(3))

	_, err := svc.Ingest(context.Background(), reviews)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrEmbedding)
	assert.Empty(t, store.batches)
}

func TestIngest_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	emb := &testEmbedder{dim: 2, delay: func(string) time.Duration { return time.Second }}
	store := newSpyStore()
	svc := NewIngestService(emb, store, testSpec(2), "ns1")

	_, err := svc.Ingest(ctx, []domain.ReviewRecord{{Professor: "A", Review: "x"}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.batches)
}

func TestIngest_PreparesLexicalEmbedder(t *testing.T) {
	store := newSpyStore()
	require.NoError(t, store.CreateIndex(context.Background(), testSpec(16)))
	emb := embedding.WithDimension(tfidf.NewEmbedder(16), 16)
	svc := NewIngestService(emb, store, testSpec(16), "ns1")

	n, err := svc.Ingest(context.Background(), []domain.ReviewRecord{
		{Professor: "A", Subject: "Math", Stars: 5, Review: "clear lectures"},
		{Professor: "B", Subject: "CS", Stars: 2, Review: "hard exams"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEmbeddingText(t *testing.T) {
	r := domain.ReviewRecord{Professor: "Dr. Smith", University: "State", Subject: "Physics", Review: "Engaging."}

	plain := NewIngestService(&testEmbedder{dim: 1}, newSpyStore(), testSpec(1), "ns1")
	assert.Equal(t, "Engaging.", plain.EmbeddingText(r))

	composite := NewIngestService(&testEmbedder{dim: 1}, newSpyStore(), testSpec(1), "ns1", WithCompositeText(true))
	assert.Equal(t, "Dr. Smith State Physics Engaging.", composite.EmbeddingText(r))

	r.University = ""
	assert.Equal(t, "Dr. Smith Physics Engaging.", composite.EmbeddingText(r))
}

func TestAssemble_PreservesFields(t *testing.T) {
	r := domain.ReviewRecord{Professor: "A", Subject: "Math", Stars: 4.5, Review: "great", University: "ignored"}
	vec := []float32{0.1, 0.2}

	rec := Assemble(r, vec)
	assert.Equal(t, domain.IngestRecord{
		ID:       "A",
		Values:   vec,
		Metadata: domain.ReviewMetadata{Review: "great", Subject: "Math", Stars: 4.5},
	}, rec)
}

func TestRun_UpsertErrorPropagates(t *testing.T) {
	store := &failingUpsertStore{spyStore: newSpyStore(), err: errors.New("payload too large")}
	svc := NewIngestService(&testEmbedder{dim: 2}, store, testSpec(2), "ns1")

	_, err := svc.Run(context.Background(), writeCorpus(t, twoReviews))
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUpsert)
	assert.Contains(t, err.Error(), "payload too large")
}

type failingUpsertStore struct {
	*spyStore
	err error
}

func (f *failingUpsertStore) Upsert(ctx context.Context, namespace string, records []domain.IngestRecord) (int, error) {
	return 0, f.err
}

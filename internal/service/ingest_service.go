package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/panjf2000/ants/v2"

	"profrag/internal/corpus"
	"profrag/internal/domain"
)

// ProgressFunc receives the number of reviews embedded so far.
type ProgressFunc func(done, total int)

// IngestService runs the provision, embed and upsert pipeline over a corpus.
type IngestService struct {
	embedder    domain.Embedder
	store       domain.VectorStore
	spec        domain.IndexSpec
	namespace   string
	task        domain.TaskType
	concurrency int
	composite   bool
	validate    bool
	progress    ProgressFunc
	logger      *slog.Logger
}

// Option configures an IngestService.
type Option func(*IngestService)

// WithConcurrency bounds the number of in-flight embedding calls. Values
// below 2 keep the calls strictly sequential.
func WithConcurrency(n int) Option {
	return func(s *IngestService) {
		if n < 1 {
			n = 1
		}
		s.concurrency = n
	}
}

// WithTaskType sets the task hint sent with every embedding request.
func WithTaskType(task domain.TaskType) Option {
	return func(s *IngestService) { s.task = task }
}

// WithCompositeText embeds "professor university subject review" instead of the review alone.
func WithCompositeText(enabled bool) Option {
	return func(s *IngestService) { s.composite = enabled }
}

// WithSchemaValidation toggles the corpus schema check.
func WithSchemaValidation(enabled bool) Option {
	return func(s *IngestService) { s.validate = enabled }
}

// WithProgress registers a callback invoked after each embedding.
func WithProgress(fn ProgressFunc) Option {
	return func(s *IngestService) { s.progress = fn }
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *IngestService) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// NewIngestService wires the pipeline for one index and namespace.
func NewIngestService(embedder domain.Embedder, store domain.VectorStore, spec domain.IndexSpec, namespace string, opts ...Option) *IngestService {
	s := &IngestService{
		embedder:    embedder,
		store:       store,
		spec:        spec,
		namespace:   namespace,
		task:        domain.TaskRetrievalDocument,
		concurrency: 1,
		validate:    true,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "ingest", "index", spec.Name, "namespace", namespace)
	return s
}

// Result summarizes a completed run.
type Result struct {
	Reviews  int
	Upserted int
	Stats    domain.IndexStats
}

// Run provisions the index, loads the corpus at path, embeds every review,
// upserts all records in one call and reads back the index statistics.
// The first error aborts the run.
func (s *IngestService) Run(ctx context.Context, path string) (*Result, error) {
	if err := s.EnsureIndex(ctx); err != nil {
		return nil, err
	}
	reviews, err := corpus.Load(path, corpus.WithSchemaValidation(s.validate))
	if err != nil {
		return nil, err
	}
	s.logger.Info("corpus loaded", "path", path, "reviews", len(reviews))

	upserted, err := s.Ingest(ctx, reviews)
	if err != nil {
		return nil, err
	}
	stats, err := s.store.DescribeIndexStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("describe index stats: %w", err)
	}
	return &Result{Reviews: len(reviews), Upserted: upserted, Stats: stats}, nil
}

// EnsureIndex creates the index. An existing index is an error.
func (s *IngestService) EnsureIndex(ctx context.Context) error {
	s.logger.Info("creating index", "dimension", s.spec.Dimension, "metric", s.spec.Metric)
	if err := s.store.CreateIndex(ctx, s.spec); err != nil {
		return fmt.Errorf("provision index %s: %w", s.spec.Name, err)
	}
	return nil
}

// Ingest embeds and assembles every review, then writes the batch in one
// upsert. No upsert is made unless every review was embedded.
func (s *IngestService) Ingest(ctx context.Context, reviews []domain.ReviewRecord) (int, error) {
	if p, ok := s.embedder.(domain.Preparer); ok {
		texts := make([]string, len(reviews))
		for i, r := range reviews {
			texts[i] = s.EmbeddingText(r)
		}
		if len(texts) > 0 {
			if err := p.Prepare(texts); err != nil {
				return 0, fmt.Errorf("%w: prepare %s: %w", domain.ErrEmbedding, s.embedder.Name(), err)
			}
		}
	}

	vectors, err := s.embedAll(ctx, reviews)
	if err != nil {
		return 0, err
	}
	records := make([]domain.IngestRecord, len(reviews))
	for i := range reviews {
		records[i] = Assemble(reviews[i], vectors[i])
	}
	if len(records) == 0 {
		s.logger.Warn("corpus is empty, nothing to upsert")
		return 0, nil
	}

	n, err := s.store.Upsert(ctx, s.namespace, records)
	if err != nil {
		if errors.Is(err, domain.ErrUpsert) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %w", domain.ErrUpsert, err)
	}
	s.logger.Info("records upserted", "count", n)
	return n, nil
}

// EmbeddingText returns the text sent to the embedder for a review.
func (s *IngestService) EmbeddingText(r domain.ReviewRecord) string {
	if !s.composite {
		return r.Review
	}
	parts := make([]string, 0, 4)
	for _, p := range []string{r.Professor, r.University, r.Subject, r.Review} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Assemble packages a review and its vector into the record written to the index.
func Assemble(review domain.ReviewRecord, vector []float32) domain.IngestRecord {
	return domain.IngestRecord{
		ID:     review.Professor,
		Values: vector,
		Metadata: domain.ReviewMetadata{
			Review:  review.Review,
			Subject: review.Subject,
			Stars:   review.Stars,
		},
	}
}

func (s *IngestService) embedOne(ctx context.Context, i int, r domain.ReviewRecord) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, s.EmbeddingText(r), s.task)
	if err != nil {
		return nil, fmt.Errorf("embed review %d (%s): %w", i, r.Professor, err)
	}
	return vec, nil
}

type progressCounter struct {
	mu    sync.Mutex
	done  int
	total int
	fn    ProgressFunc
}

func (p *progressCounter) inc() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	if p.fn != nil {
		p.fn(p.done, p.total)
	}
}

func (s *IngestService) embedAll(ctx context.Context, reviews []domain.ReviewRecord) ([][]float32, error) {
	vectors := make([][]float32, len(reviews))
	progress := &progressCounter{total: len(reviews), fn: s.progress}

	if s.concurrency <= 1 || len(reviews) < 2 {
		for i, r := range reviews {
			vec, err := s.embedOne(ctx, i, r)
			if err != nil {
				return nil, err
			}
			vectors[i] = vec
			progress.inc()
		}
		return vectors, nil
	}

	pool, err := ants.NewPool(s.concurrency)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	fail := func(err error) {
		once.Do(func() {
			firstErr = err
			cancel()
		})
	}
	for i := range reviews {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			if ctx.Err() != nil {
				return
			}
			vec, err := s.embedOne(ctx, i, reviews[i])
			if err != nil {
				fail(err)
				return
			}
			vectors[i] = vec
			progress.inc()
		})
		if submitErr != nil {
			wg.Done()
			fail(submitErr)
			break
		}
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return vectors, nil
}

package domain

import "context"

// ReviewRecord is a single professor review loaded from the corpus file.
type ReviewRecord struct {
	Professor  string  `json:"professor"`
	Subject    string  `json:"subject"`
	Stars      float64 `json:"stars"`
	Review     string  `json:"review"`
	University string  `json:"university,omitempty"`
}

// ReviewMetadata is the payload stored alongside each vector.
type ReviewMetadata struct {
	Review  string  `json:"review"`
	Subject string  `json:"subject"`
	Stars   float64 `json:"stars"`
}

// IngestRecord is the unit written to the vector index.
type IngestRecord struct {
	ID       string         `json:"id"`
	Values   []float32      `json:"values"`
	Metadata ReviewMetadata `json:"metadata"`
}

// Metric is the similarity metric declared on an index.
type Metric string

const (
	MetricCosine     Metric = "cosine"
	MetricDotProduct Metric = "dotproduct"
	MetricEuclidean  Metric = "euclidean"
)

// Valid reports whether m is one of the supported metrics.
func (m Metric) Valid() bool {
	switch m {
	case MetricCosine, MetricDotProduct, MetricEuclidean:
		return true
	}
	return false
}

// TaskType hints the embedding service about how the vector will be used.
type TaskType string

const (
	TaskRetrievalDocument  TaskType = "retrieval_document"
	TaskRetrievalQuery     TaskType = "retrieval_query"
	TaskSemanticSimilarity TaskType = "semantic_similarity"
	TaskClassification     TaskType = "classification"
	TaskClustering         TaskType = "clustering"
)

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	switch t {
	case TaskRetrievalDocument, TaskRetrievalQuery, TaskSemanticSimilarity, TaskClassification, TaskClustering:
		return true
	}
	return false
}

// IndexSpec declares the shape and hosting of a vector index.
type IndexSpec struct {
	Name      string
	Dimension int
	Metric    Metric
	Cloud     string
	Region    string
}

// IndexStats is the informational summary reported by a vector index.
type IndexStats struct {
	Dimension        int
	TotalVectorCount int
	IndexFullness    float64
	Namespaces       map[string]int
}

// Embedder converts free text into a numeric vector representation.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string, task TaskType) ([]float32, error)
}

// Preparer is implemented by embedders that need a pass over the corpus
// before the first Embed call.
type Preparer interface {
	Prepare(corpus []string) error
}

// VectorStore provisions an index, writes records into its namespaces and
// reports statistics about it.
type VectorStore interface {
	CreateIndex(ctx context.Context, spec IndexSpec) error
	Upsert(ctx context.Context, namespace string, records []IngestRecord) (int, error)
	DescribeIndexStats(ctx context.Context) (IndexStats, error)
	Close() error
}

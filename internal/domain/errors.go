package domain

import "errors"

var (
	// ErrConfig is returned for missing credentials or invalid settings.
	ErrConfig = errors.New("invalid configuration")

	// ErrIndexAlreadyExists is returned when provisioning an index whose name is taken.
	ErrIndexAlreadyExists = errors.New("index already exists")

	// ErrIndexNotFound is returned when writing to or describing an index that was never created.
	ErrIndexNotFound = errors.New("index not found")

	// ErrCorpusNotFound is returned when the corpus file does not exist.
	ErrCorpusNotFound = errors.New("corpus file not found")

	// ErrCorpusParse is returned when the corpus is not well-formed JSON.
	ErrCorpusParse = errors.New("corpus parse error")

	// ErrCorpusSchema is returned when reviews lack required fields.
	ErrCorpusSchema = errors.New("corpus schema error")

	// ErrEmbedding wraps failures of the embedding service.
	ErrEmbedding = errors.New("embedding service error")

	// ErrDimensionMismatch is returned when a vector length differs from the index dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrUpsert wraps failures of the bulk write.
	ErrUpsert = errors.New("upsert error")
)

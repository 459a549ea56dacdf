// Package corpus reads the review corpus file into memory.
package corpus

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"profrag/internal/domain"
)

// reviewSchema lists the fields the pipeline reads from every review.
const reviewSchema = `{
  "type": "object",
  "required": ["reviews"],
  "properties": {
    "reviews": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["professor", "subject", "stars", "review"],
        "properties": {
          "professor":  {"type": "string", "minLength": 1},
          "subject":    {"type": "string"},
          "stars":      {"type": "number"},
          "review":     {"type": "string"},
          "university": {"type": "string"}
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(reviewSchema)

type document struct {
	Reviews []domain.ReviewRecord `json:"reviews"`
}

type options struct {
	validate bool
}

// Option configures Load.
type Option func(*options)

// WithSchemaValidation toggles the JSON Schema check. It is on by default.
func WithSchemaValidation(enabled bool) Option {
	return func(o *options) { o.validate = enabled }
}

// Load reads the whole corpus at path and returns its reviews in file order.
func Load(path string, opts ...Option) ([]domain.ReviewRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrCorpusNotFound, path)
		}
		return nil, err
	}
	return Parse(data, opts...)
}

// Parse decodes a corpus document already held in memory.
func Parse(data []byte, opts ...Option) ([]domain.ReviewRecord, error) {
	o := options{validate: true}
	for _, opt := range opts {
		opt(&o)
	}

	if !json.Valid(data) {
		return nil, fmt.Errorf("%w: content is not valid JSON", domain.ErrCorpusParse)
	}
	if o.validate {
		if err := validate(data); err != nil {
			return nil, err
		}
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrCorpusParse, err)
	}
	if doc.Reviews == nil {
		doc.Reviews = []domain.ReviewRecord{}
	}
	return doc.Reviews, nil
}

func validate(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrCorpusParse, err)
	}
	if result.Valid() {
		return nil
	}
	details := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		details = append(details, desc.String())
	}
	return fmt.Errorf("%w: %s", domain.ErrCorpusSchema, strings.Join(details, "; "))
}

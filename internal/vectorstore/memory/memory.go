package memory

import (
	"context"
	"fmt"
	"sync"

	"profrag/internal/domain"
)

// Storage is an in-process vector index. It enforces the same contract as
// the remote services: one index per name, fixed dimension, upsert by id.
type Storage struct {
	mu         sync.RWMutex
	name       string
	created    bool
	spec       domain.IndexSpec
	namespaces map[string]map[string]domain.IngestRecord
	upserts    int
}

// NewStorage returns a store bound to the named index.
func NewStorage(name string) *Storage {
	return &Storage{name: name, namespaces: make(map[string]map[string]domain.IngestRecord)}
}

// CreateIndex provisions the index; a second call fails.
func (s *Storage) CreateIndex(ctx context.Context, spec domain.IndexSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrConfig, spec.Dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return fmt.Errorf("%w: %s", domain.ErrIndexAlreadyExists, spec.Name)
	}
	s.created = true
	s.spec = spec
	s.name = spec.Name
	return nil
}

// Upsert writes records into namespace, overwriting records with the same id.
// The batch is rejected as a whole if any vector has the wrong length.
func (s *Storage) Upsert(ctx context.Context, namespace string, records []domain.IngestRecord) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.created {
		return 0, fmt.Errorf("%w: %w: %s", domain.ErrUpsert, domain.ErrIndexNotFound, s.name)
	}
	for _, r := range records {
		if len(r.Values) != s.spec.Dimension {
			return 0, fmt.Errorf("%w: %w: record %q has %d values, index expects %d",
				domain.ErrUpsert, domain.ErrDimensionMismatch, r.ID, len(r.Values), s.spec.Dimension)
		}
	}
	ns, ok := s.namespaces[namespace]
	if !ok {
		ns = make(map[string]domain.IngestRecord)
		s.namespaces[namespace] = ns
	}
	for _, r := range records {
		ns[r.ID] = r
	}
	s.upserts++
	return len(records), nil
}

// DescribeIndexStats reports the dimension and per-namespace record counts.
func (s *Storage) DescribeIndexStats(ctx context.Context) (domain.IndexStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.created {
		return domain.IndexStats{}, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, s.name)
	}
	stats := domain.IndexStats{Dimension: s.spec.Dimension, Namespaces: make(map[string]int, len(s.namespaces))}
	for name, ns := range s.namespaces {
		stats.Namespaces[name] = len(ns)
		stats.TotalVectorCount += len(ns)
	}
	return stats, nil
}

// Get returns a stored record.
func (s *Storage) Get(namespace, id string) (domain.IngestRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.namespaces[namespace][id]
	return r, ok
}

// UpsertCalls returns how many Upsert calls were accepted.
func (s *Storage) UpsertCalls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.upserts
}

// Close is a no-op.
func (s *Storage) Close() error { return nil }

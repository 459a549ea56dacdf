// Package badger keeps a vector index on local disk in a BadgerDB database.
// It lets the pipeline run end to end without a hosted vector service.
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"profrag/internal/domain"
)

// Storage is a BadgerDB-backed vector store bound to one index name.
type Storage struct {
	db     *badger.DB
	name   string
	logger *slog.Logger
}

// badgerLoggerAdapter adapts slog.Logger to the badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Open opens (creating if needed) the database directory and binds it to index name.
func Open(path, name string) (*Storage, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, err
	}
	logger := slog.Default().With("component", "badger-store")
	opts := badger.DefaultOptions(path)
	opts.Logger = &badgerLoggerAdapter{logger: logger}
	opts.Compression = options.None
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}
	return &Storage{db: db, name: name, logger: logger}, nil
}

func (s *Storage) metaKey() []byte {
	return []byte("idx/" + s.name + "/meta")
}

func (s *Storage) vectorPrefix() []byte {
	return []byte("idx/" + s.name + "/vec/")
}

func (s *Storage) vectorKey(namespace, id string) []byte {
	key := append(s.vectorPrefix(), namespace...)
	key = append(key, 0)
	return append(key, id...)
}

// CreateIndex stores the index declaration; an existing declaration is an error.
func (s *Storage) CreateIndex(ctx context.Context, spec domain.IndexSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrConfig, spec.Dimension)
	}
	data, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(s.metaKey())
		if err == nil {
			return fmt.Errorf("%w: %s", domain.ErrIndexAlreadyExists, s.name)
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(s.metaKey(), data)
	})
}

func (s *Storage) loadSpec() (domain.IndexSpec, error) {
	var spec domain.IndexSpec
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.metaKey())
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("%w: %s", domain.ErrIndexNotFound, s.name)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &spec)
		})
	})
	return spec, err
}

// Upsert writes all records in one batch after checking every vector length.
func (s *Storage) Upsert(ctx context.Context, namespace string, records []domain.IngestRecord) (int, error) {
	spec, err := s.loadSpec()
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrUpsert, err)
	}
	for _, r := range records {
		if len(r.Values) != spec.Dimension {
			return 0, fmt.Errorf("%w: %w: record %q has %d values, index expects %d",
				domain.ErrUpsert, domain.ErrDimensionMismatch, r.ID, len(r.Values), spec.Dimension)
		}
	}
	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range records {
		data, err := json.Marshal(r)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", domain.ErrUpsert, err)
		}
		if err := wb.Set(s.vectorKey(namespace, r.ID), data); err != nil {
			return 0, fmt.Errorf("%w: %w", domain.ErrUpsert, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrUpsert, err)
	}
	s.logger.Debug("upserted records", "namespace", namespace, "count", len(records))
	return len(records), nil
}

// Get reads back one stored record.
func (s *Storage) Get(namespace, id string) (domain.IngestRecord, error) {
	var rec domain.IngestRecord
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.vectorKey(namespace, id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	return rec, err
}

// DescribeIndexStats counts stored records per namespace.
func (s *Storage) DescribeIndexStats(ctx context.Context) (domain.IndexStats, error) {
	spec, err := s.loadSpec()
	if err != nil {
		return domain.IndexStats{}, err
	}
	stats := domain.IndexStats{Dimension: spec.Dimension, Namespaces: make(map[string]int)}
	prefix := s.vectorPrefix()
	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			rest := it.Item().Key()[len(prefix):]
			ns := rest
			if i := bytes.IndexByte(rest, 0); i >= 0 {
				ns = rest[:i]
			}
			stats.Namespaces[string(ns)]++
			stats.TotalVectorCount++
		}
		return nil
	})
	return stats, err
}

// Close releases the database.
func (s *Storage) Close() error {
	return s.db.Close()
}

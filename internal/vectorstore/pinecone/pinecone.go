// Package pinecone writes records to a Pinecone serverless index.
package pinecone

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/pinecone-io/go-pinecone/v3/pinecone"
	"google.golang.org/protobuf/types/known/structpb"

	"profrag/internal/domain"
)

// indexAdmin is the control-plane subset of *pinecone.Client.
type indexAdmin interface {
	CreateServerlessIndex(ctx context.Context, in *pinecone.CreateServerlessIndexRequest) (*pinecone.Index, error)
	DescribeIndex(ctx context.Context, idxName string) (*pinecone.Index, error)
}

// indexConn is the data-plane subset of *pinecone.IndexConnection.
type indexConn interface {
	UpsertVectors(ctx context.Context, in []*pinecone.Vector) (uint32, error)
	DescribeIndexStats(ctx context.Context) (*pinecone.DescribeIndexStatsResponse, error)
	Close() error
}

// Config configures the Pinecone store.
type Config struct {
	APIKeyEnv string
	IndexName string
	// Host skips the DescribeIndex lookup when the index host is already known.
	Host         string
	ReadyTimeout time.Duration
	PollInterval time.Duration
}

// Storage implements domain.VectorStore on top of the Pinecone Go SDK.
type Storage struct {
	admin        indexAdmin
	connect      func(host, namespace string) (indexConn, error)
	name         string
	readyTimeout time.Duration
	pollInterval time.Duration
	logger       *slog.Logger

	mu   sync.Mutex
	host string
}

// NewStorage creates a Pinecone client for the configured index.
func NewStorage(cfg Config) (*Storage, error) {
	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, fmt.Errorf("%w: missing API key in env %s", domain.ErrConfig, cfg.APIKeyEnv)
	}
	pc, err := pinecone.NewClient(pinecone.NewClientParams{ApiKey: key})
	if err != nil {
		return nil, fmt.Errorf("%w: pinecone client: %v", domain.ErrConfig, err)
	}
	connect := func(host, namespace string) (indexConn, error) {
		return pc.Index(pinecone.NewIndexConnParams{Host: host, Namespace: namespace})
	}
	return newStorage(pc, connect, cfg), nil
}

func newStorage(admin indexAdmin, connect func(host, namespace string) (indexConn, error), cfg Config) *Storage {
	ready := cfg.ReadyTimeout
	if ready == 0 {
		ready = 2 * time.Minute
	}
	poll := cfg.PollInterval
	if poll == 0 {
		poll = 2 * time.Second
	}
	return &Storage{
		admin:        admin,
		connect:      connect,
		name:         cfg.IndexName,
		host:         cfg.Host,
		readyTimeout: ready,
		pollInterval: poll,
		logger:       slog.Default().With("component", "pinecone-store", "index", cfg.IndexName),
	}
}

// CreateIndex provisions a serverless index and waits until it accepts writes.
// An existing index with the same name is reported as ErrIndexAlreadyExists.
func (s *Storage) CreateIndex(ctx context.Context, spec domain.IndexSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrConfig, spec.Dimension)
	}
	if !spec.Metric.Valid() {
		return fmt.Errorf("%w: unsupported metric %q", domain.ErrConfig, spec.Metric)
	}
	dim := int32(spec.Dimension)
	metric := pinecone.IndexMetric(spec.Metric)
	idx, err := s.admin.CreateServerlessIndex(ctx, &pinecone.CreateServerlessIndexRequest{
		Name:      spec.Name,
		Dimension: &dim,
		Metric:    &metric,
		Cloud:     pinecone.Cloud(spec.Cloud),
		Region:    spec.Region,
	})
	if err != nil {
		var perr *pinecone.PineconeError
		if errors.As(err, &perr) && perr.Code == http.StatusConflict {
			return fmt.Errorf("%w: %s", domain.ErrIndexAlreadyExists, spec.Name)
		}
		return fmt.Errorf("create index %s: %w", spec.Name, err)
	}
	s.logger.Info("index created", "dimension", spec.Dimension, "metric", spec.Metric, "cloud", spec.Cloud, "region", spec.Region)
	if idx != nil && idx.Status != nil && idx.Status.Ready && idx.Host != "" {
		s.setHost(idx.Host)
		return nil
	}
	return s.waitReady(ctx)
}

func (s *Storage) waitReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.readyTimeout)
	defer cancel()
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		idx, err := s.admin.DescribeIndex(ctx, s.name)
		if err != nil {
			return fmt.Errorf("describe index %s: %w", s.name, err)
		}
		if idx.Status != nil && idx.Status.Ready {
			s.setHost(idx.Host)
			return nil
		}
		s.logger.Debug("waiting for index to become ready")
		select {
		case <-ctx.Done():
			return fmt.Errorf("index %s not ready: %w", s.name, ctx.Err())
		case <-ticker.C:
		}
	}
}

func (s *Storage) setHost(host string) {
	s.mu.Lock()
	s.host = host
	s.mu.Unlock()
}

func (s *Storage) resolveHost(ctx context.Context) (string, error) {
	s.mu.Lock()
	host := s.host
	s.mu.Unlock()
	if host != "" {
		return host, nil
	}
	idx, err := s.admin.DescribeIndex(ctx, s.name)
	if err != nil {
		var perr *pinecone.PineconeError
		if errors.As(err, &perr) && perr.Code == http.StatusNotFound {
			return "", fmt.Errorf("%w: %s", domain.ErrIndexNotFound, s.name)
		}
		return "", fmt.Errorf("describe index %s: %w", s.name, err)
	}
	s.setHost(idx.Host)
	return idx.Host, nil
}

// Upsert sends the whole batch to namespace in one call.
func (s *Storage) Upsert(ctx context.Context, namespace string, records []domain.IngestRecord) (int, error) {
	vectors, err := toVectors(records)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrUpsert, err)
	}
	host, err := s.resolveHost(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrUpsert, err)
	}
	conn, err := s.connect(host, namespace)
	if err != nil {
		return 0, fmt.Errorf("%w: connect %s: %w", domain.ErrUpsert, host, err)
	}
	defer conn.Close()
	count, err := conn.UpsertVectors(ctx, vectors)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", domain.ErrUpsert, err)
	}
	return int(count), nil
}

// DescribeIndexStats returns the index-wide statistics.
func (s *Storage) DescribeIndexStats(ctx context.Context) (domain.IndexStats, error) {
	host, err := s.resolveHost(ctx)
	if err != nil {
		return domain.IndexStats{}, err
	}
	conn, err := s.connect(host, "")
	if err != nil {
		return domain.IndexStats{}, fmt.Errorf("connect %s: %w", host, err)
	}
	defer conn.Close()
	resp, err := conn.DescribeIndexStats(ctx)
	if err != nil {
		return domain.IndexStats{}, fmt.Errorf("describe index stats: %w", err)
	}
	return fromStats(resp), nil
}

// Close is a no-op; connections are closed per call.
func (s *Storage) Close() error { return nil }

func toVectors(records []domain.IngestRecord) ([]*pinecone.Vector, error) {
	vectors := make([]*pinecone.Vector, len(records))
	for i, r := range records {
		md, err := structpb.NewStruct(map[string]any{
			"review":  r.Metadata.Review,
			"subject": r.Metadata.Subject,
			"stars":   r.Metadata.Stars,
		})
		if err != nil {
			return nil, fmt.Errorf("metadata for %q: %w", r.ID, err)
		}
		values := r.Values
		vectors[i] = &pinecone.Vector{Id: r.ID, Values: &values, Metadata: md}
	}
	return vectors, nil
}

func fromStats(resp *pinecone.DescribeIndexStatsResponse) domain.IndexStats {
	stats := domain.IndexStats{Namespaces: make(map[string]int)}
	if resp == nil {
		return stats
	}
	if resp.Dimension != nil {
		stats.Dimension = int(*resp.Dimension)
	}
	stats.TotalVectorCount = int(resp.TotalVectorCount)
	stats.IndexFullness = float64(resp.IndexFullness)
	for name, ns := range resp.Namespaces {
		if ns != nil {
			stats.Namespaces[name] = int(ns.VectorCount)
		}
	}
	return stats
}

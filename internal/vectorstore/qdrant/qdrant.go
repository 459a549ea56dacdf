package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"profrag/internal/domain"
)

// Storage is a minimal REST client to Qdrant.
// Qdrant has no namespaces, so the namespace is stored in the payload and
// point ids are derived from namespace and record id.
type Storage struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client
	logger     *slog.Logger

	mu   sync.Mutex
	seen map[string]struct{}
}

type Config struct {
	URL        string
	APIKeyEnv  string
	Collection string
	Timeout    time.Duration
}

// pointNamespace seeds the UUIDv5 point ids.
var pointNamespace = uuid.MustParse("6f1c1b4e-3f0e-5a7c-9d61-2b8f0c7e4a10")

func NewStorage(cfg Config) *Storage {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	var key string
	if cfg.APIKeyEnv != "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     key,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
		logger:     slog.Default().With("component", "qdrant-store", "collection", cfg.Collection),
		seen:       make(map[string]struct{}),
	}
}

// PointID returns the Qdrant point id used for a record id in a namespace.
func PointID(namespace, id string) string {
	return uuid.NewSHA1(pointNamespace, []byte(namespace+"/"+id)).String()
}

func (s *Storage) CreateIndex(ctx context.Context, spec domain.IndexSpec) error {
	if spec.Dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrConfig, spec.Dimension)
	}
	distance, err := distanceName(spec.Metric)
	if err != nil {
		return err
	}
	var exists struct {
		Result struct {
			Exists bool `json:"exists"`
		} `json:"result"`
	}
	if _, err := s.doJSON(ctx, http.MethodGet, s.collectionURL("/exists"), nil, &exists); err != nil {
		return err
	}
	if exists.Result.Exists {
		return fmt.Errorf("%w: %s", domain.ErrIndexAlreadyExists, s.collection)
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     spec.Dimension,
			"distance": distance,
		},
	}
	status, err := s.doJSON(ctx, http.MethodPut, s.collectionURL(""), body, nil)
	if status == http.StatusConflict {
		return fmt.Errorf("%w: %s", domain.ErrIndexAlreadyExists, s.collection)
	}
	if err != nil {
		return err
	}
	// The keyword index on namespace backs the facet query in DescribeIndexStats.
	index := map[string]any{"field_name": "namespace", "field_schema": "keyword"}
	if _, err := s.doJSON(ctx, http.MethodPut, s.collectionURL("/index?wait=true"), index, nil); err != nil {
		return fmt.Errorf("create namespace index: %w", err)
	}
	return nil
}

func (s *Storage) Upsert(ctx context.Context, namespace string, records []domain.IngestRecord) (int, error) {
	points := make([]map[string]any, len(records))
	for i, r := range records {
		points[i] = map[string]any{
			"id":     PointID(namespace, r.ID),
			"vector": r.Values,
			"payload": map[string]any{
				"record_id": r.ID,
				"namespace": namespace,
				"review":    r.Metadata.Review,
				"subject":   r.Metadata.Subject,
				"stars":     r.Metadata.Stars,
			},
		}
	}
	body := map[string]any{"points": points}
	status, err := s.doJSON(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil)
	if err != nil {
		if status == http.StatusNotFound {
			return 0, fmt.Errorf("%w: %w: %s", domain.ErrUpsert, domain.ErrIndexNotFound, s.collection)
		}
		return 0, fmt.Errorf("%w: %w", domain.ErrUpsert, err)
	}
	s.mu.Lock()
	s.seen[namespace] = struct{}{}
	s.mu.Unlock()
	return len(records), nil
}

// DescribeIndexStats reports the collection size and the point count of every
// namespace stored in it. Servers without the facet API only report the
// namespaces this client has written to.
func (s *Storage) DescribeIndexStats(ctx context.Context) (domain.IndexStats, error) {
	var info struct {
		Result struct {
			PointsCount int `json:"points_count"`
			Config      struct {
				Params struct {
					Vectors struct {
						Size int `json:"size"`
					} `json:"vectors"`
				} `json:"params"`
			} `json:"config"`
		} `json:"result"`
	}
	status, err := s.doJSON(ctx, http.MethodGet, s.collectionURL(""), nil, &info)
	if err != nil {
		if status == http.StatusNotFound {
			return domain.IndexStats{}, fmt.Errorf("%w: %s", domain.ErrIndexNotFound, s.collection)
		}
		return domain.IndexStats{}, err
	}
	stats := domain.IndexStats{
		Dimension:        info.Result.Config.Params.Vectors.Size,
		TotalVectorCount: info.Result.PointsCount,
	}
	namespaces, err := s.facetNamespaces(ctx)
	if err != nil {
		s.logger.Debug("facet query failed, counting known namespaces", "err", err)
		namespaces, err = s.countSeenNamespaces(ctx)
		if err != nil {
			return domain.IndexStats{}, err
		}
	}
	stats.Namespaces = namespaces
	return stats, nil
}

func (s *Storage) facetNamespaces(ctx context.Context) (map[string]int, error) {
	req := map[string]any{"key": "namespace", "limit": 1000, "exact": true}
	var resp struct {
		Result struct {
			Hits []struct {
				Value any `json:"value"`
				Count int `json:"count"`
			} `json:"hits"`
		} `json:"result"`
	}
	if _, err := s.doJSON(ctx, http.MethodPost, s.collectionURL("/facet"), req, &resp); err != nil {
		return nil, err
	}
	namespaces := make(map[string]int, len(resp.Result.Hits))
	for _, hit := range resp.Result.Hits {
		if ns, ok := hit.Value.(string); ok {
			namespaces[ns] = hit.Count
		}
	}
	return namespaces, nil
}

func (s *Storage) countSeenNamespaces(ctx context.Context) (map[string]int, error) {
	s.mu.Lock()
	names := make([]string, 0, len(s.seen))
	for ns := range s.seen {
		names = append(names, ns)
	}
	s.mu.Unlock()
	sort.Strings(names)
	namespaces := make(map[string]int, len(names))
	for _, ns := range names {
		req := map[string]any{
			"exact": true,
			"filter": map[string]any{
				"must": []map[string]any{{"key": "namespace", "match": map[string]any{"value": ns}}},
			},
		}
		var resp struct {
			Result struct {
				Count int `json:"count"`
			} `json:"result"`
		}
		if _, err := s.doJSON(ctx, http.MethodPost, s.collectionURL("/points/count"), req, &resp); err != nil {
			return nil, err
		}
		namespaces[ns] = resp.Result.Count
	}
	return namespaces, nil
}

func (s *Storage) Close() error {
	s.client.CloseIdleConnections()
	return nil
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) doJSON(ctx context.Context, method, url string, body any, out any) (int, error) {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return resp.StatusCode, fmt.Errorf("qdrant %s %s failed: %s", method, url, resp.Status)
	}
	if out != nil {
		dec := json.NewDecoder(resp.Body)
		return resp.StatusCode, dec.Decode(out)
	}
	return resp.StatusCode, nil
}

func distanceName(m domain.Metric) (string, error) {
	switch m {
	case domain.MetricCosine, "":
		return "Cosine", nil
	case domain.MetricDotProduct:
		return "Dot", nil
	case domain.MetricEuclidean:
		return "Euclid", nil
	}
	return "", fmt.Errorf("%w: unsupported metric %q", domain.ErrConfig, m)
}

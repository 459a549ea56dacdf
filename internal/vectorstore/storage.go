// Package vectorstore builds the configured vector index backend.
package vectorstore

import (
	"fmt"
	"time"

	"profrag/internal/config"
	"profrag/internal/domain"
	"profrag/internal/vectorstore/badger"
	"profrag/internal/vectorstore/memory"
	"profrag/internal/vectorstore/pinecone"
	"profrag/internal/vectorstore/qdrant"
)

// Open returns the store selected by cfg.VectorStore.Type, bound to cfg.Index.Name.
func Open(cfg *config.AppConfig) (domain.VectorStore, error) {
	name := cfg.Index.Name
	vs := cfg.VectorStore
	switch vs.Type {
	case "memory":
		return memory.NewStorage(name), nil
	case "pinecone", "":
		if vs.Pinecone == nil {
			return nil, fmt.Errorf("%w: pinecone config missing", domain.ErrConfig)
		}
		st, err := pinecone.NewStorage(pinecone.Config{
			APIKeyEnv:    vs.Pinecone.APIKeyEnv,
			IndexName:    name,
			Host:         vs.Pinecone.Host,
			ReadyTimeout: time.Duration(vs.Pinecone.ReadyTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case "qdrant":
		if vs.Qdrant == nil {
			return nil, fmt.Errorf("%w: qdrant config missing", domain.ErrConfig)
		}
		return qdrant.NewStorage(qdrant.Config{
			URL:        vs.Qdrant.URL,
			APIKeyEnv:  vs.Qdrant.APIKeyEnv,
			Collection: name,
			Timeout:    time.Duration(vs.Qdrant.TimeoutSecs) * time.Second,
		}), nil
	case "badger":
		if vs.Badger == nil {
			return nil, fmt.Errorf("%w: badger config missing", domain.ErrConfig)
		}
		st, err := badger.Open(vs.Badger.Path, name)
		if err != nil {
			return nil, err
		}
		return st, nil
	default:
		return nil, fmt.Errorf("%w: unknown vector store: %s", domain.ErrConfig, vs.Type)
	}
}

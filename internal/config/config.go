package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"profrag/internal/domain"
)

// CorpusConfig locates the review corpus and controls load-time checks.
type CorpusConfig struct {
	Path           string `yaml:"path"`
	ValidateSchema *bool  `yaml:"validate_schema,omitempty"`
}

// IndexConfig declares the target index and namespace.
type IndexConfig struct {
	Name      string `yaml:"name"`
	Dimension int    `yaml:"dimension"`
	Metric    string `yaml:"metric"`
	Namespace string `yaml:"namespace"`
	Cloud     string `yaml:"cloud"`
	Region    string `yaml:"region"`
}

// GeminiEmbedderConfig holds configuration for the Gemini embedder.
type GeminiEmbedderConfig struct {
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type          string                `yaml:"type"`
	TaskType      string                `yaml:"task_type"`
	Concurrency   int                   `yaml:"concurrency"`
	CompositeText bool                  `yaml:"composite_text"`
	Gemini        *GeminiEmbedderConfig `yaml:"gemini,omitempty"`
	OpenAI        *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Pinecone *PineconeConfig `yaml:"pinecone,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
	Badger   *BadgerConfig   `yaml:"badger,omitempty"`
}

// PineconeConfig contains connection details for a Pinecone project.
type PineconeConfig struct {
	APIKeyEnv       string `yaml:"api_key_env"`
	Host            string `yaml:"host"`
	ReadyTimeoutSec int    `yaml:"ready_timeout_secs"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// BadgerConfig points at the directory of the embedded local store.
type BadgerConfig struct {
	Path string `yaml:"path"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Corpus      CorpusConfig      `yaml:"corpus"`
	Index       IndexConfig       `yaml:"index"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Log         LogConfig         `yaml:"log"`
}

// SchemaValidation reports whether corpus schema checks are enabled.
func (c *AppConfig) SchemaValidation() bool {
	return c.Corpus.ValidateSchema == nil || *c.Corpus.ValidateSchema
}

// IndexSpec converts the index section into the provisioning request.
func (c *AppConfig) IndexSpec() domain.IndexSpec {
	return domain.IndexSpec{
		Name:      c.Index.Name,
		Dimension: c.Index.Dimension,
		Metric:    domain.Metric(c.Index.Metric),
		Cloud:     c.Index.Cloud,
		Region:    c.Index.Region,
	}
}

// Validate reports the first setting that would make the pipeline unusable.
func (c *AppConfig) Validate() error {
	if c.Index.Name == "" {
		return fmt.Errorf("%w: index.name is required", domain.ErrConfig)
	}
	if c.Index.Dimension <= 0 {
		return fmt.Errorf("%w: index.dimension must be positive, got %d", domain.ErrConfig, c.Index.Dimension)
	}
	if !domain.Metric(c.Index.Metric).Valid() {
		return fmt.Errorf("%w: unknown index.metric %q", domain.ErrConfig, c.Index.Metric)
	}
	if c.Index.Namespace == "" {
		return fmt.Errorf("%w: index.namespace is required", domain.ErrConfig)
	}
	if !domain.TaskType(c.Embedder.TaskType).Valid() {
		return fmt.Errorf("%w: unknown embedder.task_type %q", domain.ErrConfig, c.Embedder.TaskType)
	}
	if c.Embedder.Concurrency < 1 {
		return fmt.Errorf("%w: embedder.concurrency must be at least 1", domain.ErrConfig)
	}
	if c.Corpus.Path == "" {
		return fmt.Errorf("%w: corpus.path is required", domain.ErrConfig)
	}
	return nil
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg := defaultConfig()
			return cfg, nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrConfig, path, err)
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/profrag/config.yaml.
// If neither exists, the built-in defaults are returned with an empty path.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := DefaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	return defaultConfig(), "", nil
}

// Default returns the built-in configuration.
func Default() *AppConfig { return defaultConfig() }

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// DefaultUserConfigPath returns ~/.config/profrag/config.yaml.
func DefaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "profrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Corpus: CorpusConfig{Path: "reviews.json"},
		Index: IndexConfig{
			Name:      "rag",
			Dimension: 768,
			Metric:    string(domain.MetricCosine),
			Namespace: "ns1",
			Cloud:     "aws",
			Region:    "us-east-1",
		},
		Embedder:    EmbedderConfig{Type: "gemini"},
		VectorStore: VectorStoreConfig{Type: "pinecone"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Corpus.Path == "" {
		cfg.Corpus.Path = "reviews.json"
	}
	if cfg.Index.Metric == "" {
		cfg.Index.Metric = string(domain.MetricCosine)
	}
	if cfg.Index.Namespace == "" {
		cfg.Index.Namespace = "ns1"
	}
	if cfg.Index.Cloud == "" {
		cfg.Index.Cloud = "aws"
	}
	if cfg.Index.Region == "" {
		cfg.Index.Region = "us-east-1"
	}
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "gemini"
	}
	if cfg.Embedder.TaskType == "" {
		cfg.Embedder.TaskType = string(domain.TaskRetrievalDocument)
	}
	if cfg.Embedder.Concurrency == 0 {
		cfg.Embedder.Concurrency = 1
	}
	switch cfg.Embedder.Type {
	case "gemini":
		if cfg.Embedder.Gemini == nil {
			cfg.Embedder.Gemini = &GeminiEmbedderConfig{}
		}
		g := cfg.Embedder.Gemini
		if g.APIKeyEnv == "" {
			g.APIKeyEnv = "GOOGLE_API_KEY"
		}
		if g.Model == "" {
			g.Model = "gemini-embedding-001"
		}
		if g.TimeoutSecs == 0 {
			g.TimeoutSecs = 30
		}
		if cfg.Index.Dimension == 0 {
			cfg.Index.Dimension = 768
		}
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if cfg.Index.Dimension == 0 {
			cfg.Index.Dimension = 1536
		}
	}
	if cfg.Index.Dimension == 0 {
		cfg.Index.Dimension = 768
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "pinecone"
	}
	switch cfg.VectorStore.Type {
	case "pinecone":
		if cfg.VectorStore.Pinecone == nil {
			cfg.VectorStore.Pinecone = &PineconeConfig{}
		}
		if cfg.VectorStore.Pinecone.APIKeyEnv == "" {
			cfg.VectorStore.Pinecone.APIKeyEnv = "PINECONE_API_KEY"
		}
		if cfg.VectorStore.Pinecone.ReadyTimeoutSec == 0 {
			cfg.VectorStore.Pinecone.ReadyTimeoutSec = 120
		}
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		if cfg.VectorStore.Qdrant.URL == "" {
			cfg.VectorStore.Qdrant.URL = "http://localhost:6333"
		}
		if cfg.VectorStore.Qdrant.APIKeyEnv == "" {
			cfg.VectorStore.Qdrant.APIKeyEnv = "QDRANT_API_KEY"
		}
		if cfg.VectorStore.Qdrant.TimeoutSecs == 0 {
			cfg.VectorStore.Qdrant.TimeoutSecs = 15
		}
	case "badger":
		if cfg.VectorStore.Badger == nil {
			cfg.VectorStore.Badger = &BadgerConfig{}
		}
		if cfg.VectorStore.Badger.Path == "" {
			cfg.VectorStore.Badger.Path = filepath.Join(".profrag", "index")
		}
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

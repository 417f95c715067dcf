// Package config defines the validated configuration struct consumed by the
// context engine, plus YAML loading with defaults for the CLI.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/agentfusion/contextd/internal/errors"
	"github.com/agentfusion/contextd/internal/logging"
)

// DefaultConfigFile is the per-project config file name.
const DefaultConfigFile = ".contextd.yaml"

// Config is the complete context engine configuration.
type Config struct {
	// WatchRoots are the directories the engine monitors. Paths are stored
	// relative to the root that contains them.
	WatchRoots []string `yaml:"watch_roots"`

	// AllowedExtensions restricts indexing to these extensions when
	// non-empty (lowercase, no dot).
	AllowedExtensions []string `yaml:"allowed_extensions"`

	// BlockedExtensions are never indexed. Checked before AllowedExtensions.
	BlockedExtensions []string `yaml:"blocked_extensions"`

	// IgnoreFiles are per-directory ignore files honored during discovery.
	IgnoreFiles []string `yaml:"ignore_files"`

	// IgnorePatterns are explicit gitignore-style patterns from config.
	IgnorePatterns []string `yaml:"ignore_patterns"`

	// MaxFileSizeBytes rejects larger files as TOO_LARGE.
	MaxFileSizeBytes int64 `yaml:"max_file_size_bytes"`

	// WarnFileSizeBytes logs a warning above this size but still indexes.
	WarnFileSizeBytes int64 `yaml:"warn_file_size_bytes"`

	// SizeExceptions are doublestar globs exempt from MaxFileSizeBytes.
	SizeExceptions []string `yaml:"size_exceptions"`

	// BinaryThreshold is the max fraction of invalid UTF-8 bytes in the
	// first 8 KiB before a file is classified BINARY.
	BinaryThreshold float64 `yaml:"binary_threshold"`

	// FollowSymlinks enables symlink traversal during discovery.
	FollowSymlinks bool `yaml:"follow_symlinks"`

	// MaxSymlinkDepth bounds symlink resolution.
	MaxSymlinkDepth int `yaml:"max_symlink_depth"`

	// DebounceMs is the watcher coalescing window in milliseconds.
	DebounceMs int `yaml:"debounce_ms"`

	// WorkerCount is the indexing worker pool size (0 = NumCPU).
	WorkerCount int `yaml:"worker_count"`

	// ShutdownTimeoutMs bounds the in-flight drain on shutdown.
	ShutdownTimeoutMs int `yaml:"shutdown_timeout_ms"`

	// FileTimeoutMs bounds a single file's indexing run.
	FileTimeoutMs int `yaml:"file_timeout_ms"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Providers ProvidersConfig `yaml:"providers"`
	Query     QueryConfig     `yaml:"query"`
	Budget    BudgetConfig    `yaml:"budget"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   logging.Config  `yaml:"logging"`
}

// EmbeddingConfig configures the embedder.
type EmbeddingConfig struct {
	ModelTag  string `yaml:"model_tag"`
	Dim       int    `yaml:"dim"`
	Normalize bool   `yaml:"normalize"`
	BatchSize int    `yaml:"batch_size"`
	CacheSize int    `yaml:"cache_size"`
}

// LanguageChunking configures per-language chunk bounds.
type LanguageChunking struct {
	MaxTokens      int `yaml:"max_tokens"`
	OverlapPercent int `yaml:"overlap_percent"`
}

// ChunkingConfig configures the chunker.
type ChunkingConfig struct {
	// PerLanguage overrides keyed by language name ("markdown", "go", ...).
	// The "default" key applies to everything else.
	PerLanguage map[string]LanguageChunking `yaml:"per_language"`

	// MaxHeadingLevel is the deepest markdown heading that starts a section.
	MaxHeadingLevel int `yaml:"max_heading_level"`
}

// ProviderConfig enables and weights a single search provider.
type ProviderConfig struct {
	Enabled bool    `yaml:"enabled"`
	Weight  float64 `yaml:"weight"`
}

// ProvidersConfig configures the search providers.
type ProvidersConfig struct {
	Semantic ProviderConfig `yaml:"semantic"`
	Symbol   ProviderConfig `yaml:"symbol"`
	FullText ProviderConfig `yaml:"full_text"`
}

// QueryConfig configures the search pipeline.
type QueryConfig struct {
	DefaultK          int     `yaml:"default_k"`
	MMRLambda         float64 `yaml:"mmr_lambda"`
	MinScoreThreshold float64 `yaml:"min_score_threshold"`
	RerankEnabled     bool    `yaml:"rerank_enabled"`
	// DeadlineMs bounds a single query; laggard providers contribute nothing.
	DeadlineMs int `yaml:"deadline_ms"`
}

// BudgetConfig configures the token budget applied to results.
type BudgetConfig struct {
	DefaultMaxTokens int `yaml:"default_max_tokens"`
	ReserveForPrompt int `yaml:"reserve_for_prompt"`
}

// StorageConfig configures persistence.
type StorageConfig struct {
	DBPath string `yaml:"db_path"`
	// FullTextBackend selects the full-text index: "fts5" (default) or "bleve".
	FullTextBackend string `yaml:"fulltext_backend"`
	// BlevePath is the bleve index directory (derived from DBPath if empty).
	BlevePath string `yaml:"bleve_path"`
}

// Default returns the configuration defaults for a single watch root.
func Default(root string) *Config {
	return &Config{
		WatchRoots: []string{root},
		BlockedExtensions: []string{
			"exe", "dll", "so", "dylib", "bin", "o", "a",
			"png", "jpg", "jpeg", "gif", "ico", "pdf", "zip", "gz", "tar",
			"woff", "woff2", "ttf", "mp3", "mp4", "lock",
		},
		IgnoreFiles: []string{".gitignore", ".contextignore", ".dockerignore"},
		// The engine's own state directory is never indexable.
		IgnorePatterns:    []string{".contextd/", "node_modules/"},
		MaxFileSizeBytes:  5 * 1024 * 1024,
		WarnFileSizeBytes: 1 * 1024 * 1024,
		BinaryThreshold:   0.05,
		MaxSymlinkDepth:   5,
		DebounceMs:        500,
		WorkerCount:       runtime.NumCPU(),
		ShutdownTimeoutMs: 10_000,
		FileTimeoutMs:     60_000,
		Embedding: EmbeddingConfig{
			ModelTag:  "hash-v1",
			Dim:       384,
			Normalize: true,
			BatchSize: 32,
			CacheSize: 4096,
		},
		Chunking: ChunkingConfig{
			PerLanguage: map[string]LanguageChunking{
				"default":  {MaxTokens: 512, OverlapPercent: 10},
				"markdown": {MaxTokens: 768, OverlapPercent: 0},
			},
			MaxHeadingLevel: 3,
		},
		Providers: ProvidersConfig{
			Semantic: ProviderConfig{Enabled: true, Weight: 0.5},
			Symbol:   ProviderConfig{Enabled: true, Weight: 0.2},
			FullText: ProviderConfig{Enabled: true, Weight: 0.3},
		},
		Query: QueryConfig{
			DefaultK:          10,
			MMRLambda:         0.5,
			MinScoreThreshold: 0.0,
			RerankEnabled:     true,
			DeadlineMs:        5_000,
		},
		Budget: BudgetConfig{
			DefaultMaxTokens: 8_000,
			ReserveForPrompt: 500,
		},
		Storage: StorageConfig{
			DBPath:          filepath.Join(root, ".contextd", "context.db"),
			FullTextBackend: "fts5",
		},
		Logging: logging.Config{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
			Stderr:    "auto",
		},
	}
}

// Load reads the config file at path, layered over Default(root).
// A missing file returns the defaults.
func Load(root, path string) (*Config, error) {
	cfg := Default(root)
	if path == "" {
		path = filepath.Join(root, DefaultConfigFile)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.New(errors.ErrCodeConfigNotFound, "cannot read config file: "+path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.ConfigError("invalid YAML in "+path, err)
	}
	if cfg.Logging.FilePath == "" {
		cfg.Logging.FilePath = filepath.Join(filepath.Dir(cfg.Storage.DBPath), "engine.log")
	}
	// User patterns replace the defaults wholesale; the state directory
	// must stay ignored or the watcher feeds on its own database writes.
	if !containsPattern(cfg.IgnorePatterns, ".contextd/") {
		cfg.IgnorePatterns = append(cfg.IgnorePatterns, ".contextd/")
	}
	return cfg, nil
}

func containsPattern(patterns []string, want string) bool {
	for _, p := range patterns {
		if p == want {
			return true
		}
	}
	return false
}

// Validate checks internal consistency. Errors here are fatal at init.
func (c *Config) Validate() error {
	if len(c.WatchRoots) == 0 {
		return errors.ConfigError("watch_roots must not be empty", nil)
	}
	for _, root := range c.WatchRoots {
		if !filepath.IsAbs(root) {
			return errors.ConfigError("watch root must be absolute: "+root, nil)
		}
		info, err := os.Stat(root)
		if err != nil {
			return errors.ConfigError("watch root not accessible: "+root, err)
		}
		if !info.IsDir() {
			return errors.ConfigError("watch root is not a directory: "+root, nil)
		}
	}
	if c.MaxFileSizeBytes <= 0 {
		return errors.ConfigError("max_file_size_bytes must be positive", nil)
	}
	if c.BinaryThreshold < 0 || c.BinaryThreshold > 1 {
		return errors.ConfigError("binary_threshold must be in [0, 1]", nil)
	}
	if c.Embedding.Dim <= 0 {
		return errors.ConfigError("embedding.dim must be positive", nil)
	}
	if c.Embedding.BatchSize <= 0 {
		return errors.ConfigError("embedding.batch_size must be positive", nil)
	}
	if c.Query.MMRLambda < 0 || c.Query.MMRLambda > 1 {
		return errors.ConfigError("query.mmr_lambda must be in [0, 1]", nil)
	}
	if c.Budget.ReserveForPrompt >= c.Budget.DefaultMaxTokens {
		return errors.ConfigError("budget.reserve_for_prompt must be below default_max_tokens", nil)
	}
	switch strings.ToLower(c.Storage.FullTextBackend) {
	case "", "fts5", "bleve":
	default:
		return errors.ConfigError("storage.fulltext_backend must be fts5 or bleve", nil)
	}
	total := 0.0
	for _, p := range []ProviderConfig{c.Providers.Semantic, c.Providers.Symbol, c.Providers.FullText} {
		if p.Enabled {
			if p.Weight < 0 {
				return errors.ConfigError("provider weights must be non-negative", nil)
			}
			total += p.Weight
		}
	}
	if total == 0 {
		return errors.ConfigError("at least one provider must be enabled with positive weight", nil)
	}
	if c.Storage.DBPath == "" {
		return errors.ConfigError("storage.db_path must be set", nil)
	}
	return nil
}

// LanguageChunkingFor resolves the chunking bounds for a language.
func (c *Config) LanguageChunkingFor(language string) LanguageChunking {
	if lc, ok := c.Chunking.PerLanguage[language]; ok {
		return lc
	}
	if lc, ok := c.Chunking.PerLanguage["default"]; ok {
		return lc
	}
	return LanguageChunking{MaxTokens: 512, OverlapPercent: 10}
}

// Workers returns the effective indexing worker count.
func (c *Config) Workers() int {
	if c.WorkerCount > 0 {
		return c.WorkerCount
	}
	return runtime.NumCPU()
}

// WriteYAML persists the config to path, creating parent directories.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.InternalError("marshal config", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.FilesystemError("create config directory", err)
	}
	return os.WriteFile(path, data, 0o644)
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfusion/contextd/internal/errors"
)

func TestDefault_IsValid(t *testing.T) {
	root := t.TempDir()
	cfg := Default(root)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{root}, cfg.WatchRoots)
	assert.Equal(t, 384, cfg.Embedding.Dim)
	assert.Equal(t, 500, cfg.DebounceMs)
	assert.Contains(t, cfg.IgnoreFiles, ".contextignore")
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, Default(root).MaxFileSizeBytes, cfg.MaxFileSizeBytes)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	root := t.TempDir()
	yaml := `
allowed_extensions: [md, go]
debounce_ms: 250
embedding:
  model_tag: hash-v1
  dim: 256
  normalize: true
  batch_size: 16
providers:
  semantic: {enabled: true, weight: 0.6}
  symbol: {enabled: true, weight: 0.4}
  full_text: {enabled: false, weight: 0}
`
	path := filepath.Join(root, DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(root, "")
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, []string{"md", "go"}, cfg.AllowedExtensions)
	assert.Equal(t, 250, cfg.DebounceMs)
	assert.Equal(t, 256, cfg.Embedding.Dim)
	assert.Equal(t, 0.6, cfg.Providers.Semantic.Weight)
	assert.False(t, cfg.Providers.FullText.Enabled)
}

func TestLoad_InvalidYAML(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte("watch_roots: [unbalanced"), 0o644))

	_, err := Load(root, "")
	require.Error(t, err)
	assert.Equal(t, errors.CategoryConfig, errors.GetCategory(err))
}

func TestValidate_Failures(t *testing.T) {
	root := t.TempDir()

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no watch roots", func(c *Config) { c.WatchRoots = nil }},
		{"relative root", func(c *Config) { c.WatchRoots = []string{"relative/path"} }},
		{"missing root", func(c *Config) { c.WatchRoots = []string{filepath.Join(root, "nope")} }},
		{"zero max size", func(c *Config) { c.MaxFileSizeBytes = 0 }},
		{"binary threshold out of range", func(c *Config) { c.BinaryThreshold = 1.5 }},
		{"zero dim", func(c *Config) { c.Embedding.Dim = 0 }},
		{"mmr lambda out of range", func(c *Config) { c.Query.MMRLambda = 2 }},
		{"reserve exceeds budget", func(c *Config) { c.Budget.ReserveForPrompt = c.Budget.DefaultMaxTokens }},
		{"bad fulltext backend", func(c *Config) { c.Storage.FullTextBackend = "elasticsearch" }},
		{"all providers disabled", func(c *Config) {
			c.Providers.Semantic.Enabled = false
			c.Providers.Symbol.Enabled = false
			c.Providers.FullText.Enabled = false
		}},
		{"empty db path", func(c *Config) { c.Storage.DBPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default(root)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsFatal(err), "config errors must be fatal")
		})
	}
}

func TestLanguageChunkingFor(t *testing.T) {
	cfg := Default(t.TempDir())

	md := cfg.LanguageChunkingFor("markdown")
	assert.Equal(t, 768, md.MaxTokens)

	// Unknown language falls back to the default entry.
	unknown := cfg.LanguageChunkingFor("fortran")
	assert.Equal(t, 512, unknown.MaxTokens)
	assert.Equal(t, 10, unknown.OverlapPercent)
}

func TestWriteYAMLRoundTrip(t *testing.T) {
	root := t.TempDir()
	cfg := Default(root)
	cfg.AllowedExtensions = []string{"md"}

	path := filepath.Join(root, "sub", DefaultConfigFile)
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(root, path)
	require.NoError(t, err)
	assert.Equal(t, []string{"md"}, loaded.AllowedExtensions)
}

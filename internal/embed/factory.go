package embed

import (
	"fmt"
	"log/slog"

	"github.com/agentfusion/contextd/internal/config"
	"github.com/agentfusion/contextd/internal/errors"
)

// New creates an embedder from config, wrapped with the LRU cache. The
// model tag selects the implementation; unknown tags fail fast so the
// store never mixes vectors from different models.
func New(cfg config.EmbeddingConfig, logger *slog.Logger) (Embedder, error) {
	var inner Embedder
	switch cfg.ModelTag {
	case "", ModelTagHashV1:
		inner = NewHashEmbedder(cfg.Dim, cfg.Normalize)
	default:
		return nil, errors.New(errors.ErrCodeEmbedModel,
			fmt.Sprintf("unknown embedding model tag %q", cfg.ModelTag), nil).
			WithSuggestion("set embedding.model_tag to \"hash-v1\"")
	}

	if logger != nil {
		logger.Debug("embedder ready",
			"model_tag", inner.ModelTag(),
			"dimensions", inner.Dimensions(),
			"cache_size", cfg.CacheSize)
	}
	return NewCachedEmbedder(inner, cfg.CacheSize), nil
}

package embed

import "github.com/agentfusion/contextd/internal/config"

func testEmbeddingConfig(tag string) config.EmbeddingConfig {
	return config.EmbeddingConfig{
		ModelTag:  tag,
		Dim:       384,
		Normalize: true,
		BatchSize: 8,
		CacheSize: 32,
	}
}

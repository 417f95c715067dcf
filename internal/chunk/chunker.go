package chunk

import (
	"context"
	"log/slog"
)

// Chunker dispatches files to the strategy matching their language.
type Chunker struct {
	code     *CodeChunker
	markdown *MarkdownChunker
	brace    *BraceChunker
	text     *TextChunker
	registry *LanguageRegistry
	logger   *slog.Logger
}

// New creates a chunker with all strategies wired.
func New(logger *slog.Logger) *Chunker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Chunker{
		code:     NewCodeChunker(),
		markdown: NewMarkdownChunker(),
		brace:    NewBraceChunker(),
		text:     NewTextChunker(),
		registry: DefaultRegistry(),
		logger:   logger,
	}
}

// Chunk splits source according to the language strategy. Drafts come back
// in source order with dense 0-based ordinals.
func (c *Chunker) Chunk(ctx context.Context, source []byte, language string, opts Options) ([]Draft, error) {
	switch {
	case language == "markdown":
		return c.markdown.Chunk(source, opts), nil

	case c.registry.Supported(language):
		drafts, err := c.code.Chunk(ctx, source, language, opts)
		if err != nil {
			// A parse failure degrades to plain-text chunking rather than
			// losing the file.
			c.logger.Debug("ast chunking failed, falling back to text",
				slog.String("language", language),
				slog.String("error", err.Error()))
			return c.text.Chunk(source, opts), nil
		}
		return drafts, nil

	case IsCurly(language):
		return c.brace.Chunk(source, opts), nil

	default:
		return c.text.Chunk(source, opts), nil
	}
}

// Close releases parser resources.
func (c *Chunker) Close() {
	c.code.Close()
}

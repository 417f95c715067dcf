package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkdownChunker_HeadingBasedSplitting(t *testing.T) {
	chunker := NewMarkdownChunker()

	content := `# Title

Welcome to the project.

## Section 1

Content for section 1.

## Section 2

Content for section 2.
`
	chunks := chunker.Chunk([]byte(content), Options{})
	require.Len(t, chunks, 3, "expected 3 chunks for 3 sections")

	assert.Equal(t, "Title", chunks[0].Summary)
	assert.Contains(t, chunks[0].Text, "Welcome to the project")
	assert.Equal(t, KindDocSection, chunks[0].Kind)

	assert.Equal(t, "Section 1", chunks[1].Summary)
	assert.Equal(t, "Section 2", chunks[2].Summary)

	// Ordinals are dense and 0-based.
	for i, ch := range chunks {
		assert.Equal(t, i, ch.Ordinal)
	}
}

func TestMarkdownChunker_SingleSection(t *testing.T) {
	chunker := NewMarkdownChunker()
	chunks := chunker.Chunk([]byte("# Title\n\nhello world\n"), Options{})

	require.Len(t, chunks, 1)
	assert.Equal(t, KindDocSection, chunks[0].Kind)
	assert.Equal(t, "Title", chunks[0].Summary)
	assert.Equal(t, 1, chunks[0].StartLine)
	assert.Equal(t, 3, chunks[0].EndLine)
	require.Len(t, chunks[0].Symbols, 1)
	assert.Equal(t, SymbolHeading, chunks[0].Symbols[0].Kind)
}

func TestMarkdownChunker_CodeFencesStayIntact(t *testing.T) {
	chunker := NewMarkdownChunker()

	content := "# API\n\n```go\n" + strings.Repeat("callExample()\n", 200) + "```\n\n## Next\n\ntext\n"
	chunks := chunker.Chunk([]byte(content), Options{MaxTokens: 64})

	for _, ch := range chunks {
		opens := strings.Count(ch.Text, "```")
		assert.True(t, opens%2 == 0, "chunk must not split inside a fence:\n%s", ch.Text)
	}
}

func TestMarkdownChunker_HeadingInsideFenceIgnored(t *testing.T) {
	chunker := NewMarkdownChunker()

	content := "# Real\n\n```\n# not a heading\n```\n"
	chunks := chunker.Chunk([]byte(content), Options{})

	require.Len(t, chunks, 1)
	assert.Equal(t, "Real", chunks[0].Summary)
}

func TestMarkdownChunker_FrontMatterSkipped(t *testing.T) {
	chunker := NewMarkdownChunker()

	content := "---\ntitle: doc\n---\n# Body\n\ncontent\n"
	chunks := chunker.Chunk([]byte(content), Options{})

	require.Len(t, chunks, 1)
	assert.Equal(t, "Body", chunks[0].Summary)
	assert.NotContains(t, chunks[0].Text, "title: doc")
	assert.Equal(t, 4, chunks[0].StartLine, "line numbers count from the file start")
}

func TestMarkdownChunker_DeepHeadingsStayInSection(t *testing.T) {
	chunker := NewMarkdownChunker()

	content := "## Top\n\ntext\n\n#### Deep\n\nmore\n"
	chunks := chunker.Chunk([]byte(content), Options{MaxHeadingLevel: 3})

	require.Len(t, chunks, 1, "level-4 heading must not start a new section")
	assert.Contains(t, chunks[0].Text, "#### Deep")
}

func TestMarkdownChunker_NoHeadingsFallsToParagraphs(t *testing.T) {
	chunker := NewMarkdownChunker()
	chunks := chunker.Chunk([]byte("just some text\n\nwith paragraphs\n"), Options{})

	require.NotEmpty(t, chunks)
	assert.Equal(t, KindDocParagraph, chunks[0].Kind)
	assert.Empty(t, chunks[0].Summary)
}

func TestMarkdownChunker_OversizeSectionSplits(t *testing.T) {
	chunker := NewMarkdownChunker()

	var sb strings.Builder
	sb.WriteString("# Big\n\n")
	for i := 0; i < 300; i++ {
		sb.WriteString("a line of documentation text for padding\n")
	}
	chunks := chunker.Chunk([]byte(sb.String()), Options{MaxTokens: 128})

	require.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.LessOrEqual(t, ch.TokenCount, 128+32, "chunks must respect the token bound")
		assert.Equal(t, "Big", ch.Summary, "continuation chunks keep the heading")
	}
}

func TestMarkdownChunker_Empty(t *testing.T) {
	chunker := NewMarkdownChunker()
	assert.Nil(t, chunker.Chunk([]byte("   \n  \n"), Options{}))
	assert.Nil(t, chunker.Chunk(nil, Options{}))
}

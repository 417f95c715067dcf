package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentfusion/contextd/internal/errors"
	"github.com/agentfusion/contextd/internal/store"
)

func chunkAt(rel, language, kind string) store.ChunkRecord {
	return store.ChunkRecord{RelPath: rel, Language: language, Kind: kind}
}

func TestFilter_EmptyMatchesEverything(t *testing.T) {
	m, err := compileFilter(Filter{})
	require.NoError(t, err)
	assert.True(t, m.Match(chunkAt("internal/a.go", "go", "CODE_FUNCTION")))
	assert.True(t, m.Match(chunkAt("README.md", "markdown", "DOC_SECTION")))
}

func TestFilter_Paths(t *testing.T) {
	m, err := compileFilter(Filter{Paths: []string{"internal/store", "main.go"}})
	require.NoError(t, err)

	assert.True(t, m.Match(chunkAt("main.go", "go", "CODE_FUNCTION")), "exact")
	assert.True(t, m.Match(chunkAt("internal/store/sqlite.go", "go", "CODE_FUNCTION")), "ancestor")
	assert.False(t, m.Match(chunkAt("internal/storefront/x.go", "go", "CODE_FUNCTION")),
		"ancestor match is per path segment")
	assert.False(t, m.Match(chunkAt("cmd/main.go", "go", "CODE_FUNCTION")))
}

func TestFilter_PathGlobs(t *testing.T) {
	m, err := compileFilter(Filter{Paths: []string{"internal/**/*.go"}})
	require.NoError(t, err)

	assert.True(t, m.Match(chunkAt("internal/store/sqlite.go", "go", "CODE_FUNCTION")))
	assert.False(t, m.Match(chunkAt("cmd/root.go", "go", "CODE_FUNCTION")))
}

func TestFilter_LanguagesAndKinds(t *testing.T) {
	m, err := compileFilter(Filter{Languages: []string{"go"}, Kinds: []string{"code_function"}})
	require.NoError(t, err)

	assert.True(t, m.Match(chunkAt("a.go", "go", "CODE_FUNCTION")))
	assert.False(t, m.Match(chunkAt("a.py", "python", "CODE_FUNCTION")))
	assert.False(t, m.Match(chunkAt("a.go", "go", "CODE_CLASS")))
}

func TestFilter_ExcludePatterns(t *testing.T) {
	m, err := compileFilter(Filter{ExcludePatterns: []string{"**/*_test.go"}})
	require.NoError(t, err)

	assert.True(t, m.Match(chunkAt("internal/store/sqlite.go", "go", "CODE_FUNCTION")))
	assert.False(t, m.Match(chunkAt("internal/store/sqlite_test.go", "go", "CODE_FUNCTION")))
}

func TestFilter_InvalidGlobIsLoudError(t *testing.T) {
	_, err := compileFilter(Filter{Paths: []string{"internal/[unclosed"}})
	require.Error(t, err)
	var engineErr *errors.EngineError
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, errors.ErrCodeInvalidFilter, engineErr.Code)

	_, err = compileFilter(Filter{ExcludePatterns: []string{"[bad"}})
	require.Error(t, err)
}

package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitCamelCase(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"getUserById", []string{"get", "User", "By", "Id"}},
		{"HTTPHandler", []string{"HTTP", "Handler"}},
		{"parseHTTPRequest", []string{"parse", "HTTP", "Request"}},
		{"simple", []string{"simple"}},
		{"", []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SplitCamelCase(tt.in), "input %q", tt.in)
	}
}

func TestTokenizeCode(t *testing.T) {
	tokens := TokenizeCode("replaceFileArtifacts(ctx, old_chunk_ids)")
	assert.Contains(t, tokens, "replace")
	assert.Contains(t, tokens, "file")
	assert.Contains(t, tokens, "artifacts")
	assert.Contains(t, tokens, "chunk")
	assert.Contains(t, tokens, "ids")
	assert.NotContains(t, tokens, "c", "single-char tokens are dropped")
}

func TestFilterStopWords(t *testing.T) {
	stop := BuildStopWordMap(DefaultCodeStopWords)
	tokens := FilterStopWords([]string{"func", "open", "return", "database"}, stop)
	assert.Equal(t, []string{"open", "database"}, tokens)
}

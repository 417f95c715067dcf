package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_DerivesCategoryAndSeverity(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		category Category
		severity Severity
	}{
		{"config is fatal", ErrCodeConfigInvalid, CategoryConfig, SeverityFatal},
		{"io is error", ErrCodeFileRead, CategoryIO, SeverityError},
		{"chunking is error", ErrCodeChunkFailed, CategoryChunking, SeverityError},
		{"embedding is error", ErrCodeEmbedFailed, CategoryEmbedding, SeverityError},
		{"store is error", ErrCodeStoreTx, CategoryStore, SeverityError},
		{"timeout is warning", ErrCodeTimeout, CategoryTimeout, SeverityWarning},
		{"cancelled is info", ErrCodeCancelled, CategoryCancelled, SeverityInfo},
		{"validation is error", ErrCodeInvalidFilter, CategoryValidation, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, "boom", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestEngineError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("disk on fire")
	err := FilesystemError("read failed", cause)

	require.ErrorIs(t, err, cause)
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestEngineError_IsMatchesByCode(t *testing.T) {
	a := New(ErrCodeEmbedFailed, "first", nil)
	b := New(ErrCodeEmbedFailed, "second", nil)
	c := New(ErrCodeStoreTx, "other", nil)

	assert.True(t, stderrors.Is(a, b))
	assert.False(t, stderrors.Is(a, c))
}

func TestRetryableFlags(t *testing.T) {
	assert.True(t, IsRetryable(EmbeddingError("transient", nil)))
	assert.True(t, IsRetryable(New(ErrCodeStoreLocked, "busy", nil)))
	assert.False(t, IsRetryable(ConfigError("bad config", nil)))
	assert.False(t, IsRetryable(nil))
	assert.False(t, IsRetryable(fmt.Errorf("plain error")))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(ConfigError("missing watch root", nil)))
	assert.False(t, IsFatal(TimeoutError("slow", nil)))
	assert.False(t, IsFatal(nil))
}

func TestWithDetailAndSuggestion(t *testing.T) {
	err := StoreError("constraint violated", nil).
		WithDetail("table", "chunks").
		WithSuggestion("run rebuild")

	assert.Equal(t, "chunks", err.Details["table"])
	assert.Equal(t, "run rebuild", err.Suggestion)
	assert.Contains(t, err.Error(), ErrCodeStoreTx)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeFileRead, nil))
}

func TestGetCodeAndCategory(t *testing.T) {
	err := ChunkingError("bad parse", nil)
	assert.Equal(t, ErrCodeChunkFailed, GetCode(err))
	assert.Equal(t, CategoryChunking, GetCategory(err))
	assert.Empty(t, GetCode(fmt.Errorf("plain")))
}

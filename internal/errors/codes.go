// Package errors provides structured error handling for the context engine.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Filesystem and IO errors
//   - 3XX: Chunking errors
//   - 4XX: Embedding errors
//   - 5XX: Store errors
//   - 6XX: Timeout and cancellation
//   - 7XX: Validation errors
//   - 9XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryChunking indicates chunker failures.
	CategoryChunking Category = "CHUNKING"
	// CategoryEmbedding indicates embedding model or runtime failures.
	CategoryEmbedding Category = "EMBEDDING"
	// CategoryStore indicates persistence-layer failures.
	CategoryStore Category = "STORE"
	// CategoryTimeout indicates deadline expiry.
	CategoryTimeout Category = "TIMEOUT"
	// CategoryCancelled indicates cooperative shutdown.
	CategoryCancelled Category = "CANCELLED"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199). Fatal at init: startup aborts.
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"

	// Filesystem errors (200-299). Localized to a single path.
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeFileRead       = "ERR_203_FILE_READ"
	ErrCodeWatchFailed    = "ERR_204_WATCH_FAILED"

	// Chunking errors (300-399).
	ErrCodeChunkFailed   = "ERR_301_CHUNK_FAILED"
	ErrCodeChunkTooLarge = "ERR_302_CHUNK_TOO_LARGE"

	// Embedding errors (400-499).
	ErrCodeEmbedFailed    = "ERR_401_EMBED_FAILED"
	ErrCodeEmbedModel     = "ERR_402_EMBED_MODEL_UNAVAILABLE"
	ErrCodeEmbedDimension = "ERR_403_EMBED_DIMENSION_MISMATCH"

	// Store errors (500-599).
	ErrCodeStoreTx         = "ERR_501_STORE_TRANSACTION"
	ErrCodeStoreConstraint = "ERR_502_STORE_CONSTRAINT"
	ErrCodeStoreCorrupt    = "ERR_503_STORE_CORRUPT"
	ErrCodeStoreLocked     = "ERR_504_STORE_LOCKED"

	// Timeout / cancellation (600-699).
	ErrCodeTimeout   = "ERR_601_TIMEOUT"
	ErrCodeCancelled = "ERR_602_CANCELLED"

	// Validation errors (700-799).
	ErrCodeInvalidInput  = "ERR_701_INVALID_INPUT"
	ErrCodeInvalidFilter = "ERR_702_INVALID_FILTER"

	// Internal errors (900-999).
	ErrCodeInternal = "ERR_901_INTERNAL"
)

// categoryFromCode derives the category from the code's numeric block.
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryChunking
	case '4':
		return CategoryEmbedding
	case '5':
		return CategoryStore
	case '6':
		if code == ErrCodeCancelled {
			return CategoryCancelled
		}
		return CategoryTimeout
	case '7':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode derives severity from the code. Only config errors are
// fatal; cancellation is informational; everything else is ERROR.
func severityFromCode(code string) Severity {
	switch categoryFromCode(code) {
	case CategoryConfig:
		return SeverityFatal
	case CategoryCancelled:
		return SeverityInfo
	case CategoryTimeout:
		return SeverityWarning
	default:
		return SeverityError
	}
}

// retryableCodes lists codes where a retry can plausibly succeed.
var retryableCodes = map[string]bool{
	ErrCodeFileRead:    true,
	ErrCodeEmbedFailed: true,
	ErrCodeStoreLocked: true,
	ErrCodeTimeout:     true,
}

func isRetryableCode(code string) bool {
	return retryableCodes[code]
}

package store

import (
	"fmt"

	"github.com/agentfusion/contextd/internal/errors"
)

// NewFullTextIndex creates the configured full-text backend. For fts5
// the path should end in .db; for bleve it names a directory. An empty
// path yields an in-memory index for tests.
func NewFullTextIndex(backend FullTextBackend, path string) (FullTextIndex, error) {
	switch backend {
	case FullTextBackendFTS5, "":
		return NewFTS5Index(path)
	case FullTextBackendBleve:
		return NewBleveIndex(path)
	default:
		return nil, errors.ConfigError(
			fmt.Sprintf("unknown fulltext backend %q (valid: fts5, bleve)", backend), nil)
	}
}

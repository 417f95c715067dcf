// Package watcher turns raw filesystem notifications into debounced
// batches of index work.
package watcher

import "time"

// Op is the terminal kind of a filesystem event after coalescing.
type Op int

const (
	// OpCreated indicates a new file appeared.
	OpCreated Op = iota
	// OpModified indicates an existing file changed.
	OpModified
	// OpDeleted indicates a file is gone. Deletions are dispatched
	// without classification: the path no longer exists to classify.
	OpDeleted
)

func (op Op) String() string {
	switch op {
	case OpCreated:
		return "CREATED"
	case OpModified:
		return "MODIFIED"
	case OpDeleted:
		return "DELETED"
	default:
		return "UNKNOWN"
	}
}

// Event is one filesystem change, keyed by absolute path.
type Event struct {
	Path string
	Op   Op
	At   time.Time
}

// Package detect diffs the tracked index state against the live
// filesystem. Used on startup and by explicit refresh to catch changes
// that happened while the engine was not watching.
package detect

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/agentfusion/contextd/internal/errors"
	"github.com/agentfusion/contextd/internal/policy"
	"github.com/agentfusion/contextd/internal/store"
)

// ChangeSet lists paths (relative to the root) whose index state is
// stale. Each slice is sorted.
type ChangeSet struct {
	Created  []string
	Modified []string
	Deleted  []string
}

// Empty reports whether no changes were found.
func (c *ChangeSet) Empty() bool {
	return len(c.Created) == 0 && len(c.Modified) == 0 && len(c.Deleted) == 0
}

// Total returns the number of changed paths.
func (c *ChangeSet) Total() int {
	return len(c.Created) + len(c.Modified) + len(c.Deleted)
}

// Detector compares tracked files against the filesystem.
type Detector struct {
	store  *store.Store
	policy *policy.Policy
	logger *slog.Logger
}

// New creates a Detector.
func New(st *store.Store, pol *policy.Policy, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{store: st, policy: pol, logger: logger}
}

// Diff scans root and compares against tracked files. The mtime+size
// pair is a cheap prefilter: when both match the tracked record the file
// is assumed unchanged; when either differs the content hash decides, so
// touch-without-change does not trigger re-indexing.
func (d *Detector) Diff(ctx context.Context, root string) (*ChangeSet, error) {
	tracked, err := d.store.ListFiles(ctx, root)
	if err != nil {
		return nil, err
	}
	trackedByPath := make(map[string]store.FileRecord, len(tracked))
	for _, f := range tracked {
		trackedByPath[f.RelPath] = f
	}

	decisions, err := d.policy.ScanRoot(ctx, root)
	if err != nil {
		return nil, err
	}

	changes := &ChangeSet{}
	seen := make(map[string]struct{}, len(decisions))
	for _, decision := range decisions {
		if err := ctx.Err(); err != nil {
			return nil, errors.Cancelled("diff cancelled")
		}
		rel := decision.RelPath
		seen[rel] = struct{}{}

		record, ok := trackedByPath[rel]
		if !ok {
			changes.Created = append(changes.Created, rel)
			continue
		}

		absPath := filepath.Join(root, rel)
		info, statErr := os.Stat(absPath)
		if statErr != nil {
			// Raced with a delete; the tracked side handles it below.
			continue
		}
		if info.ModTime().UnixNano() == record.MTimeNs && info.Size() == record.SizeBytes {
			continue
		}

		hash, hashErr := HashFile(absPath)
		if hashErr != nil {
			d.logger.Debug("hash failed during diff",
				slog.String("path", rel),
				slog.String("error", hashErr.Error()))
			continue
		}
		if hash != record.ContentHash {
			changes.Modified = append(changes.Modified, rel)
		}
	}

	for rel := range trackedByPath {
		if _, ok := seen[rel]; !ok {
			changes.Deleted = append(changes.Deleted, rel)
		}
	}

	sort.Strings(changes.Created)
	sort.Strings(changes.Modified)
	sort.Strings(changes.Deleted)
	return changes, nil
}

// HashFile returns the sha256 hex digest of a file's content.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errors.FilesystemError("open for hashing: "+path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", errors.FilesystemError("hash content: "+path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

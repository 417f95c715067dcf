package policy

import (
	"context"
	"io/fs"
	"path/filepath"

	"github.com/agentfusion/contextd/internal/errors"
	"github.com/agentfusion/contextd/internal/ignore"
)

// ScanRoot walks a watch root and returns the decisions for every
// indexable file, sorted by the walk order (lexical). Ignored directories
// are pruned without descending. Non-INDEX decisions are dropped; callers
// that care about skips classify individual paths themselves.
func (p *Policy) ScanRoot(ctx context.Context, root string) ([]Decision, error) {
	root = filepath.Clean(root)
	matcher := p.matchers[root]

	var decisions []Decision
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// Unreadable entries are skipped, not fatal.
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return errors.Cancelled("scan cancelled")
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if rel, relErr := filepath.Rel(root, path); relErr == nil && p.skipDir(matcher, rel) {
				return filepath.SkipDir
			}
			return nil
		}

		if decision := p.Classify(path); decision.Index() {
			decisions = append(decisions, decision)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return decisions, nil
}

// SkipDir reports whether a directory under root should be pruned from
// traversal: .git always, plus any ignore pattern match.
func (p *Policy) SkipDir(root, rel string) bool {
	return p.skipDir(p.matchers[filepath.Clean(root)], rel)
}

func (p *Policy) skipDir(matcher *ignore.Matcher, rel string) bool {
	if rel == ".git" || filepath.Base(rel) == ".git" {
		return true
	}
	return matcher != nil && matcher.Match(filepath.ToSlash(rel), true)
}

// Package ignore implements gitignore-syntax pattern matching for the path
// policy. A Matcher holds the union of every ignore file found under a watch
// root (.gitignore, .contextignore, .dockerignore by default) plus explicit
// config patterns. Pattern syntax follows
// https://git-scm.com/docs/gitignore: '/' anchoring, '**' recursion,
// trailing-'/' directory rules, and '!' negation where the last matching
// rule wins.
package ignore

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds compiled ignore rules and provides thread-safe matching.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

// rule is a single compiled ignore pattern.
type rule struct {
	pattern  string         // original pattern text
	regex    *regexp.Regexp // compiled matcher
	negation bool           // starts with !
	dirOnly  bool           // ends with /
	anchored bool           // leading / or internal /
	base     string         // directory the source file lives in, "" for root
}

// NewMatcher creates an empty Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// AddPattern adds a pattern that applies from the watch root.
func (m *Matcher) AddPattern(pattern string) {
	m.AddPatternAt(pattern, "")
}

// AddPatternAt adds a pattern that only applies under base (slash-separated,
// relative to the watch root). Nested ignore files register their directory
// here so their rules stay scoped, matching git's nearest-ancestor behavior.
func (m *Matcher) AddPatternAt(pattern, base string) {
	pattern = strings.TrimRight(strings.TrimSpace(pattern), "\r")
	if pattern == "" || (strings.HasPrefix(pattern, "#") && !strings.HasPrefix(pattern, `\#`)) {
		return
	}

	r := rule{pattern: pattern, base: filepath.ToSlash(base)}

	switch {
	case strings.HasPrefix(pattern, `\#`), strings.HasPrefix(pattern, `\!`):
		pattern = pattern[1:]
		r.pattern = pattern
	case strings.HasPrefix(pattern, "!"):
		r.negation = true
		pattern = pattern[1:]
	}

	if strings.HasSuffix(pattern, "/") {
		r.dirOnly = true
		pattern = strings.TrimSuffix(pattern, "/")
	}
	if strings.HasPrefix(pattern, "/") {
		r.anchored = true
		pattern = strings.TrimPrefix(pattern, "/")
	}
	// "doc/frotz" means "/doc/frotz", not "**/doc/frotz".
	if strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**/") {
		r.anchored = true
	}

	r.regex = regexp.MustCompile("^" + patternToRegex(pattern) + "$")

	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

// AddFile reads patterns from an ignore file, scoping them to base.
func (m *Matcher) AddFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m.AddPatternAt(scanner.Text(), base)
	}
	return scanner.Err()
}

// Len returns the number of loaded rules.
func (m *Matcher) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rules)
}

// Match reports whether the slash-separated relative path should be ignored.
// Rules are evaluated in order; the last matching rule decides, so a later
// negation can un-ignore an earlier match.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for _, r := range m.rules {
		if matchRule(path, isDir, r) {
			ignored = !r.negation
		}
	}
	return ignored
}

func matchRule(path string, isDir bool, r rule) bool {
	if r.base != "" {
		if path == r.base || !strings.HasPrefix(path, r.base+"/") {
			return false
		}
		path = strings.TrimPrefix(path, r.base+"/")
	}

	parts := strings.Split(path, "/")
	basename := parts[len(parts)-1]

	if r.anchored {
		if r.regex.MatchString(path) {
			return !r.dirOnly || isDir
		}
		// Files inside a matched directory are covered by a dir-only rule.
		if r.dirOnly {
			for i := range parts[:len(parts)-1] {
				if r.regex.MatchString(strings.Join(parts[:i+1], "/")) {
					return true
				}
			}
		}
		return false
	}

	if r.dirOnly {
		// "temp/" matches a temp directory anywhere plus its contents.
		for i, part := range parts {
			if r.regex.MatchString(part) {
				if i == len(parts)-1 {
					return isDir
				}
				return true
			}
		}
		return false
	}

	if r.regex.MatchString(basename) || r.regex.MatchString(path) {
		return true
	}
	for _, part := range parts {
		if r.regex.MatchString(part) {
			return true
		}
	}
	return false
}

// patternToRegex converts a gitignore pattern to a regex fragment.
func patternToRegex(pattern string) string {
	var out strings.Builder

	for i := 0; i < len(pattern); {
		c := pattern[i]
		switch c {
		case '*':
			if strings.HasPrefix(pattern[i:], "**/") {
				out.WriteString("(?:.*/)?")
				i += 3
				continue
			}
			if strings.HasPrefix(pattern[i:], "**") && (i == 0 || pattern[i-1] == '/') {
				out.WriteString(".*")
				i += 2
				continue
			}
			out.WriteString("[^/]*")
			i++
		case '?':
			out.WriteString("[^/]")
			i++
		case '[':
			end := strings.IndexByte(pattern[i:], ']')
			if end > 0 {
				out.WriteString(pattern[i : i+end+1])
				i += end + 1
			} else {
				out.WriteString(regexp.QuoteMeta("["))
				i++
			}
		case '\\':
			if i+1 < len(pattern) {
				out.WriteString(regexp.QuoteMeta(string(pattern[i+1])))
				i += 2
			} else {
				out.WriteString(regexp.QuoteMeta(`\`))
				i++
			}
		default:
			out.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	return out.String()
}

// LoadTree builds a Matcher from every ignore file named in ignoreFiles
// found anywhere under root, each scoped to its own directory, plus the
// explicit extra patterns applied from the root. Directories already ignored
// by an ancestor's rules are not descended into.
func LoadTree(root string, ignoreFiles, extraPatterns []string) (*Matcher, error) {
	m := NewMatcher()
	for _, p := range extraPatterns {
		m.AddPattern(p)
	}

	names := make(map[string]bool, len(ignoreFiles))
	for _, n := range ignoreFiles {
		names[n] = true
	}
	if len(names) == 0 {
		return m, nil
	}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, skip
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if rel == "." {
			rel = ""
		}
		if d.IsDir() {
			if rel != "" && m.Match(rel, true) {
				return filepath.SkipDir
			}
			return nil
		}
		if names[d.Name()] {
			base := ""
			if idx := strings.LastIndex(rel, "/"); idx >= 0 {
				base = rel[:idx]
			}
			if ferr := m.AddFile(path, base); ferr != nil {
				return fmt.Errorf("load %s: %w", path, ferr)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

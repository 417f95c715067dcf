package search

import (
	"strings"

	"github.com/gobwas/glob"

	"github.com/agentfusion/contextd/internal/errors"
	"github.com/agentfusion/contextd/internal/store"
)

// matcher is a compiled Filter. Compilation fails loudly on a bad glob;
// a silently-empty result set would be indistinguishable from "no
// matches" and impossible to debug.
type matcher struct {
	exactPaths map[string]bool
	ancestors  []string
	pathGlobs  []glob.Glob
	languages  map[string]bool
	kinds      map[string]bool
	excludes   []glob.Glob
}

func compileFilter(f Filter) (*matcher, error) {
	m := &matcher{
		exactPaths: make(map[string]bool),
		languages:  toLowerSet(f.Languages),
		kinds:      toUpperSet(f.Kinds),
	}
	for _, p := range f.Paths {
		p = strings.TrimSuffix(p, "/")
		if isGlobPattern(p) {
			g, err := glob.Compile(p, '/')
			if err != nil {
				return nil, errors.New(errors.ErrCodeInvalidFilter,
					"invalid path pattern: "+p, err).
					WithSuggestion("use glob syntax, e.g. internal/**/*.go")
			}
			m.pathGlobs = append(m.pathGlobs, g)
			continue
		}
		m.exactPaths[p] = true
		m.ancestors = append(m.ancestors, p+"/")
	}
	for _, p := range f.ExcludePatterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, errors.New(errors.ErrCodeInvalidFilter,
				"invalid exclude pattern: "+p, err)
		}
		m.excludes = append(m.excludes, g)
	}
	return m, nil
}

// Match reports whether a chunk passes the filter.
func (m *matcher) Match(c store.ChunkRecord) bool {
	if len(m.languages) > 0 && !m.languages[strings.ToLower(c.Language)] {
		return false
	}
	if len(m.kinds) > 0 && !m.kinds[strings.ToUpper(c.Kind)] {
		return false
	}
	if !m.matchPath(c.RelPath) {
		return false
	}
	for _, g := range m.excludes {
		if g.Match(c.RelPath) {
			return false
		}
	}
	return true
}

func (m *matcher) matchPath(rel string) bool {
	if len(m.exactPaths) == 0 && len(m.pathGlobs) == 0 {
		return true
	}
	if m.exactPaths[rel] {
		return true
	}
	for _, prefix := range m.ancestors {
		if strings.HasPrefix(rel, prefix) {
			return true
		}
	}
	for _, g := range m.pathGlobs {
		if g.Match(rel) {
			return true
		}
	}
	return false
}

func isGlobPattern(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

func toLowerSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[strings.ToLower(it)] = true
	}
	return set
}

func toUpperSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, it := range items {
		set[strings.ToUpper(it)] = true
	}
	return set
}

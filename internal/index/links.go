package index

import (
	"regexp"
	"strings"

	"github.com/agentfusion/contextd/internal/chunk"
	"github.com/agentfusion/contextd/internal/store"
)

// Link kinds persisted alongside chunks.
const (
	linkKindImport   = "import"
	linkKindMarkdown = "markdown"
)

var (
	// Matches [text](target). Targets that look like URLs are skipped;
	// only repository-relative references are worth tracking.
	markdownLinkRegex = regexp.MustCompile(`\[[^\]]*\]\(([^)\s]+)\)`)

	// Quoted import paths in import statements and require calls.
	importRegex = regexp.MustCompile(`(?m)^\s*(?:import\b[^"']*|from\s+|require\s*\()\s*["']([^"']+)["']`)
)

// extractLinks pulls cross-file references out of a chunk: markdown link
// targets for doc chunks, import paths for code chunks.
func extractLinks(d chunk.Draft, language string) []store.LinkRecord {
	var links []store.LinkRecord
	switch d.Kind {
	case chunk.KindDocSection, chunk.KindDocParagraph:
		for _, m := range markdownLinkRegex.FindAllStringSubmatch(d.Text, -1) {
			target := m[1]
			if isExternalTarget(target) {
				continue
			}
			// Drop fragments: "README.md#usage" links the file.
			if i := strings.IndexByte(target, '#'); i >= 0 {
				target = target[:i]
			}
			if target == "" {
				continue
			}
			links = append(links, store.LinkRecord{TargetPath: target, Kind: linkKindMarkdown})
		}
	case chunk.KindCodeBlock, chunk.KindCodeClass, chunk.KindCodeFunction:
		for _, m := range importRegex.FindAllStringSubmatch(d.Text, -1) {
			links = append(links, store.LinkRecord{TargetPath: m[1], Kind: linkKindImport})
		}
	}
	return links
}

func isExternalTarget(target string) bool {
	return strings.Contains(target, "://") ||
		strings.HasPrefix(target, "mailto:") ||
		strings.HasPrefix(target, "#")
}

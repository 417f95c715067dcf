package chunk

import (
	"regexp"
	"strings"
)

// MarkdownChunker splits markdown into heading-based sections. Fenced code
// blocks are treated as atomic: a heading or split point inside a fence
// never starts a new chunk. Front matter is skipped, not chunked.
type MarkdownChunker struct{}

// NewMarkdownChunker creates a markdown chunker.
func NewMarkdownChunker() *MarkdownChunker {
	return &MarkdownChunker{}
}

var (
	headingPattern = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*$`)
	fencePattern   = regexp.MustCompile("^(```|~~~)")
)

// mdLine is a scanned line with its byte offset and fence state.
type mdLine struct {
	text      string
	byteStart int
	inFence   bool
}

// Chunk splits markdown source into DOC_SECTION / DOC_PARAGRAPH drafts.
func (c *MarkdownChunker) Chunk(source []byte, opts Options) []Draft {
	opts = opts.withDefaults()
	content := string(source)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	lines := scanLines(content)
	start := skipFrontMatter(lines)

	// Group lines into sections at headings of level <= MaxHeadingLevel.
	type mdSection struct {
		heading    string
		firstLine  int // index into lines
		lastLine   int // inclusive
	}
	var sections []mdSection
	current := mdSection{firstLine: start, lastLine: start - 1}

	for i := start; i < len(lines); i++ {
		line := lines[i]
		if !line.inFence {
			if m := headingPattern.FindStringSubmatch(line.text); m != nil && len(m[1]) <= opts.MaxHeadingLevel {
				if current.lastLine >= current.firstLine {
					sections = append(sections, current)
				}
				current = mdSection{heading: m[2], firstLine: i, lastLine: i}
				continue
			}
		}
		current.lastLine = i
	}
	if current.lastLine >= current.firstLine {
		sections = append(sections, current)
	}

	var drafts []Draft
	for _, sec := range sections {
		kind := KindDocSection
		if sec.heading == "" {
			kind = KindDocParagraph
		}
		secLines := lines[sec.firstLine : sec.lastLine+1]
		for _, piece := range splitSection(secLines, content, opts.MaxTokens) {
			if strings.TrimSpace(piece.text) == "" {
				continue
			}
			d := Draft{
				Ordinal:    len(drafts),
				Kind:       kind,
				StartLine:  piece.startLine,
				EndLine:    piece.endLine,
				ByteStart:  piece.byteStart,
				ByteEnd:    piece.byteEnd,
				TokenCount: EstimateTokens(piece.text),
				Text:       piece.text,
				Summary:    sec.heading,
			}
			if sec.heading != "" {
				d.Symbols = []Symbol{{Name: sec.heading, Kind: SymbolHeading}}
			}
			drafts = append(drafts, d)
		}
	}
	return drafts
}

type mdPiece struct {
	text                 string
	startLine, endLine   int
	byteStart, byteEnd   int
}

// splitSection packs a section's lines into pieces of at most maxTokens,
// breaking only at line boundaries outside fences.
func splitSection(secLines []mdLine, content string, maxTokens int) []mdPiece {
	if len(secLines) == 0 {
		return nil
	}

	var pieces []mdPiece
	pieceStart := 0
	budget := 0

	flush := func(endIdx int) { // endIdx inclusive
		first, last := secLines[pieceStart], secLines[endIdx]
		byteEnd := last.byteStart + len(last.text)
		if byteEnd < len(content) {
			byteEnd++ // include the newline
		}
		pieces = append(pieces, mdPiece{
			text:      content[first.byteStart:byteEnd],
			startLine: lineNumberOf(content, first.byteStart),
			endLine:   lineNumberOf(content, last.byteStart),
			byteStart: first.byteStart,
			byteEnd:   byteEnd,
		})
	}

	for i, line := range secLines {
		lineTokens := EstimateTokens(line.text) + 1
		if budget+lineTokens > maxTokens && i > pieceStart && !line.inFence {
			flush(i - 1)
			pieceStart = i
			budget = 0
		}
		budget += lineTokens
	}
	flush(len(secLines) - 1)
	return pieces
}

// scanLines splits content into lines annotated with byte offsets and
// whether the line sits inside a fenced code block (fence delimiters
// themselves count as inside so they never become split points).
func scanLines(content string) []mdLine {
	raw := strings.Split(content, "\n")
	// A trailing newline yields an empty artifact line; drop it so section
	// end lines land on real content.
	if len(raw) > 0 && raw[len(raw)-1] == "" {
		raw = raw[:len(raw)-1]
	}
	lines := make([]mdLine, 0, len(raw))
	offset := 0
	inFence := false
	fenceDelim := ""

	for _, text := range raw {
		line := mdLine{text: text, byteStart: offset}
		trimmed := strings.TrimSpace(text)
		if inFence {
			line.inFence = true
			if strings.HasPrefix(trimmed, fenceDelim) {
				inFence = false
			}
		} else if m := fencePattern.FindStringSubmatch(trimmed); m != nil {
			line.inFence = true
			inFence = true
			fenceDelim = m[1]
		}
		lines = append(lines, line)
		offset += len(text) + 1
	}
	return lines
}

// skipFrontMatter returns the index of the first content line after a
// leading "---" front-matter block, or 0 if there is none.
func skipFrontMatter(lines []mdLine) int {
	if len(lines) == 0 || strings.TrimSpace(lines[0].text) != "---" {
		return 0
	}
	for i := 1; i < len(lines); i++ {
		if t := strings.TrimSpace(lines[i].text); t == "---" || t == "..." {
			return i + 1
		}
	}
	return 0
}

func lineNumberOf(content string, offset int) int {
	return strings.Count(content[:offset], "\n") + 1
}

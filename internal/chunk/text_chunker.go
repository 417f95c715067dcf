package chunk

import (
	"strings"
)

// TextChunker splits plain or unknown-format text into paragraph-based
// chunks bounded by MaxTokens, carrying OverlapPercent of trailing context
// into the next chunk.
type TextChunker struct{}

// NewTextChunker creates a text chunker.
func NewTextChunker() *TextChunker {
	return &TextChunker{}
}

// Chunk splits source into TEXT drafts.
func (c *TextChunker) Chunk(source []byte, opts Options) []Draft {
	opts = opts.withDefaults()
	content := string(source)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	paragraphs := splitParagraphs(content)
	overlapTokens := opts.MaxTokens * opts.OverlapPercent / 100

	var drafts []Draft
	var buf []paragraph
	budget := 0

	flush := func() {
		if len(buf) == 0 {
			return
		}
		first, last := buf[0], buf[len(buf)-1]
		text := content[first.byteStart:last.byteEnd]
		drafts = append(drafts, Draft{
			Ordinal:    len(drafts),
			Kind:       KindText,
			StartLine:  lineNumberOf(content, first.byteStart),
			EndLine:    lineNumberOf(content, last.byteEnd-1),
			ByteStart:  first.byteStart,
			ByteEnd:    last.byteEnd,
			TokenCount: EstimateTokens(text),
			Text:       text,
		})
	}

	for _, p := range paragraphs {
		tokens := EstimateTokens(p.text)

		// A single paragraph over budget splits at line boundaries.
		if tokens > opts.MaxTokens {
			flush()
			buf, budget = nil, 0
			for _, piece := range splitParagraphAtLines(content, p, opts.MaxTokens) {
				drafts = append(drafts, Draft{
					Ordinal:    len(drafts),
					Kind:       KindText,
					StartLine:  lineNumberOf(content, piece.byteStart),
					EndLine:    lineNumberOf(content, piece.byteEnd-1),
					ByteStart:  piece.byteStart,
					ByteEnd:    piece.byteEnd,
					TokenCount: EstimateTokens(piece.text),
					Text:       piece.text,
				})
			}
			continue
		}

		if budget+tokens > opts.MaxTokens && len(buf) > 0 {
			flush()
			// Overlap: keep trailing paragraphs within the overlap budget.
			var kept []paragraph
			keptTokens := 0
			for i := len(buf) - 1; i >= 0; i-- {
				t := EstimateTokens(buf[i].text)
				if keptTokens+t > overlapTokens {
					break
				}
				kept = append([]paragraph{buf[i]}, kept...)
				keptTokens += t
			}
			buf, budget = kept, keptTokens
		}
		buf = append(buf, p)
		budget += tokens
	}
	flush()
	return drafts
}

type paragraph struct {
	text               string
	byteStart, byteEnd int
}

// splitParagraphs cuts content at blank-line runs.
func splitParagraphs(content string) []paragraph {
	var out []paragraph
	start := -1
	lines := strings.SplitAfter(content, "\n")
	offset := 0
	for _, line := range lines {
		blank := strings.TrimSpace(line) == ""
		if !blank && start < 0 {
			start = offset
		}
		if blank && start >= 0 {
			out = append(out, paragraph{text: content[start:offset], byteStart: start, byteEnd: offset})
			start = -1
		}
		offset += len(line)
	}
	if start >= 0 {
		out = append(out, paragraph{text: content[start:], byteStart: start, byteEnd: len(content)})
	}
	return out
}

func splitParagraphAtLines(content string, p paragraph, maxTokens int) []paragraph {
	maxBytes := maxTokens * TokensPerChar
	var out []paragraph
	cursor := p.byteStart
	for cursor < p.byteEnd {
		limit := cursor + maxBytes
		if limit >= p.byteEnd {
			limit = p.byteEnd
		} else if nl := strings.LastIndexByte(content[cursor:limit], '\n'); nl > 0 {
			limit = cursor + nl + 1
		}
		out = append(out, paragraph{text: content[cursor:limit], byteStart: cursor, byteEnd: limit})
		cursor = limit
	}
	return out
}

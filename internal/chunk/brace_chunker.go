package chunk

import (
	"regexp"
	"strings"
)

// BraceChunker handles curly-brace languages without a wired tree-sitter
// grammar (Java, Kotlin, C, C++, C#, Rust, ...). It tracks brace depth to
// find top-level class and function bodies, which is coarse but keeps
// chunk boundaries on declaration edges.
type BraceChunker struct{}

// NewBraceChunker creates a brace-scanning chunker.
func NewBraceChunker() *BraceChunker {
	return &BraceChunker{}
}

var (
	classHeaderPattern = regexp.MustCompile(
		`\b(?:class|interface|enum|struct|trait|object|impl)\s+([A-Za-z_][A-Za-z0-9_]*)`)
	funcHeaderPattern = regexp.MustCompile(
		`\b(?:fun|fn|func|def|void|int|float|double|bool|string|String|var|val|public|private|protected|static)\b[^={;]*?\b([A-Za-z_][A-Za-z0-9_]*)\s*\(`)
)

// Chunk splits source into class/function/block drafts by brace depth.
func (c *BraceChunker) Chunk(source []byte, opts Options) []Draft {
	opts = opts.withDefaults()
	content := string(source)
	if strings.TrimSpace(content) == "" {
		return nil
	}

	var symbols []span
	depth := 0
	blockStart := -1 // byte where the current top-level declaration began
	headerStart := 0 // start of the line run preceding the opening brace
	inLineComment, inBlockComment, inString := false, false, false
	var stringDelim byte

	for i := 0; i < len(content); i++ {
		ch := content[i]

		switch {
		case inLineComment:
			if ch == '\n' {
				inLineComment = false
			}
			continue
		case inBlockComment:
			if ch == '/' && i > 0 && content[i-1] == '*' {
				inBlockComment = false
			}
			continue
		case inString:
			if ch == '\\' {
				i++
			} else if ch == stringDelim {
				inString = false
			}
			continue
		}

		switch ch {
		case '/':
			if i+1 < len(content) {
				if content[i+1] == '/' {
					inLineComment = true
				} else if content[i+1] == '*' {
					inBlockComment = true
				}
			}
		case '"', '\'', '`':
			inString = true
			stringDelim = ch
		case '\n':
			if depth == 0 && blockStart < 0 && strings.TrimSpace(content[headerStart:i]) == "" {
				headerStart = i + 1
			}
		case '{':
			if depth == 0 {
				blockStart = headerStart
			}
			depth++
		case '}':
			depth--
			if depth == 0 && blockStart >= 0 {
				end := i + 1
				if end < len(content) && content[end] == '\n' {
					end++
				}
				header := content[blockStart:min(end, len(content))]
				symbols = append(symbols, classifyBraceBlock(blockStart, end, header))
				blockStart = -1
				headerStart = end
			}
		}
	}

	builder := draftBuilder{source: source, lines: newLineIndex(source), maxTokens: opts.MaxTokens}
	for _, sp := range coverWithBlocks(0, len(source), symbols) {
		builder.add(sp)
	}
	return builder.finish()
}

func classifyBraceBlock(start, end int, text string) span {
	head := text
	if idx := strings.IndexByte(head, '{'); idx > 0 {
		head = head[:idx]
	}
	if m := classHeaderPattern.FindStringSubmatch(head); m != nil {
		return span{start: start, end: end, kind: KindCodeClass,
			symbol: &Symbol{Name: m[1], Kind: SymbolClass}}
	}
	if m := funcHeaderPattern.FindStringSubmatch(head); m != nil {
		return span{start: start, end: end, kind: KindCodeFunction,
			symbol: &Symbol{Name: m[1], Kind: SymbolFunction}}
	}
	return span{start: start, end: end, kind: KindCodeBlock}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

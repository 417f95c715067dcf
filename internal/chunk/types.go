// Package chunk splits files into language-aware, bounded chunks. Code
// languages with a wired tree-sitter grammar are chunked on AST boundaries;
// other curly-brace languages use a brace scanner, markdown splits at
// headings, and everything else falls back to paragraphs.
package chunk

import (
	"strings"
)

// Chunk size defaults.
const (
	DefaultMaxTokens      = 512
	DefaultOverlapPercent = 10
	// TokensPerChar approximates tokens as chars/4.
	TokensPerChar = 4
)

// Kind classifies what a chunk contains.
type Kind string

const (
	KindCodeClass    Kind = "CODE_CLASS"
	KindCodeFunction Kind = "CODE_FUNCTION"
	KindCodeBlock    Kind = "CODE_BLOCK"
	KindDocSection   Kind = "DOC_SECTION"
	KindDocParagraph Kind = "DOC_PARAGRAPH"
	KindText         Kind = "TEXT"
)

// SymbolKind is the coarse symbol classification persisted to the store.
type SymbolKind string

const (
	SymbolClass    SymbolKind = "CLASS"
	SymbolFunction SymbolKind = "FUNCTION"
	SymbolMethod   SymbolKind = "METHOD"
	SymbolVariable SymbolKind = "VARIABLE"
	SymbolHeading  SymbolKind = "HEADING"
)

// Symbol is a named definition found inside a chunk.
type Symbol struct {
	Name          string
	Kind          SymbolKind
	QualifiedName string
}

// Draft is a chunk candidate before persistence. The store assigns the
// final chunk ID; the chunker owns ordinals, spans, and symbols.
type Draft struct {
	// Ordinal is the 0-based, dense position within the file.
	Ordinal int
	Kind    Kind
	// StartLine and EndLine are 1-based and inclusive.
	StartLine int
	EndLine   int
	ByteStart int
	ByteEnd   int
	// TokenCount approximates len(Text)/4.
	TokenCount int
	Text       string
	// Summary is an optional heading or signature.
	Summary string
	Symbols []Symbol
}

// Options bound chunk sizes per language.
type Options struct {
	// MaxTokens caps a single chunk; oversize candidates split at line
	// boundaries.
	MaxTokens int
	// OverlapPercent carries trailing context into the next text chunk.
	OverlapPercent int
	// MaxHeadingLevel is the deepest markdown heading that starts a section.
	MaxHeadingLevel int
}

// withDefaults fills zero fields.
func (o Options) withDefaults() Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.OverlapPercent < 0 {
		o.OverlapPercent = DefaultOverlapPercent
	}
	if o.MaxHeadingLevel <= 0 {
		o.MaxHeadingLevel = 3
	}
	return o
}

// EstimateTokens approximates the token count of text (chars/4, minimum 1
// for non-empty text).
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / TokensPerChar
	if n == 0 {
		n = 1
	}
	return n
}

// countLines returns the number of lines in text ("" counts as 0).
func countLines(text string) int {
	if text == "" {
		return 0
	}
	n := strings.Count(text, "\n")
	if !strings.HasSuffix(text, "\n") {
		n++
	}
	return n
}

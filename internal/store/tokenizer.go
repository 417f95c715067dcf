package store

import (
	"regexp"
	"strings"
	"unicode"
)

// identRegex matches identifier-like runs, keeping underscores for the
// initial split.
var identRegex = regexp.MustCompile(`[a-zA-Z0-9_]+`)

// DefaultCodeStopWords are keywords too common in source text to carry
// ranking signal. Shared by the full-text backends and symbol provider.
var DefaultCodeStopWords = []string{
	"func", "function", "def", "class", "return", "import",
	"const", "var", "let", "int", "string", "bool", "void",
	"true", "false", "nil", "null", "this", "self", "new",
	"the", "and", "for", "not", "with",
}

// BuildStopWordMap converts a stop word list to a lookup set.
func BuildStopWordMap(words []string) map[string]struct{} {
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[strings.ToLower(w)] = struct{}{}
	}
	return m
}

// TokenizeCode splits text with code-aware rules: camelCase, PascalCase,
// and snake_case identifiers break into their parts and everything is
// lowercased. Tokens shorter than 2 characters are dropped.
func TokenizeCode(text string) []string {
	var tokens []string
	for _, word := range identRegex.FindAllString(text, -1) {
		for _, t := range SplitCodeToken(word) {
			if lower := strings.ToLower(t); len(lower) >= 2 {
				tokens = append(tokens, lower)
			}
		}
	}
	return tokens
}

// FilterStopWords removes tokens present in the stop word set.
func FilterStopWords(tokens []string, stopWords map[string]struct{}) []string {
	filtered := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if _, isStop := stopWords[t]; !isStop {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// SplitCodeToken splits snake_case then camelCase.
func SplitCodeToken(token string) []string {
	if strings.Contains(token, "_") {
		var result []string
		for _, part := range strings.Split(token, "_") {
			if part != "" {
				result = append(result, SplitCamelCase(part)...)
			}
		}
		return result
	}
	return SplitCamelCase(token)
}

// SplitCamelCase splits camelCase and PascalCase identifiers, keeping
// acronym runs intact:
//   - "getUserById" -> ["get", "User", "By", "Id"]
//   - "HTTPHandler" -> ["HTTP", "Handler"]
func SplitCamelCase(s string) []string {
	if s == "" {
		return []string{}
	}
	var result []string
	var current strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevIsLower := unicode.IsLower(runes[i-1])
			nextIsLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if (prevIsLower || nextIsLower) && current.Len() > 0 {
				result = append(result, current.String())
				current.Reset()
			}
		}
		current.WriteRune(r)
	}
	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

package policy

import (
	"path/filepath"
	"strings"
)

// languageMap maps file extensions to language names.
var languageMap = map[string]string{
	// Go
	".go": "go",

	// JavaScript/TypeScript
	".js":  "javascript",
	".jsx": "javascript",
	".mjs": "javascript",
	".ts":  "typescript",
	".tsx": "tsx",

	// Python
	".py":  "python",
	".pyw": "python",
	".pyi": "python",

	// Documentation
	".md":       "markdown",
	".mdx":      "markdown",
	".markdown": "markdown",
	".rst":      "rst",
	".txt":      "text",

	// Data/Config
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".toml": "toml",
	".xml":  "xml",
	".ini":  "ini",

	// Web
	".html": "html",
	".htm":  "html",
	".css":  "css",
	".scss": "scss",

	// Shell
	".sh":   "shell",
	".bash": "shell",
	".zsh":  "shell",

	// Curly-brace languages without a tree-sitter grammar wired in;
	// chunked by the brace splitter, symbols by regex.
	".java":  "java",
	".kt":    "kotlin",
	".kts":   "kotlin",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".hpp":   "cpp",
	".cc":    "cpp",
	".cs":    "csharp",
	".swift": "swift",
	".scala": "scala",
	".rs":    "rust",
	".php":   "php",

	// Ruby
	".rb": "ruby",

	// Elixir
	".ex":  "elixir",
	".exs": "elixir",
}

// DetectLanguage returns the lowercase language name for a path, or "text"
// if the extension is unknown.
func DetectLanguage(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if lang, ok := languageMap[ext]; ok {
		return lang
	}
	return "text"
}

// Extension returns the lowercase extension without the leading dot.
func Extension(path string) string {
	return strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
}

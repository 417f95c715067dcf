package chunk

import (
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// LanguageConfig describes how to find symbol-defining nodes in a grammar.
type LanguageConfig struct {
	Name          string
	FunctionTypes []string
	MethodTypes   []string
	ClassTypes    []string
	VariableTypes []string
	// NameField is the tree-sitter field/child type holding the identifier.
	NameField string
}

// LanguageRegistry maps language names to grammars and node-type tables.
type LanguageRegistry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	tsLanguages map[string]*sitter.Language
}

var (
	defaultRegistry     *LanguageRegistry
	defaultRegistryOnce sync.Once
)

// DefaultRegistry returns the shared registry with all wired grammars.
func DefaultRegistry() *LanguageRegistry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = NewLanguageRegistry()
	})
	return defaultRegistry
}

// NewLanguageRegistry creates a registry with the default grammar set.
func NewLanguageRegistry() *LanguageRegistry {
	r := &LanguageRegistry{
		configs:     make(map[string]*LanguageConfig),
		tsLanguages: make(map[string]*sitter.Language),
	}
	r.register(&LanguageConfig{
		Name:          "go",
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_declaration"},
		VariableTypes: []string{"const_declaration", "var_declaration", "type_declaration"},
		NameField:     "identifier",
	}, golang.GetLanguage())

	tsConfig := &LanguageConfig{
		Name:          "typescript",
		FunctionTypes: []string{"function_declaration"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration", "interface_declaration"},
		VariableTypes: []string{"lexical_declaration", "variable_declaration"},
		NameField:     "identifier",
	}
	r.register(tsConfig, typescript.GetLanguage())

	tsxConfig := *tsConfig
	tsxConfig.Name = "tsx"
	r.register(&tsxConfig, tsx.GetLanguage())

	r.register(&LanguageConfig{
		Name:          "javascript",
		FunctionTypes: []string{"function_declaration", "function"},
		MethodTypes:   []string{"method_definition"},
		ClassTypes:    []string{"class_declaration"},
		VariableTypes: []string{"lexical_declaration", "variable_declaration"},
		NameField:     "identifier",
	}, javascript.GetLanguage())

	r.register(&LanguageConfig{
		Name:          "python",
		FunctionTypes: []string{"function_definition"},
		ClassTypes:    []string{"class_definition"},
		NameField:     "identifier",
	}, python.GetLanguage())

	return r
}

func (r *LanguageRegistry) register(config *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[config.Name] = config
	r.tsLanguages[config.Name] = tsLang
}

// Config returns the node-type table for a language.
func (r *LanguageRegistry) Config(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	config, ok := r.configs[name]
	return config, ok
}

// TreeSitterLanguage returns the grammar for a language.
func (r *LanguageRegistry) TreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	lang, ok := r.tsLanguages[name]
	return lang, ok
}

// Supported reports whether a grammar is wired for the language.
func (r *LanguageRegistry) Supported(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tsLanguages[name]
	return ok
}

// curlyLanguages are chunked by the brace scanner when no grammar exists.
var curlyLanguages = map[string]bool{
	"java": true, "kotlin": true, "c": true, "cpp": true, "csharp": true,
	"rust": true, "swift": true, "scala": true, "php": true,
}

// IsCurly reports whether a language uses curly-brace block structure but
// has no wired grammar.
func IsCurly(language string) bool {
	return curlyLanguages[language]
}

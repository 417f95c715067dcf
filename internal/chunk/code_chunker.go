package chunk

import (
	"context"
	"sort"
	"strings"
)

// CodeChunker splits source files on AST boundaries using tree-sitter.
// Top-level classes and functions become their own chunks; everything
// between them (imports, package clauses, top-level variables) is kept as
// CODE_BLOCK chunks so code files are covered without gaps.
type CodeChunker struct {
	parser   *Parser
	registry *LanguageRegistry
}

// NewCodeChunker creates a code chunker over the default registry.
func NewCodeChunker() *CodeChunker {
	registry := DefaultRegistry()
	return &CodeChunker{
		parser:   NewParser(registry),
		registry: registry,
	}
}

// Close releases parser resources.
func (c *CodeChunker) Close() {
	c.parser.Close()
}

// span is a half-open byte range with symbol info attached.
type span struct {
	start, end int
	kind       Kind
	symbol     *Symbol
	node       *Node
}

// Chunk splits source into drafts. The language must have a wired grammar.
func (c *CodeChunker) Chunk(ctx context.Context, source []byte, language string, opts Options) ([]Draft, error) {
	opts = opts.withDefaults()
	if len(source) == 0 || strings.TrimSpace(string(source)) == "" {
		return nil, nil
	}

	tree, err := c.parser.Parse(ctx, source, language)
	if err != nil {
		return nil, err
	}
	config, ok := c.registry.Config(language)
	if !ok {
		return nil, nil
	}

	symbols := c.topLevelSymbols(tree, config)
	spans := coverWithBlocks(0, len(source), symbols)

	lines := newLineIndex(source)
	builder := draftBuilder{source: source, lines: lines, maxTokens: opts.MaxTokens}

	for _, sp := range spans {
		if sp.kind == KindCodeClass && EstimateTokens(string(source[sp.start:sp.end])) > opts.MaxTokens {
			builder.addAll(c.splitClass(sp, config, source))
			continue
		}
		builder.add(sp)
	}
	return builder.finish(), nil
}

// topLevelSymbols collects symbol-defining nodes directly under the root
// (unwrapping python decorated definitions and export statements).
func (c *CodeChunker) topLevelSymbols(tree *Tree, config *LanguageConfig) []span {
	var out []span
	for _, child := range tree.Root.Children {
		node := child
		// The chunk keeps the decorator/export wrapper; classification
		// looks at the wrapped definition.
		inner := node
		switch node.Type {
		case "decorated_definition", "export_statement":
			for _, sub := range node.Children {
				if isSymbolType(sub.Type, config) {
					inner = sub
					break
				}
			}
		}

		kind, symKind := classify(inner.Type, config)
		if kind == "" {
			// Variable declarations holding an arrow function are functions.
			if containsType(inner, "arrow_function", 3) && isVariableType(inner.Type, config) {
				kind, symKind = KindCodeFunction, SymbolFunction
			} else {
				continue
			}
		}

		name := extractName(inner, tree.Source, config)
		sp := span{start: int(node.StartByte), end: int(node.EndByte), kind: kind, node: inner}
		if name != "" {
			sp.symbol = &Symbol{Name: name, Kind: symKind}
		}
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].start < out[j].start })
	return out
}

// splitClass breaks an oversize class into its declaration plus one chunk
// per method; inter-method remainders stay CODE_BLOCK.
func (c *CodeChunker) splitClass(classSpan span, config *LanguageConfig, source []byte) []span {
	var methods []span
	className := ""
	if classSpan.symbol != nil {
		className = classSpan.symbol.Name
	}

	classSpan.node.Walk(func(n *Node) bool {
		if n == classSpan.node {
			return true
		}
		for _, mt := range append(config.MethodTypes, config.FunctionTypes...) {
			if n.Type == mt {
				sym := &Symbol{Name: extractName(n, source, config), Kind: SymbolMethod}
				if className != "" && sym.Name != "" {
					sym.QualifiedName = className + "." + sym.Name
				}
				methods = append(methods, span{
					start: int(n.StartByte), end: int(n.EndByte),
					kind: KindCodeFunction, symbol: sym,
				})
				return false // don't descend into nested closures
			}
		}
		return true
	})

	if len(methods) == 0 {
		return []span{classSpan}
	}
	sort.Slice(methods, func(i, j int) bool { return methods[i].start < methods[j].start })

	// The declaration chunk is everything before the first method.
	out := []span{{
		start: classSpan.start, end: methods[0].start,
		kind: KindCodeClass, symbol: classSpan.symbol,
	}}
	for i, m := range methods {
		out = append(out, m)
		gapEnd := classSpan.end
		if i+1 < len(methods) {
			gapEnd = methods[i+1].start
		}
		if gapEnd > m.end && len(strings.TrimSpace(string(source[m.end:gapEnd]))) > 0 {
			out = append(out, span{start: m.end, end: gapEnd, kind: KindCodeBlock})
		}
	}
	return out
}

// coverWithBlocks fills gaps between symbol spans with CODE_BLOCK spans so
// the whole [start, end) range is covered. Whitespace-only gaps attach to
// the following span.
func coverWithBlocks(start, end int, symbols []span) []span {
	var out []span
	cursor := start
	for i := range symbols {
		sp := symbols[i]
		if sp.start > cursor {
			out = append(out, span{start: cursor, end: sp.start, kind: KindCodeBlock})
		}
		out = append(out, sp)
		cursor = sp.end
	}
	if cursor < end {
		out = append(out, span{start: cursor, end: end, kind: KindCodeBlock})
	}
	return out
}

func classify(nodeType string, config *LanguageConfig) (Kind, SymbolKind) {
	for _, t := range config.ClassTypes {
		if nodeType == t {
			return KindCodeClass, SymbolClass
		}
	}
	for _, t := range config.FunctionTypes {
		if nodeType == t {
			return KindCodeFunction, SymbolFunction
		}
	}
	for _, t := range config.MethodTypes {
		if nodeType == t {
			return KindCodeFunction, SymbolMethod
		}
	}
	return "", ""
}

func isSymbolType(nodeType string, config *LanguageConfig) bool {
	k, _ := classify(nodeType, config)
	return k != ""
}

func isVariableType(nodeType string, config *LanguageConfig) bool {
	for _, t := range config.VariableTypes {
		if nodeType == t {
			return true
		}
	}
	return false
}

func containsType(n *Node, nodeType string, depth int) bool {
	if depth < 0 {
		return false
	}
	if n.Type == nodeType {
		return true
	}
	for _, child := range n.Children {
		if containsType(child, nodeType, depth-1) {
			return true
		}
	}
	return false
}

// extractName finds the identifier naming a declaration node.
func extractName(n *Node, source []byte, config *LanguageConfig) string {
	candidates := []string{
		config.NameField, "identifier", "type_identifier", "name",
		"property_identifier", "field_identifier",
	}
	for _, t := range candidates {
		if child := n.FindChildByType(t); child != nil {
			return child.Content(source)
		}
	}
	// Go method/type declarations nest the identifier one level down.
	for _, child := range n.Children {
		switch child.Type {
		case "type_spec", "var_spec", "const_spec", "variable_declarator":
			for _, t := range candidates {
				if g := child.FindChildByType(t); g != nil {
					return g.Content(source)
				}
			}
		}
	}
	return ""
}

// lineIndex maps byte offsets to 1-based line numbers.
type lineIndex []int

func newLineIndex(source []byte) lineIndex {
	starts := lineIndex{0}
	for i, b := range source {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineAt returns the 1-based line containing the byte offset.
func (li lineIndex) lineAt(offset int) int {
	lo, hi := 0, len(li)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if li[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo + 1
}

// draftBuilder assigns ordinals and enforces the token bound, splitting
// oversize spans at line boundaries.
type draftBuilder struct {
	source    []byte
	lines     lineIndex
	maxTokens int
	drafts    []Draft
}

func (b *draftBuilder) addAll(spans []span) {
	for _, sp := range spans {
		b.add(sp)
	}
}

func (b *draftBuilder) add(sp span) {
	text := string(b.source[sp.start:sp.end])
	if strings.TrimSpace(text) == "" {
		return
	}
	if EstimateTokens(text) <= b.maxTokens {
		b.emit(sp, text)
		return
	}
	// Oversize: cut at the nearest line boundary inside the budget.
	maxBytes := b.maxTokens * TokensPerChar
	cursor := sp.start
	for cursor < sp.end {
		limit := cursor + maxBytes
		if limit >= sp.end {
			limit = sp.end
		} else {
			if nl := strings.LastIndexByte(string(b.source[cursor:limit]), '\n'); nl > 0 {
				limit = cursor + nl + 1
			}
		}
		piece := span{start: cursor, end: limit, kind: sp.kind}
		if cursor == sp.start {
			piece.symbol = sp.symbol // the symbol belongs to the first piece
		}
		b.emit(piece, string(b.source[cursor:limit]))
		cursor = limit
	}
}

func (b *draftBuilder) emit(sp span, text string) {
	d := Draft{
		Ordinal:    len(b.drafts),
		Kind:       sp.kind,
		StartLine:  b.lines.lineAt(sp.start),
		EndLine:    b.lines.lineAt(maxOffset(sp.start, sp.end-1)),
		ByteStart:  sp.start,
		ByteEnd:    sp.end,
		TokenCount: EstimateTokens(text),
		Text:       text,
	}
	if sp.symbol != nil {
		d.Symbols = []Symbol{*sp.symbol}
		d.Summary = firstLine(text)
	}
	b.drafts = append(b.drafts, d)
}

func (b *draftBuilder) finish() []Draft {
	return b.drafts
}

func firstLine(text string) string {
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		return strings.TrimSpace(text[:idx])
	}
	return strings.TrimSpace(text)
}

func maxOffset(a, b int) int {
	if b > a {
		return b
	}
	return a
}

package chunk

import (
	"context"
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
)

// Point is a zero-based row/column position.
type Point struct {
	Row    uint32
	Column uint32
}

// Node is a lightweight copy of a tree-sitter node. Copying up front keeps
// the rest of the chunker free of cgo object lifetimes.
type Node struct {
	Type       string
	StartByte  uint32
	EndByte    uint32
	StartPoint Point
	EndPoint   Point
	HasError   bool
	Children   []*Node
}

// Tree is a parsed source file.
type Tree struct {
	Root     *Node
	Source   []byte
	Language string
}

// Parser wraps tree-sitter for AST parsing. A tree-sitter parser is
// single-thread-only, and the indexing pool parses many files at once,
// so every Parse call checks a parser out of a pool instead of sharing
// one instance.
type Parser struct {
	pool     sync.Pool
	registry *LanguageRegistry
}

// NewParser creates a parser backed by the given registry.
func NewParser(registry *LanguageRegistry) *Parser {
	return &Parser{
		registry: registry,
	}
}

// Parse parses source and returns the converted AST.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.TreeSitterLanguage(language)
	if !ok {
		return nil, fmt.Errorf("no grammar for language %q", language)
	}

	tsParser, _ := p.pool.Get().(*sitter.Parser)
	if tsParser == nil {
		tsParser = sitter.NewParser()
	}
	defer p.pool.Put(tsParser)
	tsParser.SetLanguage(tsLang)

	tsTree, err := tsParser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}
	if tsTree == nil {
		return nil, fmt.Errorf("parse: nil tree")
	}
	defer tsTree.Close()

	return &Tree{
		Root:     convertNode(tsTree.RootNode()),
		Source:   source,
		Language: language,
	}, nil
}

// Close releases every pooled parser. Calls racing Close may allocate a
// fresh parser; it is reclaimed when the process exits.
func (p *Parser) Close() {
	for {
		tsParser, _ := p.pool.Get().(*sitter.Parser)
		if tsParser == nil {
			return
		}
		tsParser.Close()
	}
}

func convertNode(tsNode *sitter.Node) *Node {
	if tsNode == nil {
		return nil
	}
	node := &Node{
		Type:       tsNode.Type(),
		StartByte:  tsNode.StartByte(),
		EndByte:    tsNode.EndByte(),
		StartPoint: Point{Row: tsNode.StartPoint().Row, Column: tsNode.StartPoint().Column},
		EndPoint:   Point{Row: tsNode.EndPoint().Row, Column: tsNode.EndPoint().Column},
		HasError:   tsNode.HasError(),
		Children:   make([]*Node, 0, int(tsNode.ChildCount())),
	}
	for i := uint32(0); i < tsNode.ChildCount(); i++ {
		if child := tsNode.Child(int(i)); child != nil {
			node.Children = append(node.Children, convertNode(child))
		}
	}
	return node
}

// Content returns the source slice for a node.
func (n *Node) Content(source []byte) string {
	if n.StartByte >= n.EndByte || int(n.EndByte) > len(source) {
		return ""
	}
	return string(source[n.StartByte:n.EndByte])
}

// FindChildByType returns the first direct child with the given type.
func (n *Node) FindChildByType(nodeType string) *Node {
	for _, child := range n.Children {
		if child.Type == nodeType {
			return child
		}
	}
	return nil
}

// Walk traverses depth-first; fn returning false prunes the subtree.
func (n *Node) Walk(fn func(*Node) bool) {
	if !fn(n) {
		return
	}
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// Package parse turns Python source text into the typed tree consumed by
// tail-call analysis. Parsing itself is delegated to tree-sitter; this
// package owns the lowering from the concrete syntax tree into ast nodes.
package parse

import (
	"context"
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"

	"github.com/phobologic/tailloop/internal/ast"
)

// Parser wraps a tree-sitter parser configured for Python. Parsers are cheap
// to create and not safe for concurrent use; create one per goroutine.
type Parser struct {
	p *sitter.Parser
}

// NewParser returns a parser ready to parse Python source.
func NewParser() *Parser {
	p := sitter.NewParser()
	p.SetLanguage(python.GetLanguage())
	return &Parser{p: p}
}

// File is one parsed source file. Funcs holds every analyzable function
// definition in source order: module-level defs and defs nested inside other
// functions. Defs whose nearest enclosing scope is a class body are excluded,
// since a bare-name call inside a method does not resolve to the method
// itself. Errors reports whether the parse tree contains syntax errors; the
// lowering still extracts what it can.
type File struct {
	Path   string
	Source []byte
	Funcs  []*ast.FuncDef
	Errors bool
}

// Parse parses source and lowers every analyzable function definition.
// The path is used only for error context.
func (p *Parser) Parse(ctx context.Context, path string, source []byte) (*File, error) {
	tree, err := p.p.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	f := &File{
		Path:   path,
		Source: source,
		Errors: root.HasError(),
	}
	collectDefs(root, source, &f.Funcs)
	sort.SliceStable(f.Funcs, func(i, j int) bool {
		return f.Funcs[i].StartByte < f.Funcs[j].StartByte
	})
	return f, nil
}

// collectDefs lowers each function definition whose nearest enclosing scope
// is not a class body. A nested def is lowered twice: once independently for
// its own entry and once as a statement of the enclosing function's body.
func collectDefs(node *sitter.Node, source []byte, out *[]*ast.FuncDef) {
	if isFunctionDef(node.Type()) && !classScoped(node) {
		*out = append(*out, lowerFunction(node, source))
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		collectDefs(node.Child(i), source, out)
	}
}

func isFunctionDef(kind string) bool {
	return kind == "function_definition" || kind == "async_function_definition"
}

// classScoped reports whether the nearest enclosing scope of a definition is
// a class body rather than the module or a function.
func classScoped(node *sitter.Node) bool {
	for cur := node.Parent(); cur != nil; cur = cur.Parent() {
		switch cur.Type() {
		case "class_definition":
			return true
		case "function_definition", "async_function_definition":
			return false
		}
	}
	return false
}

// NodeText returns the source text for a node.
func NodeText(node *sitter.Node, source []byte) string {
	return string(source[node.StartByte():node.EndByte()])
}

func loc(n *sitter.Node) ast.Loc {
	return ast.Loc{
		StartByte: n.StartByte(),
		EndByte:   n.EndByte(),
		Line:      int(n.StartPoint().Row) + 1,
		Col:       int(n.StartPoint().Column) + 1,
	}
}

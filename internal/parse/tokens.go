package parse

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// DumpTokens writes a per-kind token count followed by every lexical token of
// source, one per line, in document order.
func (p *Parser) DumpTokens(ctx context.Context, source []byte, w io.Writer) error {
	tree, err := p.p.ParseCtx(ctx, nil, source)
	if err != nil {
		return fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	type token struct {
		row, col uint32
		kind     string
		text     string
	}
	var toks []token
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		if n.ChildCount() == 0 {
			start := n.StartPoint()
			toks = append(toks, token{start.Row + 1, start.Column + 1, n.Type(), NodeText(n, source)})
			return
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			walk(n.Child(i))
		}
	}
	walk(tree.RootNode())

	counts := make(map[string]int)
	for _, t := range toks {
		counts[t.kind]++
	}
	kinds := make([]string, 0, len(counts))
	for k := range counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(w, "%5d  %s\n", counts[k], k)
	}
	fmt.Fprintln(w)

	for _, t := range toks {
		fmt.Fprintf(w, "%d:%d\t%s\t%q\n", t.row, t.col, t.kind, t.text)
	}
	return nil
}

// DumpTree writes an indented outline of the parse tree to w. Only named
// nodes appear; punctuation and keywords are omitted.
func (p *Parser) DumpTree(ctx context.Context, source []byte, w io.Writer) error {
	tree, err := p.p.ParseCtx(ctx, nil, source)
	if err != nil {
		return fmt.Errorf("parsing: %w", err)
	}
	defer tree.Close()

	var walk func(n *sitter.Node, depth int)
	walk = func(n *sitter.Node, depth int) {
		start, end := n.StartPoint(), n.EndPoint()
		fmt.Fprintf(w, "%s%s [%d:%d-%d:%d]\n",
			strings.Repeat("  ", depth), n.Type(),
			start.Row+1, start.Column+1, end.Row+1, end.Column+1)
		for i := 0; i < int(n.NamedChildCount()); i++ {
			walk(n.NamedChild(i), depth+1)
		}
	}
	walk(tree.RootNode(), 0)
	return nil
}

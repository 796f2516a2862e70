package parse

import (
	sitter "github.com/smacker/go-tree-sitter"

	"github.com/phobologic/tailloop/internal/ast"
)

// lowerFunction lowers one function definition node. The definition's own
// span excludes decorators; Decorated is set from the parent so analysis can
// flag the function.
func lowerFunction(n *sitter.Node, src []byte) *ast.FuncDef {
	fn := &ast.FuncDef{Loc: loc(n)}
	fn.Async = n.Type() == "async_function_definition" ||
		(n.ChildCount() > 0 && n.Child(0).Type() == "async")
	if p := n.Parent(); p != nil && p.Type() == "decorated_definition" {
		fn.Decorated = true
	}
	if name := n.ChildByFieldName("name"); name != nil {
		fn.Name = NodeText(name, src)
	}
	if params := n.ChildByFieldName("parameters"); params != nil {
		fn.Params = lowerParams(params, src)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		fn.BodyStart = body.StartByte()
		fn.Body = lowerBlock(body, src)
	}
	return fn
}

func lowerParams(n *sitter.Node, src []byte) []ast.Param {
	var out []ast.Param
	kwOnly := false
	plain := func() ast.ParamKind {
		if kwOnly {
			return ast.ParamKwOnly
		}
		return ast.ParamPlain
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "identifier":
			out = append(out, ast.Param{Name: NodeText(c, src), Kind: plain()})
		case "default_parameter":
			out = append(out, ast.Param{
				Name:    fieldText(c, "name", src),
				Kind:    plain(),
				Default: lowerField(c, "value", src),
			})
		case "typed_default_parameter":
			out = append(out, ast.Param{
				Name:    fieldText(c, "name", src),
				Kind:    plain(),
				Default: lowerField(c, "value", src),
			})
		case "typed_parameter":
			switch {
			case namedChildOfType(c, "list_splat_pattern") != nil:
				sp := namedChildOfType(c, "list_splat_pattern")
				out = append(out, ast.Param{Name: splatName(sp, src), Kind: ast.ParamStar})
				kwOnly = true
			case namedChildOfType(c, "dictionary_splat_pattern") != nil:
				sp := namedChildOfType(c, "dictionary_splat_pattern")
				out = append(out, ast.Param{Name: splatName(sp, src), Kind: ast.ParamStarStar})
			default:
				if id := namedChildOfType(c, "identifier"); id != nil {
					out = append(out, ast.Param{Name: NodeText(id, src), Kind: plain()})
				}
			}
		case "list_splat_pattern":
			// a bare * (no name) only marks the start of keyword-only params
			if name := splatName(c, src); name != "" {
				out = append(out, ast.Param{Name: name, Kind: ast.ParamStar})
			}
			kwOnly = true
		case "keyword_separator":
			kwOnly = true
		case "dictionary_splat_pattern":
			out = append(out, ast.Param{Name: splatName(c, src), Kind: ast.ParamStarStar})
		case "positional_separator":
			// `/` does not change how arguments bind positionally
		}
	}
	return out
}

func lowerBlock(n *sitter.Node, src []byte) []ast.Stmt {
	var out []ast.Stmt
	for i := 0; i < int(n.NamedChildCount()); i++ {
		out = append(out, lowerStmt(n.NamedChild(i), src))
	}
	return out
}

func lowerStmt(n *sitter.Node, src []byte) ast.Stmt {
	switch n.Type() {
	case "comment":
		return &ast.Comment{Loc: loc(n)}
	case "return_statement":
		r := &ast.Return{Loc: loc(n)}
		if v := firstNamedNonComment(n); v != nil {
			r.Value = lowerExpr(v, src)
		}
		return r
	case "if_statement":
		return lowerIf(n, src)
	case "while_statement":
		return &ast.While{
			Loc:  loc(n),
			Cond: lowerField(n, "condition", src),
			Body: lowerFieldBlock(n, "body", src),
			Else: lowerElse(n, src),
		}
	case "for_statement":
		f := &ast.For{
			Loc:  loc(n),
			Body: lowerFieldBlock(n, "body", src),
			Else: lowerElse(n, src),
		}
		if left := n.ChildByFieldName("left"); left != nil {
			f.Header = append(f.Header, lowerExpr(left, src))
		}
		if right := n.ChildByFieldName("right"); right != nil {
			f.Header = append(f.Header, lowerExpr(right, src))
		}
		return f
	case "try_statement":
		return lowerTry(n, src)
	case "with_statement":
		return lowerWith(n, src)
	case "expression_statement":
		return lowerExprStmt(n, src)
	case "function_definition", "async_function_definition":
		return &ast.NestedDef{Loc: loc(n), Def: lowerFunction(n, src)}
	case "decorated_definition":
		if def := n.ChildByFieldName("definition"); def != nil && isFunctionDef(def.Type()) {
			return &ast.NestedDef{Loc: loc(n), Def: lowerFunction(def, src)}
		}
		return opaqueStmt(n, src)
	case "raise_statement":
		o := opaqueStmt(n, src)
		o.Terminates = true
		return o
	default:
		return opaqueStmt(n, src)
	}
}

func lowerIf(n *sitter.Node, src []byte) ast.Stmt {
	s := &ast.If{
		Loc:  loc(n),
		Cond: lowerField(n, "condition", src),
		Then: lowerFieldBlock(n, "consequence", src),
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "elif_clause":
			s.Elifs = append(s.Elifs, ast.ElifClause{
				Loc:  loc(c),
				Cond: lowerField(c, "condition", src),
				Body: lowerFieldBlock(c, "consequence", src),
			})
		case "else_clause":
			s.Else = lowerFieldBlock(c, "body", src)
		}
	}
	return s
}

func lowerTry(n *sitter.Node, src []byte) ast.Stmt {
	t := &ast.Try{Loc: loc(n), Body: lowerFieldBlock(n, "body", src)}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "except_clause", "except_group_clause":
			h := ast.Handler{Loc: loc(c)}
			if b := lastNamedOfType(c, "block"); b != nil {
				h.Body = lowerBlock(b, src)
			}
			t.Handlers = append(t.Handlers, h)
		case "else_clause":
			t.Else = lowerFieldBlock(c, "body", src)
		case "finally_clause":
			if b := lastNamedOfType(c, "block"); b != nil {
				t.Finally = lowerBlock(b, src)
			}
		}
	}
	return t
}

func lowerWith(n *sitter.Node, src []byte) ast.Stmt {
	w := &ast.With{Loc: loc(n), Body: lowerFieldBlock(n, "body", src)}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.Type() != "with_clause" {
			continue
		}
		for j := 0; j < int(c.NamedChildCount()); j++ {
			item := c.NamedChild(j)
			if item.Type() != "with_item" {
				continue
			}
			if v := item.ChildByFieldName("value"); v != nil {
				w.Items = append(w.Items, lowerExpr(v, src))
			} else if inner := firstNamedNonComment(item); inner != nil {
				w.Items = append(w.Items, lowerExpr(inner, src))
			}
		}
	}
	return w
}

func lowerExprStmt(n *sitter.Node, src []byte) ast.Stmt {
	inner := firstNamedNonComment(n)
	if inner == nil {
		return opaqueStmt(n, src)
	}
	switch inner.Type() {
	case "assignment", "augmented_assignment":
		a := &ast.Assign{Loc: loc(n), Aug: inner.Type() == "augmented_assignment"}
		if left := inner.ChildByFieldName("left"); left != nil {
			a.Targets = append(a.Targets, lowerExpr(left, src))
		}
		if right := inner.ChildByFieldName("right"); right != nil {
			a.Value = lowerExpr(right, src)
		}
		return a
	default:
		return &ast.ExprStmt{Loc: loc(n), X: lowerExpr(inner, src)}
	}
}

// opaqueStmt lowers an unmodeled statement, keeping its span and its lowered
// children so detection can still find self-calls inside it.
func opaqueStmt(n *sitter.Node, src []byte) *ast.Opaque {
	o := &ast.Opaque{Loc: loc(n), Kind: n.Type()}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		o.Exprs = append(o.Exprs, lowerExpr(n.NamedChild(i), src))
	}
	return o
}

func lowerExpr(n *sitter.Node, src []byte) ast.Expr {
	switch n.Type() {
	case "identifier":
		return &ast.Name{Loc: loc(n), Ident: NodeText(n, src)}
	case "call":
		return lowerCall(n, src)
	case "boolean_operator":
		return &ast.BoolOp{
			Loc:   loc(n),
			Op:    fieldText(n, "operator", src),
			Left:  lowerField(n, "left", src),
			Right: lowerField(n, "right", src),
		}
	case "binary_operator":
		return &ast.BinOp{
			Loc:   loc(n),
			Op:    fieldText(n, "operator", src),
			Left:  lowerField(n, "left", src),
			Right: lowerField(n, "right", src),
		}
	case "comparison_operator":
		c := &ast.Compare{Loc: loc(n)}
		for _, op := range namedNonComment(n) {
			c.Operands = append(c.Operands, lowerExpr(op, src))
		}
		return c
	case "not_operator":
		return &ast.UnaryOp{Loc: loc(n), Op: "not", X: lowerField(n, "argument", src)}
	case "unary_operator":
		return &ast.UnaryOp{
			Loc: loc(n),
			Op:  fieldText(n, "operator", src),
			X:   lowerField(n, "argument", src),
		}
	case "conditional_expression":
		// consequence `if` condition `else` alternative, in source order
		parts := namedNonComment(n)
		if len(parts) == 3 {
			return &ast.CondExpr{
				Loc:  loc(n),
				Then: lowerExpr(parts[0], src),
				Cond: lowerExpr(parts[1], src),
				Else: lowerExpr(parts[2], src),
			}
		}
		return opaqueExpr(n, src)
	case "parenthesized_expression":
		if inner := firstNamedNonComment(n); inner != nil {
			return &ast.ParenExpr{Loc: loc(n), X: lowerExpr(inner, src)}
		}
		return opaqueExpr(n, src)
	case "await":
		if inner := firstNamedNonComment(n); inner != nil {
			return &ast.AwaitExpr{Loc: loc(n), X: lowerExpr(inner, src)}
		}
		return opaqueExpr(n, src)
	case "lambda", "function_definition", "async_function_definition", "decorated_definition":
		// separate activation frames; never walked from the enclosing function
		return &ast.Lambda{Loc: loc(n)}
	default:
		return opaqueExpr(n, src)
	}
}

func opaqueExpr(n *sitter.Node, src []byte) ast.Expr {
	o := &ast.OpaqueExpr{Loc: loc(n), Kind: n.Type()}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		o.Kids = append(o.Kids, lowerExpr(n.NamedChild(i), src))
	}
	return o
}

func lowerCall(n *sitter.Node, src []byte) ast.Expr {
	c := &ast.Call{Loc: loc(n)}
	if fn := n.ChildByFieldName("function"); fn != nil {
		c.Fn = lowerExpr(fn, src)
	}
	args := n.ChildByFieldName("arguments")
	if args == nil {
		return c
	}
	if args.Type() != "argument_list" {
		// generator-expression argument: f(x for x in xs)
		c.Args = append(c.Args, ast.Arg{Value: lowerExpr(args, src)})
		return c
	}
	for i := 0; i < int(args.NamedChildCount()); i++ {
		a := args.NamedChild(i)
		switch a.Type() {
		case "comment":
		case "keyword_argument":
			c.Args = append(c.Args, ast.Arg{
				Name:  fieldText(a, "name", src),
				Value: lowerField(a, "value", src),
			})
		case "list_splat":
			c.Args = append(c.Args, ast.Arg{Splat: ast.SplatStar, Value: lowerFirstNamed(a, src)})
		case "dictionary_splat":
			c.Args = append(c.Args, ast.Arg{Splat: ast.SplatStarStar, Value: lowerFirstNamed(a, src)})
		default:
			c.Args = append(c.Args, ast.Arg{Value: lowerExpr(a, src)})
		}
	}
	return c
}

// Node helpers. All are nil-safe on missing fields/children.

func lowerField(n *sitter.Node, field string, src []byte) ast.Expr {
	c := n.ChildByFieldName(field)
	if c == nil {
		return nil
	}
	return lowerExpr(c, src)
}

func lowerFieldBlock(n *sitter.Node, field string, src []byte) []ast.Stmt {
	c := n.ChildByFieldName(field)
	if c == nil {
		return nil
	}
	return lowerBlock(c, src)
}

func lowerElse(n *sitter.Node, src []byte) []ast.Stmt {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == "else_clause" {
			return lowerFieldBlock(c, "body", src)
		}
	}
	return nil
}

func lowerFirstNamed(n *sitter.Node, src []byte) ast.Expr {
	c := firstNamedNonComment(n)
	if c == nil {
		return nil
	}
	return lowerExpr(c, src)
}

func fieldText(n *sitter.Node, field string, src []byte) string {
	c := n.ChildByFieldName(field)
	if c == nil {
		return ""
	}
	return NodeText(c, src)
}

func firstNamedNonComment(n *sitter.Node) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() != "comment" {
			return c
		}
	}
	return nil
}

func namedNonComment(n *sitter.Node) []*sitter.Node {
	var out []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() != "comment" {
			out = append(out, c)
		}
	}
	return out
}

func namedChildOfType(n *sitter.Node, kind string) *sitter.Node {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == kind {
			return c
		}
	}
	return nil
}

func lastNamedOfType(n *sitter.Node, kind string) *sitter.Node {
	var last *sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		if c := n.NamedChild(i); c.Type() == kind {
			last = c
		}
	}
	return last
}

func splatName(n *sitter.Node, src []byte) string {
	if id := namedChildOfType(n, "identifier"); id != nil {
		return NodeText(id, src)
	}
	return ""
}

// Package rewrite turns a tail-recursive function into an equivalent
// iterative one: the body becomes a single unconditional loop, and each tail
// self-call becomes a simultaneous rebinding of the parameters followed by a
// continue.
package rewrite

import (
	"fmt"

	"github.com/phobologic/tailloop/internal/ast"
	"github.com/phobologic/tailloop/internal/tailcall"
)

// Refusal is the error returned when a function cannot be rewritten. It
// carries the verdict that blocked the rewrite; Code and the call-site
// position are set when the blocking condition surfaced during rewriting
// rather than analysis.
type Refusal struct {
	Function string
	Code     tailcall.ReasonCode
	Line     int
	Col      int
	Verdict  tailcall.Verdict
}

func (r *Refusal) Error() string {
	if r.Code != "" {
		return fmt.Sprintf("cannot rewrite %s: %s at %d:%d", r.Function, r.Code, r.Line, r.Col)
	}
	return fmt.Sprintf("cannot rewrite %s: function is %s", r.Function, r.Verdict.Kind)
}

// Transform produces a new function equivalent to fn with the recursion
// replaced by a loop. It requires a tail-recursive verdict; otherwise, or
// when a call site's argument shape cannot be matched to the parameter list,
// it returns a *Refusal and no partial result. fn is never mutated.
func Transform(fn *ast.FuncDef, v tailcall.Verdict) (*ast.FuncDef, error) {
	if v.Kind != tailcall.TailRecursive {
		return nil, &Refusal{Function: fn.Name, Verdict: v}
	}
	rw := &rewriter{fn: fn, verdict: v, idents: collectIdents(fn)}
	body, _, err := rw.block(fn.Body)
	if err != nil {
		return nil, err
	}
	if !exits(body) {
		// falling off the end of the original body returns no value; the
		// loop must do the same instead of iterating again
		body = append(body, &ast.Return{})
	}
	out := *fn
	out.Params = append([]ast.Param(nil), fn.Params...)
	out.Body = []ast.Stmt{&ast.Loop{Body: body}}
	return &out, nil
}

type rewriter struct {
	fn      *ast.FuncDef
	verdict tailcall.Verdict
	idents  map[string]struct{}
	temp    string
}

func (rw *rewriter) refuse(code tailcall.ReasonCode, at ast.Loc) error {
	return &Refusal{
		Function: rw.fn.Name,
		Code:     code,
		Line:     at.Line,
		Col:      at.Col,
		Verdict:  rw.verdict,
	}
}

func (rw *rewriter) block(stmts []ast.Stmt) ([]ast.Stmt, bool, error) {
	var out []ast.Stmt
	changed := false
	for _, s := range stmts {
		repl, ch, err := rw.stmt(s)
		if err != nil {
			return nil, false, err
		}
		out = append(out, repl...)
		changed = changed || ch
	}
	return out, changed, nil
}

// stmt rewrites one statement. Statements without tail self-calls pass
// through untouched so the renderer can splice their original text.
func (rw *rewriter) stmt(s ast.Stmt) ([]ast.Stmt, bool, error) {
	switch s := s.(type) {
	case *ast.Return:
		if s.Value == nil {
			return []ast.Stmt{s}, false, nil
		}
		repl, ch, err := rw.retValue(s.Value, ast.Loc{Line: s.Line})
		if err != nil {
			return nil, false, err
		}
		if !ch {
			return []ast.Stmt{s}, false, nil
		}
		return repl, true, nil
	case *ast.If:
		thenB, chT, err := rw.block(s.Then)
		if err != nil {
			return nil, false, err
		}
		changed := chT
		elifs := make([]ast.ElifClause, 0, len(s.Elifs))
		for _, e := range s.Elifs {
			body, ch, err := rw.block(e.Body)
			if err != nil {
				return nil, false, err
			}
			changed = changed || ch
			elifs = append(elifs, ast.ElifClause{Cond: e.Cond, Body: body})
		}
		elseB, chE, err := rw.block(s.Else)
		if err != nil {
			return nil, false, err
		}
		changed = changed || chE
		if !changed {
			return []ast.Stmt{s}, false, nil
		}
		n := &ast.If{Loc: ast.Loc{Line: s.Line}, Cond: s.Cond, Then: thenB, Else: elseB}
		if len(s.Elifs) > 0 {
			n.Elifs = elifs
		}
		return []ast.Stmt{n}, true, nil
	default:
		return []ast.Stmt{s}, false, nil
	}
}

// retValue rewrites the expression of `return <expr>` when a tail self-call
// hides in it. The shapes mirror what analysis accepts as tail: the call
// itself, either arm of a ternary, and the final operand of and/or. at is
// the replaced return's line, stamped on every introduced statement so the
// renderer can keep the original spacing.
func (rw *rewriter) retValue(e ast.Expr, at ast.Loc) ([]ast.Stmt, bool, error) {
	switch e := e.(type) {
	case *ast.ParenExpr:
		return rw.retValue(e.X, at)
	case *ast.Call:
		if !rw.selfCall(e) {
			return nil, false, nil
		}
		repl, err := rw.rebind(e, at)
		if err != nil {
			return nil, false, err
		}
		return repl, true, nil
	case *ast.CondExpr:
		thenB, chT, err := rw.retValue(e.Then, at)
		if err != nil {
			return nil, false, err
		}
		elseB, chE, err := rw.retValue(e.Else, at)
		if err != nil {
			return nil, false, err
		}
		if !chT && !chE {
			return nil, false, nil
		}
		if !chT {
			thenB = []ast.Stmt{&ast.Return{Loc: at, Value: e.Then}}
		}
		if !chE {
			elseB = []ast.Stmt{&ast.Return{Loc: at, Value: e.Else}}
		}
		return []ast.Stmt{&ast.If{Loc: at, Cond: e.Cond, Then: thenB, Else: elseB}}, true, nil
	case *ast.BoolOp:
		rightB, chR, err := rw.retValue(e.Right, at)
		if err != nil {
			return nil, false, err
		}
		if !chR {
			return nil, false, nil
		}
		// short-circuit: bind the left operand once, return it when it
		// decides the chain, otherwise take the rewritten final operand
		tmp := rw.fresh()
		guard := tmp
		if e.Op == "and" {
			guard = "not " + tmp
		}
		out := []ast.Stmt{
			&ast.Assign{
				Loc:     at,
				Targets: []ast.Expr{&ast.Name{Ident: tmp}},
				Value:   e.Left,
			},
			&ast.If{
				Loc:  at,
				Cond: &ast.RawExpr{Text: guard},
				Then: []ast.Stmt{&ast.Return{Loc: at, Value: &ast.RawExpr{Text: tmp}}},
			},
		}
		return append(out, rightB...), true, nil
	default:
		return nil, false, nil
	}
}

// rebind matches the call's arguments to the parameter list and produces the
// simultaneous reassignment plus the loop restart.
func (rw *rewriter) rebind(call *ast.Call, at ast.Loc) ([]ast.Stmt, error) {
	vals, err := rw.bindArgs(call)
	if err != nil {
		return nil, err
	}
	if len(rw.fn.Params) == 0 {
		return []ast.Stmt{&ast.Continue{Loc: at}}, nil
	}
	names := make([]string, len(rw.fn.Params))
	for i, p := range rw.fn.Params {
		names[i] = p.Name
	}
	return []ast.Stmt{
		&ast.Rebind{Loc: at, Names: names, Values: vals},
		&ast.Continue{Loc: at},
	}, nil
}

// bindArgs resolves which argument expression feeds each parameter. Every
// parameter must end up bound: omitted defaults would have to be
// re-evaluated, which the rewrite cannot do faithfully, so they refuse.
func (rw *rewriter) bindArgs(call *ast.Call) ([]ast.Expr, error) {
	params := rw.fn.Params
	vals := make([]ast.Expr, len(params))
	fed := make([]bool, len(params))

	byName := make(map[string]int)
	var positional []int
	star, starstar := -1, -1
	for i, p := range params {
		switch p.Kind {
		case ast.ParamPlain:
			positional = append(positional, i)
			byName[p.Name] = i
		case ast.ParamKwOnly:
			byName[p.Name] = i
		case ast.ParamStar:
			star = i
		case ast.ParamStarStar:
			starstar = i
		}
	}

	var starElems []ast.Expr
	var dictKeys []string
	var dictVals []ast.Expr
	nextPos := 0
	for _, arg := range call.Args {
		switch {
		case arg.Splat != ast.SplatNone:
			return nil, rw.refuse(tailcall.UnsupportedShape, call.Loc)
		case arg.Name != "":
			i, ok := byName[arg.Name]
			if !ok {
				if starstar < 0 {
					return nil, rw.refuse(tailcall.UnresolvableBinding, call.Loc)
				}
				dictKeys = append(dictKeys, arg.Name)
				dictVals = append(dictVals, arg.Value)
				continue
			}
			if fed[i] {
				return nil, rw.refuse(tailcall.UnresolvableBinding, call.Loc)
			}
			fed[i] = true
			vals[i] = arg.Value
		default:
			if nextPos < len(positional) {
				i := positional[nextPos]
				nextPos++
				if fed[i] {
					return nil, rw.refuse(tailcall.UnresolvableBinding, call.Loc)
				}
				fed[i] = true
				vals[i] = arg.Value
				continue
			}
			if star < 0 {
				return nil, rw.refuse(tailcall.UnresolvableBinding, call.Loc)
			}
			starElems = append(starElems, arg.Value)
		}
	}

	for i, p := range params {
		if fed[i] {
			continue
		}
		switch p.Kind {
		case ast.ParamStar:
			vals[i] = &ast.TupleLit{Elems: starElems}
		case ast.ParamStarStar:
			vals[i] = &ast.DictLit{Keys: dictKeys, Values: dictVals}
		default:
			if p.Default != nil {
				return nil, rw.refuse(tailcall.OmittedDefault, call.Loc)
			}
			return nil, rw.refuse(tailcall.UnresolvableBinding, call.Loc)
		}
	}
	return vals, nil
}

func (rw *rewriter) selfCall(c *ast.Call) bool {
	fn := c.Fn
	for {
		p, ok := fn.(*ast.ParenExpr)
		if !ok {
			break
		}
		fn = p.X
	}
	name, ok := fn.(*ast.Name)
	return ok && name.Ident == rw.fn.Name
}

// fresh picks a binding name unused anywhere in the function. One temporary
// is enough: every guard assigns it immediately before reading it.
func (rw *rewriter) fresh() string {
	if rw.temp != "" {
		return rw.temp
	}
	name := "_val"
	for i := 2; ; i++ {
		if _, taken := rw.idents[name]; !taken {
			break
		}
		name = fmt.Sprintf("_val%d", i)
	}
	rw.idents[name] = struct{}{}
	rw.temp = name
	return name
}

// exits reports whether control cannot reach the end of the block.
func exits(stmts []ast.Stmt) bool {
	for _, s := range stmts {
		if stmtExits(s) {
			return true
		}
	}
	return false
}

func stmtExits(s ast.Stmt) bool {
	switch s := s.(type) {
	case *ast.Return, *ast.Continue:
		return true
	case *ast.Opaque:
		return s.Terminates
	case *ast.If:
		if len(s.Else) == 0 {
			return false
		}
		if !exits(s.Then) || !exits(s.Else) {
			return false
		}
		for _, e := range s.Elifs {
			if !exits(e.Body) {
				return false
			}
		}
		return true
	}
	return false
}

func collectIdents(fn *ast.FuncDef) map[string]struct{} {
	ids := make(map[string]struct{})

	var expr func(ast.Expr)
	var stmts func([]ast.Stmt)
	var def func(*ast.FuncDef)

	expr = func(e ast.Expr) {
		switch e := e.(type) {
		case *ast.Name:
			ids[e.Ident] = struct{}{}
		case *ast.Call:
			expr(e.Fn)
			for _, a := range e.Args {
				expr(a.Value)
			}
		case *ast.BoolOp:
			expr(e.Left)
			expr(e.Right)
		case *ast.BinOp:
			expr(e.Left)
			expr(e.Right)
		case *ast.UnaryOp:
			expr(e.X)
		case *ast.Compare:
			for _, op := range e.Operands {
				expr(op)
			}
		case *ast.CondExpr:
			expr(e.Then)
			expr(e.Cond)
			expr(e.Else)
		case *ast.ParenExpr:
			expr(e.X)
		case *ast.AwaitExpr:
			expr(e.X)
		case *ast.OpaqueExpr:
			for _, k := range e.Kids {
				expr(k)
			}
		case *ast.TupleLit:
			for _, el := range e.Elems {
				expr(el)
			}
		case *ast.DictLit:
			for _, v := range e.Values {
				expr(v)
			}
		}
	}
	stmts = func(ss []ast.Stmt) {
		for _, s := range ss {
			switch s := s.(type) {
			case *ast.Return:
				expr(s.Value)
			case *ast.If:
				expr(s.Cond)
				stmts(s.Then)
				for _, e := range s.Elifs {
					expr(e.Cond)
					stmts(e.Body)
				}
				stmts(s.Else)
			case *ast.While:
				expr(s.Cond)
				stmts(s.Body)
				stmts(s.Else)
			case *ast.For:
				for _, e := range s.Header {
					expr(e)
				}
				stmts(s.Body)
				stmts(s.Else)
			case *ast.Try:
				stmts(s.Body)
				for _, h := range s.Handlers {
					stmts(h.Body)
				}
				stmts(s.Else)
				stmts(s.Finally)
			case *ast.With:
				for _, e := range s.Items {
					expr(e)
				}
				stmts(s.Body)
			case *ast.Assign:
				for _, t := range s.Targets {
					expr(t)
				}
				expr(s.Value)
			case *ast.ExprStmt:
				expr(s.X)
			case *ast.NestedDef:
				def(s.Def)
			case *ast.Opaque:
				for _, e := range s.Exprs {
					expr(e)
				}
			}
		}
	}
	def = func(f *ast.FuncDef) {
		ids[f.Name] = struct{}{}
		for _, p := range f.Params {
			ids[p.Name] = struct{}{}
			expr(p.Default)
		}
		stmts(f.Body)
	}

	def(fn)
	return ids
}

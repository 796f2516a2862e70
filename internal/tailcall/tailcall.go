package tailcall

import (
	"github.com/phobologic/tailloop/internal/ast"
)

// Analyze classifies every direct self-call in fn and returns the verdict.
// The walk is pure: the same tree always yields the same verdict, and fn is
// never mutated.
func Analyze(fn *ast.FuncDef) Verdict {
	a := &analyzer{name: fn.Name}
	a.block(fn.Body, "")

	v := Verdict{Function: fn.Name, Line: fn.Line}
	if len(a.sites) == 0 {
		v.Kind = NotRecursive
		return v
	}
	v.Sites = a.sites

	var head []Reason
	if fn.Async {
		head = append(head, Reason{Code: CoroutineFunction})
	}
	if a.yields {
		head = append(head, Reason{Code: GeneratorFunction})
	}
	if fn.Decorated {
		head = append(head, Reason{Code: DecoratedFunction})
	}
	v.Reasons = append(head, a.reasons...)

	if len(v.Reasons) == 0 {
		v.Kind = TailRecursive
	} else {
		v.Kind = NotTailRecursive
	}
	return v
}

type analyzer struct {
	name    string
	sites   []CallSite
	reasons []Reason
	yields  bool
}

// site records one self-call. Non-tail sites carry the reason that
// disqualifies them, at the same position.
func (a *analyzer) site(l ast.Loc, tail bool, code ReasonCode) {
	a.sites = append(a.sites, CallSite{Line: l.Line, Col: l.Col, Tail: tail})
	if !tail {
		a.reasons = append(a.reasons, Reason{Code: code, Line: l.Line, Col: l.Col})
	}
}

// pick resolves the reason for a non-tail self-call: the outermost wrapping
// frame wins over the expression-level code.
func pick(wrap, code ReasonCode) ReasonCode {
	if wrap != "" {
		return wrap
	}
	return code
}

// block walks statements in order. wrap is the reason code of the outermost
// loop/try/with frame enclosing the block, or empty at function level.
// Statements after one that cannot fall through are unreachable and skipped.
func (a *analyzer) block(stmts []ast.Stmt, wrap ReasonCode) {
	for _, s := range stmts {
		a.stmt(s, wrap)
		if terminates(s) {
			break
		}
	}
}

func (a *analyzer) stmt(s ast.Stmt, wrap ReasonCode) {
	switch s := s.(type) {
	case *ast.Return:
		if s.Value == nil {
			return
		}
		if wrap != "" {
			a.returnExpr(s.Value, false, wrap, wrap)
			return
		}
		a.returnExpr(s.Value, true, "", "")
	case *ast.If:
		a.scan(s.Cond, pick(wrap, NotReturned))
		a.block(s.Then, wrap)
		for _, e := range s.Elifs {
			a.scan(e.Cond, pick(wrap, NotReturned))
			a.block(e.Body, wrap)
		}
		a.block(s.Else, wrap)
	case *ast.While:
		inner := pick(wrap, WrappedInLoop)
		a.scan(s.Cond, inner)
		a.block(s.Body, inner)
		a.block(s.Else, inner)
	case *ast.For:
		inner := pick(wrap, WrappedInLoop)
		for _, e := range s.Header {
			a.scan(e, inner)
		}
		a.block(s.Body, inner)
		a.block(s.Else, inner)
	case *ast.Try:
		inner := pick(wrap, WrappedInHandler)
		a.block(s.Body, inner)
		for _, h := range s.Handlers {
			a.block(h.Body, inner)
		}
		a.block(s.Else, inner)
		a.block(s.Finally, inner)
	case *ast.With:
		inner := pick(wrap, WrappedInResource)
		for _, e := range s.Items {
			a.scan(e, inner)
		}
		a.block(s.Body, inner)
	case *ast.Assign:
		code := pick(wrap, NotReturned)
		for _, t := range s.Targets {
			a.scan(t, code)
		}
		a.scan(s.Value, code)
	case *ast.ExprStmt:
		a.scan(s.X, pick(wrap, NotReturned))
	case *ast.NestedDef:
		// the nested body is a separate frame, but its parameter defaults
		// evaluate in this one at definition time
		for _, p := range s.Def.Params {
			a.scan(p.Default, pick(wrap, NotReturned))
		}
	case *ast.Opaque:
		code := pick(wrap, NotReturned)
		for _, e := range s.Exprs {
			a.scan(e, code)
		}
	}
}

// returnExpr classifies the expression of a return statement. tail reports
// whether this position returns the function's value directly; code explains
// why not when it does not. wrap carries the enclosing frame's reason so it
// dominates expression-level codes further down.
func (a *analyzer) returnExpr(e ast.Expr, tail bool, code, wrap ReasonCode) {
	switch e := e.(type) {
	case *ast.Call:
		if a.selfCall(e) {
			switch {
			case !tail:
				a.site(e.Loc, false, code)
			case hasSplat(e):
				a.site(e.Loc, false, UnresolvableBinding)
			default:
				a.site(e.Loc, true, "")
			}
		} else {
			a.scan(e.Fn, pick(wrap, NestedInExpression))
		}
		for _, arg := range e.Args {
			a.scan(arg.Value, pick(wrap, NestedInExpression))
		}
	case *ast.CondExpr:
		// source order: consequence, condition, alternative
		a.returnExpr(e.Then, tail, code, wrap)
		a.scan(e.Cond, pick(wrap, NestedInExpression))
		a.returnExpr(e.Else, tail, code, wrap)
	case *ast.BoolOp:
		// only the final operand's value is returned
		a.scan(e.Left, pick(wrap, NestedInExpression))
		a.returnExpr(e.Right, tail, code, wrap)
	case *ast.ParenExpr:
		a.returnExpr(e.X, tail, code, wrap)
	case *ast.BinOp:
		a.returnExpr(e.Left, false, pick(wrap, ResultPostProcessed), wrap)
		a.returnExpr(e.Right, false, pick(wrap, ResultPostProcessed), wrap)
	case *ast.UnaryOp:
		a.returnExpr(e.X, false, pick(wrap, ResultPostProcessed), wrap)
	case *ast.Compare:
		for _, op := range e.Operands {
			a.returnExpr(op, false, pick(wrap, ResultPostProcessed), wrap)
		}
	case *ast.AwaitExpr:
		a.returnExpr(e.X, false, pick(wrap, ResultPostProcessed), wrap)
	case *ast.OpaqueExpr:
		if e.Kind == "yield" {
			a.yields = true
		}
		for _, k := range e.Kids {
			a.scan(k, pick(wrap, NestedInExpression))
		}
	}
}

// scan walks an expression that is not in tail position, recording every
// self-call with the given reason.
func (a *analyzer) scan(e ast.Expr, code ReasonCode) {
	if e == nil {
		return
	}
	switch e := e.(type) {
	case *ast.Call:
		if a.selfCall(e) {
			a.site(e.Loc, false, code)
		} else {
			a.scan(e.Fn, code)
		}
		for _, arg := range e.Args {
			a.scan(arg.Value, code)
		}
	case *ast.BoolOp:
		a.scan(e.Left, code)
		a.scan(e.Right, code)
	case *ast.BinOp:
		a.scan(e.Left, code)
		a.scan(e.Right, code)
	case *ast.UnaryOp:
		a.scan(e.X, code)
	case *ast.Compare:
		for _, op := range e.Operands {
			a.scan(op, code)
		}
	case *ast.CondExpr:
		a.scan(e.Then, code)
		a.scan(e.Cond, code)
		a.scan(e.Else, code)
	case *ast.ParenExpr:
		a.scan(e.X, code)
	case *ast.AwaitExpr:
		a.scan(e.X, code)
	case *ast.OpaqueExpr:
		if e.Kind == "yield" {
			a.yields = true
		}
		for _, k := range e.Kids {
			a.scan(k, code)
		}
	}
}

// selfCall reports whether the callee is the analyzed function's bare name,
// ignoring parentheses.
func (a *analyzer) selfCall(c *ast.Call) bool {
	fn := c.Fn
	for {
		p, ok := fn.(*ast.ParenExpr)
		if !ok {
			break
		}
		fn = p.X
	}
	name, ok := fn.(*ast.Name)
	return ok && name.Ident == a.name
}

func hasSplat(c *ast.Call) bool {
	for _, arg := range c.Args {
		if arg.Splat != ast.SplatNone {
			return true
		}
	}
	return false
}

// terminates reports whether control cannot flow past s. Only the cases the
// walk needs are covered; anything unknown falls through.
func terminates(s ast.Stmt) bool {
	switch s := s.(type) {
	case *ast.Return:
		return true
	case *ast.Opaque:
		return s.Terminates
	case *ast.If:
		if len(s.Else) == 0 {
			return false
		}
		if !blockTerminates(s.Then) || !blockTerminates(s.Else) {
			return false
		}
		for _, e := range s.Elifs {
			if !blockTerminates(e.Body) {
				return false
			}
		}
		return true
	}
	return false
}

func blockTerminates(stmts []ast.Stmt) bool {
	for _, s := range stmts {
		if terminates(s) {
			return true
		}
	}
	return false
}

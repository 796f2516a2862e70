// Package ast defines the typed tree that tail-call analysis and rewriting
// operate on. The frontend lowers a parsed Python file into these nodes; the
// rewriter builds new ones. Nodes carry their source byte range so diagnostics
// and the renderer can point back into the original text; nodes introduced by
// a rewrite have a zero location.
package ast

// Loc is a node's place in the source file: a half-open byte range plus the
// 1-based line and column of its start.
type Loc struct {
	StartByte uint32
	EndByte   uint32
	Line      int
	Col       int
}

// Span returns the location itself. Embedding Loc gives every node kind the
// Node interface.
func (l Loc) Span() Loc { return l }

// Generated reports whether the node was introduced by a rewrite rather than
// lowered from source. Rewrite-introduced nodes may carry the line of the
// statement they replace, but never a byte range.
func (l Loc) Generated() bool { return l.EndByte == 0 }

// Node is implemented by every statement and expression.
type Node interface {
	Span() Loc
}

// Stmt is a statement node.
type Stmt interface {
	Node
	stmt()
}

// Expr is an expression node.
type Expr interface {
	Node
	expr()
}

// ParamKind distinguishes how a parameter binds its argument.
type ParamKind string

const (
	ParamPlain    ParamKind = "plain"   // positional-or-keyword
	ParamKwOnly   ParamKind = "kwonly"  // declared after a bare *
	ParamStar     ParamKind = "star"    // *args
	ParamStarStar ParamKind = "kwargs"  // **kwargs
)

// Param is one declared parameter. Default is nil when the parameter has no
// default value.
type Param struct {
	Name    string
	Kind    ParamKind
	Default Expr
}

// FuncDef is one function definition. BodyStart is the byte offset of the
// first body statement, so the renderer can reproduce the header (the def
// line through the colon) verbatim. Decorated functions keep their decorators
// outside the definition's own span.
type FuncDef struct {
	Loc
	Name      string
	Params    []Param
	Body      []Stmt
	BodyStart uint32
	Async     bool
	Decorated bool
}

// Statements.

// Return is `return` with an optional value.
type Return struct {
	Loc
	Value Expr // nil for a bare return
}

// If is an if/elif/else chain.
type If struct {
	Loc
	Cond  Expr
	Then  []Stmt
	Elifs []ElifClause
	Else  []Stmt
}

// ElifClause is one elif arm of an If.
type ElifClause struct {
	Loc
	Cond Expr
	Body []Stmt
}

// While is a while loop with an optional else clause.
type While struct {
	Loc
	Cond Expr
	Body []Stmt
	Else []Stmt
}

// For is a for loop. Header holds the target and iterable expressions, kept
// only so detection can scan them for calls.
type For struct {
	Loc
	Header []Expr
	Body   []Stmt
	Else   []Stmt
}

// Try is a try statement with its handler, else, and finally blocks.
type Try struct {
	Loc
	Body     []Stmt
	Handlers []Handler
	Else     []Stmt
	Finally  []Stmt
}

// Handler is one except clause body.
type Handler struct {
	Loc
	Body []Stmt
}

// With is a context-managed block. Items holds the context expressions.
type With struct {
	Loc
	Items []Expr
	Body  []Stmt
}

// Assign covers plain, augmented, and annotated assignments. Targets are kept
// for call scanning only.
type Assign struct {
	Loc
	Targets []Expr
	Value   Expr // nil for a bare annotation like `x: int`
	Aug     bool
}

// ExprStmt is a bare expression statement.
type ExprStmt struct {
	Loc
	X Expr
}

// NestedDef wraps a function definition appearing as a statement. The inner
// definition is a separate activation frame: the enclosing function's
// analysis does not walk it.
type NestedDef struct {
	Loc
	Def *FuncDef
}

// Comment is a standalone comment line, preserved through rewriting.
type Comment struct {
	Loc
}

// Opaque is any statement kind the lowering does not model (imports, raise,
// assert, match, class definitions, ...). Exprs holds the call-bearing
// expressions found inside it so detection still sees self-calls there.
// Terminates marks statements that cannot fall through (raise).
type Opaque struct {
	Loc
	Kind       string
	Exprs      []Expr
	Terminates bool
}

// Rewrite-introduced statements.

// Loop is the unconditional `while True:` wrapper produced by the rewriter.
type Loop struct {
	Loc
	Body []Stmt
}

// Rebind is the simultaneous reassignment of the loop-carried parameter
// bindings. All Values are evaluated against the pre-rebind bindings.
type Rebind struct {
	Loc
	Names  []string
	Values []Expr
}

// Continue restarts the wrapping loop.
type Continue struct {
	Loc
}

// Expressions.

// Name is a bare identifier.
type Name struct {
	Loc
	Ident string
}

// SplatKind marks star/double-star arguments at a call site.
type SplatKind string

const (
	SplatNone     SplatKind = ""
	SplatStar     SplatKind = "*"
	SplatStarStar SplatKind = "**"
)

// Arg is one argument at a call site. Name is set for keyword arguments.
type Arg struct {
	Name  string
	Value Expr
	Splat SplatKind
}

// Call is a call expression.
type Call struct {
	Loc
	Fn   Expr
	Args []Arg
}

// BoolOp is a short-circuit `and`/`or`. Only the right operand can be the
// returned value.
type BoolOp struct {
	Loc
	Op    string
	Left  Expr
	Right Expr
}

// BinOp is an arithmetic or bitwise binary operator.
type BinOp struct {
	Loc
	Op    string
	Left  Expr
	Right Expr
}

// UnaryOp is a unary operator, including `not`.
type UnaryOp struct {
	Loc
	Op string
	X  Expr
}

// Compare is a comparison chain; Operands holds the compared expressions in
// order.
type Compare struct {
	Loc
	Operands []Expr
}

// CondExpr is the ternary `Then if Cond else Else`.
type CondExpr struct {
	Loc
	Then Expr
	Cond Expr
	Else Expr
}

// ParenExpr is a parenthesized expression. Transparent for tail position: the
// parentheses wrap the value, not the callee.
type ParenExpr struct {
	Loc
	X Expr
}

// AwaitExpr is `await x`.
type AwaitExpr struct {
	Loc
	X Expr
}

// Lambda is an opaque leaf: its body runs in its own frame and is never
// walked by the enclosing function's analysis.
type Lambda struct {
	Loc
}

// OpaqueExpr is any expression kind the lowering does not model (literals,
// collections, subscripts, attributes, ...). Kids holds the lowered children
// so detection can still descend.
type OpaqueExpr struct {
	Loc
	Kind string
	Kids []Expr
}

// RawExpr is a rewrite-introduced expression rendered as literal text.
type RawExpr struct {
	Loc
	Text string
}

// TupleLit is a rewrite-introduced tuple display, used to rebind a *args
// parameter from a fixed-shape call.
type TupleLit struct {
	Loc
	Elems []Expr
}

// DictLit is a rewrite-introduced dict display, used to rebind a **kwargs
// parameter from a fixed-shape call.
type DictLit struct {
	Loc
	Keys   []string
	Values []Expr
}

func (*Return) stmt()    {}
func (*If) stmt()        {}
func (*While) stmt()     {}
func (*For) stmt()       {}
func (*Try) stmt()       {}
func (*With) stmt()      {}
func (*Assign) stmt()    {}
func (*ExprStmt) stmt()  {}
func (*NestedDef) stmt() {}
func (*Comment) stmt()   {}
func (*Opaque) stmt()    {}
func (*Loop) stmt()      {}
func (*Rebind) stmt()    {}
func (*Continue) stmt()  {}

func (*Name) expr()       {}
func (*Call) expr()       {}
func (*BoolOp) expr()     {}
func (*BinOp) expr()      {}
func (*UnaryOp) expr()    {}
func (*Compare) expr()    {}
func (*CondExpr) expr()   {}
func (*ParenExpr) expr()  {}
func (*AwaitExpr) expr()  {}
func (*Lambda) expr()     {}
func (*OpaqueExpr) expr() {}
func (*RawExpr) expr()    {}
func (*TupleLit) expr()   {}
func (*DictLit) expr()    {}

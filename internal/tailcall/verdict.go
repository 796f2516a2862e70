// Package tailcall finds the direct self-calls of a function and decides
// whether every one of them sits in tail position, which is what makes the
// loop rewrite sound.
package tailcall

// VerdictKind classifies a function's recursion.
type VerdictKind string

const (
	NotRecursive     VerdictKind = "not-recursive"
	TailRecursive    VerdictKind = "tail-recursive"
	NotTailRecursive VerdictKind = "not-tail-recursive"
)

// ReasonCode names the condition that keeps a call site, or the whole
// function, out of tail position.
type ReasonCode string

const (
	// Call-site conditions.
	NestedInExpression  ReasonCode = "nested-in-expression"
	ResultPostProcessed ReasonCode = "result-post-processed"
	WrappedInLoop       ReasonCode = "wrapped-in-loop"
	WrappedInHandler    ReasonCode = "wrapped-in-exception-handler"
	WrappedInResource   ReasonCode = "wrapped-in-resource-scope"
	NotReturned         ReasonCode = "not-returned"
	UnresolvableBinding ReasonCode = "unresolvable-argument-binding"

	// Function-level conditions.
	GeneratorFunction ReasonCode = "generator-function"
	CoroutineFunction ReasonCode = "coroutine-function"
	DecoratedFunction ReasonCode = "decorated-function"

	// Rewrite refusals.
	OmittedDefault   ReasonCode = "omitted-default-argument"
	UnsupportedShape ReasonCode = "unsupported-variadic-shape"
)

// CallSite is one direct self-call found in the function body.
type CallSite struct {
	Line int  `yaml:"line"`
	Col  int  `yaml:"col"`
	Tail bool `yaml:"tail"`
}

// Reason explains one disqualifying occurrence. Function-level reasons carry
// no position.
type Reason struct {
	Code ReasonCode `yaml:"code"`
	Line int        `yaml:"line,omitempty"`
	Col  int        `yaml:"col,omitempty"`
}

// Verdict is the analysis result for one function. Sites and Reasons follow
// source order; function-level reasons come first.
type Verdict struct {
	Function string      `yaml:"function"`
	Line     int         `yaml:"line"`
	Kind     VerdictKind `yaml:"verdict"`
	Sites    []CallSite  `yaml:"call_sites,omitempty"`
	Reasons  []Reason    `yaml:"non_tail_reasons,omitempty"`
}

package tailcall

import (
	"context"
	"reflect"
	"testing"

	"github.com/phobologic/tailloop/internal/ast"
	"github.com/phobologic/tailloop/internal/parse"
)

func analyzeFirst(t *testing.T, source string) Verdict {
	t.Helper()
	f, err := parse.NewParser().Parse(context.Background(), "test.py", []byte(source))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(f.Funcs) == 0 {
		t.Fatal("no functions parsed")
	}
	return Analyze(f.Funcs[0])
}

func reasonCodes(v Verdict) []ReasonCode {
	var out []ReasonCode
	for _, r := range v.Reasons {
		out = append(out, r.Code)
	}
	return out
}

// --- verdict kinds ---

func TestNotRecursive(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def double(n):
    return n * 2
`)
	if v.Kind != NotRecursive {
		t.Errorf("kind = %q, want %q", v.Kind, NotRecursive)
	}
	if len(v.Sites) != 0 || len(v.Reasons) != 0 {
		t.Errorf("expected no sites or reasons, got %+v", v)
	}
}

func TestTernaryAccumulator(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def fact(n, acc=1):
    return acc if n <= 1 else fact(n - 1, acc * n)
`)
	if v.Kind != TailRecursive {
		t.Fatalf("kind = %q, want %q (reasons: %v)", v.Kind, TailRecursive, v.Reasons)
	}
	if len(v.Sites) != 1 {
		t.Fatalf("expected 1 site, got %d", len(v.Sites))
	}
	if !v.Sites[0].Tail {
		t.Error("site should be tail")
	}
	if v.Sites[0].Line != 2 {
		t.Errorf("site line = %d, want 2", v.Sites[0].Line)
	}
}

func TestSeparateBaseCase(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def fib(n, a=0, b=1):
    if n == 0:
        return a
    if n == 1:
        return b
    return fib(n - 1, b, a + b)
`)
	if v.Kind != TailRecursive {
		t.Errorf("kind = %q, want %q (reasons: %v)", v.Kind, TailRecursive, v.Reasons)
	}
}

func TestPostProcessed(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    if n <= 1:
        return 1
    return f(n - 1) + 1
`)
	if v.Kind != NotTailRecursive {
		t.Fatalf("kind = %q, want %q", v.Kind, NotTailRecursive)
	}
	if len(v.Reasons) != 1 {
		t.Fatalf("expected 1 reason, got %v", v.Reasons)
	}
	r := v.Reasons[0]
	if r.Code != ResultPostProcessed {
		t.Errorf("code = %q, want %q", r.Code, ResultPostProcessed)
	}
	if r.Line != 4 {
		t.Errorf("reason line = %d, want 4", r.Line)
	}
}

func TestNestedInExpression(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    return max(f(n - 1), 0)
`)
	if got := reasonCodes(v); !reflect.DeepEqual(got, []ReasonCode{NestedInExpression}) {
		t.Errorf("reasons = %v, want [%s]", got, NestedInExpression)
	}
}

func TestNotReturned(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    f(n - 1)
    return n
`)
	if v.Kind != NotTailRecursive {
		t.Fatalf("kind = %q, want %q", v.Kind, NotTailRecursive)
	}
	if got := reasonCodes(v); !reflect.DeepEqual(got, []ReasonCode{NotReturned}) {
		t.Errorf("reasons = %v, want [%s]", got, NotReturned)
	}
}

// --- wrapping frames ---

func TestWrappedInExceptionHandler(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    try:
        return f(n - 1)
    except ValueError:
        return 0
`)
	if got := reasonCodes(v); !reflect.DeepEqual(got, []ReasonCode{WrappedInHandler}) {
		t.Errorf("reasons = %v, want [%s]", got, WrappedInHandler)
	}
}

func TestWrappedInLoop(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    for i in range(n):
        return f(n - 1)
    return 0
`)
	if got := reasonCodes(v); !reflect.DeepEqual(got, []ReasonCode{WrappedInLoop}) {
		t.Errorf("reasons = %v, want [%s]", got, WrappedInLoop)
	}
}

func TestWrappedInResourceScope(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n, path):
    with open(path) as fh:
        return f(n - 1, path)
`)
	if got := reasonCodes(v); !reflect.DeepEqual(got, []ReasonCode{WrappedInResource}) {
		t.Errorf("reasons = %v, want [%s]", got, WrappedInResource)
	}
}

func TestOutermostFrameWins(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    try:
        for i in range(n):
            return f(n - 1)
    except Exception:
        pass
    return 0
`)
	if got := reasonCodes(v); !reflect.DeepEqual(got, []ReasonCode{WrappedInHandler}) {
		t.Errorf("reasons = %v, want [%s]", got, WrappedInHandler)
	}
}

// --- boolean chains ---

func TestBooleanFinalOperandIsTail(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    return n <= 0 or f(n - 1)
`)
	if v.Kind != TailRecursive {
		t.Errorf("kind = %q, want %q (reasons: %v)", v.Kind, TailRecursive, v.Reasons)
	}
}

func TestBooleanLeftOperandIsNotTail(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    return f(n - 1) or n
`)
	if got := reasonCodes(v); !reflect.DeepEqual(got, []ReasonCode{NestedInExpression}) {
		t.Errorf("reasons = %v, want [%s]", got, NestedInExpression)
	}
}

// --- function-level conditions ---

func TestRecursiveGenerator(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def walk(node):
    yield node
    return walk(node.next)
`)
	if v.Kind != NotTailRecursive {
		t.Fatalf("kind = %q, want %q", v.Kind, NotTailRecursive)
	}
	if got := reasonCodes(v); len(got) == 0 || got[0] != GeneratorFunction {
		t.Errorf("reasons = %v, want %s first", got, GeneratorFunction)
	}
	if v.Reasons[0].Line != 0 {
		t.Errorf("function-level reason should carry no line, got %d", v.Reasons[0].Line)
	}
}

func TestNonRecursiveGenerator(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def gen(n):
    yield n
`)
	if v.Kind != NotRecursive {
		t.Errorf("kind = %q, want %q", v.Kind, NotRecursive)
	}
}

func TestRecursiveCoroutine(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `async def f(n):
    if n <= 0:
        return 0
    return f(n - 1)
`)
	if v.Kind != NotTailRecursive {
		t.Fatalf("kind = %q, want %q", v.Kind, NotTailRecursive)
	}
	if got := reasonCodes(v); len(got) == 0 || got[0] != CoroutineFunction {
		t.Errorf("reasons = %v, want %s first", got, CoroutineFunction)
	}
}

func TestAwaitedSelfCall(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `async def f(n):
    return await f(n - 1)
`)
	codes := reasonCodes(v)
	want := []ReasonCode{CoroutineFunction, ResultPostProcessed}
	if !reflect.DeepEqual(codes, want) {
		t.Errorf("reasons = %v, want %v", codes, want)
	}
}

func TestDecoratedFunction(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `@lru_cache
def f(n):
    if n <= 1:
        return 1
    return f(n - 1)
`)
	if v.Kind != NotTailRecursive {
		t.Fatalf("kind = %q, want %q", v.Kind, NotTailRecursive)
	}
	if got := reasonCodes(v); !reflect.DeepEqual(got, []ReasonCode{DecoratedFunction}) {
		t.Errorf("reasons = %v, want [%s]", got, DecoratedFunction)
	}
}

// --- argument shapes ---

func TestSplatArgumentsUnresolvable(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(*args):
    return f(*args)
`)
	if got := reasonCodes(v); !reflect.DeepEqual(got, []ReasonCode{UnresolvableBinding}) {
		t.Errorf("reasons = %v, want [%s]", got, UnresolvableBinding)
	}
	if len(v.Sites) != 1 || v.Sites[0].Tail {
		t.Errorf("splat site should be recorded non-tail, got %+v", v.Sites)
	}
}

// --- ordering and determinism ---

func TestSitesFollowSourceOrder(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    if n % 2 == 0:
        return f(n - 1) + 1
    if n % 3 == 0:
        return f(n - 2)
    return f(n - 3)
`)
	if len(v.Sites) != 3 {
		t.Fatalf("expected 3 sites, got %d", len(v.Sites))
	}
	for i := 1; i < len(v.Sites); i++ {
		if v.Sites[i].Line < v.Sites[i-1].Line {
			t.Errorf("sites out of order: %+v", v.Sites)
		}
	}
	if v.Sites[0].Tail || !v.Sites[1].Tail || !v.Sites[2].Tail {
		t.Errorf("tail flags = %+v, want [false true true]", v.Sites)
	}
	if got := reasonCodes(v); !reflect.DeepEqual(got, []ReasonCode{ResultPostProcessed}) {
		t.Errorf("reasons = %v, want [%s]", got, ResultPostProcessed)
	}
}

func TestAnalyzeIsIdempotent(t *testing.T) {
	t.Parallel()
	source := `def f(n, acc):
    if n == 0:
        return acc
    return f(n - 1, acc + n)
`
	f, err := parse.NewParser().Parse(context.Background(), "test.py", []byte(source))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	first := Analyze(f.Funcs[0])
	second := Analyze(f.Funcs[0])
	if !reflect.DeepEqual(first, second) {
		t.Errorf("verdicts differ:\n%+v\n%+v", first, second)
	}
}

// --- scoping ---

func TestUnreachableAfterReturnIgnored(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    return n
    f(n - 1)
`)
	if v.Kind != NotRecursive {
		t.Errorf("kind = %q, want %q", v.Kind, NotRecursive)
	}
}

func TestNestedDefIsSeparateFrame(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    def helper():
        return f(n - 1)
    return helper()
`)
	if v.Kind != NotRecursive {
		t.Errorf("kind = %q, want %q", v.Kind, NotRecursive)
	}
}

func TestNestedDefDefaultEvaluatesHere(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    def helper(x=f(n - 1)):
        return x
    return helper()
`)
	if v.Kind != NotTailRecursive {
		t.Fatalf("kind = %q, want %q", v.Kind, NotTailRecursive)
	}
	if got := reasonCodes(v); !reflect.DeepEqual(got, []ReasonCode{NotReturned}) {
		t.Errorf("reasons = %v, want [%s]", got, NotReturned)
	}
}

func TestLambdaIsSeparateFrame(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(items):
    return sorted(items, key=lambda x: f(x))
`)
	if v.Kind != NotRecursive {
		t.Errorf("kind = %q, want %q", v.Kind, NotRecursive)
	}
}

func TestParenthesizedCallee(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    if n <= 0:
        return 0
    return (f)(n - 1)
`)
	if v.Kind != TailRecursive {
		t.Errorf("kind = %q, want %q (reasons: %v)", v.Kind, TailRecursive, v.Reasons)
	}
}

func TestMixedTailAndWrapped(t *testing.T) {
	t.Parallel()
	v := analyzeFirst(t, `def f(n):
    if n <= 0:
        return 0
    if n % 2:
        return f(n - 1)
    while n > 10:
        n = f(n - 2)
    return f(n - 3)
`)
	if v.Kind != NotTailRecursive {
		t.Fatalf("kind = %q, want %q", v.Kind, NotTailRecursive)
	}
	if len(v.Sites) != 3 {
		t.Fatalf("expected 3 sites, got %+v", v.Sites)
	}
	if got := reasonCodes(v); !reflect.DeepEqual(got, []ReasonCode{WrappedInLoop}) {
		t.Errorf("reasons = %v, want [%s]", got, WrappedInLoop)
	}
}

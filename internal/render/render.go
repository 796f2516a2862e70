// Package render turns a rewritten function back into source text. Statements
// that survived the rewrite untouched are spliced verbatim from the original
// file, re-indented for their new nesting depth; only rewrite-introduced
// statements are printed structurally. Comments and blank lines inside the
// function body ride along with the verbatim splices.
package render

import (
	"sort"
	"strings"

	"github.com/phobologic/tailloop/internal/ast"
)

// Edit is one byte-range replacement in a source file.
type Edit struct {
	Start uint32
	End   uint32
	Text  string
}

// Splice applies the edits to src and returns the new file contents. Edits
// must not overlap; order does not matter.
func Splice(src []byte, edits []Edit) []byte {
	sorted := append([]Edit(nil), edits...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start > sorted[j].Start })
	out := append([]byte(nil), src...)
	for _, e := range sorted {
		var next []byte
		next = append(next, out[:e.Start]...)
		next = append(next, e.Text...)
		next = append(next, out[e.End:]...)
		out = next
	}
	return out
}

// Function renders fn as replacement text for its original span. The first
// line carries no indent (the splice point sits after the original line's
// leading whitespace); continuation lines are indented relative to the def.
func Function(src []byte, fn *ast.FuncDef) string {
	r := &renderer{src: src, lines: lineOffsets(src)}
	r.base = r.indentAt(fn.StartByte)
	r.unit = r.bodyUnit(fn)

	var b strings.Builder
	header := strings.TrimRight(string(src[fn.StartByte:fn.BodyStart]), " \t\r\n")
	b.WriteString(header)
	b.WriteString("\n")
	r.renderBlock(&b, fn.Body, 1)
	return strings.TrimRight(b.String(), "\n")
}

type renderer struct {
	src   []byte
	lines []uint32
	base  string
	unit  string
}

func lineOffsets(src []byte) []uint32 {
	offs := []uint32{0}
	for i, c := range src {
		if c == '\n' {
			offs = append(offs, uint32(i)+1)
		}
	}
	return offs
}

// lineOf returns the 1-based line number containing the byte offset.
func (r *renderer) lineOf(off uint32) int {
	return sort.Search(len(r.lines), func(i int) bool { return r.lines[i] > off })
}

// indentAt returns the leading whitespace of the line containing off, but
// only when everything before off on that line is whitespace.
func (r *renderer) indentAt(off uint32) string {
	ls := r.lines[r.lineOf(off)-1]
	prefix := r.src[ls:off]
	for _, c := range prefix {
		if c != ' ' && c != '\t' {
			return ""
		}
	}
	return string(prefix)
}

// bodyUnit derives one indent level from the first body line.
func (r *renderer) bodyUnit(fn *ast.FuncDef) string {
	body := r.indentAt(fn.BodyStart)
	if body != "" && strings.HasPrefix(body, r.base) && len(body) > len(r.base) {
		return body[len(r.base):]
	}
	return "    "
}

func (r *renderer) indent(depth int) string {
	return r.base + strings.Repeat(r.unit, depth)
}

func (r *renderer) renderBlock(b *strings.Builder, stmts []ast.Stmt, depth int) {
	prevEnd := 0 // source line the previous statement ended on, 0 if unknown
	for _, s := range stmts {
		loc := s.Span()
		start := r.startLine(loc)
		if prevEnd > 0 && start > 0 {
			if start == prevEnd && !loc.Generated() {
				// same-line trailing comment: re-attach with its original
				// spacing instead of moving it to a new line
				if _, ok := s.(*ast.Comment); ok {
					trimmed := strings.TrimRight(b.String(), "\n")
					b.Reset()
					b.WriteString(trimmed)
					b.WriteString(r.sameLineGap(loc.StartByte))
					b.WriteString(string(r.src[loc.StartByte:loc.EndByte]))
					b.WriteString("\n")
					prevEnd = r.endLine(s)
					continue
				}
			}
			for i := prevEnd + 1; i < start; i++ {
				b.WriteString("\n")
			}
		}
		r.renderStmt(b, s, depth)
		prevEnd = r.endLine(s)
	}
}

// startLine is the source line a statement begins on. Rewrite-introduced
// statements report the line they replaced, or 0 when there is none.
func (r *renderer) startLine(loc ast.Loc) int {
	if loc.Generated() {
		return loc.Line
	}
	return r.lineOf(loc.StartByte)
}

// endLine is the last source line a statement covers. A rewrite-introduced
// branch still contains spliced statements with real spans, so the deepest
// one decides.
func (r *renderer) endLine(s ast.Stmt) int {
	loc := s.Span()
	if !loc.Generated() {
		return r.lineOf(loc.EndByte - 1)
	}
	end := loc.Line
	blocks := func(stmts []ast.Stmt) {
		for _, t := range stmts {
			if e := r.endLine(t); e > end {
				end = e
			}
		}
	}
	switch s := s.(type) {
	case *ast.If:
		blocks(s.Then)
		for _, e := range s.Elifs {
			blocks(e.Body)
		}
		blocks(s.Else)
	case *ast.Loop:
		blocks(s.Body)
	}
	return end
}

// sameLineGap returns the original run of spaces before a trailing comment.
func (r *renderer) sameLineGap(off uint32) string {
	ls := r.lines[r.lineOf(off)-1]
	i := off
	for i > ls && (r.src[i-1] == ' ' || r.src[i-1] == '\t') {
		i--
	}
	if i == off {
		return "  "
	}
	return string(r.src[i:off])
}

func (r *renderer) renderStmt(b *strings.Builder, s ast.Stmt, depth int) {
	if !s.Span().Generated() {
		r.splice(b, s.Span(), depth)
		return
	}
	ind := r.indent(depth)
	switch s := s.(type) {
	case *ast.Loop:
		b.WriteString(ind)
		b.WriteString("while True:\n")
		r.renderBlock(b, s.Body, depth+1)
	case *ast.Rebind:
		b.WriteString(ind)
		b.WriteString(r.rebind(s))
		b.WriteString("\n")
	case *ast.Continue:
		b.WriteString(ind)
		b.WriteString("continue\n")
	case *ast.Return:
		b.WriteString(ind)
		if s.Value == nil {
			b.WriteString("return\n")
		} else {
			b.WriteString("return ")
			b.WriteString(r.exprText(s.Value))
			b.WriteString("\n")
		}
	case *ast.If:
		b.WriteString(ind)
		b.WriteString("if ")
		b.WriteString(r.exprText(s.Cond))
		b.WriteString(":\n")
		r.renderBlock(b, s.Then, depth+1)
		for _, e := range s.Elifs {
			b.WriteString(ind)
			b.WriteString("elif ")
			b.WriteString(r.exprText(e.Cond))
			b.WriteString(":\n")
			r.renderBlock(b, e.Body, depth+1)
		}
		if len(s.Else) > 0 {
			b.WriteString(ind)
			b.WriteString("else:\n")
			r.renderBlock(b, s.Else, depth+1)
		}
	case *ast.Assign:
		b.WriteString(ind)
		for i, tgt := range s.Targets {
			if i > 0 {
				b.WriteString(" = ")
			}
			b.WriteString(r.exprText(tgt))
		}
		b.WriteString(" = ")
		b.WriteString(r.exprText(s.Value))
		b.WriteString("\n")
	}
}

// splice copies a statement's original text, replacing its old leading
// indent with the one for its new depth on every line.
func (r *renderer) splice(b *strings.Builder, loc ast.Loc, depth int) {
	text := string(r.src[loc.StartByte:loc.EndByte])
	orig := r.indentAt(loc.StartByte)
	ind := r.indent(depth)
	for i, line := range strings.Split(text, "\n") {
		switch {
		case i == 0:
			b.WriteString(ind)
			b.WriteString(line)
		case strings.TrimSpace(line) == "":
			// keep blank lines inside the statement blank
		case strings.HasPrefix(line, orig):
			b.WriteString(ind)
			b.WriteString(line[len(orig):])
		default:
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
}

func (r *renderer) rebind(s *ast.Rebind) string {
	if len(s.Names) == 1 {
		return s.Names[0] + " = " + r.exprText(s.Values[0])
	}
	vals := make([]string, len(s.Values))
	for i, v := range s.Values {
		vals[i] = r.exprText(v)
	}
	return strings.Join(s.Names, ", ") + " = (" + strings.Join(vals, ", ") + ")"
}

func (r *renderer) exprText(e ast.Expr) string {
	switch e := e.(type) {
	case *ast.RawExpr:
		return e.Text
	case *ast.Name:
		if e.Generated() {
			return e.Ident
		}
	case *ast.TupleLit:
		if len(e.Elems) == 0 {
			return "()"
		}
		parts := make([]string, len(e.Elems))
		for i, el := range e.Elems {
			parts[i] = r.exprText(el)
		}
		if len(parts) == 1 {
			return "(" + parts[0] + ",)"
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *ast.DictLit:
		if len(e.Keys) == 0 {
			return "{}"
		}
		parts := make([]string, len(e.Keys))
		for i, k := range e.Keys {
			parts[i] = `"` + k + `": ` + r.exprText(e.Values[i])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	}
	l := e.Span()
	return string(r.src[l.StartByte:l.EndByte])
}

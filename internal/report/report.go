// Package report renders analysis results as text or YAML.
package report

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/tailloop/internal/tailcall"
)

// Result pairs one function's verdict with what the rewriter did about it.
type Result struct {
	tailcall.Verdict `yaml:",inline"`

	// Rewritten is true when the function was turned into a loop.
	Rewritten bool `yaml:"rewritten"`

	// Note carries the refusal code or skip reason when Rewritten is false
	// for a function that looked eligible.
	Note string `yaml:"note,omitempty"`
}

// File collects the results for one source file.
type File struct {
	Path    string   `yaml:"file"`
	Results []Result `yaml:"functions"`
}

const (
	ansiGreen = "\x1b[32m"
	ansiRed   = "\x1b[31m"
	ansiDim   = "\x1b[2m"
	ansiReset = "\x1b[0m"
)

// Colorize decides whether output to w should carry ANSI colors.
// mode is "auto", "always", or "never".
func Colorize(w io.Writer, mode string) bool {
	switch mode {
	case "always":
		return true
	case "never":
		return false
	}

	// NO_COLOR convention: https://no-color.org/
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Text writes one block per file: the path, then a line per function with
// its verdict, with reason lines under non-tail verdicts.
func Text(w io.Writer, files []File, color bool) {
	for i, f := range files {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, f.Path)
		for _, r := range f.Results {
			line := fmt.Sprintf("  %s (line %d): %s", r.Function, r.Line, paint(r.Kind, color))
			if r.Kind == tailcall.TailRecursive {
				line += ", " + plural(len(r.Sites), "tail call")
			}
			if r.Note != "" {
				line += fmt.Sprintf(" (%s)", r.Note)
			}
			fmt.Fprintln(w, line)
			if r.Kind == tailcall.NotTailRecursive {
				for _, reason := range r.Reasons {
					if reason.Line > 0 {
						fmt.Fprintf(w, "    %d:%d %s\n", reason.Line, reason.Col, reason.Code)
					} else {
						fmt.Fprintf(w, "    %s\n", reason.Code)
					}
				}
			}
		}
	}
}

// Summary writes the closing rewrite count over every function in files.
func Summary(w io.Writer, files []File) {
	total, rewritten := 0, 0
	for _, f := range files {
		for _, r := range f.Results {
			total++
			if r.Rewritten {
				rewritten++
			}
		}
	}
	fmt.Fprintf(w, "rewrote %d of %s\n", rewritten, plural(total, "function"))
}

// YAML writes one document per file.
func YAML(w io.Writer, files []File) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	for _, f := range files {
		if err := enc.Encode(f); err != nil {
			enc.Close()
			return fmt.Errorf("encoding report for %s: %w", f.Path, err)
		}
	}
	return enc.Close()
}

func paint(kind tailcall.VerdictKind, color bool) string {
	if !color {
		return string(kind)
	}
	switch kind {
	case tailcall.TailRecursive:
		return ansiGreen + string(kind) + ansiReset
	case tailcall.NotTailRecursive:
		return ansiRed + string(kind) + ansiReset
	default:
		return ansiDim + string(kind) + ansiReset
	}
}

func plural(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

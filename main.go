// tailloop rewrites tail-recursive Python functions into while loops.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/phobologic/tailloop/internal/config"
	"github.com/phobologic/tailloop/internal/discover"
	"github.com/phobologic/tailloop/internal/parse"
	"github.com/phobologic/tailloop/internal/render"
	"github.com/phobologic/tailloop/internal/report"
	"github.com/phobologic/tailloop/internal/rewrite"
	"github.com/phobologic/tailloop/internal/tailcall"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	if len(args) > 0 && args[0] == "init" {
		return runInit(args[1:], stdout, stderr)
	}

	fs := flag.NewFlagSet("tailloop", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		analyze     bool
		write       bool
		suffix      string
		format      string
		dump        string
		configPath  string
		jobs        int
		maxFileSize int64
		noColor     bool
		showVersion bool
	)

	fs.BoolVar(&analyze, "a", false, "analysis report only; no rewriting")
	fs.BoolVar(&analyze, "analyze", false, "analysis report only; no rewriting")
	fs.BoolVar(&write, "w", false, "write rewritten files instead of printing a dry run")
	fs.BoolVar(&write, "write", false, "write rewritten files instead of printing a dry run")
	fs.StringVar(&suffix, "s", "", `output suffix for -write ("" rewrites in place)`)
	fs.StringVar(&suffix, "suffix", "", `output suffix for -write ("" rewrites in place)`)
	fs.StringVar(&format, "f", "", "report format: text or yaml")
	fs.StringVar(&format, "format", "", "report format: text or yaml")
	fs.StringVar(&dump, "d", "", "debug dump for a single file: tokens or tree")
	fs.StringVar(&dump, "dump", "", "debug dump for a single file: tokens or tree")
	fs.StringVar(&configPath, "c", "", "config file path (default: tailloop.yaml found upward)")
	fs.StringVar(&configPath, "config", "", "config file path (default: tailloop.yaml found upward)")
	fs.IntVar(&jobs, "j", 0, "parallel workers for directories (0 = all CPUs)")
	fs.IntVar(&jobs, "jobs", 0, "parallel workers for directories (0 = all CPUs)")
	fs.Int64Var(&maxFileSize, "max-file-size", 0, "skip files larger than this many bytes")
	fs.BoolVar(&noColor, "no-color", false, "disable colored output")
	fs.BoolVar(&showVersion, "V", false, "show version and exit")
	fs.BoolVar(&showVersion, "version", false, "show version and exit")

	if err := fs.Parse(reorderArgs(args)); err != nil {
		return err
	}

	if showVersion {
		_, _ = fmt.Fprintf(stdout, "tailloop %s\n", version)
		return nil
	}

	if analyze && write {
		return fmt.Errorf("cannot combine -analyze and -write")
	}

	target := "."
	if fs.NArg() > 0 {
		target = fs.Arg(0)
	}

	// Flags beat environment beats config file beats defaults.
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	cfg, err := loadConfig(configPath, target)
	if err != nil {
		return err
	}
	if err := cfg.FromEnv(); err != nil {
		return err
	}
	if set["s"] || set["suffix"] {
		cfg.Suffix = suffix
	}
	if set["f"] || set["format"] {
		switch format {
		case "text", "yaml":
			cfg.Report = format
		default:
			return fmt.Errorf("unknown report format %q (want text or yaml)", format)
		}
	}
	if set["j"] || set["jobs"] {
		if jobs < 0 {
			return fmt.Errorf("negative worker count %d", jobs)
		}
		cfg.Jobs = jobs
	}
	if set["max-file-size"] {
		if maxFileSize < 0 {
			return fmt.Errorf("negative file size limit %d", maxFileSize)
		}
		cfg.MaxFileSize = maxFileSize
	}
	if noColor {
		cfg.Color = "never"
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("input path: %w", err)
	}

	ctx := context.Background()

	if dump != "" {
		if info.IsDir() {
			return fmt.Errorf("-dump needs a single file, not a directory")
		}
		return runDump(ctx, dump, target, stdout)
	}

	opts := runOptions{
		analyze: analyze,
		write:   write,
		cfg:     cfg,
		color:   report.Colorize(stdout, cfg.Color),
	}

	if info.IsDir() {
		return runDir(ctx, target, opts, stdout, stderr)
	}
	return runFile(ctx, target, opts, stdout)
}

type runOptions struct {
	analyze bool
	write   bool
	cfg     *config.Config
	color   bool
}

// section is one dry-run display block for a rewritten function.
type section struct {
	name string
	line int
	orig string
	next string
}

// fileOutcome is everything processing one file produced: the report entry,
// the byte edits for write mode, and the dry-run sections.
type fileOutcome struct {
	path     string // filesystem path for writes
	source   []byte
	report   report.File
	edits    []render.Edit
	sections []section
}

func runDump(ctx context.Context, mode, path string, stdout io.Writer) error {
	switch mode {
	case "tokens", "tree":
	default:
		return fmt.Errorf("unknown dump mode %q (want tokens or tree)", mode)
	}

	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	p := parse.NewParser()
	if mode == "tokens" {
		return p.DumpTokens(ctx, source, stdout)
	}
	return p.DumpTree(ctx, source, stdout)
}

func runFile(ctx context.Context, path string, opts runOptions, stdout io.Writer) error {
	source, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	out, err := processFile(ctx, parse.NewParser(), path, source, opts)
	if err != nil {
		return err
	}
	out.path = path

	return emit([]*fileOutcome{out}, opts, stdout)
}

func runDir(ctx context.Context, root string, opts runOptions, stdout, stderr io.Writer) error {
	entries, err := discover.Files(root)
	if err != nil {
		return fmt.Errorf("discovering files: %w", err)
	}

	var stderrMu sync.Mutex
	warn := func(format string, args ...any) {
		stderrMu.Lock()
		_, _ = fmt.Fprintf(stderr, "Warning: "+format+"\n", args...)
		stderrMu.Unlock()
	}

	var work []discover.FileEntry
	for _, e := range entries {
		if opts.cfg.MaxFileSize > 0 && e.Size > opts.cfg.MaxFileSize {
			warn("%s: skipped (>%d bytes)", e.Path, opts.cfg.MaxFileSize)
			continue
		}
		work = append(work, e)
	}
	if len(work) == 0 {
		return fmt.Errorf("no Python files found under %s", root)
	}

	jobs := opts.cfg.Jobs
	if jobs <= 0 {
		jobs = runtime.GOMAXPROCS(0)
	}

	// One parser per goroutine; results land at their discovery index so
	// output order stays deterministic.
	outcomes := make([]*fileOutcome, len(work))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, e := range work {
		g.Go(func() error {
			path := filepath.Join(root, e.Path)
			source, err := os.ReadFile(path)
			if err != nil {
				warn("%s: %v", e.Path, err)
				return nil
			}
			out, err := processFile(ctx, parse.NewParser(), e.Path, source, opts)
			if err != nil {
				warn("%v", err)
				return nil
			}
			out.path = path
			outcomes[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	return emit(outcomes, opts, stdout)
}

// processFile parses one file, analyzes every function, and rewrites the
// eligible ones. When a rewritten function contains nested defs that are
// themselves rewritable, the outermost rewrite wins and the inner ones are
// reported as skipped.
func processFile(ctx context.Context, p *parse.Parser, path string, source []byte, opts runOptions) (*fileOutcome, error) {
	f, err := p.Parse(ctx, path, source)
	if err != nil {
		return nil, err
	}
	if f.Errors {
		return nil, fmt.Errorf("%s: syntax errors", path)
	}

	skip := opts.cfg.SkipSet()
	out := &fileOutcome{source: source, report: report.File{Path: path}}

	var rewritten [][2]uint32

	for _, fn := range f.Funcs {
		v := tailcall.Analyze(fn)
		res := report.Result{Verdict: v}

		_, skipped := skip[fn.Name]
		switch {
		case opts.analyze || v.Kind != tailcall.TailRecursive:
		case within(rewritten, fn.StartByte):
			res.Note = "inside a rewritten function"
		case skipped:
			res.Note = "skipped by config"
		default:
			newFn, err := rewrite.Transform(fn, v)
			var ref *rewrite.Refusal
			if errors.As(err, &ref) {
				res.Note = string(ref.Code)
				break
			}
			if err != nil {
				return nil, fmt.Errorf("%s: rewriting %s: %w", path, fn.Name, err)
			}

			text := render.Function(source, newFn)
			out.edits = append(out.edits, render.Edit{Start: fn.StartByte, End: fn.EndByte, Text: text})
			out.sections = append(out.sections, section{
				name: fn.Name,
				line: fn.Line,
				orig: string(source[fn.StartByte:fn.EndByte]),
				next: text,
			})
			rewritten = append(rewritten, [2]uint32{fn.StartByte, fn.EndByte})
			res.Rewritten = true
		}

		out.report.Results = append(out.report.Results, res)
	}

	return out, nil
}

func within(spans [][2]uint32, off uint32) bool {
	for _, s := range spans {
		if off > s[0] && off < s[1] {
			return true
		}
	}
	return false
}

// emit writes rewritten files in write mode, prints dry-run sections
// otherwise, and closes with the report.
func emit(outcomes []*fileOutcome, opts runOptions, stdout io.Writer) error {
	if opts.write {
		for _, out := range outcomes {
			if out == nil || len(out.edits) == 0 {
				continue
			}
			dest := outPath(out.path, opts.cfg.Suffix)
			if err := os.WriteFile(dest, render.Splice(out.source, out.edits), 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", dest, err)
			}
		}
	}

	var files []report.File
	for _, out := range outcomes {
		if out != nil {
			files = append(files, out.report)
		}
	}
	if len(files) == 0 {
		return fmt.Errorf("no files could be processed")
	}

	if opts.cfg.Report == "yaml" {
		return report.YAML(stdout, files)
	}

	if !opts.write && !opts.analyze {
		for _, out := range outcomes {
			if out == nil {
				continue
			}
			for _, s := range out.sections {
				_, _ = fmt.Fprintf(stdout, "=== %s (line %d) ===\n", s.name, s.line)
				_, _ = fmt.Fprintln(stdout, "--- original ---")
				_, _ = fmt.Fprintln(stdout, s.orig)
				_, _ = fmt.Fprintln(stdout, "--- transformed ---")
				_, _ = fmt.Fprintln(stdout, s.next)
				_, _ = fmt.Fprintln(stdout)
			}
		}
	}

	report.Text(stdout, files, opts.color)
	if !opts.analyze {
		report.Summary(stdout, files)
	}
	return nil
}

// outPath places the rewritten file next to the input: foo.py -> foo<suffix>.py.
// An empty suffix rewrites in place.
func outPath(path, suffix string) string {
	if suffix == "" {
		return path
	}
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + suffix + ext
}

func loadConfig(path, target string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	dir := target
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		dir = filepath.Dir(target)
	}
	found, err := config.FindConfig(dir)
	if err != nil {
		return nil, err
	}
	if found == "" {
		return config.Default(), nil
	}
	return config.Load(found)
}

// flagsWithValue lists flags that take a value argument.
var flagsWithValue = map[string]bool{
	"-s": true, "--s": true,
	"-suffix": true, "--suffix": true,
	"-f": true, "--f": true,
	"-format": true, "--format": true,
	"-d": true, "--d": true,
	"-dump": true, "--dump": true,
	"-c": true, "--c": true,
	"-config": true, "--config": true,
	"-j": true, "--j": true,
	"-jobs": true, "--jobs": true,
	"-max-file-size": true, "--max-file-size": true,
}

// reorderArgs moves positional arguments after all flags so Go's flag package
// can parse them correctly (it stops at the first non-flag arg). A "--" and
// everything after it move verbatim; the flag package handles the terminator.
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if args[i] == "--" {
			positional = append(positional, args[i:]...)
			break
		}
		if len(args[i]) > 0 && args[i][0] == '-' {
			flags = append(flags, args[i])
			if flagsWithValue[args[i]] && i+1 < len(args) {
				i++
				flags = append(flags, args[i])
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}

package main

import (
	"flag"
	"fmt"
	"io"
	"os"
)

// starterConfig is the commented tailloop.yaml scaffold. Its values match the
// built-in defaults, so a freshly written file changes nothing until edited.
const starterConfig = `# tailloop configuration. Command-line flags and TAILLOOP_* environment
# variables override these settings.

# Appended to the base name of rewritten files in write mode
# (foo.py -> foo_transformed.py). An empty suffix rewrites in place.
suffix: "_transformed"

# Report format: text or yaml.
report: text

# Parallel workers for directory mode. 0 uses all CPUs.
jobs: 0

# Files larger than this many bytes are skipped with a warning.
max_file_size: 1048576

# Colored report output: auto, always, or never.
color: auto

# Function names that are analyzed but never rewritten.
#skip:
#  - main
`

// runInit implements the `tailloop init` subcommand, which writes a commented
// starter tailloop.yaml.
func runInit(args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("tailloop init", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		dryRun bool
		force  bool
	)
	fs.BoolVar(&dryRun, "dry-run", false, "print the starter config without writing it")
	fs.BoolVar(&force, "force", false, "overwrite an existing config file")

	fs.Usage = func() {
		fmt.Fprintf(stderr, `Usage: tailloop init [flags] [path]

Write a commented starter tailloop.yaml. Refuses to overwrite an existing
file unless -force is given.

path defaults to ./tailloop.yaml.

Flags:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if dryRun {
		_, _ = fmt.Fprint(stdout, starterConfig)
		return nil
	}

	path := "tailloop.yaml"
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use -force to overwrite)", path)
	}

	if err := os.WriteFile(path, []byte(starterConfig), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote %s\n", path)
	return nil
}

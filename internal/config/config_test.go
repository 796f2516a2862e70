package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaults(t *testing.T) {
	t.Parallel()

	cfg := Default()
	if cfg.Suffix != "_transformed" {
		t.Errorf("suffix = %q, want _transformed", cfg.Suffix)
	}
	if cfg.Report != "text" {
		t.Errorf("report = %q, want text", cfg.Report)
	}
	if cfg.Jobs != 0 {
		t.Errorf("jobs = %d, want 0", cfg.Jobs)
	}
	if cfg.MaxFileSize != 1<<20 {
		t.Errorf("max_file_size = %d, want %d", cfg.MaxFileSize, 1<<20)
	}
	if cfg.Color != "auto" {
		t.Errorf("color = %q, want auto", cfg.Color)
	}
}

func TestParseOverridesDefaults(t *testing.T) {
	t.Parallel()

	src := `
suffix: "_loop"
report: yaml
jobs: 4
max_file_size: 2048
color: never
skip:
  - main
  - visit
`
	cfg, err := Parse([]byte(src), "tailloop.yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Suffix != "_loop" {
		t.Errorf("suffix = %q", cfg.Suffix)
	}
	if cfg.Report != "yaml" {
		t.Errorf("report = %q", cfg.Report)
	}
	if cfg.Jobs != 4 {
		t.Errorf("jobs = %d", cfg.Jobs)
	}
	if cfg.MaxFileSize != 2048 {
		t.Errorf("max_file_size = %d", cfg.MaxFileSize)
	}
	if cfg.Color != "never" {
		t.Errorf("color = %q", cfg.Color)
	}
	set := cfg.SkipSet()
	if _, ok := set["visit"]; !ok {
		t.Errorf("skip set missing visit: %v", cfg.Skip)
	}
}

func TestParseEmptyKeepsDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil, "tailloop.yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Suffix != "_transformed" || cfg.Report != "text" {
		t.Errorf("defaults not kept: %+v", cfg)
	}
}

func TestParseExplicitEmptySuffix(t *testing.T) {
	t.Parallel()

	cfg, err := Parse([]byte(`suffix: ""`), "tailloop.yaml")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Suffix != "" {
		t.Errorf("suffix = %q, want empty (in-place)", cfg.Suffix)
	}
}

func TestParseRejectsUnknownKey(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("sufix: _x\n"), "bad.yaml")
	if err == nil {
		t.Fatal("expected error for unknown key")
	}
	if !strings.Contains(err.Error(), "bad.yaml") {
		t.Errorf("error does not name the file: %v", err)
	}
}

func TestParseRejectsBadValues(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		src  string
	}{
		{"report", "report: json\n"},
		{"color", "color: sometimes\n"},
		{"jobs", "jobs: -1\n"},
		{"max_file_size", "max_file_size: -5\n"},
		{"skip", "skip:\n  - \"\"\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tc.src), "bad.yaml")
			if err == nil {
				t.Fatalf("expected error for %s", tc.name)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFindConfigWalksUp(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(root, "tailloop.yaml")
	if err := os.WriteFile(want, []byte("report: text\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FindConfig(nested)
	if err != nil {
		t.Fatalf("FindConfig: %v", err)
	}
	if got != want {
		t.Errorf("FindConfig = %q, want %q", got, want)
	}
}

func TestFindConfigPrefersNearest(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	nested := filepath.Join(root, "sub")
	if err := os.MkdirAll(nested, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "tailloop.yaml"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(nested, "tailloop.yaml")
	if err := os.WriteFile(want, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := FindConfig(nested)
	if err != nil {
		t.Fatalf("FindConfig: %v", err)
	}
	if got != want {
		t.Errorf("FindConfig = %q, want %q", got, want)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("TAILLOOP_SUFFIX", "_loop")
	t.Setenv("TAILLOOP_REPORT", "yaml")
	t.Setenv("TAILLOOP_JOBS", "3")
	t.Setenv("TAILLOOP_COLOR", "never")

	cfg := Default()
	if err := cfg.FromEnv(); err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.Suffix != "_loop" {
		t.Errorf("suffix = %q", cfg.Suffix)
	}
	if cfg.Report != "yaml" {
		t.Errorf("report = %q", cfg.Report)
	}
	if cfg.Jobs != 3 {
		t.Errorf("jobs = %d", cfg.Jobs)
	}
	if cfg.Color != "never" {
		t.Errorf("color = %q", cfg.Color)
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aqibfaruqui/peri/internal/diagnostic"
	"github.com/aqibfaruqui/peri/internal/test"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("failed to create dirs: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func TestLoadFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "peri.cue")
	writeFile(t, configPath, `
strict: true
entries: ["main", "reset"]
workers: 2
boards: ["boards/nucleo.star"]
header: "out/periph.h"
warnings: disable: ["UnreachableCode"]
`)

	cfg, err := LoadFile(configPath)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Strict == nil || !*cfg.Strict {
		t.Errorf("Strict: got %v, want true", cfg.Strict)
	}
	if cfg.Workers == nil || *cfg.Workers != 2 {
		t.Errorf("Workers: got %v, want 2", cfg.Workers)
	}
	test.AssertEqual(t, len(cfg.Entries), 2)
	test.AssertEqual(t, cfg.Entries[1], "reset")

	s := cfg.ToSettings()
	test.AssertEqual(t, s.Check.Strict, true)
	test.AssertEqual(t, s.Check.Workers, 2)
	test.AssertEqual(t, s.Boards[0], filepath.Join(tmpDir, "boards", "nucleo.star"))
	test.AssertEqual(t, s.Header, filepath.Join(tmpDir, "out", "periph.h"))
	test.AssertEqual(t, s.Check.Warnings.IsDisabled(diagnostic.CodeUnreachableCode), true)
	test.AssertEqual(t, s.Check.Warnings.IsDisabled(diagnostic.CodeOpaqueTypestateCall), false)
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	subDir := filepath.Join(tmpDir, "project", "src", "drivers")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatalf("failed to create dirs: %v", err)
	}

	configPath := filepath.Join(tmpDir, "project", ".peri.cue")
	writeFile(t, configPath, `strict: true`)

	cfg, path, err := Load(subDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	test.AssertEqual(t, path, configPath)
	test.AssertEqual(t, *cfg.Strict, true)
}

func TestLoadPrefersPeriCue(t *testing.T) {
	tmpDir := t.TempDir()
	writeFile(t, filepath.Join(tmpDir, "peri.cue"), `workers: 1`)
	writeFile(t, filepath.Join(tmpDir, ".peri.cue"), `workers: 2`)

	cfg, path, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	test.AssertEqual(t, filepath.Base(path), "peri.cue")
	test.AssertEqual(t, *cfg.Workers, 1)
}

func TestLoadNoConfig(t *testing.T) {
	tmpDir := t.TempDir()

	cfg, path, err := Load(tmpDir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	// Might find a config in a parent directory of the temp dir
	if cfg != nil && path == "" {
		t.Error("config found but path is empty")
	}
}

func TestSchemaRejects(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"unknown field", `verbose: true`},
		{"wrong type", `strict: "yes"`},
		{"negative workers", `workers: -1`},
		{"unknown warning", `warnings: disable: ["Everything"]`},
		{"unknown warnings field", `warnings: level: 3`},
		{"not concrete", `workers: int`},
		{"syntax", `strict: `},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("peri.cue", []byte(tt.content))
			if err == nil {
				t.Fatalf("expected error for %q", tt.content)
			}
			test.AssertContains(t, err.Error(), "config peri.cue")
		})
	}
}

func TestCueExpressions(t *testing.T) {
	cfg, err := Parse("peri.cue", []byte(`
_boards: ["a", "b"]
boards: [for b in _boards {"boards/\(b).star"}]
workers: 2 * 2
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	test.AssertEqual(t, *cfg.Workers, 4)
	test.AssertEqual(t, cfg.Boards[1], "boards/b.star")
}

func TestWarningsDisabled(t *testing.T) {
	cfg, err := Parse("peri.cue", []byte(`warnings: enabled: false`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	s := cfg.ToSettings()
	test.AssertEqual(t, s.Check.Warnings.IsDisabled(diagnostic.CodeOpaqueTypestateCall), true)
}

func TestNilConfigDefaults(t *testing.T) {
	var cfg *Config
	s := cfg.ToSettings()
	test.AssertEqual(t, s.Check.Strict, false)
	test.AssertEqual(t, s.Check.Entries[0], "main")
	test.AssertEqual(t, len(s.Boards), 0)
	test.AssertEqual(t, s.Header, "")
}

func TestMerge(t *testing.T) {
	strict := true
	workers := 3
	cfg := &Config{
		Strict:  &strict,
		Entries: []string{"main"},
		Boards:  []string{"/abs/board.star"},
	}

	// No CLI overrides
	s := cfg.Merge(MergeOptions{})
	test.AssertEqual(t, s.Check.Strict, true)
	test.AssertEqual(t, s.Check.Entries[0], "main")

	// CLI overrides
	noStrict := false
	s = cfg.Merge(MergeOptions{
		Strict:     &noStrict,
		Workers:    &workers,
		Entries:    []string{"reset"},
		Boards:     []string{"extra.star"},
		Header:     "periph.h",
		NoWarnings: true,
	})
	test.AssertEqual(t, s.Check.Strict, false)
	test.AssertEqual(t, s.Check.Workers, 3)
	test.AssertEqual(t, s.Check.Entries[0], "reset")
	test.AssertEqual(t, len(s.Boards), 2)
	test.AssertEqual(t, s.Boards[0], "/abs/board.star")
	test.AssertEqual(t, s.Boards[1], "extra.star")
	test.AssertEqual(t, s.Header, "periph.h")
	test.AssertEqual(t, s.Check.Warnings.IsDisabled(diagnostic.CodeUnreachableCode), true)
}

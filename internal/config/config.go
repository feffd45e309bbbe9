// Package config handles loading checker configuration from files.
//
// Configuration is a CUE file named peri.cue or .peri.cue, searched for in
// the input file's directory and its parents. Files are validated against
// an embedded closed schema, so unknown fields and wrong types are errors.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"

	"github.com/aqibfaruqui/peri/internal/checker"
	"github.com/aqibfaruqui/peri/internal/diagnostic"
)

//go:embed schema.cue
var schemaSrc string

// Config represents the configuration file structure.
// All fields are optional and will use default values if not specified.
type Config struct {
	// Strict rejects calls that need an untracked peripheral
	Strict *bool `json:"strict,omitempty"`

	// Entries lists unsigned functions checked from the initial states
	Entries []string `json:"entries,omitempty"`

	// Workers bounds concurrent verification (0 means GOMAXPROCS)
	Workers *int `json:"workers,omitempty"`

	// Boards lists Starlark board scripts, relative to the config file
	Boards []string `json:"boards,omitempty"`

	// Header is the C header output path, relative to the config file
	Header *string `json:"header,omitempty"`

	Warnings *Warnings `json:"warnings,omitempty"`

	// dir is the directory holding the config file.
	dir string
}

// Warnings selects which warnings are reported.
type Warnings struct {
	Enabled *bool    `json:"enabled,omitempty"`
	Disable []string `json:"disable,omitempty"`
}

// ConfigFileNames are the names searched for config files, in order of preference.
var ConfigFileNames = []string{
	"peri.cue",
	".peri.cue",
}

// Load searches for a config file starting from the given directory
// and walking up to parent directories. Returns nil if no config file is found.
func Load(startDir string) (*Config, string, error) {
	dir := startDir
	for {
		for _, name := range ConfigFileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				cfg, err := LoadFile(path)
				return cfg, path, err
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, "", nil
		}
		dir = parent
	}
}

// LoadFile loads configuration from a specific file path.
func LoadFile(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(path, content)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cfg.dir = abs
	return cfg, nil
}

// Parse compiles CUE source and validates it against the schema. Relative
// paths in the result are resolved against the working directory.
func Parse(filename string, content []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString("close({"+schemaSrc+"})", cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("config schema: %w", err)
	}

	value := ctx.CompileBytes(content, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("config %s: %w", filename, err)
	}

	unified := schema.Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("config %s: %w", filename, err)
	}

	var cfg Config
	if err := unified.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", filename, err)
	}
	return &cfg, nil
}

// ----------------------------------------------------------------------------
// Options
// ----------------------------------------------------------------------------

// Settings is everything a run needs beyond the input file.
type Settings struct {
	Check  checker.Options
	Boards []string // Board script paths
	Header string   // Header output path, "" for none
}

// ToSettings converts a Config to Settings, using defaults for unset fields.
// A nil Config yields the defaults.
func (c *Config) ToSettings() Settings {
	s := Settings{Check: checker.DefaultOptions()}
	if c == nil {
		return s
	}

	if c.Strict != nil {
		s.Check.Strict = *c.Strict
	}
	if c.Entries != nil {
		s.Check.Entries = slices.Clone(c.Entries)
	}
	if c.Workers != nil {
		s.Check.Workers = *c.Workers
	}
	for _, b := range c.Boards {
		s.Boards = append(s.Boards, c.resolve(b))
	}
	if c.Header != nil {
		s.Header = c.resolve(*c.Header)
	}
	if c.Warnings != nil {
		s.Check.Warnings = c.Warnings.filter()
	}
	return s
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) || c.dir == "" {
		return path
	}
	return filepath.Join(c.dir, path)
}

func (w *Warnings) filter() *diagnostic.Filter {
	f := diagnostic.NewFilter()
	if w.Enabled != nil && !*w.Enabled {
		f.DisableAll()
	}
	for _, name := range w.Disable {
		// The schema only admits known names.
		if code, ok := diagnostic.CodeByName(name); ok {
			f.Disable(code)
		}
	}
	return f
}

// Merge combines config file options with CLI options.
// CLI options take precedence over config file options.
type MergeOptions struct {
	// CLI flags (nil means not specified on CLI)
	Strict     *bool
	Workers    *int
	Entries    []string
	Boards     []string
	Header     string
	NoWarnings bool
}

// Merge merges CLI options with config file options.
// CLI options override config file options when specified.
func (c *Config) Merge(cli MergeOptions) Settings {
	s := c.ToSettings()

	if cli.Strict != nil {
		s.Check.Strict = *cli.Strict
	}
	if cli.Workers != nil {
		s.Check.Workers = *cli.Workers
	}
	if len(cli.Entries) > 0 {
		s.Check.Entries = cli.Entries
	}
	if len(cli.Boards) > 0 {
		// Board scripts from the command line add to the configured ones
		s.Boards = append(s.Boards, cli.Boards...)
	}
	if cli.Header != "" {
		s.Header = cli.Header
	}
	if cli.NoWarnings {
		s.Check.Warnings = diagnostic.NewFilter()
		s.Check.Warnings.DisableAll()
	}

	return s
}

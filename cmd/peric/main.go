// Command peric checks peripheral typestate in peri source code.
//
// Usage:
//
//	peric [options] <input.peri>
//	cat input.peri | peric [options]
//
// Options:
//
//	-o <file>          Write a C header for the checked program to file
//	-config <file>     Use specific config file
//	-no-config         Ignore config files
//	-board <file>      Load peripherals from a Starlark board script (repeatable)
//	-strict            Reject calls needing peripherals the caller does not track
//	-entry <names>     Comma-separated entry functions (default: main)
//	-workers <n>       Functions verified concurrently (default: GOMAXPROCS)
//	-dump-states       Print every function with the state after each statement
//	-no-warnings       Suppress warnings
//	-log-file <file>   Append JSON logs to file
//	-v                 Log pipeline phases to stderr
//	-version           Print version and exit
//	-help              Print help and exit
//
// Config file:
//
//	peric looks for peri.cue or .peri.cue in the input file's directory and
//	its parents. Config file options are overridden by CLI flags.
//
// Example peri.cue:
//
//	strict:  true
//	entries: ["main", "irq_handler"]
//	boards:  ["boards/stm32f4.star"]
//	header:  "build/peri.h"
//	warnings: disable: ["UnreachableCode"]
package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/reusee/dscope"

	"github.com/aqibfaruqui/peri/internal/board"
	"github.com/aqibfaruqui/peri/internal/cheader"
	"github.com/aqibfaruqui/peri/internal/checker"
	"github.com/aqibfaruqui/peri/internal/config"
	"github.com/aqibfaruqui/peri/internal/logs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// listFlag collects the values of a repeatable flag.
type listFlag []string

func (l *listFlag) String() string {
	return strings.Join(*l, ",")
}

func (l *listFlag) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func run() error {
	// Flags
	var (
		outputFile  string
		configFile  string
		noConfig    bool
		boards      listFlag
		strict      bool
		entries     string
		workers     int
		dumpStates  bool
		noWarnings  bool
		logFile     string
		verbose     bool
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&outputFile, "o", "", "Write a C header to `file`")
	flag.StringVar(&configFile, "config", "", "Use specific config `file`")
	flag.BoolVar(&noConfig, "no-config", false, "Ignore config files")
	flag.Var(&boards, "board", "Load peripherals from a Starlark board `script` (repeatable)")
	flag.BoolVar(&strict, "strict", false, "Reject calls needing untracked peripherals")
	flag.StringVar(&entries, "entry", "", "Comma-separated entry `functions` (default: main)")
	flag.IntVar(&workers, "workers", 0, "Functions verified concurrently (0: GOMAXPROCS)")
	flag.BoolVar(&dumpStates, "dump-states", false, "Print the state after each statement")
	flag.BoolVar(&noWarnings, "no-warnings", false, "Suppress warnings")
	flag.StringVar(&logFile, "log-file", "", "Append JSON logs to `file`")
	flag.BoolVar(&verbose, "v", false, "Log pipeline phases")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.BoolVar(&showHelp, "help", false, "Print help and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "peric - peripheral typestate checker v%s\n\n", version)
		fmt.Fprintf(os.Stderr, "Usage: peric [options] <input.peri>\n")
		fmt.Fprintf(os.Stderr, "       cat input.peri | peric [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nConfig file:\n")
		fmt.Fprintf(os.Stderr, "  Searches for peri.cue or .peri.cue in the input directory and its parents.\n")
		fmt.Fprintf(os.Stderr, "  CLI flags override config file settings.\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  peric firmware.peri\n")
		fmt.Fprintf(os.Stderr, "  peric -board stm32f4.star -o peri.h firmware.peri\n")
		fmt.Fprintf(os.Stderr, "  peric -strict -entry main,irq_handler firmware.peri\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		return nil
	}

	if showVersion {
		fmt.Printf("peric v%s (%s)\n", version, commit)
		return nil
	}

	if verbose {
		logs.SetLevel(slog.LevelDebug)
	}
	scope := dscope.New(new(logs.Module)).Fork(
		func() logs.File {
			return logs.File(logFile)
		},
	)
	logger := dscope.Get[logs.Logger](scope)

	// Read input
	var source []byte
	var err error
	name := "<stdin>"

	if flag.NArg() > 0 {
		name = flag.Arg(0)
		source, err = os.ReadFile(name)
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
	} else {
		// Check if stdin is a pipe
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			flag.Usage()
			return fmt.Errorf("no input file specified")
		}
		source, err = io.ReadAll(os.Stdin)
		if err != nil {
			return fmt.Errorf("reading stdin: %w", err)
		}
	}

	// Load config file
	var cfg *config.Config
	if !noConfig {
		var configPath string
		if configFile != "" {
			cfg, err = config.LoadFile(configFile)
			if err != nil {
				return fmt.Errorf("loading config file %s: %w", configFile, err)
			}
			configPath = configFile
		} else {
			startDir, _ := os.Getwd()
			if flag.NArg() > 0 {
				startDir = filepath.Dir(flag.Arg(0))
			}
			cfg, configPath, err = config.Load(startDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
		}
		if configPath != "" {
			logger.Debug("using config", "path", configPath)
		}
	}

	// CLI overrides, only set if explicitly specified
	cliOpts := config.MergeOptions{
		Boards:     boards,
		Header:     outputFile,
		NoWarnings: noWarnings,
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "strict":
			cliOpts.Strict = &strict
		case "workers":
			cliOpts.Workers = &workers
		}
	})
	if entries != "" {
		for _, e := range strings.Split(entries, ",") {
			if e = strings.TrimSpace(e); e != "" {
				cliOpts.Entries = append(cliOpts.Entries, e)
			}
		}
	}
	settings := cfg.Merge(cliOpts)

	// Board scripts
	for _, path := range settings.Boards {
		decls, err := board.Load(path)
		if err != nil {
			return fmt.Errorf("loading board: %w", err)
		}
		logger.Debug("board loaded", "path", path, "peripherals", len(decls))
		settings.Check.Peripherals = append(settings.Check.Peripherals, decls...)
	}

	// Check
	settings.Check.Logger = logger
	result := checker.CheckSource(name, string(source), settings.Check)

	if report := result.Report(); report != "" {
		fmt.Fprint(os.Stderr, report)
	}
	if dumpStates {
		fmt.Print(result.DumpStates())
	}
	if !result.Valid {
		return fmt.Errorf("%s", result.Summary())
	}
	logger.Info("checked", "file", name, "summary", result.Summary())

	// Header
	if settings.Header == "" {
		return nil
	}
	header, err := cheader.Generate(result, cheader.Options{})
	if err != nil {
		return err
	}
	if err := os.WriteFile(settings.Header, []byte(header), 0644); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %s\n", settings.Header)

	return nil
}

// Command quill is the CLI entry point: given a script path it compiles
// and runs the file; given no arguments it starts an interactive REPL.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"

	"github.com/quill-lang/quill/compiler"
	"github.com/quill-lang/quill/vm"
)

const (
	exitOK          = 0
	exitUsageError  = 64
	exitCompileFail = 65
	exitRuntimeFail = 70
	exitIOError     = 74
)

// rcConfig is the shape of an optional ~/.quillrc TOML file: a handful
// of startup knobs, loaded the same way Maggie reads ~/.maggierc.
type rcConfig struct {
	StressGC bool `toml:"stress_gc"`
	NoColor  bool `toml:"no_color"`
}

func main() {
	noRC := flag.Bool("no-rc", false, "skip loading ~/.quillrc")
	stressGC := flag.Bool("stress-gc", false, "collect garbage before every allocation")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: quill [options] [script]\n\n")
		fmt.Fprintf(os.Stderr, "With no script, starts an interactive REPL.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	args := flag.Args()
	if len(args) > 1 {
		flag.Usage()
		os.Exit(exitUsageError)
	}

	inst := vm.NewVM()
	cfg := loadRC(*noRC)
	inst.StressGC = *stressGC || cfg.StressGC
	if cfg.NoColor {
		color.NoColor = true
	}

	switch len(args) {
	case 0:
		runREPL(inst)
	case 1:
		os.Exit(runFile(inst, args[0]))
	}
}

// loadRC reads ~/.quillrc if present, returning a zero config when the
// home directory or the file cannot be found (silently) or when the file
// fails to parse (after printing a warning to stderr) — an optional rc
// file, like Maggie's, is a convenience rather than something worth
// failing over.
func loadRC(skip bool) rcConfig {
	var cfg rcConfig
	if skip {
		return cfg
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return cfg
	}
	path := filepath.Join(home, ".quillrc")
	if _, err := os.Stat(path); err != nil {
		return cfg
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "warning: error loading %s: %v\n", path, err)
		return rcConfig{}
	}
	return cfg
}

// runFile reads and interprets one script, returning the process exit
// code the caller should use.
func runFile(inst *vm.VM, path string) int {
	source, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		return exitIOError
	}

	if err := inst.Interpret(source); err != nil {
		return reportError(err)
	}
	return exitOK
}

// reportError prints err in the style appropriate to its kind and
// returns the exit code §6 assigns that kind of failure.
func reportError(err error) int {
	switch e := err.(type) {
	case *compiler.CompileError:
		for _, d := range e.Errors {
			fmt.Fprintln(os.Stderr, color.RedString(d.Error()))
		}
		return exitCompileFail
	case *vm.RuntimeError:
		fmt.Fprintln(os.Stderr, color.RedString("[line %d] %s", e.Line, e.Message))
		for _, frame := range e.StackTrace {
			fmt.Fprintln(os.Stderr, color.HiRedString("  "+frame))
		}
		return exitRuntimeFail
	default:
		fmt.Fprintln(os.Stderr, color.RedString(err.Error()))
		return exitRuntimeFail
	}
}

// runREPL reads one line at a time, compiling and running each as its
// own script against the same VM so that top-level globals and classes
// persist across lines. An empty line is a no-op; "exit" or end of
// input terminates with status 0. A compile or runtime error on one
// line is reported but never ends the session.
func runREPL(inst *vm.VM) {
	fmt.Println("quill REPL — empty line does nothing, 'exit' or Ctrl-D quits")
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			os.Exit(exitOK)
		}
		line := scanner.Text()

		switch line {
		case "":
			continue
		case "exit":
			os.Exit(exitOK)
		}

		if err := inst.Interpret([]byte(line)); err != nil {
			reportError(err)
		}
	}
}

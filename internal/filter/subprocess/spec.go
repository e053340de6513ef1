// Package subprocess implements filters that hand a step's input to an
// external program.
//
// Three kinds share one implementation:
//
//   - Plain: run the program once on the input file. Output is stdout or the
//     canonical output file the program wrote.
//   - Compile: build the input, then run the result. Compile failures are
//     always fatal; the run's exit code is checked only when
//     check-return-code is enabled.
//   - CompileInput: build once, then run the program with each completed
//     dependency (or each section of a single multi-section dependency) on
//     stdin.
//
// Recognised settings: args, scriptargs, env, timeout, populate,
// check-return-code, add-new-files, additional-doc-filters and
// walk-working-dir.
package subprocess

import (
	"time"

	"git.home.luguber.info/inful/docpipe/internal/filter"
)

// Kind selects the invocation pattern.
type Kind int

const (
	Plain Kind = iota
	Compile
	CompileInput
)

// Capture selects where a Plain filter's output comes from.
type Capture int

const (
	// CaptureStdout uses the program's standard output.
	CaptureStdout Capture = iota
	// CaptureFile reads the canonical output file from the working directory,
	// falling back to stdout when the program did not write it.
	CaptureFile
)

// Spec declares a subprocess filter.
type Spec struct {
	Aliases []string
	Help    string
	Version string

	// Executable is tried first; WindowsExecutable replaces it on Windows.
	// Executables lists alternatives tried in order. Entries may carry
	// fixed arguments ("python -u").
	Executable        string
	WindowsExecutable string
	Executables       []string

	VersionCommand        string
	WindowsVersionCommand string

	InputExtensions []string
	OutputExtension string

	Kind              Kind
	Capture           Capture
	MergeStderr       bool
	SkipReturnCode    bool   // run-phase exit codes are ignored unless check-return-code is set
	CompiledExtension string // Compile kinds; defaults to ".o"

	Env      map[string]string
	Timeout  time.Duration
	Defaults filter.Settings
}

func (s Spec) candidates(goos string) []string {
	if goos == "windows" && s.WindowsExecutable != "" {
		return []string{s.WindowsExecutable}
	}
	if s.Executable != "" {
		return []string{s.Executable}
	}
	return s.Executables
}

func (s Spec) versionCommand(goos string) string {
	if goos == "windows" && s.WindowsVersionCommand != "" {
		return s.WindowsVersionCommand
	}
	return s.VersionCommand
}

func (s Spec) compiledExtension() string {
	if s.CompiledExtension == "" {
		return ".o"
	}
	return s.CompiledExtension
}

// Package filter defines the transform capability every step of a document's
// filter chain implements, along with the alias registry and typed settings.
package filter

import (
	"context"
	"log/slog"
	"path"
	"strings"
	"time"

	"git.home.luguber.info/inful/docpipe/internal/process"
	"git.home.luguber.info/inful/docpipe/internal/sectioned"
	"git.home.luguber.info/inful/docpipe/internal/workspace"
)

// Filter transforms the output of the previous step (or the source file).
type Filter interface {
	Info() Info
	Process(ctx context.Context, in *Input) (*Output, error)
}

// Info describes a filter.
type Info struct {
	// Aliases name the filter in doc keys. The first is the primary alias.
	Aliases []string
	Help    string
	// Version is part of every fingerprint the filter produces. Bump it when
	// output for identical input changes.
	Version string
	// InputExtensions restricts accepted input; empty accepts anything.
	InputExtensions []string
	// OutputExtension replaces the input extension; empty keeps it.
	OutputExtension string
	Defaults        Settings
}

// Alias returns the primary alias.
func (i Info) Alias() string {
	if len(i.Aliases) == 0 {
		return ""
	}
	return i.Aliases[0]
}

// Accepts reports whether ext is a valid input extension.
func (i Info) Accepts(ext string) bool {
	if len(i.InputExtensions) == 0 {
		return true
	}
	for _, e := range i.InputExtensions {
		if e == ".*" || strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}

// Activator is implemented by filters that depend on host programs.
type Activator interface {
	Active() bool
}

// VersionProber is implemented by filters that can report the version of the
// tool they wrap.
type VersionProber interface {
	ProbeVersion(ctx context.Context) (string, error)
}

// IsActive reports whether f can run on this host.
func IsActive(f Filter) bool {
	if a, ok := f.(Activator); ok {
		return a.Active()
	}
	return true
}

// Child is a completed dependency a step may read.
type Child struct {
	Key  string
	Name string // output file name, relative to the project root
	Data sectioned.Data
}

// Runtime carries run-wide services into a step.
type Runtime struct {
	Executor          process.Executor
	Workspaces        *workspace.Manager
	Globals           map[string]string
	IgnoreNonzeroExit bool
	Logger            *slog.Logger
}

// Input is one step's view of its document.
type Input struct {
	DocKey string
	// Name is the file name the step reads, e.g. "src/example.py".
	Name string
	// OutputName is the file name the step produces, e.g. "src/example.txt".
	OutputName string
	// LongName identifies this step's result, e.g. "src/example.py-py.txt".
	LongName string
	Data     sectioned.Data
	Settings Settings
	Children []Child
	Runtime  *Runtime
}

// Ext returns the extension of the input name.
func (in *Input) Ext() string { return path.Ext(in.Name) }

// Logger returns the run logger or the default one.
func (in *Input) Logger() *slog.Logger {
	if in.Runtime != nil && in.Runtime.Logger != nil {
		return in.Runtime.Logger
	}
	return slog.Default()
}

// Exit records how the last subprocess of a step ended.
type Exit struct {
	Command  string
	State    process.State
	Code     int
	Duration time.Duration
}

// Discovered is a document found while running a step.
type Discovered struct {
	Key  string
	Data sectioned.Data
}

// Output is a step's result.
type Output struct {
	Data       sectioned.Data
	Exit       *Exit
	Discovered []Discovered
}

// OutputName derives the file name a filter writes for input name.
func OutputName(name, outputExt string) string {
	if outputExt == "" {
		return name
	}
	return strings.TrimSuffix(name, path.Ext(name)) + outputExt
}

// ProcessFunc is the body of a simple in-process filter.
type ProcessFunc func(ctx context.Context, in *Input) (*Output, error)

type funcFilter struct {
	info Info
	fn   ProcessFunc
}

// Func builds a filter from info and a process function.
func Func(info Info, fn ProcessFunc) Filter {
	return &funcFilter{info: info, fn: fn}
}

func (f *funcFilter) Info() Info { return f.info }

func (f *funcFilter) Process(ctx context.Context, in *Input) (*Output, error) {
	return f.fn(ctx, in)
}

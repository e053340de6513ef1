package subprocess

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"runtime"
	"strings"

	"git.home.luguber.info/inful/docpipe/internal/filter"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
	"git.home.luguber.info/inful/docpipe/internal/process"
	"git.home.luguber.info/inful/docpipe/internal/sectioned"
	"git.home.luguber.info/inful/docpipe/internal/workspace"
)

// maxErrorOutput bounds the program output attached to a NonzeroExit error.
const maxErrorOutput = 2048

// Filter runs an external program as a filter step.
type Filter struct {
	spec     Spec
	goos     string
	lookPath func(string) (string, error)
	environ  func() []string
	prober   process.Executor
}

// Option configures a Filter.
type Option func(*Filter)

// WithLookPath replaces exec.LookPath for executable resolution.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(f *Filter) { f.lookPath = fn }
}

// WithGOOS overrides the operating system used to pick executables.
func WithGOOS(goos string) Option {
	return func(f *Filter) { f.goos = goos }
}

// WithEnviron replaces os.Environ as the base environment.
func WithEnviron(fn func() []string) Option {
	return func(f *Filter) { f.environ = fn }
}

// WithVersionExecutor sets the executor used by ProbeVersion.
func WithVersionExecutor(e process.Executor) Option {
	return func(f *Filter) { f.prober = e }
}

// New creates a filter from spec.
func New(spec Spec, opts ...Option) *Filter {
	f := &Filter{
		spec:     spec,
		goos:     runtime.GOOS,
		lookPath: exec.LookPath,
		environ:  os.Environ,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.prober == nil {
		f.prober = process.NewOSExecutor(nil)
	}
	return f
}

// Info implements filter.Filter.
func (f *Filter) Info() filter.Info {
	version := f.spec.Version
	if version == "" {
		version = "1"
	}
	return filter.Info{
		Aliases:         f.spec.Aliases,
		Help:            f.spec.Help,
		Version:         version,
		InputExtensions: f.spec.InputExtensions,
		OutputExtension: f.spec.OutputExtension,
		Defaults:        f.spec.Defaults,
	}
}

// Executables returns the candidate executables for this host.
func (f *Filter) Executables() []string {
	return f.spec.candidates(f.goos)
}

// Executable returns the first candidate whose program is on PATH.
func (f *Filter) Executable() (string, bool) {
	for _, exe := range f.Executables() {
		fields := strings.Fields(exe)
		if len(fields) == 0 {
			continue
		}
		if _, err := f.lookPath(fields[0]); err == nil {
			return exe, true
		}
	}
	return "", false
}

// Active implements filter.Activator.
func (f *Filter) Active() bool {
	_, ok := f.Executable()
	return ok
}

// ProbeVersion runs the version command and returns the first line of its
// output. Filters without a version command, or whose command fails, report
// an empty version.
func (f *Filter) ProbeVersion(ctx context.Context) (string, error) {
	fields := strings.Fields(f.spec.versionCommand(f.goos))
	if len(fields) == 0 || !f.Active() {
		return "", nil
	}
	res, err := f.prober.Run(ctx, process.Command{
		Path:        fields[0],
		Args:        fields[1:],
		Env:         f.environ(),
		MergeStderr: true,
	})
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		return "", nil
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(res.Stdout)), "\n")
	return strings.TrimSpace(line), nil
}

// CommandString renders the main command the way it appears in logs:
// "prog args script scriptargs output" for file capture and
// "prog args script scriptargs" for stdout capture. Empty parts keep their
// separating space.
func (f *Filter) CommandString(in *filter.Input) string {
	prog := f.displayProgram()
	args := strings.Join(in.Settings.Fields("args"), " ")
	scriptargs := strings.Join(in.Settings.Fields("scriptargs"), " ")

	switch f.spec.Kind {
	case Compile, CompileInput:
		return f.runDisplay(in)
	}
	if f.spec.Capture == CaptureFile {
		return fmt.Sprintf("%s %s %s %s %s", prog, args, in.Name, scriptargs, in.OutputName)
	}
	return fmt.Sprintf("%s %s %s %s", prog, args, in.Name, scriptargs)
}

// CompileCommandString renders the compile phase command. Filters without a
// compile phase return false.
func (f *Filter) CompileCommandString(in *filter.Input) (string, bool) {
	switch f.spec.Kind {
	case Compile, CompileInput:
		return strings.Join(f.compileArgv(f.displayProgram(), in), " "), true
	}
	return "", false
}

func (f *Filter) displayProgram() string {
	if exe, ok := f.Executable(); ok {
		return exe
	}
	if c := f.Executables(); len(c) > 0 {
		return c[0]
	}
	return ""
}

func (f *Filter) alias() string { return f.Info().Alias() }

// Process implements filter.Filter.
func (f *Filter) Process(ctx context.Context, in *filter.Input) (*filter.Output, error) {
	exe, ok := f.Executable()
	if !ok {
		return nil, derrors.InactiveFilter(f.alias()).
			WithContext("executables", strings.Join(f.Executables(), ", ")).
			Build()
	}
	if in.Runtime == nil || in.Runtime.Executor == nil || in.Runtime.Workspaces == nil {
		return nil, derrors.InternalError("subprocess filter run without runtime").
			WithContext("filter", f.alias()).
			Build()
	}

	ws, err := in.Runtime.Workspaces.Create(f.alias())
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to create working directory").
			WithContext("filter", f.alias()).
			Build()
	}
	defer func() {
		if cerr := ws.Cleanup(); cerr != nil {
			in.Logger().Warn("Failed to remove working directory", logfields.Path(ws.Path()), logfields.Error(cerr))
		}
	}()

	if err := f.populate(ws, in); err != nil {
		return nil, err
	}

	var out *filter.Output
	switch f.spec.Kind {
	case Compile:
		out, err = f.processCompile(ctx, in, ws, exe)
	case CompileInput:
		out, err = f.processCompileInput(ctx, in, ws, exe)
	default:
		out, err = f.processPlain(ctx, in, ws, exe)
	}
	if err != nil {
		return nil, annotate(err, f.alias(), in.DocKey)
	}

	if in.Settings.Bool("walk-working-dir", false) {
		d, err := walkWorkingDir(ws, in.LongName)
		if err != nil {
			return nil, err
		}
		out.Discovered = append(out.Discovered, d)
	}
	if in.Settings.Bool("add-new-files", false) {
		found, err := newFiles(ws, in.Settings.StringMap("additional-doc-filters"))
		if err != nil {
			return nil, err
		}
		out.Discovered = append(out.Discovered, found...)
	}
	return out, nil
}

func (f *Filter) populate(ws *workspace.Workspace, in *filter.Input) error {
	if err := ws.WriteFile(in.Name, in.Data.Bytes()); err != nil {
		return derrors.WrapError(err, derrors.CategoryFileSystem, "failed to write input file").
			WithContext("path", in.Name).
			Build()
	}
	if !in.Settings.Bool("populate", true) {
		return nil
	}
	for _, child := range in.Children {
		if child.Name == "" || child.Name == in.Name {
			continue
		}
		if err := ws.WriteFile(child.Name, child.Data.Bytes()); err != nil {
			return derrors.WrapError(err, derrors.CategoryFileSystem, "failed to write dependency file").
				WithContext("path", child.Name).
				WithContext("doc", child.Key).
				Build()
		}
	}
	return nil
}

func (f *Filter) processPlain(ctx context.Context, in *filter.Input, ws *workspace.Workspace, exe string) (*filter.Output, error) {
	argv := strings.Fields(exe)
	argv = append(argv, in.Settings.Fields("args")...)
	argv = append(argv, in.Name)
	argv = append(argv, in.Settings.Fields("scriptargs")...)
	if f.spec.Capture == CaptureFile {
		argv = append(argv, in.OutputName)
		ws.MarkWritten(in.OutputName)
	}

	display := f.CommandString(in)
	res, err := f.run(ctx, in, ws, argv, display, nil, f.spec.MergeStderr)
	if err != nil {
		return nil, err
	}
	if err := f.checkExit(in, display, res, f.checkRun(in), true); err != nil {
		return nil, err
	}

	data := res.Stdout
	if f.spec.Capture == CaptureFile {
		if b, err := ws.ReadFile(in.OutputName); err == nil {
			data = b
		} else if !os.IsNotExist(err) {
			return nil, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to read output file").
				WithContext("path", in.OutputName).
				Build()
		}
	}
	return &filter.Output{Data: sectioned.Single(data), Exit: exitOf(display, res)}, nil
}

func (f *Filter) compiledName(in *filter.Input) string {
	return strings.TrimSuffix(in.Name, path.Ext(in.Name)) + f.spec.compiledExtension()
}

func (f *Filter) compileArgv(exe string, in *filter.Input) []string {
	argv := strings.Fields(exe)
	argv = append(argv, in.Settings.Fields("args")...)
	return append(argv, in.Name, "-o", f.compiledName(in))
}

func (f *Filter) runDisplay(in *filter.Input) string {
	return strings.Join(append([]string{"./" + f.compiledName(in)}, in.Settings.Fields("scriptargs")...), " ")
}

// compile builds the input. Its exit code is always checked and never
// ignored.
func (f *Filter) compile(ctx context.Context, in *filter.Input, ws *workspace.Workspace, exe string) (string, error) {
	argv := f.compileArgv(exe, in)
	display := strings.Join(argv, " ")
	ws.MarkWritten(f.compiledName(in))

	res, err := f.run(ctx, in, ws, argv, display, nil, true)
	if err != nil {
		return "", err
	}
	if err := f.checkExit(in, display, res, true, false); err != nil {
		return "", err
	}
	return ws.Join(f.compiledName(in))
}

func (f *Filter) processCompile(ctx context.Context, in *filter.Input, ws *workspace.Workspace, exe string) (*filter.Output, error) {
	binary, err := f.compile(ctx, in, ws, exe)
	if err != nil {
		return nil, err
	}

	display := f.runDisplay(in)
	argv := append([]string{binary}, in.Settings.Fields("scriptargs")...)
	res, err := f.run(ctx, in, ws, argv, display, nil, f.spec.MergeStderr)
	if err != nil {
		return nil, err
	}
	if err := f.checkExit(in, display, res, f.checkRun(in), true); err != nil {
		return nil, err
	}
	return &filter.Output{Data: sectioned.Single(res.Stdout), Exit: exitOf(display, res)}, nil
}

func (f *Filter) processCompileInput(ctx context.Context, in *filter.Input, ws *workspace.Workspace, exe string) (*filter.Output, error) {
	binary, err := f.compile(ctx, in, ws, exe)
	if err != nil {
		return nil, err
	}

	display := f.runDisplay(in)
	argv := append([]string{binary}, in.Settings.Fields("scriptargs")...)

	type job struct {
		name  string
		stdin []byte
	}
	var jobs []job
	if len(in.Children) == 1 && in.Children[0].Data.Len() > 1 {
		for _, s := range in.Children[0].Data.Sections() {
			jobs = append(jobs, job{s.Name, s.Data})
		}
	} else {
		for _, child := range in.Children {
			jobs = append(jobs, job{child.Key, child.Data.Bytes()})
		}
	}
	if len(jobs) == 0 {
		in.Logger().Warn("No completed dependencies to run against", logfields.Doc(in.DocKey), logfields.Filter(f.alias()))
	}

	var b sectioned.Builder
	var last *process.Result
	for _, j := range jobs {
		res, err := f.run(ctx, in, ws, argv, display, j.stdin, f.spec.MergeStderr)
		if err != nil {
			return nil, err
		}
		if err := f.checkExit(in, display, res, f.checkRun(in), true); err != nil {
			return nil, err
		}
		if err := b.Add(j.name, res.Stdout); err != nil {
			return nil, derrors.WrapError(err, derrors.CategoryUserFeedback, "cannot assemble sectioned output").
				WithContext("section", j.name).
				Build()
		}
		last = res
	}

	out := &filter.Output{Data: b.Build()}
	if last != nil {
		out.Exit = exitOf(display, last)
	}
	return out, nil
}

func (f *Filter) checkRun(in *filter.Input) bool {
	return in.Settings.Bool("check-return-code", !f.spec.SkipReturnCode)
}

func (f *Filter) env(in *filter.Input) []string {
	var globals map[string]string
	if in.Runtime != nil {
		globals = in.Runtime.Globals
	}
	return process.MergeEnv(f.environ(), f.spec.Env, globals, in.Settings.StringMap("env"))
}

func (f *Filter) run(ctx context.Context, in *filter.Input, ws *workspace.Workspace, argv []string, display string, stdin []byte, merge bool) (*process.Result, error) {
	cmd := process.Command{
		Path:        argv[0],
		Args:        argv[1:],
		Dir:         ws.Path(),
		Env:         f.env(in),
		Stdin:       stdin,
		Timeout:     in.Settings.Duration("timeout", f.spec.Timeout),
		MergeStderr: merge,
	}
	in.Logger().Debug("Running filter command",
		logfields.Doc(in.DocKey),
		logfields.Filter(f.alias()),
		logfields.Command(display),
		logfields.Path(ws.Path()))
	return in.Runtime.Executor.Run(ctx, cmd)
}

// checkExit applies the exit policy. When check is false the code is
// ignored; when allowIgnore is true the run-wide ignore-nonzero-exit flag
// turns a failure into a warning.
func (f *Filter) checkExit(in *filter.Input, display string, res *process.Result, check, allowIgnore bool) error {
	if !check || res.ExitCode == 0 {
		return nil
	}
	output := res.Stderr
	if len(output) == 0 {
		output = res.Stdout
	}
	if allowIgnore && in.Runtime.IgnoreNonzeroExit {
		in.Logger().Warn("Nonzero exit status",
			logfields.Doc(in.DocKey),
			logfields.Filter(f.alias()),
			logfields.ExitCode(res.ExitCode),
			slog.String("output", string(tail(output))))
		return nil
	}
	return derrors.NonzeroExit(display, res.ExitCode).
		WithContext("output", string(tail(output))).
		Build()
}

func annotate(err error, alias, docKey string) error {
	ce, ok := derrors.AsClassified(err)
	if !ok {
		return err
	}
	ce = ce.WithContext("filter", alias)
	if docKey != "" {
		ce = ce.WithContext("doc", docKey)
	}
	return ce
}

func exitOf(display string, res *process.Result) *filter.Exit {
	return &filter.Exit{Command: display, State: res.State, Code: res.ExitCode, Duration: res.Duration}
}

func tail(b []byte) []byte {
	b = bytes.TrimSpace(b)
	if len(b) > maxErrorOutput {
		return b[len(b)-maxErrorOutput:]
	}
	return b
}

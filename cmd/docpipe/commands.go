package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"git.home.luguber.info/inful/docpipe/internal/config"
	"git.home.luguber.info/inful/docpipe/internal/filter"
	"git.home.luguber.info/inful/docpipe/internal/filter/subprocess"
	"git.home.luguber.info/inful/docpipe/internal/version"
	"git.home.luguber.info/inful/docpipe/internal/watch"
)

// RunCmd implements the default 'run' command.
type RunCmd struct {
	Target string `arg:"" optional:"" help:"Run the named bundle, or documents whose key starts with TARGET"`
	Full   bool   `help:"Include documents marked default: false"`
	DryRun bool   `name:"dry-run" short:"n" help:"Print the documents that would run"`
	Reset  bool   `help:"Clear the cache first"`
}

func (c *RunCmd) overrides() config.RunConfig {
	return config.RunConfig{Target: c.Target, Full: c.Full, DryRun: c.DryRun, Reset: c.Reset}
}

func (c *RunCmd) Run(app *App) error {
	cfg, project, err := app.load(c.overrides())
	if err != nil {
		return err
	}
	return app.runBatch(app.ctx, cfg, project)
}

// ResetCmd implements the 'reset' command.
type ResetCmd struct{}

func (c *ResetCmd) Run(app *App) error {
	cfg, project, err := app.load(config.RunConfig{})
	if err != nil {
		return err
	}
	w := app.newWrapper(cfg, project)
	defer func() { _ = w.Close() }()
	if err := w.Reset(app.ctx); err != nil {
		return err
	}
	app.printf("Cache cleared: %s\n", cfg.CacheDir())
	return nil
}

// FiltersCmd implements the 'filters' command.
type FiltersCmd struct {
	Alias    string `arg:"" optional:"" help:"Show details for one filter"`
	Versions bool   `help:"Ask each available tool for its version"`
}

const versionProbeTimeout = 5 * time.Second

func (c *FiltersCmd) Run(app *App) error {
	cfg, project, err := app.load(config.RunConfig{})
	if err != nil {
		return err
	}
	w := app.newWrapper(cfg, project)
	defer func() { _ = w.Close() }()
	reg, err := w.Registry()
	if err != nil {
		return err
	}

	if c.Alias != "" {
		f, err := reg.Lookup(c.Alias)
		if err != nil {
			return err
		}
		c.describe(app, f)
		return nil
	}

	tw := tabwriter.NewWriter(app.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ALIAS\tSTATUS\tVERSION\tHELP")
	for _, f := range reg.List() {
		info := f.Info()
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", strings.Join(info.Aliases, ", "), status(f), c.version(app.ctx, f), info.Help)
	}
	return tw.Flush()
}

func (c *FiltersCmd) describe(app *App, f filter.Filter) {
	info := f.Info()
	fmt.Fprintf(app.stdout, "%s\n", info.Alias())
	fmt.Fprintf(app.stdout, "  aliases:  %s\n", strings.Join(info.Aliases, ", "))
	fmt.Fprintf(app.stdout, "  status:   %s\n", status(f))
	fmt.Fprintf(app.stdout, "  help:     %s\n", info.Help)
	if len(info.InputExtensions) > 0 {
		fmt.Fprintf(app.stdout, "  input:    %s\n", strings.Join(info.InputExtensions, " "))
	}
	if info.OutputExtension != "" {
		fmt.Fprintf(app.stdout, "  output:   %s\n", info.OutputExtension)
	}
	if v := c.version(app.ctx, f); v != "" {
		fmt.Fprintf(app.stdout, "  version:  %s\n", v)
	}
	if sf, ok := f.(*subprocess.Filter); ok {
		in := exampleInput(info)
		if cmd, ok := sf.CompileCommandString(in); ok {
			fmt.Fprintf(app.stdout, "  compile:  %s\n", cmd)
		}
		fmt.Fprintf(app.stdout, "  command:  %s\n", sf.CommandString(in))
	}
	if len(info.Defaults) == 0 {
		return
	}
	keys := make([]string, 0, len(info.Defaults))
	for k := range info.Defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Fprintln(app.stdout, "  settings:")
	for _, k := range keys {
		fmt.Fprintf(app.stdout, "    %s: %v\n", k, info.Defaults[k])
	}
}

// exampleInput is a step input named after the filter's first input
// extension, used to show the commands a filter runs.
func exampleInput(info filter.Info) *filter.Input {
	ext := ".txt"
	if len(info.InputExtensions) > 0 {
		ext = info.InputExtensions[0]
	}
	name := "example" + ext
	return &filter.Input{
		Name:       name,
		OutputName: filter.OutputName(name, info.OutputExtension),
		Settings:   info.Defaults,
	}
}

func (c *FiltersCmd) version(ctx context.Context, f filter.Filter) string {
	p, ok := f.(filter.VersionProber)
	if !c.Versions || !ok || !filter.IsActive(f) {
		return ""
	}
	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()
	v, err := p.ProbeVersion(ctx)
	if err != nil {
		return "?"
	}
	return v
}

func status(f filter.Filter) string {
	if filter.IsActive(f) {
		return "active"
	}
	return "inactive"
}

// BatchesCmd implements the 'batches' command.
type BatchesCmd struct {
	Limit int  `short:"n" default:"10" help:"Number of batches to show (0 for all)"`
	JSON  bool `name:"json" help:"Print batch records as JSON"`
}

func (c *BatchesCmd) Run(app *App) error {
	cfg, project, err := app.load(config.RunConfig{})
	if err != nil {
		return err
	}
	w := app.newWrapper(cfg, project)
	defer func() { _ = w.Close() }()
	records, err := w.Batches(app.ctx)
	if err != nil {
		return err
	}
	if c.Limit > 0 && len(records) > c.Limit {
		records = records[:c.Limit]
	}

	if c.JSON {
		enc := json.NewEncoder(app.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}
	tw := tabwriter.NewWriter(app.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATE\tSTARTED\tDOCS\tDURATION\tERROR")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			r.ID, r.State, r.StartTime.Local().Format(time.DateTime), len(r.Docs),
			r.Elapsed().Round(time.Millisecond), r.Error)
	}
	return tw.Flush()
}

// WatchCmd implements the 'watch' command.
type WatchCmd struct {
	Target   string        `arg:"" optional:"" help:"Run the named bundle, or documents whose key starts with TARGET"`
	Full     bool          `help:"Include documents marked default: false"`
	Debounce time.Duration `default:"500ms" help:"Quiet period before a rerun"`
}

func (c *WatchCmd) Run(app *App) error {
	overrides := config.RunConfig{Target: c.Target, Full: c.Full}
	cfg, project, err := app.load(overrides)
	if err != nil {
		return err
	}
	if err := app.runBatch(app.ctx, cfg, project); err != nil {
		app.handle(err)
	}

	excludes := cfg.Excludes()
	if cfg.MetricsFile != "" && !filepath.IsAbs(cfg.MetricsFile) {
		excludes = append(excludes, filepath.ToSlash(filepath.Clean(cfg.MetricsFile)))
	}
	w, err := watch.New(cfg.Root, excludes, c.Debounce, func(ctx context.Context, changed []string) {
		app.printf("%d changed: %s\n", len(changed), strings.Join(changed, " "))
		cfg, project, err := app.load(overrides)
		if err == nil {
			err = app.runBatch(ctx, cfg, project)
		}
		if err != nil {
			app.handle(err)
		}
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	app.printf("Watching %s\n", cfg.Root)
	return w.Run(app.ctx)
}

// VersionCmd implements the 'version' command.
type VersionCmd struct{}

func (c *VersionCmd) Run(app *App) error {
	fmt.Fprintln(app.stdout, version.String())
	return nil
}

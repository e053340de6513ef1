package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"git.home.luguber.info/inful/docpipe/internal/filter"
	"git.home.luguber.info/inful/docpipe/internal/filter/subprocess"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/foundation/normalization"
)

// PluginFile declares additional subprocess filters.
type PluginFile struct {
	Filters []FilterDecl `yaml:"filters" json:"filters"`
}

// FilterDecl is the file form of a subprocess filter.
type FilterDecl struct {
	Aliases           []string          `yaml:"aliases" json:"aliases"`
	Help              string            `yaml:"help" json:"help"`
	Version           string            `yaml:"version" json:"version"`
	Executable        string            `yaml:"executable" json:"executable"`
	WindowsExecutable string            `yaml:"windows_executable" json:"windows_executable"`
	Executables       []string          `yaml:"executables" json:"executables"`
	VersionCommand    string            `yaml:"version_command" json:"version_command"`
	InputExtensions   []string          `yaml:"input_extensions" json:"input_extensions"`
	OutputExtension   string            `yaml:"output_extension" json:"output_extension"`
	Kind              string            `yaml:"kind" json:"kind"`
	Capture           string            `yaml:"capture" json:"capture"`
	MergeStderr       bool              `yaml:"merge_stderr" json:"merge_stderr"`
	SkipReturnCode    bool              `yaml:"skip_return_code" json:"skip_return_code"`
	CompiledExtension string            `yaml:"compiled_extension" json:"compiled_extension"`
	Env               map[string]string `yaml:"env" json:"env"`
	Timeout           string            `yaml:"timeout" json:"timeout"`
	Defaults          map[string]any    `yaml:"defaults" json:"defaults"`
}

var kindNormalizer = normalization.NewEnumNormalizer("filter kind", map[string]subprocess.Kind{
	"plain":         subprocess.Plain,
	"compile":       subprocess.Compile,
	"compileinput":  subprocess.CompileInput,
	"compile-input": subprocess.CompileInput,
}, subprocess.Plain)

var captureNormalizer = normalization.NewEnumNormalizer("capture", map[string]subprocess.Capture{
	"stdout": subprocess.CaptureStdout,
	"file":   subprocess.CaptureFile,
}, subprocess.CaptureStdout)

// Spec converts the declaration.
func (d FilterDecl) Spec() (subprocess.Spec, error) {
	if len(d.Aliases) == 0 {
		return subprocess.Spec{}, fmt.Errorf("filter declares no aliases")
	}
	if d.Executable == "" && d.WindowsExecutable == "" && len(d.Executables) == 0 {
		return subprocess.Spec{}, fmt.Errorf("filter '%s' declares no executable", d.Aliases[0])
	}
	s := subprocess.Spec{
		Aliases:           d.Aliases,
		Help:              d.Help,
		Version:           d.Version,
		Executable:        d.Executable,
		WindowsExecutable: d.WindowsExecutable,
		Executables:       d.Executables,
		VersionCommand:    d.VersionCommand,
		InputExtensions:   d.InputExtensions,
		OutputExtension:   d.OutputExtension,
		MergeStderr:       d.MergeStderr,
		SkipReturnCode:    d.SkipReturnCode,
		CompiledExtension: d.CompiledExtension,
		Env:               d.Env,
		Defaults:          filter.Settings(d.Defaults),
	}
	var err error
	if d.Kind != "" {
		if s.Kind, err = kindNormalizer.NormalizeWithValidation(d.Kind); err != nil {
			return s, err
		}
	}
	if d.Capture != "" {
		if s.Capture, err = captureNormalizer.NormalizeWithValidation(d.Capture); err != nil {
			return s, err
		}
	}
	if d.Timeout != "" {
		if s.Timeout, err = time.ParseDuration(d.Timeout); err != nil {
			return s, fmt.Errorf("filter '%s': timeout: %w", d.Aliases[0], err)
		}
	}
	return s, nil
}

// LoadPlugins reads every plugin file, resolving relative paths against root.
func LoadPlugins(root string, paths []string) ([]subprocess.Spec, error) {
	var specs []subprocess.Spec
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, derrors.ConfigError(fmt.Sprintf("failed to read plugin file '%s'", p)).WithCause(err).Build()
		}
		var pf PluginFile
		if err := decode(data, filepath.Ext(p), &pf); err != nil {
			return nil, derrors.ConfigError(fmt.Sprintf("failed to parse plugin file '%s'", p)).WithCause(err).Build()
		}
		for _, decl := range pf.Filters {
			s, err := decl.Spec()
			if err != nil {
				return nil, derrors.ConfigError(fmt.Sprintf("plugin file '%s'", p)).WithCause(err).Build()
			}
			specs = append(specs, s)
		}
	}
	return specs, nil
}

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"git.home.luguber.info/inful/docpipe/internal/doc"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
)

// Fallback project file names tried when the default is absent.
var projectFileNames = []string{"docpipe.yaml", "docpipe.yml", "docpipe.json"}

// Project is the parsed project file.
type Project struct {
	// Run overrides RunConfig defaults; command-line flags override it.
	Run RunConfig `yaml:"run" json:"run"`

	// Globals are exported to every filter alongside RunConfig.Globals.
	Globals map[string]string `yaml:"globals" json:"globals"`

	// Filters holds per-alias settings applied to every document.
	Filters map[string]map[string]any `yaml:"filters" json:"filters"`

	// Settings holds the named sets a key refers to with "alias:ref".
	Settings map[string]map[string]any `yaml:"settings" json:"settings"`

	Docs    []DocSpec           `yaml:"docs" json:"docs"`
	Bundles map[string][]string `yaml:"bundles" json:"bundles"`

	// Path is the file the project was read from; empty for an implicit project.
	Path string `yaml:"-" json:"-"`
}

// DocSpec declares one document or, with a glob path, a family of them.
type DocSpec struct {
	Key string `yaml:"key" json:"key"`

	// Contents replaces the source file.
	Contents *string `yaml:"contents,omitempty" json:"contents,omitempty"`

	// URL fetches the source remotely; requires danger.
	URL string `yaml:"url,omitempty" json:"url,omitempty"`

	// Default false keeps the document out of runs unless full or targeted.
	Default *bool `yaml:"default,omitempty" json:"default,omitempty"`

	// Test documents are skipped when tests are disabled.
	Test bool `yaml:"test,omitempty" json:"test,omitempty"`

	// Settings are per-alias overrides for this document.
	Settings map[string]map[string]any `yaml:"settings,omitempty" json:"settings,omitempty"`

	// Depends lists keys (or globs) of documents that must complete first.
	Depends []string `yaml:"depends,omitempty" json:"depends,omitempty"`
}

// IsDefault reports whether the document runs without full or a target.
func (d DocSpec) IsDefault() bool { return d.Default == nil || *d.Default }

// UnmarshalYAML accepts a bare key as shorthand.
func (d *DocSpec) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		d.Key = n.Value
		return nil
	}
	type plain DocSpec
	return n.Decode((*plain)(d))
}

// UnmarshalJSON accepts a bare key as shorthand.
func (d *DocSpec) UnmarshalJSON(b []byte) error {
	if s := bytes.TrimSpace(b); len(s) > 0 && s[0] == '"' {
		return json.Unmarshal(s, &d.Key)
	}
	type plain DocSpec
	return json.Unmarshal(b, (*plain)(d))
}

// FindProjectFile locates the project file in root. A missing file that
// was named explicitly is an error; a missing default is not.
func FindProjectFile(root, name string) (string, error) {
	if name != "" && name != DefaultConfigFile {
		p := name
		if !filepath.IsAbs(p) {
			p = filepath.Join(root, p)
		}
		if _, err := os.Stat(p); err != nil {
			return "", derrors.ConfigError(fmt.Sprintf("config file '%s' not found", name)).WithCause(err).Build()
		}
		return p, nil
	}
	for _, n := range projectFileNames {
		p := filepath.Join(root, n)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		} else if !errors.Is(err, fs.ErrNotExist) {
			return "", derrors.FileSystemError("cannot stat config file").WithCause(err).Build()
		}
	}
	return "", nil
}

// LoadProject reads and validates a project file. Environment references
// (${VAR}) are expanded before parsing.
func LoadProject(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, derrors.ConfigError(fmt.Sprintf("failed to read config file '%s'", path)).WithCause(err).Build()
	}
	p, err := ParseProject(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	p.Path = path
	return p, nil
}

// ParseProject parses project file content. ext selects the syntax:
// ".json" and ".jsonc" are JSON with comments, anything else is YAML.
func ParseProject(data []byte, ext string) (*Project, error) {
	expanded := []byte(os.ExpandEnv(string(data)))

	var p Project
	if err := decode(expanded, ext, &p); err != nil {
		return nil, derrors.ConfigError("failed to parse config file").WithCause(err).Build()
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks document keys, dependencies and bundles.
func (p *Project) Validate() error {
	seen := make(map[string]bool, len(p.Docs))
	for i, d := range p.Docs {
		if strings.TrimSpace(d.Key) == "" {
			return derrors.ConfigError(fmt.Sprintf("docs[%d]: key is required", i)).Build()
		}
		k, err := doc.ParseKey(d.Key)
		if err != nil {
			return err
		}
		if seen[k.String()] {
			return derrors.ConfigError(fmt.Sprintf("document '%s' is declared twice", d.Key)).Build()
		}
		seen[k.String()] = true
		if d.Contents != nil && d.URL != "" {
			return derrors.ConfigError(fmt.Sprintf("document '%s' sets both contents and url", d.Key)).Build()
		}
		if k.IsGlob() && (d.Contents != nil || d.URL != "") {
			return derrors.ConfigError(fmt.Sprintf("glob document '%s' cannot set contents or url", d.Key)).Build()
		}
		for _, dep := range d.Depends {
			if _, err := doc.ParseKey(dep); err != nil {
				return err
			}
		}
	}
	for name, members := range p.Bundles {
		if _, clash := seen[name]; clash {
			return derrors.ConfigError(fmt.Sprintf("bundle '%s' has the same name as a document", name)).Build()
		}
		for _, m := range members {
			if _, isBundle := p.Bundles[m]; isBundle {
				continue
			}
			if _, err := doc.ParseKey(m); err != nil {
				return err
			}
		}
	}
	return nil
}

// decode parses YAML or, for ".json" and ".jsonc", JSON with comments.
// Unknown fields are rejected.
func decode(data []byte, ext string, v any) error {
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.DisallowUnknownFields()
		return dec.Decode(v)
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
		return nil
	}
}

// Package builtin registers the filters docpipe ships with.
package builtin

import (
	"git.home.luguber.info/inful/docpipe/internal/filter"
	"git.home.luguber.info/inful/docpipe/internal/filter/subprocess"
)

// SubprocessSpecs is the table of external-program filters.
func SubprocessSpecs() []subprocess.Spec {
	return []subprocess.Spec{
		{
			Aliases:         []string{"sh"},
			Help:            "Run a shell script and capture its output.",
			Executable:      "sh",
			OutputExtension: ".txt",
			MergeStderr:     true,
		},
		{
			Aliases:         []string{"bash"},
			Help:            "Run a bash script and capture its output.",
			Executable:      "bash",
			VersionCommand:  "bash --version",
			OutputExtension: ".txt",
			MergeStderr:     true,
		},
		{
			Aliases:           []string{"py", "python"},
			Help:              "Run a Python script and capture its output.",
			Executables:       []string{"python", "python3"},
			WindowsExecutable: "python.exe",
			VersionCommand:    "python --version",
			InputExtensions:   []string{".py"},
			OutputExtension:   ".txt",
			Capture:           subprocess.CaptureFile,
			MergeStderr:       true,
		},
		{
			Aliases:         []string{"rb", "ruby"},
			Help:            "Run a Ruby script and capture its output.",
			Executable:      "ruby",
			VersionCommand:  "ruby --version",
			InputExtensions: []string{".rb"},
			OutputExtension: ".txt",
			MergeStderr:     true,
		},
		{
			Aliases:         []string{"node", "js"},
			Help:            "Run a JavaScript file with node and capture its output.",
			Executable:      "node",
			VersionCommand:  "node --version",
			InputExtensions: []string{".js"},
			OutputExtension: ".txt",
			MergeStderr:     true,
		},
		{
			Aliases:         []string{"pandoc"},
			Help:            "Convert documents with pandoc.",
			Executable:      "pandoc",
			VersionCommand:  "pandoc --version",
			InputExtensions: []string{".md", ".txt", ".rst", ".tex"},
			OutputExtension: ".html",
		},
		{
			Aliases:         []string{"dot"},
			Help:            "Render graphviz dot files to PNG.",
			Executable:      "dot -Tpng",
			VersionCommand:  "dot -V",
			InputExtensions: []string{".dot", ".gv"},
			OutputExtension: ".png",
		},
		{
			Aliases:         []string{"ps2pdf"},
			Help:            "Convert PostScript to PDF.",
			Executable:      "ps2pdf",
			InputExtensions: []string{".ps", ".eps"},
			OutputExtension: ".pdf",
			Capture:         subprocess.CaptureFile,
		},
		{
			Aliases:         []string{"cc", "c"},
			Help:            "Compile C source and run the program.",
			Executables:     []string{"cc", "gcc", "clang"},
			VersionCommand:  "cc --version",
			InputExtensions: []string{".c"},
			OutputExtension: ".txt",
			Kind:            subprocess.Compile,
			MergeStderr:     true,
			SkipReturnCode:  true,
		},
		{
			Aliases:         []string{"cpp", "c++"},
			Help:            "Compile C++ source and run the program.",
			Executables:     []string{"c++", "g++", "clang++"},
			VersionCommand:  "c++ --version",
			InputExtensions: []string{".cpp", ".cc", ".cxx"},
			OutputExtension: ".txt",
			Kind:            subprocess.Compile,
			MergeStderr:     true,
			SkipReturnCode:  true,
		},
		{
			Aliases:         []string{"ccinput"},
			Help:            "Compile C source and run it once per input section or dependency.",
			Executables:     []string{"cc", "gcc", "clang"},
			InputExtensions: []string{".c"},
			OutputExtension: ".txt",
			Kind:            subprocess.CompileInput,
			SkipReturnCode:  true,
		},
	}
}

// Pure returns the in-process filters.
func Pure() []filter.Filter {
	return []filter.Filter{Idio(), Pyg(), Markdown(), Join(), Copy()}
}

// Register adds every built-in filter to r.
func Register(r *filter.Registry, opts ...subprocess.Option) error {
	for _, f := range Pure() {
		if err := r.Register(f); err != nil {
			return err
		}
	}
	for _, spec := range SubprocessSpecs() {
		if err := r.Register(subprocess.New(spec, opts...)); err != nil {
			return err
		}
	}
	return nil
}

// NewRegistry returns a registry holding every built-in filter.
func NewRegistry(opts ...subprocess.Option) *filter.Registry {
	r := filter.NewRegistry()
	if err := Register(r, opts...); err != nil {
		panic(err)
	}
	return r
}

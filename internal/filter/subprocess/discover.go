package subprocess

import (
	"path"
	"strings"
	"unicode/utf8"

	"git.home.luguber.info/inful/docpipe/internal/filter"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/sectioned"
	"git.home.luguber.info/inful/docpipe/internal/workspace"
)

// binaryPlaceholder replaces non-text file contents in walk-working-dir
// output.
const binaryPlaceholder = "binary"

// newFiles turns files the program created into documents. extraFilters maps
// an extension to a filter chain (e.g. ".txt" -> "markdown"); matching files
// are registered a second time with that chain applied.
func newFiles(ws *workspace.Workspace, extraFilters map[string]string) ([]filter.Discovered, error) {
	files, err := ws.NewFiles()
	if err != nil {
		return nil, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to scan working directory").Build()
	}

	var out []filter.Discovered
	for _, f := range files {
		b, err := ws.ReadFile(f.Path)
		if err != nil {
			return nil, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to read new file").
				WithContext("path", f.Path).
				Build()
		}
		data := sectioned.Single(b)
		out = append(out, filter.Discovered{Key: f.Path, Data: data})

		if chain := strings.Trim(extraFilters[path.Ext(f.Path)], "| "); chain != "" {
			out = append(out, filter.Discovered{Key: f.Path + "|" + chain, Data: data})
		}
	}
	return out, nil
}

// walkWorkingDir captures every file in the working directory as one
// document whose sections map relative paths to contents.
func walkWorkingDir(ws *workspace.Workspace, longName string) (filter.Discovered, error) {
	files, err := ws.Files()
	if err != nil {
		return filter.Discovered{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to scan working directory").Build()
	}

	var b sectioned.Builder
	for _, f := range files {
		contents, err := ws.ReadFile(f.Path)
		if err != nil {
			return filter.Discovered{}, derrors.WrapError(err, derrors.CategoryFileSystem, "failed to read working file").
				WithContext("path", f.Path).
				Build()
		}
		if !utf8.Valid(contents) {
			contents = []byte(binaryPlaceholder)
		}
		if err := b.Add(f.Path, contents); err != nil {
			return filter.Discovered{}, err
		}
	}
	return filter.Discovered{Key: longName + "-files", Data: b.Build()}, nil
}

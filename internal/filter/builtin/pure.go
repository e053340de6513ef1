package builtin

import (
	"bytes"
	"context"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"git.home.luguber.info/inful/docpipe/internal/filter"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/sectioned"
	"git.home.luguber.info/inful/docpipe/internal/sectioning"
)

// Idio splits source into sections at "###" comment markers and highlights
// each section.
func Idio() filter.Filter {
	return filter.Func(filter.Info{
		Aliases:         []string{"idio", "id"},
		Help:            "Split a file into sections at ### markers and highlight each one.",
		Version:         "1",
		OutputExtension: ".html",
		Defaults:        filter.Settings{"remove-leading": false, "formatter": defaultFormatter},
	}, func(_ context.Context, in *filter.Input) (*filter.Output, error) {
		doc, err := sectioning.Parse(in.Data.String(), sectioning.Options{
			RemoveLeading: in.Settings.Bool("remove-leading", false),
		})
		if err != nil {
			return nil, err
		}
		h, err := newHighlighter(in.Name, in.Settings)
		if err != nil {
			return nil, err
		}
		data, err := mapSections(doc.Data(), h.highlight)
		if err != nil {
			return nil, err
		}
		return &filter.Output{Data: data}, nil
	})
}

// Pyg highlights every section of its input.
func Pyg() filter.Filter {
	return filter.Func(filter.Info{
		Aliases:         []string{"pyg", "highlight"},
		Help:            "Apply syntax highlighting.",
		Version:         "1",
		OutputExtension: ".html",
		Defaults:        filter.Settings{"formatter": defaultFormatter, "style": defaultStyle},
	}, func(_ context.Context, in *filter.Input) (*filter.Output, error) {
		h, err := newHighlighter(in.Name, in.Settings)
		if err != nil {
			return nil, err
		}
		data, err := mapSections(in.Data, h.highlight)
		if err != nil {
			return nil, err
		}
		return &filter.Output{Data: data}, nil
	})
}

// Markdown renders each section as HTML.
func Markdown() filter.Filter {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			extension.DefinitionList,
		),
	)
	return filter.Func(filter.Info{
		Aliases:         []string{"markdown", "md"},
		Help:            "Render Markdown to HTML.",
		Version:         "1",
		InputExtensions: []string{".md", ".markdown", ".txt"},
		OutputExtension: ".html",
	}, func(_ context.Context, in *filter.Input) (*filter.Output, error) {
		data, err := mapSections(in.Data, func(src []byte) ([]byte, error) {
			var buf bytes.Buffer
			if err := md.Convert(src, &buf); err != nil {
				return nil, derrors.WrapError(err, derrors.CategoryUserFeedback, "failed to render markdown").Build()
			}
			return buf.Bytes(), nil
		})
		if err != nil {
			return nil, err
		}
		return &filter.Output{Data: data}, nil
	})
}

// Join merges all sections into one.
func Join() filter.Filter {
	return filter.Func(filter.Info{
		Aliases: []string{"join"},
		Help:    "Concatenate all sections into a single section.",
		Version: "1",
	}, func(_ context.Context, in *filter.Input) (*filter.Output, error) {
		return &filter.Output{Data: sectioned.Single(in.Data.Bytes())}, nil
	})
}

// Copy passes input through unchanged.
func Copy() filter.Filter {
	return filter.Func(filter.Info{
		Aliases: []string{"copy", "cp"},
		Help:    "Pass content through unchanged.",
		Version: "1",
	}, func(_ context.Context, in *filter.Input) (*filter.Output, error) {
		return &filter.Output{Data: in.Data}, nil
	})
}

func mapSections(d sectioned.Data, fn func([]byte) ([]byte, error)) (sectioned.Data, error) {
	var b sectioned.Builder
	for _, s := range d.Sections() {
		out, err := fn(s.Data)
		if err != nil {
			return sectioned.Data{}, err
		}
		if err := b.Add(s.Name, out); err != nil {
			return sectioned.Data{}, err
		}
	}
	return b.Build(), nil
}

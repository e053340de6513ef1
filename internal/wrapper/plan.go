package wrapper

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"maps"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"git.home.luguber.info/inful/docpipe/internal/config"
	"git.home.luguber.info/inful/docpipe/internal/doc"
	"git.home.luguber.info/inful/docpipe/internal/filter"
	derrors "git.home.luguber.info/inful/docpipe/internal/foundation/errors"
	"git.home.luguber.info/inful/docpipe/internal/logfields"
)

// entry is one concrete document of the project before it is built.
type entry struct {
	key  doc.Key
	spec *config.DocSpec // nil for implicit dependencies
}

// Plan builds the documents the run would execute, dependencies included,
// in declaration order. Remote sources are fetched here.
func (w *Wrapper) Plan(ctx context.Context) ([]*doc.Doc, error) {
	if err := w.Open(); err != nil {
		return nil, err
	}
	if len(w.project.Docs) == 0 {
		return nil, derrors.UserFeedback("no documents configured").
			WithContext("config", w.cfg.ConfigFile).
			Build()
	}

	entries, index, err := w.expand()
	if err != nil {
		return nil, err
	}
	selected, err := w.selectEntries(entries)
	if err != nil {
		return nil, err
	}

	// Pull in dependencies, creating implicit documents for keys that are
	// not declared.
	deps := make(map[string][]string)
	queue := append([]*entry(nil), selected...)
	chosen := make(map[string]bool, len(selected))
	for _, e := range selected {
		chosen[e.key.String()] = true
	}
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if e.spec == nil {
			continue
		}
		for _, raw := range e.spec.Depends {
			keys, err := w.expandKey(raw)
			if err != nil {
				return nil, err
			}
			for _, k := range keys {
				ks := k.String()
				if ks == e.key.String() {
					continue
				}
				deps[e.key.String()] = append(deps[e.key.String()], ks)
				if chosen[ks] {
					continue
				}
				dep, ok := index[ks]
				if !ok {
					dep = &entry{key: k}
					index[ks] = dep
				}
				chosen[ks] = true
				selected = append(selected, dep)
				queue = append(queue, dep)
			}
		}
	}

	named := make(map[string]filter.Settings, len(w.project.Settings))
	for ref, s := range w.project.Settings {
		named[ref] = filter.Settings(s)
	}

	built := make(map[string]*doc.Doc, len(selected))
	docs := make([]*doc.Doc, 0, len(selected))
	for _, e := range selected {
		opts, err := w.docOptions(ctx, e, named)
		if err != nil {
			return nil, err
		}
		d := doc.FromKey(e.key, opts...)
		built[e.key.String()] = d
		docs = append(docs, d)
	}
	for _, d := range docs {
		for _, ks := range deps[d.KeyString()] {
			d.AddChild(built[ks])
		}
	}
	return docs, nil
}

// expand turns every declared document into concrete entries, expanding
// glob keys against the project tree. Test documents are dropped when
// tests are disabled.
func (w *Wrapper) expand() ([]*entry, map[string]*entry, error) {
	var entries []*entry
	index := make(map[string]*entry)
	for i := range w.project.Docs {
		spec := &w.project.Docs[i]
		if spec.Test && w.cfg.DisableTests {
			w.logger.Debug("Skipping test document", logfields.Doc(spec.Key))
			continue
		}
		keys, err := w.expandKey(spec.Key)
		if err != nil {
			return nil, nil, err
		}
		if len(keys) == 0 {
			w.logger.Warn("Glob matched no files", logfields.Doc(spec.Key))
		}
		for _, k := range keys {
			ks := k.String()
			if _, dup := index[ks]; dup {
				continue
			}
			e := &entry{key: k, spec: spec}
			index[ks] = e
			entries = append(entries, e)
		}
	}
	return entries, index, nil
}

// selectEntries applies the target, bundles, default: false and full.
func (w *Wrapper) selectEntries(entries []*entry) ([]*entry, error) {
	target := strings.TrimSpace(w.cfg.Target)
	if target == "" {
		var out []*entry
		for _, e := range entries {
			if w.cfg.Full || e.spec.IsDefault() {
				out = append(out, e)
			}
		}
		return out, nil
	}

	if _, ok := w.project.Bundles[target]; ok {
		members, err := w.bundleMembers(target, map[string]bool{})
		if err != nil {
			return nil, err
		}
		wanted := make(map[string]bool)
		for _, m := range members {
			keys, err := w.expandKey(m)
			if err != nil {
				return nil, err
			}
			for _, k := range keys {
				wanted[k.String()] = true
			}
		}
		var out []*entry
		for _, e := range entries {
			if wanted[e.key.String()] {
				out = append(out, e)
			}
		}
		if len(out) == 0 {
			return nil, derrors.UserFeedback(fmt.Sprintf("bundle '%s' holds no documents", target)).Build()
		}
		return out, nil
	}

	var out []*entry
	for _, e := range entries {
		if strings.HasPrefix(e.key.String(), target) {
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil, derrors.UserFeedback(fmt.Sprintf("no document or bundle matches target '%s'", target)).Build()
	}
	return out, nil
}

// bundleMembers flattens nested bundles.
func (w *Wrapper) bundleMembers(name string, visiting map[string]bool) ([]string, error) {
	if visiting[name] {
		return nil, derrors.ConfigError(fmt.Sprintf("bundle '%s' includes itself", name)).Build()
	}
	visiting[name] = true
	defer delete(visiting, name)

	var out []string
	for _, m := range w.project.Bundles[name] {
		if _, nested := w.project.Bundles[m]; nested {
			sub, err := w.bundleMembers(m, visiting)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

// expandKey parses raw and, for glob paths, returns one key per matching
// file in sorted order.
func (w *Wrapper) expandKey(raw string) ([]doc.Key, error) {
	k, err := doc.ParseKey(raw)
	if err != nil {
		return nil, err
	}
	if !k.IsGlob() {
		return []doc.Key{k}, nil
	}
	matches, err := w.glob(k.Path)
	if err != nil {
		return nil, err
	}
	keys := make([]doc.Key, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, k.WithPath(m))
	}
	return keys, nil
}

// glob walks the project tree for files matching pattern. Patterns without
// a slash match the base name at any depth; others match the whole
// relative path. Excluded directories are not entered.
func (w *Wrapper) glob(pattern string) ([]string, error) {
	if _, err := path.Match(pattern, ""); err != nil {
		return nil, derrors.UserFeedback(fmt.Sprintf("invalid glob '%s'", pattern)).WithCause(err).Build()
	}
	excludes := w.cfg.Excludes()
	root := w.cfg.Root
	byBase := !strings.Contains(pattern, "/")

	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if rel != "." && config.IsExcluded(rel, excludes) {
				return filepath.SkipDir
			}
			return nil
		}
		subject := rel
		if byBase {
			subject = path.Base(rel)
		}
		if ok, _ := path.Match(pattern, subject); ok {
			out = append(out, rel)
		}
		return nil
	})
	if err != nil {
		return nil, derrors.FileSystemError("failed to scan project directory").
			WithCause(err).
			WithContext("root", root).
			Build()
	}
	sort.Strings(out)
	return out, nil
}

// docOptions turns an entry's declaration into document options. Settings
// layer as filter defaults, project filter settings, the named set and the
// document's own overrides.
func (w *Wrapper) docOptions(ctx context.Context, e *entry, named map[string]filter.Settings) ([]doc.Option, error) {
	// Project filter settings sit below a named set, or act as overrides
	// when the step names none.
	docNamed := maps.Clone(named)
	var opts []doc.Option
	for _, ref := range e.key.Filters {
		s, ok := w.project.Filters[ref.Alias]
		if !ok {
			continue
		}
		if n, defined := named[ref.SettingsRef]; ref.SettingsRef != "" && defined {
			docNamed[ref.SettingsRef] = filter.Merge(filter.Settings(s), n)
			continue
		}
		opts = append(opts, doc.WithSettings(ref.Alias, filter.Settings(s)))
	}
	opts = append(opts, doc.WithNamedSettings(docNamed))
	if e.spec == nil {
		return opts, nil
	}
	for alias, s := range e.spec.Settings {
		opts = append(opts, doc.WithSettings(alias, filter.Settings(s)))
	}
	switch {
	case e.spec.Contents != nil:
		opts = append(opts, doc.WithContents([]byte(*e.spec.Contents)))
	case e.spec.URL != "":
		if !w.cfg.Danger {
			return nil, derrors.UserFeedback(fmt.Sprintf(
				"document '%s' is fetched from %s; remote documents need danger enabled", e.key, e.spec.URL)).
				WithContext("doc", e.key.String()).
				Build()
		}
		body, err := w.fetcher.Fetch(ctx, e.spec.URL)
		if err != nil {
			return nil, err
		}
		w.logger.Info("Fetched remote document", logfields.Doc(e.key.String()), logfields.URL(e.spec.URL), slog.Int("bytes", len(body)))
		opts = append(opts, doc.WithContents(body))
	}
	return opts, nil
}

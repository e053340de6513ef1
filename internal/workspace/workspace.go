package workspace

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"git.home.luguber.info/inful/docpipe/internal/logfields"
)

// Manager hands out scoped working directories.
type Manager struct {
	baseDir string
	keep    bool // If true, Cleanup leaves directories on disk
}

// NewManager creates a manager rooted at baseDir (os.TempDir when empty).
func NewManager(baseDir string) *Manager {
	if baseDir == "" {
		baseDir = os.TempDir()
	}
	return &Manager{baseDir: baseDir}
}

// NewKeepingManager creates a manager whose directories survive Cleanup.
func NewKeepingManager(baseDir string) *Manager {
	m := NewManager(baseDir)
	m.keep = true
	return m
}

// BaseDir returns the directory new workspaces are created under.
func (m *Manager) BaseDir() string { return m.baseDir }

// Create makes a fresh exclusive directory for one invocation.
func (m *Manager) Create(name string) (*Workspace, error) {
	if err := os.MkdirAll(m.baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create workspace base directory: %w", err)
	}

	dir, err := os.MkdirTemp(m.baseDir, "docpipe-"+sanitize(name)+"-")
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace directory: %w", err)
	}

	slog.Debug("Created workspace", logfields.Path(dir))
	return &Workspace{dir: dir, keep: m.keep, written: make(map[string]struct{})}, nil
}

// Workspace is one invocation's working directory.
type Workspace struct {
	dir  string
	keep bool

	mu      sync.Mutex
	written map[string]struct{}
}

// Path returns the absolute directory path.
func (w *Workspace) Path() string { return w.dir }

// Join resolves rel inside the workspace, rejecting paths that escape it.
func (w *Workspace) Join(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes workspace", rel)
	}
	return filepath.Join(w.dir, clean), nil
}

// WriteFile writes data at rel and records it as engine-written.
func (w *Workspace) WriteFile(rel string, data []byte) error {
	full, err := w.Join(rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", rel, err)
	}
	if err := os.WriteFile(full, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", rel, err)
	}

	w.mu.Lock()
	w.written[filepath.ToSlash(filepath.Clean(rel))] = struct{}{}
	w.mu.Unlock()
	return nil
}

// MarkWritten records rel as engine-owned without writing it (e.g. an
// expected output file the command will create).
func (w *Workspace) MarkWritten(rel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.written[filepath.ToSlash(filepath.Clean(rel))] = struct{}{}
}

// Written reports whether the engine wrote rel.
func (w *Workspace) Written(rel string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.written[filepath.ToSlash(filepath.Clean(rel))]
	return ok
}

// ReadFile reads rel from the workspace.
func (w *Workspace) ReadFile(rel string) ([]byte, error) {
	full, err := w.Join(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(full)
}

// File is a regular file found in the workspace.
type File struct {
	Path    string // slash-separated, relative to the workspace
	Size    int64
	Written bool // written by the engine
}

// Files walks the workspace and returns every regular file sorted by path.
func (w *Workspace) Files() ([]File, error) {
	var files []File
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(w.dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		files = append(files, File{Path: rel, Size: info.Size(), Written: w.Written(rel)})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk workspace: %w", err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// NewFiles returns non-empty files the engine did not write.
func (w *Workspace) NewFiles() ([]File, error) {
	all, err := w.Files()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, f := range all {
		if !f.Written && f.Size > 0 {
			out = append(out, f)
		}
	}
	return out, nil
}

// Cleanup removes the workspace directory. Safe to call more than once.
func (w *Workspace) Cleanup() error {
	if w.dir == "" {
		return nil
	}
	if w.keep {
		slog.Debug("Keeping workspace", logfields.Path(w.dir))
		return nil
	}
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("failed to cleanup workspace: %w", err)
	}
	slog.Debug("Cleaned up workspace", logfields.Path(w.dir))
	w.dir = ""
	return nil
}

func sanitize(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "run"
	}
	return b.String()
}

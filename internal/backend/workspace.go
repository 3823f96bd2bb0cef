package backend

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"

	"github.com/codefionn/agentweb/internal/api"
)

// maxFileSize caps file reads served to clients.
const maxFileSize = 4 << 20

var (
	errOutsideWorkspace = errors.New("path escapes workspace")
	errNotAFile         = errors.New("not a regular file")
	errFileTooLarge     = errors.New("file too large")
)

// Workspaces maps session ids to directories under a root.
type Workspaces struct {
	root string
}

// NewWorkspaces creates root if needed.
func NewWorkspaces(root string) (*Workspaces, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace root: %w", err)
	}
	return &Workspaces{root: abs}, nil
}

// Root returns the absolute workspace root.
func (w *Workspaces) Root() string { return w.root }

// Create makes the directory of a new session.
func (w *Workspaces) Create(sessionID string) (string, error) {
	dir, err := w.dir(sessionID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	return dir, nil
}

func (w *Workspaces) dir(sessionID string) (string, error) {
	if sessionID == "" || sessionID != filepath.Base(sessionID) || sessionID == "." || sessionID == ".." {
		return "", errOutsideWorkspace
	}
	return filepath.Join(w.root, sessionID), nil
}

// List walks the workspace of sessionID. A missing workspace is empty.
func (w *Workspaces) List(sessionID string) ([]api.FileItem, error) {
	dir, err := w.dir(sessionID)
	if err != nil {
		return nil, err
	}

	files := []api.FileItem{}
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == dir {
				return fs.SkipAll
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		files = append(files, api.FileItem{
			Name:     d.Name(),
			Path:     filepath.ToSlash(rel),
			Size:     info.Size(),
			Modified: float64(info.ModTime().UnixNano()) / 1e9,
			Type:     "file",
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// File is a workspace file body with its content hash.
type File struct {
	Content string
	ETag    string
}

// Read returns the file at rel inside the workspace of sessionID. Paths that
// resolve outside the workspace, including through symlinks, are rejected.
func (w *Workspaces) Read(sessionID, rel string) (File, error) {
	dir, err := w.dir(sessionID)
	if err != nil {
		return File{}, err
	}
	full, err := confine(dir, rel)
	if err != nil {
		return File{}, err
	}

	info, err := os.Stat(full)
	if err != nil {
		return File{}, err
	}
	if !info.Mode().IsRegular() {
		return File{}, errNotAFile
	}
	if info.Size() > maxFileSize {
		return File{}, errFileTooLarge
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return File{}, err
	}
	content := string(data)
	if !utf8.Valid(data) {
		content = strings.ToValidUTF8(content, "�")
	}
	return File{Content: content, ETag: fmt.Sprintf(`"%016x"`, xxhash.Sum64(data))}, nil
}

// confine joins rel onto dir and rejects results outside dir.
func confine(dir, rel string) (string, error) {
	rel = strings.TrimPrefix(filepath.FromSlash(rel), string(filepath.Separator))
	if rel == "" || filepath.IsAbs(rel) {
		return "", errOutsideWorkspace
	}
	full := filepath.Join(dir, rel)
	if !within(dir, full) {
		return "", errOutsideWorkspace
	}

	resolved, err := filepath.EvalSymlinks(full)
	if err != nil {
		return "", err
	}
	base, err := filepath.EvalSymlinks(dir)
	if err != nil {
		return "", err
	}
	if !within(base, resolved) {
		return "", errOutsideWorkspace
	}
	return resolved, nil
}

func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && rel != "."
}

package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// workspacePrefix names every workspace directory under the root.
const workspacePrefix = "render-"

// Manager creates workspaces under a root directory on local disk.
type Manager struct {
	root string
}

// NewManager creates a new Manager.
// If root is empty, a "sitereel" directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewManager(root string) (*Manager, error) {
	if root == "" {
		root = filepath.Join(os.TempDir(), "sitereel")
	}

	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &Manager{root: root}, nil
}

// Root returns the directory holding all workspaces.
func (m *Manager) Root() string {
	return m.root
}

// NewWorkspace creates an empty workspace directory.
func (m *Manager) NewWorkspace(ctx context.Context) (Workspace, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
	}

	id := uuid.NewString()
	dir := filepath.Join(m.root, workspacePrefix+id)
	if err := os.Mkdir(dir, 0750); err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}
	return &LocalWorkspace{id: id, dir: dir}, nil
}

// Sweep removes workspaces last modified before now minus olderThan. A
// process killed mid-render leaves its workspace behind; Sweep reclaims it
// on the next start. It returns the number of workspaces removed.
func (m *Manager) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(m.root)
	if err != nil {
		return 0, fmt.Errorf("read temp directory: %w", err)
	}

	cutoff := time.Now().Add(-olderThan)
	removed := 0
	var firstErr error
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), workspacePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(m.root, e.Name())); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove workspace %s: %w", e.Name(), err)
			}
			continue
		}
		removed++
	}
	return removed, firstErr
}

// LocalWorkspace implements Workspace as a directory on local disk.
type LocalWorkspace struct {
	id   string
	dir  string
	once sync.Once
	err  error
}

// ID implements Workspace.
func (w *LocalWorkspace) ID() string { return w.id }

// Path implements Workspace.
func (w *LocalWorkspace) Path(name string) string {
	return filepath.Join(w.dir, filepath.Base(name))
}

// Store implements Sink. It refuses to overwrite an existing file.
func (w *LocalWorkspace) Store(ctx context.Context, name string, data io.Reader) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, fmt.Errorf("store %s: %w", name, err)
	}

	path := w.Path(name)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600) // #nosec G304 - path is inside the workspace
	if err != nil {
		return "", 0, fmt.Errorf("store %s: %w", name, err)
	}

	n, err := io.Copy(f, ctxReader{ctx: ctx, r: data})
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", n, fmt.Errorf("store %s: %w", name, err)
	}
	return path, n, nil
}

// Open implements Workspace.
func (w *LocalWorkspace) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	f, err := os.Open(w.Path(name))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	return f, nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// Remove implements Workspace.
func (w *LocalWorkspace) Remove() error {
	w.once.Do(func() {
		if err := os.RemoveAll(w.dir); err != nil {
			w.err = fmt.Errorf("remove workspace %s: %w", w.id, err)
		}
	})
	return w.err
}

// Verify interface implementation at compile time.
var (
	_ Provider  = (*Manager)(nil)
	_ Workspace = (*LocalWorkspace)(nil)
)

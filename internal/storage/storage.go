// Package storage provides per-request scratch workspaces on local disk.
// Every render gets its own directory, and removing the workspace removes
// every file the render created.
package storage

import (
	"context"
	"io"
)

// Sink receives named files.
type Sink interface {
	// Store writes data to a new file called name and returns its path and
	// size. Only the base of name is used. A partially written file is
	// removed on failure, including when ctx is cancelled mid-copy.
	Store(ctx context.Context, name string, data io.Reader) (path string, n int64, err error)
}

// Workspace is a scratch directory owned by a single request.
type Workspace interface {
	Sink

	// ID identifies the workspace in logs.
	ID() string

	// Path returns the path of name inside the workspace. Only the base
	// name is used.
	Path(name string) string

	// Open opens a file inside the workspace for reading.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, name string) (io.ReadCloser, error)

	// Remove deletes the workspace and everything in it. It is safe to
	// call more than once.
	Remove() error
}

// Provider creates workspaces.
type Provider interface {
	NewWorkspace(ctx context.Context) (Workspace, error)
}

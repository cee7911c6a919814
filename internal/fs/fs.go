// Package fs defines the local filesystem abstraction used for the dump
// directory: staging archives before upload and downloads before extraction.
package fs

import (
	"context"
	"io"
	"time"
)

type FileInfo struct {
	Path  string
	Size  int64
	MTime time.Time
	IsDir bool
}

type FS interface {
	Stat(path string) (FileInfo, error)
	// WriteFile streams r into path atomically: readers never observe a
	// partially written file.
	WriteFile(ctx context.Context, path string, r io.Reader) (int64, error)
	Rename(ctx context.Context, oldPath, newPath string) error
	MkdirAll(path string) error
	Remove(path string) error
	RemoveAll(path string) error
}

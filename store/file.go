// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package store

import (
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// File stores each key as a small file under a directory. Writes go through a
// temporary file and rename so a crash never leaves a torn value.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile returns a file store rooted at dir, creating it if needed.
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &Error{Op: "open", Key: dir, Backend: "file", wrapped: err}
	}
	return &File{dir: dir}, nil
}

// Get reads the file named after key. A missing file reports false.
func (f *File) Get(_ context.Context, key string) (string, bool, error) {
	b, err := os.ReadFile(f.path(key))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return "", false, nil
	case err != nil:
		return "", false, &Error{Op: "get", Key: key, Backend: "file", wrapped: err}
	}
	return strings.TrimRight(string(b), "\n"), true, nil
}

// Set writes value to the file named after key, replacing it atomically.
func (f *File) Set(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return &Error{Op: "set", Key: key, Backend: "file", wrapped: err}
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(value); err != nil {
		tmp.Close()
		return &Error{Op: "set", Key: key, Backend: "file", wrapped: err}
	}
	if err := tmp.Close(); err != nil {
		return &Error{Op: "set", Key: key, Backend: "file", wrapped: err}
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return &Error{Op: "set", Key: key, Backend: "file", wrapped: err}
	}
	return nil
}

// Keys such as "gb:last_mc" are escaped to stay portable file names.
func (f *File) path(key string) string {
	return filepath.Join(f.dir, url.QueryEscape(key))
}

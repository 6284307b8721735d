// Package mocks provides mock implementations for testing.
package mocks

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/mcdonaldj/apkpatch/internal/ports"
)

// MockFileSystem implements ports.FileSystem for testing.
type MockFileSystem struct {
	// Files maps paths to file contents for WriteFile/Open
	Files map[string][]byte
	// Stats maps paths to FileInfo for Stat
	Stats map[string]os.FileInfo
	// Errors maps paths to errors (for simulating failures)
	Errors map[string]error
	// Writes records WriteFile paths in call order
	Writes []string
}

// NewMockFileSystem creates a new mock filesystem.
func NewMockFileSystem() *MockFileSystem {
	return &MockFileSystem{
		Files:  make(map[string][]byte),
		Stats:  make(map[string]os.FileInfo),
		Errors: make(map[string]error),
	}
}

// AddDir marks path as an existing directory.
func (m *MockFileSystem) AddDir(path string) {
	m.Stats[path] = &mockFileInfo{name: filepath.Base(path), isDir: true, mode: fs.ModeDir | 0o755}
}

// Stat returns file info for the named file.
func (m *MockFileSystem) Stat(name string) (os.FileInfo, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	if info, ok := m.Stats[name]; ok {
		return info, nil
	}
	// Check if we have file content (implies file exists)
	if _, ok := m.Files[name]; ok {
		return &mockFileInfo{name: filepath.Base(name), size: int64(len(m.Files[name]))}, nil
	}
	return nil, os.ErrNotExist
}

// Mkdir creates a single directory.
func (m *MockFileSystem) Mkdir(path string, perm os.FileMode) error {
	if err, ok := m.Errors[path]; ok {
		return err
	}
	if _, err := m.Stat(path); err == nil {
		return os.ErrExist
	}
	m.Stats[path] = &mockFileInfo{name: filepath.Base(path), isDir: true, mode: fs.ModeDir | perm}
	return nil
}

// WriteFile writes data to the named file, creating it if necessary.
func (m *MockFileSystem) WriteFile(name string, data []byte, perm os.FileMode) error {
	if err, ok := m.Errors[name]; ok {
		return err
	}
	m.Writes = append(m.Writes, name)
	m.Files[name] = data
	return nil
}

// Open opens the named file for reading.
func (m *MockFileSystem) Open(name string) (fs.File, error) {
	if err, ok := m.Errors[name]; ok {
		return nil, err
	}
	if _, ok := m.Files[name]; !ok {
		return nil, os.ErrNotExist
	}
	return &mockFile{name: name, content: m.Files[name]}, nil
}

// mockFileInfo implements os.FileInfo for testing.
type mockFileInfo struct {
	name    string
	size    int64
	mode    os.FileMode
	modTime time.Time
	isDir   bool
}

func (fi *mockFileInfo) Name() string       { return fi.name }
func (fi *mockFileInfo) Size() int64        { return fi.size }
func (fi *mockFileInfo) Mode() os.FileMode  { return fi.mode }
func (fi *mockFileInfo) ModTime() time.Time { return fi.modTime }
func (fi *mockFileInfo) IsDir() bool        { return fi.isDir }
func (fi *mockFileInfo) Sys() interface{}   { return nil }

// mockFile implements fs.File for testing.
type mockFile struct {
	name    string
	content []byte
	offset  int
}

func (f *mockFile) Stat() (fs.FileInfo, error) {
	return &mockFileInfo{name: f.name, size: int64(len(f.content))}, nil
}

func (f *mockFile) Read(p []byte) (int, error) {
	if f.offset >= len(f.content) {
		return 0, io.EOF
	}
	n := copy(p, f.content[f.offset:])
	f.offset += n
	return n, nil
}

func (f *mockFile) Close() error { return nil }

// Compile-time check that MockFileSystem implements ports.FileSystem.
var _ ports.FileSystem = (*MockFileSystem)(nil)

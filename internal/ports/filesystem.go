// Package ports defines interfaces (contracts) for external dependencies.
// These enable dependency injection and testability via mock implementations.
package ports

import (
	"io/fs"
	"os"
)

// FileSystem abstracts filesystem operations for testability.
// Production code uses OSFileSystem adapter; tests use MockFileSystem.
type FileSystem interface {
	// Stat returns file info for the named file.
	Stat(name string) (os.FileInfo, error)

	// Mkdir creates a single directory. The parent must exist.
	Mkdir(path string, perm os.FileMode) error

	// WriteFile writes data to the named file, creating or truncating it.
	// The file is closed before WriteFile returns, on every path.
	WriteFile(name string, data []byte, perm os.FileMode) error

	// Open opens the named file for reading.
	Open(name string) (fs.File, error)
}

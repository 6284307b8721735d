package ports

import (
	"fmt"
	"io"
	"time"
)

// Archiver abstracts ZIP container operations for testability.
// Production code uses the ZipArchiver adapter; tests use MockArchiver.
type Archiver interface {
	// List returns the container's members in archive order.
	// Returns an empty slice if the container cannot be opened.
	List(containerPath string) []Entry

	// Contains reports whether a member named name exists (exact,
	// case-sensitive). Returns false if the container cannot be opened.
	Contains(containerPath, name string) bool

	// Add streams src into a new store-mode member called name, creating
	// the container if it does not exist yet.
	Add(containerPath string, src io.Reader, name string) error

	// ReadMember returns the member's bytes. The result is exactly
	// entry.UncompressedSize bytes long or an error is returned.
	ReadMember(containerPath string, entry Entry) ([]byte, error)

	// Digest returns the hex BLAKE3 digest of the member's bytes.
	Digest(containerPath string, entry Entry) (string, error)

	// Check opens the container and returns an ARCHIVE_OPEN_FAILED error
	// if it cannot be read. It tells an empty container apart from one
	// List could not open.
	Check(containerPath string) error
}

// Entry describes one member of a container.
type Entry struct {
	Name             string
	CompressedSize   uint64
	UncompressedSize uint64
	CRC32            uint32
	Method           uint16
	Modified         time.Time
	// Index is the member's position in archive order.
	Index int
}

// MethodName names the entry's compression method.
func (e Entry) MethodName() string {
	switch e.Method {
	case 0:
		return "store"
	case 8:
		return "deflate"
	default:
		return fmt.Sprintf("method-%d", e.Method)
	}
}

// Names projects a listing to member names, keeping order.
func Names(entries []Entry) []string {
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name)
	}
	return names
}

// Find returns the first entry named name.
func Find(entries []Entry, name string) (Entry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

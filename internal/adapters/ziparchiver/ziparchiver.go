// Package ziparchiver provides an archiver adapter using github.com/klauspost/compress/zip.
package ziparchiver

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zip"
	"github.com/zeebo/blake3"

	"github.com/mcdonaldj/apkpatch/internal/apkerr"
	"github.com/mcdonaldj/apkpatch/internal/ports"
)

// DefaultBufferSize is the chunk size used when streaming a member into a
// container. It matches the C library's BUFSIZ.
const DefaultBufferSize = 8192

// DefaultMaxMemberSize is the largest member ReadMember will buffer (1GB).
// This prevents decompression bomb attacks from a forged size field.
const DefaultMaxMemberSize = 1 << 30

// ZipArchiver implements ports.Archiver.
type ZipArchiver struct {
	bufferSize    int
	maxMemberSize uint64
	logger        *slog.Logger

	mu      sync.Mutex
	writers map[string]*sync.Mutex
}

// Option configures a ZipArchiver.
type Option func(*ZipArchiver)

// WithBufferSize sets the streaming chunk size. Values below 1 are ignored.
func WithBufferSize(n int) Option {
	return func(a *ZipArchiver) {
		if n > 0 {
			a.bufferSize = n
		}
	}
}

// WithMaxMemberSize caps the declared size ReadMember accepts. Zero is ignored.
func WithMaxMemberSize(n uint64) Option {
	return func(a *ZipArchiver) {
		if n > 0 {
			a.maxMemberSize = n
		}
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(a *ZipArchiver) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates a new ZipArchiver adapter.
func New(opts ...Option) *ZipArchiver {
	a := &ZipArchiver{
		bufferSize:    DefaultBufferSize,
		maxMemberSize: DefaultMaxMemberSize,
		logger:        slog.New(slog.DiscardHandler),
		writers:       make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BufferSize returns the configured streaming chunk size.
func (a *ZipArchiver) BufferSize() int {
	return a.bufferSize
}

// lockWriter serializes writers to one container path.
func (a *ZipArchiver) lockWriter(path string) func() {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}

	a.mu.Lock()
	m, ok := a.writers[key]
	if !ok {
		m = &sync.Mutex{}
		a.writers[key] = m
	}
	a.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// List returns the container's members in archive order.
func (a *ZipArchiver) List(containerPath string) []ports.Entry {
	a.logger.Debug("list", "container", containerPath)

	r, err := zip.OpenReader(containerPath)
	if err != nil {
		a.logger.Warn("unable to open container for listing", "container", containerPath, "error", err)
		return []ports.Entry{}
	}
	defer func() { _ = r.Close() }()

	entries := make([]ports.Entry, 0, len(r.File))
	for i, f := range r.File {
		entries = append(entries, ports.Entry{
			Name:             f.Name,
			CompressedSize:   f.CompressedSize64,
			UncompressedSize: f.UncompressedSize64,
			CRC32:            f.CRC32,
			Method:           f.Method,
			Modified:         f.Modified,
			Index:            i,
		})
	}
	return entries
}

// Check opens and closes the container.
func (a *ZipArchiver) Check(containerPath string) error {
	r, err := zip.OpenReader(containerPath)
	if err != nil {
		err = apkerr.Wrap(err, apkerr.CodeArchiveOpen, "unable to open container")
		return apkerr.With(err, "container", containerPath)
	}
	return r.Close()
}

// Contains reports whether the container has a member called name.
func (a *ZipArchiver) Contains(containerPath, name string) bool {
	a.logger.Debug("contains", "container", containerPath, "member", name)

	r, err := zip.OpenReader(containerPath)
	if err != nil {
		return false
	}
	defer func() { _ = r.Close() }()

	return findFile(r.File, name) != nil
}

// Add streams src into a new store-mode member. Duplicate names are not
// merged: the container ends up with two entries and lookups by name
// resolve to the first one. A failed Add leaves the container unchanged.
func (a *ZipArchiver) Add(containerPath string, src io.Reader, name string) (err error) {
	a.logger.Debug("add", "container", containerPath, "member", name)

	unlock := a.lockWriter(containerPath)
	defer unlock()

	h, err := Open(containerPath)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = h.Discard()
			a.logger.Warn("add failed", "container", containerPath, "member", name, "error", err)
			return
		}
		if cerr := h.Close(); cerr != nil {
			err = apkerr.With(apkerr.Wrap(cerr, apkerr.CodeArchiveOpen, "unable to commit container"), "container", containerPath)
		}
	}()

	w, err := h.CreateMember(name)
	if err != nil {
		return err
	}
	defer func() { _ = w.Close() }()

	if err := copyChunked(w, src, a.bufferSize); err != nil {
		return fmt.Errorf("writing member %s: %w", name, err)
	}
	return nil
}

// copyChunked copies src to dst one buffer at a time until EOF.
func copyChunked(dst io.Writer, src io.Reader, size int) error {
	buf := make([]byte, size)
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// ReadMember returns exactly the member's recorded uncompressed size in
// bytes. A short read is a TRUNCATED_READ error, never a short slice.
func (a *ZipArchiver) ReadMember(containerPath string, entry ports.Entry) ([]byte, error) {
	a.logger.Debug("read member", "container", containerPath, "member", entry.Name)

	r, err := zip.OpenReader(containerPath)
	if err != nil {
		return nil, openError(err, containerPath)
	}
	defer func() { _ = r.Close() }()

	f := findFile(r.File, entry.Name)
	if f == nil {
		return nil, memberNotFound(containerPath, entry.Name)
	}

	size := f.UncompressedSize64
	if size > a.maxMemberSize {
		return nil, apkerr.With(apkerr.Newf(apkerr.CodeMemberTooLarge,
			"%s: declared size %d exceeds limit of %d bytes", f.Name, size, a.maxMemberSize), "container", containerPath)
	}

	rc, err := f.Open()
	if err != nil {
		return nil, apkerr.With(apkerr.Wrap(err, apkerr.CodeArchiveOpen, "unable to open member "+f.Name), "container", containerPath)
	}
	defer func() { _ = rc.Close() }()

	buf := make([]byte, size)
	if n, err := io.ReadFull(rc, buf); err != nil {
		a.logger.Warn("short member read", "container", containerPath, "member", f.Name, "read", n, "declared", size)
		return nil, apkerr.With(apkerr.Wrap(err, apkerr.CodeTruncatedRead,
			fmt.Sprintf("%s: read %d of %d bytes", f.Name, n, size)), "container", containerPath)
	}
	return buf, nil
}

// Digest returns the hex BLAKE3 digest of a member's uncompressed bytes.
func (a *ZipArchiver) Digest(containerPath string, entry ports.Entry) (string, error) {
	r, err := zip.OpenReader(containerPath)
	if err != nil {
		return "", openError(err, containerPath)
	}
	defer func() { _ = r.Close() }()

	f := findFile(r.File, entry.Name)
	if f == nil {
		return "", memberNotFound(containerPath, entry.Name)
	}

	rc, err := f.Open()
	if err != nil {
		return "", fmt.Errorf("opening %s: %w", f.Name, err)
	}
	defer func() { _ = rc.Close() }()

	h := blake3.New()
	if _, err := io.Copy(h, rc); err != nil {
		return "", fmt.Errorf("hashing %s: %w", f.Name, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// findFile returns the first member named name, in archive order.
func findFile(files []*zip.File, name string) *zip.File {
	for _, f := range files {
		if f.Name == name {
			return f
		}
	}
	return nil
}

func memberNotFound(containerPath, name string) error {
	err := apkerr.Newf(apkerr.CodeMemberNotFound, "path does not exist in archive: %s", name)
	return apkerr.With(apkerr.With(err, "container", containerPath), "member", name)
}

// Compile-time check that ZipArchiver implements ports.Archiver.
var _ ports.Archiver = (*ZipArchiver)(nil)

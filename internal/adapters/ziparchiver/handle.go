package ziparchiver

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/mcdonaldj/apkpatch/internal/apkerr"
)

// Mode is how a Handle was opened.
type Mode int

const (
	// ModeCreate means the container did not exist when it was opened.
	ModeCreate Mode = iota
	// ModeAppend means existing members are kept and new ones follow them.
	ModeAppend
)

func (m Mode) String() string {
	if m == ModeAppend {
		return "append"
	}
	return "create"
}

// ErrSessionOpen is returned when a member write session is started while
// another one on the same handle is still open.
var ErrSessionOpen = errors.New("member write session already open")

// Handle is an exclusively owned, writable view of one container.
//
// Writes go to a temporary file next to the container. Close commits by
// renaming it over the container; Discard drops it and leaves the container
// as it was. Exactly one of them must be called. A Handle is not safe for
// concurrent use.
type Handle struct {
	path    string
	mode    Mode
	tmp     *os.File
	w       *zip.Writer
	session *MemberWriter
	done    bool
}

// Open returns a handle in ModeCreate if path does not exist and in
// ModeAppend if it does. Existing members are carried over unchanged
// (raw copy, no recompression).
func Open(path string) (*Handle, error) {
	mode := ModeCreate
	perm := fs.FileMode(0o644)
	if info, err := os.Stat(path); err == nil {
		if info.IsDir() {
			return nil, openError(fmt.Errorf("%s is a directory", path), path)
		}
		mode = ModeAppend
		perm = info.Mode().Perm()
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, openError(err, path)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return nil, openError(err, path)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return nil, openError(err, path)
	}

	h := &Handle{
		path: path,
		mode: mode,
		tmp:  tmp,
		w:    zip.NewWriter(tmp),
	}

	if mode == ModeAppend {
		if err := h.copyExisting(); err != nil {
			_ = h.Discard()
			return nil, openError(err, path)
		}
	}

	return h, nil
}

func openError(err error, path string) error {
	return apkerr.With(apkerr.Wrap(err, apkerr.CodeArchiveOpen, "unable to open container"), "container", path)
}

func (h *Handle) copyExisting() error {
	r, err := zip.OpenReader(h.path)
	if err != nil {
		return err
	}
	defer func() { _ = r.Close() }()

	for _, f := range r.File {
		if err := h.w.Copy(f); err != nil {
			return fmt.Errorf("copying %s: %w", f.Name, err)
		}
	}
	if r.Comment != "" {
		if err := h.w.SetComment(r.Comment); err != nil {
			return err
		}
	}
	return nil
}

// Mode reports how the handle was opened.
func (h *Handle) Mode() Mode {
	return h.mode
}

// Path returns the container path the handle is bound to.
func (h *Handle) Path() string {
	return h.path
}

// CreateMember starts a store-mode write session for a new member. The
// previous session must be closed first.
func (h *Handle) CreateMember(name string) (*MemberWriter, error) {
	if h.done {
		return nil, os.ErrClosed
	}
	if h.session != nil {
		return nil, ErrSessionOpen
	}

	w, err := h.w.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Store,
		Modified: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("creating member %s: %w", name, err)
	}

	h.session = &MemberWriter{h: h, name: name, w: w}
	return h.session, nil
}

// Close ends any open session and commits the container.
func (h *Handle) Close() error {
	if h.done {
		return nil
	}
	h.done = true
	h.endSession()

	if err := h.w.Close(); err != nil {
		_ = h.tmp.Close()
		_ = os.Remove(h.tmp.Name())
		return fmt.Errorf("closing zip writer: %w", err)
	}
	if err := h.tmp.Close(); err != nil {
		_ = os.Remove(h.tmp.Name())
		return fmt.Errorf("closing zip file: %w", err)
	}
	if err := os.Rename(h.tmp.Name(), h.path); err != nil {
		_ = os.Remove(h.tmp.Name())
		return fmt.Errorf("replacing container: %w", err)
	}
	return nil
}

// Discard ends any open session and throws away everything written
// through the handle.
func (h *Handle) Discard() error {
	if h.done {
		return nil
	}
	h.done = true
	h.endSession()

	_ = h.tmp.Close()
	return os.Remove(h.tmp.Name())
}

func (h *Handle) endSession() {
	if h.session != nil {
		h.session.closed = true
		h.session = nil
	}
}

// MemberWriter is the write session for one member.
type MemberWriter struct {
	h      *Handle
	name   string
	w      io.Writer
	closed bool
}

// Name returns the member name being written.
func (m *MemberWriter) Name() string {
	return m.name
}

// Write appends p to the member.
func (m *MemberWriter) Write(p []byte) (int, error) {
	if m.closed {
		return 0, os.ErrClosed
	}
	return m.w.Write(p)
}

// Close ends the session. The member's data is finalized when the next
// session starts or the handle is closed.
func (m *MemberWriter) Close() error {
	if m.closed {
		return nil
	}
	m.closed = true
	if m.h.session == m {
		m.h.session = nil
	}
	return nil
}

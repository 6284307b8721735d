package mocks

import (
	"io"

	"github.com/mcdonaldj/apkpatch/internal/apkerr"
	"github.com/mcdonaldj/apkpatch/internal/ports"
)

// MockArchiver implements ports.Archiver for testing.
type MockArchiver struct {
	// Containers maps container paths to their members, in archive order.
	Containers map[string][]MockMember
	// Errors maps method names to errors
	Errors map[string]error
	// Calls records method names in call order
	Calls []string
}

// MockMember is one member of a mock container. Declared overrides the
// reported uncompressed size when non-zero, to simulate short reads.
type MockMember struct {
	Name     string
	Content  []byte
	Declared uint64
}

// NewMockArchiver creates a new mock archiver.
func NewMockArchiver() *MockArchiver {
	return &MockArchiver{
		Containers: make(map[string][]MockMember),
		Errors:     make(map[string]error),
	}
}

// Put appends a member to a container, creating the container if needed.
func (m *MockArchiver) Put(containerPath, name string, content []byte) {
	m.Containers[containerPath] = append(m.Containers[containerPath], MockMember{Name: name, Content: content})
}

// List returns the container's members in order.
func (m *MockArchiver) List(containerPath string) []ports.Entry {
	m.Calls = append(m.Calls, "List")
	entries := []ports.Entry{}
	if _, ok := m.Errors["List"]; ok {
		return entries
	}
	for i, mem := range m.Containers[containerPath] {
		size := uint64(len(mem.Content))
		if mem.Declared != 0 {
			size = mem.Declared
		}
		entries = append(entries, ports.Entry{
			Name:             mem.Name,
			CompressedSize:   uint64(len(mem.Content)),
			UncompressedSize: size,
			Index:            i,
		})
	}
	return entries
}

// Check fails for containers that were never populated.
func (m *MockArchiver) Check(containerPath string) error {
	m.Calls = append(m.Calls, "Check")
	if err, ok := m.Errors["Check"]; ok {
		return err
	}
	if _, ok := m.Containers[containerPath]; !ok {
		return apkerr.Newf(apkerr.CodeArchiveOpen, "no such container: %s", containerPath)
	}
	return nil
}

// Contains reports whether a member exists.
func (m *MockArchiver) Contains(containerPath, name string) bool {
	m.Calls = append(m.Calls, "Contains")
	_, ok := m.find(containerPath, name)
	return ok
}

// Add appends a member.
func (m *MockArchiver) Add(containerPath string, src io.Reader, name string) error {
	m.Calls = append(m.Calls, "Add")
	if err, ok := m.Errors["Add"]; ok {
		return err
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	m.Put(containerPath, name, data)
	return nil
}

// ReadMember returns a member's content, enforcing the declared size.
func (m *MockArchiver) ReadMember(containerPath string, entry ports.Entry) ([]byte, error) {
	m.Calls = append(m.Calls, "ReadMember")
	if err, ok := m.Errors["ReadMember"]; ok {
		return nil, err
	}
	mem, ok := m.find(containerPath, entry.Name)
	if !ok {
		return nil, apkerr.New(apkerr.CodeMemberNotFound, "path does not exist in archive: "+entry.Name)
	}
	if mem.Declared != 0 && mem.Declared != uint64(len(mem.Content)) {
		return nil, apkerr.New(apkerr.CodeTruncatedRead, "short read: "+entry.Name)
	}
	out := make([]byte, len(mem.Content))
	copy(out, mem.Content)
	return out, nil
}

// Digest returns a fixed digest derived from the member name.
func (m *MockArchiver) Digest(containerPath string, entry ports.Entry) (string, error) {
	m.Calls = append(m.Calls, "Digest")
	if err, ok := m.Errors["Digest"]; ok {
		return "", err
	}
	if _, ok := m.find(containerPath, entry.Name); !ok {
		return "", apkerr.New(apkerr.CodeMemberNotFound, "path does not exist in archive: "+entry.Name)
	}
	return "digest:" + entry.Name, nil
}

func (m *MockArchiver) find(containerPath, name string) (MockMember, bool) {
	for _, mem := range m.Containers[containerPath] {
		if mem.Name == name {
			return mem, true
		}
	}
	return MockMember{}, false
}

// Compile-time check that MockArchiver implements ports.Archiver.
var _ ports.Archiver = (*MockArchiver)(nil)

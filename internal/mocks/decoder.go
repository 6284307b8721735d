package mocks

import (
	"github.com/mcdonaldj/apkpatch/internal/binxml"
	"github.com/mcdonaldj/apkpatch/internal/ports"
)

// MockDecoder implements ports.ManifestDecoder for testing. It ignores the
// input bytes and returns Document (or Err).
type MockDecoder struct {
	Document binxml.Document
	Err      error
	// Inputs records the bytes passed to each Decode call
	Inputs [][]byte
}

// Decode returns the configured document or error.
func (m *MockDecoder) Decode(data []byte) (binxml.Document, error) {
	m.Inputs = append(m.Inputs, data)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Document, nil
}

// Compile-time check that MockDecoder implements ports.ManifestDecoder.
var _ ports.ManifestDecoder = (*MockDecoder)(nil)

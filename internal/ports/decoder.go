package ports

import "github.com/mcdonaldj/apkpatch/internal/binxml"

// ManifestDecoder turns compiled (binary) XML bytes into a typed element
// document. Production code uses the axmldecoder adapter; tests use
// MockDecoder or binxml.Elements directly.
type ManifestDecoder interface {
	Decode(data []byte) (binxml.Document, error)
}

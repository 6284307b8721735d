// Package binxml walks a decoded compiled-XML document as a flat stream of
// typed elements.
//
// Decoding the binary format itself happens elsewhere (see
// ports.ManifestDecoder); this package only consumes the resulting element
// sequence, so it can be driven by synthetic sequences in tests.
package binxml

import (
	"iter"
	"slices"
)

// Element is one token of a decoded document. It is a closed sum type:
// the only implementations are StartTag, EndTag, CharData and Invalid.
type Element interface {
	element()
}

// Attr is a resolved attribute of a start tag.
type Attr struct {
	Space string // namespace URI, empty when unqualified
	Name  string
	Value string
}

// StartTag opens an element.
type StartTag struct {
	Name  string
	Attrs []Attr
}

// EndTag closes an element.
type EndTag struct {
	Name string
}

// CharData is text content; Tag names the innermost open element, if any.
type CharData struct {
	Tag  string
	Data string
}

// Invalid marks input the decoder could not make sense of. Err is
// human-readable and never nil.
type Invalid struct {
	Err error
}

func (StartTag) element() {}
func (EndTag) element()   {}
func (CharData) element() {}
func (Invalid) element()  {}

// Attr looks up an attribute by namespace URI and local name.
func (s StartTag) Attr(space, name string) (string, bool) {
	for _, a := range s.Attrs {
		if a.Space == space && a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Document is a decoded source. Each call to Elements starts a new pass
// over the document; a single pass cannot be rewound and must not be
// consumed from more than one goroutine.
type Document interface {
	Elements() iter.Seq[Element]
}

// Elements is an in-memory Document.
type Elements []Element

// Elements returns a pass over the slice in order.
func (e Elements) Elements() iter.Seq[Element] {
	return slices.Values(e)
}

// Package axmltest builds small Android compiled-XML documents for tests.
package axmltest

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

// AndroidNS is the namespace URI of android: attributes.
const AndroidNS = "http://schemas.android.com/apk/res/android"

const (
	nilRef uint32 = 0xFFFFFFFF

	typeXML            uint16 = 0x0003
	typeStringPool     uint16 = 0x0001
	typeStartNamespace uint16 = 0x0100
	typeEndNamespace   uint16 = 0x0101
	typeStartElement   uint16 = 0x0102
	typeEndElement     uint16 = 0x0103

	valueString  uint8 = 0x03
	valueIntDec  uint8 = 0x10
	valueBoolean uint8 = 0x12
)

// Attr is one attribute of a start element.
type Attr struct {
	NS   string
	Name string
	// Raw is the string value; empty means the attribute is typed only.
	Raw  string
	Type uint8
	Data uint32
}

// Bool is a boolean attribute.
func Bool(ns, name string, v bool) Attr {
	var data uint32
	if v {
		data = 0xFFFFFFFF
	}
	return Attr{NS: ns, Name: name, Type: valueBoolean, Data: data}
}

// String is a string attribute.
func String(ns, name, v string) Attr {
	return Attr{NS: ns, Name: name, Raw: v, Type: valueString}
}

// Int is a decimal integer attribute.
func Int(ns, name string, v uint32) Attr {
	return Attr{NS: ns, Name: name, Type: valueIntDec, Data: v}
}

// Builder accumulates chunks in document order.
type Builder struct {
	strings []string
	index   map[string]uint32
	chunks  bytes.Buffer
	line    uint32
}

// attributeNames lead the string pool the way aapt orders resource-mapped
// attribute names. androidbinary reads a namespace prefix at index 0 as
// unbound, so a prefix must never land there.
var attributeNames = []string{"versionCode", "versionName", "minSdkVersion", "debuggable", "label"}

// New returns a builder whose pool starts with the common android
// attribute names.
func New() *Builder {
	b := NewBare()
	for _, name := range attributeNames {
		b.ref(name)
	}
	return b
}

// NewBare returns a builder with an empty pool; strings are interned in
// the order the document first uses them.
func NewBare() *Builder {
	return &Builder{index: make(map[string]uint32)}
}

func (b *Builder) ref(s string) uint32 {
	if s == "" {
		return nilRef
	}
	if i, ok := b.index[s]; ok {
		return i
	}
	i := uint32(len(b.strings))
	b.strings = append(b.strings, s)
	b.index[s] = i
	return i
}

func (b *Builder) node(typ uint16, size int) {
	b.line++
	w := &b.chunks
	put(w, typ)
	put(w, uint16(16))
	put(w, uint32(size))
	put(w, b.line)
	put(w, nilRef)
}

// StartNamespace declares prefix for uri until the matching EndNamespace.
func (b *Builder) StartNamespace(prefix, uri string) *Builder {
	p, u := b.ref(prefix), b.ref(uri)
	b.node(typeStartNamespace, 24)
	put(&b.chunks, p)
	put(&b.chunks, u)
	return b
}

// EndNamespace closes a namespace declaration.
func (b *Builder) EndNamespace(prefix, uri string) *Builder {
	p, u := b.ref(prefix), b.ref(uri)
	b.node(typeEndNamespace, 24)
	put(&b.chunks, p)
	put(&b.chunks, u)
	return b
}

// Start opens an element.
func (b *Builder) Start(name string, attrs ...Attr) *Builder {
	nameRef := b.ref(name)
	type resolved struct {
		ns, name, raw uint32
		typ           uint8
		data          uint32
	}
	rs := make([]resolved, 0, len(attrs))
	for _, a := range attrs {
		r := resolved{ns: b.ref(a.NS), name: b.ref(a.Name), raw: nilRef, typ: a.Type, data: a.Data}
		if a.Raw != "" {
			r.raw = b.ref(a.Raw)
			r.data = r.raw
		}
		rs = append(rs, r)
	}

	b.node(typeStartElement, 16+20+20*len(attrs))
	w := &b.chunks
	put(w, nilRef)
	put(w, nameRef)
	put(w, uint16(20)) // attributeStart
	put(w, uint16(20)) // attributeSize
	put(w, uint16(len(attrs)))
	put(w, uint16(0)) // idIndex
	put(w, uint16(0)) // classIndex
	put(w, uint16(0)) // styleIndex
	for _, r := range rs {
		put(w, r.ns)
		put(w, r.name)
		put(w, r.raw)
		put(w, uint16(8))
		put(w, uint8(0))
		put(w, r.typ)
		put(w, r.data)
	}
	return b
}

// End closes an element.
func (b *Builder) End(name string) *Builder {
	nameRef := b.ref(name)
	b.node(typeEndElement, 24)
	put(&b.chunks, nilRef)
	put(&b.chunks, nameRef)
	return b
}

// Bytes returns the complete compiled document.
func (b *Builder) Bytes() []byte {
	pool := b.stringPool()

	var out bytes.Buffer
	put(&out, typeXML)
	put(&out, uint16(8))
	put(&out, uint32(8+len(pool)+b.chunks.Len()))
	out.Write(pool)
	out.Write(b.chunks.Bytes())
	return out.Bytes()
}

// stringPool encodes the interned strings as a UTF-16 pool chunk.
func (b *Builder) stringPool() []byte {
	var data bytes.Buffer
	offsets := make([]uint32, 0, len(b.strings))
	for _, s := range b.strings {
		offsets = append(offsets, uint32(data.Len()))
		units := utf16.Encode([]rune(s))
		put(&data, uint16(len(units)))
		put(&data, units)
		put(&data, uint16(0))
	}
	for data.Len()%4 != 0 {
		data.WriteByte(0)
	}

	const headerSize = 28
	stringsStart := headerSize + 4*len(offsets)

	var out bytes.Buffer
	put(&out, typeStringPool)
	put(&out, uint16(headerSize))
	put(&out, uint32(stringsStart+data.Len()))
	put(&out, uint32(len(offsets)))
	put(&out, uint32(0)) // styleCount
	put(&out, uint32(0)) // flags: UTF-16
	put(&out, uint32(stringsStart))
	put(&out, uint32(0)) // stylesStart
	put(&out, offsets)
	out.Write(data.Bytes())
	return out.Bytes()
}

func put(w *bytes.Buffer, v interface{}) {
	// bytes.Buffer writes never fail.
	_ = binary.Write(w, binary.LittleEndian, v)
}

// Manifest returns a minimal manifest: a manifest element holding an
// application element with the given attributes.
func Manifest(appAttrs ...Attr) []byte {
	return New().
		StartNamespace("android", AndroidNS).
		Start("manifest", String("", "package", "com.example.app")).
		Start("uses-sdk", Int(AndroidNS, "minSdkVersion", 21)).
		End("uses-sdk").
		Start("application", appAttrs...).
		End("application").
		End("manifest").
		EndNamespace("android", AndroidNS).
		Bytes()
}

// Package axmldecoder decodes Android compiled (binary) XML into a binxml
// element document.
//
// The binary chunks are rendered to text by github.com/shogo82148/androidbinary;
// each pass over the document then tokenizes that text with encoding/xml.
package axmldecoder

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	"github.com/shogo82148/androidbinary"

	"github.com/mcdonaldj/apkpatch/internal/binxml"
	"github.com/mcdonaldj/apkpatch/internal/ports"
)

// Decoder implements ports.ManifestDecoder.
type Decoder struct {
	logger *slog.Logger
}

// New creates a new Decoder.
func New(logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Decoder{logger: logger}
}

// Decode parses compiled XML. Errors in the chunk structure fail here;
// errors in the rendered document surface as binxml.Invalid elements
// during a pass.
func (d *Decoder) Decode(data []byte) (doc binxml.Document, err error) {
	if len(data) == 0 {
		return nil, errors.New("empty compiled xml")
	}

	// androidbinary indexes string pools without bounds checks.
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("decoding compiled xml: %v", r)
		}
	}()

	f, err := androidbinary.NewXMLFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decoding compiled xml: %w", err)
	}

	text, err := io.ReadAll(f.Reader())
	if err != nil {
		return nil, fmt.Errorf("reading decoded xml: %w", err)
	}

	d.logger.Debug("decoded compiled xml", "binary_bytes", len(data), "text_bytes", len(text))
	return &document{text: text}, nil
}

// document is the rendered text; every pass re-tokenizes it.
type document struct {
	text []byte
}

// Elements tokenizes the document. Whitespace-only text, comments and
// processing instructions are skipped. A tokenizer error yields one
// Invalid element and ends the pass.
func (d *document) Elements() iter.Seq[binxml.Element] {
	return func(yield func(binxml.Element) bool) {
		dec := xml.NewDecoder(bytes.NewReader(d.text))
		var open []string

		for {
			tok, err := dec.Token()
			if err == io.EOF {
				if len(open) > 0 {
					yield(binxml.Invalid{Err: fmt.Errorf("unexpected end of document inside <%s>", open[len(open)-1])})
				}
				return
			}
			if err != nil {
				yield(binxml.Invalid{Err: err})
				return
			}

			var el binxml.Element
			switch t := tok.(type) {
			case xml.StartElement:
				open = append(open, t.Name.Local)
				el = binxml.StartTag{Name: t.Name.Local, Attrs: convertAttrs(t.Attr)}
			case xml.EndElement:
				open = open[:len(open)-1]
				el = binxml.EndTag{Name: t.Name.Local}
			case xml.CharData:
				if len(bytes.TrimSpace(t)) == 0 {
					continue
				}
				tag := ""
				if len(open) > 0 {
					tag = open[len(open)-1]
				}
				el = binxml.CharData{Tag: tag, Data: string(t)}
			default:
				continue
			}

			if !yield(el) {
				return
			}
		}
	}
}

func convertAttrs(attrs []xml.Attr) []binxml.Attr {
	if len(attrs) == 0 {
		return nil
	}
	out := make([]binxml.Attr, 0, len(attrs))
	for _, a := range attrs {
		if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
			continue
		}
		out = append(out, binxml.Attr{
			Space: a.Name.Space,
			Name:  a.Name.Local,
			Value: a.Value,
		})
	}
	return out
}

// Compile-time check that Decoder implements ports.ManifestDecoder.
var _ ports.ManifestDecoder = (*Decoder)(nil)

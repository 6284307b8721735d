package binxml

import (
	"fmt"
	"iter"
	"strings"
)

// knownPrefixes maps namespace URIs to the prefixes Outline prints.
var knownPrefixes = map[string]string{
	"http://schemas.android.com/apk/res/android": "android",
	"http://schemas.android.com/tools":           "tools",
	"http://schemas.android.com/apk/res-auto":    "app",
}

// Outline renders a pass as indented pseudo-XML with one tag or text run
// per line. Invalid elements are rendered as comments; rendering never
// stops early.
func Outline(seq iter.Seq[Element]) string {
	var b strings.Builder
	depth := 0
	indent := func() { b.WriteString(strings.Repeat("  ", depth)) }

	// The callbacks never fail, so neither does Traverse.
	_ = Traverse(seq, Visitor{
		OnStart: func(st StartTag) error {
			indent()
			b.WriteString("<" + st.Name)
			for _, a := range st.Attrs {
				fmt.Fprintf(&b, " %s=%q", attrName(a), a.Value)
			}
			b.WriteString(">\n")
			depth++
			return nil
		},
		OnEnd: func(et EndTag) error {
			if depth > 0 {
				depth--
			}
			indent()
			b.WriteString("</" + et.Name + ">\n")
			return nil
		},
		OnCharData: func(cd CharData) error {
			text := strings.TrimSpace(cd.Data)
			if text == "" {
				return nil
			}
			indent()
			b.WriteString(text + "\n")
			return nil
		},
		OnInvalid: func(inv Invalid) error {
			indent()
			fmt.Fprintf(&b, "<!-- invalid: %v -->\n", inv.Err)
			return nil
		},
	})
	return b.String()
}

func attrName(a Attr) string {
	if a.Space == "" {
		return a.Name
	}
	if p, ok := knownPrefixes[a.Space]; ok {
		return p + ":" + a.Name
	}
	return a.Space + ":" + a.Name
}

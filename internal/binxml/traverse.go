package binxml

import (
	"fmt"
	"iter"
)

// Visitor receives elements from Traverse. Nil callbacks are skipped.
//
// A non-nil error from any callback stops the traversal. In particular
// Traverse does not stop on Invalid elements by itself: OnInvalid decides
// whether malformed input is fatal.
type Visitor struct {
	OnStart    func(StartTag) error
	OnEnd      func(EndTag) error
	OnCharData func(CharData) error
	OnInvalid  func(Invalid) error
}

// Traverse pulls every element of seq in order and hands it to the matching
// visitor callback. It returns the first callback error unchanged.
func Traverse(seq iter.Seq[Element], v Visitor) error {
	for el := range seq {
		if err := v.visit(el); err != nil {
			return err
		}
	}
	return nil
}

func (v Visitor) visit(el Element) error {
	switch el := el.(type) {
	case StartTag:
		if v.OnStart != nil {
			return v.OnStart(el)
		}
	case EndTag:
		if v.OnEnd != nil {
			return v.OnEnd(el)
		}
	case CharData:
		if v.OnCharData != nil {
			return v.OnCharData(el)
		}
	case Invalid:
		if v.OnInvalid != nil {
			return v.OnInvalid(el)
		}
	default:
		return fmt.Errorf("unknown element type %T", el)
	}
	return nil
}

// HasElement reports whether seq contains a start or end tag named tag.
// It stops reading at the first match.
func HasElement(seq iter.Seq[Element], tag string) bool {
	for el := range seq {
		switch el := el.(type) {
		case StartTag:
			if el.Name == tag {
				return true
			}
		case EndTag:
			if el.Name == tag {
				return true
			}
		}
	}
	return false
}

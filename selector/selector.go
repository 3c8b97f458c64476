// Package selector resolves the five drover addressing grammars (css,
// xpath, id, name, class) into concrete element lookups against a
// page.Page. Parsing is pure and deterministic; lookups report failures
// through a strict three-way error taxonomy (see errors.go).
package selector

import "strings"

// Type is the closed set of selector grammars. The handler table in
// engine.go is indexed by Type, so adding a grammar without a handler
// is a compile-time hole, not a runtime map miss.
type Type int

const (
	TypeCSS Type = iota
	TypeXPath
	TypeID
	TypeName
	TypeClass

	numTypes
)

var typeNames = [numTypes]string{
	TypeCSS:   "css",
	TypeXPath: "xpath",
	TypeID:    "id",
	TypeName:  "name",
	TypeClass: "class",
}

func (t Type) String() string {
	if t < 0 || t >= numTypes {
		return "unknown"
	}
	return typeNames[t]
}

// Spec is a parsed selector: grammar plus the bare value, stripped of
// any prefix or shorthand marker. Specs are ephemeral, built per lookup
// and never stored.
type Spec struct {
	Type  Type
	Value string
}

// Normalized returns the value in the form the page collaborator
// understands: id gains a leading '#', class a leading '.', name is
// wrapped as [name="…"], css and xpath pass through unchanged.
func (s Spec) Normalized() string {
	switch s.Type {
	case TypeID:
		if strings.HasPrefix(s.Value, "#") {
			return s.Value
		}
		return "#" + s.Value
	case TypeClass:
		if strings.HasPrefix(s.Value, ".") {
			return s.Value
		}
		return "." + s.Value
	case TypeName:
		if strings.HasPrefix(s.Value, `[name="`) {
			return s.Value
		}
		return `[name="` + s.Value + `"]`
	default:
		return s.Value
	}
}

// Parse turns a raw selector string into a Spec.
//
// Grammar:
//
//	selector := prefixed | shorthand | bare
//	prefixed := ("css:"|"xpath:"|"id:"|"name:"|"class:") value
//	shorthand := "#" value | "." value | "[name=\"" value "\"]"
//	bare      := value            // treated as css
//
// A bare value containing ':' is rejected as an unsupported type even
// when the part before the colon is not a grammar keyword. That
// strictness is part of the contract; do not relax it.
func Parse(raw string) (Spec, error) {
	if raw == "" {
		return Spec{}, &InvalidError{Selector: raw, Reason: "selector must be a non-empty string"}
	}

	for t, name := range typeNames {
		prefix := name + ":"
		if !strings.HasPrefix(raw, prefix) {
			continue
		}
		value := raw[len(prefix):]
		if value == "" {
			return Spec{}, &InvalidError{Selector: raw, Reason: "selector value must not be empty"}
		}
		switch Type(t) {
		case TypeCSS:
			if !validCSS(value) {
				return Spec{}, &InvalidError{Selector: raw, Reason: "malformed css selector"}
			}
		case TypeXPath:
			if !validXPath(value) {
				return Spec{}, &InvalidError{Selector: raw, Reason: "malformed xpath selector"}
			}
		}
		return Spec{Type: Type(t), Value: value}, nil
	}

	switch {
	case strings.HasPrefix(raw, `[name=`) && strings.HasSuffix(raw, `]`):
		value := strings.Trim(raw[6:len(raw)-1], `"`)
		if value == "" {
			return Spec{}, &InvalidError{Selector: raw, Reason: "selector value must not be empty"}
		}
		return Spec{Type: TypeName, Value: value}, nil
	case strings.HasPrefix(raw, "#"):
		if len(raw) == 1 {
			return Spec{}, &InvalidError{Selector: raw, Reason: "selector value must not be empty"}
		}
		return Spec{Type: TypeID, Value: raw[1:]}, nil
	case strings.HasPrefix(raw, "."):
		if len(raw) == 1 {
			return Spec{}, &InvalidError{Selector: raw, Reason: "selector value must not be empty"}
		}
		return Spec{Type: TypeClass, Value: raw[1:]}, nil
	case strings.Contains(raw, ":"):
		return Spec{}, &InvalidError{Selector: raw, Reason: "unsupported selector type"}
	}

	return Spec{Type: TypeCSS, Value: raw}, nil
}

// validCSS is a cheap plausibility check, not a full CSS parser: the
// value must use at least one selector construct and keep attribute
// brackets balanced.
func validCSS(value string) bool {
	if !strings.ContainsAny(value, "#.[]:>") {
		return false
	}
	return strings.Count(value, "[") == strings.Count(value, "]")
}

// validXPath checks the two anchors the engine relies on: an absolute
// or grouped path, and at least one predicate construct with balanced
// brackets.
func validXPath(value string) bool {
	if !strings.HasPrefix(value, "//") && !strings.HasPrefix(value, "(") {
		return false
	}
	if !strings.ContainsAny(value, "@=[]") {
		return false
	}
	return strings.Count(value, "[") == strings.Count(value, "]")
}

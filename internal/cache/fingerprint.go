package cache

import (
	"sort"
	"strconv"
	"strings"
)

// valueKind discriminates the typed argument values used in fingerprints.
type valueKind int

const (
	kindNil valueKind = iota
	kindString
	kindNumber
	kindInt
)

// Value is a typed tool-argument value. An unset argument is the nil value so
// that "unset" and "set to empty string" fingerprint differently.
type Value struct {
	kind valueKind
	str  string
	num  float64
	i    int64
}

// Nil returns the unset-argument value, rendered as the literal "nil" marker.
func Nil() Value { return Value{kind: kindNil} }

// String returns a string-typed argument value.
func String(s string) Value { return Value{kind: kindString, str: s} }

// Number returns a float-typed argument value.
func Number(f float64) Value { return Value{kind: kindNumber, num: f} }

// Int returns an integer-typed argument value.
func Int(i int64) Value { return Value{kind: kindInt, i: i} }

// IsNil reports whether the value is the unset marker.
func (v Value) IsNil() bool { return v.kind == kindNil }

// render returns the canonical string form of the value used in fingerprints.
func (v Value) render() string {
	switch v.kind {
	case kindString:
		return v.str
	case kindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case kindInt:
		return strconv.FormatInt(v.i, 10)
	default:
		return "nil"
	}
}

// Arg is one named tool argument.
type Arg struct {
	// Name is the argument name as declared in the tool schema.
	Name string
	// Value is the typed argument value; Nil() for unset.
	Value Value
}

// Fingerprint builds the canonical cache key for a tool invocation: the tool
// name followed by each argument as "name:value" (or "name:nil"), arguments
// sorted ascending by name, components pipe-joined. The result is stable
// regardless of the order args were supplied in.
func Fingerprint(toolName string, args []Arg) string {
	sorted := make([]Arg, len(args))
	copy(sorted, args)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	parts := make([]string, 0, len(sorted)+1)
	parts = append(parts, toolName)
	for _, a := range sorted {
		parts = append(parts, a.Name+":"+a.Value.render())
	}
	return strings.Join(parts, "|")
}

// Copyright 2025 Arion Yau
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package schema validates the top-level fields of a request against the
// ordered field declarations of an action.
package schema

import (
	"fmt"
	"sort"
)

// Kind is the JSON kind a field must carry.
type Kind int

const (
	String Kind = iota
	// Integer is an integral number that fits in 32 signed bits.
	Integer
	// Unsigned is an integral number that must be >= 0 and fit in 32 bits.
	Unsigned
	Boolean
)

func (k Kind) String() string {
	switch k {
	case String:
		return "string"
	case Integer:
		return "integer"
	case Unsigned:
		return "non-negative integer"
	case Boolean:
		return "boolean"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FieldSpec declares one field of an action.
type FieldSpec struct {
	Name     string
	Kind     Kind
	Required bool
	// Enum maps a String field through a closed table. Unknown strings are
	// rejected.
	Enum *Enumeration
	// Max bounds an Unsigned field when non-zero.
	Max uint32
}

// Required declares a mandatory field.
func Required(name string, kind Kind) FieldSpec {
	return FieldSpec{Name: name, Kind: kind, Required: true}
}

// Optional declares a field that may be omitted or null.
func Optional(name string, kind Kind) FieldSpec {
	return FieldSpec{Name: name, Kind: kind}
}

// OneOf declares a mandatory string field mapped through enum.
func OneOf(name string, enum *Enumeration) FieldSpec {
	return FieldSpec{Name: name, Kind: String, Required: true, Enum: enum}
}

// AtMost returns a copy of s bounded to max.
func (s FieldSpec) AtMost(max uint32) FieldSpec {
	s.Max = max
	return s
}

// Optional returns a copy of s that may be omitted.
func (s FieldSpec) Optional() FieldSpec {
	s.Required = false
	return s
}

// EnumValue is one entry of an Enumeration.
type EnumValue struct {
	Name    string
	Value   int
	Aliases []string
}

// Enumeration is a closed string to value table.
type Enumeration struct {
	lookup map[string]int
	names  map[int]string
	order  []string
}

// NewEnumeration builds a table from its entries. Aliases resolve to the
// same value as the canonical name but are not listed by Names.
func NewEnumeration(values ...EnumValue) *Enumeration {
	e := &Enumeration{
		lookup: make(map[string]int, len(values)*2),
		names:  make(map[int]string, len(values)),
		order:  make([]string, 0, len(values)),
	}
	for _, v := range values {
		e.lookup[v.Name] = v.Value
		for _, alias := range v.Aliases {
			e.lookup[alias] = v.Value
		}
		if _, ok := e.names[v.Value]; !ok {
			e.names[v.Value] = v.Name
		}
		e.order = append(e.order, v.Name)
	}
	return e
}

// Lookup resolves a name or alias.
func (e *Enumeration) Lookup(name string) (int, bool) {
	v, ok := e.lookup[name]
	return v, ok
}

// Name returns the canonical name of value.
func (e *Enumeration) Name(value int) (string, bool) {
	n, ok := e.names[value]
	return n, ok
}

// Names lists canonical names in sorted order.
func (e *Enumeration) Names() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	sort.Strings(out)
	return out
}

// Error is a validation failure for a single field.
type Error struct {
	Field   string
	Missing bool
	Reason  string
}

func (e *Error) Error() string {
	if e.Missing {
		return "missing field: " + e.Field
	}
	return fmt.Sprintf("invalid field: %s: %s", e.Field, e.Reason)
}

func missing(field string) *Error {
	return &Error{Field: field, Missing: true}
}

func invalid(field, format string, args ...interface{}) *Error {
	return &Error{Field: field, Reason: fmt.Sprintf(format, args...)}
}

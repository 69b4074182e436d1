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

// Package dispatch maps action names to their field declarations,
// authorization requirement and handler.
package dispatch

import (
	"context"
	"sort"

	"envyd/internal/device"
	"envyd/internal/protocol"
	"envyd/internal/schema"
)

// Result is what a handler produced. An empty Description encodes as null.
type Result struct {
	Data        interface{}
	Status      string
	Description string
}

// Success wraps data in a SUCCESS result.
func Success(data interface{}) Result {
	return Result{Data: data, Status: device.Success.String()}
}

// Handler runs one action. ref is the zero Ref for actions that do not need
// a device. Errors are *device.Error, *device.FatalError or *schema.Error.
type Handler func(ctx context.Context, m *device.Manager, ref device.Ref, f schema.Fields) (Result, error)

// Entry is one row of the dispatch table.
type Entry struct {
	Name   string
	Fields []schema.FieldSpec
	// Privileged actions mutate device state and pass the authorization
	// gate before the handler runs.
	Privileged bool
	// NeedsDevice actions declare a uuid field that is resolved to a Ref
	// before the handler runs.
	NeedsDevice bool
	Handler     Handler
	// Describe renders the validated request for a person approving it.
	Describe func(f schema.Fields) string
}

// Description returns the human-readable summary of a validated request.
func (e *Entry) Description(f schema.Fields) string {
	if e.Describe == nil {
		return e.Name
	}
	return e.Describe(f)
}

// Table is a closed set of actions. It is read-only after construction.
type Table struct {
	entries map[string]*Entry
}

// NewTable builds a table. A later entry replaces an earlier one with the
// same name.
func NewTable(entries ...Entry) *Table {
	t := &Table{entries: make(map[string]*Entry, len(entries))}
	for i := range entries {
		e := entries[i]
		t.entries[e.Name] = &e
	}
	return t
}

// Resolve looks up an action by exact, case-sensitive name.
func (t *Table) Resolve(name string) (*Entry, bool) {
	e, ok := t.entries[name]
	return e, ok
}

// Names lists the actions in sorted order.
func (t *Table) Names() []string {
	names := make([]string, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of actions.
func (t *Table) Len() int {
	return len(t.entries)
}

// deviceAction declares an action against one device. The uuid field always
// comes first so a request missing everything reports the uuid.
func deviceAction(name string, privileged bool, h Handler, fields ...schema.FieldSpec) Entry {
	specs := make([]schema.FieldSpec, 0, len(fields)+1)
	specs = append(specs, schema.Required(protocol.FieldUUID, schema.String))
	specs = append(specs, fields...)
	return Entry{
		Name:        name,
		Fields:      specs,
		Privileged:  privileged,
		NeedsDevice: true,
		Handler:     h,
	}
}

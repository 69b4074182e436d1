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

// Package device is the boundary to the GPU device management library.
//
// Library is the collaborator contract: lifecycle, enumeration, and a
// generic Get/Set pair. Manager wraps a Library, serialises calls when the
// library is not safe for concurrent use, and classifies every returned
// status as success, recoverable (*Error), or fatal (*FatalError).
package device

import (
	"fmt"
)

// Ref is an opaque handle to one device, valid for a single request.
type Ref struct {
	uuid   string
	handle interface{}
}

// NewRef is used by Library implementations to mint handles.
func NewRef(uuid string, handle interface{}) Ref {
	return Ref{uuid: uuid, handle: handle}
}

// UUID is the identifier the handle was resolved from, if any.
func (r Ref) UUID() string { return r.uuid }

// Handle returns the implementation-specific handle.
func (r Ref) Handle() interface{} { return r.handle }

// Library is the device management library.
type Library interface {
	Init() Return
	Shutdown() Return
	DeviceCount() (uint32, Return)
	HandleByIndex(index uint32) (Ref, Return)
	HandleByUUID(uuid string) (Ref, Return)
	// Get performs a query. The concrete type of the value is documented on
	// each Query type.
	Get(ref Ref, q Query) (interface{}, Return)
	Set(ref Ref, c Command) Return
}

// ConcurrentSafe is implemented by libraries that may be called from several
// goroutines at once. Manager serialises calls into any other Library.
type ConcurrentSafe interface {
	ConcurrentSafe() bool
}

// Error is a recoverable library failure. It is reported to the client as
// the status name and the daemon keeps serving.
type Error struct {
	Op     string
	UUID   string
	Status Return
}

func (e *Error) Error() string {
	if e.UUID != "" {
		return fmt.Sprintf("%s on %s: %s", e.Op, e.UUID, e.Status.Description())
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Status.Description())
}

// FatalError means the library is in a state the daemon cannot trust. It is
// never reported to a client; the supervisor shuts the process down.
type FatalError struct {
	Op     string
	UUID   string
	Status Return
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal device library status %s (%d) from %s uuid=%q",
		e.Status, int(e.Status), e.Op, e.UUID)
}

// Classify turns a status into nil, *Error, or *FatalError.
func Classify(op, uuid string, status Return) error {
	switch {
	case status.IsSuccess():
		return nil
	case status.IsRecoverable():
		return &Error{Op: op, UUID: uuid, Status: status}
	default:
		return &FatalError{Op: op, UUID: uuid, Status: status}
	}
}

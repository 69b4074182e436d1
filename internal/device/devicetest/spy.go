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

// Package devicetest provides a recording device.Library for tests.
package devicetest

import (
	"sync"

	"envyd/internal/device"
)

// Call is one recorded library invocation.
type Call struct {
	Op   string
	UUID string
	Arg  interface{}
}

// Spy is a scripted device.Library that records every call. Queries with no
// scripted value report ERROR_NOT_SUPPORTED.
type Spy struct {
	mu       sync.Mutex
	uuids    []string
	values   map[string]interface{}
	perUUID  map[[2]string]interface{}
	statuses map[string]device.Return
	calls    []Call
}

// New creates a spy serving the given device UUIDs.
func New(uuids ...string) *Spy {
	return &Spy{
		uuids:    uuids,
		values:   make(map[string]interface{}),
		perUUID:  make(map[[2]string]interface{}),
		statuses: make(map[string]device.Return),
	}
}

// Value scripts the result of a query, keyed by its type name.
func (s *Spy) Value(op string, v interface{}) *Spy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[op] = v
	return s
}

// DeviceValue scripts the result of a query for one device only.
func (s *Spy) DeviceValue(op, uuid string, v interface{}) *Spy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.perUUID[[2]string{op, uuid}] = v
	return s
}

// Status scripts the status of any operation, keyed by its name.
func (s *Spy) Status(op string, r device.Return) *Spy {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[op] = r
	return s
}

// Calls returns a copy of the recorded calls.
func (s *Spy) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// Ops returns the names of the recorded calls in order.
func (s *Spy) Ops() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	for i, c := range s.calls {
		out[i] = c.Op
	}
	return out
}

// Reset forgets recorded calls but keeps the script.
func (s *Spy) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

func (s *Spy) record(op, uuid string, arg interface{}) device.Return {
	s.calls = append(s.calls, Call{Op: op, UUID: uuid, Arg: arg})
	if r, ok := s.statuses[op]; ok {
		return r
	}
	return device.Success
}

func (s *Spy) Init() device.Return {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("Init", "", nil)
}

func (s *Spy) Shutdown() device.Return {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record("Shutdown", "", nil)
}

func (s *Spy) DeviceCount() (uint32, device.Return) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint32(len(s.uuids)), s.record("DeviceCount", "", nil)
}

func (s *Spy) HandleByIndex(index uint32) (device.Ref, device.Return) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record("HandleByIndex", "", index)
	if r != device.Success {
		return device.Ref{}, r
	}
	if int(index) >= len(s.uuids) {
		return device.Ref{}, device.ErrorInvalidArgument
	}
	return device.NewRef(s.uuids[index], index), device.Success
}

func (s *Spy) HandleByUUID(uuid string) (device.Ref, device.Return) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.record("HandleByUUID", uuid, uuid)
	if r != device.Success {
		return device.Ref{}, r
	}
	for i, id := range s.uuids {
		if id == uuid {
			return device.NewRef(id, i), device.Success
		}
	}
	return device.Ref{}, device.ErrorNotFound
}

func (s *Spy) Get(ref device.Ref, q device.Query) (interface{}, device.Return) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := device.OpName(q)
	if r := s.record(op, ref.UUID(), q); r != device.Success {
		return nil, r
	}
	if v, ok := s.perUUID[[2]string{op, ref.UUID()}]; ok {
		return v, device.Success
	}
	v, ok := s.values[op]
	if !ok {
		return nil, device.ErrorNotSupported
	}
	return v, device.Success
}

func (s *Spy) Set(ref device.Ref, c device.Command) device.Return {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record(device.OpName(c), ref.UUID(), c)
}

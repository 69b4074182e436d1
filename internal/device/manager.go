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

package device

import (
	"fmt"
	"sync"
	"time"

	"envyd/internal/logger"

	"github.com/rs/zerolog"
)

// Observer is notified after every library call.
type Observer func(op string, status Return, elapsed time.Duration)

// Manager manages the lifecycle of and access to the device library
type Manager struct {
	lib      Library
	mutex    sync.Mutex
	serial   bool
	logger   zerolog.Logger
	observer Observer
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// AlwaysSerialize funnels calls through the lock even when the library
// reports itself safe for concurrent use.
func AlwaysSerialize() ManagerOption {
	return func(m *Manager) { m.serial = true }
}

// NewManager creates a new device manager
func NewManager(lib Library, opts ...ManagerOption) *Manager {
	serial := true
	if cs, ok := lib.(ConcurrentSafe); ok && cs.ConcurrentSafe() {
		serial = false
	}
	m := &Manager{
		lib:    lib,
		serial: serial,
		logger: logger.GetLogger("device"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetObserver installs a hook called after every library call.
func (m *Manager) SetObserver(o Observer) {
	m.observer = o
}

// Serialized reports whether calls are funnelled through one lock.
func (m *Manager) Serialized() bool {
	return m.serial
}

func (m *Manager) call(op string, fn func() Return) Return {
	if m.serial {
		m.mutex.Lock()
		defer m.mutex.Unlock()
	}

	start := time.Now()
	status := fn()
	elapsed := time.Since(start)

	m.logger.Debug().
		Str("op", op).
		Str("status", status.String()).
		Dur("duration", elapsed).
		Msg("Device library call")

	if m.observer != nil {
		m.observer(op, status, elapsed)
	}
	return status
}

// Initialize brings the library up and logs what it sees
func (m *Manager) Initialize() error {
	if err := Classify("Init", "", m.call("Init", m.lib.Init)); err != nil {
		return fmt.Errorf("failed to initialize device library: %w", err)
	}

	count, err := m.Count()
	if err != nil {
		return fmt.Errorf("failed to count devices: %w", err)
	}

	m.logger.Info().
		Uint32("device_count", count).
		Bool("serialized", m.serial).
		Msg("Device library initialized")
	return nil
}

// Shutdown tears the library down. It is safe to call after a fatal error.
func (m *Manager) Shutdown() error {
	status := m.call("Shutdown", m.lib.Shutdown)
	if !status.IsSuccess() {
		return fmt.Errorf("failed to shut down device library: %s", status)
	}
	m.logger.Info().Msg("Device library shut down")
	return nil
}

// Count returns the number of devices.
func (m *Manager) Count() (uint32, error) {
	var n uint32
	status := m.call("DeviceCount", func() Return {
		var r Return
		n, r = m.lib.DeviceCount()
		return r
	})
	return n, Classify("DeviceCount", "", status)
}

// ByIndex resolves the device at index.
func (m *Manager) ByIndex(index uint32) (Ref, error) {
	var ref Ref
	status := m.call("HandleByIndex", func() Return {
		var r Return
		ref, r = m.lib.HandleByIndex(index)
		return r
	})
	return ref, Classify("HandleByIndex", fmt.Sprintf("index %d", index), status)
}

// Resolve turns a client supplied UUID into a handle for this request only.
func (m *Manager) Resolve(uuid string) (Ref, error) {
	var ref Ref
	status := m.call("HandleByUUID", func() Return {
		var r Return
		ref, r = m.lib.HandleByUUID(uuid)
		return r
	})
	return ref, Classify("HandleByUUID", uuid, status)
}

// Get runs a query against ref.
func (m *Manager) Get(ref Ref, q Query) (interface{}, error) {
	op := OpName(q)
	var v interface{}
	status := m.call(op, func() Return {
		var r Return
		v, r = m.lib.Get(ref, q)
		return r
	})
	if err := Classify(op, ref.UUID(), status); err != nil {
		return nil, err
	}
	return v, nil
}

// Set runs a command against ref.
func (m *Manager) Set(ref Ref, c Command) error {
	op := OpName(c)
	status := m.call(op, func() Return { return m.lib.Set(ref, c) })
	return Classify(op, ref.UUID(), status)
}

// Value is Get with the result asserted to T. A library returning the wrong
// type for a query is treated as fatal.
func Value[T any](m *Manager, ref Ref, q Query) (T, error) {
	var zero T
	v, err := m.Get(ref, q)
	if err != nil {
		return zero, err
	}
	t, ok := v.(T)
	if !ok {
		m.logger.Error().
			Str("op", OpName(q)).
			Str("type", fmt.Sprintf("%T", v)).
			Msg("Device library returned an unexpected type")
		return zero, &FatalError{Op: OpName(q), UUID: ref.UUID(), Status: ErrorUnknown}
	}
	return t, nil
}

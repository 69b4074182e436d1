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
	"reflect"
)

// Query is a read against one device. Each query documents the concrete
// type Library.Get returns for it.
type Query interface {
	query()
}

// Command is a write against one device.
type Command interface {
	command()
}

// OpName is the type name of a query or command, used in logs and errors.
func OpName(op interface{}) string {
	t := reflect.TypeOf(op)
	if t == nil {
		return "<nil>"
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t.Name()
}

// Queries.
type (
	// GetName returns string.
	GetName struct{}
	// GetUUID returns string.
	GetUUID struct{}
	// GetGspFirmwareVersion returns string.
	GetGspFirmwareVersion struct{}
	// GetGspFirmwareMode returns GspFirmwareMode.
	GetGspFirmwareMode struct{}
	// GetMemoryInfo returns Memory.
	GetMemoryInfo struct{}
	// GetTemperature returns uint32 degrees C.
	GetTemperature struct{ Sensor TemperatureSensor }
	// GetTemperatureThreshold returns uint32 degrees C.
	GetTemperatureThreshold struct{ Threshold TemperatureThreshold }
	// GetThermalSettings returns ThermalSettings.
	GetThermalSettings struct{ SensorIndex uint32 }
	// GetClockInfo returns uint32 MHz.
	GetClockInfo struct{ Type ClockType }
	// GetMaxClockInfo returns uint32 MHz.
	GetMaxClockInfo struct{ Type ClockType }
	// GetClock returns uint32 MHz.
	GetClock struct {
		Type ClockType
		ID   ClockID
	}
	// GetMinMaxClockOfPState returns ClockRange.
	GetMinMaxClockOfPState struct {
		Type   ClockType
		Pstate Pstate
	}
	// GetPerformanceState returns Pstate.
	GetPerformanceState struct{}
	// GetPowerUsage returns uint32 milliwatts.
	GetPowerUsage struct{}
	// GetPowerManagementLimit returns uint32 milliwatts.
	GetPowerManagementLimit struct{}
	// GetPowerManagementLimitConstraints returns PowerLimits.
	GetPowerManagementLimitConstraints struct{}
	// GetNumFans returns uint32.
	GetNumFans struct{}
	// GetFanSpeed returns uint32 percent.
	GetFanSpeed struct{ Fan uint32 }
	// GetAPIRestriction returns EnableState.
	GetAPIRestriction struct{ API RestrictedAPI }
)

func (GetName) query()                            {}
func (GetUUID) query()                            {}
func (GetGspFirmwareVersion) query()              {}
func (GetGspFirmwareMode) query()                 {}
func (GetMemoryInfo) query()                      {}
func (GetTemperature) query()                     {}
func (GetTemperatureThreshold) query()            {}
func (GetThermalSettings) query()                 {}
func (GetClockInfo) query()                       {}
func (GetMaxClockInfo) query()                    {}
func (GetClock) query()                           {}
func (GetMinMaxClockOfPState) query()             {}
func (GetPerformanceState) query()                {}
func (GetPowerUsage) query()                      {}
func (GetPowerManagementLimit) query()            {}
func (GetPowerManagementLimitConstraints) query() {}
func (GetNumFans) query()                         {}
func (GetFanSpeed) query()                        {}
func (GetAPIRestriction) query()                  {}

// Commands.
type (
	SetTemperatureThreshold struct {
		Threshold   TemperatureThreshold
		Temperature int32
	}

	SetGpuLockedClocks struct {
		MinMHz uint32
		MaxMHz uint32
	}

	ResetGpuLockedClocks struct{}

	SetMemoryLockedClocks struct {
		MinMHz uint32
		MaxMHz uint32
	}

	ResetMemoryLockedClocks struct{}

	SetApplicationsClocks struct {
		MemMHz      uint32
		GraphicsMHz uint32
	}

	ResetApplicationsClocks struct{}

	SetPowerManagementLimit struct {
		Scope   PowerScope
		LimitMw uint32
	}

	SetFanSpeed struct {
		Fan   uint32
		Speed uint32
	}

	SetDefaultFanSpeed struct{ Fan uint32 }

	SetAPIRestriction struct {
		API        RestrictedAPI
		Restricted bool
	}
)

func (SetTemperatureThreshold) command() {}
func (SetGpuLockedClocks) command()      {}
func (ResetGpuLockedClocks) command()    {}
func (SetMemoryLockedClocks) command()   {}
func (ResetMemoryLockedClocks) command() {}
func (SetApplicationsClocks) command()   {}
func (ResetApplicationsClocks) command() {}
func (SetPowerManagementLimit) command() {}
func (SetFanSpeed) command()             {}
func (SetDefaultFanSpeed) command()      {}
func (SetAPIRestriction) command()       {}

// Memory is reported in bytes.
type Memory struct {
	Total    uint64 `json:"total"`
	Free     uint64 `json:"free"`
	Used     uint64 `json:"used"`
	Reserved uint64 `json:"reserved"`
}

type GspFirmwareMode struct {
	Enabled        bool `json:"enabled"`
	DefaultEnabled bool `json:"defaultEnabled"`
}

type ThermalSensor struct {
	Controller     ThermalController `json:"controller"`
	Target         ThermalTarget     `json:"target"`
	CurrentTemp    int32             `json:"currentTemp"`
	DefaultMaxTemp int32             `json:"defaultMaxTemp"`
	DefaultMinTemp int32             `json:"defaultMinTemp"`
}

type ThermalSettings struct {
	Count   uint32          `json:"count"`
	Sensors []ThermalSensor `json:"sensors"`
}

type ClockRange struct {
	MinMHz uint32 `json:"minClockMHz"`
	MaxMHz uint32 `json:"maxClockMHz"`
}

type PowerLimits struct {
	MinMw uint32 `json:"minLimitMw"`
	MaxMw uint32 `json:"maxLimitMw"`
}

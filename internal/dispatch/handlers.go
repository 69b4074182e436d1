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

package dispatch

import (
	"context"
	"fmt"

	"envyd/internal/device"
	"envyd/internal/protocol"
	"envyd/internal/schema"
)

// Request field names.
const (
	fieldSensor        = "sensor"
	fieldThresholdType = "thresholdType"
	fieldTemperature   = "temperature"
	fieldSensorIndex   = "sensorIndex"
	fieldClockType     = "clockType"
	fieldClockID       = "clockId"
	fieldPstate        = "pstate"
	fieldMinGpuClock   = "minGpuClockMHz"
	fieldMaxGpuClock   = "maxGpuClockMHz"
	fieldMinMemClock   = "minMemClockMHz"
	fieldMaxMemClock   = "maxMemClockMHz"
	fieldMemClock      = "memClockMHz"
	fieldGraphicsClock = "graphicsClockMHz"
	fieldPowerScope    = "powerScope"
	fieldPowerValue    = "powerValueMw"
	fieldFan           = "fan"
	fieldSpeed         = "speed"
	fieldAPIType       = "apiType"
	fieldIsRestricted  = "isRestricted"
)

// Default returns the table of every action the daemon serves.
func Default() *Table {
	return NewTable(
		Entry{Name: "nvmlDeviceGetDetailsAll", Handler: detailsAll},

		deviceAction("nvmlDeviceGetMemoryInfo", false,
			query(func(schema.Fields) device.Query { return device.GetMemoryInfo{} }, same[device.Memory])),

		deviceAction("nvmlDeviceGetTemperature", false,
			query(func(f schema.Fields) device.Query {
				// Absent means GPU, the only sensor the library defines.
				return device.GetTemperature{Sensor: device.TemperatureSensor(f.Enum(fieldSensor))}
			}, keyed[uint32]("temperature")),
			schema.OneOf(fieldSensor, temperatureSensors).Optional()),

		deviceAction("nvmlDeviceGetTemperatureThreshold", false,
			query(func(f schema.Fields) device.Query {
				return device.GetTemperatureThreshold{Threshold: device.TemperatureThreshold(f.Enum(fieldThresholdType))}
			}, keyed[uint32]("temperature")),
			schema.OneOf(fieldThresholdType, temperatureThresholds)),

		describe(deviceAction("nvmlDeviceSetTemperatureThreshold", true,
			command(func(f schema.Fields) device.Command {
				return device.SetTemperatureThreshold{
					Threshold:   device.TemperatureThreshold(f.Enum(fieldThresholdType)),
					Temperature: int32(f.Int(fieldTemperature)),
				}
			}),
			schema.OneOf(fieldThresholdType, temperatureThresholds),
			schema.Required(fieldTemperature, schema.Integer)),
			func(f schema.Fields) string {
				return fmt.Sprintf("Set the %s temperature threshold of %s to %d°C",
					device.TemperatureThreshold(f.Enum(fieldThresholdType)), uuidOf(f), f.Int(fieldTemperature))
			}),

		deviceAction("nvmlDeviceGetThermalSettings", false,
			query(func(f schema.Fields) device.Query {
				return device.GetThermalSettings{SensorIndex: f.Uint(fieldSensorIndex)}
			}, same[device.ThermalSettings]),
			schema.Required(fieldSensorIndex, schema.Unsigned)),

		deviceAction("nvmlDeviceGetClockInfo", false,
			query(func(f schema.Fields) device.Query {
				return device.GetClockInfo{Type: device.ClockType(f.Enum(fieldClockType))}
			}, keyed[uint32]("clockMHz")),
			schema.OneOf(fieldClockType, clockTypes)),

		deviceAction("nvmlDeviceGetMaxClockInfo", false,
			query(func(f schema.Fields) device.Query {
				return device.GetMaxClockInfo{Type: device.ClockType(f.Enum(fieldClockType))}
			}, keyed[uint32]("clockMHz")),
			schema.OneOf(fieldClockType, clockTypes)),

		deviceAction("nvmlDeviceGetClock", false,
			query(func(f schema.Fields) device.Query {
				return device.GetClock{
					Type: device.ClockType(f.Enum(fieldClockType)),
					ID:   device.ClockID(f.Enum(fieldClockID)),
				}
			}, keyed[uint32]("clockMHz")),
			schema.OneOf(fieldClockType, clockTypes),
			schema.OneOf(fieldClockID, clockIDs)),

		deviceAction("nvmlDeviceGetMinMaxClockOfPState", false,
			query(func(f schema.Fields) device.Query {
				return device.GetMinMaxClockOfPState{
					Type:   device.ClockType(f.Enum(fieldClockType)),
					Pstate: device.Pstate(f.Enum(fieldPstate)),
				}
			}, same[device.ClockRange]),
			schema.OneOf(fieldClockType, clockTypes),
			schema.OneOf(fieldPstate, pstates)),

		deviceAction("nvmlDeviceGetPerformanceState", false,
			query(func(schema.Fields) device.Query { return device.GetPerformanceState{} }, keyed[device.Pstate]("pstate"))),

		describe(deviceAction("nvmlDeviceSetGpuLockedClocks", true,
			command(func(f schema.Fields) device.Command {
				return device.SetGpuLockedClocks{MinMHz: f.Uint(fieldMinGpuClock), MaxMHz: f.Uint(fieldMaxGpuClock)}
			}),
			schema.Required(fieldMinGpuClock, schema.Unsigned),
			schema.Required(fieldMaxGpuClock, schema.Unsigned)),
			func(f schema.Fields) string {
				return fmt.Sprintf("Lock the GPU clocks of %s to %d-%d MHz",
					uuidOf(f), f.Uint(fieldMinGpuClock), f.Uint(fieldMaxGpuClock))
			}),

		describe(deviceAction("nvmlDeviceResetGpuLockedClocks", true,
			command(func(schema.Fields) device.Command { return device.ResetGpuLockedClocks{} })),
			func(f schema.Fields) string {
				return fmt.Sprintf("Reset the locked GPU clocks of %s", uuidOf(f))
			}),

		describe(deviceAction("nvmlDeviceSetMemoryLockedClocks", true,
			command(func(f schema.Fields) device.Command {
				return device.SetMemoryLockedClocks{MinMHz: f.Uint(fieldMinMemClock), MaxMHz: f.Uint(fieldMaxMemClock)}
			}),
			schema.Required(fieldMinMemClock, schema.Unsigned),
			schema.Required(fieldMaxMemClock, schema.Unsigned)),
			func(f schema.Fields) string {
				return fmt.Sprintf("Lock the memory clocks of %s to %d-%d MHz",
					uuidOf(f), f.Uint(fieldMinMemClock), f.Uint(fieldMaxMemClock))
			}),

		describe(deviceAction("nvmlDeviceResetMemoryLockedClocks", true,
			command(func(schema.Fields) device.Command { return device.ResetMemoryLockedClocks{} })),
			func(f schema.Fields) string {
				return fmt.Sprintf("Reset the locked memory clocks of %s", uuidOf(f))
			}),

		describe(deviceAction("nvmlDeviceSetApplicationsClocks", true,
			command(func(f schema.Fields) device.Command {
				return device.SetApplicationsClocks{MemMHz: f.Uint(fieldMemClock), GraphicsMHz: f.Uint(fieldGraphicsClock)}
			}),
			schema.Required(fieldMemClock, schema.Unsigned),
			schema.Required(fieldGraphicsClock, schema.Unsigned)),
			func(f schema.Fields) string {
				return fmt.Sprintf("Set the application clocks of %s to %d MHz memory, %d MHz graphics",
					uuidOf(f), f.Uint(fieldMemClock), f.Uint(fieldGraphicsClock))
			}),

		describe(deviceAction("nvmlDeviceResetApplicationsClocks", true,
			command(func(schema.Fields) device.Command { return device.ResetApplicationsClocks{} })),
			func(f schema.Fields) string {
				return fmt.Sprintf("Reset the application clocks of %s", uuidOf(f))
			}),

		deviceAction("nvmlDeviceGetPowerUsage", false,
			query(func(schema.Fields) device.Query { return device.GetPowerUsage{} }, keyed[uint32]("powerMw"))),

		deviceAction("nvmlDeviceGetPowerManagementLimit", false,
			query(func(schema.Fields) device.Query { return device.GetPowerManagementLimit{} }, keyed[uint32]("limitMw"))),

		deviceAction("nvmlDeviceGetPowerManagementLimitConstraints", false,
			query(func(schema.Fields) device.Query { return device.GetPowerManagementLimitConstraints{} }, same[device.PowerLimits])),

		describe(deviceAction("nvmlDeviceSetPowerManagementLimit", true,
			command(func(f schema.Fields) device.Command {
				return device.SetPowerManagementLimit{
					Scope:   device.PowerScope(f.Enum(fieldPowerScope)),
					LimitMw: f.Uint(fieldPowerValue),
				}
			}),
			schema.OneOf(fieldPowerScope, powerScopes),
			schema.Required(fieldPowerValue, schema.Unsigned)),
			func(f schema.Fields) string {
				return fmt.Sprintf("Set the %s power limit of %s to %.1f W",
					device.PowerScope(f.Enum(fieldPowerScope)), uuidOf(f), float64(f.Uint(fieldPowerValue))/1000)
			}),

		deviceAction("nvmlDeviceGetNumFans", false,
			query(func(schema.Fields) device.Query { return device.GetNumFans{} }, keyed[uint32]("count"))),

		deviceAction("nvmlDeviceGetFanSpeed", false,
			query(func(f schema.Fields) device.Query {
				return device.GetFanSpeed{Fan: f.Uint(fieldFan)}
			}, keyed[uint32]("speed")),
			schema.Required(fieldFan, schema.Unsigned)),

		describe(deviceAction("nvmlDeviceSetFanSpeed", true,
			command(func(f schema.Fields) device.Command {
				return device.SetFanSpeed{Fan: f.Uint(fieldFan), Speed: f.Uint(fieldSpeed)}
			}),
			schema.Required(fieldFan, schema.Unsigned),
			schema.Required(fieldSpeed, schema.Unsigned).AtMost(100)),
			func(f schema.Fields) string {
				return fmt.Sprintf("Set fan %d of %s to %d%%", f.Uint(fieldFan), uuidOf(f), f.Uint(fieldSpeed))
			}),

		describe(deviceAction("nvmlDeviceSetDefaultFanSpeed", true,
			command(func(f schema.Fields) device.Command {
				return device.SetDefaultFanSpeed{Fan: f.Uint(fieldFan)}
			}),
			schema.Required(fieldFan, schema.Unsigned)),
			func(f schema.Fields) string {
				return fmt.Sprintf("Return fan %d of %s to automatic control", f.Uint(fieldFan), uuidOf(f))
			}),

		deviceAction("nvmlDeviceGetAPIRestriction", false,
			query(func(f schema.Fields) device.Query {
				return device.GetAPIRestriction{API: device.RestrictedAPI(f.Enum(fieldAPIType))}
			}, func(s device.EnableState) interface{} {
				return map[string]bool{"isRestricted": s == device.FeatureEnabled}
			}),
			schema.OneOf(fieldAPIType, restrictedAPIs)),

		describe(deviceAction("nvmlDeviceSetAPIRestriction", true,
			command(func(f schema.Fields) device.Command {
				return device.SetAPIRestriction{
					API:        device.RestrictedAPI(f.Enum(fieldAPIType)),
					Restricted: f.Bool(fieldIsRestricted),
				}
			}),
			schema.OneOf(fieldAPIType, restrictedAPIs),
			schema.Required(fieldIsRestricted, schema.Boolean)),
			func(f schema.Fields) string {
				verb := "Allow everyone to use"
				if f.Bool(fieldIsRestricted) {
					verb = "Restrict to root"
				}
				return fmt.Sprintf("%s %s on %s", verb, device.RestrictedAPI(f.Enum(fieldAPIType)), uuidOf(f))
			}),
	)
}

func describe(e Entry, fn func(f schema.Fields) string) Entry {
	e.Describe = fn
	return e
}

func uuidOf(f schema.Fields) string {
	return f.String(protocol.FieldUUID)
}

// query builds a read-only handler: build the query from the fields, run
// it, and shape the typed result for the response.
func query[T any](build func(schema.Fields) device.Query, shape func(T) interface{}) Handler {
	return func(ctx context.Context, m *device.Manager, ref device.Ref, f schema.Fields) (Result, error) {
		v, err := device.Value[T](m, ref, build(f))
		if err != nil {
			return Result{}, err
		}
		return Success(shape(v)), nil
	}
}

// command builds a mutating handler. Success carries no data.
func command(build func(schema.Fields) device.Command) Handler {
	return func(ctx context.Context, m *device.Manager, ref device.Ref, f schema.Fields) (Result, error) {
		if err := m.Set(ref, build(f)); err != nil {
			return Result{}, err
		}
		return Success(nil), nil
	}
}

func same[T any](v T) interface{} { return v }

// keyed wraps a scalar result in a one-key object.
func keyed[T any](key string) func(T) interface{} {
	return func(v T) interface{} {
		return map[string]T{key: v}
	}
}

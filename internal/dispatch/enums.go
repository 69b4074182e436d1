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
	"envyd/internal/device"
	"envyd/internal/schema"
)

type named interface {
	~int
	String() string
}

type aliased interface {
	Aliases() []string
}

// enumOf builds a closed table from device enum values. Each value is also
// accepted with the vendor's NVML_ prefix.
func enumOf[T named](values []T) *schema.Enumeration {
	entries := make([]schema.EnumValue, 0, len(values))
	for _, v := range values {
		name := v.String()
		aliases := []string{"NVML_" + name}
		if a, ok := any(v).(aliased); ok {
			aliases = append(aliases, a.Aliases()...)
		}
		entries = append(entries, schema.EnumValue{Name: name, Value: int(v), Aliases: aliases})
	}
	return schema.NewEnumeration(entries...)
}

var (
	clockTypes            = enumOf(device.ClockTypes())
	clockIDs              = enumOf(device.ClockIDs())
	pstates               = enumOf(device.Pstates())
	powerScopes           = enumOf(device.PowerScopes())
	temperatureSensors    = enumOf(device.TemperatureSensors())
	temperatureThresholds = enumOf(device.TemperatureThresholds())
	restrictedAPIs        = enumOf(device.RestrictedAPIs())
)

// Enumerations lists every enumerated field domain by field name, for
// clients and documentation.
func Enumerations() map[string][]string {
	return map[string][]string{
		fieldClockType:     clockTypes.Names(),
		fieldClockID:       clockIDs.Names(),
		fieldPstate:        pstates.Names(),
		fieldPowerScope:    powerScopes.Names(),
		fieldSensor:        temperatureSensors.Names(),
		fieldThresholdType: temperatureThresholds.Names(),
		fieldAPIType:       restrictedAPIs.Names(),
	}
}

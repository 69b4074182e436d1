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

import "fmt"

// Enumerated arguments and results. Values follow the vendor library; names
// drop its NVML_ prefix.

type ClockType int

const (
	ClockGraphics ClockType = 0
	ClockSM       ClockType = 1
	ClockMem      ClockType = 2
	ClockVideo    ClockType = 3
)

var clockTypeNames = []string{"CLOCK_GRAPHICS", "CLOCK_SM", "CLOCK_MEM", "CLOCK_VIDEO"}

func (c ClockType) String() string { return nameOf(clockTypeNames, int(c), "CLOCK") }

// ClockTypes lists every ClockType accepted as input.
func ClockTypes() []ClockType { return []ClockType{ClockGraphics, ClockSM, ClockMem, ClockVideo} }

type ClockID int

const (
	ClockIDCurrent          ClockID = 0
	ClockIDAppClockTarget   ClockID = 1
	ClockIDAppClockDefault  ClockID = 2
	ClockIDCustomerBoostMax ClockID = 3
)

var clockIDNames = []string{"CLOCK_ID_CURRENT", "CLOCK_ID_APP_CLOCK_TARGET", "CLOCK_ID_APP_CLOCK_DEFAULT", "CLOCK_ID_CUSTOMER_BOOST_MAX"}

func (c ClockID) String() string { return nameOf(clockIDNames, int(c), "CLOCK_ID") }

func ClockIDs() []ClockID {
	return []ClockID{ClockIDCurrent, ClockIDAppClockTarget, ClockIDAppClockDefault, ClockIDCustomerBoostMax}
}

// Pstate is a performance state. PstateUnknown is only ever reported.
type Pstate int

const (
	Pstate0       Pstate = 0
	Pstate15      Pstate = 15
	PstateUnknown Pstate = 32
)

func (p Pstate) String() string {
	if p >= Pstate0 && p <= Pstate15 {
		return fmt.Sprintf("PSTATE_%d", int(p))
	}
	return "PSTATE_UNKNOWN"
}

func Pstates() []Pstate {
	out := make([]Pstate, 0, 16)
	for p := Pstate0; p <= Pstate15; p++ {
		out = append(out, p)
	}
	return out
}

type PowerScope int

const (
	PowerScopeGPU    PowerScope = 0
	PowerScopeModule PowerScope = 1
	PowerScopeMemory PowerScope = 2
)

var powerScopeNames = []string{"SCOPE_GPU", "SCOPE_MODULE", "SCOPE_MEMORY"}

func (s PowerScope) String() string { return nameOf(powerScopeNames, int(s), "SCOPE") }

// Aliases are the vendor spellings of the scope name.
func (s PowerScope) Aliases() []string {
	return []string{"POWER_" + s.String(), "NVML_POWER_" + s.String()}
}

func PowerScopes() []PowerScope { return []PowerScope{PowerScopeGPU, PowerScopeModule, PowerScopeMemory} }

type TemperatureSensor int

const TemperatureGPU TemperatureSensor = 0

func (s TemperatureSensor) String() string {
	if s == TemperatureGPU {
		return "TEMPERATURE_GPU"
	}
	return "TEMPERATURE_UNKNOWN"
}

func TemperatureSensors() []TemperatureSensor { return []TemperatureSensor{TemperatureGPU} }

type TemperatureThreshold int

const (
	ThresholdShutdown     TemperatureThreshold = 0
	ThresholdSlowdown     TemperatureThreshold = 1
	ThresholdMemMax       TemperatureThreshold = 2
	ThresholdGPUMax       TemperatureThreshold = 3
	ThresholdAcousticMin  TemperatureThreshold = 4
	ThresholdAcousticCurr TemperatureThreshold = 5
	ThresholdAcousticMax  TemperatureThreshold = 6
	ThresholdGPSCurr      TemperatureThreshold = 7
)

var thresholdNames = []string{
	"TEMPERATURE_THRESHOLD_SHUTDOWN",
	"TEMPERATURE_THRESHOLD_SLOWDOWN",
	"TEMPERATURE_THRESHOLD_MEM_MAX",
	"TEMPERATURE_THRESHOLD_GPU_MAX",
	"TEMPERATURE_THRESHOLD_ACOUSTIC_MIN",
	"TEMPERATURE_THRESHOLD_ACOUSTIC_CURR",
	"TEMPERATURE_THRESHOLD_ACOUSTIC_MAX",
	"TEMPERATURE_THRESHOLD_GPS_CURR",
}

func (t TemperatureThreshold) String() string {
	return nameOf(thresholdNames, int(t), "TEMPERATURE_THRESHOLD")
}

func TemperatureThresholds() []TemperatureThreshold {
	out := make([]TemperatureThreshold, len(thresholdNames))
	for i := range thresholdNames {
		out[i] = TemperatureThreshold(i)
	}
	return out
}

type RestrictedAPI int

const (
	RestrictedAPISetApplicationClocks RestrictedAPI = 0
	RestrictedAPISetAutoBoostedClocks RestrictedAPI = 1
)

var restrictedAPINames = []string{"RESTRICTED_API_SET_APPLICATION_CLOCKS", "RESTRICTED_API_SET_AUTO_BOOSTED_CLOCKS"}

func (a RestrictedAPI) String() string { return nameOf(restrictedAPINames, int(a), "RESTRICTED_API") }

func RestrictedAPIs() []RestrictedAPI {
	return []RestrictedAPI{RestrictedAPISetApplicationClocks, RestrictedAPISetAutoBoostedClocks}
}

type EnableState int

const (
	FeatureDisabled EnableState = 0
	FeatureEnabled  EnableState = 1
)

func (e EnableState) String() string { return nameOf([]string{"FEATURE_DISABLED", "FEATURE_ENABLED"}, int(e), "FEATURE") }

// MarshalText renders reported enums by name in responses.
func (e EnableState) MarshalText() ([]byte, error) { return []byte(e.String()), nil }
func (p Pstate) MarshalText() ([]byte, error)      { return []byte(p.String()), nil }

type ThermalController int

const (
	ThermalControllerUnknown ThermalController = -1
	ThermalControllerNone    ThermalController = 0
)

var thermalControllerNames = []string{
	"THERMAL_CONTROLLER_NONE",
	"THERMAL_CONTROLLER_GPU_INTERNAL",
	"THERMAL_CONTROLLER_ADM1032",
	"THERMAL_CONTROLLER_ADT7461",
	"THERMAL_CONTROLLER_MAX6649",
	"THERMAL_CONTROLLER_MAX1617",
	"THERMAL_CONTROLLER_LM99",
	"THERMAL_CONTROLLER_LM89",
	"THERMAL_CONTROLLER_LM64",
	"THERMAL_CONTROLLER_G781",
	"THERMAL_CONTROLLER_ADT7473",
	"THERMAL_CONTROLLER_SBMAX6649",
	"THERMAL_CONTROLLER_VBIOSEVT",
	"THERMAL_CONTROLLER_OS",
	"THERMAL_CONTROLLER_NVSYSCON_CANOAS",
	"THERMAL_CONTROLLER_NVSYSCON_E551",
	"THERMAL_CONTROLLER_MAX6649R",
	"THERMAL_CONTROLLER_ADT7473S",
}

func (c ThermalController) String() string {
	return nameOf(thermalControllerNames, int(c), "THERMAL_CONTROLLER")
}

func (c ThermalController) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

type ThermalTarget int

const (
	ThermalTargetUnknown     ThermalTarget = -1
	ThermalTargetNone        ThermalTarget = 0
	ThermalTargetGPU         ThermalTarget = 1
	ThermalTargetMemory      ThermalTarget = 2
	ThermalTargetPowerSupply ThermalTarget = 4
	ThermalTargetBoard       ThermalTarget = 8
	ThermalTargetVCDBoard    ThermalTarget = 9
	ThermalTargetVCDInlet    ThermalTarget = 10
	ThermalTargetVCDOutlet   ThermalTarget = 11
	ThermalTargetAll         ThermalTarget = 15
)

var thermalTargetNames = map[ThermalTarget]string{
	ThermalTargetNone:        "THERMAL_TARGET_NONE",
	ThermalTargetGPU:         "THERMAL_TARGET_GPU",
	ThermalTargetMemory:      "THERMAL_TARGET_MEMORY",
	ThermalTargetPowerSupply: "THERMAL_TARGET_POWER_SUPPLY",
	ThermalTargetBoard:       "THERMAL_TARGET_BOARD",
	ThermalTargetVCDBoard:    "THERMAL_TARGET_VCD_BOARD",
	ThermalTargetVCDInlet:    "THERMAL_TARGET_VCD_INLET",
	ThermalTargetVCDOutlet:   "THERMAL_TARGET_VCD_OUTLET",
	ThermalTargetAll:         "THERMAL_TARGET_ALL",
}

func (t ThermalTarget) String() string {
	if name, ok := thermalTargetNames[t]; ok {
		return name
	}
	return "THERMAL_TARGET_UNKNOWN"
}

func (t ThermalTarget) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func nameOf(names []string, v int, prefix string) string {
	if v >= 0 && v < len(names) {
		return names[v]
	}
	return prefix + "_UNKNOWN"
}

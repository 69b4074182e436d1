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

	"github.com/google/uuid"
)

// SimulatedDevice describes one GPU served by the Simulator.
type SimulatedDevice struct {
	UUID            string            `yaml:"uuid"`
	Name            string            `yaml:"name"`
	MemoryMiB       uint64            `yaml:"memory_mib"`
	Fans            uint32            `yaml:"fans"`
	PowerLimitMw    uint32            `yaml:"power_limit_mw"`
	MinPowerLimitMw uint32            `yaml:"min_power_limit_mw"`
	MaxPowerLimitMw uint32            `yaml:"max_power_limit_mw"`
	Faults          map[string]string `yaml:"faults,omitempty"`
}

type simDevice struct {
	uuid    string
	name    string
	gsp     string
	memory  Memory
	temp    uint32
	sensors []ThermalSensor

	thresholds map[TemperatureThreshold]uint32
	clocks     map[ClockType]uint32
	maxClocks  map[ClockType]uint32
	appClocks  map[ClockType]uint32
	defApp     map[ClockType]uint32
	pstate     Pstate

	powerUsage uint32
	powerLimit uint32
	limits     PowerLimits

	fans       []uint32
	defaultFan uint32
	restricted map[RestrictedAPI]bool
	faults     map[string]Return
}

// Simulator is an in-memory Library. Writes are remembered and reflected by
// later reads, so a client can observe the effect of its commands.
type Simulator struct {
	mu          sync.Mutex
	devices     []*simDevice
	byUUID      map[string]*simDevice
	initialized bool
}

// NewSimulator builds a simulator. With no devices configured it serves a
// single default GPU.
func NewSimulator(devices []SimulatedDevice) (*Simulator, error) {
	if len(devices) == 0 {
		devices = []SimulatedDevice{{}}
	}

	s := &Simulator{byUUID: make(map[string]*simDevice, len(devices))}
	for i, spec := range devices {
		dev, err := newSimDevice(i, spec)
		if err != nil {
			return nil, err
		}
		if _, dup := s.byUUID[dev.uuid]; dup {
			return nil, fmt.Errorf("duplicate simulated device uuid: %s", dev.uuid)
		}
		s.devices = append(s.devices, dev)
		s.byUUID[dev.uuid] = dev
	}
	return s, nil
}

func newSimDevice(index int, spec SimulatedDevice) (*simDevice, error) {
	if spec.UUID == "" {
		spec.UUID = "GPU-" + uuid.NewString()
	}
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("Simulated GPU %d", index)
	}
	if spec.MemoryMiB == 0 {
		spec.MemoryMiB = 8192
	}
	if spec.MinPowerLimitMw == 0 {
		spec.MinPowerLimitMw = 100000
	}
	if spec.MaxPowerLimitMw == 0 {
		spec.MaxPowerLimitMw = 350000
	}
	if spec.PowerLimitMw == 0 {
		spec.PowerLimitMw = 250000
	}
	if spec.MinPowerLimitMw > spec.MaxPowerLimitMw {
		return nil, fmt.Errorf("simulated device %s: min power limit exceeds max", spec.UUID)
	}
	if spec.Fans == 0 {
		spec.Fans = 2
	}

	faults := make(map[string]Return, len(spec.Faults))
	for op, name := range spec.Faults {
		r, ok := ParseReturn(name)
		if !ok {
			return nil, fmt.Errorf("simulated device %s: unknown fault status %q for %s", spec.UUID, name, op)
		}
		faults[op] = r
	}

	total := spec.MemoryMiB * 1024 * 1024
	reserved := total / 64
	used := total / 8

	d := &simDevice{
		uuid: spec.UUID,
		name: spec.Name,
		gsp:  "550.54.15",
		memory: Memory{
			Total:    total,
			Reserved: reserved,
			Used:     used,
			Free:     total - reserved - used,
		},
		temp: 45,
		sensors: []ThermalSensor{
			{Controller: 1, Target: ThermalTargetGPU, CurrentTemp: 45, DefaultMaxTemp: 93, DefaultMinTemp: 0},
			{Controller: 1, Target: ThermalTargetMemory, CurrentTemp: 50, DefaultMaxTemp: 95, DefaultMinTemp: 0},
			{Controller: 1, Target: ThermalTargetBoard, CurrentTemp: 40, DefaultMaxTemp: 85, DefaultMinTemp: 0},
		},
		thresholds: map[TemperatureThreshold]uint32{
			ThresholdShutdown:     98,
			ThresholdSlowdown:     95,
			ThresholdMemMax:       95,
			ThresholdGPUMax:       93,
			ThresholdAcousticMin:  60,
			ThresholdAcousticCurr: 83,
			ThresholdAcousticMax:  90,
		},
		clocks:    map[ClockType]uint32{ClockGraphics: 1410, ClockSM: 1410, ClockMem: 9501, ClockVideo: 1275},
		maxClocks: map[ClockType]uint32{ClockGraphics: 2520, ClockSM: 2520, ClockMem: 10501, ClockVideo: 1950},
		appClocks: map[ClockType]uint32{ClockGraphics: 1410, ClockMem: 9501},
		defApp:    map[ClockType]uint32{ClockGraphics: 1410, ClockMem: 9501},
		pstate:    Pstate(2),

		powerUsage: spec.PowerLimitMw / 3,
		powerLimit: spec.PowerLimitMw,
		limits:     PowerLimits{MinMw: spec.MinPowerLimitMw, MaxMw: spec.MaxPowerLimitMw},

		fans:       make([]uint32, spec.Fans),
		defaultFan: 30,
		restricted: map[RestrictedAPI]bool{},
		faults:     faults,
	}
	for i := range d.fans {
		d.fans[i] = d.defaultFan
	}
	return d, nil
}

// ConcurrentSafe reports true; the simulator has its own lock.
func (s *Simulator) ConcurrentSafe() bool { return true }

func (s *Simulator) Init() Return {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.initialized = true
	return Success
}

func (s *Simulator) Shutdown() Return {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return ErrorUninitialized
	}
	s.initialized = false
	return Success
}

func (s *Simulator) DeviceCount() (uint32, Return) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return 0, ErrorUninitialized
	}
	return uint32(len(s.devices)), Success
}

func (s *Simulator) HandleByIndex(index uint32) (Ref, Return) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return Ref{}, ErrorUninitialized
	}
	if int(index) >= len(s.devices) {
		return Ref{}, ErrorInvalidArgument
	}
	d := s.devices[index]
	return NewRef(d.uuid, d), Success
}

func (s *Simulator) HandleByUUID(id string) (Ref, Return) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return Ref{}, ErrorUninitialized
	}
	d, ok := s.byUUID[id]
	if !ok {
		return Ref{}, ErrorNotFound
	}
	return NewRef(d.uuid, d), Success
}

func (s *Simulator) device(ref Ref) (*simDevice, Return) {
	if !s.initialized {
		return nil, ErrorUninitialized
	}
	d, ok := ref.Handle().(*simDevice)
	if !ok || d == nil {
		return nil, ErrorInvalidArgument
	}
	return d, Success
}

func (s *Simulator) Get(ref Ref, q Query) (interface{}, Return) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, r := s.device(ref)
	if r != Success {
		return nil, r
	}
	if fault, ok := d.faults[OpName(q)]; ok {
		return nil, fault
	}

	switch q := q.(type) {
	case GetName:
		return d.name, Success
	case GetUUID:
		return d.uuid, Success
	case GetGspFirmwareVersion:
		return d.gsp, Success
	case GetGspFirmwareMode:
		return GspFirmwareMode{Enabled: true, DefaultEnabled: true}, Success
	case GetMemoryInfo:
		return d.memory, Success
	case GetTemperature:
		if q.Sensor != TemperatureGPU {
			return nil, ErrorInvalidArgument
		}
		return d.temp, Success
	case GetTemperatureThreshold:
		v, ok := d.thresholds[q.Threshold]
		if !ok {
			return nil, ErrorNotSupported
		}
		return v, Success
	case GetThermalSettings:
		if q.SensorIndex >= uint32(len(d.sensors)) && q.SensorIndex != uint32(ThermalTargetAll) {
			return nil, ErrorInvalidArgument
		}
		sensors := d.sensors
		if q.SensorIndex != uint32(ThermalTargetAll) {
			sensors = sensors[q.SensorIndex : q.SensorIndex+1]
		}
		out := make([]ThermalSensor, len(sensors))
		copy(out, sensors)
		return ThermalSettings{Count: uint32(len(out)), Sensors: out}, Success
	case GetClockInfo:
		v, ok := d.clocks[q.Type]
		if !ok {
			return nil, ErrorInvalidArgument
		}
		return v, Success
	case GetMaxClockInfo:
		v, ok := d.maxClocks[q.Type]
		if !ok {
			return nil, ErrorInvalidArgument
		}
		return v, Success
	case GetClock:
		return d.clock(q.Type, q.ID)
	case GetMinMaxClockOfPState:
		top, ok := d.maxClocks[q.Type]
		if !ok || q.Pstate < Pstate0 || q.Pstate > Pstate15 {
			return nil, ErrorInvalidArgument
		}
		scale := uint32(16 - int(q.Pstate))
		return ClockRange{MinMHz: 210, MaxMHz: top * scale / 16}, Success
	case GetPerformanceState:
		return d.pstate, Success
	case GetPowerUsage:
		return d.powerUsage, Success
	case GetPowerManagementLimit:
		return d.powerLimit, Success
	case GetPowerManagementLimitConstraints:
		return d.limits, Success
	case GetNumFans:
		return uint32(len(d.fans)), Success
	case GetFanSpeed:
		if q.Fan >= uint32(len(d.fans)) {
			return nil, ErrorInvalidArgument
		}
		return d.fans[q.Fan], Success
	case GetAPIRestriction:
		if q.API != RestrictedAPISetApplicationClocks && q.API != RestrictedAPISetAutoBoostedClocks {
			return nil, ErrorInvalidArgument
		}
		if d.restricted[q.API] {
			return FeatureEnabled, Success
		}
		return FeatureDisabled, Success
	}
	return nil, ErrorFunctionNotFound
}

func (d *simDevice) clock(t ClockType, id ClockID) (interface{}, Return) {
	switch id {
	case ClockIDCurrent:
		if v, ok := d.clocks[t]; ok {
			return v, Success
		}
	case ClockIDAppClockTarget:
		if v, ok := d.appClocks[t]; ok {
			return v, Success
		}
	case ClockIDAppClockDefault:
		if v, ok := d.defApp[t]; ok {
			return v, Success
		}
	case ClockIDCustomerBoostMax:
		if v, ok := d.maxClocks[t]; ok {
			return v, Success
		}
	}
	return nil, ErrorNotSupported
}

func (s *Simulator) Set(ref Ref, c Command) Return {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, r := s.device(ref)
	if r != Success {
		return r
	}
	if fault, ok := d.faults[OpName(c)]; ok {
		return fault
	}

	switch c := c.(type) {
	case SetTemperatureThreshold:
		if c.Threshold != ThresholdGPUMax && c.Threshold != ThresholdAcousticCurr {
			return ErrorNotSupported
		}
		if c.Temperature <= 0 || uint32(c.Temperature) >= d.thresholds[ThresholdShutdown] {
			return ErrorInvalidArgument
		}
		d.thresholds[c.Threshold] = uint32(c.Temperature)
	case SetGpuLockedClocks:
		if c.MinMHz > c.MaxMHz || c.MaxMHz > d.maxClocks[ClockGraphics] {
			return ErrorInvalidArgument
		}
		d.clocks[ClockGraphics] = c.MaxMHz
	case ResetGpuLockedClocks:
		d.clocks[ClockGraphics] = d.defApp[ClockGraphics]
	case SetMemoryLockedClocks:
		if c.MinMHz > c.MaxMHz || c.MaxMHz > d.maxClocks[ClockMem] {
			return ErrorInvalidArgument
		}
		d.clocks[ClockMem] = c.MaxMHz
	case ResetMemoryLockedClocks:
		d.clocks[ClockMem] = d.defApp[ClockMem]
	case SetApplicationsClocks:
		if d.restricted[RestrictedAPISetApplicationClocks] {
			return ErrorNoPermission
		}
		if c.MemMHz > d.maxClocks[ClockMem] || c.GraphicsMHz > d.maxClocks[ClockGraphics] {
			return ErrorInvalidArgument
		}
		d.appClocks[ClockMem] = c.MemMHz
		d.appClocks[ClockGraphics] = c.GraphicsMHz
	case ResetApplicationsClocks:
		d.appClocks[ClockMem] = d.defApp[ClockMem]
		d.appClocks[ClockGraphics] = d.defApp[ClockGraphics]
	case SetPowerManagementLimit:
		if c.Scope != PowerScopeGPU {
			return ErrorNotSupported
		}
		if c.LimitMw < d.limits.MinMw || c.LimitMw > d.limits.MaxMw {
			return ErrorInvalidArgument
		}
		d.powerLimit = c.LimitMw
	case SetFanSpeed:
		if c.Fan >= uint32(len(d.fans)) || c.Speed > 100 {
			return ErrorInvalidArgument
		}
		d.fans[c.Fan] = c.Speed
	case SetDefaultFanSpeed:
		if c.Fan >= uint32(len(d.fans)) {
			return ErrorInvalidArgument
		}
		d.fans[c.Fan] = d.defaultFan
	case SetAPIRestriction:
		if c.API != RestrictedAPISetApplicationClocks && c.API != RestrictedAPISetAutoBoostedClocks {
			return ErrorInvalidArgument
		}
		d.restricted[c.API] = c.Restricted
	default:
		return ErrorFunctionNotFound
	}
	return Success
}

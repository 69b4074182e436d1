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
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Procfs is a read-only Library over the files the proprietary NVIDIA driver
// publishes in /proc/driver/nvidia/gpus/<pci-slot>/information, for example:
//
//	Model:           NVIDIA GeForce RTX 4090
//	GPU UUID:        GPU-xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx
//	GPU Firmware:    550.54.15
//
// Only identity queries are answered. Telemetry and every command report
// ERROR_NOT_SUPPORTED.
type Procfs struct {
	root string

	mu          sync.RWMutex
	gpus        []procGPU
	initialized bool
}

type procGPU struct {
	slot     string
	uuid     string
	name     string
	firmware string
}

// NewProcfs creates a Procfs rooted at procRoot, normally "/proc".
func NewProcfs(procRoot string) *Procfs {
	if procRoot == "" {
		procRoot = "/proc"
	}
	return &Procfs{root: procRoot}
}

func (p *Procfs) ConcurrentSafe() bool { return true }

func (p *Procfs) Init() Return {
	base := filepath.Join(p.root, "driver/nvidia/gpus")
	entries, err := os.ReadDir(base)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrorDriverNotLoaded
	}
	if err != nil {
		return ErrorOperatingSystem
	}

	var gpus []procGPU
	for _, entry := range entries {
		data, err := os.ReadFile(filepath.Join(base, entry.Name(), "information"))
		if err != nil {
			continue
		}
		gpu := parseInformation(string(data))
		gpu.slot = entry.Name()
		if gpu.uuid == "" {
			continue
		}
		gpus = append(gpus, gpu)
	}
	sort.Slice(gpus, func(i, j int) bool { return gpus[i].slot < gpus[j].slot })

	p.mu.Lock()
	defer p.mu.Unlock()
	p.gpus = gpus
	p.initialized = true
	return Success
}

func parseInformation(data string) procGPU {
	var gpu procGPU
	for _, line := range strings.Split(data, "\n") {
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		switch key {
		case "Model":
			gpu.name = value
		case "GPU UUID":
			gpu.uuid = value
		case "GPU Firmware":
			gpu.firmware = value
		}
	}
	return gpu
}

func (p *Procfs) Shutdown() Return {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.initialized {
		return ErrorUninitialized
	}
	p.initialized = false
	p.gpus = nil
	return Success
}

func (p *Procfs) DeviceCount() (uint32, Return) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return 0, ErrorUninitialized
	}
	return uint32(len(p.gpus)), Success
}

func (p *Procfs) HandleByIndex(index uint32) (Ref, Return) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return Ref{}, ErrorUninitialized
	}
	if int(index) >= len(p.gpus) {
		return Ref{}, ErrorInvalidArgument
	}
	gpu := p.gpus[index]
	return NewRef(gpu.uuid, gpu), Success
}

func (p *Procfs) HandleByUUID(id string) (Ref, Return) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if !p.initialized {
		return Ref{}, ErrorUninitialized
	}
	for _, gpu := range p.gpus {
		if gpu.uuid == id {
			return NewRef(gpu.uuid, gpu), Success
		}
	}
	return Ref{}, ErrorNotFound
}

func (p *Procfs) Get(ref Ref, q Query) (interface{}, Return) {
	p.mu.RLock()
	initialized := p.initialized
	p.mu.RUnlock()
	if !initialized {
		return nil, ErrorUninitialized
	}

	gpu, ok := ref.Handle().(procGPU)
	if !ok {
		return nil, ErrorInvalidArgument
	}

	switch q.(type) {
	case GetName:
		return gpu.name, Success
	case GetUUID:
		return gpu.uuid, Success
	case GetGspFirmwareVersion:
		if gpu.firmware == "" || gpu.firmware == "N/A" {
			return nil, ErrorNotSupported
		}
		return gpu.firmware, Success
	case GetGspFirmwareMode:
		enabled := gpu.firmware != "" && gpu.firmware != "N/A"
		return GspFirmwareMode{Enabled: enabled, DefaultEnabled: enabled}, Success
	}
	return nil, ErrorNotSupported
}

func (p *Procfs) Set(ref Ref, c Command) Return {
	return ErrorNotSupported
}

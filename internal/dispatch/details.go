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
	"errors"
	"fmt"

	"envyd/internal/device"
	"envyd/internal/logger"
	"envyd/internal/schema"
)

// DeviceDetails is one device in the nvmlDeviceGetDetailsAll response.
type DeviceDetails struct {
	UUID           string `json:"uuid"`
	Name           string `json:"name"`
	GspVersion     string `json:"gsp_version"`
	GspMode        bool   `json:"gsp_mode"`
	GspDefaultMode bool   `json:"gsp_default_mode"`
}

// Details is the nvmlDeviceGetDetailsAll response.
type Details struct {
	Count    uint32          `json:"count"`
	Failures int             `json:"failures"`
	Devices  []DeviceDetails `json:"devices"`
}

// detailsAll enumerates every device. A device that fails with a
// recoverable status is skipped and counted; a fatal status aborts.
func detailsAll(ctx context.Context, m *device.Manager, _ device.Ref, _ schema.Fields) (Result, error) {
	count, err := m.Count()
	if err != nil {
		return Result{}, err
	}

	log := logger.GetLogger("dispatch")
	out := Details{Count: count, Devices: make([]DeviceDetails, 0, count)}
	for i := uint32(0); i < count; i++ {
		d, err := detailsOf(m, i)
		if err != nil {
			var fatal *device.FatalError
			if errors.As(err, &fatal) {
				return Result{}, err
			}
			log.Warn().Err(err).Uint32("index", i).Msg("Skipping device")
			out.Failures++
			continue
		}
		out.Devices = append(out.Devices, d)
	}

	res := Success(out)
	if out.Failures > 0 {
		res.Description = fmt.Sprintf("failed to get details for %d of %d devices", out.Failures, count)
	}
	return res, nil
}

func detailsOf(m *device.Manager, index uint32) (DeviceDetails, error) {
	ref, err := m.ByIndex(index)
	if err != nil {
		return DeviceDetails{}, err
	}

	var d DeviceDetails
	if d.UUID, err = device.Value[string](m, ref, device.GetUUID{}); err != nil {
		return DeviceDetails{}, err
	}
	if d.Name, err = device.Value[string](m, ref, device.GetName{}); err != nil {
		return DeviceDetails{}, err
	}
	if d.GspVersion, err = device.Value[string](m, ref, device.GetGspFirmwareVersion{}); err != nil {
		return DeviceDetails{}, err
	}
	mode, err := device.Value[device.GspFirmwareMode](m, ref, device.GetGspFirmwareMode{})
	if err != nil {
		return DeviceDetails{}, err
	}
	d.GspMode, d.GspDefaultMode = mode.Enabled, mode.DefaultEnabled
	return d, nil
}

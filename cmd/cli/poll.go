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

package cli

import (
	"context"
	"errors"
	"time"

	"envyd/internal/client"
	"envyd/internal/device"
	"envyd/internal/dispatch"

	"github.com/charmbracelet/bubbletea"
)

// deviceSample is one refresh of a device's telemetry. Fields the device
// does not support are left nil.
type deviceSample struct {
	UUID        string
	Name        string
	GspVersion  string
	Temperature *uint32
	PowerMw     *uint32
	LimitMw     *uint32
	Limits      *device.PowerLimits
	Memory      *device.Memory
	Fans        []uint32
	Err         string
}

type samplesMsg struct {
	at       time.Time
	samples  []deviceSample
	failures int
	err      error
}

type tickMsg time.Time

type actionResultMsg struct {
	action      string
	status      string
	description string
	err         error
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// poll reads every device through the daemon.
func poll(c *client.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		var details dispatch.Details
		if err := c.Result(ctx, "nvmlDeviceGetDetailsAll", nil, &details); err != nil {
			return samplesMsg{at: time.Now(), err: err}
		}

		samples := make([]deviceSample, 0, len(details.Devices))
		for _, d := range details.Devices {
			samples = append(samples, sample(ctx, c, d))
		}
		return samplesMsg{at: time.Now(), samples: samples, failures: details.Failures}
	}
}

func sample(ctx context.Context, c *client.Client, d dispatch.DeviceDetails) deviceSample {
	s := deviceSample{UUID: d.UUID, Name: d.Name, GspVersion: d.GspVersion}
	dev := map[string]interface{}{"uuid": d.UUID}

	// get returns false for unsupported values and records other failures.
	get := func(action string, fields map[string]interface{}, out interface{}) bool {
		err := c.Result(ctx, action, fields, out)
		if err == nil {
			return true
		}
		var status *client.StatusError
		if !errors.As(err, &status) || status.Status != device.ErrorNotSupported.String() {
			if s.Err == "" {
				s.Err = err.Error()
			}
		}
		return false
	}

	var temp struct {
		Temperature uint32 `json:"temperature"`
	}
	if get("nvmlDeviceGetTemperature", dev, &temp) {
		s.Temperature = &temp.Temperature
	}

	var power struct {
		PowerMw uint32 `json:"powerMw"`
	}
	if get("nvmlDeviceGetPowerUsage", dev, &power) {
		s.PowerMw = &power.PowerMw
	}

	var limit struct {
		LimitMw uint32 `json:"limitMw"`
	}
	if get("nvmlDeviceGetPowerManagementLimit", dev, &limit) {
		s.LimitMw = &limit.LimitMw
	}

	var limits device.PowerLimits
	if get("nvmlDeviceGetPowerManagementLimitConstraints", dev, &limits) {
		s.Limits = &limits
	}

	var mem device.Memory
	if get("nvmlDeviceGetMemoryInfo", dev, &mem) {
		s.Memory = &mem
	}

	var fans struct {
		Count uint32 `json:"count"`
	}
	if get("nvmlDeviceGetNumFans", dev, &fans) {
		for i := uint32(0); i < fans.Count; i++ {
			var speed struct {
				Speed uint32 `json:"speed"`
			}
			if !get("nvmlDeviceGetFanSpeed", map[string]interface{}{"uuid": d.UUID, "fan": i}, &speed) {
				break
			}
			s.Fans = append(s.Fans, speed.Speed)
		}
	}
	return s
}

// invoke sends a privileged command and reports its outcome.
func invoke(c *client.Client, action string, fields map[string]interface{}) tea.Cmd {
	return func() tea.Msg {
		resp, err := c.Call(context.Background(), action, fields)
		if err != nil {
			return actionResultMsg{action: action, err: err}
		}
		return actionResultMsg{action: action, status: resp.Status, description: resp.DescriptionText()}
	}
}

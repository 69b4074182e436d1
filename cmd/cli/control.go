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
	"fmt"
	"strings"
	"time"

	"envyd/internal/client"
	"envyd/internal/device"

	"github.com/charmbracelet/bubbletea"
)

const (
	fanStep   = 5
	powerStep = 5000
)

// ControlModel handles the per-device control screen. Every change is a
// privileged request, so the daemon may prompt for consent first.
type ControlModel struct {
	client  *client.Client
	device  deviceSample
	fan     int
	pending string

	lastResult *actionResultMsg
	logBuffer  []LogEntry
	maxLog     int
}

// NewControlModel creates the control screen for one device
func NewControlModel(c *client.Client, dev deviceSample) ControlModel {
	return ControlModel{client: c, device: dev, maxLog: 6}
}

// Update handles control screen messages
func (m ControlModel) Update(msg tea.Msg) (ControlModel, tea.Cmd) {
	switch msg := msg.(type) {
	case samplesMsg:
		for _, s := range msg.samples {
			if s.UUID == m.device.UUID {
				m.device = s
			}
		}
		if m.fan >= len(m.device.Fans) {
			m.fan = max(len(m.device.Fans)-1, 0)
		}

	case actionResultMsg:
		m.pending = ""
		m.lastResult = &msg
		entry := LogEntry{Timestamp: time.Now(), Level: "INF", Action: msg.action, Message: msg.status}
		switch {
		case msg.err != nil:
			entry.Level, entry.Message = "ERR", msg.err.Error()
		case msg.status != device.Success.String():
			entry.Level = "ERR"
			if msg.description != "" {
				entry.Message = msg.status + ": " + msg.description
			}
		}
		m.logBuffer = append(m.logBuffer, entry)
		return m, poll(m.client)

	case tea.KeyMsg:
		if m.pending != "" {
			return m, nil
		}
		switch msg.String() {
		case "left", "h":
			if m.fan > 0 {
				m.fan--
			}
		case "right", "l":
			if m.fan < len(m.device.Fans)-1 {
				m.fan++
			}
		case "+", "=":
			return m.setFan(fanStep)
		case "-":
			return m.setFan(-fanStep)
		case "a":
			return m.send("nvmlDeviceSetDefaultFanSpeed", map[string]interface{}{"fan": m.fan})
		case "]":
			return m.setPower(powerStep)
		case "[":
			return m.setPower(-powerStep)
		}
	}
	return m, nil
}

func (m ControlModel) setFan(delta int) (ControlModel, tea.Cmd) {
	if m.fan >= len(m.device.Fans) {
		return m, nil
	}
	speed := min(max(int(m.device.Fans[m.fan])+delta, 0), 100)
	return m.send("nvmlDeviceSetFanSpeed", map[string]interface{}{"fan": m.fan, "speed": speed})
}

func (m ControlModel) setPower(delta int) (ControlModel, tea.Cmd) {
	if m.device.LimitMw == nil {
		return m, nil
	}
	limit := int(*m.device.LimitMw) + delta
	if l := m.device.Limits; l != nil {
		limit = min(max(limit, int(l.MinMw)), int(l.MaxMw))
	}
	return m.send("nvmlDeviceSetPowerManagementLimit", map[string]interface{}{
		"powerScope":   device.PowerScopeGPU.String(),
		"powerValueMw": limit,
	})
}

func (m ControlModel) send(action string, fields map[string]interface{}) (ControlModel, tea.Cmd) {
	fields["uuid"] = m.device.UUID
	m.pending = action
	return m, invoke(m.client, action, fields)
}

// View renders the control screen
func (m ControlModel) View() string {
	var sections []string
	sections = append(sections, titleStyle.Render("envyd - "+m.device.Name))
	sections = append(sections, helpStyle.Render(m.device.UUID+"  GSP "+m.device.GspVersion))

	var panel []string
	if m.device.Temperature != nil {
		panel = append(panel, "Temperature  "+temperatureStyle(*m.device.Temperature).Render(fmt.Sprintf("%d°C", *m.device.Temperature)))
	}
	if m.device.PowerMw != nil {
		panel = append(panel, "Power        "+watts(*m.device.PowerMw))
	}
	if m.device.LimitMw != nil {
		line := "Power limit  " + watts(*m.device.LimitMw)
		if l := m.device.Limits; l != nil {
			line += helpStyle.Render(fmt.Sprintf("  (%s - %s)", watts(l.MinMw), watts(l.MaxMw)))
		}
		panel = append(panel, line)
	}
	if m.device.Memory != nil {
		panel = append(panel, fmt.Sprintf("Memory       %d / %d MiB", mib(m.device.Memory.Used), mib(m.device.Memory.Total)))
	}
	for i, speed := range m.device.Fans {
		line := fmt.Sprintf("Fan %d        %d%%", i, speed)
		if i == m.fan {
			line = rowSelectedStyle.Render(line)
		}
		panel = append(panel, line)
	}
	sections = append(sections, panelStyle.Render(strings.Join(panel, "\n")))

	switch {
	case m.pending != "":
		sections = append(sections, warnStyle.Render("Waiting for "+m.pending+"..."))
	case m.lastResult != nil && m.lastResult.err == nil && m.lastResult.status == device.Success.String():
		sections = append(sections, successStyle.Render("✓ "+m.lastResult.action))
	case m.lastResult != nil:
		sections = append(sections, errorStyle.Render("✗ "+m.lastResult.action))
	}

	if log := renderLog(m.logBuffer, m.maxLog); log != "" {
		sections = append(sections, log)
	}

	sections = append(sections, helpStyle.Render("←/→: fan • +/-: fan speed • a: automatic fan • [/]: power limit • q: back"))
	return strings.Join(sections, "\n\n")
}

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

	"github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DevicesModel lists every device with its latest telemetry
type DevicesModel struct {
	samples  []deviceSample
	failures int
	updated  time.Time
	err      error
	selected int
	chosen   bool
}

// NewDevicesModel creates the device list screen
func NewDevicesModel() DevicesModel {
	return DevicesModel{}
}

// Update handles device list messages
func (m DevicesModel) Update(msg tea.Msg) (DevicesModel, tea.Cmd) {
	switch msg := msg.(type) {
	case samplesMsg:
		m.updated = msg.at
		m.err = msg.err
		if msg.err == nil {
			m.samples = msg.samples
			m.failures = msg.failures
		}
		if m.selected >= len(m.samples) {
			m.selected = max(len(m.samples)-1, 0)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "up", "k":
			if m.selected > 0 {
				m.selected--
			}
		case "down", "j":
			if m.selected < len(m.samples)-1 {
				m.selected++
			}
		case "enter":
			if len(m.samples) > 0 {
				m.chosen = true
			}
		}
	}
	return m, nil
}

// Chosen reports whether the user opened a device, and which.
func (m DevicesModel) Chosen() (deviceSample, bool) {
	if !m.chosen || m.selected >= len(m.samples) {
		return deviceSample{}, false
	}
	return m.samples[m.selected], true
}

// Back clears the choice after returning from the control screen.
func (m DevicesModel) Back() DevicesModel {
	m.chosen = false
	return m
}

// View renders the device list
func (m DevicesModel) View() string {
	var sections []string
	sections = append(sections, titleStyle.Render("envyd - GPU monitor"))

	switch {
	case m.updated.IsZero():
		sections = append(sections, helpStyle.Render("Connecting to envyd..."))
	case m.err != nil:
		sections = append(sections, errorStyle.Render("Error: "+m.err.Error()))
	case len(m.samples) == 0:
		sections = append(sections, warnStyle.Render("No devices reported"))
	}

	if len(m.samples) > 0 {
		header := fmt.Sprintf("%-3s %-28s %6s %20s %17s %s", "#", "NAME", "TEMP", "POWER", "MEMORY", "FANS")
		rows := []string{subtitleStyle.Render(header)}
		for i, s := range m.samples {
			style := rowStyle
			if i == m.selected {
				style = rowSelectedStyle
			}
			rows = append(rows, style.Render(m.renderRow(i, s)))
		}
		sections = append(sections, lipgloss.JoinVertical(lipgloss.Left, rows...))
	}

	if m.failures > 0 {
		sections = append(sections, warnStyle.Render(fmt.Sprintf("%d device(s) could not be read", m.failures)))
	}
	if !m.updated.IsZero() {
		sections = append(sections, helpStyle.Render("Updated "+m.updated.Format("15:04:05")))
	}
	sections = append(sections, helpStyle.Render("↑/↓: select • enter: control • q: quit"))
	return strings.Join(sections, "\n\n")
}

func (m DevicesModel) renderRow(i int, s deviceSample) string {
	temp := "n/a"
	if s.Temperature != nil {
		temp = temperatureStyle(*s.Temperature).Render(fmt.Sprintf("%d°C", *s.Temperature))
	}

	power := "n/a"
	switch {
	case s.PowerMw != nil && s.LimitMw != nil:
		power = watts(*s.PowerMw) + " / " + watts(*s.LimitMw)
	case s.PowerMw != nil:
		power = watts(*s.PowerMw)
	}

	memory := "n/a"
	if s.Memory != nil {
		memory = fmt.Sprintf("%d/%d MiB", mib(s.Memory.Used), mib(s.Memory.Total))
	}

	fans := "n/a"
	if len(s.Fans) > 0 {
		parts := make([]string, len(s.Fans))
		for j, f := range s.Fans {
			parts[j] = fmt.Sprintf("%d%%", f)
		}
		fans = strings.Join(parts, " ")
	}

	name := s.Name
	if len(name) > 28 {
		name = name[:27] + "…"
	}
	row := fmt.Sprintf("%-3d %-28s %6s %20s %17s %s", i, name, temp, power, memory, fans)
	if s.Err != "" {
		row += " " + errorStyle.Render("!")
	}
	return row
}

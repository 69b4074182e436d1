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
	"time"

	"envyd/internal/client"

	"github.com/charmbracelet/bubbletea"
)

// Main TUI model that routes between screens
type model struct {
	client   *client.Client
	interval time.Duration

	currentScreen screen
	width         int
	height        int
	quitting      bool

	// Screen models
	devicesModel DevicesModel
	controlModel ControlModel
}

func initialModel(c *client.Client, interval time.Duration) model {
	return model{
		client:        c,
		interval:      interval,
		currentScreen: screenDevices,
		devicesModel:  NewDevicesModel(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(poll(m.client), tick(m.interval))
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(poll(m.client), tick(m.interval))

	case samplesMsg:
		// Both screens track the latest telemetry.
		m.devicesModel, _ = m.devicesModel.Update(msg)
		if m.currentScreen == screenControl {
			m.controlModel, _ = m.controlModel.Update(msg)
		}
		return m, nil

	case actionResultMsg:
		var cmd tea.Cmd
		m.controlModel, cmd = m.controlModel.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		// Global quit handling
		switch msg.String() {
		case "ctrl+c":
			m.quitting = true
			return m, tea.Quit

		case "q", "esc":
			if m.currentScreen == screenDevices {
				m.quitting = true
				return m, tea.Quit
			}
			// In the control screen, 'q' goes back to the list
			m.currentScreen = screenDevices
			m.devicesModel = m.devicesModel.Back()
			return m, nil
		}

		switch m.currentScreen {
		case screenDevices:
			var cmd tea.Cmd
			m.devicesModel, cmd = m.devicesModel.Update(msg)
			if dev, ok := m.devicesModel.Chosen(); ok {
				m.controlModel = NewControlModel(m.client, dev)
				m.currentScreen = screenControl
			}
			return m, cmd

		case screenControl:
			var cmd tea.Cmd
			m.controlModel, cmd = m.controlModel.Update(msg)
			return m, cmd
		}
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	switch m.currentScreen {
	case screenDevices:
		return m.devicesModel.View()
	case screenControl:
		return m.controlModel.View()
	default:
		return "Unknown screen"
	}
}

// StartTUI runs the monitor against the daemon behind c
func StartTUI(c *client.Client, interval time.Duration) error {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	p := tea.NewProgram(
		initialModel(c, interval),
		tea.WithAltScreen(),
	)

	// Ensure proper cleanup on panic or interrupt
	defer func() {
		if r := recover(); r != nil {
			p.Kill()
		}
	}()

	_, err := p.Run()
	return err
}

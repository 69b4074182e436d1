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
	"errors"
	"testing"
	"time"

	"envyd/internal/client"
	"envyd/internal/device"

	"github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u32(v uint32) *uint32 { return &v }

func testSamples() samplesMsg {
	return samplesMsg{
		at: time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC),
		samples: []deviceSample{
			{
				UUID: "GPU-a", Name: "Sim A", GspVersion: "550.54.15",
				Temperature: u32(45), PowerMw: u32(120000), LimitMw: u32(250000),
				Limits: &device.PowerLimits{MinMw: 100000, MaxMw: 252000},
				Memory: &device.Memory{Total: 8192 << 20, Used: 1024 << 20},
				Fans:   []uint32{30, 98},
			},
			{UUID: "GPU-b", Name: "Sim B", Err: "ERROR_GPU_IS_LOST"},
		},
	}
}

func key(s string) tea.KeyMsg {
	switch s {
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestDevicesModel(t *testing.T) {
	t.Run("renders telemetry", func(t *testing.T) {
		m, _ := NewDevicesModel().Update(testSamples())
		view := m.View()
		assert.Contains(t, view, "Sim A")
		assert.Contains(t, view, "45°C")
		assert.Contains(t, view, "120.0 W / 250.0 W")
		assert.Contains(t, view, "1024/8192 MiB")
		assert.Contains(t, view, "30% 98%")
		assert.Contains(t, view, "Updated 12:00:00")
	})

	t.Run("keeps the last samples when a refresh fails", func(t *testing.T) {
		m, _ := NewDevicesModel().Update(testSamples())
		m, _ = m.Update(samplesMsg{at: time.Now(), err: errors.New("connection refused")})
		view := m.View()
		assert.Contains(t, view, "connection refused")
		assert.Contains(t, view, "Sim A")
	})

	t.Run("selects a device", func(t *testing.T) {
		m, _ := NewDevicesModel().Update(testSamples())
		_, ok := m.Chosen()
		assert.False(t, ok)

		m, _ = m.Update(key("down"))
		m, _ = m.Update(key("down"))
		m, _ = m.Update(key("enter"))
		dev, ok := m.Chosen()
		require.True(t, ok)
		assert.Equal(t, "GPU-b", dev.UUID)

		_, ok = m.Back().Chosen()
		assert.False(t, ok)
	})
}

func TestControlModel(t *testing.T) {
	c := client.New("/nonexistent/envyd.sock")
	dev := testSamples().samples[0]

	t.Run("raises the selected fan within bounds", func(t *testing.T) {
		m := NewControlModel(c, dev)
		m, _ = m.Update(key("right"))
		m, cmd := m.Update(key("+"))
		require.NotNil(t, cmd)
		assert.Equal(t, "nvmlDeviceSetFanSpeed", m.pending)

		// Keys are ignored until the daemon answers.
		_, cmd = m.Update(key("-"))
		assert.Nil(t, cmd)
	})

	t.Run("ignores power changes without a known limit", func(t *testing.T) {
		m := NewControlModel(c, deviceSample{UUID: "GPU-x"})
		m, cmd := m.Update(key("]"))
		assert.Nil(t, cmd)
		assert.Empty(t, m.pending)
	})

	t.Run("logs command outcomes", func(t *testing.T) {
		m := NewControlModel(c, dev)
		m, _ = m.Update(key("a"))
		m, cmd := m.Update(actionResultMsg{action: "nvmlDeviceSetDefaultFanSpeed", status: "AUTHORIZATION_FAILED", description: "authorization denied for nvmlDeviceSetDefaultFanSpeed"})
		assert.NotNil(t, cmd, "a refresh follows every command")
		assert.Empty(t, m.pending)

		view := m.View()
		assert.Contains(t, view, "✗ nvmlDeviceSetDefaultFanSpeed")
		assert.Contains(t, view, "authorization denied")
	})

	t.Run("follows refreshed samples for its device", func(t *testing.T) {
		m := NewControlModel(c, dev)
		updated := testSamples()
		updated.samples[0].Fans = []uint32{55}
		m, _ = m.Update(updated)
		assert.Contains(t, m.View(), "Fan 0        55%")
		assert.NotContains(t, m.View(), "Fan 1")
	})
}

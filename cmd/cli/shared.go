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
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Screen types
type screen int

const (
	screenDevices screen = iota
	screenControl
)

// Common styles
var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#76B900")).
			Padding(0, 1).
			Bold(true)

	subtitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#76B900")).
			Bold(true)

	rowStyle = lipgloss.NewStyle().
			Padding(0, 1)

	rowSelectedStyle = lipgloss.NewStyle().
				Padding(0, 1).
				Background(lipgloss.Color("#44475A")).
				Foreground(lipgloss.Color("#F8F8F2"))

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#76B900")).
			Padding(0, 1)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF5555")).
			Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFB86C"))

	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#50FA7B")).
			Bold(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))
)

// LogEntry represents a log entry for display
type LogEntry struct {
	Timestamp time.Time
	Level     string // INF, ERR
	Message   string
	Action    string
}

func renderLog(entries []LogEntry, max int) string {
	if len(entries) == 0 {
		return ""
	}
	if len(entries) > max {
		entries = entries[len(entries)-max:]
	}
	var out string
	for _, e := range entries {
		style := helpStyle
		if e.Level == "ERR" {
			style = errorStyle
		}
		out += style.Render(fmt.Sprintf("%s %s %s: %s",
			e.Timestamp.Format("15:04:05"), e.Level, e.Action, e.Message)) + "\n"
	}
	return out
}

func temperatureStyle(celsius uint32) lipgloss.Style {
	switch {
	case celsius >= 85:
		return errorStyle
	case celsius >= 70:
		return warnStyle
	default:
		return successStyle
	}
}

func mib(bytes uint64) uint64 {
	return bytes / (1024 * 1024)
}

func watts(mw uint32) string {
	return fmt.Sprintf("%.1f W", float64(mw)/1000)
}

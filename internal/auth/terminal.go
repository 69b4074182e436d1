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

package auth

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	promptTitleStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FAFAFA")).
				Background(lipgloss.Color("#7D56F4")).
				Padding(0, 1).
				Bold(true)

	promptBodyStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#7D56F4")).
			Padding(0, 1).
			Width(60)

	choiceStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#44475A")).
			Foreground(lipgloss.Color("#F8F8F2")).
			Padding(0, 2).
			Margin(0, 1)

	choiceActiveStyle = lipgloss.NewStyle().
				Background(lipgloss.Color("#FF79C6")).
				Foreground(lipgloss.Color("#FAFAFA")).
				Padding(0, 2).
				Margin(0, 1)

	promptHelpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6272A4"))
)

// TerminalDialog shows the prompt on a terminal, by default the daemon's
// controlling terminal.
type TerminalDialog struct {
	// TTY is opened when Input or Output is nil. Defaults to /dev/tty.
	TTY    string
	Input  io.Reader
	Output io.Writer
}

func (d *TerminalDialog) Ask(ctx context.Context, p Prompt) (Answer, error) {
	in, out := d.Input, d.Output
	if in == nil || out == nil {
		path := d.TTY
		if path == "" {
			path = "/dev/tty"
		}
		tty, err := os.OpenFile(path, os.O_RDWR, 0)
		if err != nil {
			return Cancel, fmt.Errorf("failed to open terminal %s: %w", path, err)
		}
		defer tty.Close()
		in, out = tty, tty
	}

	prog := tea.NewProgram(newConsentModel(p),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
		tea.WithoutSignalHandler(),
	)
	final, err := prog.Run()
	if err != nil {
		return Cancel, err
	}
	if m, ok := final.(consentModel); ok {
		return m.answer, nil
	}
	return Cancel, nil
}

// consentModel is a two-button yes/no screen.
type consentModel struct {
	prompt   Prompt
	selected Answer
	answer   Answer
	done     bool
}

func newConsentModel(p Prompt) consentModel {
	return consentModel{prompt: p, selected: No, answer: Cancel}
}

func (m consentModel) Init() tea.Cmd {
	return nil
}

func (m consentModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}

	switch key.String() {
	case "y", "Y":
		m.answer, m.done = Yes, true
		return m, tea.Quit
	case "n", "N":
		m.answer, m.done = No, true
		return m, tea.Quit
	case "esc", "q", "ctrl+c":
		m.answer, m.done = Cancel, true
		return m, tea.Quit
	case "left", "right", "tab", "h", "l":
		if m.selected == Yes {
			m.selected = No
		} else {
			m.selected = Yes
		}
	case "enter":
		m.answer, m.done = m.selected, true
		return m, tea.Quit
	}
	return m, nil
}

func (m consentModel) View() string {
	if m.done {
		return ""
	}

	yes, no := choiceStyle, choiceActiveStyle
	if m.selected == Yes {
		yes, no = choiceActiveStyle, choiceStyle
	}

	var b strings.Builder
	b.WriteString(promptTitleStyle.Render(m.prompt.Title))
	b.WriteString("\n\n")
	b.WriteString(promptBodyStyle.Render(m.prompt.Body))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, yes.Render("Allow"), no.Render("Deny")))
	b.WriteString("\n\n")
	b.WriteString(promptHelpStyle.Render("y allow • n deny • ←/→ select • enter confirm • esc cancel"))
	b.WriteString("\n")
	return b.String()
}

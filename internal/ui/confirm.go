package ui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"paytrack/internal/reminder"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// ErrNoAnswer is returned when the prompt ended without a choice.
var ErrNoAnswer = errors.New("prompt closed without an answer")

// ConfirmModel is a two-button dialog.
type ConfirmModel struct {
	prompt reminder.Prompt
	styles *Styles
	keys   ConfirmKeyMap
	help   help.Model

	focusConfirm bool
	answered     bool
	confirmed    bool
	width        int
}

// NewConfirmModel creates a dialog for p with the confirm button focused.
func NewConfirmModel(p reminder.Prompt, styles *Styles, keys ConfirmKeyMap) *ConfirmModel {
	h := help.New()
	h.Styles.ShortKey = styles.HelpKeyStyle
	h.Styles.ShortDesc = styles.HelpStyle
	h.Styles.ShortSeparator = styles.HelpStyle

	return &ConfirmModel{
		prompt:       p,
		styles:       styles,
		keys:         keys,
		help:         h,
		focusConfirm: true,
	}
}

// Init implements tea.Model.
func (m *ConfirmModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m *ConfirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Yes):
			return m.answer(true)
		case key.Matches(msg, m.keys.No), key.Matches(msg, m.keys.Cancel):
			return m.answer(false)
		case key.Matches(msg, m.keys.Switch):
			m.focusConfirm = !m.focusConfirm
		case key.Matches(msg, m.keys.Select):
			return m.answer(m.focusConfirm)
		}
	}
	return m, nil
}

func (m *ConfirmModel) answer(ok bool) (tea.Model, tea.Cmd) {
	m.answered = true
	m.confirmed = ok
	return m, tea.Quit
}

// View implements tea.Model.
func (m *ConfirmModel) View() string {
	if m.answered {
		return ""
	}

	confirm, cancel := m.styles.ButtonStyle, m.styles.ButtonStyle
	if m.focusConfirm {
		confirm = m.styles.ButtonFocusedStyle
	} else {
		cancel = m.styles.ButtonFocusedStyle
	}
	buttons := lipgloss.JoinHorizontal(lipgloss.Top,
		confirm.Render(m.prompt.Confirm),
		"  ",
		cancel.Render(m.prompt.Cancel),
	)

	var b strings.Builder
	b.WriteString(m.styles.HeaderStyle.Render(m.prompt.Title))
	b.WriteString("\n\n")
	b.WriteString(m.prompt.Message)
	b.WriteString("\n\n")
	b.WriteString(buttons)

	dialog := m.styles.DialogStyle
	if m.width > 0 {
		dialog = dialog.Width(min(60, max(20, m.width-4)))
	}
	return dialog.Render(b.String()) + "\n" + m.help.View(m.keys) + "\n"
}

// Answered reports whether the user made a choice.
func (m *ConfirmModel) Answered() bool {
	return m.answered
}

// Confirmed reports whether the choice was the confirm button.
func (m *ConfirmModel) Confirmed() bool {
	return m.confirmed
}

// Prompter shows reminder prompts as a dialog on a terminal. It implements
// reminder.Prompter.
type Prompter struct {
	styles *Styles
	keys   ConfirmKeyMap
	in     io.Reader
	out    io.Writer
}

// NewPrompter returns a prompter reading keys from in and drawing to out.
func NewPrompter(styles *Styles, in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		styles: styles,
		keys:   DefaultConfirmKeyMap(),
		in:     in,
		out:    out,
	}
}

// Confirm runs the dialog until the user answers or ctx is done.
func (p *Prompter) Confirm(ctx context.Context, pr reminder.Prompt) (bool, error) {
	model := NewConfirmModel(pr, p.styles, p.keys)
	program := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(p.in),
		tea.WithOutput(p.out),
	)

	final, err := program.Run()
	if err != nil {
		return false, fmt.Errorf("run prompt: %w", err)
	}

	m, ok := final.(*ConfirmModel)
	if !ok || !m.Answered() {
		return false, ErrNoAnswer
	}
	return m.Confirmed(), nil
}

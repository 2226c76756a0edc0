package ui

import (
	"paytrack/internal/config"
	"paytrack/internal/reminder"

	"github.com/charmbracelet/lipgloss"
)

// Styles holds all terminal styles, initialized with theme configuration.
type Styles struct {
	// Colors
	ColorPrimary   lipgloss.Color
	ColorAccent    lipgloss.Color
	ColorMuted     lipgloss.Color
	ColorDanger    lipgloss.Color
	ColorWarning   lipgloss.Color
	ColorSuccess   lipgloss.Color
	ColorText      lipgloss.Color
	ColorTextMuted lipgloss.Color

	// Component styles
	TitleStyle  lipgloss.Style
	HeaderStyle lipgloss.Style
	DialogStyle lipgloss.Style

	ButtonStyle        lipgloss.Style
	ButtonFocusedStyle lipgloss.Style

	// Reminder state badges
	ScheduledStyle   lipgloss.Style
	UnscheduledStyle lipgloss.Style
	NegotiatingStyle lipgloss.Style

	AmountStyle  lipgloss.Style
	MessageStyle lipgloss.Style

	HelpStyle    lipgloss.Style
	HelpKeyStyle lipgloss.Style

	StatusStyle  lipgloss.Style
	WarningStyle lipgloss.Style
	ErrorStyle   lipgloss.Style
}

// NewStyles creates a new Styles instance from the given config.
func NewStyles(cfg *config.Config) *Styles {
	return NewStylesFromTheme(&cfg.Theme)
}

// NewStylesFromTheme creates a new Styles instance from a ThemeConfig.
// If a theme color is empty, it uses the appropriate default.
func NewStylesFromTheme(theme *config.ThemeConfig) *Styles {
	s := &Styles{}

	s.ColorPrimary = colorOrDefault(theme.Primary, "#7C3AED")
	s.ColorAccent = colorOrDefault(theme.Accent, "#10B981")
	s.ColorMuted = colorOrDefault(theme.Muted, "#6B7280")
	s.ColorDanger = colorOrDefault(theme.Danger, "#EF4444")

	// Fixed semantic colors
	s.ColorWarning = lipgloss.Color("#F59E0B")
	s.ColorSuccess = lipgloss.Color("#10B981")
	s.ColorText = lipgloss.Color("#F9FAFB")
	s.ColorTextMuted = lipgloss.Color("#9CA3AF")

	s.initComponentStyles()

	return s
}

// colorOrDefault returns the lipgloss.Color from hex string, or default if empty.
func colorOrDefault(hex, defaultHex string) lipgloss.Color {
	if hex != "" {
		return lipgloss.Color(hex)
	}
	return lipgloss.Color(defaultHex)
}

func (s *Styles) initComponentStyles() {
	s.TitleStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(s.ColorText).
		Background(s.ColorPrimary).
		Padding(0, 1)

	s.HeaderStyle = lipgloss.NewStyle().
		Bold(true).
		Foreground(s.ColorPrimary)

	s.DialogStyle = lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(s.ColorPrimary).
		Padding(1, 2)

	s.ButtonStyle = lipgloss.NewStyle().
		Foreground(s.ColorTextMuted).
		Padding(0, 2)

	s.ButtonFocusedStyle = lipgloss.NewStyle().
		Foreground(s.ColorText).
		Background(s.ColorPrimary).
		Bold(true).
		Padding(0, 2)

	s.ScheduledStyle = lipgloss.NewStyle().
		Foreground(s.ColorSuccess).
		Bold(true)

	s.UnscheduledStyle = lipgloss.NewStyle().
		Foreground(s.ColorMuted)

	s.NegotiatingStyle = lipgloss.NewStyle().
		Foreground(s.ColorWarning)

	s.AmountStyle = lipgloss.NewStyle().
		Foreground(s.ColorAccent)

	s.MessageStyle = lipgloss.NewStyle().
		Foreground(s.ColorTextMuted).
		Italic(true)

	s.HelpStyle = lipgloss.NewStyle().
		Foreground(s.ColorTextMuted)

	s.HelpKeyStyle = lipgloss.NewStyle().
		Foreground(s.ColorAccent).
		Bold(true)

	s.StatusStyle = lipgloss.NewStyle().
		Foreground(s.ColorSuccess)

	s.WarningStyle = lipgloss.NewStyle().
		Foreground(s.ColorWarning)

	s.ErrorStyle = lipgloss.NewStyle().
		Foreground(s.ColorDanger).
		Bold(true)
}

// StateStyle returns the badge style for a reminder state.
func (s *Styles) StateStyle(state reminder.State) lipgloss.Style {
	switch state {
	case reminder.Scheduled:
		return s.ScheduledStyle
	case reminder.PendingNegotiation:
		return s.NegotiatingStyle
	default:
		return s.UnscheduledStyle
	}
}

// RenderHelp renders help text with key bindings using the given styles.
func (s *Styles) RenderHelp(keys ...string) string {
	var result string
	for i := 0; i+1 < len(keys); i += 2 {
		if i > 0 {
			result += "  "
		}
		result += s.HelpKeyStyle.Render("["+keys[i]+"]") + " " + s.HelpStyle.Render(keys[i+1])
	}
	return result
}

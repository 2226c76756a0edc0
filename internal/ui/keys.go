// Package ui renders paytrack's terminal output and runs its interactive
// prompts. Key bindings use the Bubble Tea key package so they can be
// matched and listed in help text.
package ui

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
)

// parseKeys splits a comma-separated string into individual keys.
// If the input is empty, returns the default keys.
func parseKeys(customKeys string, defaultKeys ...string) []string {
	if customKeys == "" {
		return defaultKeys
	}
	keys := strings.Split(customKeys, ",")
	result := make([]string, 0, len(keys))
	for _, k := range keys {
		trimmed := strings.TrimSpace(k)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

// ConfirmKeys overrides the confirm dialog bindings. Each field is a
// comma-separated key list; empty fields keep the defaults.
type ConfirmKeys struct {
	Yes    string
	No     string
	Switch string
	Select string
	Cancel string
}

// ConfirmKeyMap defines keys for the confirm dialog.
type ConfirmKeyMap struct {
	Yes    key.Binding
	No     key.Binding
	Switch key.Binding
	Select key.Binding
	Cancel key.Binding
}

// DefaultConfirmKeyMap returns the default confirm dialog bindings.
func DefaultConfirmKeyMap() ConfirmKeyMap {
	return NewConfirmKeyMap(ConfirmKeys{})
}

// NewConfirmKeyMap creates confirm dialog bindings, applying overrides.
func NewConfirmKeyMap(cfg ConfirmKeys) ConfirmKeyMap {
	return ConfirmKeyMap{
		Yes: key.NewBinding(
			key.WithKeys(parseKeys(cfg.Yes, "y", "Y")...),
			key.WithHelp("y", "yes"),
		),
		No: key.NewBinding(
			key.WithKeys(parseKeys(cfg.No, "n", "N")...),
			key.WithHelp("n", "no"),
		),
		Switch: key.NewBinding(
			key.WithKeys(parseKeys(cfg.Switch, "tab", "left", "right", "h", "l")...),
			key.WithHelp("tab/←/→", "switch"),
		),
		Select: key.NewBinding(
			key.WithKeys(parseKeys(cfg.Select, "enter", " ")...),
			key.WithHelp("enter", "select"),
		),
		Cancel: key.NewBinding(
			key.WithKeys(parseKeys(cfg.Cancel, "esc", "q", "ctrl+c")...),
			key.WithHelp("esc", "cancel"),
		),
	}
}

// ShortHelp returns the short help for the dialog (implements help.KeyMap).
func (k ConfirmKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Yes, k.No, k.Switch, k.Select, k.Cancel}
}

// FullHelp returns the full help for the dialog (implements help.KeyMap).
func (k ConfirmKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Yes, k.No},
		{k.Switch, k.Select, k.Cancel},
	}
}

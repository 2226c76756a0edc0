//go:build darwin

// This file implements macOS display and settings hand-off using osascript and open.
package notify

import (
	"fmt"
	"os/exec"
	"strings"
)

// darwinDisplayer shows notifications through osascript.
type darwinDisplayer struct{}

func newPlatformDisplayer() Displayer {
	return &darwinDisplayer{}
}

// Show displays a notification without sound.
func (d *darwinDisplayer) Show(title, body string) error {
	return d.display(title, body, false)
}

// ShowWithSound displays a notification with the default sound.
func (d *darwinDisplayer) ShowWithSound(title, body string) error {
	return d.display(title, body, true)
}

// IsSupported reports whether osascript is on PATH.
func (d *darwinDisplayer) IsSupported() bool {
	_, err := exec.LookPath("osascript")
	return err == nil
}

// Open hands path to the default application.
func (d *darwinDisplayer) Open(path string) error {
	if err := exec.Command("open", path).Start(); err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	return nil
}

func (d *darwinDisplayer) display(title, body string, sound bool) error {
	script := fmt.Sprintf(`display notification "%s" with title "%s"`, escapeAppleScript(body), escapeAppleScript(title))
	if sound {
		script += ` sound name "default"`
	}

	if err := exec.Command("osascript", "-e", script).Run(); err != nil {
		return fmt.Errorf("osascript failed: %w", err)
	}
	return nil
}

// escapeAppleScript escapes backslashes and quotes for an AppleScript string literal.
func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}

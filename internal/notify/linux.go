//go:build linux

// This file implements Linux display and settings hand-off using notify-send and xdg-open.
package notify

import (
	"fmt"
	"os/exec"
)

// linuxDisplayer shows notifications through notify-send.
type linuxDisplayer struct{}

func newPlatformDisplayer() Displayer {
	return &linuxDisplayer{}
}

// Show displays a notification without sound.
func (d *linuxDisplayer) Show(title, body string) error {
	return d.display(title, body, false)
}

// ShowWithSound displays a notification flagged critical so most daemons
// play their alert sound. Actual sound depends on the daemon configuration.
func (d *linuxDisplayer) ShowWithSound(title, body string) error {
	return d.display(title, body, true)
}

// IsSupported reports whether notify-send is on PATH.
func (d *linuxDisplayer) IsSupported() bool {
	_, err := exec.LookPath("notify-send")
	return err == nil
}

// Open hands path to the desktop's default application.
func (d *linuxDisplayer) Open(path string) error {
	if err := exec.Command("xdg-open", path).Start(); err != nil {
		return fmt.Errorf("xdg-open %s: %w", path, err)
	}
	return nil
}

func (d *linuxDisplayer) display(title, body string, sound bool) error {
	urgency := "--urgency=normal"
	if sound {
		urgency = "--urgency=critical"
	}

	cmd := exec.Command("notify-send", "--app-name=paytrack", urgency, title, body)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("notify-send failed: %w", err)
	}
	return nil
}

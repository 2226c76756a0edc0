//go:build !darwin && !linux

package notify

import "errors"

// stubDisplayer is used on platforms without a known notification tool.
type stubDisplayer struct{}

func newPlatformDisplayer() Displayer {
	return &stubDisplayer{}
}

func (d *stubDisplayer) Show(title, body string) error          { return nil }
func (d *stubDisplayer) ShowWithSound(title, body string) error { return nil }
func (d *stubDisplayer) IsSupported() bool                      { return false }

func (d *stubDisplayer) Open(path string) error {
	return errors.New("opening settings is not supported on this platform")
}

package notify

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Degraded is the backend for environments without a trigger primitive.
// It can still display a notification immediately when the platform allows.
// When a trigger registry is left over from running with the full backend,
// cancellations still reach it so that those triggers do not fire later.
type Degraded struct {
	displayer Displayer
	sound     bool
	registry  *Local
}

// NewDegraded returns a backend without trigger support. d may be nil.
func NewDegraded(d Displayer, sound bool) *Degraded {
	return &Degraded{displayer: d, sound: sound}
}

// SupportsTrigger always returns false.
func (b *Degraded) SupportsTrigger() bool { return false }

// EnsureChannel is a no-op.
func (b *Degraded) EnsureChannel(ctx context.Context, ch Channel) error { return nil }

// CreateTrigger always fails with ErrTriggerUnavailable.
func (b *Degraded) CreateTrigger(ctx context.Context, payload Payload, fireAt time.Time) (string, error) {
	return "", ErrTriggerUnavailable
}

// openRegistry attaches the trigger registry in dir if one exists there.
func (b *Degraded) openRegistry(dir string) error {
	if dir == "" {
		return nil
	}
	if _, err := os.Stat(filepath.Join(dir, registryFile)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	reg, err := NewLocal(dir, nil, LocalOptions{})
	if err != nil {
		return err
	}
	b.registry = reg
	return nil
}

// CancelTrigger removes id from a leftover registry, if any.
func (b *Degraded) CancelTrigger(ctx context.Context, id string) error {
	if b.registry == nil {
		return nil
	}
	return b.registry.CancelTrigger(ctx, id)
}

// CancelNotification forgets id in a leftover registry, if any.
func (b *Degraded) CancelNotification(ctx context.Context, id string) error {
	if b.registry == nil {
		return nil
	}
	return b.registry.CancelNotification(ctx, id)
}

// PendingTriggers is always empty.
func (b *Degraded) PendingTriggers(ctx context.Context) ([]Trigger, error) { return nil, nil }

// Settings reports notifications as authorized only when they can be shown.
// Exact alarms do not exist here.
func (b *Degraded) Settings(ctx context.Context) (Settings, error) {
	s := Settings{
		Notification: AuthorizationDenied,
		ExactAlarm:   AuthorizationDenied,
	}
	if b.displayer != nil && b.displayer.IsSupported() {
		s.Notification = AuthorizationAuthorized
	}
	return s, nil
}

// RequestPermission has no prompt to show.
func (b *Degraded) RequestPermission(ctx context.Context) (*PermissionResult, error) {
	return nil, nil
}

// OpenAlarmSettings is a no-op; there is nothing to configure.
func (b *Degraded) OpenAlarmSettings(ctx context.Context) error { return nil }

// Display shows the notification now if the platform can.
func (b *Degraded) Display(title, body string) error {
	return show(b.displayer, b.sound, title, body)
}

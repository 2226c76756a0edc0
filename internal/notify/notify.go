// Package notify is paytrack's local notification subsystem. It exposes a
// single Backend abstraction with two implementations: a full backend that
// can register triggers to fire at a future time, and a degraded backend for
// environments where only immediate display (or nothing) is possible. The
// implementation is chosen once at startup by New.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrTriggerUnavailable is returned when a trigger is requested from a
	// backend that has no trigger primitive. Callers are expected to check
	// SupportsTrigger first; hitting this is a programming error.
	ErrTriggerUnavailable = errors.New("notify: scheduled triggers are not available")

	// ErrUnknownTrigger is returned when cancelling an id that is not pending.
	ErrUnknownTrigger = errors.New("notify: unknown trigger")

	// ErrUnknownNotification is returned when cancelling an id that was never delivered.
	ErrUnknownNotification = errors.New("notify: unknown notification")

	// ErrUnknownChannel is returned when a trigger names a channel that was never created.
	ErrUnknownChannel = errors.New("notify: unknown channel")
)

// Importance classifies how intrusive a channel's notifications are.
type Importance string

const (
	ImportanceDefault Importance = "default"
	ImportanceHigh    Importance = "high"
)

// Authorization is the state of one permission.
type Authorization string

const (
	AuthorizationNotDetermined Authorization = "not_determined"
	AuthorizationDenied        Authorization = "denied"
	AuthorizationAuthorized    Authorization = "authorized"
)

// Channel groups notifications that share importance and sound.
type Channel struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Importance Importance `json:"importance"`
	Sound      bool       `json:"sound"`
}

// Payload is what a notification shows when it fires.
type Payload struct {
	Title   string `json:"title"`
	Body    string `json:"body,omitempty"`
	Channel string `json:"channel"`
}

// Trigger is a notification registered to fire at FireAt.
type Trigger struct {
	ID          string     `json:"id"`
	Payload     Payload    `json:"payload"`
	FireAt      time.Time  `json:"fire_at"`
	CreatedAt   time.Time  `json:"created_at"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// Settings is the current authorization state.
type Settings struct {
	Notification Authorization `json:"notification"`
	ExactAlarm   Authorization `json:"exact_alarm"`
}

// PermissionResult is returned by a platform permission prompt.
type PermissionResult struct {
	Notification Authorization
}

// Backend is the contract the reminder engine needs from the notification
// subsystem.
type Backend interface {
	// SupportsTrigger reports whether future-time triggers can be registered.
	SupportsTrigger() bool

	// EnsureChannel creates the channel if it does not exist yet.
	EnsureChannel(ctx context.Context, ch Channel) error

	// CreateTrigger registers payload to fire at fireAt and returns its id.
	CreateTrigger(ctx context.Context, payload Payload, fireAt time.Time) (string, error)

	// CancelTrigger removes a pending trigger.
	CancelTrigger(ctx context.Context, id string) error

	// CancelNotification removes an already delivered notification.
	CancelNotification(ctx context.Context, id string) error

	// PendingTriggers lists triggers that have not fired yet.
	PendingTriggers(ctx context.Context) ([]Trigger, error)

	// Settings returns the current authorization state.
	Settings(ctx context.Context) (Settings, error)

	// RequestPermission shows the platform permission prompt. It returns
	// nil where the platform has no such prompt.
	RequestPermission(ctx context.Context) (*PermissionResult, error)

	// OpenAlarmSettings sends the user to the exact-alarm settings surface.
	OpenAlarmSettings(ctx context.Context) error

	// Display shows a notification immediately.
	Display(title, body string) error
}

// Displayer is the platform primitive that puts a notification on screen.
type Displayer interface {
	Show(title, body string) error
	ShowWithSound(title, body string) error
	IsSupported() bool

	// Open hands a file to the platform's default application.
	Open(path string) error
}

// Options configures New.
type Options struct {
	// DataDir is where the trigger registry and permission grants live.
	DataDir string

	// Enabled selects the full backend when the platform supports it.
	Enabled bool

	// Sound plays the default sound on display.
	Sound bool

	Logger *logrus.Logger
}

// New selects the backend for this process. The full backend is used when
// notifications are enabled, the platform can display notifications and the
// registry directory is usable; otherwise the degraded backend is returned.
func New(opts Options) Backend {
	return newBackend(opts, newPlatformDisplayer())
}

func newBackend(opts Options, d Displayer) Backend {
	log := opts.Logger
	if log == nil {
		log = logrus.New()
	}

	if !opts.Enabled {
		log.Debug("Notifications disabled, using degraded backend")
		return newDegraded(opts, d, log)
	}
	if d == nil || !d.IsSupported() {
		log.Info("No notification tool found, using degraded backend")
		return newDegraded(opts, d, log)
	}

	local, err := NewLocal(opts.DataDir, d, LocalOptions{Sound: opts.Sound})
	if err != nil {
		log.WithError(err).Warn("Trigger registry unavailable, using degraded backend")
		return NewDegraded(d, opts.Sound)
	}
	return local
}

func newDegraded(opts Options, d Displayer, log *logrus.Logger) *Degraded {
	b := NewDegraded(d, opts.Sound)
	if err := b.openRegistry(opts.DataDir); err != nil {
		log.WithError(err).Warn("Existing trigger registry unreadable, cancellations will not reach it")
	}
	return b
}

func show(d Displayer, sound bool, title, body string) error {
	if d == nil || !d.IsSupported() {
		return nil
	}
	if sound {
		return d.ShowWithSound(title, body)
	}
	return d.Show(title, body)
}

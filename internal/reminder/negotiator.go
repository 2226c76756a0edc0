package reminder

import (
	"context"
	"time"

	"paytrack/internal/metrics"
	"paytrack/internal/notify"

	"github.com/sirupsen/logrus"
)

// Default negotiation timing.
const (
	DefaultPollInterval = time.Second
	DefaultPollTimeout  = 8 * time.Second
)

// Prompt is a binary choice shown to the user.
type Prompt struct {
	Title   string
	Message string
	Confirm string
	Cancel  string
}

// Prompter asks the user to confirm or cancel. An error counts as cancel.
type Prompter interface {
	Confirm(ctx context.Context, p Prompt) (bool, error)
}

// PrompterFunc adapts a function to Prompter.
type PrompterFunc func(ctx context.Context, p Prompt) (bool, error)

// Confirm calls f.
func (f PrompterFunc) Confirm(ctx context.Context, p Prompt) (bool, error) {
	return f(ctx, p)
}

// SettingsPrompt is what the user sees when scheduling needs a permission.
var SettingsPrompt = Prompt{
	Title:   "Allow payment reminders",
	Message: "paytrack needs permission to schedule exact alarms. Open the alarm settings now?",
	Confirm: "Open settings",
	Cancel:  "Not now",
}

// NegotiatorOptions configures a Negotiator.
type NegotiatorOptions struct {
	Prompter     Prompter
	PollInterval time.Duration
	PollTimeout  time.Duration
	Logger       logrus.FieldLogger
	Metrics      *metrics.Metrics
}

// Negotiator obtains missing permissions through the user. It never returns
// an error: the answer is only ever "may proceed" or "may not".
type Negotiator struct {
	probe    *Probe
	backend  notify.Backend
	prompter Prompter
	interval time.Duration
	timeout  time.Duration
	log      logrus.FieldLogger
	metrics  *metrics.Metrics
}

// NewNegotiator returns a negotiator using probe for state reads and
// backend for the settings deep link.
func NewNegotiator(probe *Probe, backend notify.Backend, opts NegotiatorOptions) *Negotiator {
	n := &Negotiator{
		probe:    probe,
		backend:  backend,
		prompter: opts.Prompter,
		interval: opts.PollInterval,
		timeout:  opts.PollTimeout,
		log:      opts.Logger,
		metrics:  opts.Metrics,
	}
	if n.interval <= 0 {
		n.interval = DefaultPollInterval
	}
	if n.timeout <= 0 {
		n.timeout = DefaultPollTimeout
	}
	if n.log == nil {
		n.log = logrus.StandardLogger()
	}
	return n
}

// Negotiate returns true when scheduling may proceed.
func (n *Negotiator) Negotiate(ctx context.Context) bool {
	granted := n.negotiate(ctx)
	n.metrics.ObserveNegotiation(granted)
	return granted
}

func (n *Negotiator) negotiate(ctx context.Context) bool {
	snap := n.probe.Snapshot(ctx)
	if snap.Authorized() {
		return true
	}

	if !snap.NotificationAuthorized {
		if res := n.probe.RequestNotificationPermission(ctx); res != nil && res.Notification == notify.AuthorizationAuthorized {
			snap = n.probe.Snapshot(ctx)
			if snap.Authorized() {
				return true
			}
		}
	}

	if n.prompter == nil {
		n.log.Debug("No prompter available, skipping permission negotiation")
		return false
	}
	ok, err := n.prompter.Confirm(ctx, SettingsPrompt)
	if err != nil {
		n.log.WithError(err).Debug("Permission prompt dismissed")
		return false
	}
	if !ok {
		n.log.Info("User declined to open alarm settings")
		return false
	}

	// The user can still grant through another route, so keep polling even
	// if the settings surface fails to open.
	if err := n.openSettings(ctx); err != nil {
		n.log.WithError(err).Warn("Failed to open alarm settings")
	}

	n.log.WithFields(logrus.Fields{
		"interval": n.interval,
		"timeout":  n.timeout,
	}).Debug("Waiting for permission grant")

	granted := WaitUntil(ctx, n.interval, n.timeout, func(ctx context.Context) (bool, error) {
		return n.probe.Snapshot(ctx).Authorized(), nil
	})
	if !granted {
		n.log.Info("Permission not granted before timeout")
	}
	return granted
}

func (n *Negotiator) openSettings(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	if n.backend == nil {
		return nil
	}
	return n.backend.OpenAlarmSettings(ctx)
}

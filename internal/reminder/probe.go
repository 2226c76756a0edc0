package reminder

import (
	"context"

	"paytrack/internal/notify"

	"github.com/sirupsen/logrus"
)

// CapabilitySnapshot is a point-in-time read of what the notification
// subsystem allows. It is never cached beyond one operation.
type CapabilitySnapshot struct {
	TriggerSupported       bool
	NotificationAuthorized bool
	ExactAlarmAuthorized   bool
}

// Authorized reports whether a schedule attempt may proceed without negotiation.
func (s CapabilitySnapshot) Authorized() bool {
	return s.NotificationAuthorized && s.ExactAlarmAuthorized
}

// Probe answers capability questions about a notify.Backend. It fails closed:
// any error or panic reads as "not supported" or "not authorized".
type Probe struct {
	backend notify.Backend
	log     logrus.FieldLogger
}

// NewProbe returns a probe over backend.
func NewProbe(backend notify.Backend, log logrus.FieldLogger) *Probe {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Probe{backend: backend, log: log}
}

// SupportsTrigger reports whether future triggers can be registered.
func (p *Probe) SupportsTrigger() (supported bool) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Warn("Trigger capability check panicked")
			supported = false
		}
	}()

	if p.backend == nil {
		return false
	}
	return p.backend.SupportsTrigger()
}

// Snapshot reads the current authorization state. All flags are false when
// the query fails.
func (p *Probe) Snapshot(ctx context.Context) (snap CapabilitySnapshot) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Warn("Capability query panicked")
			snap = CapabilitySnapshot{}
		}
	}()

	if p.backend == nil {
		return CapabilitySnapshot{}
	}

	settings, err := p.backend.Settings(ctx)
	if err != nil {
		p.log.WithError(err).Debug("Capability query failed")
		return CapabilitySnapshot{}
	}
	return CapabilitySnapshot{
		TriggerSupported:       p.SupportsTrigger(),
		NotificationAuthorized: settings.Notification == notify.AuthorizationAuthorized,
		ExactAlarmAuthorized:   settings.ExactAlarm == notify.AuthorizationAuthorized,
	}
}

// RequestNotificationPermission shows the platform permission prompt where
// one exists. It returns nil when there is no prompt or the request failed.
func (p *Probe) RequestNotificationPermission(ctx context.Context) (res *notify.PermissionResult) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithField("panic", r).Warn("Permission request panicked")
			res = nil
		}
	}()

	if p.backend == nil {
		return nil
	}
	res, err := p.backend.RequestPermission(ctx)
	if err != nil {
		p.log.WithError(err).Warn("Permission request failed")
		return nil
	}
	return res
}

package reminder

import (
	"context"
	"fmt"
	"time"

	"paytrack/internal/metrics"
	"paytrack/internal/notify"

	"github.com/sirupsen/logrus"
)

// Scheduler defaults.
const (
	DefaultChannel      = "payment-reminders"
	DefaultSafetyMargin = 5 * time.Second
)

// Payload is what a scheduled reminder shows.
type Payload struct {
	Title   string
	Body    string
	FireAt  time.Time
	Channel string
}

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	// Channel is used when a payload names none.
	Channel string

	// Sound enables the default sound on the channel.
	Sound bool

	// SafetyMargin is added to now when a fire time has already passed.
	SafetyMargin time.Duration

	Now     func() time.Time
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics
}

// Scheduler registers and cancels triggers on a notify.Backend.
type Scheduler struct {
	backend notify.Backend
	channel string
	sound   bool
	margin  time.Duration
	now     func() time.Time
	log     logrus.FieldLogger
	metrics *metrics.Metrics
}

// NewScheduler returns a scheduler over backend.
func NewScheduler(backend notify.Backend, opts SchedulerOptions) *Scheduler {
	s := &Scheduler{
		backend: backend,
		channel: opts.Channel,
		sound:   opts.Sound,
		margin:  opts.SafetyMargin,
		now:     opts.Now,
		log:     opts.Logger,
		metrics: opts.Metrics,
	}
	if s.channel == "" {
		s.channel = DefaultChannel
	}
	if s.margin <= 0 {
		s.margin = DefaultSafetyMargin
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	return s
}

// Schedule registers a trigger for p and returns its id. Callers must have
// checked that triggers are supported; otherwise ErrTriggerUnavailable is
// returned. A fire time at or before now is moved to now plus the safety margin.
func (s *Scheduler) Schedule(ctx context.Context, p Payload) (string, error) {
	if !s.backend.SupportsTrigger() {
		s.log.Error("Schedule called on a backend without trigger support")
		return "", notify.ErrTriggerUnavailable
	}

	fireAt := p.FireAt
	if now := s.now(); !fireAt.After(now) {
		fireAt = now.Add(s.margin)
		s.log.WithFields(logrus.Fields{
			"requested": p.FireAt,
			"fire_at":   fireAt,
		}).Warn("Fire time already passed, clamped forward")
	}

	channel := p.Channel
	if channel == "" {
		channel = s.channel
	}
	err := s.backend.EnsureChannel(ctx, notify.Channel{
		ID:         channel,
		Name:       "Payment reminders",
		Importance: notify.ImportanceHigh,
		Sound:      s.sound,
	})
	if err != nil {
		return "", fmt.Errorf("ensure channel %q: %w", channel, err)
	}

	id, err := s.backend.CreateTrigger(ctx, notify.Payload{
		Title:   p.Title,
		Body:    p.Body,
		Channel: channel,
	}, fireAt)
	if err != nil {
		return "", fmt.Errorf("create trigger: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"notification_id": id,
		"fire_at":         fireAt,
	}).Debug("Trigger scheduled")
	return id, nil
}

// Cancel removes id whether it is still pending or already delivered.
// It never fails; an empty id is a no-op.
func (s *Scheduler) Cancel(ctx context.Context, id string) {
	if id == "" {
		return
	}

	errTrigger := s.try(func() error { return s.backend.CancelTrigger(ctx, id) })
	errDelivered := s.try(func() error { return s.backend.CancelNotification(ctx, id) })

	// An id is either pending or delivered, so one of the two is expected to
	// miss.
	ok := errTrigger == nil || errDelivered == nil
	s.metrics.ObserveCancel(ok)

	log := s.log.WithField("notification_id", id)
	if !ok {
		log.WithFields(logrus.Fields{
			"trigger_error":      errTrigger,
			"notification_error": errDelivered,
		}).Warn("Failed to cancel notification")
		return
	}
	log.Debug("Notification cancelled")
}

// PendingTriggers lists the triggers that have not fired yet.
func (s *Scheduler) PendingTriggers(ctx context.Context) ([]notify.Trigger, error) {
	var triggers []notify.Trigger
	err := s.try(func() error {
		var err error
		triggers, err = s.backend.PendingTriggers(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return triggers, nil
}

// Pending lists the ids of triggers that have not fired yet.
func (s *Scheduler) Pending(ctx context.Context) ([]string, error) {
	triggers, err := s.PendingTriggers(ctx)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(triggers))
	for _, t := range triggers {
		ids = append(ids, t.ID)
	}
	return ids, nil
}

// ListPending is Pending without the error: failures yield an empty list.
func (s *Scheduler) ListPending(ctx context.Context) []string {
	ids, err := s.Pending(ctx)
	if err != nil {
		s.log.WithError(err).Warn("Failed to list pending triggers")
		return []string{}
	}
	return ids
}

func (s *Scheduler) try(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return fn()
}

// Package reminder keeps each payment reminder's persisted notification id
// consistent with the triggers actually registered in the notification
// subsystem. The Coordinator is the only writer of that id.
package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"paytrack/internal/cache"
	"paytrack/internal/metrics"
	"paytrack/internal/notify"
	"paytrack/internal/storage"

	"github.com/sirupsen/logrus"
)

// State is a reminder's scheduling state.
type State int

const (
	Unscheduled State = iota
	Scheduled
	PendingNegotiation
)

func (s State) String() string {
	switch s {
	case Scheduled:
		return "scheduled"
	case PendingNegotiation:
		return "pending-negotiation"
	default:
		return "unscheduled"
	}
}

// Outcome is the result of one schedule attempt.
type Outcome string

const (
	OutcomeNone        Outcome = ""
	OutcomeScheduled   Outcome = "scheduled"
	OutcomeUnsupported Outcome = "unsupported"
	OutcomeDeclined    Outcome = "declined"
	OutcomeInvalidTime Outcome = "invalid_time"
	OutcomeFailed      Outcome = "failed"
)

// Message returns the user-facing text for o.
func (o Outcome) Message() string {
	switch o {
	case OutcomeScheduled:
		return "Reminder scheduled."
	case OutcomeUnsupported:
		return "Reminders are limited in this environment: scheduled notifications are not available."
	case OutcomeDeclined:
		return "Scheduling skipped: permission was not granted."
	case OutcomeInvalidTime:
		return "Reminder must be scheduled in the future."
	case OutcomeFailed:
		return "Could not schedule the notification."
	default:
		return ""
	}
}

// Store is the data store the coordinator persists reminders in.
type Store interface {
	CreateReminder(ctx context.Context, f storage.ReminderFields) (*storage.Reminder, error)
	UpdateReminder(ctx context.Context, id int64, p storage.ReminderPatch) (*storage.Reminder, error)
	DeleteReminder(ctx context.Context, id int64) error
	GetReminder(ctx context.Context, id int64) (*storage.Reminder, error)
	ListReminders(ctx context.Context) ([]storage.Reminder, error)
	GetPayment(ctx context.Context, id int64) (*storage.Payment, error)
}

// CapabilityProbe reports what the notification subsystem allows.
type CapabilityProbe interface {
	SupportsTrigger() bool
	Snapshot(ctx context.Context) CapabilitySnapshot
}

// PermissionNegotiator obtains missing permissions.
type PermissionNegotiator interface {
	Negotiate(ctx context.Context) bool
}

// TriggerScheduler registers and cancels triggers.
type TriggerScheduler interface {
	Schedule(ctx context.Context, p Payload) (string, error)
	Cancel(ctx context.Context, id string)
	PendingTriggers(ctx context.Context) ([]notify.Trigger, error)
}

// Result describes the outcome of a lifecycle operation.
type Result struct {
	Reminder *storage.Reminder
	State    State
	Outcome  Outcome
	Message  string

	// Err is the scheduling error behind OutcomeFailed or OutcomeInvalidTime.
	Err error
}

// Edit holds the fields to change; nil fields are kept.
type Edit struct {
	DueDate *string
	DueTime *string
	Message *string
}

// ReconcileReport summarizes a Reconcile pass.
type ReconcileReport struct {
	// Skipped is set when the backend has no triggers to reconcile against.
	Skipped bool

	// Cleared counts persisted ids that had no live trigger.
	Cleared int

	// Orphans counts live triggers no reminder referenced; they were cancelled.
	Orphans int
}

// Options wires a Coordinator.
type Options struct {
	Store      Store
	Probe      CapabilityProbe
	Negotiator PermissionNegotiator
	Scheduler  TriggerScheduler

	// Cache is the notification id projection. Defaults to an unbounded in-memory cache.
	Cache cache.NotificationIDs

	Events  *Events
	Metrics *metrics.Metrics
	Logger  logrus.FieldLogger

	// Location interprets due dates and times. Defaults to time.Local.
	Location *time.Location

	// Now defaults to time.Now.
	Now func() time.Time

	// OrphanGrace keeps Reconcile from cancelling unreferenced triggers
	// younger than this; another process may not have recorded their id yet.
	// Defaults to DefaultOrphanGrace.
	OrphanGrace time.Duration
}

// DefaultOrphanGrace is the default Options.OrphanGrace.
const DefaultOrphanGrace = time.Minute

// Coordinator runs reminder lifecycle operations. Operations on the same
// reminder are serialized; Reconcile excludes all other operations.
type Coordinator struct {
	store      Store
	probe      CapabilityProbe
	negotiator PermissionNegotiator
	scheduler  TriggerScheduler
	cache      cache.NotificationIDs
	events     *Events
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
	loc        *time.Location
	now        func() time.Time
	grace      time.Duration

	locks *keyedMutex
	opMu  sync.RWMutex
}

// NewCoordinator returns a coordinator wired from opts.
func NewCoordinator(opts Options) *Coordinator {
	c := &Coordinator{
		store:      opts.Store,
		probe:      opts.Probe,
		negotiator: opts.Negotiator,
		scheduler:  opts.Scheduler,
		cache:      opts.Cache,
		events:     opts.Events,
		metrics:    opts.Metrics,
		log:        opts.Logger,
		loc:        opts.Location,
		now:        opts.Now,
		grace:      opts.OrphanGrace,
		locks:      newKeyedMutex(),
	}
	if c.cache == nil {
		c.cache = cache.NewMemory(0)
	}
	if c.log == nil {
		c.log = logrus.StandardLogger()
	}
	if c.loc == nil {
		c.loc = time.Local
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.grace <= 0 {
		c.grace = DefaultOrphanGrace
	}
	return c
}

// lock serializes work on id and holds off Reconcile.
func (c *Coordinator) lock(id int64) func() {
	c.opMu.RLock()
	unlock := c.locks.Lock(id)
	return func() {
		unlock()
		c.opMu.RUnlock()
	}
}

// FireTime combines the reminder's due date and time in the configured location.
func (c *Coordinator) FireTime(r *storage.Reminder) (time.Time, error) {
	t, err := time.ParseInLocation(storage.DateLayout+" "+storage.TimeLayout, r.DueDate+" "+r.DueTime, c.loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidTime, err)
	}
	return t, nil
}

// Create persists a new reminder and, when notify is set, schedules it.
// A scheduling failure leaves the reminder unscheduled; only a data-store
// failure is returned as an error.
func (c *Coordinator) Create(ctx context.Context, f storage.ReminderFields, notify bool) (*Result, error) {
	r, err := c.store.CreateReminder(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}

	unlock := c.lock(r.ID)
	defer unlock()

	c.project(ctx, r)
	c.publish(Event{Kind: EventCreated, ReminderID: r.ID, State: Unscheduled})
	c.log.WithField("reminder_id", r.ID).Info("Reminder created")

	if !notify {
		return &Result{Reminder: r, State: Unscheduled}, nil
	}

	res, err := c.schedule(ctx, r)
	if err != nil {
		// The record exists; report it unscheduled instead of failing Create.
		c.log.WithError(err).WithField("reminder_id", r.ID).Warn("Reminder created but not scheduled")
		return &Result{
			Reminder: r,
			State:    Unscheduled,
			Outcome:  OutcomeFailed,
			Message:  OutcomeFailed.Message(),
			Err:      err,
		}, nil
	}
	return res, nil
}

// ToggleOn schedules a trigger for an unscheduled reminder.
func (c *Coordinator) ToggleOn(ctx context.Context, id int64) (*Result, error) {
	unlock := c.lock(id)
	defer unlock()

	r, err := c.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Scheduled() {
		return &Result{Reminder: r, State: Scheduled, Outcome: OutcomeScheduled, Message: "Reminder is already scheduled."}, nil
	}
	return c.schedule(ctx, r)
}

// ToggleOff cancels the reminder's trigger and clears its id. The id is
// cleared even if cancellation fails.
func (c *Coordinator) ToggleOff(ctx context.Context, id int64) (*Result, error) {
	unlock := c.lock(id)
	defer unlock()

	r, err := c.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.NotificationID == nil {
		c.project(ctx, r)
		return &Result{Reminder: r, State: Unscheduled}, nil
	}

	c.scheduler.Cancel(ctx, *r.NotificationID)
	updated, err := c.clear(ctx, r.ID)
	if err != nil {
		return nil, err
	}

	c.publish(Event{Kind: EventUnscheduled, ReminderID: id, State: Unscheduled})
	c.log.WithField("reminder_id", id).Info("Reminder unscheduled")
	return &Result{Reminder: updated, State: Unscheduled, Message: "Reminder unscheduled."}, nil
}

// Edit updates a reminder. Message-only edits keep the existing trigger.
// Changing the date or time of a scheduled reminder cancels its trigger and
// schedules a new one; if that fails the reminder ends up unscheduled.
func (c *Coordinator) Edit(ctx context.Context, id int64, e Edit) (*Result, error) {
	unlock := c.lock(id)
	defer unlock()

	old, err := c.get(ctx, id)
	if err != nil {
		return nil, err
	}

	updated, err := c.store.UpdateReminder(ctx, id, storage.ReminderPatch{
		DueDate: e.DueDate,
		DueTime: e.DueTime,
		Message: e.Message,
	})
	if err != nil {
		c.invalidate(ctx, id)
		return nil, c.storeErr("update reminder", id, err)
	}

	moved := updated.DueDate != old.DueDate || updated.DueTime != old.DueTime
	if !old.Scheduled() || !moved {
		c.publish(Event{Kind: EventUpdated, ReminderID: id, State: stateOf(updated)})
		return &Result{Reminder: updated, State: stateOf(updated), Message: "Reminder updated."}, nil
	}

	c.log.WithFields(logrus.Fields{
		"reminder_id":     id,
		"notification_id": *old.NotificationID,
	}).Info("Due time changed, rescheduling")
	c.scheduler.Cancel(ctx, *old.NotificationID)
	return c.schedule(ctx, updated)
}

// Delete cancels the reminder's trigger, best-effort, and then deletes the
// record. A cancellation failure never blocks the delete.
func (c *Coordinator) Delete(ctx context.Context, id int64) error {
	unlock := c.lock(id)
	defer unlock()

	r, err := c.get(ctx, id)
	if err != nil {
		return err
	}
	if r.NotificationID != nil {
		c.scheduler.Cancel(ctx, *r.NotificationID)
	}

	if err := c.store.DeleteReminder(ctx, id); err != nil {
		c.invalidate(ctx, id)
		return c.storeErr("delete reminder", id, err)
	}

	c.invalidate(ctx, id)
	c.publish(Event{Kind: EventDeleted, ReminderID: id, State: Unscheduled})
	c.log.WithField("reminder_id", id).Info("Reminder deleted")
	return nil
}

// AttemptSchedule runs the full schedule flow for r without persisting
// anything. On OutcomeScheduled the returned id names the new trigger.
func (c *Coordinator) AttemptSchedule(ctx context.Context, r *storage.Reminder) (Outcome, string, error) {
	if !c.probe.SupportsTrigger() {
		return OutcomeUnsupported, "", nil
	}

	snap := c.probe.Snapshot(ctx)
	if !snap.Authorized() {
		c.publish(Event{Kind: EventNegotiating, ReminderID: r.ID, State: PendingNegotiation})
		if c.negotiator == nil || !c.negotiator.Negotiate(ctx) {
			return OutcomeDeclined, "", nil
		}
	}

	fireAt, err := c.FireTime(r)
	if err != nil {
		return OutcomeInvalidTime, "", err
	}
	if !fireAt.After(c.now()) {
		c.log.WithFields(logrus.Fields{
			"reminder_id": r.ID,
			"fire_at":     fireAt,
		}).Warn("Rejected schedule for a time that is not in the future")
		return OutcomeInvalidTime, "", ErrInvalidTime
	}

	id, err := c.scheduler.Schedule(ctx, c.payload(ctx, r, fireAt))
	if err != nil {
		return OutcomeFailed, "", err
	}
	return OutcomeScheduled, id, nil
}

// schedule runs AttemptSchedule and records the result on r. A reminder that
// still carries an id when the attempt fails has it cleared.
func (c *Coordinator) schedule(ctx context.Context, r *storage.Reminder) (*Result, error) {
	log := c.log.WithField("reminder_id", r.ID)

	outcome, notificationID, err := c.AttemptSchedule(ctx, r)
	c.metrics.ObserveSchedule(string(outcome))

	if outcome != OutcomeScheduled {
		switch outcome {
		case OutcomeFailed:
			log.WithError(err).Error("Failed to schedule reminder")
		default:
			log.WithField("outcome", outcome).Info("Reminder not scheduled")
		}

		if r.NotificationID != nil {
			updated, uerr := c.clear(ctx, r.ID)
			if uerr != nil {
				return nil, uerr
			}
			r = updated
		} else {
			c.project(ctx, r)
		}

		c.publish(Event{Kind: EventUnscheduled, ReminderID: r.ID, State: Unscheduled, Outcome: outcome, Message: outcome.Message()})
		return &Result{Reminder: r, State: Unscheduled, Outcome: outcome, Message: outcome.Message(), Err: err}, nil
	}

	updated, err := c.store.UpdateReminder(ctx, r.ID, storage.ReminderPatch{NotificationID: &notificationID})
	if err != nil {
		// Nothing references the new trigger; take it back down.
		c.scheduler.Cancel(ctx, notificationID)
		c.invalidate(ctx, r.ID)
		return nil, c.storeErr("persist notification id", r.ID, err)
	}

	c.project(ctx, updated)
	c.publish(Event{Kind: EventScheduled, ReminderID: r.ID, State: Scheduled, Outcome: outcome, NotificationID: notificationID, Message: outcome.Message()})
	log.WithField("notification_id", notificationID).Info("Reminder scheduled")
	return &Result{Reminder: updated, State: Scheduled, Outcome: outcome, Message: outcome.Message()}, nil
}

// MarkDelivered clears the id of the reminder whose trigger just fired. A
// delivered trigger is no longer live, so keeping the id would break the
// id-iff-live-trigger rule.
func (c *Coordinator) MarkDelivered(ctx context.Context, notificationID string) error {
	if notificationID == "" {
		return nil
	}

	reminders, err := c.store.ListReminders(ctx)
	if err != nil {
		return fmt.Errorf("list reminders: %w", err)
	}

	for _, r := range reminders {
		if r.NotificationID == nil || *r.NotificationID != notificationID {
			continue
		}
		return c.clearIfStill(ctx, r.ID, notificationID, EventDelivered)
	}

	c.log.WithField("notification_id", notificationID).Debug("Delivered trigger has no reminder")
	return nil
}

// Reconcile repairs drift between persisted ids and live triggers: ids with
// no pending trigger are cleared and pending triggers nobody references are
// cancelled. It is skipped when the backend has no triggers at all so that
// temporarily running without trigger support does not erase state.
//
// Reminders are read before triggers, so a trigger created by another process
// in between shows up unreferenced; triggers younger than the orphan grace
// period are left alone for that reason.
func (c *Coordinator) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	report := &ReconcileReport{}
	if !c.probe.SupportsTrigger() {
		report.Skipped = true
		return report, nil
	}

	reminders, err := c.store.ListReminders(ctx)
	if err != nil {
		return nil, fmt.Errorf("list reminders: %w", err)
	}

	pending, err := c.scheduler.PendingTriggers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending triggers: %w", err)
	}
	live := make(map[string]struct{}, len(pending))
	for _, t := range pending {
		live[t.ID] = struct{}{}
	}

	referenced := make(map[string]struct{}, len(reminders))
	for _, r := range reminders {
		if r.NotificationID == nil {
			c.project(ctx, &r)
			continue
		}
		nid := *r.NotificationID
		if _, ok := live[nid]; ok {
			referenced[nid] = struct{}{}
			c.project(ctx, &r)
			continue
		}

		cleared, err := c.clearStale(ctx, r.ID, nid)
		if err != nil {
			return report, err
		}
		if !cleared {
			continue
		}
		report.Cleared++
		c.publish(Event{Kind: EventUnscheduled, ReminderID: r.ID, State: Unscheduled, NotificationID: nid})
		c.log.WithFields(logrus.Fields{
			"reminder_id":     r.ID,
			"notification_id": nid,
		}).Info("Cleared stale notification id")
	}

	cutoff := c.now().Add(-c.grace)
	for _, t := range pending {
		if _, ok := referenced[t.ID]; ok {
			continue
		}
		if t.CreatedAt.After(cutoff) {
			c.log.WithField("notification_id", t.ID).Debug("Unreferenced trigger is recent, kept")
			continue
		}
		c.scheduler.Cancel(ctx, t.ID)
		report.Orphans++
		c.log.WithField("notification_id", t.ID).Info("Cancelled orphaned trigger")
	}
	return report, nil
}

// IsScheduled reads the scheduled state through the projection cache.
func (c *Coordinator) IsScheduled(ctx context.Context, id int64) (bool, error) {
	if v, ok, err := c.cache.Get(ctx, id); err != nil {
		c.log.WithError(err).Warn("Notification id cache read failed")
	} else if ok {
		return v != "", nil
	}

	r, err := c.get(ctx, id)
	if err != nil {
		return false, err
	}
	return r.Scheduled(), nil
}

// clearIfStill clears the id of reminder id if it still equals notificationID.
func (c *Coordinator) clearIfStill(ctx context.Context, id int64, notificationID string, kind EventKind) error {
	unlock := c.lock(id)
	defer unlock()

	cleared, err := c.clearStale(ctx, id, notificationID)
	if err != nil || !cleared {
		return err
	}
	c.publish(Event{Kind: kind, ReminderID: id, State: Unscheduled, NotificationID: notificationID})
	c.log.WithFields(logrus.Fields{
		"reminder_id":     id,
		"notification_id": notificationID,
	}).Info("Reminder delivered")
	return nil
}

// clearStale re-reads reminder id and clears its notification id only if it
// still equals notificationID. The caller holds the reminder's lock.
func (c *Coordinator) clearStale(ctx context.Context, id int64, notificationID string) (bool, error) {
	r, err := c.get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrReminderNotFound) {
			return false, nil
		}
		return false, err
	}
	if r.NotificationID == nil || *r.NotificationID != notificationID {
		return false, nil
	}
	if _, err := c.clear(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

// clear persists a null notification id.
func (c *Coordinator) clear(ctx context.Context, id int64) (*storage.Reminder, error) {
	updated, err := c.store.UpdateReminder(ctx, id, storage.ReminderPatch{ClearNotificationID: true})
	if err != nil {
		c.invalidate(ctx, id)
		return nil, c.storeErr("clear notification id", id, err)
	}
	c.project(ctx, updated)
	return updated, nil
}

func (c *Coordinator) get(ctx context.Context, id int64) (*storage.Reminder, error) {
	r, err := c.store.GetReminder(ctx, id)
	if err != nil {
		return nil, c.storeErr("get reminder", id, err)
	}
	c.project(ctx, r)
	return r, nil
}

func (c *Coordinator) storeErr(op string, id int64, err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s %d: %w", op, id, ErrReminderNotFound)
	}
	return fmt.Errorf("%s %d: %w", op, id, err)
}

func (c *Coordinator) payload(ctx context.Context, r *storage.Reminder, fireAt time.Time) Payload {
	paymentTitle := "Payment reminder"
	if p, err := c.store.GetPayment(ctx, r.PaymentID); err != nil {
		c.log.WithError(err).WithField("payment_id", r.PaymentID).Warn("Payment lookup failed, using generic title")
	} else {
		paymentTitle = p.Title
	}

	due := fireAt.Format("Mon Jan 2 15:04")
	if r.Message != "" {
		return Payload{Title: r.Message, Body: fmt.Sprintf("%s is due %s", paymentTitle, due), FireAt: fireAt}
	}
	return Payload{Title: paymentTitle, Body: fmt.Sprintf("Payment due %s", due), FireAt: fireAt}
}

// project writes r's persisted id into the cache. Cache failures are logged only.
func (c *Coordinator) project(ctx context.Context, r *storage.Reminder) {
	value := ""
	if r.NotificationID != nil {
		value = *r.NotificationID
	}
	if err := c.cache.Set(ctx, r.ID, value); err != nil {
		c.log.WithError(err).WithField("reminder_id", r.ID).Warn("Notification id cache write failed")
	}
}

func (c *Coordinator) invalidate(ctx context.Context, id int64) {
	if err := c.cache.Invalidate(ctx, id); err != nil {
		c.log.WithError(err).WithField("reminder_id", id).Warn("Notification id cache invalidate failed")
	}
}

func (c *Coordinator) publish(ev Event) {
	c.events.Publish(ev)
}

func stateOf(r *storage.Reminder) State {
	if r.Scheduled() {
		return Scheduled
	}
	return Unscheduled
}

package notify

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// onceSchedule is a cron.Schedule that fires a single time. cron asks for
// Next once when the entry is added and once after every run, so the first
// answer is the fire time (or t itself when that has already passed) and any
// later answer is the zero time, which cron treats as "never again".
type onceSchedule struct {
	at   time.Time
	done bool
}

// Next is only called from the cron goroutine.
func (s *onceSchedule) Next(t time.Time) time.Time {
	if s.done {
		return time.Time{}
	}
	s.done = true
	if t.Before(s.at) {
		return s.at
	}
	return t
}

// Runner fires the triggers in a Local registry at their fire time. The
// registry is re-read every reload interval so triggers added or cancelled by
// other paytrack processes are picked up.
type Runner struct {
	backend *Local
	cron    *cron.Cron
	reload  time.Duration
	log     *logrus.Logger

	mu      sync.Mutex
	entries map[string]cron.EntryID // trigger id -> cron entry

	// OnFire is called after a trigger has been delivered.
	OnFire func(ctx context.Context, t Trigger)
}

// NewRunner creates a runner for backend.
func NewRunner(backend *Local, reload time.Duration, log *logrus.Logger) *Runner {
	if reload <= 0 {
		reload = 30 * time.Second
	}
	if log == nil {
		log = logrus.New()
	}
	return &Runner{
		backend: backend,
		cron:    cron.New(cron.WithLocation(time.Local)),
		reload:  reload,
		log:     log,
		entries: make(map[string]cron.EntryID),
	}
}

// Start syncs the registry once and starts firing.
func (r *Runner) Start(ctx context.Context) error {
	r.log.Info("Starting trigger runner")

	if err := r.Sync(ctx); err != nil {
		return err
	}

	r.cron.Schedule(cron.Every(r.reload), cron.FuncJob(func() {
		if err := r.Sync(ctx); err != nil {
			r.log.WithError(err).Error("Failed to reload trigger registry")
		}
	}))
	r.cron.Start()

	r.log.WithField("scheduled", r.Scheduled()).Info("Trigger runner started")
	return nil
}

// Stop stops the runner and waits for running jobs.
func (r *Runner) Stop() {
	r.log.Info("Stopping trigger runner")
	<-r.cron.Stop().Done()
}

// Scheduled returns how many triggers are waiting in cron.
func (r *Runner) Scheduled() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Sync aligns cron entries with the registry: new triggers are scheduled,
// triggers no longer pending are dropped, and overdue ones fire right away.
func (r *Runner) Sync(ctx context.Context) error {
	pending, err := r.backend.PendingTriggers(ctx)
	if err != nil {
		return err
	}

	now := r.backend.now()
	live := make(map[string]struct{}, len(pending))
	var overdue []Trigger

	r.mu.Lock()
	for _, t := range pending {
		live[t.ID] = struct{}{}
		if _, ok := r.entries[t.ID]; ok {
			continue
		}
		if !t.FireAt.After(now) {
			overdue = append(overdue, t)
			continue
		}

		id := t.ID
		r.entries[id] = r.cron.Schedule(&onceSchedule{at: t.FireAt}, cron.FuncJob(func() {
			r.fire(ctx, id)
		}))
		r.log.WithFields(logrus.Fields{
			"trigger_id": id,
			"fire_at":    t.FireAt,
		}).Debug("Scheduled trigger")
	}
	for id, entryID := range r.entries {
		if _, ok := live[id]; !ok {
			r.cron.Remove(entryID)
			delete(r.entries, id)
		}
	}
	r.mu.Unlock()

	for _, t := range overdue {
		r.log.WithField("trigger_id", t.ID).Info("Firing overdue trigger")
		r.fire(ctx, t.ID)
	}
	return nil
}

func (r *Runner) fire(ctx context.Context, id string) {
	r.mu.Lock()
	if entryID, ok := r.entries[id]; ok {
		r.cron.Remove(entryID)
		delete(r.entries, id)
	}
	r.mu.Unlock()

	log := r.log.WithField("trigger_id", id)
	fired, err := r.backend.Deliver(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to deliver trigger")
	}
	if fired == nil {
		log.Debug("Trigger no longer pending, skipped")
		return
	}

	log.Info("Trigger delivered")
	if r.OnFire != nil {
		r.OnFire(ctx, *fired)
	}
}

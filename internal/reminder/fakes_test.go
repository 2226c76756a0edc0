package reminder

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"paytrack/internal/cache"
	"paytrack/internal/notify"
	"paytrack/internal/storage"

	"github.com/sirupsen/logrus"
)

// callLog records the order of calls across fakes.
type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, fmt.Sprintf(format, args...))
}

func (l *callLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

// indexOf returns the position of the first call equal to s, or -1.
func (l *callLog) indexOf(s string) int {
	for i, c := range l.all() {
		if c == s {
			return i
		}
	}
	return -1
}

// fakeBackend is an in-memory notify.Backend.
type fakeBackend struct {
	mu  sync.Mutex
	log *callLog

	supportsTrigger bool
	settings        notify.Settings
	settingsErr     error
	settingsCalls   int
	permission      *notify.PermissionResult

	createErr             error
	cancelTriggerErr      error
	cancelNotificationErr error
	pendingErr            error
	panicOnCancel         bool

	seq       int
	pending   map[string]notify.Trigger
	created   []notify.Trigger
	channels  map[string]notify.Channel
	openCalls int
	onOpen    func()
}

func newFakeBackend(log *callLog) *fakeBackend {
	return &fakeBackend{
		log:             log,
		supportsTrigger: true,
		settings: notify.Settings{
			Notification: notify.AuthorizationAuthorized,
			ExactAlarm:   notify.AuthorizationAuthorized,
		},
		pending:  make(map[string]notify.Trigger),
		channels: make(map[string]notify.Channel),
	}
}

func (b *fakeBackend) SupportsTrigger() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.supportsTrigger
}

func (b *fakeBackend) EnsureChannel(ctx context.Context, ch notify.Channel) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log.add("ensure-channel %s", ch.ID)
	b.channels[ch.ID] = ch
	return nil
}

func (b *fakeBackend) CreateTrigger(ctx context.Context, p notify.Payload, fireAt time.Time) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log.add("create-trigger")
	if b.createErr != nil {
		return "", b.createErr
	}
	if _, ok := b.channels[p.Channel]; !ok {
		return "", notify.ErrUnknownChannel
	}
	b.seq++
	t := notify.Trigger{ID: fmt.Sprintf("n-%d", b.seq), Payload: p, FireAt: fireAt}
	b.pending[t.ID] = t
	b.created = append(b.created, t)
	return t.ID, nil
}

func (b *fakeBackend) CancelTrigger(ctx context.Context, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.log.add("cancel %s", id)
	if b.panicOnCancel {
		panic("cancel exploded")
	}
	if b.cancelTriggerErr != nil {
		return b.cancelTriggerErr
	}
	if _, ok := b.pending[id]; !ok {
		return notify.ErrUnknownTrigger
	}
	delete(b.pending, id)
	return nil
}

func (b *fakeBackend) CancelNotification(ctx context.Context, id string) error {
	if b.cancelNotificationErr != nil {
		return b.cancelNotificationErr
	}
	return notify.ErrUnknownNotification
}

func (b *fakeBackend) PendingTriggers(ctx context.Context) ([]notify.Trigger, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pendingErr != nil {
		return nil, b.pendingErr
	}
	out := make([]notify.Trigger, 0, len(b.pending))
	for _, t := range b.pending {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (b *fakeBackend) Settings(ctx context.Context) (notify.Settings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settingsCalls++
	return b.settings, b.settingsErr
}

func (b *fakeBackend) RequestPermission(ctx context.Context) (*notify.PermissionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.permission, nil
}

func (b *fakeBackend) OpenAlarmSettings(ctx context.Context) error {
	b.mu.Lock()
	b.openCalls++
	onOpen := b.onOpen
	b.mu.Unlock()
	if onOpen != nil {
		onOpen()
	}
	return nil
}

func (b *fakeBackend) Display(title, body string) error { return nil }

func (b *fakeBackend) setExactAlarm(a notify.Authorization) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings.ExactAlarm = a
}

func (b *fakeBackend) createCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.created)
}

func (b *fakeBackend) isPending(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.pending[id]
	return ok
}

func (b *fakeBackend) pendingIDs() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	ids := make([]string, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	return ids
}

// fakeStore is an in-memory Store with failure injection.
type fakeStore struct {
	mu  sync.Mutex
	log *callLog

	nextID    int64
	reminders map[int64]storage.Reminder
	payments  map[int64]storage.Payment

	createErr error
	updateErr error
	deleteErr error
}

func newFakeStore(log *callLog) *fakeStore {
	return &fakeStore{
		log:       log,
		nextID:    1,
		reminders: make(map[int64]storage.Reminder),
		payments: map[int64]storage.Payment{
			1: {ID: 1, Title: "Netflix"},
		},
	}
}

func (s *fakeStore) CreateReminder(ctx context.Context, f storage.ReminderFields) (*storage.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.add("store-create")
	if s.createErr != nil {
		return nil, s.createErr
	}
	r := storage.Reminder{ID: s.nextID, PaymentID: f.PaymentID, DueDate: f.DueDate, DueTime: f.DueTime, Message: f.Message}
	s.nextID++
	s.reminders[r.ID] = r
	return &r, nil
}

func (s *fakeStore) UpdateReminder(ctx context.Context, id int64, p storage.ReminderPatch) (*storage.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.add("store-update %d", id)
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	r, ok := s.reminders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	if p.DueDate != nil {
		r.DueDate = *p.DueDate
	}
	if p.DueTime != nil {
		r.DueTime = *p.DueTime
	}
	if p.Message != nil {
		r.Message = *p.Message
	}
	switch {
	case p.ClearNotificationID:
		r.NotificationID = nil
	case p.NotificationID != nil:
		v := *p.NotificationID
		r.NotificationID = &v
	}
	s.reminders[id] = r
	return &r, nil
}

func (s *fakeStore) DeleteReminder(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.add("store-delete %d", id)
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.reminders[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.reminders, id)
	return nil
}

func (s *fakeStore) GetReminder(ctx context.Context, id int64) (*storage.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &r, nil
}

func (s *fakeStore) ListReminders(ctx context.Context) ([]storage.Reminder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]storage.Reminder, 0, len(s.reminders))
	for _, r := range s.reminders {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *fakeStore) GetPayment(ctx context.Context, id int64) (*storage.Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return &p, nil
}

// put stores r directly, bypassing the coordinator.
func (s *fakeStore) put(r storage.Reminder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[r.ID] = r
	if r.ID >= s.nextID {
		s.nextID = r.ID + 1
	}
}

// fakeNegotiator returns a fixed answer and counts calls.
type fakeNegotiator struct {
	mu     sync.Mutex
	answer bool
	calls  int
}

func (n *fakeNegotiator) Negotiate(ctx context.Context) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
	return n.answer
}

func (n *fakeNegotiator) callCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

// testNow is the fixed clock used by coordinator tests.
var testNow = time.Date(2030, 3, 10, 12, 0, 0, 0, time.UTC)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type harness struct {
	log        *callLog
	backend    *fakeBackend
	store      *fakeStore
	negotiator *fakeNegotiator
	cache      *cache.Memory
	events     *Events
	coord      *Coordinator
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	log := &callLog{}
	h := &harness{
		log:        log,
		backend:    newFakeBackend(log),
		store:      newFakeStore(log),
		negotiator: &fakeNegotiator{},
		cache:      cache.NewMemory(0),
		events:     NewEvents(),
	}

	logger := quietLogger()
	now := func() time.Time { return testNow }
	h.coord = NewCoordinator(Options{
		Store:      h.store,
		Probe:      NewProbe(h.backend, logger),
		Negotiator: h.negotiator,
		Scheduler:  NewScheduler(h.backend, SchedulerOptions{Now: now, Logger: logger}),
		Cache:      h.cache,
		Events:     h.events,
		Logger:     logger,
		Location:   time.UTC,
		Now:        now,
	})
	return h
}

// createReminder adds an unscheduled reminder through the coordinator.
func (h *harness) createReminder(t *testing.T, date, clock string) *storage.Reminder {
	t.Helper()
	res, err := h.coord.Create(context.Background(), storage.ReminderFields{
		PaymentID: 1,
		DueDate:   date,
		DueTime:   clock,
	}, false)
	if err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	return res.Reminder
}

// scheduledReminder adds a reminder and schedules it.
func (h *harness) scheduledReminder(t *testing.T, date, clock string) *storage.Reminder {
	t.Helper()
	r := h.createReminder(t, date, clock)
	res, err := h.coord.ToggleOn(context.Background(), r.ID)
	if err != nil {
		t.Fatalf("ToggleOn() error: %v", err)
	}
	if res.State != Scheduled {
		t.Fatalf("ToggleOn() state = %v (%s), want scheduled", res.State, res.Outcome)
	}
	return res.Reminder
}

// assertConsistent checks that every persisted id has a live trigger and
// every live trigger is referenced by exactly one reminder.
func (h *harness) assertConsistent(t *testing.T) {
	t.Helper()

	reminders, _ := h.store.ListReminders(context.Background())
	referenced := make(map[string]int64)
	for _, r := range reminders {
		if r.NotificationID == nil {
			continue
		}
		if !h.backend.isPending(*r.NotificationID) {
			t.Errorf("reminder %d references %s, which is not live", r.ID, *r.NotificationID)
		}
		if other, dup := referenced[*r.NotificationID]; dup {
			t.Errorf("reminders %d and %d share %s", other, r.ID, *r.NotificationID)
		}
		referenced[*r.NotificationID] = r.ID
	}
	for _, id := range h.backend.pendingIDs() {
		if _, ok := referenced[id]; !ok {
			t.Errorf("live trigger %s is orphaned", id)
		}
	}
}

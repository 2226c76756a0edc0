// Package storage persists payments and reminders. Storage keeps them in JSON
// files in the data directory; PostgresStore keeps them in PostgreSQL. Both
// satisfy the same method set so the reminder engine can use either.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"paytrack/internal/fsutil"

	"github.com/gofrs/flock"
)

const (
	paymentsFile  = "payments.json"
	remindersFile = "reminders.json"
	lockFile      = "store.lock"

	dataDirPerm  os.FileMode = 0700
	dataFilePerm os.FileMode = 0600
)

// Storage handles all file I/O operations
type Storage struct {
	dataDir string
	now     func() time.Time // injectable clock for deterministic tests

	// mu serializes read-modify-write cycles within this process; flock
	// extends that to other paytrack processes on the same data directory.
	mu    sync.Mutex
	flock *flock.Flock
}

// New creates a new Storage instance with the given data directory
func New(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, dataDirPerm); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	s := &Storage{
		dataDir: dataDir,
		now:     time.Now,
		flock:   flock.New(filepath.Join(dataDir, lockFile)),
	}
	if err := s.initFiles(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetNowFunc overrides the clock used for timestamps.
// Passing nil resets it to time.Now.
func (s *Storage) SetNowFunc(now func() time.Time) {
	if now == nil {
		s.now = time.Now
		return
	}
	s.now = now
}

// GetDataDir returns the path to the data directory.
func (s *Storage) GetDataDir() string {
	return s.dataDir
}

// Close is a no-op; it lets Storage stand in wherever a closable store is expected.
func (s *Storage) Close() {}

// lock takes the in-process mutex and the data directory's store lock.
func (s *Storage) lock() (unlock func(), err error) {
	s.mu.Lock()
	if err := s.flock.Lock(); err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("lock %s: %w", lockFile, err)
	}
	return func() {
		_ = s.flock.Unlock()
		s.mu.Unlock()
	}, nil
}

func (s *Storage) initFiles() error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if !fileExists(s.path(paymentsFile)) {
		if err := s.writeJSONAtomic(paymentsFile, &PaymentStore{NextID: 1, Payments: []Payment{}}); err != nil {
			return err
		}
	}
	if !fileExists(s.path(remindersFile)) {
		if err := s.writeJSONAtomic(remindersFile, &ReminderStore{NextID: 1, Reminders: []Reminder{}}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) path(filename string) string {
	return filepath.Join(s.dataDir, filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil || !os.IsNotExist(err)
}

func (s *Storage) writeJSONAtomic(filename string, v any) error {
	path := s.path(filename)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize %s: %w", filename, err)
	}

	// Keep a best-effort backup before overwriting.
	fsutil.BestEffortBackup(path, dataFilePerm)

	if err := fsutil.WriteFileAtomic(path, data, dataFilePerm); err != nil {
		return fmt.Errorf("write %s: %w", filename, err)
	}
	return nil
}

func (s *Storage) loadJSONWithRecovery(filename string, v any) error {
	path := s.path(filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s.writeJSONAtomic(filename, v)
		}
		return fmt.Errorf("read %s: %w", filename, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return s.recoverCorruptJSON(filename, v, fmt.Errorf("%s is empty", filename))
	}

	if err := json.Unmarshal(data, v); err != nil {
		return s.recoverCorruptJSON(filename, v, fmt.Errorf("parse %s: %w", filename, err))
	}
	return nil
}

// recoverCorruptJSON restores filename from its .bak copy when possible, or
// resets it to v otherwise. The broken file is kept next to it. The returned
// error describes what happened; v holds usable data either way.
func (s *Storage) recoverCorruptJSON(filename string, v any, cause error) error {
	path := s.path(filename)
	corruptPath := fmt.Sprintf("%s.corrupt.%s", path, s.now().Format("20060102-150405"))

	bakData, bakErr := os.ReadFile(path + ".bak")
	if bakErr == nil && len(bytes.TrimSpace(bakData)) > 0 {
		if err := json.Unmarshal(bakData, v); err == nil {
			_ = os.Rename(path, corruptPath)
			_ = s.writeJSONAtomic(filename, v)
			return fmt.Errorf("%s (recovered from %s.bak)", cause.Error(), filename)
		}
	}

	_ = os.Rename(path, corruptPath)
	_ = s.writeJSONAtomic(filename, v)
	return fmt.Errorf("%s (reset to defaults; original moved to %s)", cause.Error(), corruptPath)
}

// ============================================================================
// Payments
// ============================================================================

// LoadPayments reads payments from disk
func (s *Storage) LoadPayments() (*PaymentStore, error) {
	store := PaymentStore{NextID: 1, Payments: []Payment{}}
	err := s.loadJSONWithRecovery(paymentsFile, &store)
	return &store, err
}

// LoadReminders reads reminders from disk
func (s *Storage) LoadReminders() (*ReminderStore, error) {
	store := ReminderStore{NextID: 1, Reminders: []Reminder{}}
	err := s.loadJSONWithRecovery(remindersFile, &store)
	return &store, err
}

// CreatePayment adds a new payment.
func (s *Storage) CreatePayment(ctx context.Context, f PaymentFields) (*Payment, error) {
	f, err := normalizePayment(f)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	store, err := s.LoadPayments()
	if err != nil {
		return nil, err
	}

	p := Payment{
		ID:        nextID(&store.NextID, maxPaymentID(store.Payments)),
		Title:     f.Title,
		Amount:    f.Amount,
		DueDay:    f.DueDay,
		CreatedAt: s.now(),
	}
	store.Payments = append(store.Payments, p)

	if err := s.writeJSONAtomic(paymentsFile, store); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetPayment returns the payment with id.
func (s *Storage) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	store, err := s.LoadPayments()
	if err != nil {
		return nil, err
	}
	for i := range store.Payments {
		if store.Payments[i].ID == id {
			p := store.Payments[i]
			return &p, nil
		}
	}
	return nil, fmt.Errorf("payment %d: %w", id, ErrNotFound)
}

// ListPayments returns all payments ordered by id.
func (s *Storage) ListPayments(ctx context.Context) ([]Payment, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	store, err := s.LoadPayments()
	if err != nil {
		return nil, err
	}
	out := append([]Payment(nil), store.Payments...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// DeletePayment removes a payment and, like the SQL schema's cascade, every
// reminder that references it. Cancelling their triggers is the caller's job.
func (s *Storage) DeletePayment(ctx context.Context, id int64) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	payments, err := s.LoadPayments()
	if err != nil {
		return err
	}
	found := false
	for i := range payments.Payments {
		if payments.Payments[i].ID == id {
			payments.Payments = append(payments.Payments[:i], payments.Payments[i+1:]...)
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("payment %d: %w", id, ErrNotFound)
	}

	reminders, err := s.LoadReminders()
	if err != nil {
		return err
	}
	kept := reminders.Reminders[:0]
	for _, r := range reminders.Reminders {
		if r.PaymentID != id {
			kept = append(kept, r)
		}
	}
	reminders.Reminders = kept

	if err := s.writeJSONAtomic(remindersFile, reminders); err != nil {
		return err
	}
	return s.writeJSONAtomic(paymentsFile, payments)
}

// ============================================================================
// Reminders
// ============================================================================

// CreateReminder adds a new reminder. New reminders never carry a
// notification id.
func (s *Storage) CreateReminder(ctx context.Context, f ReminderFields) (*Reminder, error) {
	f, err := normalizeReminder(f)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	payments, err := s.LoadPayments()
	if err != nil {
		return nil, err
	}
	if !hasPayment(payments.Payments, f.PaymentID) {
		return nil, fmt.Errorf("payment %d: %w", f.PaymentID, ErrNotFound)
	}

	store, err := s.LoadReminders()
	if err != nil {
		return nil, err
	}

	now := s.now()
	r := Reminder{
		ID:        nextID(&store.NextID, maxReminderID(store.Reminders)),
		PaymentID: f.PaymentID,
		DueDate:   f.DueDate,
		DueTime:   f.DueTime,
		Message:   f.Message,
		CreatedAt: now,
		UpdatedAt: now,
	}
	store.Reminders = append(store.Reminders, r)

	if err := s.writeJSONAtomic(remindersFile, store); err != nil {
		return nil, err
	}
	return &r, nil
}

// GetReminder returns the reminder with id.
func (s *Storage) GetReminder(ctx context.Context, id int64) (*Reminder, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	store, err := s.LoadReminders()
	if err != nil {
		return nil, err
	}
	for i := range store.Reminders {
		if store.Reminders[i].ID == id {
			r := store.Reminders[i]
			return &r, nil
		}
	}
	return nil, fmt.Errorf("reminder %d: %w", id, ErrNotFound)
}

// ListReminders returns all reminders ordered by due date and time.
func (s *Storage) ListReminders(ctx context.Context) ([]Reminder, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	store, err := s.LoadReminders()
	if err != nil {
		return nil, err
	}
	out := append([]Reminder(nil), store.Reminders...)
	SortReminders(out)
	return out, nil
}

// UpdateReminder applies patch to the reminder with id and returns the result.
func (s *Storage) UpdateReminder(ctx context.Context, id int64, patch ReminderPatch) (*Reminder, error) {
	unlock, err := s.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	store, err := s.LoadReminders()
	if err != nil {
		return nil, err
	}

	for i := range store.Reminders {
		if store.Reminders[i].ID != id {
			continue
		}
		updated := store.Reminders[i]
		if err := applyPatch(&updated, patch); err != nil {
			return nil, err
		}
		updated.UpdatedAt = s.now()
		store.Reminders[i] = updated

		if err := s.writeJSONAtomic(remindersFile, store); err != nil {
			return nil, err
		}
		return &updated, nil
	}
	return nil, fmt.Errorf("reminder %d: %w", id, ErrNotFound)
}

// DeleteReminder removes the reminder with id.
func (s *Storage) DeleteReminder(ctx context.Context, id int64) error {
	unlock, err := s.lock()
	if err != nil {
		return err
	}
	defer unlock()

	store, err := s.LoadReminders()
	if err != nil {
		return err
	}

	for i := range store.Reminders {
		if store.Reminders[i].ID == id {
			store.Reminders = append(store.Reminders[:i], store.Reminders[i+1:]...)
			return s.writeJSONAtomic(remindersFile, store)
		}
	}
	return fmt.Errorf("reminder %d: %w", id, ErrNotFound)
}

// SortReminders orders reminders by due date, due time, then id.
func SortReminders(rs []Reminder) {
	sort.SliceStable(rs, func(i, j int) bool {
		a, b := rs[i], rs[j]
		if a.DueDate != b.DueDate {
			return a.DueDate < b.DueDate
		}
		if a.DueTime != b.DueTime {
			return a.DueTime < b.DueTime
		}
		return a.ID < b.ID
	})
}

// nextID hands out the next id, never reusing one below maxSeen.
func nextID(counter *int64, maxSeen int64) int64 {
	if *counter <= maxSeen {
		*counter = maxSeen + 1
	}
	id := *counter
	*counter++
	return id
}

func maxPaymentID(ps []Payment) int64 {
	var m int64
	for _, p := range ps {
		if p.ID > m {
			m = p.ID
		}
	}
	return m
}

func maxReminderID(rs []Reminder) int64 {
	var m int64
	for _, r := range rs {
		if r.ID > m {
			m = r.ID
		}
	}
	return m
}

func hasPayment(ps []Payment, id int64) bool {
	for _, p := range ps {
		if p.ID == id {
			return true
		}
	}
	return false
}

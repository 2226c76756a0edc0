package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"
)

// createTestStorage creates a Storage instance with a temporary directory.
func createTestStorage(t *testing.T) *Storage {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create test storage: %v", err)
	}
	return store
}

// createTestPayment adds a payment and fails the test on error.
func createTestPayment(t *testing.T, store *Storage, title string) *Payment {
	t.Helper()
	p, err := store.CreatePayment(context.Background(), PaymentFields{Title: title, Amount: 15.49, DueDay: 3})
	if err != nil {
		t.Fatalf("CreatePayment() error = %v", err)
	}
	return p
}

func strPtr(s string) *string { return &s }

// =============================================================================
// Payment Tests
// =============================================================================

func TestCreatePayment(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	p := createTestPayment(t, store, "  Netflix  ")
	if p.Title != "Netflix" {
		t.Errorf("p.Title = %q, want trimmed %q", p.Title, "Netflix")
	}
	if p.ID != 1 {
		t.Errorf("p.ID = %d, want 1", p.ID)
	}
	if p.CreatedAt.IsZero() {
		t.Error("p.CreatedAt is zero")
	}

	second := createTestPayment(t, store, "Rent")
	if second.ID != 2 {
		t.Errorf("second.ID = %d, want 2", second.ID)
	}

	got, err := store.GetPayment(ctx, p.ID)
	if err != nil {
		t.Fatalf("GetPayment() error = %v", err)
	}
	if got.Title != "Netflix" || got.Amount != 15.49 || got.DueDay != 3 {
		t.Errorf("GetPayment() = %+v", got)
	}

	list, err := store.ListPayments(ctx)
	if err != nil {
		t.Fatalf("ListPayments() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != 1 || list[1].ID != 2 {
		t.Errorf("ListPayments() = %+v", list)
	}
}

func TestCreatePayment_Validation(t *testing.T) {
	tests := []struct {
		name   string
		fields PaymentFields
	}{
		{"empty title", PaymentFields{Title: "   "}},
		{"long title", PaymentFields{Title: strings.Repeat("x", maxPaymentTitleLen+1)}},
		{"negative amount", PaymentFields{Title: "Gym", Amount: -1}},
		{"bad due day", PaymentFields{Title: "Gym", DueDay: 32}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := createTestStorage(t)
			if _, err := store.CreatePayment(context.Background(), tt.fields); err == nil {
				t.Error("CreatePayment() should fail")
			}
		})
	}
}

func TestGetPayment_NotFound(t *testing.T) {
	store := createTestStorage(t)
	_, err := store.GetPayment(context.Background(), 42)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetPayment() error = %v, want ErrNotFound", err)
	}
}

func TestDeletePayment_CascadesReminders(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	keep := createTestPayment(t, store, "Rent")
	drop := createTestPayment(t, store, "Gym")

	for _, pid := range []int64{keep.ID, drop.ID, drop.ID} {
		if _, err := store.CreateReminder(ctx, ReminderFields{PaymentID: pid, DueDate: "2030-01-01", DueTime: "09:00"}); err != nil {
			t.Fatalf("CreateReminder() error = %v", err)
		}
	}

	if err := store.DeletePayment(ctx, drop.ID); err != nil {
		t.Fatalf("DeletePayment() error = %v", err)
	}
	if err := store.DeletePayment(ctx, drop.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeletePayment() error = %v, want ErrNotFound", err)
	}

	reminders, _ := store.ListReminders(ctx)
	if len(reminders) != 1 || reminders[0].PaymentID != keep.ID {
		t.Errorf("reminders after cascade = %+v", reminders)
	}
}

// =============================================================================
// Reminder Tests
// =============================================================================

func TestCreateReminder(t *testing.T) {
	tests := []struct {
		name     string
		date     string
		clock    string
		message  string
		wantTime string
	}{
		{"plain", "2030-05-01", "09:00", "", "09:00"},
		{"single digit hour", "2030-05-01", "9:05", "", "09:05"},
		{"with message", "2030-05-01", "18:30", "  pay before work  ", "18:30"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := createTestStorage(t)
			p := createTestPayment(t, store, "Netflix")

			r, err := store.CreateReminder(context.Background(), ReminderFields{
				PaymentID: p.ID,
				DueDate:   tt.date,
				DueTime:   tt.clock,
				Message:   tt.message,
			})
			if err != nil {
				t.Fatalf("CreateReminder() error = %v", err)
			}
			if r.DueTime != tt.wantTime {
				t.Errorf("r.DueTime = %q, want %q", r.DueTime, tt.wantTime)
			}
			if r.Message != strings.TrimSpace(tt.message) {
				t.Errorf("r.Message = %q", r.Message)
			}
			if r.NotificationID != nil {
				t.Error("new reminder should not carry a notification id")
			}
			if r.Scheduled() {
				t.Error("Scheduled() = true for a new reminder")
			}
		})
	}
}

func TestCreateReminder_Validation(t *testing.T) {
	store := createTestStorage(t)
	p := createTestPayment(t, store, "Netflix")
	ctx := context.Background()

	tests := []struct {
		name    string
		fields  ReminderFields
		wantErr error
	}{
		{"missing payment id", ReminderFields{DueDate: "2030-01-01", DueTime: "09:00"}, nil},
		{"unknown payment", ReminderFields{PaymentID: 99, DueDate: "2030-01-01", DueTime: "09:00"}, ErrNotFound},
		{"bad date", ReminderFields{PaymentID: p.ID, DueDate: "01/02/2030", DueTime: "09:00"}, nil},
		{"bad time", ReminderFields{PaymentID: p.ID, DueDate: "2030-01-01", DueTime: "25:00"}, nil},
		{"long message", ReminderFields{PaymentID: p.ID, DueDate: "2030-01-01", DueTime: "09:00", Message: strings.Repeat("m", maxMessageLen+1)}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.CreateReminder(ctx, tt.fields)
			if err == nil {
				t.Fatal("CreateReminder() should fail")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateReminder() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdateReminder(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	p := createTestPayment(t, store, "Netflix")

	created := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)
	store.SetNowFunc(func() time.Time { return created })
	r, err := store.CreateReminder(ctx, ReminderFields{PaymentID: p.ID, DueDate: "2030-01-02", DueTime: "09:00"})
	if err != nil {
		t.Fatalf("CreateReminder() error = %v", err)
	}

	later := created.Add(time.Hour)
	store.SetNowFunc(func() time.Time { return later })

	updated, err := store.UpdateReminder(ctx, r.ID, ReminderPatch{NotificationID: strPtr("abc")})
	if err != nil {
		t.Fatalf("UpdateReminder() error = %v", err)
	}
	if updated.NotificationID == nil || *updated.NotificationID != "abc" {
		t.Errorf("NotificationID = %v, want abc", updated.NotificationID)
	}
	if !updated.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, later)
	}
	if !updated.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed to %v", updated.CreatedAt)
	}

	// Untouched fields survive a partial patch.
	updated, err = store.UpdateReminder(ctx, r.ID, ReminderPatch{Message: strPtr("new message")})
	if err != nil {
		t.Fatalf("UpdateReminder() error = %v", err)
	}
	if updated.Message != "new message" || updated.NotificationID == nil || updated.DueDate != "2030-01-02" {
		t.Errorf("partial patch result = %+v", updated)
	}

	// Clear wins over a set in the same patch.
	updated, err = store.UpdateReminder(ctx, r.ID, ReminderPatch{NotificationID: strPtr("zzz"), ClearNotificationID: true})
	if err != nil {
		t.Fatalf("UpdateReminder() error = %v", err)
	}
	if updated.NotificationID != nil {
		t.Errorf("NotificationID = %v, want nil", *updated.NotificationID)
	}

	got, _ := store.GetReminder(ctx, r.ID)
	if got.NotificationID != nil || got.Message != "new message" {
		t.Errorf("persisted reminder = %+v", got)
	}
}

func TestUpdateReminder_Errors(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	p := createTestPayment(t, store, "Netflix")
	r, _ := store.CreateReminder(ctx, ReminderFields{PaymentID: p.ID, DueDate: "2030-01-02", DueTime: "09:00"})

	if _, err := store.UpdateReminder(ctx, 999, ReminderPatch{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateReminder(unknown) error = %v, want ErrNotFound", err)
	}
	if _, err := store.UpdateReminder(ctx, r.ID, ReminderPatch{DueDate: strPtr("tomorrow")}); err == nil {
		t.Error("UpdateReminder() with a bad date should fail")
	}

	got, _ := store.GetReminder(ctx, r.ID)
	if got.DueDate != "2030-01-02" {
		t.Errorf("failed patch changed DueDate to %q", got.DueDate)
	}
}

func TestDeleteReminder(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	p := createTestPayment(t, store, "Netflix")
	r, _ := store.CreateReminder(ctx, ReminderFields{PaymentID: p.ID, DueDate: "2030-01-02", DueTime: "09:00"})

	if err := store.DeleteReminder(ctx, r.ID); err != nil {
		t.Fatalf("DeleteReminder() error = %v", err)
	}
	if _, err := store.GetReminder(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReminder() after delete error = %v, want ErrNotFound", err)
	}
	if err := store.DeleteReminder(ctx, r.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second DeleteReminder() error = %v, want ErrNotFound", err)
	}

	// Ids are not reused after a delete.
	next, _ := store.CreateReminder(ctx, ReminderFields{PaymentID: p.ID, DueDate: "2030-01-02", DueTime: "09:00"})
	if next.ID == r.ID {
		t.Errorf("reused id %d", next.ID)
	}
}

func TestListReminders_Sorted(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	p := createTestPayment(t, store, "Netflix")

	inputs := []struct{ date, clock string }{
		{"2030-02-01", "09:00"},
		{"2030-01-15", "18:00"},
		{"2030-01-15", "08:30"},
	}
	for _, in := range inputs {
		if _, err := store.CreateReminder(ctx, ReminderFields{PaymentID: p.ID, DueDate: in.date, DueTime: in.clock}); err != nil {
			t.Fatalf("CreateReminder() error = %v", err)
		}
	}

	list, err := store.ListReminders(ctx)
	if err != nil {
		t.Fatalf("ListReminders() error = %v", err)
	}
	want := []string{"2030-01-15 08:30", "2030-01-15 18:00", "2030-02-01 09:00"}
	for i, r := range list {
		if got := r.DueDate + " " + r.DueTime; got != want[i] {
			t.Errorf("list[%d] = %s, want %s", i, got, want[i])
		}
	}
}

// =============================================================================
// Edge Cases
// =============================================================================

func TestStorageInitialization(t *testing.T) {
	store := createTestStorage(t)

	payments, err := store.LoadPayments()
	if err != nil {
		t.Fatalf("LoadPayments() error = %v", err)
	}
	if payments == nil || payments.Payments == nil {
		t.Error("payments is nil")
	}

	reminders, err := store.LoadReminders()
	if err != nil {
		t.Fatalf("LoadReminders() error = %v", err)
	}
	if reminders == nil || reminders.Reminders == nil {
		t.Error("reminders is nil")
	}
}

func TestLoadReminders_RecoversFromBackup(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	p := createTestPayment(t, store, "Netflix")

	// Two writes so the .bak holds a valid copy with the first reminder.
	if _, err := store.CreateReminder(ctx, ReminderFields{PaymentID: p.ID, DueDate: "2030-01-01", DueTime: "09:00"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.CreateReminder(ctx, ReminderFields{PaymentID: p.ID, DueDate: "2030-01-02", DueTime: "09:00"}); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(store.GetDataDir(), remindersFile)
	if err := os.WriteFile(path, []byte("{broken"), 0600); err != nil {
		t.Fatal(err)
	}

	loaded, err := store.LoadReminders()
	if err == nil || !strings.Contains(err.Error(), "recovered") {
		t.Fatalf("LoadReminders() error = %v, want recovery notice", err)
	}
	if len(loaded.Reminders) != 1 {
		t.Errorf("recovered %d reminders, want 1", len(loaded.Reminders))
	}

	matches, _ := filepath.Glob(path + ".corrupt.*")
	if len(matches) != 1 {
		t.Errorf("corrupt copies = %v, want one", matches)
	}
}

func TestLoadPayments_ResetsWithoutBackup(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, paymentsFile), []byte("   "), 0600); err != nil {
		t.Fatal(err)
	}

	store, err := New(dir)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	loaded, err := store.LoadPayments()
	if err == nil || !strings.Contains(err.Error(), "reset to defaults") {
		t.Fatalf("LoadPayments() error = %v, want reset notice", err)
	}
	if len(loaded.Payments) != 0 {
		t.Errorf("payments = %d, want 0", len(loaded.Payments))
	}

	// The reset file is usable afterwards.
	if _, err := store.LoadPayments(); err != nil {
		t.Errorf("LoadPayments() after reset error = %v", err)
	}
}

func TestStorage_PermissionsArePrivate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("POSIX permissions are not meaningful on Windows")
	}

	dataDir := t.TempDir()
	if _, err := New(dataDir); err != nil {
		t.Fatalf("New() error = %v", err)
	}

	for _, name := range []string{paymentsFile, remindersFile} {
		p := filepath.Join(dataDir, name)
		info, err := os.Stat(p)
		if err != nil {
			t.Fatalf("Stat(%s) error = %v", p, err)
		}
		if info.Mode().Perm()&0o077 != 0 {
			t.Fatalf("%s permissions = %o, want no group/other bits", p, info.Mode().Perm())
		}
	}
}

func TestStorage_ConcurrentInstancesOnOneDir(t *testing.T) {
	dataDir := t.TempDir()
	ctx := context.Background()
	const perStore = 25

	stores := make([]*Storage, 2)
	for i := range stores {
		s, err := New(dataDir)
		if err != nil {
			t.Fatalf("New() error = %v", err)
		}
		stores[i] = s
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2*perStore)
	for i, s := range stores {
		wg.Add(1)
		go func(i int, s *Storage) {
			defer wg.Done()
			for j := 0; j < perStore; j++ {
				title := fmt.Sprintf("payment %d-%d", i, j)
				if _, err := s.CreatePayment(ctx, PaymentFields{Title: title, DueDay: 1}); err != nil {
					errs <- err
				}
			}
		}(i, s)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("CreatePayment() error = %v", err)
	}

	payments, err := stores[0].ListPayments(ctx)
	if err != nil {
		t.Fatalf("ListPayments() error = %v", err)
	}
	if len(payments) != 2*perStore {
		t.Fatalf("len(payments) = %d, want %d", len(payments), 2*perStore)
	}
	seen := make(map[int64]bool, len(payments))
	for _, p := range payments {
		if seen[p.ID] {
			t.Errorf("duplicate payment id %d", p.ID)
		}
		seen[p.ID] = true
	}
}

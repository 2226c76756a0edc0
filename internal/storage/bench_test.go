package storage

import (
	"context"
	"fmt"
	"testing"
)

// BenchmarkCreateReminder measures reminder creation performance
func BenchmarkCreateReminder(b *testing.B) {
	store := createBenchStorage(b)
	ctx := context.Background()
	p, _ := store.CreatePayment(ctx, PaymentFields{Title: "Bench"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := store.CreateReminder(ctx, ReminderFields{PaymentID: p.ID, DueDate: "2030-01-01", DueTime: "09:00"})
		if err != nil {
			b.Fatalf("CreateReminder failed: %v", err)
		}
	}
}

// BenchmarkListReminders measures reminder loading performance with varying sizes
func BenchmarkListReminders(b *testing.B) {
	sizes := []int{10, 100, 1000}

	for _, size := range sizes {
		b.Run(fmt.Sprintf("size_%d", size), func(b *testing.B) {
			store := createBenchStorage(b)
			ctx := context.Background()
			p, _ := store.CreatePayment(ctx, PaymentFields{Title: "Bench"})

			for i := 0; i < size; i++ {
				date := fmt.Sprintf("2030-%02d-%02d", i%12+1, i%28+1)
				store.CreateReminder(ctx, ReminderFields{PaymentID: p.ID, DueDate: date, DueTime: "09:00"})
			}

			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := store.ListReminders(ctx); err != nil {
					b.Fatalf("ListReminders failed: %v", err)
				}
			}
		})
	}
}

// BenchmarkUpdateReminderNotificationID measures the write-back done after scheduling
func BenchmarkUpdateReminderNotificationID(b *testing.B) {
	store := createBenchStorage(b)
	ctx := context.Background()
	p, _ := store.CreatePayment(ctx, PaymentFields{Title: "Bench"})
	r, _ := store.CreateReminder(ctx, ReminderFields{PaymentID: p.ID, DueDate: "2030-01-01", DueTime: "09:00"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		id := fmt.Sprintf("n-%d", i)
		if _, err := store.UpdateReminder(ctx, r.ID, ReminderPatch{NotificationID: &id}); err != nil {
			b.Fatalf("UpdateReminder failed: %v", err)
		}
	}
}

// createBenchStorage creates a storage instance for benchmarks
func createBenchStorage(b *testing.B) *Storage {
	b.Helper()
	store, err := New(b.TempDir())
	if err != nil {
		b.Fatalf("failed to create bench storage: %v", err)
	}
	return store
}

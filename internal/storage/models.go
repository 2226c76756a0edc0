package storage

import (
	"errors"
	"time"
)

// Date and time layouts used by reminder records.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// ErrNotFound is returned when a payment or reminder id does not exist.
var ErrNotFound = errors.New("storage: not found")

// Payment is a recurring bill or subscription
type Payment struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Amount    float64   `json:"amount,omitempty"`
	DueDay    int       `json:"due_day,omitempty"` // day of month, 0 if unset
	CreatedAt time.Time `json:"created_at"`
}

// PaymentFields are the user-supplied fields of a new payment.
type PaymentFields struct {
	Title  string
	Amount float64
	DueDay int
}

// Reminder is the intent to be notified about a payment at a local date and time.
// NotificationID is set only while a trigger is live for it.
type Reminder struct {
	ID             int64     `json:"id"`
	PaymentID      int64     `json:"payment_id"`
	DueDate        string    `json:"due_date"` // YYYY-MM-DD
	DueTime        string    `json:"due_time"` // HH:MM
	Message        string    `json:"message,omitempty"`
	NotificationID *string   `json:"notification_id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Scheduled reports whether the record carries a notification id.
func (r *Reminder) Scheduled() bool {
	return r.NotificationID != nil && *r.NotificationID != ""
}

// ReminderFields are the fields of a new reminder.
type ReminderFields struct {
	PaymentID int64
	DueDate   string
	DueTime   string
	Message   string
}

// ReminderPatch is a partial update. Nil fields are left untouched;
// ClearNotificationID sets the id to null and wins over NotificationID.
type ReminderPatch struct {
	DueDate             *string
	DueTime             *string
	Message             *string
	NotificationID      *string
	ClearNotificationID bool
}

// PaymentStore holds all payments
type PaymentStore struct {
	NextID   int64     `json:"next_id"`
	Payments []Payment `json:"payments"`
}

// ReminderStore holds all reminders
type ReminderStore struct {
	NextID    int64      `json:"next_id"`
	Reminders []Reminder `json:"reminders"`
}

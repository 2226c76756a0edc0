package storage

import (
	"fmt"
	"strings"
	"time"
)

const (
	maxPaymentTitleLen = 80
	maxMessageLen      = 200
)

func normalizePayment(f PaymentFields) (PaymentFields, error) {
	f.Title = strings.TrimSpace(f.Title)
	if f.Title == "" {
		return f, fmt.Errorf("payment title is required")
	}
	if len(f.Title) > maxPaymentTitleLen {
		return f, fmt.Errorf("payment title too long (max %d)", maxPaymentTitleLen)
	}
	if f.Amount < 0 {
		return f, fmt.Errorf("payment amount cannot be negative")
	}
	if f.DueDay < 0 || f.DueDay > 31 {
		return f, fmt.Errorf("due day must be between 1 and 31")
	}
	return f, nil
}

func normalizeReminder(f ReminderFields) (ReminderFields, error) {
	if f.PaymentID <= 0 {
		return f, fmt.Errorf("payment id is required")
	}
	date, err := validateDate(f.DueDate)
	if err != nil {
		return f, err
	}
	clock, err := validateTime(f.DueTime)
	if err != nil {
		return f, err
	}
	msg, err := validateMessage(f.Message)
	if err != nil {
		return f, err
	}
	f.DueDate, f.DueTime, f.Message = date, clock, msg
	return f, nil
}

func validateDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if _, err := time.Parse(DateLayout, s); err != nil {
		return "", fmt.Errorf("invalid due date %q (want YYYY-MM-DD)", s)
	}
	return s, nil
}

func validateTime(s string) (string, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return "", fmt.Errorf("invalid due time %q (want HH:MM)", s)
	}
	return t.Format(TimeLayout), nil
}

func validateMessage(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) > maxMessageLen {
		return "", fmt.Errorf("message too long (max %d)", maxMessageLen)
	}
	return s, nil
}

// applyPatch validates p and applies it to r.
func applyPatch(r *Reminder, p ReminderPatch) error {
	if p.DueDate != nil {
		v, err := validateDate(*p.DueDate)
		if err != nil {
			return err
		}
		r.DueDate = v
	}
	if p.DueTime != nil {
		v, err := validateTime(*p.DueTime)
		if err != nil {
			return err
		}
		r.DueTime = v
	}
	if p.Message != nil {
		v, err := validateMessage(*p.Message)
		if err != nil {
			return err
		}
		r.Message = v
	}
	switch {
	case p.ClearNotificationID:
		r.NotificationID = nil
	case p.NotificationID != nil:
		id := *p.NotificationID
		r.NotificationID = &id
	}
	return nil
}

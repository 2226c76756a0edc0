package reminder

import (
	"errors"
	"fmt"
)

var (
	// ErrReminderNotFound is returned when an operation names an unknown reminder.
	ErrReminderNotFound = errors.New("reminder not found")

	// ErrInvalidTime is reported for a due date and time that is not in the future
	// or cannot be parsed.
	ErrInvalidTime = errors.New("reminder must be scheduled in the future")
)

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprintf("recovered panic: %v", e.value)
}

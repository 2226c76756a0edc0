package main

import (
	"context"
	"flag"
	"fmt"

	"paytrack/internal/reminder"
	"paytrack/internal/storage"
	"paytrack/internal/ui"
)

const addHelpText = `paytrack add - Add a reminder

USAGE:
    paytrack add PAYMENT_ID DATE TIME [--message M] [--notify]

OPTIONS:
    --message M   Text shown instead of the payment title
    --notify      Schedule a notification right away
    -h, --help    Show this help message

EXAMPLES:
    paytrack add 1 2030-03-02 09:00 --notify
`

const listHelpText = `paytrack list - List reminders

USAGE:
    paytrack list
`

const editHelpText = `paytrack edit - Edit a reminder

USAGE:
    paytrack edit ID [--date YYYY-MM-DD] [--time HH:MM] [--message M]

DESCRIPTION:
    Changing the date or time of a scheduled reminder reschedules its
    notification. If that fails the reminder is left unscheduled.
`

const toggleHelpText = `paytrack toggle - Schedule or unschedule a reminder

USAGE:
    paytrack toggle ID on|off

DESCRIPTION:
    'on' may ask you to allow exact alarms before scheduling.
`

const deleteHelpText = `paytrack delete - Delete a reminder

USAGE:
    paytrack delete ID
`

// runAdd handles the "paytrack add" subcommand.
func runAdd(args []string) {
	fs, helpFlag := newFlagSet("add", addHelpText)
	message := fs.String("message", "", "text shown instead of the payment title")
	notify := fs.Bool("notify", false, "schedule a notification right away")

	positional := parseArgs(fs, helpFlag, addHelpText, args)
	if len(positional) != 3 {
		fatalf("usage: paytrack add PAYMENT_ID DATE TIME [--message M] [--notify]")
	}
	paymentID, err := parseID(positional[0])
	if err != nil {
		fatalf("%v", err)
	}

	ctx := context.Background()
	a := mustApp(ctx, *notify)
	defer a.Close()

	res, err := a.coord.Create(ctx, storage.ReminderFields{
		PaymentID: paymentID,
		DueDate:   positional[1],
		DueTime:   positional[2],
		Message:   *message,
	}, *notify)
	if err != nil {
		fatalf("%v", err)
	}
	if res.Message == "" {
		res.Message = "Reminder added."
	}
	fmt.Print(a.styles.RenderResult(res))
}

// runList handles the "paytrack list" subcommand.
func runList(args []string) {
	fs, helpFlag := newFlagSet("list", listHelpText)
	parseArgs(fs, helpFlag, listHelpText, args)

	ctx := context.Background()
	a := mustApp(ctx, false)
	defer a.Close()

	rows, err := reminderRows(ctx, a)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Print(a.styles.RenderReminders(rows))
}

// reminderRows joins reminders with their payment titles.
func reminderRows(ctx context.Context, a *app) ([]ui.ReminderRow, error) {
	reminders, err := a.store.ListReminders(ctx)
	if err != nil {
		return nil, err
	}
	payments, err := a.store.ListPayments(ctx)
	if err != nil {
		return nil, err
	}
	titles := make(map[int64]string, len(payments))
	for _, p := range payments {
		titles[p.ID] = p.Title
	}

	rows := make([]ui.ReminderRow, 0, len(reminders))
	for _, r := range reminders {
		state := reminder.Unscheduled
		if scheduled, err := a.coord.IsScheduled(ctx, r.ID); err == nil && scheduled {
			state = reminder.Scheduled
		}
		rows = append(rows, ui.ReminderRow{Reminder: r, Payment: titles[r.PaymentID], State: state})
	}
	return rows, nil
}

// runEdit handles the "paytrack edit" subcommand.
func runEdit(args []string) {
	fs, helpFlag := newFlagSet("edit", editHelpText)
	dueDate := fs.String("date", "", "new due date (YYYY-MM-DD)")
	dueTime := fs.String("time", "", "new due time (HH:MM)")
	message := fs.String("message", "", "new message")

	positional := parseArgs(fs, helpFlag, editHelpText, args)
	if len(positional) != 1 {
		fatalf("usage: paytrack edit ID [--date D] [--time T] [--message M]")
	}
	id, err := parseID(positional[0])
	if err != nil {
		fatalf("%v", err)
	}

	var e reminder.Edit
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "date":
			e.DueDate = dueDate
		case "time":
			e.DueTime = dueTime
		case "message":
			e.Message = message
		}
	})
	if e.DueDate == nil && e.DueTime == nil && e.Message == nil {
		fatalf("nothing to change: pass --date, --time or --message")
	}

	ctx := context.Background()
	a := mustApp(ctx, true)
	defer a.Close()

	res, err := a.coord.Edit(ctx, id, e)
	if err != nil {
		fatalf("%s", reminderError(id, err))
	}
	fmt.Print(a.styles.RenderResult(res))
}

// runToggle handles the "paytrack toggle" subcommand.
func runToggle(args []string) {
	fs, helpFlag := newFlagSet("toggle", toggleHelpText)
	positional := parseArgs(fs, helpFlag, toggleHelpText, args)
	if len(positional) != 2 {
		fatalf("usage: paytrack toggle ID on|off")
	}
	id, err := parseID(positional[0])
	if err != nil {
		fatalf("%v", err)
	}
	on, err := parseSwitch(positional[1])
	if err != nil {
		fatalf("%v", err)
	}

	ctx := context.Background()
	a := mustApp(ctx, on)
	defer a.Close()

	var res *reminder.Result
	if on {
		res, err = a.coord.ToggleOn(ctx, id)
	} else {
		res, err = a.coord.ToggleOff(ctx, id)
	}
	if err != nil {
		fatalf("%s", reminderError(id, err))
	}
	fmt.Print(a.styles.RenderResult(res))
}

// parseSwitch parses "on" or "off".
func parseSwitch(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	default:
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
}

// runDelete handles the "paytrack delete" subcommand.
func runDelete(args []string) {
	fs, helpFlag := newFlagSet("delete", deleteHelpText)
	positional := parseArgs(fs, helpFlag, deleteHelpText, args)
	if len(positional) != 1 {
		fatalf("usage: paytrack delete ID")
	}
	id, err := parseID(positional[0])
	if err != nil {
		fatalf("%v", err)
	}

	ctx := context.Background()
	a := mustApp(ctx, false)
	defer a.Close()

	if err := a.coord.Delete(ctx, id); err != nil {
		fatalf("%s", reminderError(id, err))
	}
	fmt.Printf("✓ Reminder #%d deleted\n", id)
}

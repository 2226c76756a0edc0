package ui

import (
	"fmt"
	"strings"

	"paytrack/internal/notify"
	"paytrack/internal/reminder"
	"paytrack/internal/storage"

	"github.com/charmbracelet/lipgloss"
)

// ReminderRow is one line of the reminder list.
type ReminderRow struct {
	Reminder storage.Reminder
	Payment  string
	State    reminder.State
}

// column pads text to width cells.
func column(text string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(text)
}

// RenderReminders renders the reminder list.
func (s *Styles) RenderReminders(rows []ReminderRow) string {
	if len(rows) == 0 {
		return s.HelpStyle.Render("No reminders yet. Add one with: paytrack add PAYMENT_ID DATE TIME") + "\n"
	}

	var b strings.Builder
	b.WriteString(s.TitleStyle.Render("Reminders"))
	b.WriteString("\n\n")
	for _, row := range rows {
		r := row.Reminder
		b.WriteString(column(fmt.Sprintf("#%d", r.ID), 6))
		b.WriteString(column(row.Payment, 22))
		b.WriteString(column(r.DueDate+" "+r.DueTime, 18))
		b.WriteString(s.StateStyle(row.State).Render(column(row.State.String(), 14)))
		if r.Message != "" {
			b.WriteString(s.MessageStyle.Render(r.Message))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderPayments renders the payment list.
func (s *Styles) RenderPayments(payments []storage.Payment) string {
	if len(payments) == 0 {
		return s.HelpStyle.Render("No payments yet. Add one with: paytrack payment add TITLE") + "\n"
	}

	var b strings.Builder
	b.WriteString(s.TitleStyle.Render("Payments"))
	b.WriteString("\n\n")
	for _, p := range payments {
		b.WriteString(column(fmt.Sprintf("#%d", p.ID), 6))
		b.WriteString(column(p.Title, 22))
		b.WriteString(s.AmountStyle.Render(column(fmt.Sprintf("%.2f", p.Amount), 12)))
		if p.DueDay > 0 {
			b.WriteString(s.HelpStyle.Render(fmt.Sprintf("day %d", p.DueDay)))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// RenderResult renders the outcome of a lifecycle operation.
func (s *Styles) RenderResult(res *reminder.Result) string {
	if res == nil {
		return ""
	}

	line := fmt.Sprintf("Reminder #%d: %s", res.Reminder.ID, res.State)
	msg := res.Message
	if msg == "" {
		msg = res.Outcome.Message()
	}
	if msg != "" {
		line += ". " + msg
	}

	switch res.Outcome {
	case reminder.OutcomeFailed:
		if res.Err != nil {
			line += " (" + res.Err.Error() + ")"
		}
		return s.ErrorStyle.Render(line) + "\n"
	case reminder.OutcomeUnsupported, reminder.OutcomeDeclined, reminder.OutcomeInvalidTime:
		return s.WarningStyle.Render(line) + "\n"
	default:
		return s.StatusStyle.Render(line) + "\n"
	}
}

// RenderEvent renders a non-fatal notice for ev, or "" when ev needs none.
func (s *Styles) RenderEvent(ev reminder.Event) string {
	switch ev.Kind {
	case reminder.EventNegotiating:
		return s.WarningStyle.Render(fmt.Sprintf("Reminder #%d needs permission to schedule.", ev.ReminderID)) + "\n"
	case reminder.EventDelivered:
		return s.StatusStyle.Render(fmt.Sprintf("Reminder #%d delivered.", ev.ReminderID)) + "\n"
	default:
		return ""
	}
}

// RenderSettings renders the notification capability summary.
func (s *Styles) RenderSettings(triggers bool, settings notify.Settings) string {
	var b strings.Builder
	b.WriteString(s.TitleStyle.Render("Notifications"))
	b.WriteString("\n\n")

	supported := s.ScheduledStyle.Render("available")
	if !triggers {
		supported = s.WarningStyle.Render("unavailable (display only)")
	}
	b.WriteString(column("Scheduled triggers", 22) + supported + "\n")
	b.WriteString(column("Notifications", 22) + s.renderAuthorization(settings.Notification) + "\n")
	b.WriteString(column("Exact alarms", 22) + s.renderAuthorization(settings.ExactAlarm) + "\n")
	return b.String()
}

func (s *Styles) renderAuthorization(a notify.Authorization) string {
	switch a {
	case notify.AuthorizationAuthorized:
		return s.ScheduledStyle.Render("authorized")
	case notify.AuthorizationDenied:
		return s.ErrorStyle.Render("denied")
	default:
		return s.UnscheduledStyle.Render("not determined")
	}
}

// RenderReconcile renders a reconcile summary.
func (s *Styles) RenderReconcile(report *reminder.ReconcileReport) string {
	if report.Skipped {
		return s.WarningStyle.Render("Reconcile skipped: scheduled triggers are not available.") + "\n"
	}
	return s.StatusStyle.Render(fmt.Sprintf("Reconciled: %d stale id(s) cleared, %d orphaned trigger(s) cancelled.",
		report.Cleared, report.Orphans)) + "\n"
}

package main

import (
	"context"
	"fmt"
	"os"

	"paytrack/internal/storage"
)

const paymentHelpText = `paytrack payment - Manage payments

USAGE:
    paytrack payment add TITLE [--amount A] [--day D]
    paytrack payment list
    paytrack payment delete ID

OPTIONS:
    --amount A    Amount due
    --day D       Day of the month the payment is due (1-31)
    -h, --help    Show this help message

DESCRIPTION:
    Deleting a payment deletes its reminders and cancels their notifications.
`

// runPayment handles the "paytrack payment" subcommand.
func runPayment(args []string) {
	fs, helpFlag := newFlagSet("payment", paymentHelpText)
	amount := fs.Float64("amount", 0, "amount due")
	day := fs.Int("day", 0, "day of the month the payment is due")

	positional := parseArgs(fs, helpFlag, paymentHelpText, args)
	if len(positional) == 0 {
		fmt.Fprint(os.Stderr, paymentHelpText)
		os.Exit(1)
	}

	ctx := context.Background()
	a := mustApp(ctx, false)
	defer a.Close()

	switch positional[0] {
	case "add":
		if len(positional) != 2 {
			fatalf("usage: paytrack payment add TITLE [--amount A] [--day D]")
		}
		p, err := a.store.CreatePayment(ctx, storage.PaymentFields{Title: positional[1], Amount: *amount, DueDay: *day})
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("✓ Payment #%d added: %s\n", p.ID, p.Title)

	case "list":
		payments, err := a.store.ListPayments(ctx)
		if err != nil {
			fatalf("%v", err)
		}
		fmt.Print(a.styles.RenderPayments(payments))

	case "delete":
		if len(positional) != 2 {
			fatalf("usage: paytrack payment delete ID")
		}
		id, err := parseID(positional[1])
		if err != nil {
			fatalf("%v", err)
		}
		if err := deletePayment(ctx, a, id); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("✓ Payment #%d deleted\n", id)

	default:
		fatalf("unknown payment command %q", positional[0])
	}
}

// deletePayment deletes the payment's reminders through the coordinator so
// their triggers are cancelled, then the payment itself.
func deletePayment(ctx context.Context, a *app, id int64) error {
	if _, err := a.store.GetPayment(ctx, id); err != nil {
		return fmt.Errorf("payment #%d: %w", id, err)
	}

	reminders, err := a.store.ListReminders(ctx)
	if err != nil {
		return err
	}
	for _, r := range reminders {
		if r.PaymentID != id {
			continue
		}
		if err := a.coord.Delete(ctx, r.ID); err != nil {
			return fmt.Errorf("delete reminder #%d: %w", r.ID, err)
		}
	}
	return a.store.DeletePayment(ctx, id)
}

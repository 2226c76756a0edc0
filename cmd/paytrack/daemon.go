package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"paytrack/internal/notify"

	"github.com/sirupsen/logrus"
)

const reconcileHelpText = `paytrack reconcile - Repair drift between reminders and notifications

USAGE:
    paytrack reconcile

DESCRIPTION:
    Clears the notification id of every reminder whose notification is no
    longer scheduled and cancels scheduled notifications no reminder refers to.
    'paytrack run' does this at startup.
`

const runHelpText = `paytrack run - Fire scheduled reminders

USAGE:
    paytrack run

DESCRIPTION:
    Keeps running and shows each scheduled notification at its time.
    Notifications that came due while it was stopped are shown at startup.
    Stop with Ctrl+C.
`

// runReconcile handles the "paytrack reconcile" subcommand.
func runReconcile(args []string) {
	fs, helpFlag := newFlagSet("reconcile", reconcileHelpText)
	parseArgs(fs, helpFlag, reconcileHelpText, args)

	ctx := context.Background()
	a := mustApp(ctx, false)
	defer a.Close()

	report, err := a.coord.Reconcile(ctx)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Print(a.styles.RenderReconcile(report))
}

// runRun handles the "paytrack run" subcommand.
func runRun(args []string) {
	fs, helpFlag := newFlagSet("run", runHelpText)
	parseArgs(fs, helpFlag, runHelpText, args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := mustApp(ctx, false)
	defer a.Close()

	local, ok := a.backend.(*notify.Local)
	if !ok {
		fatalf("scheduled notifications are not available here (notifications disabled or no notification tool found)")
	}

	if report, err := a.coord.Reconcile(ctx); err != nil {
		a.log.WithError(err).Warn("Startup reconcile failed")
	} else {
		a.log.WithFields(logrus.Fields{
			"cleared": report.Cleared,
			"orphans": report.Orphans,
		}).Info("Startup reconcile complete")
	}

	runner := notify.NewRunner(local, a.cfg.Notifications.RunnerReload, a.log)
	runner.OnFire = func(ctx context.Context, t notify.Trigger) {
		a.metrics.ObserveFired()
		if err := a.coord.MarkDelivered(ctx, t.ID); err != nil {
			a.log.WithError(err).WithField("notification_id", t.ID).Error("Failed to record delivery")
		}
		if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
			a.log.WithError(err).Warn("Failed to write metrics textfile")
		}
	}

	if err := runner.Start(ctx); err != nil {
		fatalf("start runner: %v", err)
	}
	fmt.Printf("paytrack is running with %d scheduled reminder(s). Press Ctrl+C to stop.\n", runner.Scheduled())

	<-ctx.Done()
	runner.Stop()
}

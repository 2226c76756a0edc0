package main

import (
	"context"
	"fmt"

	"paytrack/internal/notify"
)

const permissionsHelpText = `paytrack permissions - Show or change notification permissions

USAGE:
    paytrack permissions status
    paytrack permissions grant
    paytrack permissions revoke

DESCRIPTION:
    Desktop systems have no exact-alarm setting of their own, so paytrack
    keeps the grant itself. 'grant' allows notifications and exact alarms;
    'revoke' withdraws the exact-alarm grant. Reminders that are already
    scheduled are left alone.
`

// runPermissions handles the "paytrack permissions" subcommand.
func runPermissions(args []string) {
	fs, helpFlag := newFlagSet("permissions", permissionsHelpText)
	positional := parseArgs(fs, helpFlag, permissionsHelpText, args)

	action := "status"
	if len(positional) > 0 {
		action = positional[0]
	}

	ctx := context.Background()
	a := mustApp(ctx, false)
	defer a.Close()

	switch action {
	case "status":
		settings, err := a.backend.Settings(ctx)
		if err != nil {
			fatalf("read permissions: %v", err)
		}
		fmt.Print(a.styles.RenderSettings(a.probe.SupportsTrigger(), settings))

	case "grant", "revoke":
		local, ok := a.backend.(*notify.Local)
		if !ok {
			fatalf("scheduled notifications are not available here, nothing to %s", action)
		}
		if err := setGrant(local, action == "grant"); err != nil {
			fatalf("%v", err)
		}
		fmt.Printf("✓ Exact alarms %sd\n", action)

	default:
		fatalf("unknown permissions command %q", action)
	}
}

// grantStore is the part of notify.Local that records grants.
type grantStore interface {
	SetNotification(a notify.Authorization) error
	SetExactAlarm(a notify.Authorization) error
}

// setGrant records a grant or revocation. Revoking keeps notification
// permission so reminders can still be displayed.
func setGrant(g grantStore, grant bool) error {
	if !grant {
		return g.SetExactAlarm(notify.AuthorizationDenied)
	}
	if err := g.SetNotification(notify.AuthorizationAuthorized); err != nil {
		return err
	}
	return g.SetExactAlarm(notify.AuthorizationAuthorized)
}

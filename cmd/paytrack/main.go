// Package main is the entry point for the paytrack CLI.
// It dispatches subcommands; each one loads configuration and wires the
// reminder engine through newApp.
package main

import (
	"flag"
	"fmt"
	"os"
)

// Version information - set by GoReleaser during build
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const helpText = `paytrack - Payment reminders for your terminal

USAGE:
    paytrack <command> [ARGS]

COMMANDS:
    payment add TITLE [--amount A] [--day D]   Add a payment
    payment list                               List payments
    payment delete ID                          Delete a payment and its reminders
    add PAYMENT_ID DATE TIME [--message M] [--notify]
                                               Add a reminder (DATE is YYYY-MM-DD, TIME is HH:MM)
    list                                       List reminders
    edit ID [--date D] [--time T] [--message M]
                                               Edit a reminder
    toggle ID on|off                           Schedule or unschedule a reminder
    delete ID                                  Delete a reminder
    reconcile                                  Repair drift between reminders and triggers
    run                                        Fire scheduled reminders (keep running)
    permissions status|grant|revoke            Show or change notification permissions
    backup [--list] [--prune N]                Back up the data directory
    restore NAME | --latest                    Restore a backup

OPTIONS:
    -h, --help       Show this help message
    -v, --version    Show version information

DESCRIPTION:
    paytrack keeps reminders for recurring payments and schedules a local
    notification for each one you switch on. Scheduled notifications are
    fired by 'paytrack run'; without it, or on systems with no notification
    tool, reminders are kept but nothing is scheduled.

DATA STORAGE:
    By default all data is stored in ~/.paytrack/ as plain JSON files:
        payments.json     - Your payments
        reminders.json    - Reminders and their notification ids
        triggers.json     - Scheduled notifications
        permissions.json  - Notification permission grants
    Set store.driver to "postgres" to keep payments and reminders in PostgreSQL.

CONFIGURATION:
    Optional config file: ~/.config/paytrack/config.yaml
    Environment: PAYTRACK_DATA_DIR, PAYTRACK_DATABASE_URL, PAYTRACK_REDIS_ADDR,
    PAYTRACK_REDIS_PASSWORD, PAYTRACK_LOG_LEVEL (a .env file is read if present).

EXAMPLES:
    # Add a payment and a reminder the day before it is due
    paytrack payment add Netflix --amount 15.49 --day 3
    paytrack add 1 2030-03-02 09:00 --message "Check the card" --notify

    # Allow exact alarms and start the notification runner
    paytrack permissions grant
    paytrack run
`

type command func(args []string)

var commands = map[string]command{
	"payment":     runPayment,
	"add":         runAdd,
	"list":        runList,
	"edit":        runEdit,
	"toggle":      runToggle,
	"delete":      runDelete,
	"reconcile":   runReconcile,
	"run":         runRun,
	"permissions": runPermissions,
	"backup":      runBackup,
	"restore":     runRestore,
}

func main() {
	// Check for subcommands first (before flag parsing)
	if len(os.Args) > 1 {
		if cmd, ok := commands[os.Args[1]]; ok {
			cmd(os.Args[2:])
			return
		}
	}

	showVersion := flag.Bool("version", false, "show version information")
	flag.BoolVar(showVersion, "v", false, "show version information (shorthand)")

	showHelp := flag.Bool("help", false, "show help message")
	flag.BoolVar(showHelp, "h", false, "show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, helpText)
	}

	flag.Parse()

	if *showVersion {
		fmt.Printf("paytrack version %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
		os.Exit(0)
	}

	if *showHelp || flag.NArg() == 0 {
		fmt.Print(helpText)
		os.Exit(0)
	}

	fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", flag.Arg(0))
	flag.Usage()
	os.Exit(1)
}

// fatalf prints an error and exits.
func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

// newFlagSet returns a flag set that prints help on -h and on parse errors.
func newFlagSet(name, help string) (*flag.FlagSet, *bool) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	helpFlag := fs.Bool("help", false, "show help message")
	fs.BoolVar(helpFlag, "h", false, "show help message (shorthand)")
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, help)
	}
	return fs, helpFlag
}

// parseArgs parses args with fs and handles -h. Flags may follow positional
// arguments.
func parseArgs(fs *flag.FlagSet, helpFlag *bool, help string, args []string) []string {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			os.Exit(1)
		}
		if fs.NArg() == 0 {
			break
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}

	if *helpFlag {
		fmt.Print(help)
		os.Exit(0)
	}
	return positional
}

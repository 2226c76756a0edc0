package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"paytrack/internal/backup"
	"paytrack/internal/config"
)

const backupHelpText = `paytrack backup - Create and manage backups

USAGE:
    paytrack backup [OPTIONS]

OPTIONS:
    -l, --list     List available backups
    --prune N      Keep only the N newest backups
    -h, --help     Show this help message

DESCRIPTION:
    Creates a timestamped copy of the data files (payments, reminders,
    scheduled notifications and permission grants) in ~/.paytrack/backups/.
    With the postgres store only the notification files are in the data
    directory; back up the database separately.
`

const restoreHelpText = `paytrack restore - Restore data from a backup

USAGE:
    paytrack restore NAME
    paytrack restore --latest

DESCRIPTION:
    A safety backup of the current data is made first. After restoring,
    reminders and scheduled notifications are reconciled, since some of the
    restored notifications may have fired in the meantime.
`

// runBackup handles the "paytrack backup" subcommand.
func runBackup(args []string) {
	fs, helpFlag := newFlagSet("backup", backupHelpText)
	listFlag := fs.Bool("list", false, "list available backups")
	fs.BoolVar(listFlag, "l", false, "list available backups (shorthand)")
	prune := fs.Int("prune", -1, "keep only the N newest backups")
	parseArgs(fs, helpFlag, backupHelpText, args)

	manager := backupManager()

	switch {
	case *listFlag:
		listBackups(manager)
	case *prune >= 0:
		deleted, err := manager.Prune(*prune)
		if err != nil {
			fatalf("prune backups: %v", err)
		}
		fmt.Printf("✓ Pruned %d backup(s)\n", deleted)
	default:
		name, err := manager.Create()
		if err != nil {
			fatalf("create backup: %v", err)
		}
		info, err := manager.Get(name)
		if err != nil {
			fatalf("read backup: %v", err)
		}
		fmt.Printf("✓ Backup created: %s\n", name)
		fmt.Printf("  Payments: %d, Reminders: %d, Scheduled notifications: %d\n",
			info.Counts.Payments, info.Counts.Reminders, info.Counts.Triggers)
		fmt.Printf("  Location: %s\n", info.Path)
	}
}

func listBackups(manager *backup.Manager) {
	backups, err := manager.List()
	if err != nil {
		fatalf("list backups: %v", err)
	}
	if len(backups) == 0 {
		fmt.Println("No backups available.")
		fmt.Println("Run 'paytrack backup' to create one.")
		return
	}

	fmt.Println("Available backups:")
	for _, b := range backups {
		fmt.Printf("  %s  (%s)   Payments: %d, Reminders: %d\n",
			b.Name, formatAge(time.Since(b.CreatedAt)), b.Counts.Payments, b.Counts.Reminders)
	}
}

// runRestore handles the "paytrack restore" subcommand.
func runRestore(args []string) {
	fs, helpFlag := newFlagSet("restore", restoreHelpText)
	latest := fs.Bool("latest", false, "restore the most recent backup")
	positional := parseArgs(fs, helpFlag, restoreHelpText, args)

	manager := backupManager()

	var name string
	switch {
	case *latest && len(positional) == 0:
		var err error
		if name, err = manager.RestoreLatest(); err != nil {
			fatalf("restore: %v", err)
		}
	case !*latest && len(positional) == 1:
		name = positional[0]
		if err := manager.Restore(name); err != nil {
			fatalf("restore: %v", err)
		}
	default:
		fmt.Fprint(os.Stderr, restoreHelpText)
		os.Exit(1)
	}
	fmt.Printf("✓ Restored backup %s\n", name)

	ctx := context.Background()
	a := mustApp(ctx, false)
	defer a.Close()

	report, err := a.coord.Reconcile(ctx)
	if err != nil {
		fatalf("reconcile after restore: %v", err)
	}
	fmt.Print(a.styles.RenderReconcile(report))
}

func backupManager() *backup.Manager {
	cfg, err := loadConfig()
	if err != nil {
		fatalf("%v", err)
	}
	return newBackupManager(cfg)
}

func newBackupManager(cfg *config.Config) *backup.Manager {
	return backup.NewManager(cfg.GetDataDir(), version)
}

// formatAge returns a human-readable age such as "3 hours ago".
func formatAge(d time.Duration) string {
	unit := func(n int, name string) string {
		if n == 1 {
			return "1 " + name + " ago"
		}
		return fmt.Sprintf("%d %ss ago", n, name)
	}

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return unit(int(d.Minutes()), "minute")
	case d < 24*time.Hour:
		return unit(int(d.Hours()), "hour")
	case d < 7*24*time.Hour:
		return unit(int(d.Hours()/24), "day")
	default:
		return unit(int(d.Hours()/24/7), "week")
	}
}

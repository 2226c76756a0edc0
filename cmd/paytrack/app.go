package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"paytrack/internal/cache"
	"paytrack/internal/config"
	"paytrack/internal/logger"
	"paytrack/internal/metrics"
	"paytrack/internal/notify"
	"paytrack/internal/reminder"
	"paytrack/internal/storage"
	"paytrack/internal/ui"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// dataStore is what the CLI needs from either store implementation.
type dataStore interface {
	reminder.Store
	CreatePayment(ctx context.Context, f storage.PaymentFields) (*storage.Payment, error)
	ListPayments(ctx context.Context) ([]storage.Payment, error)
	DeletePayment(ctx context.Context, id int64) error
	Close()
}

// app holds the wired components for one CLI invocation.
type app struct {
	cfg     *config.Config
	log     *logrus.Logger
	store   dataStore
	cache   cache.NotificationIDs
	backend notify.Backend
	probe   *reminder.Probe
	metrics *metrics.Metrics
	events  *reminder.Events
	coord   *reminder.Coordinator
	styles  *ui.Styles
	out     io.Writer
}

// loadConfig reads .env, the config file and environment overrides, and
// initializes the shared logger.
func loadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger.Init(logger.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})
	return cfg, nil
}

// newApp wires the reminder engine from cfg. When interactive is set,
// permission prompts are shown on the terminal.
func newApp(ctx context.Context, cfg *config.Config, interactive bool) (*app, error) {
	log := logger.Get()
	a := &app{
		cfg:     cfg,
		log:     log,
		metrics: metrics.New(),
		events:  reminder.NewEvents(),
		styles:  ui.NewStyles(cfg),
		out:     os.Stdout,
	}

	store, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.store = store

	ids, err := openCache(ctx, cfg, log)
	if err != nil {
		store.Close()
		return nil, err
	}
	a.cache = ids

	n := cfg.Notifications
	a.backend = notify.New(notify.Options{
		DataDir: cfg.GetDataDir(),
		Enabled: n.Enabled,
		Sound:   n.Sound,
		Logger:  log,
	})
	a.probe = reminder.NewProbe(a.backend, log)

	var prompter reminder.Prompter
	if interactive && isatty.IsTerminal(os.Stdin.Fd()) {
		prompter = ui.NewPrompter(a.styles, os.Stdin, os.Stdout)
	}

	a.coord = reminder.NewCoordinator(reminder.Options{
		Store: store,
		Probe: a.probe,
		Negotiator: reminder.NewNegotiator(a.probe, a.backend, reminder.NegotiatorOptions{
			Prompter:     prompter,
			PollInterval: n.PermissionPollInterval,
			PollTimeout:  n.PermissionTimeout,
			Logger:       log,
			Metrics:      a.metrics,
		}),
		Scheduler: reminder.NewScheduler(a.backend, reminder.SchedulerOptions{
			Channel:      n.Channel,
			Sound:        n.Sound,
			SafetyMargin: n.SafetyMargin,
			Logger:       log,
			Metrics:      a.metrics,
		}),
		Cache:    ids,
		Events:   a.events,
		Metrics:  a.metrics,
		Logger:   log,
		Location: cfg.TimeLocation(),
	})

	a.events.Subscribe(func(ev reminder.Event) {
		if notice := a.styles.RenderEvent(ev); notice != "" {
			fmt.Fprint(a.out, notice)
		}
	})
	return a, nil
}

// mustApp loads configuration and wires the app, exiting on failure.
func mustApp(ctx context.Context, interactive bool) *app {
	cfg, err := loadConfig()
	if err != nil {
		fatalf("%v", err)
	}
	a, err := newApp(ctx, cfg, interactive)
	if err != nil {
		fatalf("%v", err)
	}
	return a
}

func openStore(ctx context.Context, cfg *config.Config, log *logrus.Logger) (dataStore, error) {
	if cfg.Store.Driver == config.StorePostgres {
		store, err := storage.OpenPostgres(ctx, cfg.Store.DatabaseURL, log)
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		return store, nil
	}

	store, err := storage.New(cfg.GetDataDir())
	if err != nil {
		return nil, fmt.Errorf("open file store: %w", err)
	}
	return store, nil
}

func openCache(ctx context.Context, cfg *config.Config, log *logrus.Logger) (cache.NotificationIDs, error) {
	if cfg.Cache.Driver == config.CacheRedis {
		r, err := cache.NewRedis(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.RedisAddr,
			Password: cfg.Cache.RedisPassword,
			TTL:      cfg.Cache.TTL,
			Logger:   log,
		})
		if err != nil {
			return nil, fmt.Errorf("open redis cache: %w", err)
		}
		return r, nil
	}
	return cache.NewMemory(cfg.Cache.TTL), nil
}

// Close releases connections and writes metrics when a textfile is configured.
func (a *app) Close() {
	if err := a.metrics.WriteTextfile(a.cfg.Metrics.Textfile); err != nil {
		a.log.WithError(err).Warn("Failed to write metrics textfile")
	}
	if err := a.cache.Close(); err != nil {
		a.log.WithError(err).Debug("Failed to close cache")
	}
	a.store.Close()
}

// parseID parses a positive record id.
func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}

// reminderError turns coordinator errors into messages for the user.
func reminderError(id int64, err error) string {
	if errors.Is(err, reminder.ErrReminderNotFound) {
		return fmt.Sprintf("reminder #%d not found", id)
	}
	return err.Error()
}

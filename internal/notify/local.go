package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"paytrack/internal/fsutil"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
)

const (
	registryFile    = "triggers.json"
	permissionsFile = "permissions.json"

	// lockFile guards both files against other paytrack processes.
	lockFile = registryFile + ".lock"

	dirPerm  os.FileMode = 0700
	filePerm os.FileMode = 0600

	// maxDelivered bounds how many fired notifications are remembered.
	maxDelivered = 200
)

// registry is the on-disk state of the local backend.
type registry struct {
	Channels  []Channel `json:"channels"`
	Pending   []Trigger `json:"pending"`
	Delivered []Trigger `json:"delivered"`
}

// permissions is the on-disk grant state. Empty fields mean "not decided".
type permissions struct {
	Notification Authorization `json:"notification,omitempty"`
	ExactAlarm   Authorization `json:"exact_alarm,omitempty"`
}

// LocalOptions tunes a Local backend.
type LocalOptions struct {
	Sound bool

	// Now and NewID are injectable for tests.
	Now   func() time.Time
	NewID func() string
}

// Local is the full-capability backend. Triggers are kept in a JSON registry
// in the data directory so that separate CLI invocations and the long-running
// Runner share one view; the Runner is what actually fires them.
type Local struct {
	dir       string
	displayer Displayer
	sound     bool
	now       func() time.Time
	newID     func() string

	mu    sync.Mutex
	flock *flock.Flock
}

// NewLocal opens (creating if needed) the trigger registry in dir.
func NewLocal(dir string, d Displayer, opts LocalOptions) (*Local, error) {
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create registry directory: %w", err)
	}

	l := &Local{
		dir:       dir,
		displayer: d,
		sound:     opts.Sound,
		now:       opts.Now,
		newID:     opts.NewID,
		flock:     flock.New(filepath.Join(dir, lockFile)),
	}
	if l.now == nil {
		l.now = time.Now
	}
	if l.newID == nil {
		l.newID = uuid.NewString
	}

	// Fail early if the registry is unreadable rather than on first schedule.
	if err := l.locked(true, func() error {
		_, err := l.load()
		return err
	}); err != nil {
		return nil, err
	}
	return l, nil
}

// locked runs fn holding the in-process mutex and the file lock shared with
// other paytrack processes using the same data directory. Readers take the
// lock shared.
func (l *Local) locked(shared bool, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	lock := l.flock.Lock
	if shared {
		lock = l.flock.RLock
	}
	if err := lock(); err != nil {
		return fmt.Errorf("lock %s: %w", lockFile, err)
	}
	defer func() { _ = l.flock.Unlock() }()

	return fn()
}

func (l *Local) path(name string) string {
	return filepath.Join(l.dir, name)
}

func (l *Local) load() (*registry, error) {
	reg := &registry{Channels: []Channel{}, Pending: []Trigger{}, Delivered: []Trigger{}}
	data, err := fsutil.ReadFileIfExists(l.path(registryFile))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", registryFile, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return reg, nil
	}
	if err := json.Unmarshal(data, reg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", registryFile, err)
	}
	return reg, nil
}

func (l *Local) save(reg *registry) error {
	data, err := json.MarshalIndent(reg, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize %s: %w", registryFile, err)
	}
	if err := fsutil.WriteFileAtomic(l.path(registryFile), data, filePerm); err != nil {
		return fmt.Errorf("write %s: %w", registryFile, err)
	}
	return nil
}

// update runs fn against the registry under the exclusive lock and saves the
// result when fn reports a change.
func (l *Local) update(fn func(reg *registry) (bool, error)) error {
	return l.locked(false, func() error {
		reg, err := l.load()
		if err != nil {
			return err
		}
		changed, err := fn(reg)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}
		return l.save(reg)
	})
}

// read loads the registry under the shared lock.
func (l *Local) read() (*registry, error) {
	var reg *registry
	err := l.locked(true, func() error {
		var err error
		reg, err = l.load()
		return err
	})
	return reg, err
}

// SupportsTrigger always returns true.
func (l *Local) SupportsTrigger() bool { return true }

// EnsureChannel records ch unless a channel with the same id exists.
func (l *Local) EnsureChannel(ctx context.Context, ch Channel) error {
	if ch.ID == "" {
		return fmt.Errorf("channel id is required")
	}
	if ch.Importance == "" {
		ch.Importance = ImportanceDefault
	}
	return l.update(func(reg *registry) (bool, error) {
		for _, existing := range reg.Channels {
			if existing.ID == ch.ID {
				return false, nil
			}
		}
		reg.Channels = append(reg.Channels, ch)
		return true, nil
	})
}

// CreateTrigger registers a pending trigger. The channel must exist.
func (l *Local) CreateTrigger(ctx context.Context, payload Payload, fireAt time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := l.newID()
	err := l.update(func(reg *registry) (bool, error) {
		found := false
		for _, ch := range reg.Channels {
			if ch.ID == payload.Channel {
				found = true
				break
			}
		}
		if !found {
			return false, fmt.Errorf("%w: %q", ErrUnknownChannel, payload.Channel)
		}

		reg.Pending = append(reg.Pending, Trigger{
			ID:        id,
			Payload:   payload,
			FireAt:    fireAt,
			CreatedAt: l.now(),
		})
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// CancelTrigger removes a pending trigger.
func (l *Local) CancelTrigger(ctx context.Context, id string) error {
	return l.update(func(reg *registry) (bool, error) {
		for i := range reg.Pending {
			if reg.Pending[i].ID == id {
				reg.Pending = append(reg.Pending[:i], reg.Pending[i+1:]...)
				return true, nil
			}
		}
		return false, fmt.Errorf("%w: %s", ErrUnknownTrigger, id)
	})
}

// CancelNotification forgets a delivered notification.
func (l *Local) CancelNotification(ctx context.Context, id string) error {
	return l.update(func(reg *registry) (bool, error) {
		for i := range reg.Delivered {
			if reg.Delivered[i].ID == id {
				reg.Delivered = append(reg.Delivered[:i], reg.Delivered[i+1:]...)
				return true, nil
			}
		}
		return false, fmt.Errorf("%w: %s", ErrUnknownNotification, id)
	})
}

// PendingTriggers returns pending triggers ordered by fire time.
func (l *Local) PendingTriggers(ctx context.Context) ([]Trigger, error) {
	reg, err := l.read()
	if err != nil {
		return nil, err
	}

	pending := append([]Trigger(nil), reg.Pending...)
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].FireAt.Before(pending[j].FireAt)
	})
	return pending, nil
}

// Delivered returns the remembered fired notifications, newest first.
func (l *Local) Delivered(ctx context.Context) ([]Trigger, error) {
	reg, err := l.read()
	if err != nil {
		return nil, err
	}

	delivered := append([]Trigger(nil), reg.Delivered...)
	sort.SliceStable(delivered, func(i, j int) bool {
		return delivered[i].DeliveredAt.After(*delivered[j].DeliveredAt)
	})
	return delivered, nil
}

// Deliver moves a pending trigger to the delivered list and displays it.
// It returns nil when the trigger is no longer pending, e.g. because it was
// cancelled after the Runner picked it up.
func (l *Local) Deliver(ctx context.Context, id string) (*Trigger, error) {
	var fired Trigger
	delivered := false

	err := l.update(func(reg *registry) (bool, error) {
		for i := range reg.Pending {
			if reg.Pending[i].ID != id {
				continue
			}
			fired = reg.Pending[i]
			now := l.now()
			fired.DeliveredAt = &now

			reg.Pending = append(reg.Pending[:i], reg.Pending[i+1:]...)
			reg.Delivered = append(reg.Delivered, fired)
			if over := len(reg.Delivered) - maxDelivered; over > 0 {
				reg.Delivered = reg.Delivered[over:]
			}
			delivered = true
			return true, nil
		}
		return false, nil
	})
	if err != nil || !delivered {
		return nil, err
	}

	if err := l.Display(fired.Payload.Title, fired.Payload.Body); err != nil {
		return &fired, fmt.Errorf("display trigger %s: %w", id, err)
	}
	return &fired, nil
}

func (l *Local) loadPermissions() (permissions, error) {
	var p permissions
	data, err := fsutil.ReadFileIfExists(l.path(permissionsFile))
	if err != nil {
		return p, fmt.Errorf("read %s: %w", permissionsFile, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("parse %s: %w", permissionsFile, err)
	}
	return p, nil
}

func (l *Local) savePermissions(p permissions) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("serialize %s: %w", permissionsFile, err)
	}
	return fsutil.WriteFileAtomic(l.path(permissionsFile), data, filePerm)
}

// Settings combines the recorded grants with what the platform can do.
// Notification permission is implied by a working displayer unless it was
// explicitly revoked; exact alarms need an explicit grant.
func (l *Local) Settings(ctx context.Context) (Settings, error) {
	var p permissions
	err := l.locked(true, func() error {
		var err error
		p, err = l.loadPermissions()
		return err
	})
	if err != nil {
		return Settings{}, err
	}

	s := Settings{
		Notification: AuthorizationDenied,
		ExactAlarm:   AuthorizationNotDetermined,
	}
	if l.displayer != nil && l.displayer.IsSupported() && p.Notification != AuthorizationDenied {
		s.Notification = AuthorizationAuthorized
	}
	if p.ExactAlarm != "" {
		s.ExactAlarm = p.ExactAlarm
	}
	return s, nil
}

// SetExactAlarm records the exact-alarm grant. `paytrack permissions` is the
// settings surface that calls it.
func (l *Local) SetExactAlarm(a Authorization) error {
	return l.updatePermissions(func(p *permissions) { p.ExactAlarm = a })
}

// SetNotification records the notification grant.
func (l *Local) SetNotification(a Authorization) error {
	return l.updatePermissions(func(p *permissions) { p.Notification = a })
}

func (l *Local) updatePermissions(fn func(p *permissions)) error {
	return l.locked(false, func() error {
		p, err := l.loadPermissions()
		if err != nil {
			return err
		}
		fn(&p)
		return l.savePermissions(p)
	})
}

// RequestPermission returns nil: desktop platforms have no runtime prompt.
func (l *Local) RequestPermission(ctx context.Context) (*PermissionResult, error) {
	return nil, nil
}

// OpenAlarmSettings opens the permissions file in the default application,
// creating it first so there is something to edit.
func (l *Local) OpenAlarmSettings(ctx context.Context) error {
	err := l.updatePermissions(func(p *permissions) {
		if p.ExactAlarm == "" {
			p.ExactAlarm = AuthorizationNotDetermined
		}
	})
	if err != nil {
		return err
	}

	if l.displayer == nil {
		return fmt.Errorf("no settings handler available")
	}
	return l.displayer.Open(l.path(permissionsFile))
}

// Display shows a notification immediately.
func (l *Local) Display(title, body string) error {
	return show(l.displayer, l.sound, title, body)
}

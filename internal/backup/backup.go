// Package backup snapshots paytrack's data directory: payment and reminder
// records plus the local trigger registry and permission grants. Restoring
// puts records and triggers back together; callers should reconcile
// afterwards because a trigger may have fired since the snapshot was taken.
package backup

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"paytrack/internal/fsutil"
)

const (
	ManifestVersion = "1.0"
	ManifestFile    = "manifest.json"
	BackupsDir      = "backups"

	nameLayout = "2006-01-02_150405"
)

// ErrNoBackups is returned by RestoreLatest when nothing has been backed up.
var ErrNoBackups = errors.New("no backups available")

// dataFiles maps each backed-up file to the JSON array counted in its stats.
var dataFiles = []struct {
	name  string
	array string
}{
	{"payments.json", "payments"},
	{"reminders.json", "reminders"},
	{"triggers.json", "pending"},
	{"permissions.json", ""},
}

// Counts summarizes what a backup holds.
type Counts struct {
	Payments  int `json:"payments"`
	Reminders int `json:"reminders"`
	Triggers  int `json:"triggers"`
}

// Manifest is written next to the copied files.
type Manifest struct {
	Version    string    `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
	AppVersion string    `json:"app_version"`
	Files      []string  `json:"files"`
	Counts     Counts    `json:"counts"`
}

// Info describes one backup.
type Info struct {
	Name      string
	Path      string
	CreatedAt time.Time
	Counts    Counts
}

// Manager creates and restores backups under <dataDir>/backups.
type Manager struct {
	dataDir    string
	backupDir  string
	appVersion string
	now        func() time.Time
}

// NewManager returns a manager for dataDir.
func NewManager(dataDir, appVersion string) *Manager {
	return &Manager{
		dataDir:    dataDir,
		backupDir:  filepath.Join(dataDir, BackupsDir),
		appVersion: appVersion,
		now:        time.Now,
	}
}

// Create copies the data files into a new timestamped backup and returns its name.
func (m *Manager) Create() (string, error) {
	now := m.now()
	name := fmt.Sprintf("%s_%03d", now.Format(nameLayout), now.Nanosecond()/1e6)
	dir := filepath.Join(m.backupDir, name)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create backup directory: %w", err)
	}

	manifest := Manifest{
		Version:    ManifestVersion,
		CreatedAt:  now,
		AppVersion: m.appVersion,
	}
	for _, f := range dataFiles {
		data, err := fsutil.ReadFileIfExists(filepath.Join(m.dataDir, f.name))
		if err != nil {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("read %s: %w", f.name, err)
		}
		if data == nil {
			continue
		}
		if err := fsutil.WriteFileAtomic(filepath.Join(dir, f.name), data, 0600); err != nil {
			_ = os.RemoveAll(dir)
			return "", fmt.Errorf("copy %s: %w", f.name, err)
		}
		manifest.Files = append(manifest.Files, f.name)
		manifest.Counts.add(f.array, countArray(data, f.array))
	}

	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := fsutil.WriteFileAtomic(filepath.Join(dir, ManifestFile), data, 0600); err != nil {
		_ = os.RemoveAll(dir)
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return name, nil
}

// List returns the available backups, newest first.
func (m *Manager) List() ([]Info, error) {
	entries, err := os.ReadDir(m.backupDir)
	if errors.Is(err, os.ErrNotExist) {
		return []Info{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	backups := []Info{}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := m.info(entry.Name())
		if err != nil {
			continue
		}
		backups = append(backups, *info)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Get returns information about one backup.
func (m *Manager) Get(name string) (*Info, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	return m.info(name)
}

// Restore copies a backup's files over the data directory. A safety backup
// of the current state is taken first and named in any error.
func (m *Manager) Restore(name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	dir := filepath.Join(m.backupDir, name)
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("backup not found: %s", name)
	}

	files := make([]string, 0, len(dataFiles))
	if manifest, err := readManifest(dir); err == nil {
		files = manifest.Files
	} else {
		for _, f := range dataFiles {
			files = append(files, f.name)
		}
	}

	// Validate everything before touching the data directory.
	contents := make(map[string][]byte, len(files))
	for _, file := range files {
		data, err := fsutil.ReadFileIfExists(filepath.Join(dir, file))
		if err != nil {
			return fmt.Errorf("read %s from backup: %w", file, err)
		}
		if data == nil {
			continue
		}
		if !json.Valid(data) {
			return fmt.Errorf("backup file %s is not valid JSON", file)
		}
		contents[file] = data
	}

	safety, err := m.Create()
	if err != nil {
		return fmt.Errorf("create safety backup: %w", err)
	}
	for _, file := range files {
		data, ok := contents[file]
		if !ok {
			continue
		}
		if err := fsutil.WriteFileAtomic(filepath.Join(m.dataDir, file), data, 0600); err != nil {
			return fmt.Errorf("restore %s (safety backup: %s): %w", file, safety, err)
		}
	}
	return nil
}

// RestoreLatest restores the newest backup and returns its name.
func (m *Manager) RestoreLatest() (string, error) {
	backups, err := m.List()
	if err != nil {
		return "", err
	}
	if len(backups) == 0 {
		return "", ErrNoBackups
	}
	return backups[0].Name, m.Restore(backups[0].Name)
}

// Prune deletes all but the keep newest backups and returns how many went.
func (m *Manager) Prune(keep int) (int, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must be non-negative, got %d", keep)
	}
	backups, err := m.List()
	if err != nil {
		return 0, err
	}

	deleted := 0
	for i := keep; i < len(backups); i++ {
		if err := os.RemoveAll(backups[i].Path); err != nil {
			return deleted, fmt.Errorf("delete backup %s: %w", backups[i].Name, err)
		}
		deleted++
	}
	return deleted, nil
}

func (m *Manager) info(name string) (*Info, error) {
	dir := filepath.Join(m.backupDir, name)
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("backup not found: %s", name)
	}

	info := &Info{Name: name, Path: dir}
	if manifest, err := readManifest(dir); err == nil {
		info.CreatedAt = manifest.CreatedAt
		info.Counts = manifest.Counts
		return info, nil
	}

	createdAt, err := parseName(name)
	if err != nil {
		return nil, fmt.Errorf("invalid backup: %s", name)
	}
	info.CreatedAt = createdAt
	return info, nil
}

func (c *Counts) add(array string, n int) {
	switch array {
	case "payments":
		c.Payments = n
	case "reminders":
		c.Reminders = n
	case "pending":
		c.Triggers = n
	}
}

// countArray returns the length of the top-level array named key, or 0.
func countArray(data []byte, key string) int {
	if key == "" {
		return 0
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return 0
	}
	var items []json.RawMessage
	if err := json.Unmarshal(doc[key], &items); err != nil {
		return 0
	}
	return len(items)
}

func readManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	var manifest Manifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}

func validateName(name string) error {
	if name == "" {
		return errors.New("backup name is required")
	}
	if name != filepath.Base(name) {
		return fmt.Errorf("invalid backup name: %q", name)
	}
	if _, err := parseName(name); err != nil {
		return fmt.Errorf("invalid backup name: %q", name)
	}
	return nil
}

// parseName accepts "2006-01-02_150405" with an optional "_mmm" suffix.
func parseName(name string) (time.Time, error) {
	if len(name) != len(nameLayout)+4 {
		return time.Parse(nameLayout, name)
	}

	base, err := time.Parse(nameLayout, name[:len(nameLayout)])
	if err != nil {
		return time.Time{}, err
	}
	if name[len(nameLayout)] != '_' {
		return time.Time{}, errors.New("invalid backup name")
	}
	ms, err := strconv.Atoi(name[len(nameLayout)+1:])
	if err != nil || ms < 0 || ms > 999 {
		return time.Time{}, errors.New("invalid milliseconds")
	}
	return base.Add(time.Duration(ms) * time.Millisecond), nil
}

package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reminders.json")

	if err := WriteFileAtomic(path, []byte(`{"a":1}`), 0600); err != nil {
		t.Fatalf("WriteFileAtomic() error = %v", err)
	}
	if err := WriteFileAtomic(path, []byte(`{"a":2}`), 0600); err != nil {
		t.Fatalf("WriteFileAtomic() overwrite error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != `{"a":2}` {
		t.Errorf("contents = %q, want %q", data, `{"a":2}`)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	if len(entries) != 1 {
		t.Errorf("expected only the target file, found %d entries", len(entries))
	}
}

func TestReadFileIfExists(t *testing.T) {
	dir := t.TempDir()

	data, err := ReadFileIfExists(filepath.Join(dir, "missing.json"))
	if err != nil {
		t.Fatalf("ReadFileIfExists() missing file error = %v", err)
	}
	if data != nil {
		t.Errorf("ReadFileIfExists() missing file = %q, want nil", data)
	}

	path := filepath.Join(dir, "present.json")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	data, err = ReadFileIfExists(path)
	if err != nil || string(data) != "x" {
		t.Errorf("ReadFileIfExists() = %q, %v; want \"x\", nil", data, err)
	}
}

func TestBestEffortBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "payments.json")

	// No source file: nothing happens.
	BestEffortBackup(path, 0600)
	if _, err := os.Stat(path + ".bak"); !os.IsNotExist(err) {
		t.Fatalf("backup created for missing file")
	}

	if err := os.WriteFile(path, []byte("original"), 0600); err != nil {
		t.Fatal(err)
	}
	BestEffortBackup(path, 0600)

	data, err := os.ReadFile(path + ".bak")
	if err != nil {
		t.Fatalf("read backup: %v", err)
	}
	if string(data) != "original" {
		t.Errorf("backup = %q, want %q", data, "original")
	}
}

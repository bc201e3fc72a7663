// Package testutil provides shared test helpers for patient directories,
// notes directories and asynchronous assertions.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hyorim/carenotes/internal/patients"
)

// TestDirectory creates a temporary patient directory, seeded with seed, that
// is automatically cleaned up.
func TestDirectory(t *testing.T, seed patients.Seed) *patients.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "carenotes-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := patients.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Seed(seed); err != nil {
		t.Fatal(err)
	}
	return db
}

// NotesDir creates a temporary notes directory holding files, keyed by file
// name.
func NotesDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

// Eventually polls fn every tick until it returns true or timeout elapses.
func Eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

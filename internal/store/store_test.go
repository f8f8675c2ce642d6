package store

import (
	"os"
	"path/filepath"
	"testing"
)

// newTestStore creates a Store in a temporary directory.
func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})

	return s
}

func TestNewStore_CreatesDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	if _, err := os.Stat(dbPath); !os.IsNotExist(err) {
		t.Fatal("database file should not exist before creating store")
	}

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Fatal("database file should exist after creating store")
	}
	if s.Path() != dbPath {
		t.Errorf("Path() = %q, want %q", s.Path(), dbPath)
	}
}

func TestNewStore_RunsMigrations(t *testing.T) {
	s := newTestStore(t)

	for _, table := range []string{"sessions", "transitions", "settings"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q should exist after migrations: %v", table, err)
		}
	}

	for _, idx := range []string{"idx_transitions_session_id", "idx_sessions_started_at"} {
		var name string
		err := s.DB().QueryRow(
			"SELECT name FROM sqlite_master WHERE type='index' AND name=?",
			idx,
		).Scan(&name)
		if err != nil {
			t.Errorf("index %q should exist after migrations: %v", idx, err)
		}
	}
}

func TestNewStore_InMemory(t *testing.T) {
	s, err := New(MemoryPath)
	if err != nil {
		t.Fatalf("failed to create in-memory store: %v", err)
	}
	defer s.Close()

	if err := s.Sessions().Create(&Session{Mode: "touch", Backend: "dry-run"}); err != nil {
		t.Fatalf("Create() on in-memory store: %v", err)
	}
}

func TestStore_Close(t *testing.T) {
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.Close(); err != nil {
		t.Errorf("close should not return error: %v", err)
	}

	if _, err := s.DB().Exec("SELECT 1"); err == nil {
		t.Error("DB operations should fail after close")
	}
}

func TestStore_ForeignKeysEnabled(t *testing.T) {
	s := newTestStore(t)

	var fkEnabled int
	if err := s.DB().QueryRow("PRAGMA foreign_keys").Scan(&fkEnabled); err != nil {
		t.Fatalf("failed to check foreign keys pragma: %v", err)
	}
	if fkEnabled != 1 {
		t.Error("foreign keys should be enabled")
	}
}

func TestSettingsRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Settings()

	if _, err := repo.Get("enabled"); err != ErrNotFound {
		t.Errorf("Get() missing key error = %v, want ErrNotFound", err)
	}
	if !repo.Bool("enabled", true) {
		t.Error("Bool() should return default for missing key")
	}

	if err := repo.SetBool("enabled", false); err != nil {
		t.Fatalf("SetBool() error = %v", err)
	}
	if repo.Bool("enabled", true) {
		t.Error("Bool() = true after SetBool(false)")
	}

	if err := repo.Set("enabled", "true"); err != nil {
		t.Fatalf("Set() overwrite error = %v", err)
	}
	if !repo.Bool("enabled", false) {
		t.Error("Bool() = false after overwrite")
	}

	repo.Set("enabled", "maybe")
	if !repo.Bool("enabled", true) {
		t.Error("Bool() should fall back to default for invalid value")
	}
}

func TestNew_JournalMode(t *testing.T) {
	tests := []struct {
		name string
		path string
		want string
	}{
		{"file uses wal", filepath.Join(t.TempDir(), "wal.db"), "wal"},
		{"memory keeps memory journal", MemoryPath, "memory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.path)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer s.Close()

			var mode string
			if err := s.DB().QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
				t.Fatalf("journal_mode query: %v", err)
			}
			if mode != tt.want {
				t.Errorf("journal_mode = %q, want %q", mode, tt.want)
			}
		})
	}
}

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/pointer"
	"github.com/ayusman/mudra/internal/touch"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("mode: pointer\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, watch, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error = %v", err)
	}
	if watch != path {
		t.Errorf("watch path = %q, want %q", watch, path)
	}
	if cfg.Mode != config.ModePointer {
		t.Errorf("Mode = %q, want %q", cfg.Mode, config.ModePointer)
	}

	if _, _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("loadConfig() with a missing file should fail")
	}
}

func TestBackends_DryRun(t *testing.T) {
	cfg := config.Default()
	cfg.Touch.Backend = config.BackendDryRun

	injector, openCursor := backends(cfg)
	if _, ok := injector.(*touch.RecordingInjector); !ok {
		t.Errorf("injector = %T, want *touch.RecordingInjector", injector)
	}
	cursor, err := openCursor()
	if err != nil {
		t.Fatalf("openCursor() error = %v", err)
	}
	if _, ok := cursor.(*pointer.RecordingCursor); !ok {
		t.Errorf("cursor = %T, want *pointer.RecordingCursor", cursor)
	}
}

func TestRunSelfTest_DryRun(t *testing.T) {
	cfg := config.Default()
	cfg.Touch.Backend = config.BackendDryRun

	if code := runSelfTest(cfg); code != 0 {
		t.Errorf("runSelfTest() = %d, want 0", code)
	}
}

func TestStatusLine(t *testing.T) {
	tests := []struct {
		name string
		st   app.Status
		want string
	}{
		{"touch", app.Status{Enabled: true, Mode: "touch", Gesture: "Zoom"}, "touch: Zoom"},
		{"degraded", app.Status{Enabled: true, Mode: "pointer", Degraded: true}, "pointer (degraded)"},
		{"paused", app.Status{Mode: "touch", Gesture: "Idle"}, "touch: Idle, paused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusLine(tt.st); got != tt.want {
				t.Errorf("statusLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestFindWebDir(t *testing.T) {
	dataDir := t.TempDir()
	if got := findWebDir(dataDir); got != "" && !filepath.IsAbs(got) {
		t.Errorf("findWebDir() = %q, want absolute path or empty", got)
	}

	web := filepath.Join(dataDir, "web")
	if err := os.Mkdir(web, 0755); err != nil {
		t.Fatalf("failed to create web dir: %v", err)
	}
	if got := findWebDir(dataDir); got == "" {
		t.Error("findWebDir() should find <dataDir>/web")
	}
}

package main

import (
	"context"
	"fmt"
	"image"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/akamensky/argparse"

	"github.com/ayusman/mudra/internal/app"
	"github.com/ayusman/mudra/internal/capture"
	"github.com/ayusman/mudra/internal/config"
	"github.com/ayusman/mudra/internal/detector"
	"github.com/ayusman/mudra/internal/logging"
	"github.com/ayusman/mudra/internal/pointer"
	"github.com/ayusman/mudra/internal/server"
	"github.com/ayusman/mudra/internal/store"
	"github.com/ayusman/mudra/internal/touch"
	"github.com/ayusman/mudra/internal/tray"
)

const dataDirName = ".mudra"

func main() {
	parser := argparse.NewParser("mudra", "Drive touch and pointer input with hand poses")

	configPath := parser.String("c", "config", &argparse.Options{
		Required: false,
		Help:     "Config file (default ~/.mudra/config.yaml when present)",
	})
	mode := parser.Selector("m", "mode", []string{config.ModeTouch, config.ModePointer}, &argparse.Options{
		Required: false,
		Help:     "Input mode, overrides the config file",
	})
	dryRun := parser.Flag("n", "dry-run", &argparse.Options{
		Required: false,
		Help:     "Record injections instead of creating input devices",
	})
	selfTest := parser.Flag("", "selftest", &argparse.Options{
		Required: false,
		Help:     "Tap and pinch at the screen center, then exit",
	})
	noTray := parser.Flag("", "no-tray", &argparse.Options{
		Required: false,
		Help:     "Run without the tray icon",
	})
	addr := parser.String("a", "addr", &argparse.Options{
		Required: false,
		Help:     "HTTP listen address, overrides the config file",
	})
	debug := parser.Flag("d", "debug", &argparse.Options{
		Required: false,
		Help:     "Enable debug logging",
	})

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(2)
	}

	cfg, watchPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mudra: %v\n", err)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *dryRun {
		cfg.Touch.Backend = config.BackendDryRun
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *debug {
		cfg.Log.Level = "debug"
	}

	if _, err := logging.Init(logging.Options{Level: cfg.Log.Level, File: cfg.Log.File}); err != nil {
		fmt.Fprintf(os.Stderr, "mudra: %v\n", err)
		os.Exit(1)
	}

	if *selfTest {
		os.Exit(runSelfTest(cfg))
	}

	if err := run(cfg, watchPath, !*noTray); err != nil {
		logging.Error(logging.Fields{"error": err.Error()}, "mudra exited with error")
		os.Exit(1)
	}
}

// loadConfig returns the settings and the file to watch for changes, if any.
func loadConfig(path string) (config.Config, string, error) {
	if path == "" {
		if home, err := os.UserHomeDir(); err == nil {
			candidate := filepath.Join(home, dataDirName, "config.yaml")
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
			}
		}
	}
	if path == "" {
		return config.Default(), "", nil
	}

	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, "", err
	}
	return *cfg, path, nil
}

func run(cfg config.Config, watchPath string, withTray bool) error {
	dataDir, err := ensureDataDir()
	if err != nil {
		return err
	}

	dbPath := cfg.Store.Path
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "mudra.db")
	}
	st, err := store.New(dbPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	injector, openCursor := backends(cfg)
	hub := server.NewHub()

	application := app.New(app.Config{
		Settings: cfg,
		Store:    st,
		Camera: capture.NewCamera(capture.Options{
			DeviceID: cfg.Camera.DeviceID,
			FPS:      cfg.Camera.FPS,
		}),
		Detector:   newDetector(cfg),
		Injector:   injector,
		OpenCursor: openCursor,
		Overlay:    hub,
	})
	if err := application.Start(); err != nil {
		application.Stop()
		return fmt.Errorf("start pipeline: %w", err)
	}

	if watchPath != "" {
		watcher, err := config.NewWatcher(watchPath)
		if err != nil {
			logging.Warn(logging.Fields{"error": err.Error(), "path": watchPath}, "config hot reload disabled")
		} else {
			watcher.OnReload(func(c *config.Config) { application.Apply(*c) })
			watcher.Start()
			defer watcher.Stop()
		}
	}

	srv := server.New(server.Config{
		StaticDir:  findWebDir(dataDir),
		Store:      st,
		Controller: application,
		Hub:        hub,
	})
	go func() {
		if err := srv.ListenAndServe(cfg.Server.Addr); err != nil {
			logging.Error(logging.Fields{"error": err.Error(), "addr": cfg.Server.Addr}, "http server failed")
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var once sync.Once
	shutdown := func() {
		once.Do(func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logging.Warn(logging.Fields{"error": err.Error()}, "http shutdown failed")
			}
			application.Stop()
		})
	}
	defer shutdown()

	if !withTray {
		<-ctx.Done()
		return nil
	}

	t := tray.New(application.IsEnabled())
	t.OnToggle(application.SetEnabled)
	t.OnOverlay(func() { openBrowser("http://" + cfg.Server.Addr + "/") })
	t.OnQuit(cancel)

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				t.Quit()
				return
			case <-ticker.C:
				t.SetStatus(statusLine(application.Status()))
				t.SetEnabled(application.IsEnabled())
			}
		}
	}()
	t.Run()
	return nil
}

func statusLine(st app.Status) string {
	line := st.Mode
	if st.Degraded {
		line += " (degraded)"
	}
	if st.Gesture != "" {
		line += ": " + st.Gesture
	}
	if !st.Enabled {
		line += ", paused"
	}
	return line
}

// backends picks the touch injector and cursor factory for the configured
// backend.
func backends(cfg config.Config) (touch.Injector, func() (pointer.Cursor, error)) {
	if cfg.Touch.Backend == config.BackendDryRun {
		logging.Info(nil, "dry run: input is recorded, not injected")
		return touch.NewRecordingInjector(), func() (pointer.Cursor, error) {
			return pointer.NewRecordingCursor(), nil
		}
	}

	w, h, path := cfg.Screen.Width, cfg.Screen.Height, cfg.Touch.DevicePath
	return touch.NewUInputInjector(path, w, h), func() (pointer.Cursor, error) {
		return pointer.NewUInputCursor(path, w, h)
	}
}

func newDetector(cfg config.Config) detector.Detector {
	d, err := detector.NewMediaPipeDetector(detector.Config{
		MaxHands:        cfg.Detector.MaxHands,
		MinConfidence:   cfg.Detector.MinConfidence,
		MinTrackingConf: cfg.Detector.MinTrackingConf,
		Script:          cfg.Detector.Script,
	})
	if err != nil {
		logging.Warn(logging.Fields{"error": err.Error()}, "landmark service not available, no hands will be detected")
		return detector.NewMockDetector()
	}
	return d
}

// runSelfTest taps and pinches at the screen center through the configured
// backend and returns the process exit code.
func runSelfTest(cfg config.Config) int {
	injector, _ := backends(cfg)
	ch := touch.NewChannel(injector, touch.Config{
		HoldInterval: cfg.Touch.HoldInterval(),
		Radius:       cfg.Touch.ContactRadius,
	})
	defer ch.Close()

	if !ch.Initialize() {
		logging.Error(logging.Fields{"error": errString(ch.LastError())}, "selftest: touch injection unavailable")
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	center := image.Pt(cfg.Screen.Width/2, cfg.Screen.Height/2)
	spread := cfg.Screen.Width / 8

	if !ch.Tap(ctx, 0, center.X, center.Y, 100*time.Millisecond) {
		logging.Error(logging.Fields{"error": errString(ch.LastError())}, "selftest: tap failed")
		return 1
	}
	from := [touch.NumSlots]image.Point{center.Add(image.Pt(-10, 0)), center.Add(image.Pt(10, 0))}
	to := [touch.NumSlots]image.Point{center.Add(image.Pt(-spread, 0)), center.Add(image.Pt(spread, 0))}
	if !ch.Pinch(ctx, from, to, 20, 400*time.Millisecond) {
		logging.Error(logging.Fields{"error": errString(ch.LastError())}, "selftest: pinch failed")
		return 1
	}

	logging.Info(logging.Fields{"backend": cfg.Touch.Backend}, "selftest passed")
	return 0
}

func ensureDataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home directory: %w", err)
	}
	dir := filepath.Join(home, dataDirName)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dir, nil
}

// findWebDir returns the first overlay page directory found in "web",
// "../web" or <dataDir>/web, or "" when there is none.
func findWebDir(dataDir string) string {
	for _, p := range []string{"web", "../web", filepath.Join(dataDir, "web")} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			if abs, err := filepath.Abs(p); err == nil {
				return abs
			}
			return p
		}
	}
	return ""
}

func openBrowser(url string) {
	if strings.HasPrefix(url, "http://:") {
		url = "http://localhost" + strings.TrimPrefix(url, "http://")
	}
	if err := exec.Command("xdg-open", url).Start(); err != nil {
		logging.Warn(logging.Fields{"error": err.Error(), "url": url}, "failed to open browser")
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

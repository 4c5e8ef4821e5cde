// Package main provides the flx entry point: a terminal dashboard that runs
// Flutter apps on several devices at once.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/bazelment/yoloswe/flx/app"
	"github.com/bazelment/yoloswe/flx/config"
	"github.com/bazelment/yoloswe/flx/daemon"
	"github.com/bazelment/yoloswe/flx/logging"
	"github.com/bazelment/yoloswe/flx/session"
	"github.com/bazelment/yoloswe/flx/watch"
)

// daemonReadyTimeout bounds the wait for daemon.connected.
const daemonReadyTimeout = 60 * time.Second

var (
	projectFlag string
	flutterFlag string
	deviceFlag  string
	modeFlag    string
	targetFlag  string
	flavorFlag  string
	watchFlag   bool
	verbosity   int
)

var rootCmd = &cobra.Command{
	Use:   "flx",
	Short: "Terminal dashboard for running Flutter apps",
	Long: `flx drives flutter run on one or more devices at once and shows
their logs side by side. Hot reload, hot restart and the common debug
toggles are one key away.

Settings are read from .flx.yaml in the project root; flags override them.
Run "flx config schema" for the file format.`,
	SilenceUsage: true,
	RunE:         runTUI,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&projectFlag, "project", "C", "", "Flutter project directory (default: nearest pubspec.yaml)")
	pf.StringVar(&flutterFlag, "flutter", "", "Flutter executable")
	pf.CountVarP(&verbosity, "verbose", "v", "Increase log verbosity (-vv logs protocol traffic)")

	for _, cmd := range []*cobra.Command{rootCmd, runCmd} {
		f := cmd.Flags()
		f.StringVarP(&deviceFlag, "device", "d", "", "Device id for new sessions")
		f.StringVar(&modeFlag, "mode", "", "Build mode: debug, profile or release")
		f.StringVarP(&targetFlag, "target", "t", "", "Entry point")
		f.StringVar(&flavorFlag, "flavor", "", "Build flavor")
		f.BoolVarP(&watchFlag, "watch", "w", false, "Hot reload when Dart sources change")
	}

	rootCmd.AddCommand(devicesCmd, emulatorsCmd, runCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// project is the resolved project directory and its effective settings.
type project struct {
	config *config.Config
	root   string
}

// loadProject finds the project, reads .flx.yaml and applies flags.
func loadProject() (*project, error) {
	dir := projectFlag
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		dir = cwd
	}
	root, err := config.FindProjectRoot(dir)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", dir, err)
	}
	cfg, err := config.Load(root)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cfg); err != nil {
		return nil, err
	}
	return &project{root: root, config: cfg}, nil
}

// applyFlags overrides file settings with flags that were set.
func applyFlags(cfg *config.Config) error {
	if flutterFlag != "" {
		cfg.FlutterPath = flutterFlag
	}
	if deviceFlag != "" {
		cfg.Device = deviceFlag
	}
	if modeFlag != "" {
		cfg.Mode = modeFlag
	}
	if targetFlag != "" {
		cfg.Target = targetFlag
	}
	if flavorFlag != "" {
		cfg.Flavor = flavorFlag
	}
	if watchFlag {
		cfg.Watch.Enabled = true
	}
	return cfg.Validate()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// startDaemon spawns the daemon and waits for it to report ready.
func startDaemon(ctx context.Context, cfg *config.Config, dir string, logger *slog.Logger) (*daemon.Client, error) {
	d, err := daemon.Start(ctx,
		daemon.WithFlutterPath(cfg.FlutterPath),
		daemon.WithDir(dir),
		daemon.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}
	readyCtx, cancel := context.WithTimeout(ctx, daemonReadyTimeout)
	defer cancel()
	info, err := d.WaitConnected(readyCtx)
	if err != nil {
		d.Close(context.Background())
		return nil, fmt.Errorf("flutter daemon did not become ready: %w", err)
	}
	logger.Info("daemon connected", "version", info.Version, "pid", info.PID)
	return d, nil
}

func newManager(p *project, logger *slog.Logger, devices session.DeviceSource) *session.Manager {
	return session.NewManager(session.Config{
		Logger:   logger,
		Devices:  devices,
		Defaults: p.config.RunOptions(p.root),
		LogLines: p.config.LogLines,
	})
}

// reloadOnSave hot reloads every session after each batch of saved files.
func reloadOnSave(ctx context.Context, p *project, manager *session.Manager, logger *slog.Logger, onResult func(files []string, err error)) (func(), error) {
	w, err := watch.New(p.config.WatchDirs(p.root), watch.Options{
		Logger:   logger,
		Debounce: p.config.Watch.Debounce.Std(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to watch sources: %w", err)
	}
	go w.Run(ctx)
	go func() {
		for files := range w.Changes() {
			reloadCtx, cancel := context.WithTimeout(ctx, p.config.CallTimeout.Std())
			err := manager.ReloadAll(reloadCtx, false)
			cancel()
			if err != nil {
				logger.Info("reload on save failed", "files", len(files), "error", err)
			}
			if onResult != nil {
				onResult(files, err)
			}
		}
	}()
	return func() { w.Close() }, nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) || !term.IsTerminal(int(os.Stdin.Fd())) {
		return errors.New("the dashboard needs a terminal; use \"flx run\" for headless output")
	}

	ctx, cancel := signalContext()
	defer cancel()

	p, err := loadProject()
	if err != nil {
		return err
	}
	lock, err := config.Lock(p.root)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	logDir, err := logging.DefaultDir()
	if err != nil {
		return err
	}
	logger, logPath, closeLog, err := logging.NewFileLogger(logDir, verbosity)
	if err != nil {
		return err
	}
	defer closeLog()
	logger.Info("flx starting", "project", p.root)

	d, err := startDaemon(ctx, p.config, p.root, logger)
	if err != nil {
		return err
	}
	defer d.Close(context.Background())

	devices, err := d.TrackDevices(ctx)
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}
	defer devices.Close()

	manager := newManager(p, logger, devices)
	defer manager.Close(context.Background())

	if p.config.Watch.Enabled {
		stop, err := reloadOnSave(ctx, p, manager, logger, nil)
		if err != nil {
			return err
		}
		defer stop()
	}

	err = app.Run(ctx, app.Config{
		Manager:     manager,
		Devices:     devices,
		Logger:      logger,
		Project:     filepath.Base(p.root),
		Defaults:    session.Options{DeviceID: p.config.Device},
		CallTimeout: p.config.CallTimeout.Std(),
	})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("dashboard failed (log: %s): %w", logPath, err)
	}
	return nil
}

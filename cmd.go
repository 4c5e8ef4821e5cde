package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/bazelment/yoloswe/flx/config"
	"github.com/bazelment/yoloswe/flx/daemon"
	"github.com/bazelment/yoloswe/flx/logging"
	"github.com/bazelment/yoloswe/flx/machine"
	"github.com/bazelment/yoloswe/flx/session"
)

var coldBootFlag bool

var devicesCmd = &cobra.Command{
	Use:   "devices",
	Short: "List connected devices",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(ctx context.Context, d *daemon.Client) error {
			devices, err := d.GetDevices(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), deviceTable(devices))
			return nil
		})
	},
}

var emulatorsCmd = &cobra.Command{
	Use:   "emulators",
	Short: "List emulators and simulators",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(ctx context.Context, d *daemon.Client) error {
			emulators, err := d.GetEmulators(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), emulatorTable(emulators))
			return nil
		})
	},
}

var emulatorsLaunchCmd = &cobra.Command{
	Use:   "launch <emulator-id>",
	Short: "Boot an emulator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDaemon(func(ctx context.Context, d *daemon.Client) error {
			if err := d.LaunchEmulator(ctx, args[0], coldBootFlag); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Launched %s\n", args[0])
			return nil
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the app without the dashboard",
	Long: `Run the app on one device and stream its logs to stdout.

Type a command and press Enter:
  r  hot reload
  R  hot restart
  q  quit`,
	Args: cobra.NoArgs,
	RunE: runHeadless,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the project configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loadProject()
		if err != nil {
			return err
		}
		out, err := yaml.Marshal(p.config)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", p.root, out)
		return nil
	},
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of " + config.FileName,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := config.Schema()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(schema))
		return nil
	},
}

func init() {
	emulatorsLaunchCmd.Flags().BoolVar(&coldBootFlag, "cold", false, "Cold boot the emulator")
	emulatorsCmd.AddCommand(emulatorsLaunchCmd)
	configCmd.AddCommand(configSchemaCmd)
}

// withDaemon runs fn against a daemon started for the current directory.
func withDaemon(fn func(ctx context.Context, d *daemon.Client) error) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg := config.Default()
	dir := projectFlag
	if p, err := loadProject(); err == nil {
		cfg, dir = p.config, p.root
	} else if flutterFlag != "" {
		cfg.FlutterPath = flutterFlag
	}
	logger := logging.New(os.Stderr, verbosity)

	d, err := startDaemon(ctx, cfg, dir, logger)
	if err != nil {
		return err
	}
	defer d.Close(context.Background())

	callCtx, callCancel := context.WithTimeout(ctx, cfg.CallTimeout.Std())
	defer callCancel()
	return fn(callCtx, d)
}

func deviceTable(devices []machine.Device) string {
	sort.Slice(devices, func(i, j int) bool { return devices[i].Name < devices[j].Name })
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		kind := d.Category
		if d.Emulator {
			kind = strings.TrimSpace(kind + " (emulator)")
		}
		rows = append(rows, []string{d.Name, d.ID, d.PlatformType, d.Platform, kind, d.SDK})
	}
	return renderTable(
		[]string{"Name", "ID", "Platform", "Target", "Kind", "SDK"},
		rows, nil)
}

func emulatorTable(emulators []machine.Emulator) string {
	sort.Slice(emulators, func(i, j int) bool { return emulators[i].Name < emulators[j].Name })
	rows := make([][]string, 0, len(emulators))
	for _, e := range emulators {
		rows = append(rows, []string{e.Name, e.ID, e.PlatformType, e.Category})
	}
	return renderTable([]string{"Name", "ID", "Platform", "Kind"}, rows, nil)
}

// headlessPrinter writes session output to a terminal or pipe. It is safe
// for concurrent use.
type headlessPrinter struct {
	out  io.Writer
	errc *color.Color
	dim  *color.Color
	ok   *color.Color
	mu   sync.Mutex
}

func newHeadlessPrinter(out io.Writer) *headlessPrinter {
	return &headlessPrinter{
		out:  out,
		errc: color.New(color.FgRed),
		dim:  color.New(color.Faint),
		ok:   color.New(color.FgGreen),
	}
}

func (p *headlessPrinter) line(l session.LogLine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case l.Error:
		p.errc.Fprintln(p.out, l.Text)
	case l.Source == session.SourceBuild || l.Source == session.SourceFlx:
		p.dim.Fprintln(p.out, l.Text)
	default:
		fmt.Fprintln(p.out, l.Text)
	}
}

func (p *headlessPrinter) status(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ok.Fprintf(p.out, format+"\n", args...)
}

func (p *headlessPrinter) failure(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errc.Fprintln(p.out, err.Error())
}

// runCommand is one line typed on stdin in headless mode.
type runCommand int

const (
	cmdNone runCommand = iota
	cmdReload
	cmdRestart
	cmdQuit
)

func parseRunCommand(line string) runCommand {
	switch strings.TrimSpace(line) {
	case "r":
		return cmdReload
	case "R":
		return cmdRestart
	case "q", "quit", "exit":
		return cmdQuit
	default:
		return cmdNone
	}
}

func readCommands(r io.Reader, out chan<- runCommand) {
	defer close(out)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if c := parseRunCommand(scanner.Text()); c != cmdNone {
			out <- c
		}
	}
}

func runHeadless(cmd *cobra.Command, args []string) error {
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

	logger := logging.New(os.Stderr, verbosity)
	printer := newHeadlessPrinter(cmd.OutOrStdout())

	manager := newManager(p, logger, nil)
	defer manager.Close(context.Background())
	events, unsubscribe := manager.Events(1024)
	defer unsubscribe()

	id, err := manager.Create(ctx, session.Options{DeviceID: p.config.Device})
	if err != nil {
		return err
	}
	h, err := manager.Lookup(id)
	if err != nil {
		return err
	}
	printer.status("Running %s", strings.Join(h.Runner().Args(), " "))

	if p.config.Watch.Enabled {
		stop, err := reloadOnSave(ctx, p, manager, logger, func(files []string, err error) {
			if err != nil {
				printer.failure(err)
				return
			}
			printer.status("Reloaded after %s", plural(len(files), "change"))
		})
		if err != nil {
			return err
		}
		defer stop()
	}

	commands := make(chan runCommand)
	go readCommands(cmd.InOrStdin(), commands)

	for {
		select {
		case <-ctx.Done():
			return nil
		case c, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			if c == cmdQuit {
				return manager.Terminate(context.Background(), id)
			}
			reload(ctx, p, h, c == cmdRestart, printer)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.ID != id {
				continue
			}
			switch ev.Kind {
			case session.EventLog:
				printer.line(ev.Line)
			case session.EventRemoved:
				if ev.Info.StopError != "" {
					return errors.New(ev.Info.StopError)
				}
				return nil
			}
		}
	}
}

func reload(ctx context.Context, p *project, h *session.Handle, full bool, printer *headlessPrinter) {
	ctx, cancel := context.WithTimeout(ctx, p.config.CallTimeout.Std())
	defer cancel()

	run, op := h.Runner().Reload, "Reloaded"
	if full {
		run, op = h.Runner().Restart, "Restarted"
	}
	res, err := run(ctx)
	if err != nil {
		printer.failure(err)
		return
	}
	if res.Message != "" {
		printer.status("%s: %s", op, res.Message)
		return
	}
	printer.status("%s", op)
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return strconv.Itoa(n) + " " + noun + "s"
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/muurk/wifiportal/internal/config"
	"github.com/muurk/wifiportal/internal/logging"
	"github.com/muurk/wifiportal/internal/radio/sim"
	"github.com/muurk/wifiportal/internal/ui"
)

var (
	configPath   string
	simulateFile string
	monitor      bool
	adminAddr    string
	logLevel     string
	logFile      string
	forceInit    bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the connection supervisor and captive portal",
	Long: `Run the connection supervisor.

The supervisor tries the configured network first. If it cannot associate
within timeouts.connect_ms it starts the access point, the captive DNS
responder and the configuration portal. Credentials saved through the portal
are written back to the settings file.

The radio is simulated; --simulate loads the networks it can see from a
YAML file. Without it the simulated radio sees no networks and the portal
comes up after the connect timeout.`,
	Example: `  # Run with the default settings file
  wifiportal run

  # Simulated neighbourhood, live dashboard, metrics on :9090
  wifiportal run --simulate networks.yaml --monitor --admin :9090

  # Debug logging to a rotated file
  wifiportal run --log-level debug --log-file /var/log/wifiportal.log`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&simulateFile, "simulate", "", "YAML file describing the networks the simulated radio sees")
	runCmd.Flags().BoolVar(&monitor, "monitor", false, "Show a live terminal dashboard")
	runCmd.Flags().StringVar(&adminAddr, "admin", "", "Admin listen address for /metrics, /status and /ws (overrides admin.listen)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides log.level")
	runCmd.Flags().StringVar(&logFile, "log-file", "", "Log file, rotated by size; overrides log.file")
}

func runRun(cmd *cobra.Command, args []string) error {
	path, err := config.ResolvePath(configPath)
	if err != nil {
		return err
	}
	settings, err := config.Load(path)
	if err != nil {
		return err
	}
	if adminAddr != "" {
		settings.Admin.Listen = adminAddr
	}
	if logLevel != "" {
		settings.Log.Level = logLevel
	}
	if logFile != "" {
		settings.Log.File = logFile
	}
	if errs := settings.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintf(os.Stderr, "  %v\n", e)
		}
		return fmt.Errorf("invalid settings in %s", path)
	}

	opts := logging.Options{Level: settings.Log.Level, File: settings.Log.File}
	if monitor {
		// The dashboard owns the terminal.
		opts.DisableConsole = true
		if opts.File == "" {
			opts.Level = ""
		}
	}
	if err := logging.Initialize(opts); err != nil {
		return err
	}
	defer logging.Sync()

	var dev *sim.Radio
	if simulateFile != "" {
		if dev, err = sim.Load(simulateFile); err != nil {
			return err
		}
	} else {
		dev = sim.New()
	}

	d, err := newDaemon(settings, path, dev, prometheus.NewRegistry())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("Starting wifiportal",
		zap.String("config", path),
		zap.String("ap_ssid", settings.AccessPoint.SSID),
		zap.String("station_ssid", settings.Station.SSID),
	)

	if !monitor {
		return d.run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- d.run(ctx) }()

	program := tea.NewProgram(ui.NewMonitor(d.sup, d.sup, 500*time.Millisecond), tea.WithContext(ctx))
	_, uiErr := program.Run()
	cancel()
	runErr := <-done
	if uiErr != nil && !errors.Is(uiErr, tea.ErrProgramKilled) {
		return uiErr
	}
	return runErr
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the settings file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ResolvePath(configPath)
		if err != nil {
			return err
		}
		if _, err := os.Stat(path); err == nil && !forceInit {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		fmt.Printf("Wrote %s\n", path)
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective settings and any validation problems",
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(configPath)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(settings)
		if err != nil {
			return fmt.Errorf("failed to marshal settings: %w", err)
		}
		fmt.Print(string(data))

		if errs := settings.Validate(); len(errs) > 0 {
			fmt.Println()
			for _, e := range errs {
				fmt.Printf("✗ %v\n", e)
			}
			return fmt.Errorf("%d problem(s) found", len(errs))
		}
		return nil
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the settings file location",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := config.ResolvePath(configPath)
		if err != nil {
			return err
		}
		fmt.Println(path)
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&forceInit, "force", false, "Overwrite an existing file")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

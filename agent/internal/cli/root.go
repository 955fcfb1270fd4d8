// Package cli wires the agent's command line. A single root command covers
// the daemon loop plus one-shot maintenance actions.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/seaward-systems/fleetgate/agent/internal/client"
	"github.com/seaward-systems/fleetgate/agent/internal/config"
	"github.com/seaward-systems/fleetgate/agent/internal/download"
	"github.com/seaward-systems/fleetgate/agent/internal/identity"
	"github.com/seaward-systems/fleetgate/agent/internal/ledger"
	"github.com/seaward-systems/fleetgate/agent/internal/scheduler"
	"github.com/seaward-systems/fleetgate/agent/internal/updater"
	"github.com/seaward-systems/fleetgate/common/logging"
)

var (
	cfgFile   string
	checkNow  bool
	setupKey  bool
	interval  int
	serverURL string
)

var rootCmd = &cobra.Command{
	Use:   "fleetgate-agent",
	Short: "Fleetgate device update agent",
	Long: `fleetgate-agent keeps a device's payloads in sync with a fleetgate
server. It periodically fetches the signed file listing, downloads new and
updated payloads, and runs installer scripts when automatic updates are
enabled.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.fleetgate-agent/config.json)")
	rootCmd.Flags().BoolVar(&checkNow, "check-now", false, "run one update check immediately")
	rootCmd.Flags().BoolVar(&setupKey, "setup", false, "prompt for the device secret key and save it")
	rootCmd.Flags().IntVar(&interval, "interval", 0, "check interval in seconds (persisted to config)")
	rootCmd.Flags().StringVar(&serverURL, "server", "", "server URL (persisted to config)")
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	if setupKey {
		if err := promptSecretKey(cfg, cmd.InOrStdin()); err != nil {
			return err
		}
	}
	if interval > 0 {
		cfg.CheckInterval = interval
		if err := cfg.Save(); err != nil {
			return err
		}
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
		if err := cfg.Save(); err != nil {
			return err
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("%w (run with --setup to configure the secret key)", err)
	}

	if err := setupLogging(cfg); err != nil {
		return err
	}

	deviceID, err := identity.New().DeviceID()
	if err != nil {
		return fmt.Errorf("resolve device id: %w", err)
	}
	slog.Info("agent starting",
		logging.DeviceID(deviceID),
		slog.String("server", cfg.ServerURL),
		slog.String("config", cfg.Path()))

	c := client.New(cfg.ServerURL, cfg.SecretKey, deviceID)
	led := ledger.New(filepath.Join(cfg.DownloadDir, "downloads.jsonl"))
	d := download.New(c, led, cfg.DownloadDir)
	u := updater.New(c, d, cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if checkNow {
		if _, err := u.CheckForUpdates(ctx); err != nil {
			return err
		}
		// One-shot unless an interval was also requested.
		if interval == 0 {
			return nil
		}
	}

	s := scheduler.New(time.Duration(cfg.CheckInterval)*time.Second, func(ctx context.Context) error {
		_, err := u.CheckForUpdates(ctx)
		return err
	})

	if err := s.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	slog.Info("agent stopped")
	return nil
}

func promptSecretKey(cfg *config.Config, in io.Reader) error {
	fmt.Print("Enter the device secret key: ")
	reader := bufio.NewReader(in)
	key, err := reader.ReadString('\n')
	if err != nil && key == "" {
		return fmt.Errorf("read secret key: %w", err)
	}
	cfg.SecretKey = strings.TrimSpace(key)
	if err := cfg.Save(); err != nil {
		return err
	}
	fmt.Println("Secret key saved")
	return nil
}

// setupLogging tees the agent log to the console and a file next to the
// downloaded payloads.
func setupLogging(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(cfg.DownloadDir, "agent.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}

	logger := logging.NewWriter(io.MultiWriter(os.Stdout, logFile), logging.ParseLevel("info"), "text").
		With(logging.Service("agent"))
	logging.SetDefault(logger)
	return nil
}
